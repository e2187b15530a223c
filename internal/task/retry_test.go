package task

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	t.Parallel()
	policy := DefaultRetryPolicy()

	testCases := []struct {
		retries  int
		expected time.Duration
	}{
		{retries: 0, expected: 1 * time.Second},
		{retries: 1, expected: 2 * time.Second},
		{retries: 2, expected: 4 * time.Second},
		{retries: 5, expected: 32 * time.Second},
		{retries: 6, expected: time.Minute},
		{retries: 40, expected: time.Minute},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, policy.Backoff(tc.retries), "retries=%d", tc.retries)
	}
}

func TestRetryPolicy_Decide(t *testing.T) {
	t.Parallel()
	policy := RetryPolicy{MaxRetries: 2, MinBackoff: 10 * time.Millisecond, MaxBackoff: time.Second}
	cause := errors.New("429 too many requests")

	t.Run("rate limited with retries left", func(t *testing.T) {
		decision := policy.decide(RateLimited(cause), 1)
		assert.True(t, decision.retry)
		assert.Equal(t, 20*time.Millisecond, decision.backoff)
		assert.NoError(t, decision.err)
	})

	t.Run("rate limited without retries left", func(t *testing.T) {
		decision := policy.decide(RateLimited(cause), 2)
		assert.False(t, decision.retry)
		assert.ErrorIs(t, decision.err, ErrRetriesExhausted)
		assert.ErrorIs(t, decision.err, cause)
		assert.Contains(t, decision.err.Error(), "failed after 2 retries")
	})

	t.Run("other failure", func(t *testing.T) {
		decision := policy.decide(cause, 0)
		assert.False(t, decision.retry)
		assert.Zero(t, decision.backoff)
		assert.Same(t, cause, decision.err)
	})
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	assert.Equal(t, FailureOther, Classify(cause))
	assert.Equal(t, FailureRateLimited, Classify(RateLimited(cause)))
	assert.Equal(t, FailureRateLimited, Classify(RateLimited(nil)))
	assert.True(t, errors.Is(RateLimited(cause), cause), "original cause should stay reachable")
	assert.Equal(t, "rate-limit", FailureRateLimited.String())
	assert.Equal(t, "other", FailureOther.String())
}
