package task

import (
	"fmt"
	"time"
)

// RetryPolicy decides what happens to a failed task.
type RetryPolicy struct {
	// MaxRetries is how many times a rate-limited task is retried before it is rejected
	MaxRetries int

	// MinBackoff is the delay before the first retry
	MinBackoff time.Duration

	// MaxBackoff caps the exponential growth of the delay
	MaxBackoff time.Duration
}

// DefaultRetryPolicy returns a RetryPolicy with reasonable defaults
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		MinBackoff: time.Second,
		MaxBackoff: time.Minute,
	}
}

// Backoff returns min(MaxBackoff, MinBackoff * 2^retries).
func (p RetryPolicy) Backoff(retries int) time.Duration {
	delay := p.MinBackoff
	for i := 0; i < retries; i++ {
		if delay > p.MaxBackoff/2 {
			return p.MaxBackoff
		}
		delay *= 2
	}
	if delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// retryDecision is the outcome of RetryPolicy.decide.
type retryDecision struct {
	// retry is true when the task goes back to the head of the queue
	retry bool

	// backoff is how long the queue loop pauses before the next dispatch
	backoff time.Duration

	// err is the final error handed to the caller when retry is false
	err error
}

// decide classifies err for a task that has already been retried `retries` times.
func (p RetryPolicy) decide(err error, retries int) retryDecision {
	if Classify(err) != FailureRateLimited {
		return retryDecision{err: err}
	}
	if retries < p.MaxRetries {
		return retryDecision{retry: true, backoff: p.Backoff(retries)}
	}
	return retryDecision{
		err: fmt.Errorf("%w: failed after %d retries: %w", ErrRetriesExhausted, p.MaxRetries, err),
	}
}
