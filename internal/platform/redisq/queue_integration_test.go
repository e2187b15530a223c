//go:build integration

package redisq_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-deckgen/internal/jobqueue"
	"github.com/phrazzld/scry-deckgen/internal/platform/redisq"
	"github.com/phrazzld/scry-deckgen/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newTestQueue isolates every test under its own key prefix
func newTestQueue(t *testing.T) *redisq.Queue {
	t.Helper()
	client := testdb.GetTestRedisWithT(t)
	prefix := "deckgen-test-" + uuid.NewString()
	t.Cleanup(func() {
		ctx := context.Background()
		keys, err := client.Keys(ctx, prefix+":*").Result()
		if err == nil && len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
	})
	return redisq.NewQueue(client, prefix, "audio", setupTestLogger())
}

func TestQueue_Lifecycle(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	added, err := q.AddJobsBulk(ctx, []jobqueue.NewJob{
		{Name: "synthesize", Payload: map[string]string{"text": "pes"}, Options: jobqueue.JobOptions{MaxAttempts: 2}},
		{Name: "synthesize", Payload: map[string]string{"text": "kočka"}},
	})
	require.NoError(t, err)

	first, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, added[0].ID, first.ID)
	require.NoError(t, q.Complete(ctx, first.ID))

	second, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.NoError(t, q.Fail(ctx, second.ID, errors.New("tts failed")))

	none, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	counts, err := q.GetJobCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "w=0 a=0 d=0 p=0 c=1 f=1", counts.Tally())

	jobs, err := q.GetJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, added[0].ID, jobs[0].ID, "jobs are listed in creation order")

	failed, err := q.GetJobs(ctx, jobqueue.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "tts failed", failed[0].LastError)

	assert.ErrorIs(t, q.Complete(ctx, uuid.New()), jobqueue.ErrJobNotFound)
}

func TestQueue_RetryIsRedelivered(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.AddJob(ctx, "synthesize", "pes", jobqueue.JobOptions{MaxAttempts: 3})
	require.NoError(t, err)

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job.ID, errors.New("transient")))

	again, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, again, "zero backoff makes the job runnable immediately")
	assert.Equal(t, job.ID, again.ID)
	assert.Equal(t, 1, again.Attempts)
}

func TestQueue_ConcurrentClaimsAreExclusive(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	specs := make([]jobqueue.NewJob, 30)
	for i := range specs {
		specs[i] = jobqueue.NewJob{Name: "synthesize", Payload: i}
	}
	_, err := q.AddJobsBulk(ctx, specs)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[uuid.UUID]int)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := q.Claim(ctx)
				if err != nil || job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, len(specs))
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
}

func TestQueue_RequeueActive(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.AddJob(ctx, "synthesize", "pes", jobqueue.JobOptions{})
	require.NoError(t, err)
	_, err = q.Claim(ctx)
	require.NoError(t, err)

	n, err := q.RequeueActive(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counts, err := q.GetJobCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[jobqueue.StatusWaiting])
	assert.Zero(t, counts[jobqueue.StatusActive])
}
