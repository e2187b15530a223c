package redisq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/phrazzld/scry-deckgen/internal/jobqueue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueue_KeyLayout(t *testing.T) {
	t.Parallel()
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	q := NewQueue(client, "", "audio", logger)
	assert.Equal(t, "audio", q.Name())
	assert.Equal(t, "deckgen:audio:jobs", q.jobsKey)
	assert.Equal(t, "deckgen:audio:waiting", q.waitingKey)
	assert.Equal(t, "deckgen:audio:delayed", q.delayedKey)

	custom := NewQueue(client, "run42", "translation", logger)
	assert.Equal(t, "run42:translation:active", custom.activeKey)
	assert.Equal(t, "run42:translation:ids", custom.idsKey)
}

func TestDecodeJob_Invalid(t *testing.T) {
	t.Parallel()

	_, err := decodeJob("{not json")
	assert.Error(t, err)
}

// cancelAfterHook cancels a context once a command addressed to key succeeds
type cancelAfterHook struct {
	key    string
	cancel context.CancelFunc
}

func (h cancelAfterHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h cancelAfterHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		args := cmd.Args()
		if err == nil && len(args) > 3 && args[3] == h.key {
			h.cancel()
		}
		return err
	}
}

func (h cancelAfterHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

// newMiniQueue returns a queue backed by an in-process Redis with a fixed clock
func newMiniQueue(t *testing.T) (*Queue, *redis.Client, *time.Time) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := NewQueue(client, "", "translation", slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }
	return q, client, &now
}

func TestQueue_ClaimInterruptedAfterPop(t *testing.T) {
	t.Parallel()
	q, client, _ := newMiniQueue(t)

	added, err := q.AddJob(context.Background(), "translate", "perro", jobqueue.JobOptions{MaxAttempts: 3})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.AddHook(cancelAfterHook{key: q.waitingKey, cancel: cancel})

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, added.ID, job.ID)
	assert.Equal(t, jobqueue.StatusActive, job.Status)
	assert.Error(t, ctx.Err())

	counts, err := q.GetJobCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[jobqueue.StatusActive])
	assert.Equal(t, 0, counts[jobqueue.StatusWaiting])

	stored, err := q.GetJobs(context.Background(), jobqueue.StatusActive)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, added.ID, stored[0].ID)
}

func TestQueue_RequeueActiveAfterLostWorker(t *testing.T) {
	t.Parallel()
	q, _, now := newMiniQueue(t)
	ctx := context.Background()

	added, err := q.AddJob(ctx, "translate", "gato", jobqueue.JobOptions{MaxAttempts: 3})
	require.NoError(t, err)
	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	// nothing else to claim while the job is active
	next, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	*now = now.Add(time.Minute)
	requeued, err := q.RequeueActive(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)

	counts, err := q.GetJobCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[jobqueue.StatusWaiting])
	assert.Equal(t, 0, counts[jobqueue.StatusActive])

	again, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, added.ID, again.ID)
}

func TestQueue_DelayedJobIsPromoted(t *testing.T) {
	t.Parallel()
	q, _, now := newMiniQueue(t)
	ctx := context.Background()

	added, err := q.AddJob(ctx, "translate", "casa", jobqueue.JobOptions{MaxAttempts: 2, Backoff: time.Second})
	require.NoError(t, err)
	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, q.Fail(ctx, added.ID, errors.New("model unavailable")))

	counts, err := q.GetJobCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[jobqueue.StatusDelayed])

	early, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, early)

	*now = now.Add(2 * time.Second)
	retried, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, retried)
	assert.Equal(t, added.ID, retried.ID)
	assert.Equal(t, 1, retried.Attempts)

	require.NoError(t, q.Complete(ctx, retried.ID))
	counts, err = q.GetJobCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[jobqueue.StatusCompleted])
	assert.Equal(t, 0, counts.Pending())
}
