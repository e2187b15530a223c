package task

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// fastConfig returns a config that dispatches quickly enough for unit tests
func fastConfig() QueueConfig {
	return QueueConfig{
		InitialRequestsPerSecond: 1000,
		RateCheckInterval:        0,
		Retry: RetryPolicy{
			MaxRetries: 5,
			MinBackoff: time.Millisecond,
			MaxBackoff: 4 * time.Millisecond,
		},
	}
}

// recordSleeps replaces the backoff sleep with a recorder that returns immediately
func recordSleeps[T any](q *RateLimitedQueue[T]) *[]time.Duration {
	var mu sync.Mutex
	delays := []time.Duration{}
	q.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err()
	}
	return &delays
}

func waitResult[T any](t *testing.T, f *Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	value, err := f.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "timed out waiting for task")
	return value, err
}

func TestRateLimitedQueue_ResolvesInSubmissionOrder(t *testing.T) {
	queue := NewRateLimitedQueue[int](fastConfig(), setupTestLogger())
	defer queue.Close()

	var mu sync.Mutex
	var order []int

	futures := make([]*Future[int], 0, 10)
	for i := 0; i < 10; i++ {
		i := i
		f, err := queue.Enqueue(func(ctx context.Context) (int, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i * 10, nil
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}
	assert.Equal(t, 10, queue.Size(), "nothing should run before Start")

	queue.Start()

	for i, f := range futures {
		value, err := waitResult(t, f)
		require.NoError(t, err)
		assert.Equal(t, i*10, value)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
	assert.Equal(t, 0, queue.Size())
}

func TestRateLimitedQueue_EnforcesSpacing(t *testing.T) {
	config := fastConfig()
	config.InitialRequestsPerSecond = 25 // 40ms spacing
	queue := NewRateLimitedQueue[time.Time](config, setupTestLogger())
	defer queue.Close()
	queue.Start()

	const n = 5
	futures := make([]*Future[time.Time], 0, n)
	for i := 0; i < n; i++ {
		f, err := queue.Enqueue(func(ctx context.Context) (time.Time, error) {
			return time.Now(), nil
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}

	stamps := make([]time.Time, 0, n)
	for _, f := range futures {
		stamp, err := waitResult(t, f)
		require.NoError(t, err)
		stamps = append(stamps, stamp)
	}

	total := stamps[n-1].Sub(stamps[0])
	average := total / time.Duration(n-1)
	assert.GreaterOrEqual(t, average, 40*time.Millisecond-2*time.Millisecond,
		"average dispatch spacing should respect the ceiling")
}

func TestRateLimitedQueue_RetriesRateLimitedWithBackoff(t *testing.T) {
	config := fastConfig()
	config.Retry = RetryPolicy{MaxRetries: 5, MinBackoff: time.Second, MaxBackoff: 3 * time.Second}
	queue := NewRateLimitedQueue[string](config, setupTestLogger())
	delays := recordSleeps(queue)
	defer queue.Close()
	queue.Start()

	var attempts atomic.Int32
	f, err := queue.Enqueue(func(ctx context.Context) (string, error) {
		if attempts.Add(1) <= 3 {
			return "", RateLimited(errors.New("429"))
		}
		return "ok", nil
	})
	require.NoError(t, err)

	value, err := waitResult(t, f)
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, int32(4), attempts.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, *delays)
}

func TestRateLimitedQueue_RejectsAfterMaxRetries(t *testing.T) {
	config := fastConfig()
	config.Retry.MaxRetries = 3
	queue := NewRateLimitedQueue[string](config, setupTestLogger())
	delays := recordSleeps(queue)
	defer queue.Close()
	queue.Start()

	var attempts atomic.Int32
	cause := errors.New("too many requests")
	f, err := queue.Enqueue(func(ctx context.Context) (string, error) {
		attempts.Add(1)
		return "", RateLimited(cause)
	})
	require.NoError(t, err)

	_, err = waitResult(t, f)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "3 retries")
	assert.Equal(t, int32(4), attempts.Load(), "one initial attempt plus three retries")
	assert.Len(t, *delays, 3)
}

func TestRateLimitedQueue_OtherFailureIsNotRetried(t *testing.T) {
	queue := NewRateLimitedQueue[string](fastConfig(), setupTestLogger())
	delays := recordSleeps(queue)
	defer queue.Close()
	queue.Start()

	var attempts atomic.Int32
	cause := errors.New("malformed response")
	f, err := queue.Enqueue(func(ctx context.Context) (string, error) {
		attempts.Add(1)
		return "", cause
	})
	require.NoError(t, err)

	_, err = waitResult(t, f)
	assert.Same(t, cause, err, "the original error should reach the caller unchanged")
	assert.Equal(t, int32(1), attempts.Load())
	assert.Empty(t, *delays, "no backoff should be added for permanent failures")
}

func TestRateLimitedQueue_PanicIsPermanentFailure(t *testing.T) {
	queue := NewRateLimitedQueue[int](fastConfig(), setupTestLogger())
	defer queue.Close()
	queue.Start()

	f, err := queue.Enqueue(func(ctx context.Context) (int, error) {
		panic("unexpected")
	})
	require.NoError(t, err)

	_, err = waitResult(t, f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task panicked: unexpected")
	assert.Equal(t, FailureOther, Classify(err))

	// the loop survives the panic
	next, err := queue.Enqueue(func(ctx context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	value, err := waitResult(t, next)
	require.NoError(t, err)
	assert.Equal(t, 7, value)
}

func TestRateLimitedQueue_RetriedTaskRunsBeforeLaterTasks(t *testing.T) {
	queue := NewRateLimitedQueue[string](fastConfig(), setupTestLogger())
	recordSleeps(queue)
	defer queue.Close()

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	var firstAttempts atomic.Int32
	first, err := queue.Enqueue(func(ctx context.Context) (string, error) {
		record("first")
		if firstAttempts.Add(1) == 1 {
			return "", RateLimited(nil)
		}
		return "first", nil
	})
	require.NoError(t, err)
	second, err := queue.Enqueue(func(ctx context.Context) (string, error) {
		record("second")
		return "second", nil
	})
	require.NoError(t, err)

	queue.Start()

	_, err = waitResult(t, first)
	require.NoError(t, err)
	_, err = waitResult(t, second)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "first", "second"}, order)
}

func TestRateLimitedQueue_RefreshesRateEveryInterval(t *testing.T) {
	var fetches atomic.Int32
	config := fastConfig()
	config.RateCheckInterval = 3
	config.RateFetcher = func(ctx context.Context) (float64, error) {
		n := fetches.Add(1)
		if n == 2 {
			return 0, errors.New("discovery endpoint down")
		}
		return 500 + float64(n), nil
	}

	queue := NewRateLimitedQueue[int](config, setupTestLogger())
	defer queue.Close()

	futures := make([]*Future[int], 0, 7)
	for i := 0; i < 7; i++ {
		f, err := queue.Enqueue(func(ctx context.Context) (int, error) { return 0, nil })
		require.NoError(t, err)
		futures = append(futures, f)
	}
	queue.Start()
	for _, f := range futures {
		_, err := waitResult(t, f)
		require.NoError(t, err)
	}

	// checks happen before the 4th and 7th dispatch
	assert.Equal(t, int32(2), fetches.Load())
	assert.Equal(t, 501.0, queue.Rate(), "a failed refresh should keep the previous ceiling")
}

func TestRateLimitedQueue_RefreshCountsAttemptsNotSuccesses(t *testing.T) {
	var fetches atomic.Int32
	config := fastConfig()
	config.RateCheckInterval = 2
	config.RateFetcher = func(ctx context.Context) (float64, error) {
		fetches.Add(1)
		return 800, nil
	}

	queue := NewRateLimitedQueue[int](config, setupTestLogger())
	recordSleeps(queue)
	defer queue.Close()
	queue.Start()

	var attempts atomic.Int32
	f, err := queue.Enqueue(func(ctx context.Context) (int, error) {
		if attempts.Add(1) < 3 {
			return 0, RateLimited(nil)
		}
		return 1, nil
	})
	require.NoError(t, err)
	_, err = waitResult(t, f)
	require.NoError(t, err)

	// three attempts of a single task: the counter hits zero after the second one
	assert.Equal(t, int32(1), fetches.Load())
	assert.Equal(t, 800.0, queue.Rate())
}

func TestRateLimitedQueue_RefreshRateWithoutFetcherRestoresInitial(t *testing.T) {
	config := fastConfig()
	config.InitialRequestsPerSecond = 3
	queue := NewRateLimitedQueue[int](config, setupTestLogger())
	defer queue.Close()

	queue.limiter.SetRate(9)
	require.NoError(t, queue.RefreshRate(context.Background()))
	assert.Equal(t, 3.0, queue.Rate())
}

func TestRateLimitedQueue_Hooks(t *testing.T) {
	queue := NewRateLimitedQueue[int](fastConfig(), setupTestLogger())
	recordSleeps(queue)
	defer queue.Close()

	var successes []int
	var kinds []FailureKind
	var mu sync.Mutex
	queue.SetSuccessHandler(func(value int) {
		mu.Lock()
		successes = append(successes, value)
		mu.Unlock()
	})
	queue.SetErrorHandler(func(err error, kind FailureKind) {
		mu.Lock()
		kinds = append(kinds, kind)
		mu.Unlock()
	})
	queue.Start()

	var attempts atomic.Int32
	ok, err := queue.Enqueue(func(ctx context.Context) (int, error) {
		if attempts.Add(1) == 1 {
			return 0, RateLimited(nil)
		}
		return 42, nil
	})
	require.NoError(t, err)
	bad, err := queue.Enqueue(func(ctx context.Context) (int, error) { return 0, errors.New("nope") })
	require.NoError(t, err)

	_, _ = waitResult(t, ok)
	_, _ = waitResult(t, bad)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{42}, successes)
	assert.Equal(t, []FailureKind{FailureRateLimited, FailureOther}, kinds)
}

func TestRateLimitedQueue_Clear(t *testing.T) {
	queue := NewRateLimitedQueue[int](fastConfig(), setupTestLogger())

	f, err := queue.Enqueue(func(ctx context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	_, err = queue.Enqueue(func(ctx context.Context) (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, queue.Size())

	queue.Clear()
	assert.Equal(t, 0, queue.Size())

	queue.Start()
	select {
	case <-f.Done():
		t.Fatal("cleared task should never resolve")
	case <-time.After(50 * time.Millisecond):
	}

	// cleared tasks are not resolved by Close either
	queue.Close()
	select {
	case <-f.Done():
		t.Fatal("cleared task should never resolve")
	default:
	}
}

func TestRateLimitedQueue_Close(t *testing.T) {
	config := fastConfig()
	config.InitialRequestsPerSecond = 1
	queue := NewRateLimitedQueue[int](config, setupTestLogger())
	queue.Start()

	started := make(chan struct{})
	inFlight, err := queue.Enqueue(func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.NoError(t, err)
	pending, err := queue.Enqueue(func(ctx context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	<-started
	queue.Close()

	_, err = waitResult(t, inFlight)
	assert.ErrorIs(t, err, context.Canceled, "the in-flight task should see its context cancelled")
	_, err = waitResult(t, pending)
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, err = queue.Enqueue(func(ctx context.Context) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, ErrQueueClosed)

	// closing twice is harmless
	queue.Close()
}

func TestRateLimitedQueue_StartIsIdempotent(t *testing.T) {
	queue := NewRateLimitedQueue[int](fastConfig(), setupTestLogger())
	defer queue.Close()

	var concurrent, maxConcurrent atomic.Int32
	queue.Start()
	queue.Start()
	queue.Start()

	futures := make([]*Future[int], 0, 20)
	for i := 0; i < 20; i++ {
		f, err := queue.Enqueue(func(ctx context.Context) (int, error) {
			n := concurrent.Add(1)
			for {
				m := maxConcurrent.Load()
				if n <= m || maxConcurrent.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			concurrent.Add(-1)
			return 0, nil
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}
	for _, f := range futures {
		_, err := waitResult(t, f)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), maxConcurrent.Load(), "only one task should ever be in flight")
}
