package task

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a unit of work executed by a RateLimitedQueue. A returned error that
// wraps ErrRateLimited (see RateLimited) is retried with backoff; any other
// error rejects the task immediately.
type Task[T any] func(ctx context.Context) (T, error)

// RateFetcher reports the requests-per-second ceiling currently allowed by
// the external resource.
type RateFetcher func(ctx context.Context) (float64, error)

// QueueConfig holds configuration for a RateLimitedQueue
type QueueConfig struct {
	// InitialRequestsPerSecond is the ceiling used until the first refresh
	InitialRequestsPerSecond float64

	// RateCheckInterval is how many attempted executions pass between ceiling
	// refreshes. Zero disables automatic refreshes.
	RateCheckInterval int

	// RateFetcher obtains a new ceiling. If nil, the ceiling never changes on its own.
	RateFetcher RateFetcher

	// Retry controls how rate-limited failures are retried
	Retry RetryPolicy
}

// DefaultQueueConfig returns a QueueConfig with reasonable defaults
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		InitialRequestsPerSecond: 1,
		RateCheckInterval:        10,
		Retry:                    DefaultRetryPolicy(),
	}
}

// Future is the eventual result of an enqueued task.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Done returns a channel that is closed once the task succeeded or was permanently rejected.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task resolves or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) resolve(value T, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// queuedTask lives either in the pending list or in flight, never both.
// The retry counter travels with the item so re-queues keep the per-task count.
type queuedTask[T any] struct {
	run     Task[T]
	future  *Future[T]
	retries int
}

// RateLimitedQueue executes tasks one at a time in FIFO order, spacing
// dispatches with a RateLimiter and retrying rate-limited failures.
//
// A retried task is put back at the head of the pending list, so it runs
// before anything enqueued after it. The processing loop is a single
// goroutine started by Start; while nothing is pending it blocks without polling.
type RateLimitedQueue[T any] struct {
	config  QueueConfig
	limiter *RateLimiter
	logger  *slog.Logger

	// mu protects pending and closed
	mu      sync.Mutex
	pending *list.List
	closed  bool

	// wake is signalled whenever a task is enqueued
	wake chan struct{}

	// running guards against starting a second processing loop
	running atomic.Bool

	// requestsUntilNextCheck is only touched by the processing loop
	requestsUntilNextCheck int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	onSuccess func(value T)
	onError   func(err error, kind FailureKind)

	// sleep pauses the loop after a rate-limited failure
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimitedQueue creates a queue with the specified configuration.
// Call Start to begin processing.
func NewRateLimitedQueue[T any](config QueueConfig, logger *slog.Logger) *RateLimitedQueue[T] {
	if config.RateCheckInterval < 0 {
		config.RateCheckInterval = 0
	}
	defaults := DefaultRetryPolicy()
	if config.Retry.MaxRetries < 0 {
		config.Retry.MaxRetries = 0
	}
	if config.Retry.MinBackoff <= 0 {
		config.Retry.MinBackoff = defaults.MinBackoff
	}
	if config.Retry.MaxBackoff < config.Retry.MinBackoff {
		config.Retry.MaxBackoff = config.Retry.MinBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RateLimitedQueue[T]{
		config:                 config,
		limiter:                NewRateLimiter(config.InitialRequestsPerSecond),
		logger:                 logger.With("component", "rate_limited_queue"),
		pending:                list.New(),
		wake:                   make(chan struct{}, 1),
		requestsUntilNextCheck: config.RateCheckInterval,
		ctx:                    ctx,
		cancel:                 cancel,
		done:                   make(chan struct{}),
		sleep:                  sleepContext,
	}
}

// SetSuccessHandler registers a callback invoked with every successful result.
// It must be called before Start.
func (q *RateLimitedQueue[T]) SetSuccessHandler(handler func(value T)) {
	q.onSuccess = handler
}

// SetErrorHandler registers a callback invoked on every failed attempt,
// including attempts that will be retried. It must be called before Start.
func (q *RateLimitedQueue[T]) SetErrorHandler(handler func(err error, kind FailureKind)) {
	q.onError = handler
}

// Enqueue appends a task to the tail of the pending list and returns a
// Future for its result. It fails with ErrQueueClosed after Close.
func (q *RateLimitedQueue[T]) Enqueue(run Task[T]) (*Future[T], error) {
	item := &queuedTask[T]{run: run, future: newFuture[T]()}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	q.pending.PushBack(item)
	size := q.pending.Len()
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	q.logger.Debug("task enqueued", "queue_len", size)
	return item.future, nil
}

// Start launches the processing loop. Calling it more than once has no effect.
func (q *RateLimitedQueue[T]) Start() {
	if !q.running.CompareAndSwap(false, true) {
		return
	}
	go q.run()
}

// Close stops accepting tasks, cancels the context of the task in flight and
// waits for the processing loop to exit. Tasks still pending are rejected
// with ErrQueueClosed.
func (q *RateLimitedQueue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	if q.running.Load() {
		<-q.done
	}

	q.mu.Lock()
	abandoned := q.pending
	q.pending = list.New()
	q.mu.Unlock()

	var zero T
	for e := abandoned.Front(); e != nil; e = e.Next() {
		e.Value.(*queuedTask[T]).future.resolve(zero, ErrQueueClosed)
	}
	q.logger.Info("task queue closed", "rejected_pending", abandoned.Len())
}

// Size returns the number of pending tasks, excluding the one in flight.
func (q *RateLimitedQueue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Clear discards every pending task without resolving it. Futures of
// discarded tasks never complete, so this is only meant for tearing the
// queue down; callers waiting on them need their own timeout.
func (q *RateLimitedQueue[T]) Clear() {
	q.mu.Lock()
	q.pending = list.New()
	q.mu.Unlock()
}

// Rate returns the current requests-per-second ceiling.
func (q *RateLimitedQueue[T]) Rate() float64 {
	return q.limiter.Rate()
}

// RefreshRate asks the configured RateFetcher for a new ceiling. Without a
// fetcher the initial ceiling is restored. On failure the error is logged and
// returned, and the previous ceiling stays in force.
func (q *RateLimitedQueue[T]) RefreshRate(ctx context.Context) error {
	if q.config.RateFetcher == nil {
		q.limiter.SetRate(q.config.InitialRequestsPerSecond)
		return nil
	}

	rps, err := q.config.RateFetcher(ctx)
	if err != nil {
		q.logger.Error("failed to update rate limit, keeping current ceiling",
			"error", err,
			"requests_per_second", q.limiter.Rate())
		return err
	}

	q.limiter.SetRate(rps)
	q.logger.Info("updated rate limit", "requests_per_second", q.limiter.Rate())
	return nil
}

// run is the processing loop
func (q *RateLimitedQueue[T]) run() {
	defer close(q.done)

	q.logger.Debug("starting queue loop")
	for q.waitForWork() {
		q.refreshRateIfDue()

		item := q.popFront()
		if item == nil {
			// cleared while refreshing
			continue
		}

		if err := q.limiter.Acquire(q.ctx); err != nil {
			q.pushFront(item)
			break
		}

		value, err := q.execute(item)
		if err == nil {
			if q.onSuccess != nil {
				q.onSuccess(value)
			}
			item.future.resolve(value, nil)
			continue
		}

		if !q.handleFailure(item, err) {
			break
		}
	}
	q.logger.Debug("stopping queue loop")
}

// waitForWork blocks until a task is pending. It returns false once the queue is closed.
func (q *RateLimitedQueue[T]) waitForWork() bool {
	for {
		q.mu.Lock()
		closed, size := q.closed, q.pending.Len()
		q.mu.Unlock()

		if closed {
			return false
		}
		if size > 0 {
			return true
		}

		select {
		case <-q.wake:
		case <-q.ctx.Done():
			return false
		}
	}
}

func (q *RateLimitedQueue[T]) refreshRateIfDue() {
	if q.config.RateFetcher == nil || q.config.RateCheckInterval == 0 || q.requestsUntilNextCheck > 0 {
		return
	}
	// errors are already logged and the previous ceiling is kept
	_ = q.RefreshRate(q.ctx)
	q.requestsUntilNextCheck = q.config.RateCheckInterval
}

// execute runs one attempt of the task. A panic is reported as a permanent failure.
func (q *RateLimitedQueue[T]) execute(item *queuedTask[T]) (value T, err error) {
	if q.config.RateCheckInterval > 0 {
		q.requestsUntilNextCheck--
	}

	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()

	return item.run(q.ctx)
}

// handleFailure resolves or re-queues a failed task. It returns false if the
// loop should stop because the queue is closing.
func (q *RateLimitedQueue[T]) handleFailure(item *queuedTask[T], err error) bool {
	kind := Classify(err)
	if q.onError != nil {
		q.onError(err, kind)
	}

	decision := q.config.Retry.decide(err, item.retries)
	if !decision.retry {
		if kind == FailureRateLimited {
			q.logger.Error("rate-limited task rejected", "error", decision.err)
		} else {
			q.logger.Debug("task failed", "error", err, "reason", kind.String())
		}
		var zero T
		item.future.resolve(zero, decision.err)
		return true
	}

	item.retries++
	q.logger.Warn("rate limit hit, retrying",
		"backoff", decision.backoff,
		"retry", item.retries,
		"max_retries", q.config.Retry.MaxRetries)

	q.pushFront(item)
	return q.sleep(q.ctx, decision.backoff) == nil
}

func (q *RateLimitedQueue[T]) popFront() *queuedTask[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.pending.Front()
	if front == nil {
		return nil
	}
	return q.pending.Remove(front).(*queuedTask[T])
}

func (q *RateLimitedQueue[T]) pushFront(item *queuedTask[T]) {
	q.mu.Lock()
	q.pending.PushFront(item)
	q.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
