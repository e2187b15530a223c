package jobqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue. Jobs do not survive a restart, so it is
// meant for tests and single-run local use.
type MemoryQueue struct {
	name   string
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	jobs   map[uuid.UUID]*Job
	order  []uuid.UUID
	closed bool
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue(name string, logger *slog.Logger) *MemoryQueue {
	return &MemoryQueue{
		name:   name,
		logger: logger.With("component", "memory_job_queue", "queue", name),
		now:    time.Now,
		jobs:   make(map[uuid.UUID]*Job),
	}
}

// Name implements Queue.
func (q *MemoryQueue) Name() string {
	return q.name
}

// AddJob implements Queue.
func (q *MemoryQueue) AddJob(ctx context.Context, name string, payload any, opts JobOptions) (*Job, error) {
	jobs, err := q.AddJobsBulk(ctx, []NewJob{{Name: name, Payload: payload, Options: opts}})
	if err != nil {
		return nil, err
	}
	return jobs[0], nil
}

// AddJobsBulk implements Queue.
func (q *MemoryQueue) AddJobsBulk(ctx context.Context, specs []NewJob) ([]*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jobs, err := BuildJobs(q.name, specs, q.now())
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	result := make([]*Job, 0, len(jobs))
	for _, job := range jobs {
		q.jobs[job.ID] = job
		q.order = append(q.order, job.ID)
		result = append(result, cloneJob(job))
	}

	q.logger.Debug("jobs added", "count", len(result))
	return result, nil
}

// GetJobs implements Queue.
func (q *MemoryQueue) GetJobs(ctx context.Context, statuses ...Status) ([]*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filter := make(map[Status]bool, len(statuses))
	for _, status := range statuses {
		filter[status] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.promoteDelayed()
	result := make([]*Job, 0, len(q.order))
	for _, id := range q.order {
		job := q.jobs[id]
		if len(filter) > 0 && !filter[job.Status] {
			continue
		}
		result = append(result, cloneJob(job))
	}
	return result, nil
}

// GetJobCounts implements Queue.
func (q *MemoryQueue) GetJobCounts(ctx context.Context) (Counts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.promoteDelayed()
	counts := NewCounts()
	for _, job := range q.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

// Claim implements Queue.
func (q *MemoryQueue) Claim(ctx context.Context) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	q.promoteDelayed()
	for _, id := range q.order {
		job := q.jobs[id]
		if job.Status != StatusWaiting {
			continue
		}
		job.Status = StatusActive
		job.UpdatedAt = q.now()
		return cloneJob(job), nil
	}
	return nil, nil
}

// Complete implements Queue.
func (q *MemoryQueue) Complete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Attempts++
	job.Status = StatusCompleted
	job.LastError = ""
	job.UpdatedAt = q.now()
	return nil
}

// Fail implements Queue.
func (q *MemoryQueue) Fail(ctx context.Context, id uuid.UUID, reason error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}

	now := q.now()
	job.Attempts++
	job.LastError = FailureMessage(reason)
	job.Status, job.RunAt = NextState(job, now)
	job.UpdatedAt = now

	q.logger.Debug("job attempt failed",
		"job_id", id,
		"attempts", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"status", job.Status)
	return nil
}

// RequeueActive implements Queue.
func (q *MemoryQueue) RequeueActive(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	cutoff := now.Add(-olderThan)
	requeued := 0
	for _, job := range q.jobs {
		if job.Status != StatusActive {
			continue
		}
		if olderThan > 0 && job.UpdatedAt.After(cutoff) {
			continue
		}
		job.Status = StatusWaiting
		job.RunAt = now
		job.UpdatedAt = now
		requeued++
	}
	return requeued, nil
}

// Close implements Queue. Reads keep working after Close; writes are rejected.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}

// promoteDelayed moves delayed jobs whose run time has passed back to waiting.
// Callers must hold q.mu.
func (q *MemoryQueue) promoteDelayed() {
	now := q.now()
	for _, job := range q.jobs {
		if job.Status == StatusDelayed && !job.RunAt.After(now) {
			job.Status = StatusWaiting
		}
	}
}

func cloneJob(job *Job) *Job {
	clone := *job
	clone.Payload = append([]byte(nil), job.Payload...)
	return &clone
}
