package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-deckgen/internal/redact"
)

// Common errors returned by queue backends
var (
	// ErrJobNotFound is returned when a job ID does not exist in the queue
	ErrJobNotFound = errors.New("job not found")

	// ErrEmptyJobName is returned when a job is added without a name
	ErrEmptyJobName = errors.New("job name cannot be empty")

	// ErrQueueClosed is returned when the queue has been closed
	ErrQueueClosed = errors.New("job queue is closed")
)

// Counts maps every status to the number of jobs in it
type Counts map[Status]int

// Total returns the number of jobs in any status
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Finished returns the number of jobs that will not run again
func (c Counts) Finished() int {
	return c[StatusCompleted] + c[StatusFailed]
}

// Pending returns the number of jobs that still have work ahead of them
func (c Counts) Pending() int {
	pending := 0
	for status, n := range c {
		if status.IsPending() {
			pending += n
		}
	}
	return pending
}

// Tally renders a compact per-status summary like "w=3 a=1 d=0 p=0 c=10 f=2".
func (c Counts) Tally() string {
	parts := make([]string, 0, len(AllStatuses))
	for _, status := range AllStatuses {
		parts = append(parts, fmt.Sprintf("%c=%d", status[0], c[status]))
	}
	return strings.Join(parts, " ")
}

// NewCounts returns Counts with every known status present
func NewCounts() Counts {
	counts := make(Counts, len(AllStatuses))
	for _, status := range AllStatuses {
		counts[status] = 0
	}
	return counts
}

// Queue is a durable job broker shared by producers and consumers.
type Queue interface {
	// Name returns the queue name
	Name() string

	// AddJob stores a single waiting job
	AddJob(ctx context.Context, name string, payload any, opts JobOptions) (*Job, error)

	// AddJobsBulk stores several waiting jobs atomically
	AddJobsBulk(ctx context.Context, specs []NewJob) ([]*Job, error)

	// GetJobs lists jobs in creation order, restricted to the given statuses if any
	GetJobs(ctx context.Context, statuses ...Status) ([]*Job, error)

	// GetJobCounts returns the number of jobs per status; every status is present
	GetJobCounts(ctx context.Context) (Counts, error)

	// Claim marks the oldest runnable job active and returns it.
	// It returns nil without error when nothing is runnable.
	Claim(ctx context.Context) (*Job, error)

	// Complete marks an active job completed
	Complete(ctx context.Context, id uuid.UUID) error

	// Fail records a failed attempt. The job is delayed for redelivery while
	// attempts remain, otherwise it is marked failed.
	Fail(ctx context.Context, id uuid.UUID, reason error) error

	// RequeueActive moves jobs that have been active for longer than olderThan
	// back to waiting. A zero duration requeues every active job.
	RequeueActive(ctx context.Context, olderThan time.Duration) (int, error)

	// Close releases the resources held by the queue
	Close() error
}

// FailureMessage returns the text stored as a job's last error, with
// credentials masked.
func FailureMessage(reason error) string {
	if reason == nil {
		return "unknown error"
	}
	return redact.Error(reason)
}

// NextState computes the status and next run time of a job after a failed
// attempt has been counted.
func NextState(job *Job, now time.Time) (Status, time.Time) {
	if job.Attempts >= job.MaxAttempts {
		return StatusFailed, job.RunAt
	}
	return StatusDelayed, now.Add(RetryDelay(job.Backoff, job.Attempts))
}
