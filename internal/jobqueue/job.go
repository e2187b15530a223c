package jobqueue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a job
type Status string

// Possible job status values
const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusDelayed   Status = "delayed"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// AllStatuses lists every status in reporting order
var AllStatuses = []Status{
	StatusWaiting,
	StatusActive,
	StatusDelayed,
	StatusPaused,
	StatusCompleted,
	StatusFailed,
}

// IsPending reports whether a job in this status still has work ahead of it.
func (s Status) IsPending() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusDelayed, StatusPaused:
		return true
	default:
		return false
	}
}

// Job is a unit of work stored in a durable queue
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Queue       string          `json:"queue"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Backoff     time.Duration   `json:"backoff"`
	RunAt       time.Time       `json:"run_at"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// UnmarshalPayload decodes the job payload into the provided structure.
func (j *Job) UnmarshalPayload(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// JobOptions controls delivery of a single job
type JobOptions struct {
	// MaxAttempts is how many times the job is delivered before it is marked failed.
	// Values below 1 mean a single attempt.
	MaxAttempts int

	// Backoff is the delay before the first redelivery; it doubles on every further attempt
	Backoff time.Duration
}

// NewJob describes a job to be added to a queue
type NewJob struct {
	Name    string
	Payload any
	Options JobOptions
}

// newJob builds a waiting job ready to be stored
func newJob(queue string, spec NewJob, now time.Time) (*Job, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, ErrEmptyJobName
	}

	payload, err := json.Marshal(spec.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for job %q: %w", spec.Name, err)
	}

	maxAttempts := spec.Options.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Job{
		ID:          uuid.New(),
		Queue:       queue,
		Name:        spec.Name,
		Payload:     payload,
		Status:      StatusWaiting,
		MaxAttempts: maxAttempts,
		Backoff:     spec.Options.Backoff,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// BuildJobs validates specs and turns them into waiting jobs. Backends use it
// so every implementation assigns IDs and defaults the same way.
func BuildJobs(queue string, specs []NewJob, now time.Time) ([]*Job, error) {
	jobs := make([]*Job, 0, len(specs))
	for _, spec := range specs {
		job, err := newJob(queue, spec, now)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// RetryDelay returns the delay before redelivering a job that has failed
// `attempts` times: Backoff * 2^(attempts-1).
func RetryDelay(backoff time.Duration, attempts int) time.Duration {
	if backoff <= 0 || attempts < 1 {
		return 0
	}
	delay := backoff
	for i := 1; i < attempts && delay < time.Hour; i++ {
		delay *= 2
	}
	return delay
}
