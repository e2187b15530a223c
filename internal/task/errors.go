package task

import (
	"errors"
	"fmt"
)

// Common errors returned by the task queue
var (
	// ErrQueueClosed is returned when a task is submitted to, or still pending in, a closed queue
	ErrQueueClosed = errors.New("task queue is closed")

	// ErrRateLimited marks a failure caused by the external resource throttling requests.
	// Failures wrapping it are retried with backoff; everything else is permanent.
	ErrRateLimited = errors.New("rate limited")

	// ErrRetriesExhausted is returned when a rate-limited task kept failing
	// after the maximum number of retries
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// FailureKind classifies why a task failed.
type FailureKind int

const (
	// FailureOther is a permanent failure; the task is never retried automatically.
	FailureOther FailureKind = iota
	// FailureRateLimited is a throttling failure; the task is retried with backoff.
	FailureRateLimited
)

// String returns the log-friendly name of the failure kind
func (k FailureKind) String() string {
	switch k {
	case FailureRateLimited:
		return "rate-limit"
	default:
		return "other"
	}
}

// rateLimitedError keeps the original cause while matching ErrRateLimited.
type rateLimitedError struct {
	cause error
}

func (e *rateLimitedError) Error() string {
	if e.cause == nil {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%s: %v", ErrRateLimited, e.cause)
}

func (e *rateLimitedError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrRateLimited}
	}
	return []error{ErrRateLimited, e.cause}
}

// RateLimited tags err as a throttling failure. A task returning the result
// is retried with exponential backoff instead of failing immediately.
func RateLimited(err error) error {
	return &rateLimitedError{cause: err}
}

// Classify reports the failure kind of a task error.
func Classify(err error) FailureKind {
	if errors.Is(err, ErrRateLimited) {
		return FailureRateLimited
	}
	return FailureOther
}

// panicError wraps a value recovered from a panicking task.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.value)
}
