package task

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// MinRequestsPerSecond is the lowest ceiling a RateLimiter accepts.
const MinRequestsPerSecond = 1.0

// RateLimiter enforces a minimum spacing of 1s/ceiling between dispatches.
//
// It is backed by a token bucket with a burst of one, which means the bucket
// itself remembers when the last request went out. The queue that owns the
// limiter dispatches one task at a time, so Acquire never has more than one
// waiter; SetRate may be called from anywhere.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter with the given requests-per-second ceiling,
// clamped to MinRequestsPerSecond.
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(clampRate(requestsPerSecond)), 1),
	}
}

// Acquire blocks until issuing a request would not exceed the ceiling and
// records the dispatch. It returns the context error if ctx ends first.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// SetRate replaces the ceiling. Values below MinRequestsPerSecond are clamped.
func (l *RateLimiter) SetRate(requestsPerSecond float64) {
	l.limiter.SetLimit(rate.Limit(clampRate(requestsPerSecond)))
}

// Rate returns the current ceiling in requests per second.
func (l *RateLimiter) Rate() float64 {
	return float64(l.limiter.Limit())
}

// Interval returns the minimum spacing between two dispatches at the current ceiling.
func (l *RateLimiter) Interval() time.Duration {
	return time.Duration(float64(time.Second) / l.Rate())
}

func clampRate(requestsPerSecond float64) float64 {
	if math.IsNaN(requestsPerSecond) || requestsPerSecond < MinRequestsPerSecond {
		return MinRequestsPerSecond
	}
	return requestsPerSecond
}
