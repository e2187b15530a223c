package jobqueue

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/google/uuid"
)

// MetricLabels are the label names expected by the collectors passed to
// NewInstrumentingMiddleware.
var MetricLabels = []string{"queue", "method", "error"}

// instrumentingMiddleware wraps a Queue and records request metrics
type instrumentingMiddleware struct {
	reqCount    metrics.Counter
	reqDuration metrics.Histogram
	next        Queue
}

// NewInstrumentingMiddleware returns a Queue that counts and times every
// call made to next, labelled by queue, method and error.
func NewInstrumentingMiddleware(reqCount metrics.Counter, reqDuration metrics.Histogram, next Queue) Queue {
	return &instrumentingMiddleware{
		reqCount:    reqCount,
		reqDuration: reqDuration,
		next:        next,
	}
}

func (m *instrumentingMiddleware) observe(method string, err error, startTime time.Time) {
	labels := []string{
		"queue", m.next.Name(),
		"method", method,
		"error", strconv.FormatBool(err != nil),
	}
	m.reqCount.With(labels...).Add(1)
	m.reqDuration.With(labels...).Observe(time.Since(startTime).Seconds())
}

// Name ...
func (m *instrumentingMiddleware) Name() string {
	return m.next.Name()
}

// AddJob ...
func (m *instrumentingMiddleware) AddJob(ctx context.Context, name string, payload any, opts JobOptions) (job *Job, err error) {
	defer func(startTime time.Time) { m.observe("AddJob", err, startTime) }(time.Now())
	return m.next.AddJob(ctx, name, payload, opts)
}

// AddJobsBulk ...
func (m *instrumentingMiddleware) AddJobsBulk(ctx context.Context, specs []NewJob) (jobs []*Job, err error) {
	defer func(startTime time.Time) { m.observe("AddJobsBulk", err, startTime) }(time.Now())
	return m.next.AddJobsBulk(ctx, specs)
}

// GetJobs ...
func (m *instrumentingMiddleware) GetJobs(ctx context.Context, statuses ...Status) (jobs []*Job, err error) {
	defer func(startTime time.Time) { m.observe("GetJobs", err, startTime) }(time.Now())
	return m.next.GetJobs(ctx, statuses...)
}

// GetJobCounts ...
func (m *instrumentingMiddleware) GetJobCounts(ctx context.Context) (counts Counts, err error) {
	defer func(startTime time.Time) { m.observe("GetJobCounts", err, startTime) }(time.Now())
	return m.next.GetJobCounts(ctx)
}

// Claim ...
func (m *instrumentingMiddleware) Claim(ctx context.Context) (job *Job, err error) {
	defer func(startTime time.Time) { m.observe("Claim", err, startTime) }(time.Now())
	return m.next.Claim(ctx)
}

// Complete ...
func (m *instrumentingMiddleware) Complete(ctx context.Context, id uuid.UUID) (err error) {
	defer func(startTime time.Time) { m.observe("Complete", err, startTime) }(time.Now())
	return m.next.Complete(ctx, id)
}

// Fail ...
func (m *instrumentingMiddleware) Fail(ctx context.Context, id uuid.UUID, reason error) (err error) {
	defer func(startTime time.Time) { m.observe("Fail", err, startTime) }(time.Now())
	return m.next.Fail(ctx, id, reason)
}

// RequeueActive ...
func (m *instrumentingMiddleware) RequeueActive(ctx context.Context, olderThan time.Duration) (n int, err error) {
	defer func(startTime time.Time) { m.observe("RequeueActive", err, startTime) }(time.Now())
	return m.next.RequeueActive(ctx, olderThan)
}

// Close ...
func (m *instrumentingMiddleware) Close() error {
	return m.next.Close()
}
