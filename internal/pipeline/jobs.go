package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-deckgen/internal/domain"
	"github.com/phrazzld/scry-deckgen/internal/jobqueue"
	"golang.org/x/sync/errgroup"
)

// Job names used on the durable queues
const (
	TranslateJobName  = "translate"
	SynthesizeJobName = "synthesize"
)

// DefaultPollInterval is how long an idle consumer waits before claiming again
const DefaultPollInterval = 250 * time.Millisecond

// TranslatePayload is the payload of a translate job
type TranslatePayload struct {
	Word string `json:"word"`
}

// SynthesizePayload is the payload of a synthesize job
type SynthesizePayload struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

// AudioRequest is the payload of an events.AudioRequested event
type AudioRequest struct {
	Word  string             `json:"word"`
	Clips []domain.AudioClip `json:"clips"`
}

// TranslationFailure is the payload of an events.TranslationFailed event
type TranslationFailure struct {
	Word             string `json:"word"`
	Error            string `json:"error"`
	RetriesExhausted bool   `json:"retries_exhausted"`
}

// jobHandler processes one claimed job; a nil error completes it
type jobHandler func(ctx context.Context, job *jobqueue.Job) error

// consumer claims jobs from a queue with a fixed number of workers
type consumer struct {
	queue   jobqueue.Queue
	workers int
	poll    time.Duration
	handle  jobHandler
	logger  *slog.Logger
}

// run starts the workers and blocks until ctx ends.
func (c *consumer) run(ctx context.Context) error {
	workers := c.workers
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		worker := i
		g.Go(func() error {
			c.loop(ctx, worker)
			return nil
		})
	}
	return g.Wait()
}

func (c *consumer) loop(ctx context.Context, worker int) {
	logger := c.logger.With("worker_id", worker)
	logger.Debug("worker started")
	defer logger.Debug("worker stopped")

	for ctx.Err() == nil {
		job, err := c.queue.Claim(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("failed to claim job", "error", err)
			}
			wait(ctx, c.poll)
			continue
		}
		if job == nil {
			wait(ctx, c.poll)
			continue
		}

		settle(ctx, c.queue, job, c.handle(ctx, job), logger)
	}
}

// settle completes or fails a job after its handler ran. A job interrupted by
// shutdown stays active and is requeued when the stage starts again.
func settle(ctx context.Context, queue jobqueue.Queue, job *jobqueue.Job, err error, logger *slog.Logger) {
	logger = logger.With("job_id", job.ID, "job_name", job.Name)

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		logger.Info("job interrupted by shutdown, leaving it for recovery")
		return
	}

	// the outcome is recorded even during shutdown
	settleCtx := context.WithoutCancel(ctx)

	if err == nil {
		if cerr := queue.Complete(settleCtx, job.ID); cerr != nil {
			logger.Error("failed to complete job", "error", cerr)
		}
		return
	}

	logger.Warn("job failed", "error", err, "attempt", job.Attempts+1, "max_attempts", job.MaxAttempts)
	if ferr := queue.Fail(settleCtx, job.ID, err); ferr != nil {
		logger.Error("failed to record job failure", "error", ferr)
	}
}

// recoverActive requeues jobs left active by a previous process.
func recoverActive(ctx context.Context, queue jobqueue.Queue, logger *slog.Logger) error {
	n, err := queue.RequeueActive(ctx, 0)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("requeued jobs left active by a previous run", "queue", queue.Name(), "count", n)
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
