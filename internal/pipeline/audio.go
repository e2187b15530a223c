package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/phrazzld/scry-deckgen/internal/jobqueue"
	"github.com/phrazzld/scry-deckgen/internal/mediastore"
	"github.com/phrazzld/scry-deckgen/internal/speech"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// AudioBackend is one speech engine and how many jobs it may run at once
type AudioBackend struct {
	Synthesizer speech.Synthesizer
	Concurrency int
}

// AudioConfig holds settings for the audio stage
type AudioConfig struct {
	// WorkDir receives synthesized files before they are published
	WorkDir string

	// PollInterval is how long an idle pool waits before claiming again
	PollInterval time.Duration
}

// AudioStats counts what the audio stage did
type AudioStats struct {
	Synthesized int64
	Skipped     int64
	Failed      int64
}

// AudioStage drains the audio queue with one worker pool per backend.
type AudioStage struct {
	queue    jobqueue.Queue
	backends []AudioBackend
	store    mediastore.Store
	config   AudioConfig
	logger   *slog.Logger

	synthesized atomic.Int64
	skipped     atomic.Int64
	failed      atomic.Int64
}

// NewAudioStage creates the stage. At least one backend is required.
func NewAudioStage(
	queue jobqueue.Queue,
	backends []AudioBackend,
	store mediastore.Store,
	config AudioConfig,
	logger *slog.Logger,
) (*AudioStage, error) {
	if len(backends) == 0 {
		return nil, errors.New("at least one speech backend is required")
	}
	for i, b := range backends {
		if b.Synthesizer == nil || b.Concurrency < 1 {
			return nil, fmt.Errorf("speech backend %d needs a synthesizer and a positive concurrency", i)
		}
	}
	if config.WorkDir == "" {
		return nil, errors.New("audio work directory cannot be empty")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	return &AudioStage{
		queue:    queue,
		backends: backends,
		store:    store,
		config:   config,
		logger:   logger.With("component", "audio_stage", "queue", queue.Name()),
	}, nil
}

// Stats returns the counters accumulated so far
func (s *AudioStage) Stats() AudioStats {
	return AudioStats{
		Synthesized: s.synthesized.Load(),
		Skipped:     s.skipped.Load(),
		Failed:      s.failed.Load(),
	}
}

// Run recovers abandoned jobs and runs every backend pool until ctx ends.
// Jobs in flight are allowed to finish before Run returns.
func (s *AudioStage) Run(ctx context.Context) error {
	if err := recoverActive(ctx, s.queue, s.logger); err != nil {
		return fmt.Errorf("failed to recover audio jobs: %w", err)
	}
	if err := os.MkdirAll(s.config.WorkDir, 0o755); err != nil {
		return fmt.Errorf("failed to create audio work directory: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, backend := range s.backends {
		backend := backend
		g.Go(func() error {
			return s.runPool(gctx, backend)
		})
	}

	err := g.Wait()
	stats := s.Stats()
	s.logger.InfoContext(ctx, "audio stage stopped",
		"synthesized", stats.Synthesized,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
	return err
}

// runPool claims jobs while a slot is free. It blocks until ctx ends and
// every job it started has settled.
func (s *AudioStage) runPool(ctx context.Context, backend AudioBackend) error {
	logger := s.logger.With("backend", backend.Synthesizer.Name())
	sem := semaphore.NewWeighted(int64(backend.Concurrency))
	logger.InfoContext(ctx, "audio pool started", "concurrency", backend.Concurrency)

	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if ctx.Err() != nil {
			sem.Release(1)
			break
		}

		job, err := s.queue.Claim(ctx)
		if err != nil || job == nil {
			sem.Release(1)
			if err != nil && ctx.Err() == nil {
				logger.ErrorContext(ctx, "failed to claim job", "error", err)
			}
			wait(ctx, s.config.PollInterval)
			continue
		}

		go func(job *jobqueue.Job) {
			defer sem.Release(1)
			settle(ctx, s.queue, job, s.handle(ctx, backend.Synthesizer, job), logger)
		}(job)
	}

	// wait for in-flight jobs
	_ = sem.Acquire(context.Background(), int64(backend.Concurrency))
	logger.Info("audio pool stopped")
	return nil
}

// handle processes one synthesize job
func (s *AudioStage) handle(ctx context.Context, synth speech.Synthesizer, job *jobqueue.Job) error {
	var payload SynthesizePayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		s.failed.Add(1)
		return fmt.Errorf("invalid synthesize payload: %w", err)
	}

	exists, err := s.store.Exists(ctx, payload.Filename)
	if err != nil {
		s.failed.Add(1)
		return fmt.Errorf("failed to check %s: %w", payload.Filename, err)
	}
	if exists {
		s.skipped.Add(1)
		return nil
	}

	outPath := filepath.Join(s.config.WorkDir, job.ID.String()+"-"+payload.Filename)
	if err := synth.Synthesize(ctx, payload.Text, outPath); err != nil {
		_ = os.Remove(outPath)
		if ctx.Err() == nil {
			s.failed.Add(1)
		}
		return err
	}

	if err := s.store.Put(ctx, payload.Filename, outPath); err != nil {
		_ = os.Remove(outPath)
		s.failed.Add(1)
		return fmt.Errorf("failed to publish %s: %w", payload.Filename, err)
	}

	s.synthesized.Add(1)
	return nil
}
