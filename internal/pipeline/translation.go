package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-deckgen/internal/domain"
	"github.com/phrazzld/scry-deckgen/internal/events"
	"github.com/phrazzld/scry-deckgen/internal/generation"
	"github.com/phrazzld/scry-deckgen/internal/jobqueue"
	"github.com/phrazzld/scry-deckgen/internal/task"
)

// RecordWriter persists finished records
type RecordWriter interface {
	Append(record *domain.Record) error
}

// TaskSubmitter runs translation calls under the shared rate limit.
// *task.RateLimitedQueue[[]domain.Entry] satisfies it.
type TaskSubmitter interface {
	Enqueue(run task.Task[[]domain.Entry]) (*task.Future[[]domain.Entry], error)
}

// TranslationConfig holds settings for the translation stage
type TranslationConfig struct {
	// Concurrency is the number of consumers claiming translate jobs
	Concurrency int

	// AudioExtension is appended to content-addressed audio filenames
	AudioExtension string

	// PollInterval is how long an idle consumer waits before claiming again
	PollInterval time.Duration
}

// TranslationStage turns translate jobs into deck records.
type TranslationStage struct {
	queue      jobqueue.Queue
	tasks      TaskSubmitter
	translator generation.Translator
	deck       RecordWriter
	emitter    events.Emitter
	config     TranslationConfig
	logger     *slog.Logger
}

// NewTranslationStage creates the stage. Nothing runs until Run is called.
func NewTranslationStage(
	queue jobqueue.Queue,
	tasks TaskSubmitter,
	translator generation.Translator,
	deck RecordWriter,
	emitter events.Emitter,
	config TranslationConfig,
	logger *slog.Logger,
) *TranslationStage {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.AudioExtension == "" {
		config.AudioExtension = domain.DefaultAudioExtension
	}
	return &TranslationStage{
		queue:      queue,
		tasks:      tasks,
		translator: translator,
		deck:       deck,
		emitter:    emitter,
		config:     config,
		logger:     logger.With("component", "translation_stage", "queue", queue.Name()),
	}
}

// Run recovers abandoned jobs and consumes the translation queue until ctx ends.
func (s *TranslationStage) Run(ctx context.Context) error {
	if err := recoverActive(ctx, s.queue, s.logger); err != nil {
		return fmt.Errorf("failed to recover translation jobs: %w", err)
	}

	s.logger.InfoContext(ctx, "translation stage started", "concurrency", s.config.Concurrency)
	c := &consumer{
		queue:   s.queue,
		workers: s.config.Concurrency,
		poll:    s.config.PollInterval,
		handle:  s.handle,
		logger:  s.logger,
	}
	err := c.run(ctx)
	s.logger.InfoContext(ctx, "translation stage stopped")
	return err
}

// handle processes one translate job
func (s *TranslationStage) handle(ctx context.Context, job *jobqueue.Job) error {
	var payload TranslatePayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("invalid translate payload: %w", err)
	}

	record, err := s.Translate(ctx, payload.Word)
	if err != nil {
		if ctx.Err() == nil {
			s.emitFailure(ctx, payload.Word, err)
		}
		return err
	}

	if err := s.deck.Append(record); err != nil {
		return fmt.Errorf("failed to write record for %q: %w", record.Word, err)
	}

	event, err := events.NewEvent(events.AudioRequested, AudioRequest{
		Word:  record.Word,
		Clips: record.AudioClips(),
	})
	if err != nil {
		return fmt.Errorf("failed to build audio event: %w", err)
	}
	if err := s.emitter.Emit(ctx, event); err != nil {
		return fmt.Errorf("failed to request audio for %q: %w", record.Word, err)
	}

	s.logger.InfoContext(ctx, "word translated",
		"word", record.Word,
		"entries", len(record.Entries))
	return nil
}

// Translate submits one word to the rate-limited task queue and builds its
// record. It blocks until the task resolves or ctx ends.
func (s *TranslationStage) Translate(ctx context.Context, word string) (*domain.Record, error) {
	future, err := s.tasks.Enqueue(func(taskCtx context.Context) ([]domain.Entry, error) {
		return s.translator.Translate(taskCtx, word)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit %q: %w", word, err)
	}

	entries, err := future.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to translate %q: %w", word, err)
	}

	return domain.NewRecord(word, entries, s.config.AudioExtension)
}

func (s *TranslationStage) emitFailure(ctx context.Context, word string, cause error) {
	event, err := events.NewEvent(events.TranslationFailed, TranslationFailure{
		Word:             word,
		Error:            cause.Error(),
		RetriesExhausted: errors.Is(cause, task.ErrRetriesExhausted),
	})
	if err != nil {
		return
	}
	_ = s.emitter.Emit(ctx, event)
}
