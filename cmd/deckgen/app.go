package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-deckgen/internal/api"
	"github.com/phrazzld/scry-deckgen/internal/config"
	"github.com/phrazzld/scry-deckgen/internal/deck"
	"github.com/phrazzld/scry-deckgen/internal/domain"
	"github.com/phrazzld/scry-deckgen/internal/events"
	"github.com/phrazzld/scry-deckgen/internal/generation"
	"github.com/phrazzld/scry-deckgen/internal/jobqueue"
	"github.com/phrazzld/scry-deckgen/internal/mediastore"
	"github.com/phrazzld/scry-deckgen/internal/monitor"
	"github.com/phrazzld/scry-deckgen/internal/pipeline"
	"github.com/phrazzld/scry-deckgen/internal/platform/ratelimits"
	"github.com/phrazzld/scry-deckgen/internal/platform/tts"
	"github.com/phrazzld/scry-deckgen/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config   *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	queues  *queueSet
	tasks   *task.RateLimitedQueue[[]domain.Entry]
	deck    *deck.Writer
	emitter *events.InMemoryEmitter

	translation *pipeline.TranslationStage
	audio       *pipeline.AudioStage
	monitor     *monitor.Monitor

	// translationFailures counts words whose translation was given up
	translationFailures *prometheus.CounterVec
}

// newApplication wires every pipeline component from configuration.
// Nothing runs until Run is called; cleanup releases what was opened.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	translator generation.Translator,
) (app *application, err error) {
	app = &application{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		translationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deckgen",
			Name:      "translation_failures_total",
			Help:      "Words whose translation failed permanently.",
		}, []string{"reason"}),
	}
	defer func() {
		if err != nil {
			app.cleanup()
			app = nil
		}
	}()

	attemptFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deckgen",
		Name:      "translation_attempt_failures_total",
		Help:      "Failed translation attempts, including ones that were retried.",
	}, []string{"kind"})

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		app.translationFailures,
		attemptFailures,
	)

	if app.queues, err = openQueues(ctx, cfg.Queue, app.registry, logger); err != nil {
		return app, err
	}

	app.tasks = newTaskQueue(ctx, cfg.Translator, logger)
	app.tasks.SetErrorHandler(func(_ error, kind task.FailureKind) {
		attemptFailures.WithLabelValues(kind.String()).Inc()
	})

	if app.deck, err = deck.NewWriter(cfg.Deck.CSVPath); err != nil {
		return app, err
	}

	app.emitter = events.NewInMemoryEmitter(logger)
	app.emitter.Subscribe(events.AudioRequested,
		pipeline.NewAudioJobHandler(app.queues.audio, audioJobOptions(cfg), logger))
	app.emitter.Subscribe(events.TranslationFailed, events.HandlerFunc(app.recordTranslationFailure))

	app.translation = pipeline.NewTranslationStage(
		app.queues.translation,
		app.tasks,
		translator,
		app.deck,
		app.emitter,
		pipeline.TranslationConfig{
			Concurrency:    cfg.Translator.Concurrency,
			AudioExtension: cfg.Audio.Extension,
		},
		logger,
	)

	backends, err := newSpeechBackends(cfg.Audio, logger)
	if err != nil {
		return app, err
	}
	store, err := newMediaStore(ctx, cfg.Media, logger)
	if err != nil {
		return app, err
	}
	app.audio, err = pipeline.NewAudioStage(app.queues.audio, backends, store, pipeline.AudioConfig{
		WorkDir: cfg.Audio.WorkDir,
	}, logger)
	if err != nil {
		return app, fmt.Errorf("failed to create audio stage: %w", err)
	}

	app.monitor, err = monitor.New(
		[]jobqueue.Queue{app.queues.translation, app.queues.audio},
		monitor.Config{Interval: cfg.Monitor.Interval, GracePeriod: cfg.Monitor.GracePeriod},
		app.registry,
		logger,
	)
	if err != nil {
		return app, fmt.Errorf("failed to create progress monitor: %w", err)
	}

	logger.Info("application initialized",
		"speech_backends", len(backends),
		"media_store", store.Name(),
		"deck", app.deck.Path())
	return app, nil
}

// newTaskQueue creates the rate-limited queue every translation call goes
// through. With a discovery URL the ceiling is fetched once up front and
// then refreshed every RateCheckInterval calls.
func newTaskQueue(
	ctx context.Context,
	cfg config.TranslatorConfig,
	logger *slog.Logger,
) *task.RateLimitedQueue[[]domain.Entry] {
	queueConfig := task.QueueConfig{
		InitialRequestsPerSecond: cfg.RequestsPerSecond,
		RateCheckInterval:        cfg.RateCheckInterval,
		Retry: task.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			MinBackoff: cfg.MinBackoff,
			MaxBackoff: cfg.MaxBackoff,
		},
	}
	if cfg.RateLimitURL != "" {
		client := ratelimits.NewClient(cfg.RateLimitURL, cfg.RateLimitAPIKey, logger)
		queueConfig.RateFetcher = client.RequestsPerSecond
	}

	queue := task.NewRateLimitedQueue[[]domain.Entry](queueConfig, logger)
	if queueConfig.RateFetcher != nil {
		// failures are logged and the configured ceiling stays in force
		_ = queue.RefreshRate(ctx)
	}
	return queue
}

// newSpeechBackends creates one backend per configured speech engine.
func newSpeechBackends(cfg config.AudioConfig, logger *slog.Logger) ([]pipeline.AudioBackend, error) {
	var backends []pipeline.AudioBackend
	if cfg.CLIConcurrency > 0 {
		backends = append(backends, pipeline.AudioBackend{
			Synthesizer: tts.NewCLISynthesizer(cfg.CLIPath, cfg.CLIModel, logger),
			Concurrency: cfg.CLIConcurrency,
		})
	}
	for _, url := range cfg.HTTPURLs {
		backends = append(backends, pipeline.AudioBackend{
			Synthesizer: tts.NewHTTPSynthesizer(url, cfg.HTTPTimeout, logger),
			Concurrency: cfg.HTTPConcurrency,
		})
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: no speech backend configured, set audio.cli_concurrency or audio.http_urls",
			config.ErrInvalidConfig)
	}
	return backends, nil
}

func newMediaStore(ctx context.Context, cfg config.MediaConfig, logger *slog.Logger) (mediastore.Store, error) {
	switch cfg.Backend {
	case config.MediaBackendLocal:
		return mediastore.NewLocalStore(cfg.Dir, logger)
	case config.MediaBackendMinio:
		return mediastore.NewMinioStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown media backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}

func (app *application) recordTranslationFailure(ctx context.Context, event *events.Event) error {
	var failure pipeline.TranslationFailure
	if err := event.UnmarshalPayload(&failure); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	reason := "other"
	if failure.RetriesExhausted {
		reason = "retries_exhausted"
	}
	app.translationFailures.WithLabelValues(reason).Inc()
	app.logger.WarnContext(ctx, "word will be missing from the deck",
		"word", failure.Word,
		"reason", reason,
		"error", failure.Error)
	return nil
}

// Run processes both queues until the monitor reports the pipeline idle or
// ctx ends. Interrupted jobs stay active and are recovered by the next run.
func (app *application) Run(ctx context.Context) error {
	app.tasks.Start()

	stageCtx, stopStages := context.WithCancel(ctx)
	defer stopStages()

	g, gctx := errgroup.WithContext(stageCtx)
	g.Go(func() error { return app.translation.Run(gctx) })
	g.Go(func() error { return app.audio.Run(gctx) })

	if app.config.Server.Enabled {
		router := api.NewRouter(api.RouterDeps{
			Progress: app.monitor,
			Rate:     app.tasks,
			Gatherer: app.registry,
			Logger:   app.logger,
		})
		server := api.NewServer(app.config.Server.Addr, router, app.logger)
		g.Go(func() error { return server.Run(gctx) })
	}

	monitorErr := app.monitor.Run(gctx)
	stopStages()
	stageErr := g.Wait()

	stats := app.audio.Stats()
	app.logger.Info("pipeline stopped",
		"idle", monitorErr == nil,
		"audio_synthesized", stats.Synthesized,
		"audio_skipped", stats.Skipped,
		"audio_failed", stats.Failed)

	if stageErr != nil && !errors.Is(stageErr, context.Canceled) {
		return fmt.Errorf("pipeline failed: %w", stageErr)
	}
	if monitorErr != nil && ctx.Err() != nil {
		app.logger.Info("interrupted before the queues drained, rerun to continue")
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.tasks != nil {
		app.tasks.Close()
	}
	if app.deck != nil {
		if err := app.deck.Close(); err != nil {
			app.logger.Error("failed to close deck", "error", err)
		}
	}
	if app.queues != nil {
		app.queues.Close(app.logger)
	}
	app.logger.Info("application shutdown completed")
}
