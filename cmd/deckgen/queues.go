package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/phrazzld/scry-deckgen/internal/config"
	"github.com/phrazzld/scry-deckgen/internal/jobqueue"
	"github.com/phrazzld/scry-deckgen/internal/platform/postgres"
	"github.com/phrazzld/scry-deckgen/internal/platform/redisq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// queueSet holds the translation and audio queues and the connection behind them.
type queueSet struct {
	translation jobqueue.Queue
	audio       jobqueue.Queue

	db    *sql.DB
	redis *redis.Client
}

// openQueues connects the configured backend. With a non-nil registerer
// both queues are wrapped with request count and latency metrics.
func openQueues(
	ctx context.Context,
	cfg config.QueueConfig,
	registerer prometheus.Registerer,
	logger *slog.Logger,
) (*queueSet, error) {
	set := &queueSet{}

	switch cfg.Backend {
	case config.QueueBackendMemory:
		set.translation = jobqueue.NewMemoryQueue(cfg.TranslationName, logger)
		set.audio = jobqueue.NewMemoryQueue(cfg.AudioName, logger)

	case config.QueueBackendPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.DefaultPoolConfig(), logger)
		if err != nil {
			return nil, err
		}
		set.db = db
		set.translation = postgres.NewJobQueue(db, cfg.TranslationName, logger)
		set.audio = postgres.NewJobQueue(db, cfg.AudioName, logger)

	case config.QueueBackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		set.redis = client
		set.translation = redisq.NewQueue(client, cfg.KeyPrefix, cfg.TranslationName, logger)
		set.audio = redisq.NewQueue(client, cfg.KeyPrefix, cfg.AudioName, logger)

	default:
		return nil, fmt.Errorf("%w: unknown queue backend %q", config.ErrInvalidConfig, cfg.Backend)
	}

	if registerer != nil {
		if err := set.instrument(registerer); err != nil {
			set.Close(logger)
			return nil, err
		}
	}

	logger.Info("job queues ready",
		"backend", cfg.Backend,
		"translation_queue", set.translation.Name(),
		"audio_queue", set.audio.Name())
	return set, nil
}

func (s *queueSet) instrument(registerer prometheus.Registerer) error {
	reqCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deckgen",
		Subsystem: "jobqueue",
		Name:      "request_count",
		Help:      "Number of job queue requests.",
	}, jobqueue.MetricLabels)
	reqDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "deckgen",
		Subsystem: "jobqueue",
		Name:      "request_duration_seconds",
		Help:      "Job queue request latency.",
		Buckets:   prometheus.DefBuckets,
	}, jobqueue.MetricLabels)

	for _, c := range []prometheus.Collector{reqCount, reqDuration} {
		if err := registerer.Register(c); err != nil {
			return fmt.Errorf("failed to register job queue metrics: %w", err)
		}
	}

	count := kitprometheus.NewCounter(reqCount)
	duration := kitprometheus.NewHistogram(reqDuration)
	s.translation = jobqueue.NewInstrumentingMiddleware(count, duration, s.translation)
	s.audio = jobqueue.NewInstrumentingMiddleware(count, duration, s.audio)
	return nil
}

// Close closes both queues and the shared connection.
func (s *queueSet) Close(logger *slog.Logger) {
	for _, q := range []jobqueue.Queue{s.translation, s.audio} {
		if q == nil {
			continue
		}
		if err := q.Close(); err != nil {
			logger.Error("failed to close job queue", "queue", q.Name(), "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logger.Error("failed to close redis client", "error", err)
		}
	}
}
