package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/scry-deckgen/internal/jobqueue"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds monitor settings
type Config struct {
	// Interval between polls
	Interval time.Duration

	// GracePeriod the queues must stay drained before the run is considered done
	GracePeriod time.Duration
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		Interval:    time.Second,
		GracePeriod: 5 * time.Second,
	}
}

// Snapshot is the latest progress report
type Snapshot struct {
	Time      time.Time       `json:"time"`
	State     string          `json:"state"`
	IdleSince *time.Time      `json:"idle_since,omitempty"`
	Queues    []QueueSnapshot `json:"queues"`
}

// Monitor polls queues and tracks the idle state of the pipeline.
type Monitor struct {
	queues  []jobqueue.Queue
	config  Config
	machine *Machine
	logger  *slog.Logger

	jobs  *prometheus.GaugeVec
	state prometheus.Gauge

	// now is replaceable in tests
	now func() time.Time

	// mu protects machine and last
	mu   sync.RWMutex
	last Snapshot
}

// New creates a monitor and registers its gauges with registerer.
func New(queues []jobqueue.Queue, config Config, registerer prometheus.Registerer, logger *slog.Logger) (*Monitor, error) {
	if len(queues) == 0 {
		return nil, errors.New("at least one queue is required")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}

	m := &Monitor{
		queues:  queues,
		config:  config,
		machine: NewMachine(config.GracePeriod),
		logger:  logger.With("component", "progress_monitor"),
		jobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "deckgen",
			Name:      "queue_jobs",
			Help:      "Number of jobs per queue and status.",
		}, []string{"queue", "status"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "deckgen",
			Name:      "monitor_state",
			Help:      "Idle state of the pipeline: 0 active, 1 pending idle, 2 idle.",
		}),
		now: time.Now,
		last: Snapshot{
			State:  StateActive.String(),
			Queues: []QueueSnapshot{},
		},
	}

	if registerer != nil {
		for _, c := range []prometheus.Collector{m.jobs, m.state} {
			if err := registerer.Register(c); err != nil {
				return nil, fmt.Errorf("failed to register monitor metrics: %w", err)
			}
		}
	}
	return m, nil
}

// Snapshot returns the latest progress report
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Poll reads the counts of every queue once and advances the state machine.
// When a queue cannot be read the state is left unchanged.
func (m *Monitor) Poll(ctx context.Context) (Snapshot, error) {
	snapshots := make([]QueueSnapshot, 0, len(m.queues))
	for _, q := range m.queues {
		counts, err := q.GetJobCounts(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to read counts of queue %s: %w", q.Name(), err)
		}
		snapshots = append(snapshots, NewQueueSnapshot(q.Name(), counts))
	}

	now := m.now()

	m.mu.Lock()
	prev := m.machine.State()
	state := m.machine.Observe(now, snapshots)
	snap := Snapshot{Time: now, State: state.String(), Queues: snapshots}
	if since := m.machine.IdleSince(); !since.IsZero() {
		snap.IdleSince = &since
	}
	m.last = snap
	m.mu.Unlock()

	for _, s := range snapshots {
		for status, n := range s.Counts {
			m.jobs.WithLabelValues(s.Queue, string(status)).Set(float64(n))
		}
		m.logger.InfoContext(ctx, "progress",
			"queue", s.Queue,
			"completed", s.Completed,
			"total", s.Total,
			"tally", s.Tally)
	}
	m.state.Set(float64(state))

	if state != prev {
		m.logger.InfoContext(ctx, "pipeline state changed",
			"from", prev.String(),
			"to", state.String())
	}
	return snap, nil
}

// Run polls every Interval until the pipeline is idle, then returns nil.
// It returns ctx.Err() if ctx ends first. Poll errors are logged and retried
// on the next tick.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.logger.InfoContext(ctx, "progress monitor started",
		"interval", m.config.Interval,
		"grace_period", m.config.GracePeriod)

	for {
		snap, err := m.Poll(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			m.logger.ErrorContext(ctx, "failed to poll queues", "error", err)
		case err == nil && snap.State == StateIdle.String():
			m.logger.InfoContext(ctx, "all queues drained, pipeline is idle")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
