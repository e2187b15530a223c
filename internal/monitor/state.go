package monitor

import (
	"time"

	"github.com/phrazzld/scry-deckgen/internal/jobqueue"
)

// State is the idle state of the pipeline
type State int

const (
	// StateActive means some queue still has pending jobs
	StateActive State = iota
	// StatePendingIdle means every queue drained and the grace period is running
	StatePendingIdle
	// StateIdle means the queues stayed drained for the whole grace period
	StateIdle
)

// String returns the log-friendly name of the state
func (s State) String() string {
	switch s {
	case StatePendingIdle:
		return "pending_idle"
	case StateIdle:
		return "idle"
	default:
		return "active"
	}
}

// QueueSnapshot is the job count summary of one queue
type QueueSnapshot struct {
	Queue     string          `json:"queue"`
	Total     int             `json:"total"`
	Completed int             `json:"completed"`
	Tally     string          `json:"tally"`
	Counts    jobqueue.Counts `json:"counts"`
}

// NewQueueSnapshot summarizes counts of the named queue. Completed includes failed jobs.
func NewQueueSnapshot(queue string, counts jobqueue.Counts) QueueSnapshot {
	return QueueSnapshot{
		Queue:     queue,
		Total:     counts.Total(),
		Completed: counts.Finished(),
		Tally:     counts.Tally(),
		Counts:    counts,
	}
}

// Machine is the idle state machine. It is not safe for concurrent use.
type Machine struct {
	grace     time.Duration
	state     State
	idleSince time.Time
}

// NewMachine creates a machine in StateActive.
func NewMachine(grace time.Duration) *Machine {
	if grace < 0 {
		grace = 0
	}
	return &Machine{grace: grace}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// IdleSince returns when the queues were first seen drained, or the zero
// time while active.
func (m *Machine) IdleSince() time.Time {
	return m.idleSince
}

// Observe advances the machine with the counts seen at now. Idle is final.
func (m *Machine) Observe(now time.Time, snapshots []QueueSnapshot) State {
	if m.state == StateIdle {
		return m.state
	}

	pending := false
	for _, s := range snapshots {
		if s.Counts.Pending() > 0 {
			pending = true
			break
		}
	}

	if pending {
		m.state = StateActive
		m.idleSince = time.Time{}
		return m.state
	}

	if m.state == StateActive {
		m.state = StatePendingIdle
		m.idleSince = now
	}
	if now.Sub(m.idleSince) >= m.grace {
		m.state = StateIdle
	}
	return m.state
}
