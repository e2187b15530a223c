// Package monitor tracks pipeline progress and decides when the run is over.
//
// A Monitor polls the job counts of every queue on a fixed interval, logs a
// compact tally, publishes the counts as Prometheus gauges and feeds them to
// an idle state machine:
//
//	Active -> PendingIdle -> Idle
//
// The machine leaves Active when no queue holds a waiting, active, delayed or
// paused job, returns to Active if such a job reappears, and reaches Idle
// once the queues stayed drained for the whole grace period.
package monitor
