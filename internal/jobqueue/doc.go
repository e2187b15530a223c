// Package jobqueue defines the durable, multi-consumer job broker the
// pipeline stages are built on. Jobs survive process restarts, carry their
// own attempt budget, and move through the states waiting, active, delayed,
// paused, completed and failed.
//
// The package holds the Queue interface, the Job model shared by every
// backend, an in-memory implementation used in tests and local runs, and a
// metrics middleware. Persistent backends live under internal/platform.
package jobqueue
