// Package task schedules asynchronous units of work against an external,
// rate-limited resource. It provides a single-flight FIFO queue that spaces
// dispatches according to an adaptive requests-per-second ceiling and retries
// rate-limited failures with exponential backoff, so callers can submit work
// without knowing anything about the limits of the service behind it.
package task
