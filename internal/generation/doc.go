// Package generation defines the boundary between the pipeline and the
// external language model that produces vocabulary entries. The Translator
// interface turns one source word into example entries; implementations live
// under internal/platform (Gemini).
//
// Implementations report throttling by wrapping their error with
// task.RateLimited so the rate-limited task queue retries it, and report
// unusable model output with ErrInvalidResponse.
package generation
