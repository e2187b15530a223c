// Package pipeline wires the stages that turn a word list into a deck.
//
// Words are added to the translation queue by WordEnqueuer. TranslationStage
// claims translate jobs, pushes each word through the shared rate-limited
// task queue, appends the resulting record to the deck and emits an
// AudioRequested event. AudioJobHandler turns that event into synthesize jobs
// on the audio queue, and AudioStage drains them with one bounded worker pool
// per speech backend.
//
// Every stage claims from a durable jobqueue.Queue, so retries of failed jobs
// and recovery after a crash are owned by the queue rather than the stage.
package pipeline
