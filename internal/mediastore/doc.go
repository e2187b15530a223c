// Package mediastore publishes synthesized audio files where the deck can
// find them: a local directory (the Anki media folder) or an S3-compatible
// bucket. Artifacts are content-addressed, so an existing object with the
// same name never needs to be produced again.
package mediastore
