package speech

import (
	"context"
	"errors"
)

var (
	// ErrEmptyText is returned when asked to speak an empty string
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrEmptyOutputPath is returned when no destination file is given
	ErrEmptyOutputPath = errors.New("output path cannot be empty")

	// ErrSynthesisFailed is returned when the engine did not produce audio
	ErrSynthesisFailed = errors.New("speech synthesis failed")
)

// Synthesizer turns text into an audio file.
type Synthesizer interface {
	// Name identifies the backend in logs and metrics
	Name() string

	// Synthesize speaks text into a file at outPath, creating parent
	// directories as needed. On success the file exists and is complete.
	Synthesize(ctx context.Context, text, outPath string) error
}

// Validate checks the arguments every Synthesizer requires.
func Validate(text, outPath string) error {
	if text == "" {
		return ErrEmptyText
	}
	if outPath == "" {
		return ErrEmptyOutputPath
	}
	return nil
}
