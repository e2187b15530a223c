package domain

import (
	"fmt"
	"strings"
)

// Entry is one flashcard: a word and a usage sentence in the source language,
// their translations, and the audio files spoken for the source side.
type Entry struct {
	SourceText    string `json:"sourceText"`
	SourceContext string `json:"sourceContext"`
	TargetText    string `json:"targetText"`
	TargetContext string `json:"targetContext"`

	// SourceAudio is the audio filename for SourceText, empty until known
	SourceAudio string `json:"sourceAudio,omitempty"`

	// SourceContextAudio is the audio filename for SourceContext, empty until known
	SourceContextAudio string `json:"sourceContextAudio,omitempty"`
}

// Validate checks that all text fields of the entry are present.
func (e Entry) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"sourceText", e.SourceText},
		{"sourceContext", e.SourceContext},
		{"targetText", e.TargetText},
		{"targetContext", e.TargetContext},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s %w", ErrValidation, f.name, ErrEmptyContent)
		}
	}
	return nil
}
