package domain

import (
	"fmt"
	"strings"
)

// Record is the outcome of translating one source word: every usage variant
// the language model produced, each paired with its audio filenames.
// Records are appended to the deck once and never modified afterwards.
type Record struct {
	Word    string  `json:"word"`
	Entries []Entry `json:"entries"`
}

// AudioClip is a piece of text that needs to be spoken and the file it goes to.
type AudioClip struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

// NewRecord validates the generated entries and assigns content-addressed
// audio filenames with the given extension to their source-side texts.
func NewRecord(word string, entries []Entry, audioExt string) (*Record, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, ErrEmptyWord
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries generated for %q", ErrValidation, word)
	}

	withAudio := make([]Entry, 0, len(entries))
	for i, entry := range entries {
		if err := entry.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entry.SourceAudio = AudioFilename(entry.SourceText, audioExt)
		entry.SourceContextAudio = AudioFilename(entry.SourceContext, audioExt)
		withAudio = append(withAudio, entry)
	}

	return &Record{Word: word, Entries: withAudio}, nil
}

// AudioClips returns one clip per distinct text that needs audio, in the
// order the texts first appear in the record.
func (r *Record) AudioClips() []AudioClip {
	seen := make(map[string]struct{})
	clips := make([]AudioClip, 0, len(r.Entries)*2)

	add := func(text, filename string) {
		if filename == "" {
			return
		}
		if _, ok := seen[text]; ok {
			return
		}
		seen[text] = struct{}{}
		clips = append(clips, AudioClip{Text: text, Filename: filename})
	}

	for _, e := range r.Entries {
		add(e.SourceText, e.SourceAudio)
		add(e.SourceContext, e.SourceContextAudio)
	}
	return clips
}
