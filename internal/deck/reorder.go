package deck

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/phrazzld/scry-deckgen/internal/domain"
	"github.com/phrazzld/scry-deckgen/internal/domain/interleave"
)

// ReorderOptions describes one reorder run.
type ReorderOptions struct {
	InputPath  string
	OutputPath string

	// SequencePath, when set, receives the words_sequence JSON
	SequencePath string

	NewWordsPerDay int
	EntriesPerWord int
}

// ReorderResult summarizes a reorder run.
type ReorderResult struct {
	Entries int
	Words   int
}

// Sequence is the words_sequence document. For every output row it holds the
// index of the row where that row's word first appears.
type Sequence struct {
	WordsSequence  []int `json:"wordsSequence"`
	NewWordsPerDay int   `json:"newWordsPerDay"`
	EntriesPerWord int   `json:"entriesPerWord"`
}

// BuildSequence computes the first-appearance index of every entry's word.
func BuildSequence(entries []domain.Entry) []int {
	first := make(map[string]int)
	seq := make([]int, len(entries))
	for i, e := range entries {
		pos, ok := first[e.SourceText]
		if !ok {
			pos = i
			first[e.SourceText] = i
		}
		seq[i] = pos
	}
	return seq
}

// ReorderFile reads the deck, interleaves it by source word and writes the result.
func ReorderFile(opts ReorderOptions) (ReorderResult, error) {
	if opts.InputPath == "" || opts.OutputPath == "" {
		return ReorderResult{}, errors.New("input and output paths are required")
	}
	if filepath.Clean(opts.InputPath) == filepath.Clean(opts.OutputPath) {
		return ReorderResult{}, errors.New("output path must differ from input path")
	}

	entries, err := ReadFile(opts.InputPath)
	if err != nil {
		return ReorderResult{}, err
	}

	reordered := interleave.Reorder(entries, opts.NewWordsPerDay, opts.EntriesPerWord,
		func(e domain.Entry) string { return e.SourceText })

	var buf bytes.Buffer
	if err := WriteEntries(&buf, reordered); err != nil {
		return ReorderResult{}, err
	}
	if err := writeFileAtomic(opts.OutputPath, buf.Bytes()); err != nil {
		return ReorderResult{}, err
	}

	seq := BuildSequence(reordered)
	if opts.SequencePath != "" {
		data, err := json.Marshal(Sequence{
			WordsSequence:  seq,
			NewWordsPerDay: opts.NewWordsPerDay,
			EntriesPerWord: opts.EntriesPerWord,
		})
		if err != nil {
			return ReorderResult{}, fmt.Errorf("failed to encode words sequence: %w", err)
		}
		if err := writeFileAtomic(opts.SequencePath, data); err != nil {
			return ReorderResult{}, err
		}
	}

	words := make(map[string]struct{})
	for _, e := range reordered {
		words[e.SourceText] = struct{}{}
	}
	return ReorderResult{Entries: len(reordered), Words: len(words)}, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Chmod(0o644)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
