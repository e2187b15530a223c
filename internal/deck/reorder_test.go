package deck

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/phrazzld/scry-deckgen/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(entries []domain.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.SourceText
	}
	return out
}

func TestBuildSequence(t *testing.T) {
	t.Parallel()

	entries := []domain.Entry{
		{SourceText: "a"}, {SourceText: "b"}, {SourceText: "a"}, {SourceText: "c"}, {SourceText: "b"},
	}
	assert.Equal(t, []int{0, 1, 0, 3, 1}, BuildSequence(entries))
	assert.Empty(t, BuildSequence(nil))
}

func TestReorderFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "deck.csv")
	output := filepath.Join(dir, "reordered.csv")
	sequence := filepath.Join(dir, "words_sequence.json")

	w, err := NewWriter(input)
	require.NoError(t, err)
	for _, word := range []string{"a", "a", "b", "b", "c"} {
		require.NoError(t, w.Append(&domain.Record{Word: word, Entries: []domain.Entry{sampleEntry(word)}}))
	}
	require.NoError(t, w.Close())

	result, err := ReorderFile(ReorderOptions{
		InputPath:      input,
		OutputPath:     output,
		SequencePath:   sequence,
		NewWordsPerDay: 2,
		EntriesPerWord: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, ReorderResult{Entries: 5, Words: 3}, result)

	got, err := ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a", "b", "c"}, words(got))
	assert.Equal(t, "a.wav", got[0].SourceAudio)

	data, err := os.ReadFile(sequence)
	require.NoError(t, err)
	var seq Sequence
	require.NoError(t, json.Unmarshal(data, &seq))
	assert.Equal(t, Sequence{WordsSequence: []int{0, 1, 0, 1, 4}, NewWordsPerDay: 2, EntriesPerWord: 1}, seq)
}

func TestReorderFile_Validation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := ReorderFile(ReorderOptions{OutputPath: filepath.Join(dir, "out.csv")})
	assert.Error(t, err)

	same := filepath.Join(dir, "deck.csv")
	_, err = ReorderFile(ReorderOptions{InputPath: same, OutputPath: same})
	assert.Error(t, err)

	_, err = ReorderFile(ReorderOptions{
		InputPath:      filepath.Join(dir, "missing.csv"),
		OutputPath:     filepath.Join(dir, "out.csv"),
		NewWordsPerDay: 1,
		EntriesPerWord: 1,
	})
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoFileExists(t, filepath.Join(dir, "out.csv"))
}
