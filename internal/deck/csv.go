package deck

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/phrazzld/scry-deckgen/internal/domain"
)

// Columns is the number of fields in every deck row
const Columns = 6

// ErrWriterClosed is returned when appending to a closed Writer
var ErrWriterClosed = errors.New("deck writer is closed")

// SoundRef wraps an audio filename in Anki's sound tag. Empty names stay empty.
func SoundRef(filename string) string {
	if filename == "" {
		return ""
	}
	return "[sound:" + filename + "]"
}

// ParseSoundRef returns the filename inside a sound tag, or the value
// unchanged when it is not wrapped.
func ParseSoundRef(value string) string {
	if strings.HasPrefix(value, "[sound:") && strings.HasSuffix(value, "]") {
		return value[len("[sound:") : len(value)-1]
	}
	return value
}

func quote(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// FormatEntry renders one deck row including the trailing newline.
func FormatEntry(e domain.Entry) string {
	fields := [Columns]string{
		e.SourceText,
		e.SourceContext,
		e.TargetText,
		e.TargetContext,
		SoundRef(e.SourceAudio),
		SoundRef(e.SourceContextAudio),
	}

	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(quote(f))
	}
	b.WriteByte('\n')
	return b.String()
}

// WriteEntries writes every entry as a deck row.
func WriteEntries(w io.Writer, entries []domain.Entry) error {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(FormatEntry(e))
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadEntries parses deck rows. Blank lines are skipped; every other row must
// have exactly six fields.
func ReadEntries(r io.Reader) ([]domain.Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = Columns

	var entries []domain.Entry
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse deck: %w", err)
		}
		entries = append(entries, domain.Entry{
			SourceText:         row[0],
			SourceContext:      row[1],
			TargetText:         row[2],
			TargetContext:      row[3],
			SourceAudio:        ParseSoundRef(row[4]),
			SourceContextAudio: ParseSoundRef(row[5]),
		})
	}
}

// ReadFile parses the deck at path.
func ReadFile(path string) ([]domain.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open deck: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ReadEntries(f)
}

// Writer appends records to a deck file. It is safe for concurrent use; the
// rows of one record are written with a single append so records never interleave.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewWriter opens path for appending, creating it and its directory if needed.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create deck directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open deck: %w", err)
	}
	return &Writer{file: f, path: path}, nil
}

// Path returns the deck file path
func (w *Writer) Path() string {
	return w.path
}

// Append writes every entry of the record and syncs the file.
func (w *Writer) Append(record *domain.Record) error {
	if record == nil || len(record.Entries) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrWriterClosed
	}
	if err := WriteEntries(w.file, record.Entries); err != nil {
		return fmt.Errorf("failed to append record for %q: %w", record.Word, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync deck: %w", err)
	}
	return nil
}

// Close closes the underlying file. Calling it twice is harmless.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
