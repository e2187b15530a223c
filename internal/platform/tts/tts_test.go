package tts

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/phrazzld/scry-deckgen/internal/speech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// writeScript creates an executable shell script standing in for the tts tool
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available on windows")
	}
	path := filepath.Join(t.TempDir(), "tts")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// fakeTTS writes its arguments into the --out_path file
const fakeTTS = `
while [ $# -gt 0 ]; do
  case "$1" in
    --out_path) out="$2"; shift 2 ;;
    --text) text="$2"; shift 2 ;;
    --model_name) model="$2"; shift 2 ;;
    *) shift ;;
  esac
done
printf '%s|%s' "$model" "$text" > "$out"
`

func TestCLISynthesizer_Success(t *testing.T) {
	t.Parallel()

	script := writeScript(t, fakeTTS)
	s := NewCLISynthesizer(script, "tts_models/cs/cv/vits", setupTestLogger())
	out := filepath.Join(t.TempDir(), "nested", "a.wav")

	require.NoError(t, s.Synthesize(context.Background(), "Dobrý den", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "tts_models/cs/cv/vits|Dobrý den", string(data))
	assert.Equal(t, "cli", s.Name())
}

func TestCLISynthesizer_Failure(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "echo 'model not found' >&2\nexit 3\n")
	s := NewCLISynthesizer(script, "m", setupTestLogger())

	err := s.Synthesize(context.Background(), "text", filepath.Join(t.TempDir(), "a.wav"))
	require.Error(t, err)
	assert.ErrorIs(t, err, speech.ErrSynthesisFailed)
	assert.Contains(t, err.Error(), "model not found")
}

func TestCLISynthesizer_MissingExecutable(t *testing.T) {
	t.Parallel()

	s := NewCLISynthesizer(filepath.Join(t.TempDir(), "missing"), "m", setupTestLogger())
	err := s.Synthesize(context.Background(), "text", filepath.Join(t.TempDir(), "a.wav"))
	assert.ErrorIs(t, err, speech.ErrSynthesisFailed)
}

func TestCLISynthesizer_InvalidArguments(t *testing.T) {
	t.Parallel()

	s := NewCLISynthesizer("unused", "m", setupTestLogger())
	assert.ErrorIs(t, s.Synthesize(context.Background(), "", "a.wav"), speech.ErrEmptyText)
	assert.ErrorIs(t, s.Synthesize(context.Background(), "text", ""), speech.ErrEmptyOutputPath)
}

func TestHTTPSynthesizer_Success(t *testing.T) {
	t.Parallel()

	gotText := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tts" {
			http.NotFound(w, r)
			return
		}
		gotText <- r.URL.Query().Get("text")
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFF-audio"))
	}))
	defer server.Close()

	s := NewHTTPSynthesizer(server.URL+"/", 5*time.Second, setupTestLogger())
	out := filepath.Join(t.TempDir(), "sub", "b.wav")

	require.NoError(t, s.Synthesize(context.Background(), "Pes & kočka?", out))
	assert.Equal(t, "Pes & kočka?", <-gotText)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "RIFF-audio", string(data))

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestHTTPSynthesizer_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "boom"},
		{"empty body", http.StatusOK, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			s := NewHTTPSynthesizer(server.URL, 5*time.Second, setupTestLogger())
			out := filepath.Join(t.TempDir(), "c.wav")

			err := s.Synthesize(context.Background(), "text", out)
			assert.ErrorIs(t, err, speech.ErrSynthesisFailed)
			assert.NoFileExists(t, out)
		})
	}
}
