package mediastore

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "work.wav")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLocalStore_PutAndExists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "media"), setupTestLogger())
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "abc.wav")
	require.NoError(t, err)
	assert.False(t, exists)

	src := writeTemp(t, "audio")
	require.NoError(t, store.Put(ctx, "abc.wav", src))

	exists, err = store.Exists(ctx, "abc.wav")
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := os.ReadFile(store.Path("abc.wav"))
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))
	assert.NoFileExists(t, src)
}

func TestLocalStore_EmptyFileDoesNotCount(t *testing.T) {
	t.Parallel()

	store, err := NewLocalStore(t.TempDir(), setupTestLogger())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path("empty.wav"), nil, 0o600))

	exists, err := store.Exists(context.Background(), "empty.wav")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStore_InvalidNames(t *testing.T) {
	t.Parallel()

	store, err := NewLocalStore(t.TempDir(), setupTestLogger())
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../x.wav", "a/b.wav", `a\b.wav`} {
		_, err := store.Exists(context.Background(), name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
		assert.ErrorIs(t, store.Put(context.Background(), name, "unused"), ErrInvalidName, name)
	}
}

func TestLocalStore_MissingSource(t *testing.T) {
	t.Parallel()

	store, err := NewLocalStore(t.TempDir(), setupTestLogger())
	require.NoError(t, err)

	err = store.Put(context.Background(), "x.wav", filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestNewLocalStore_EmptyDir(t *testing.T) {
	t.Parallel()

	_, err := NewLocalStore("", setupTestLogger())
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "audio/wav", contentType("a.wav"))
	assert.Equal(t, "audio/mpeg", contentType("a.MP3"))
	assert.Equal(t, "audio/ogg", contentType("a.ogg"))
	assert.Equal(t, "application/octet-stream", contentType("a.zzzunknown"))
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a.wav", objectName("", "a.wav"))
	assert.Equal(t, "decks/cz/a.wav", objectName("decks/cz", "a.wav"))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{StatusCode: 404}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}))
	assert.False(t, isNotFound(errors.New("dial tcp: refused")))
}
