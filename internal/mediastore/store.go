package mediastore

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned for artifact names that are empty or contain a path
var ErrInvalidName = errors.New("invalid artifact name")

// Store holds finished audio artifacts.
type Store interface {
	// Name identifies the store in logs
	Name() string

	// Exists reports whether an artifact with this name was already published
	Exists(ctx context.Context, name string) (bool, error)

	// Put publishes the file at localPath under name. The local file may be
	// moved or removed by the call.
	Put(ctx context.Context, name, localPath string) error
}

// validateName rejects names that would escape the store's root
func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// contentType guesses the MIME type of an artifact from its extension.
func contentType(name string) string {
	ext := path.Ext(name)
	switch strings.ToLower(ext) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
