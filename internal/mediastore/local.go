package mediastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalStore keeps artifacts in a directory.
type LocalStore struct {
	dir    string
	logger *slog.Logger
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates the directory if needed and returns a store rooted at it.
func NewLocalStore(dir string, logger *slog.Logger) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("media directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory %s: %w", dir, err)
	}
	return &LocalStore{
		dir:    dir,
		logger: logger.With("component", "media_store", "dir", dir),
	}, nil
}

// Name implements Store
func (s *LocalStore) Name() string {
	return "local " + s.dir
}

// Path returns where an artifact lives on disk.
func (s *LocalStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Exists implements Store
func (s *LocalStore) Exists(_ context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	info, err := os.Stat(s.Path(name))
	switch {
	case err == nil:
		return info.Mode().IsRegular() && info.Size() > 0, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat %s: %w", name, err)
	}
}

// Put implements Store. The file is renamed into place, or copied when
// the rename crosses file systems.
func (s *LocalStore) Put(ctx context.Context, name, localPath string) error {
	if err := validateName(name); err != nil {
		return err
	}
	dest := s.Path(name)

	if err := os.Rename(localPath, dest); err == nil {
		s.logger.DebugContext(ctx, "stored artifact", "name", name)
		return nil
	}

	if err := copyFile(localPath, dest); err != nil {
		return err
	}
	_ = os.Remove(localPath)
	s.logger.DebugContext(ctx, "stored artifact", "name", name, "copied", true)
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", dest, err)
	}
	return nil
}
