package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bundlesmith/bundlesmith/internal/config"
)

// ObjectStorage persists built artifacts.
type ObjectStorage interface {
	Upload(ctx context.Context, body io.Reader) error
}

// New constructs storage from the pipeline's output configuration. Returns
// nil when no output is configured (build-only pipelines).
func New(output config.Output) (ObjectStorage, error) {
	if output.FileSystem == nil {
		return nil, nil
	}
	return &FileSystem{path: output.FileSystem.Path}, nil
}

// FileSystem writes the artifact to a local path, atomically via a temp file
// in the target directory.
type FileSystem struct {
	path string
}

func NewFileSystem(path string) *FileSystem {
	return &FileSystem{path: path}
}

func (s *FileSystem) Upload(_ context.Context, body io.Reader) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), s.path)
}
