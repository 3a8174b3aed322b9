package versioning

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

var ErrSourceNotFound = errors.New("content source path not found")

// ContentSource is where a document's working copy lives. Committing without
// explicit content reads the path; rollback writes the restored bytes back.
type ContentSource interface {
	ReadBlob(ctx context.Context, path string) ([]byte, error)
	WriteBlob(ctx context.Context, path string, data []byte) error
}

// FSContentSource reads and writes working copies on an afero filesystem,
// optionally confined to a root directory.
type FSContentSource struct {
	fs afero.Fs
}

func NewFSContentSource(fs afero.Fs, root string) *FSContentSource {
	if root != "" {
		fs = afero.NewBasePathFs(fs, root)
	}
	return &FSContentSource{fs: fs}
}

func (s *FSContentSource) ReadBlob(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (s *FSContentSource) WriteBlob(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create parent of %s: %w", path, err)
	}
	if err := afero.WriteFile(s.fs, path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
