package versioning

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FSBlobStore stores each blob as a file at root/hh/hh/<hash>, the two-level
// fan-out keeping directories small.
type FSBlobStore struct {
	fs   afero.Fs
	root string
}

func NewFSBlobStore(fs afero.Fs, root string) (*FSBlobStore, error) {
	if err := fs.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FSBlobStore{fs: fs, root: root}, nil
}

func (s *FSBlobStore) pathFor(hash ContentHash) string {
	hex := hash.String()
	return filepath.Join(s.root, hex[0:2], hex[2:4], hex)
}

func (s *FSBlobStore) Get(ctx context.Context, hash ContentHash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := afero.ReadFile(s.fs, s.pathFor(hash))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", hash.Short(), err)
	}
	if ComputeContentHash(content) != hash {
		return nil, fmt.Errorf("%w: %s", ErrBlobCorrupt, hash.Short())
	}
	return content, nil
}

func (s *FSBlobStore) Put(ctx context.Context, content []byte) (ContentHash, error) {
	if err := ctx.Err(); err != nil {
		return ContentHash{}, err
	}
	hash := ComputeContentHash(content)
	path := s.pathFor(hash)

	if exists, err := afero.Exists(s.fs, path); err == nil && exists {
		return hash, nil
	}

	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return ContentHash{}, fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temp file and rename so readers never observe a partial blob.
	tmp, err := afero.TempFile(s.fs, dir, ".blob-*")
	if err != nil {
		return ContentHash{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return ContentHash{}, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return ContentHash{}, fmt.Errorf("failed to close blob: %w", err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		s.fs.Remove(tmpName)
		return ContentHash{}, fmt.Errorf("failed to commit blob: %w", err)
	}
	return hash, nil
}

func (s *FSBlobStore) Has(_ context.Context, hash ContentHash) (bool, error) {
	return afero.Exists(s.fs, s.pathFor(hash))
}

func (s *FSBlobStore) Delete(_ context.Context, hash ContentHash) error {
	err := s.fs.Remove(s.pathFor(hash))
	if errors.Is(err, os.ErrNotExist) {
		return ErrBlobNotFound
	}
	return err
}

func (s *FSBlobStore) Stats(ctx context.Context) (BlobStats, error) {
	var stats BlobStats
	err := afero.Walk(s.fs, s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() || len(info.Name()) != 2*HashSize {
			return nil
		}
		stats.Count++
		stats.Bytes += info.Size()
		return nil
	})
	return stats, err
}
