package versioning

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const snapshotVersion = 1

type snapshotFile struct {
	Version int           `json:"version"`
	Store   StoreSnapshot `json:"store"`
}

// SaveSnapshot writes the store index to path. The write goes through a temp
// file so a crash never leaves a truncated index behind.
func SaveSnapshot(fs afero.Fs, path string, store *VersionStore) error {
	data, err := json.MarshalIndent(snapshotFile{Version: snapshotVersion, Store: store.Snapshot()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := afero.TempFile(fs, dir, ".index-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fs.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot restores store from path. A missing file leaves the store
// empty and is not an error.
func LoadSnapshot(fs afero.Fs, path string, store *VersionStore) error {
	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if file.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", file.Version)
	}
	if file.Store.Documents == nil {
		file.Store.Documents = make(map[string]DocumentSnapshot)
	}
	return store.Restore(file.Store)
}
