// Package storage resolves where skillvcs keeps configuration, repositories
// and runtime state, following XDG conventions on Unix.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
)

const appName = "skillvcs"

// Dirs holds the per-user directories.
type Dirs struct {
	Config string // user configuration
	Data   string // repositories created outside a project
	Cache  string // regenerable data
	State  string // logs and locks
}

// ProjectDirs holds the layout of a project-local repository.
type ProjectDirs struct {
	Root    string // .skillvcs/
	Config  string // .skillvcs/config.yaml (committed)
	Local   string // .skillvcs/local/ (gitignored)
	Index   string // .skillvcs/index.json
	Blobs   string // .skillvcs/objects/
	BlobDB  string // .skillvcs/blobs.db
	Journal string // .skillvcs/events.jsonl
}

var (
	globalDirs     *Dirs
	globalDirsOnce sync.Once
	globalDirsErr  error
)

// ResolveDirs returns platform-appropriate directories. Results are cached
// after the first call.
func ResolveDirs() (*Dirs, error) {
	globalDirsOnce.Do(func() {
		globalDirs, globalDirsErr = resolveDirsImpl()
	})
	return globalDirs, globalDirsErr
}

func resolveDirsImpl() (*Dirs, error) {
	return &Dirs{
		Config: resolveDir("XDG_CONFIG_HOME", platformConfigDefault()),
		Data:   resolveDir("XDG_DATA_HOME", platformDataDefault()),
		Cache:  resolveDir("XDG_CACHE_HOME", platformCacheDefault()),
		State:  resolveDir("XDG_STATE_HOME", platformStateDefault()),
	}, nil
}

func resolveDir(envVar, fallback string) string {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, appName)
	}
	return fallback
}

// ResolveProjectDirs returns the repository layout under projectRoot.
func ResolveProjectDirs(projectRoot string) *ProjectDirs {
	return ProjectDirsAt(filepath.Join(projectRoot, "."+appName))
}

// ProjectDirsAt lays out a repository rooted directly at root.
func ProjectDirsAt(root string) *ProjectDirs {
	return &ProjectDirs{
		Root:    root,
		Config:  filepath.Join(root, "config.yaml"),
		Local:   filepath.Join(root, "local"),
		Index:   filepath.Join(root, "index.json"),
		Blobs:   filepath.Join(root, "objects"),
		BlobDB:  filepath.Join(root, "blobs.db"),
		Journal: filepath.Join(root, "events.jsonl"),
	}
}

// ProjectHash is a short stable identifier for a project path.
func ProjectHash(projectRoot string) string {
	absPath, err := filepath.Abs(projectRoot)
	if err != nil {
		absPath = projectRoot
	}
	hash := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(hash[:8])
}

// EnsureDir creates path with perm, defaulting to 0700.
func EnsureDir(path string, perm os.FileMode) error {
	if perm == 0 {
		perm = 0700
	}
	return os.MkdirAll(path, perm)
}

func (d *Dirs) ConfigDir(subpath ...string) string {
	return filepath.Join(append([]string{d.Config}, subpath...)...)
}

func (d *Dirs) DataDir(subpath ...string) string {
	return filepath.Join(append([]string{d.Data}, subpath...)...)
}

func (d *Dirs) CacheDir(subpath ...string) string {
	return filepath.Join(append([]string{d.Cache}, subpath...)...)
}

func (d *Dirs) StateDir(subpath ...string) string {
	return filepath.Join(append([]string{d.State}, subpath...)...)
}

// ProjectDataDir is where a project without a local repository keeps its
// history.
func (d *Dirs) ProjectDataDir(projectRoot string) string {
	return d.DataDir("projects", ProjectHash(projectRoot))
}

func (d *Dirs) LogDir() string {
	return d.StateDir("logs")
}

// EnsureAll creates the user directories.
func (d *Dirs) EnsureAll() error {
	if err := EnsureDir(d.Config, 0700); err != nil {
		return err
	}
	for _, dir := range []string{d.Data, d.DataDir("projects"), d.Cache, d.State, d.LogDir()} {
		if err := EnsureDir(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// EnsureProject creates the repository directories of p.
func (p *ProjectDirs) EnsureProject() error {
	for _, dir := range []string{p.Root, p.Local, p.Blobs} {
		if err := EnsureDir(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether a repository has been initialized at p.
func (p *ProjectDirs) Exists() bool {
	info, err := os.Stat(p.Root)
	return err == nil && info.IsDir()
}
