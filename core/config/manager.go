package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/adalundhe/skillvcs/core/storage"
)

const envPrefix = "SKILLVCS_"

const reloadDebounce = 100 * time.Millisecond

var ErrInvalidConfig = errors.New("invalid config")

// Manager layers defaults, the user config, the project config, the local
// config and the environment, in that order.
type Manager struct {
	current     atomic.Pointer[Config]
	dirs        *storage.Dirs
	projectRoot string
	logger      *slog.Logger

	watchers  []func(*Config)
	watcherMu sync.RWMutex
	stopWatch chan struct{}
	watchOnce sync.Once
}

type Config struct {
	Author     string           `yaml:"author"`
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	Diff       DiffConfig       `yaml:"diff"`
	Merge      MergeConfig      `yaml:"merge"`
	Events     EventsConfig     `yaml:"events"`
	Log        LogConfig        `yaml:"log"`
}

type RepositoryConfig struct {
	// Backend is one of sqlite, fs or memory.
	Backend string `yaml:"backend"`
	// Path overrides the project-local .skillvcs directory.
	Path string `yaml:"path"`
}

type CacheConfig struct {
	Enabled           bool  `yaml:"enabled"`
	MaxCostBytes      int64 `yaml:"max_cost_bytes"`
	NumCounters       int64 `yaml:"num_counters"`
	ComparisonEntries int   `yaml:"comparison_entries"`
}

type DiffConfig struct {
	ContextLines int    `yaml:"context_lines"`
	DefaultMode  string `yaml:"default_mode"`
}

type MergeConfig struct {
	DefaultStrategy  string `yaml:"default_strategy"`
	RejectOnConflict bool   `yaml:"reject_on_conflict"`
}

type EventsConfig struct {
	Journal        bool          `yaml:"journal"`
	BufferSize     int           `yaml:"buffer_size"`
	DebounceWindow time.Duration `yaml:"debounce_window"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func NewManager(dirs *storage.Dirs, projectRoot string) *Manager {
	if projectRoot == "" {
		projectRoot = "."
	}
	m := &Manager{
		dirs:        dirs,
		projectRoot: projectRoot,
		logger:      slog.Default().With("component", "config"),
		stopWatch:   make(chan struct{}),
	}
	m.current.Store(DefaultConfig())
	return m
}

func DefaultConfig() *Config {
	return &Config{
		Repository: RepositoryConfig{
			Backend: "sqlite",
		},
		Cache: CacheConfig{
			Enabled:           true,
			MaxCostBytes:      64 << 20,
			NumCounters:       100_000,
			ComparisonEntries: 256,
		},
		Diff: DiffConfig{
			ContextLines: 3,
			DefaultMode:  "unified",
		},
		Merge: MergeConfig{
			DefaultStrategy: "merge",
		},
		Events: EventsConfig{
			Journal:        true,
			BufferSize:     1000,
			DebounceWindow: 100 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (m *Manager) Get() *Config {
	return m.current.Load()
}

func (m *Manager) Load() error {
	cfg := DefaultConfig()

	for _, layer := range m.layers() {
		if err := loadYAMLFile(layer.path, cfg); err != nil {
			return fmt.Errorf("%s config: %w", layer.name, err)
		}
	}
	applyEnvironment(cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	m.current.Store(cfg)
	m.notifyWatchers(cfg)
	return nil
}

type layer struct {
	name string
	path string
}

func (m *Manager) layers() []layer {
	project := storage.ResolveProjectDirs(m.projectRoot)
	layers := make([]layer, 0, 3)
	if m.dirs != nil {
		layers = append(layers, layer{"user", m.dirs.ConfigDir("config.yaml")})
	}
	return append(layers,
		layer{"project", project.Config},
		layer{"local", filepath.Join(project.Local, "config.yaml")},
	)
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvironment(cfg *Config) {
	if v := os.Getenv(envPrefix + "AUTHOR"); v != "" {
		cfg.Author = v
	}
	if v := os.Getenv(envPrefix + "BACKEND"); v != "" {
		cfg.Repository.Backend = v
	}
	if v := os.Getenv(envPrefix + "REPOSITORY"); v != "" {
		cfg.Repository.Path = v
	}
	if v := os.Getenv(envPrefix + "CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if v := os.Getenv(envPrefix + "CACHE_MAX_COST"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.MaxCostBytes = n
		}
	}
	if v := os.Getenv(envPrefix + "DIFF_CONTEXT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Diff.ContextLines = n
		}
	}
	if v := os.Getenv(envPrefix + "DIFF_MODE"); v != "" {
		cfg.Diff.DefaultMode = v
	}
	if v := os.Getenv(envPrefix + "MERGE_STRATEGY"); v != "" {
		cfg.Merge.DefaultStrategy = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func (c *Config) Validate() error {
	switch c.Repository.Backend {
	case "sqlite", "fs", "memory":
	default:
		return fmt.Errorf("%w: unknown repository backend %q", ErrInvalidConfig, c.Repository.Backend)
	}
	if c.Diff.ContextLines < 0 {
		return fmt.Errorf("%w: diff context_lines must not be negative", ErrInvalidConfig)
	}
	if c.Cache.Enabled && c.Cache.MaxCostBytes <= 0 {
		return fmt.Errorf("%w: cache max_cost_bytes must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// SlogLevel maps Log.Level onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

func (m *Manager) Reload() error {
	return m.Load()
}

// Watch reloads the config whenever one of its files changes, until ctx is
// done or Close is called. A reload that fails keeps the previous config.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, l := range m.layers() {
		abs, err := filepath.Abs(l.path)
		if err != nil {
			abs = l.path
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	// Editors replace files by rename, so the parent directories are watched.
	for dir := range dirs {
		if err := w.Add(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Debug("config dir not watched", "dir", dir, "error", err)
		}
	}

	go m.watchLoop(ctx, w, files)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, w *fsnotify.Watcher, files map[string]bool) {
	defer w.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopWatch:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !files[ev.Name] || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := m.Load(); err != nil {
				m.logger.Warn("config reload failed", "error", err)
				continue
			}
			m.logger.Info("config reloaded")
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			m.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (m *Manager) Close() error {
	m.watchOnce.Do(func() {
		close(m.stopWatch)
	})
	return nil
}
