package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/adalundhe/skillvcs/core/config"
	"github.com/adalundhe/skillvcs/core/events"
	"github.com/adalundhe/skillvcs/core/storage"
	"github.com/adalundhe/skillvcs/core/versioning"
)

var errNoRepository = errors.New("no skillvcs repository")

// app is one CLI invocation's view of a repository: config, blob backend,
// commit index, event bus and the versioning manager on top of them.
type app struct {
	cfg     *config.Config
	project *storage.ProjectDirs
	fs      afero.Fs
	logger  *slog.Logger
	bus     *events.Bus
	manager *versioning.Manager
	author  string

	// persist is false for the memory backend, whose blobs die with the
	// process; saving its index would leave commits without content.
	persist bool
	closers []func() error
}

// loadConfig resolves the user directories and loads the layered config for
// the project at rootRepo.
func loadConfig() (*config.Config, error) {
	dirs, err := storage.ResolveDirs()
	if err != nil {
		return nil, fmt.Errorf("resolve directories: %w", err)
	}
	mgr := config.NewManager(dirs, rootRepo)
	if err := mgr.Load(); err != nil {
		return nil, err
	}
	return mgr.Get(), nil
}

func projectDirs(cfg *config.Config) *storage.ProjectDirs {
	if cfg.Repository.Path != "" {
		return storage.ProjectDirsAt(cfg.Repository.Path)
	}
	return storage.ResolveProjectDirs(rootRepo)
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := cfg.SlogLevel()
	if rootLogLevel != "" {
		if err := level.UnmarshalText([]byte(rootLogLevel)); err != nil {
			level = slog.LevelInfo
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func resolveAuthor(cfg *config.Config) string {
	switch {
	case rootAuthor != "":
		return rootAuthor
	case cfg.Author != "":
		return cfg.Author
	case os.Getenv("USER") != "":
		return os.Getenv("USER")
	}
	return "unknown"
}

// openApp wires a repository for one command. Callers must Close it.
func openApp(stderr io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		project: projectDirs(cfg),
		fs:      afero.NewOsFs(),
		logger:  newLogger(stderr, cfg),
		author:  resolveAuthor(cfg),
		persist: cfg.Repository.Backend != "memory",
	}
	slog.SetDefault(a.logger)

	if a.persist && !a.project.Exists() {
		return nil, fmt.Errorf("%w at %s (run 'skillvcs init')", errNoRepository, a.project.Root)
	}

	opened := false
	defer func() {
		if !opened {
			a.closeResources()
		}
	}()

	blobs, err := a.openBlobs()
	if err != nil {
		return nil, err
	}

	store := versioning.NewVersionStore()
	if a.persist {
		if err := versioning.LoadSnapshot(a.fs, a.project.Index, store); err != nil {
			return nil, err
		}
	}

	a.bus = events.NewBus(events.BusConfig{
		BufferSize:     cfg.Events.BufferSize,
		DebounceWindow: cfg.Events.DebounceWindow,
		Logger:         a.logger,
	})
	a.bus.Subscribe(events.NewLogSubscriber(a.logger))
	if cfg.Events.Journal && a.persist {
		a.bus.Subscribe(events.NewJournal(a.fs, a.project.Journal))
	}
	a.bus.Start()
	a.closers = append(a.closers, func() error {
		a.bus.Close()
		return nil
	})

	mode, err := versioning.ParseDiffMode(cfg.Diff.DefaultMode)
	if err != nil {
		return nil, err
	}
	a.manager, err = versioning.NewManager(versioning.ManagerConfig{
		Store:               store,
		Blobs:               blobs,
		Source:              versioning.NewFSContentSource(a.fs, rootRepo),
		Notifier:            a.bus,
		Logger:              a.logger,
		ContextLines:        cfg.Diff.ContextLines,
		DefaultDiffMode:     mode,
		ComparisonCacheSize: cfg.Cache.ComparisonEntries,
	})
	if err != nil {
		return nil, err
	}

	a.logger.Debug("repository opened",
		"root", a.project.Root,
		"backend", cfg.Repository.Backend,
		"cache", cfg.Cache.Enabled,
		"documents", len(store.Documents()))
	opened = true
	return a, nil
}

func (a *app) openBlobs() (versioning.BlobStore, error) {
	var backing versioning.BlobStore
	switch a.cfg.Repository.Backend {
	case "sqlite":
		s, err := versioning.NewSQLiteBlobStore(a.project.BlobDB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		backing = s
	case "fs":
		s, err := versioning.NewFSBlobStore(a.fs, a.project.Blobs)
		if err != nil {
			return nil, err
		}
		backing = s
	default:
		backing = versioning.NewMemoryBlobStore()
	}

	if !a.cfg.Cache.Enabled {
		return backing, nil
	}
	cached, err := versioning.NewCachedBlobStore(backing, versioning.BlobCacheConfig{
		NumCounters: a.cfg.Cache.NumCounters,
		MaxCost:     a.cfg.Cache.MaxCostBytes,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		cached.Close()
		return nil
	})
	return cached, nil
}

// Close persists the commit index and releases every backend.
func (a *app) Close() error {
	var errs []error
	if a.persist && a.manager != nil {
		if err := versioning.SaveSnapshot(a.fs, a.project.Index, a.manager.Store()); err != nil {
			errs = append(errs, fmt.Errorf("save index: %w", err))
		}
	}
	errs = append(errs, a.closeResources())
	return errors.Join(errs...)
}

// closeResources runs closers in reverse order of acquisition.
func (a *app) closeResources() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp opens the repository, runs fn and closes it, keeping the first
// error.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}
