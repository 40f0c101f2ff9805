package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/zjrosen/propane/internal/activation"
	"github.com/zjrosen/propane/internal/config"
	"github.com/zjrosen/propane/internal/flags"
	"github.com/zjrosen/propane/internal/infrastructure/sqlite"
	"github.com/zjrosen/propane/internal/log"
	"github.com/zjrosen/propane/internal/source"
)

// Assembly is the set of sources a configuration describes, plus what a
// watcher should observe for them. Close releases the store.
type Assembly struct {
	Sources    []source.Source
	WatchDirs  []string
	WatchFiles []string
	Cache      source.ParseCache

	store *sqlite.DB
}

// Assemble opens the sources named by cfg in scan order: manifest
// directories, the store, then the user directory when the user-manifests
// flag is on. A missing manifest directory is still added so the scan
// reports it as unreadable.
func Assemble(cfg config.Config, ff *flags.Registry) (*Assembly, error) {
	a := &Assembly{}

	var fsOpts []source.FSOption
	if cfg.Cache.Enabled {
		cache := source.NewParseCache(cfg.Cache.TTL)
		a.Cache = cache
		fsOpts = append(fsOpts, source.WithCache(cache, cfg.Cache.TTL))
	}

	for _, dir := range cfg.Sources.ManifestDirs {
		a.Sources = append(a.Sources, source.NewDir(dir, fsOpts...))
		a.WatchDirs = append(a.WatchDirs, dir)
	}

	if cfg.Sources.Store != "" {
		db, err := sqlite.NewDB(cfg.Sources.Store)
		if err != nil {
			return nil, fmt.Errorf("open manifest store: %w", err)
		}
		a.store = db
		a.Sources = append(a.Sources, db.Store())
		if ff.Enabled(flags.FlagWatchStore) {
			a.WatchFiles = append(a.WatchFiles, cfg.Sources.Store)
		}
	}

	if ff.Enabled(flags.FlagUserManifests) && cfg.Sources.UserDir != "" {
		a.Sources = append(a.Sources, source.UserDir(cfg.Sources.UserDir, fsOpts...))
		if info, err := os.Stat(cfg.Sources.UserDir); err == nil && info.IsDir() {
			a.WatchDirs = append(a.WatchDirs, cfg.Sources.UserDir)
		}
	}

	log.Debug(log.CatEngine, "sources assembled",
		"sources", len(a.Sources), "watch_dirs", len(a.WatchDirs), "store", cfg.Sources.Store)
	return a, nil
}

// Store returns the opened manifest store, or nil when none is configured.
func (a *Assembly) Store() *sqlite.Store {
	if a.store == nil {
		return nil
	}
	return a.store.Store()
}

// EngineConfig fills an engine Config from cfg and the assembled sources.
func (a *Assembly) EngineConfig(cfg config.Config) (Config, error) {
	mode, err := activation.ParseMode(cfg.Activation.Mode)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Sources:           a.Sources,
		Mode:              mode,
		Parallelism:       cfg.Scan.Parallelism,
		ImplicitContracts: cfg.Resolution.ImplicitContracts,
		AllowUnreadable:   cfg.Scan.AllowUnreadable,
		WatchDirs:         a.WatchDirs,
		WatchFiles:        a.WatchFiles,
		Debounce:          cfg.Watch.Debounce,
	}, nil
}

// Close closes the store, if one was opened.
func (a *Assembly) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
