// Package watcher watches manifest directories and the manifest store with
// debouncing so a burst of edits triggers one registry rebuild.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/propane/internal/log"
	"github.com/zjrosen/propane/internal/source"
)

// DefaultDebounce coalesces editor save bursts.
const DefaultDebounce = 200 * time.Millisecond

// Watcher monitors manifest files and sends a signal after changes settle.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dirs      []string
	files     map[string]bool
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

// Config holds watcher configuration options.
type Config struct {
	// Dirs are watched recursively for manifest files. Directories created
	// later are picked up. Missing directories are skipped.
	Dirs []string
	// Files are watched individually, along with their SQLite -wal and
	// -journal companions.
	Files       []string
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(dirs ...string) Config {
	return Config{
		Dirs:        dirs,
		DebounceDur: DefaultDebounce,
	}
}

// New creates a new manifest watcher.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Dirs) == 0 && len(cfg.Files) == 0 {
		return nil, errors.New("watcher: nothing to watch")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	debounce := cfg.DebounceDur
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	files := make(map[string]bool, len(cfg.Files)*3)
	for _, f := range cfg.Files {
		abs := filepath.Clean(f)
		files[abs] = true
		files[abs+"-wal"] = true
		files[abs+"-journal"] = true
	}

	return &Watcher{
		fsWatcher: fsw,
		dirs:      cfg.Dirs,
		files:     files,
		debounce:  debounce,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. Returns a channel that receives a signal when a
// manifest changes. Fails only when no path at all could be watched.
func (w *Watcher) Start() (<-chan struct{}, error) {
	watched := 0
	for _, dir := range w.dirs {
		n, err := w.addTree(dir)
		if err != nil {
			log.Warn(log.CatWatcher, "cannot watch manifest dir", "dir", dir, "error", err)
		}
		watched += n
	}

	parents := make(map[string]bool)
	for f := range w.files {
		parents[filepath.Dir(f)] = true
	}
	for dir := range parents {
		if err := w.fsWatcher.Add(dir); err != nil {
			log.Warn(log.CatWatcher, "cannot watch store dir", "dir", dir, "error", err)
			continue
		}
		watched++
	}

	if watched == 0 {
		return nil, fmt.Errorf("watching %s: no directory could be watched", strings.Join(w.dirs, ", "))
	}
	log.Info(log.CatWatcher, "watching manifests", "dirs", watched, "debounce", w.debounce)

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources. Safe to call twice.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

// addTree watches dir and every non-hidden subdirectory.
func (w *Watcher) addTree(dir string) (int, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, err
	}
	added := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return fmt.Errorf("watching directory %s: %w", path, err)
		}
		added++
		return nil
	})
	return added, err
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			newDir := false
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if _, err := w.addTree(event.Name); err != nil {
						log.Warn(log.CatWatcher, "cannot watch new dir", "dir", event.Name, "error", err)
					}
					// A directory may arrive with files already in it.
					newDir = true
				}
			}

			if !newDir && !w.isRelevantEvent(event) {
				continue
			}
			log.Debug(log.CatWatcher, "manifest change", "path", event.Name, "op", event.Op.String())

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending = true

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				// Non-blocking send, a signal is already queued
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "watch error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent checks if the event should trigger a rebuild.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if w.files[filepath.Clean(event.Name)] {
		return true
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return source.IsManifest(event.Name)
}
