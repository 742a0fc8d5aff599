package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/laguz/internal/storage"
)

// fullScanKey is the debounce key for a whole-vault rescan. It cannot
// collide with a directory key because directory keys are never empty.
const fullScanKey = ""

// Watcher is the best-effort real-time layer: it subscribes to native
// filesystem events, debounces bursts per scan scope, and triggers scoped
// rescans through the Syncer. Correctness never depends on it; Scan is
// always callable standalone and remains the source of truth.
type Watcher struct {
	syncer   *Syncer
	vault    storage.Provider
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a change watcher. debounce <= 0 falls back to 1s.
func NewWatcher(syncer *Syncer, vault storage.Provider, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Watcher{syncer: syncer, vault: vault, debounce: debounce, logger: logger}
}

// Run watches the vault root until ctx is cancelled. New directories
// created at runtime are added to the watch list. Create/modify events
// schedule a scoped rescan of the containing directory; delete and rename
// events schedule a full rescan, since deletion detection needs a complete
// walk.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	root := w.vault.Root()
	if err := addDirsRecursive(fsw, root); err != nil {
		return err
	}

	deb := newDebouncer(w.debounce, func(key string) {
		if _, scanErr := w.syncer.Scan(ctx, key, false); scanErr != nil && ctx.Err() == nil {
			w.logger.Warn("watcher: rescan failed",
				slog.String("dir", key),
				slog.String("error", scanErr.Error()))
		}
	})
	defer deb.Stop()

	w.logger.Info("watcher: started", slog.String("root", root))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, deb, root, ev)

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, deb *debouncer, root string, ev fsnotify.Event) {
	absPath := ev.Name

	// New directories join the watch list and get their own scoped scan.
	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(fsw, absPath); addErr != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", absPath),
					slog.String("error", addErr.Error()))
			}
			if rel, relErr := filepath.Rel(root, absPath); relErr == nil {
				deb.Schedule(filepath.ToSlash(rel))
			}
			return
		}
	}

	// A removal or rename may target a file or an entire directory, and the
	// path is already gone so the two cannot be told apart. Deletion
	// detection compares the full stored snapshot against a full walk, so
	// scope the rescan to the whole vault either way.
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		deb.Schedule(fullScanKey)
		w.logger.Debug("watcher: removal", slog.String("path", absPath))
		return
	}

	if !w.vault.Supported(absPath) {
		return
	}
	rel, relErr := filepath.Rel(root, absPath)
	if relErr != nil || strings.HasPrefix(rel, "..") {
		return
	}

	if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		dir := filepath.ToSlash(filepath.Dir(rel))
		if dir == "." {
			dir = fullScanKey
		}
		deb.Schedule(dir)
		w.logger.Debug("watcher: change", slog.String("path", filepath.ToSlash(rel)))
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher,
// skipping hidden directories.
func addDirsRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
