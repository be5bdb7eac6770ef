package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/monologue/internal/storage"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, name string)

// Watch starts an fsnotify watcher on the archive directory and keeps the
// index in step with edits made outside monologue, until ctx is cancelled.
//
// Rename events trigger a reconciliation pass that removes stale index
// entries whose files no longer exist on disk.
func Watch(ctx context.Context, db *DB, store storage.Provider, archiveRoot string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(archiveRoot); err != nil {
		return err
	}
	logger.Info("index watcher: started", slog.String("root", archiveRoot))

	// reconcileTimer is used to debounce rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("index watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := Sync(db, store, logger); err != nil {
				logger.Warn("index watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			// Atomic writes land via rename from a temp file, which shows up
			// as a Create of the final name.
			if !strings.HasSuffix(name, ".md") || strings.HasPrefix(name, storage.TempPrefix) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := store.Read(name)
				if readErr != nil {
					logger.Warn("index watcher: read failed", slog.String("path", name), slog.String("error", readErr.Error()))
					continue
				}
				if idxErr := indexFile(db, name, data); idxErr != nil {
					logger.Warn("index watcher: index failed", slog.String("path", name), slog.String("error", idxErr.Error()))
					continue
				}
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				logger.Debug("index watcher: indexed", slog.String("path", name), slog.String("op", kind))
				if cb != nil {
					cb(kind, name)
				}

			case ev.Op&fsnotify.Remove != 0:
				if delErr := db.DeleteEntry(name); delErr != nil {
					logger.Warn("index watcher: delete failed", slog.String("path", name), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("index watcher: deleted", slog.String("path", name))
				if cb != nil {
					cb("deleted", name)
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the old path only; the new path
				// arrives as a separate Create.
				if delErr := db.DeleteEntry(name); delErr == nil && cb != nil {
					cb("deleted", name)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("index watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
