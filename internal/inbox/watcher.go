package inbox

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 500 * time.Millisecond

// ImportCallback is called after each watcher-driven import run.
type ImportCallback func(sum *Summary, err error)

// Watch runs imp whenever markdown or zip files are created or written in the
// inbox, until ctx is cancelled. Bursts of events are debounced into one run.
func Watch(ctx context.Context, imp *Importer, opts Options, debounce time.Duration, logger *slog.Logger, cb ImportCallback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(imp.Dir()); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("inbox", imp.Dir()))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			sum, err := imp.Import(ctx, opts)
			if err != nil {
				logger.Error("watcher: import failed", slog.String("error", err.Error()))
			}
			if cb != nil {
				cb(sum, err)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !relevant(ev.Name) {
				continue
			}
			logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func relevant(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".md" || ext == ".zip"
}
