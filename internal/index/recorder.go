package index

import (
	"context"
	"log/slog"

	"github.com/starford/monologue/internal/dispatch"
	"github.com/starford/monologue/internal/storage"
)

// Recorder is a dispatch observer that logs every target outcome to the
// publish history and re-syncs the index after the archive changes.
type Recorder struct {
	db     *DB
	store  storage.Provider
	logger *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(db *DB, store storage.Provider, logger *slog.Logger) *Recorder {
	return &Recorder{db: db, store: store, logger: logger}
}

func (r *Recorder) Observe(_ context.Context, ev dispatch.Event) {
	switch ev.Kind {
	case dispatch.EventTargetDone:
		if ev.Result == nil {
			return
		}
		err := r.db.RecordPublish(PublishRow{
			Date:      ev.Date,
			Subject:   ev.Subject,
			Target:    ev.Target,
			Status:    string(ev.Result.Status),
			RemoteID:  ev.Result.RemoteID,
			Detail:    ev.Result.Detail,
			DryRun:    ev.DryRun,
			CreatedAt: ev.Time,
		})
		if err != nil {
			r.logger.Warn("index: record publish failed", slog.String("error", err.Error()))
		}
	case dispatch.EventArchived:
		if err := Sync(r.db, r.store, r.logger); err != nil {
			r.logger.Warn("index: sync after archive failed", slog.String("error", err.Error()))
		}
	}
}
