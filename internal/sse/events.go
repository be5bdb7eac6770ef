package sse

import (
	"slices"
	"time"

	"github.com/starford/monologue/internal/archive"
	"github.com/starford/monologue/internal/dispatch"
	"github.com/starford/monologue/internal/targets"
)

// Event types sent to clients.
const (
	EventIndexChanged     = "index.changed"
	EventTargetProgress   = "publish.target"
	EventEntryArchived    = "entry.archived"
	EventPublishCompleted = "publish.completed"
	EventInboxImported    = "inbox.imported"
)

// TargetProgress reports one target finishing within a publish run.
type TargetProgress struct {
	Date     string         `json:"date"`
	Subject  string         `json:"subject"`
	Target   string         `json:"target"`
	Status   targets.Status `json:"status"`
	RemoteID string         `json:"remote_id,omitempty"`
	Detail   string         `json:"detail,omitempty"`
	DryRun   bool           `json:"dry_run"`
}

// ArchiveChange reports the archive write at the end of a publish run.
type ArchiveChange struct {
	Date    string          `json:"date"`
	Path    string          `json:"path"`
	Outcome archive.Outcome `json:"outcome"`
}

// PublishSummary closes a publish run.
type PublishSummary struct {
	Date       string   `json:"date"`
	Subject    string   `json:"subject"`
	OK         bool     `json:"ok"`
	Failed     []string `json:"failed,omitempty"`
	Archived   bool     `json:"archived"`
	DryRun     bool     `json:"dry_run"`
	DurationMS int64    `json:"duration_ms"`
}

// IndexChange lists the archive files that changed since the previous
// index.changed event.
type IndexChange struct {
	Paths []string `json:"paths"`
}

// fromDispatch maps a dispatch event to the client-facing event. ok is false
// for events clients do not see.
func fromDispatch(ev dispatch.Event) (Event, bool) {
	switch ev.Kind {
	case dispatch.EventTargetDone:
		if ev.Result == nil {
			return Event{}, false
		}
		return Event{Type: EventTargetProgress, Data: TargetProgress{
			Date:     ev.Date,
			Subject:  ev.Subject,
			Target:   ev.Target,
			Status:   ev.Result.Status,
			RemoteID: ev.Result.RemoteID,
			Detail:   ev.Result.Detail,
			DryRun:   ev.DryRun,
		}}, true
	case dispatch.EventArchived:
		return Event{Type: EventEntryArchived, Data: ArchiveChange{Date: ev.Date, Path: ev.Path, Outcome: ev.Outcome}}, true
	case dispatch.EventCompleted:
		sum := PublishSummary{Date: ev.Date, Subject: ev.Subject, OK: true, DryRun: ev.DryRun}
		if rep := ev.Report; rep != nil {
			sum.OK = rep.OK()
			sum.Failed = rep.Failed()
			sum.Archived = rep.Archived()
			if !rep.FinishedAt.IsZero() {
				sum.DurationMS = rep.FinishedAt.Sub(rep.StartedAt).Milliseconds()
			}
		}
		return Event{Type: EventPublishCompleted, Data: sum}, true
	}
	return Event{}, false
}

// entryEventType maps an index watcher callback kind to an event type.
func entryEventType(kind string) (string, bool) {
	switch kind {
	case "created", "updated", "deleted":
		return "entry." + kind, true
	}
	return "", false
}

func pendingPaths(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
