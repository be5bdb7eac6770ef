package dispatch

import (
	"context"
	"time"

	"github.com/starford/monologue/internal/archive"
	"github.com/starford/monologue/internal/targets"
)

// EventKind names a dispatch lifecycle event.
type EventKind string

const (
	EventTargetDone EventKind = "target.done"
	EventArchived   EventKind = "entry.archived"
	EventCompleted  EventKind = "dispatch.completed"
)

// Event is emitted to observers as a dispatch progresses.
type Event struct {
	Kind    EventKind       `json:"kind"`
	Date    string          `json:"date"`
	Subject string          `json:"subject"`
	Target  string          `json:"target,omitempty"`
	Result  *targets.Result `json:"result,omitempty"`
	Path    string          `json:"path,omitempty"`
	Outcome archive.Outcome `json:"outcome,omitempty"`
	Report  *Report         `json:"-"`
	DryRun  bool            `json:"dry_run"`
	Time    time.Time       `json:"time"`
}

// Observer receives dispatch events. Observe must not block for long; it runs
// on the dispatching goroutine.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }
