// Package dispatch drives one entry through every selected publish target and
// records the resulting remote IDs in the archive.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/starford/monologue/internal/apperr"
	"github.com/starford/monologue/internal/archive"
	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/parser"
	"github.com/starford/monologue/internal/targets"
)

// Store is the archive surface the dispatcher needs. *archive.Store satisfies it.
type Store interface {
	Resolve(ctx context.Context, e *models.Entry) (*archive.Record, error)
	Save(ctx context.Context, e *models.Entry) (archive.SaveResult, error)
	Update(ctx context.Context, old models.Identity, e *models.Entry) (archive.SaveResult, error)
}

// Request selects targets and publish options.
type Request struct {
	// Targets names the targets to publish to; empty means all configured.
	Targets []string
	targets.Options
}

// Dispatcher publishes entries to targets sequentially.
type Dispatcher struct {
	store      Store
	targets    []targets.Target
	observers  []Observer
	parserOpts []parser.Option
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observers = append(d.observers, o) }
}

// WithParserOptions sets the options DispatchFile parses with.
func WithParserOptions(opts ...parser.Option) Option {
	return func(d *Dispatcher) { d.parserOpts = append(d.parserOpts, opts...) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher over the given targets, in dispatch order.
func New(store Store, ts []targets.Target, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		targets: ts,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Targets returns the names of the configured targets.
func (d *Dispatcher) Targets() []string {
	names := make([]string, len(d.targets))
	for i, t := range d.targets {
		names[i] = t.Name()
	}
	return names
}

// DispatchFile parses path and dispatches the entry.
func (d *Dispatcher) DispatchFile(ctx context.Context, path string, req Request) (*Report, error) {
	e, err := parser.ParseFile(path, d.parserOpts...)
	if err != nil {
		return nil, err
	}
	return d.Dispatch(ctx, e, req)
}

// Dispatch publishes e to the requested targets. A failing target never stops
// the next one; its failure is recorded in the report. The archive is written
// once, after every target ran, and only when something was created or
// updated. The returned error covers failures that prevented dispatch or the
// archive write, never individual target failures.
func (d *Dispatcher) Dispatch(ctx context.Context, e *models.Entry, req Request) (*Report, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrInvalidEntry, e.Subject(), err)
	}
	selected, err := d.selectTargets(req.Targets)
	if err != nil {
		return nil, err
	}

	prior, err := d.store.Resolve(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("dispatch: resolve %s: %w", e.Identity(), err)
	}
	previous := e.RemoteIDs
	if prior != nil {
		previous = models.MergeRemoteIDs(prior.Entry.RemoteIDs, e.RemoteIDs)
	}

	rep := &Report{Entry: e, DryRun: req.DryRun, StartedAt: d.now()}
	updated := make(map[string]string)
	current := e.WithRemoteIDs(previous)

	for _, t := range selected {
		if err := ctx.Err(); err != nil {
			res := targets.Failed(err)
			rep.Results = append(rep.Results, TargetResult{Target: t.Name(), Result: res})
			continue
		}
		res := d.publish(ctx, t, current, previous[t.Name()], req.Options)
		rep.Results = append(rep.Results, TargetResult{Target: t.Name(), Result: res})

		attrs := []any{
			slog.String("target", t.Name()),
			slog.String("date", e.DateKey()),
			slog.String("status", string(res.Status)),
		}
		if res.Status == targets.StatusFailed {
			d.logger.Error("dispatch: target failed", append(attrs, slog.String("error", res.Detail))...)
		} else {
			d.logger.Info("dispatch: target done", append(attrs, slog.String("remote_id", res.RemoteID))...)
		}

		if res.Status.Changed() && res.RemoteID != "" {
			updated[t.Name()] = res.RemoteID
			// later targets link to the content page as soon as it exists
			current = current.WithRemoteIDs(map[string]string{t.Name(): res.RemoteID})
		}
		r := res
		d.emit(ctx, Event{Kind: EventTargetDone, Target: t.Name(), Result: &r}, rep)
	}

	var archiveErr error
	if !req.DryRun && len(updated) > 0 {
		next := e.WithRemoteIDs(previous).WithRemoteIDs(updated)
		if next.LastModified.IsZero() {
			next.LastModified = d.now().UTC()
		}
		var saved archive.SaveResult
		var err error
		if prior != nil {
			// a target may have replaced a stale object, moving the content id
			saved, err = d.store.Update(ctx, prior.Entry.Identity(), next)
		} else {
			saved, err = d.store.Save(ctx, next)
		}
		if err != nil {
			archiveErr = fmt.Errorf("dispatch: archive %s: %w", e.DateKey(), err)
			d.logger.Error("dispatch: archive failed", slog.String("error", archiveErr.Error()))
		} else {
			rep.Entry = next
			rep.ArchivePath = saved.Path
			rep.ArchiveOutcome = saved.Outcome
			d.emit(ctx, Event{Kind: EventArchived, Path: saved.Path, Outcome: saved.Outcome}, rep)
		}
	}

	rep.FinishedAt = d.now()
	d.emit(ctx, Event{Kind: EventCompleted}, rep)
	return rep, archiveErr
}

func (d *Dispatcher) selectTargets(names []string) ([]targets.Target, error) {
	if len(names) == 0 {
		return d.targets, nil
	}
	var out []targets.Target
	for _, name := range names {
		idx := slices.IndexFunc(d.targets, func(t targets.Target) bool { return t.Name() == name })
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q", apperr.ErrUnknownTarget, name)
		}
		if !slices.Contains(out, d.targets[idx]) {
			out = append(out, d.targets[idx])
		}
	}
	return out, nil
}

func (d *Dispatcher) publish(ctx context.Context, t targets.Target, e *models.Entry, previousID string, opts targets.Options) (res targets.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = targets.Failed(fmt.Errorf("%s: panic: %v", t.Name(), r))
		}
	}()
	res = t.Publish(ctx, e, previousID, opts)
	if res.Status == "" {
		res = targets.Failed(errors.New(t.Name() + ": empty result"))
	}
	return res
}

func (d *Dispatcher) emit(ctx context.Context, ev Event, rep *Report) {
	ev.Date = rep.Entry.DateKey()
	ev.Subject = rep.Entry.Subject()
	ev.DryRun = rep.DryRun
	ev.Report = rep
	ev.Time = d.now()
	for _, o := range d.observers {
		o.Observe(ctx, ev)
	}
}
