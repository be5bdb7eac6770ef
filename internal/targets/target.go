// Package targets defines the publishing destination contract shared by the
// notion, buttondown and slack adapters.
package targets

import (
	"context"
	"fmt"

	"github.com/starford/monologue/internal/models"
)

// Status is the per-target outcome of a publish attempt.
type Status string

const (
	StatusCreated   Status = "created"
	StatusUpdated   Status = "updated"
	StatusPreviewed Status = "previewed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Changed reports whether the status means a remote object was written.
func (s Status) Changed() bool {
	return s == StatusCreated || s == StatusUpdated
}

// Options tune a single publish call.
type Options struct {
	DryRun bool
	// AsCanvas publishes to Slack as a canvas instead of a channel message.
	AsCanvas bool
}

// Result is what a target reports back for one entry.
type Result struct {
	Status   Status `json:"status"`
	RemoteID string `json:"remote_id,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Target publishes entries to one remote destination.
//
// previousID is the identifier returned by the last successful publish of the
// same entry, or "" when there is none. Publish must update that object in
// place when it still exists and create a fresh one otherwise. Failures are
// reported in the Result, never by panicking.
type Target interface {
	Name() string
	Publish(ctx context.Context, e *models.Entry, previousID string, opts Options) Result
}

// DryRunID is the placeholder remote id reported by dry runs.
func DryRunID(target string, e *models.Entry) string {
	return fmt.Sprintf("dry-run:%s:%s", target, e.DateKey())
}

// Preview returns the dry-run result for target.
func Preview(target string, e *models.Entry, previousID string) Result {
	detail := "would create"
	if previousID != "" {
		detail = "would update " + previousID
	}
	return Result{Status: StatusPreviewed, RemoteID: DryRunID(target, e), Detail: detail}
}

// Failed wraps err in a failed Result.
func Failed(err error) Result {
	return Result{Status: StatusFailed, Detail: err.Error()}
}

type unavailable struct {
	name   string
	reason string
}

// Unavailable returns a Target that always reports skipped, used when a
// target's credentials are not configured.
func Unavailable(name, reason string) Target {
	return &unavailable{name: name, reason: reason}
}

func (u *unavailable) Name() string { return u.name }

func (u *unavailable) Publish(context.Context, *models.Entry, string, Options) Result {
	return Result{Status: StatusSkipped, Detail: u.reason}
}
