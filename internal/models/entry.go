// Package models defines the domain types for monologue.
package models

import (
	"maps"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DateLayout is the canonical calendar date form used in headings and file names.
const DateLayout = "2006-01-02"

// Target names.
const (
	TargetNotion     = "notion"
	TargetButtondown = "buttondown"
	TargetSlack      = "slack"
)

// AllTargets lists every known target in dispatch order.
var AllTargets = []string{TargetNotion, TargetButtondown, TargetSlack}

// SourceFormat records which input layout produced an Entry.
type SourceFormat string

const (
	FormatPlain  SourceFormat = "plain"
	FormatLegacy SourceFormat = "legacy-archive"
)

// Entry is one parsed diary/newsletter post.
type Entry struct {
	Date         time.Time         `json:"date"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	RemoteIDs    map[string]string `json:"remote_ids,omitempty"`
	SourceFormat SourceFormat      `json:"source_format"`
	LastModified time.Time         `json:"last_modified,omitempty"`
	// Extra holds unrecognised legacy header keys so they survive a round-trip.
	Extra map[string]string `json:"extra,omitempty"`
}

// Identity is the logical identity of an archived entry. ContentID wins over Date
// whenever it is known.
type Identity struct {
	ContentID string
	Date      time.Time
}

// DateKey returns the date formatted as YYYY-MM-DD.
func (i Identity) DateKey() string {
	return i.Date.Format(DateLayout)
}

func (i Identity) String() string {
	if i.ContentID != "" {
		return i.ContentID
	}
	return i.DateKey()
}

// DateKey returns the entry date formatted as YYYY-MM-DD.
func (e *Entry) DateKey() string {
	return e.Date.Format(DateLayout)
}

// Subject returns "YYYY-MM-DD: Title", or just the date when the title is empty.
func (e *Entry) Subject() string {
	if e.Title == "" {
		return e.DateKey()
	}
	return e.DateKey() + ": " + e.Title
}

// ContentID returns the content-page identifier, the entry's logical identity.
func (e *Entry) ContentID() string {
	return e.RemoteIDs[TargetNotion]
}

// RemoteID returns the last known remote identifier for target.
func (e *Entry) RemoteID(target string) string {
	return e.RemoteIDs[target]
}

// Identity returns the entry's logical identity.
func (e *Entry) Identity() Identity {
	return Identity{ContentID: e.ContentID(), Date: e.Date}
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	c := *e
	c.RemoteIDs = maps.Clone(e.RemoteIDs)
	c.Extra = maps.Clone(e.Extra)
	return &c
}

// WithRemoteIDs returns a copy of e whose remote IDs are overlaid by ids.
// Empty values in ids are ignored.
func (e *Entry) WithRemoteIDs(ids map[string]string) *Entry {
	c := e.Clone()
	c.RemoteIDs = MergeRemoteIDs(c.RemoteIDs, ids)
	return c
}

// MergeRemoteIDs overlays top onto base and returns a new map.
func MergeRemoteIDs(base, top map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(top))
	for k, v := range base {
		if v != "" {
			out[k] = v
		}
	}
	for k, v := range top {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Blocks splits the body into blank-line separated markdown blocks.
// Fenced code blocks are kept whole even when they contain blank lines.
func (e *Entry) Blocks() []string {
	var (
		out     []string
		current []string
		fenced  bool
	)
	flush := func() {
		if len(current) > 0 {
			out = append(out, strings.Join(current, "\n"))
			current = nil
		}
	}
	for _, line := range strings.Split(e.Body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			fenced = !fenced
		}
		if !fenced && strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return out
}

// Validate checks that the entry can be published.
func (e *Entry) Validate() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.Date, validation.Required),
		validation.Field(&e.Title, validation.Required),
		validation.Field(&e.SourceFormat, validation.In(FormatPlain, FormatLegacy)),
	)
}

// EntryMetadata is a lightweight representation returned by archive listings.
type EntryMetadata struct {
	Path         string    `json:"path"`
	Date         string    `json:"date"`
	Subject      string    `json:"subject"`
	ContentID    string    `json:"content_id,omitempty"`
	LastModified time.Time `json:"last_modified"`
}
