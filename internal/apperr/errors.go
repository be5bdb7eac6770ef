// Package apperr holds the error taxonomy shared across monologue packages.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrFormat           = errors.New("unrecognised entry format")
	ErrIdentityConflict = errors.New("archive identity conflict")
	ErrInvalidEntry     = errors.New("invalid entry")
	ErrUnknownTarget    = errors.New("unknown target")
)

// FormatError reports input that has no recognisable heading or date.
type FormatError struct {
	Source string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("format error: %s", e.Reason)
	}
	return fmt.Sprintf("format error in %s: %s", e.Source, e.Reason)
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// IdentityConflictError reports an archive operation that would leave two
// records claiming the same logical identity.
type IdentityConflictError struct {
	ContentID string
	Date      string
	Paths     []string
}

func (e *IdentityConflictError) Error() string {
	return fmt.Sprintf("identity conflict for %s (date %s): %s",
		e.ContentID, e.Date, strings.Join(e.Paths, ", "))
}

func (e *IdentityConflictError) Unwrap() error { return ErrIdentityConflict }
