// Package archive keeps the canonical local copy of every published entry:
// one legacy-format file per date, named YYYY-MM-DD.md.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/starford/monologue/internal/apperr"
	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/parser"
	"github.com/starford/monologue/internal/storage"
)

// Outcome describes what Save did.
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeSuperseded       Outcome = "superseded"
	OutcomeRemoteIDsUpdated Outcome = "remote-ids-updated"
	OutcomeAlreadyCurrent   Outcome = "already-current"
)

// Record is an archived entry together with its file.
type Record struct {
	Entry *models.Entry
	Name  string
	Path  string
}

// SaveResult reports the effect of a Save or Supersede call.
type SaveResult struct {
	Outcome Outcome
	Path    string
	Removed []string
}

// RepairReport lists the files removed by Repair.
type RepairReport struct {
	TempFiles  []string
	Duplicates []string
}

// Empty reports whether Repair changed nothing.
func (r RepairReport) Empty() bool {
	return len(r.TempFiles) == 0 && len(r.Duplicates) == 0
}

// Store is the archive store.
type Store struct {
	files  storage.Provider
	logger *slog.Logger
	mu     sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open creates a Store over files and runs a consistency repair so a crash during
// a previous supersede never leaves duplicate identities behind.
func Open(ctx context.Context, files storage.Provider, opts ...Option) (*Store, error) {
	s := &Store{files: files, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	rep, err := s.Repair(ctx)
	if err != nil {
		return nil, err
	}
	if list, err := files.List(); err == nil {
		for _, f := range list {
			if !IsRecordName(f.Name) {
				s.logger.Warn("archive: ignoring non-entry file", slog.String("file", f.Name))
			}
		}
	}
	if !rep.Empty() {
		s.logger.Warn("archive: repaired",
			slog.String("temp_files", strings.Join(rep.TempFiles, ",")),
			slog.String("duplicates", strings.Join(rep.Duplicates, ",")))
	}
	return s, nil
}

// Lookup finds the archived record for id. A content-id match is authoritative;
// a date match is used only when one side has no content id.
func (s *Store) Lookup(ctx context.Context, id models.Identity) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return lookup(recs, id)
}

// Resolve returns the record e would replace, or nil when e is new. It fails
// with an identity conflict when saving e could not succeed.
func (s *Store) Resolve(ctx context.Context, e *models.Entry) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	prior, err := lookup(recs, e.Identity())
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if err := checkSlot(recs, prior, e); err != nil {
		return nil, err
	}
	return prior, nil
}

// Get returns the record archived under dateKey.
func (s *Store) Get(ctx context.Context, dateKey string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(FileName(dateKey))
}

// List returns metadata for every archived entry, newest date first.
func (s *Store) List(ctx context.Context) ([]models.EntryMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.EntryMetadata, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		out = append(out, models.EntryMetadata{
			Path:         r.Path,
			Date:         r.Entry.DateKey(),
			Subject:      r.Entry.Subject(),
			ContentID:    r.Entry.ContentID(),
			LastModified: r.Entry.LastModified,
		})
	}
	return out, nil
}

// Records returns every archived record ordered by file name.
func (s *Store) Records(ctx context.Context) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Save archives e. An existing record for the same identity is replaced only
// when e is strictly newer; an older or equal e that carries new remote IDs
// only updates the stored IDs; otherwise the store reports already current.
func (s *Store) Save(ctx context.Context, e *models.Entry) (SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load(ctx)
	if err != nil {
		return SaveResult{}, err
	}
	prior, err := lookup(recs, e.Identity())
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return SaveResult{}, err
	}
	return s.save(recs, prior, e)
}

// Update is Save for an entry that replaces the record archived under old even
// when e's own identity no longer matches it, as happens when a target
// recreated a stale remote object and the content id moved.
func (s *Store) Update(ctx context.Context, old models.Identity, e *models.Entry) (SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load(ctx)
	if err != nil {
		return SaveResult{}, err
	}
	prior, err := lookup(recs, old)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return SaveResult{}, err
	}
	if prior != nil && e.ContentID() != "" && e.ContentID() != prior.Entry.ContentID() {
		// the new content id must not already belong to another record
		for _, r := range recs {
			if r != prior && r.Entry.ContentID() == e.ContentID() {
				return SaveResult{}, conflict(e.ContentID(), e.DateKey(), prior, r)
			}
		}
	}
	return s.save(recs, prior, e)
}

func (s *Store) save(recs []*Record, prior *Record, e *models.Entry) (SaveResult, error) {
	if err := checkSlot(recs, prior, e); err != nil {
		return SaveResult{}, err
	}

	if prior == nil {
		path, err := s.write(e)
		if err != nil {
			return SaveResult{}, err
		}
		s.logger.Info("archive: created", slog.String("path", path))
		return SaveResult{Outcome: OutcomeCreated, Path: path}, nil
	}

	if e.LastModified.After(prior.Entry.LastModified) {
		return s.replace(prior, e.WithRemoteIDs(models.MergeRemoteIDs(prior.Entry.RemoteIDs, e.RemoteIDs)))
	}

	merged := models.MergeRemoteIDs(prior.Entry.RemoteIDs, e.RemoteIDs)
	if maps.Equal(merged, models.MergeRemoteIDs(prior.Entry.RemoteIDs, nil)) {
		s.logger.Debug("archive: already current", slog.String("path", prior.Path))
		return SaveResult{Outcome: OutcomeAlreadyCurrent, Path: prior.Path}, nil
	}

	updated := prior.Entry.WithRemoteIDs(e.RemoteIDs)
	if err := s.files.Write(prior.Name, Encode(updated)); err != nil {
		return SaveResult{}, fmt.Errorf("archive: update remote ids: %w", err)
	}
	s.logger.Info("archive: remote ids updated", slog.String("path", prior.Path))
	return SaveResult{Outcome: OutcomeRemoteIDsUpdated, Path: prior.Path}, nil
}

// Supersede unconditionally replaces the record for old with e, regardless of
// timestamps. Remote IDs of the old record are kept unless e overrides them.
func (s *Store) Supersede(ctx context.Context, old models.Identity, e *models.Entry) (SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load(ctx)
	if err != nil {
		return SaveResult{}, err
	}
	prior, err := lookup(recs, old)
	if err != nil {
		return SaveResult{}, err
	}
	if err := checkSlot(recs, prior, e); err != nil {
		return SaveResult{}, err
	}
	return s.replace(prior, e.WithRemoteIDs(models.MergeRemoteIDs(prior.Entry.RemoteIDs, e.RemoteIDs)))
}

// Repair removes temp files from interrupted writes and collapses records that
// share a content id, keeping the newest by Last-Modified.
func (s *Store) Repair(ctx context.Context) (RepairReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rep RepairReport
	swept, err := s.files.Sweep()
	if err != nil {
		return rep, err
	}
	rep.TempFiles = swept

	recs, err := s.load(ctx)
	if err != nil {
		return rep, err
	}
	byID := make(map[string][]*Record)
	for _, r := range recs {
		if cid := r.Entry.ContentID(); cid != "" {
			byID[cid] = append(byID[cid], r)
		}
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		group := byID[id]
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			a, b := group[i].Entry.LastModified, group[j].Entry.LastModified
			if a.Equal(b) {
				return group[i].Name < group[j].Name
			}
			return a.Before(b)
		})
		for _, stale := range group[:len(group)-1] {
			if err := s.files.Delete(stale.Name); err != nil {
				return rep, fmt.Errorf("archive: repair: %w", err)
			}
			rep.Duplicates = append(rep.Duplicates, stale.Name)
		}
	}
	return rep, nil
}

func (s *Store) replace(prior *Record, e *models.Entry) (SaveResult, error) {
	path, err := s.write(e)
	if err != nil {
		return SaveResult{}, err
	}
	res := SaveResult{Outcome: OutcomeSuperseded, Path: path}
	if prior.Name != FileName(e.DateKey()) {
		if err := s.files.Delete(prior.Name); err != nil {
			return res, fmt.Errorf("archive: remove superseded %s: %w", prior.Name, err)
		}
		res.Removed = append(res.Removed, prior.Path)
	}
	s.logger.Info("archive: superseded", slog.String("path", path), slog.String("previous", prior.Path))
	return res, nil
}

func (s *Store) write(e *models.Entry) (string, error) {
	name := FileName(e.DateKey())
	if err := s.files.Write(name, Encode(e)); err != nil {
		return "", fmt.Errorf("archive: write %s: %w", name, err)
	}
	return s.files.Path(name), nil
}

func (s *Store) read(name string) (*Record, error) {
	data, err := s.files.Read(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	e, err := parser.Parse(data, parser.WithSource(name))
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return &Record{Entry: e, Name: name, Path: s.files.Path(name)}, nil
}

func (s *Store) load(ctx context.Context) ([]*Record, error) {
	files, err := s.files.List()
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !IsRecordName(f.Name) {
			continue
		}
		r, err := s.read(f.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func lookup(recs []*Record, id models.Identity) (*Record, error) {
	if id.ContentID != "" {
		var matches []*Record
		for _, r := range recs {
			if r.Entry.ContentID() == id.ContentID {
				matches = append(matches, r)
			}
		}
		switch len(matches) {
		case 0:
		case 1:
			return matches[0], nil
		default:
			return nil, conflict(id.ContentID, id.DateKey(), matches...)
		}
	}
	name := FileName(id.DateKey())
	for _, r := range recs {
		if r.Name != name {
			continue
		}
		if id.ContentID == "" || r.Entry.ContentID() == "" {
			return r, nil
		}
	}
	return nil, apperr.ErrNotFound
}

// checkSlot rejects writes whose date file belongs to a different identity.
func checkSlot(recs []*Record, prior *Record, e *models.Entry) error {
	name := FileName(e.DateKey())
	for _, r := range recs {
		if r.Name != name {
			continue
		}
		if prior != nil && prior.Name == name {
			return nil
		}
		return conflict(e.ContentID(), e.DateKey(), r)
	}
	return nil
}

func conflict(contentID, date string, recs ...*Record) error {
	paths := make([]string, len(recs))
	for i, r := range recs {
		paths[i] = r.Path
	}
	return &apperr.IdentityConflictError{ContentID: contentID, Date: date, Paths: paths}
}
