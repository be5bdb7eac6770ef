// Package journal is the read/publish surface shared by the HTTP API, the MCP
// server and the CLI. It coordinates the archive, the index and the dispatcher.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/starford/monologue/internal/apperr"
	"github.com/starford/monologue/internal/archive"
	"github.com/starford/monologue/internal/checksum"
	"github.com/starford/monologue/internal/dispatch"
	"github.com/starford/monologue/internal/inbox"
	"github.com/starford/monologue/internal/index"
	"github.com/starford/monologue/internal/links"
	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/parser"
)

// ErrNoInbox is returned by Import when no inbox directory is configured.
var ErrNoInbox = errors.New("journal: no inbox configured")

// EntryDetail is the full representation of an archived entry.
type EntryDetail struct {
	Path         string            `json:"path"`
	Date         string            `json:"date"`
	Title        string            `json:"title"`
	Subject      string            `json:"subject"`
	ContentID    string            `json:"content_id,omitempty"`
	RemoteIDs    map[string]string `json:"remote_ids"`
	LastModified time.Time         `json:"last_modified"`
	Body         string            `json:"body"`
	Content      string            `json:"content"`
	Checksum     string            `json:"checksum"`
}

// Info describes what publishing an entry would do, without doing it.
type Info struct {
	Entry       *models.Entry     `json:"entry"`
	Subject     string            `json:"subject"`
	Blocks      int               `json:"blocks"`
	ArchivePath string            `json:"archive_path,omitempty"`
	PreviousIDs map[string]string `json:"previous_ids"`
	Targets     []string          `json:"targets"`
	// InternalLinks lists content-service links the rewriter could not make public.
	InternalLinks []links.Finding `json:"internal_links"`
}

// Service coordinates archive, index and dispatch operations.
type Service struct {
	store      *archive.Store
	db         *index.DB
	dispatcher *dispatch.Dispatcher
	rewriter   *links.Rewriter
	importer   *inbox.Importer
}

// Option configures a Service.
type Option func(*Service)

// WithImporter enables Import.
func WithImporter(imp *inbox.Importer) Option {
	return func(s *Service) { s.importer = imp }
}

// NewService creates a new journal service.
func NewService(store *archive.Store, db *index.DB, d *dispatch.Dispatcher, rw *links.Rewriter, opts ...Option) *Service {
	s := &Service{store: store, db: db, dispatcher: d, rewriter: rw}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Targets returns the configured target names in dispatch order.
func (s *Service) Targets() []string {
	return s.dispatcher.Targets()
}

// Parse parses an uploaded or local entry, rewriting internal links.
func (s *Service) Parse(content []byte, source string) (*models.Entry, error) {
	return parser.Parse(content, parser.WithSource(source), parser.WithRewriter(s.rewriter))
}

// Info parses content and reports the archive state and previous remote IDs
// a publish would start from.
func (s *Service) Info(ctx context.Context, content []byte, source string) (*Info, error) {
	e, err := s.Parse(content, source)
	if err != nil {
		return nil, err
	}
	return s.info(ctx, e)
}

// InfoFile is Info for a local file; its modification time stands in for a
// missing Last-Modified.
func (s *Service) InfoFile(ctx context.Context, path string) (*Info, error) {
	e, err := parser.ParseFile(path, parser.WithRewriter(s.rewriter))
	if err != nil {
		return nil, err
	}
	return s.info(ctx, e)
}

func (s *Service) info(ctx context.Context, e *models.Entry) (*Info, error) {
	rec, err := s.store.Resolve(ctx, e)
	if err != nil {
		return nil, err
	}
	info := &Info{
		Entry:         e,
		Subject:       e.Subject(),
		Blocks:        len(e.Blocks()),
		PreviousIDs:   e.RemoteIDs,
		Targets:       s.Targets(),
		InternalLinks: nonNilSlice(s.rewriter.FindInternal(e.Body)),
	}
	if rec != nil {
		info.ArchivePath = rec.Path
		info.PreviousIDs = models.MergeRemoteIDs(rec.Entry.RemoteIDs, e.RemoteIDs)
	}
	if info.PreviousIDs == nil {
		info.PreviousIDs = map[string]string{}
	}
	return info, nil
}

// Publish parses content and dispatches it.
func (s *Service) Publish(ctx context.Context, content []byte, source string, req dispatch.Request) (*dispatch.Report, error) {
	e, err := s.Parse(content, source)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.Dispatch(ctx, e, req)
}

// Republish dispatches the entry archived under date.
func (s *Service) Republish(ctx context.Context, date string, req dispatch.Request) (*dispatch.Report, error) {
	rec, err := s.record(ctx, date)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.Dispatch(ctx, rec.Entry, req)
}

// GetEntry returns the entry archived under date (YYYY-MM-DD).
func (s *Service) GetEntry(ctx context.Context, date string) (*EntryDetail, error) {
	rec, err := s.record(ctx, date)
	if err != nil {
		return nil, err
	}
	data := archive.Encode(rec.Entry)
	return &EntryDetail{
		Path:         rec.Name,
		Date:         rec.Entry.DateKey(),
		Title:        rec.Entry.Title,
		Subject:      rec.Entry.Subject(),
		ContentID:    rec.Entry.ContentID(),
		RemoteIDs:    nonNilMap(rec.Entry.RemoteIDs),
		LastModified: rec.Entry.LastModified,
		Body:         rec.Entry.Body,
		Content:      string(data),
		Checksum:     checksum.Sum(data),
	}, nil
}

// ListEntries returns indexed entries newest first, and the total count.
func (s *Service) ListEntries(_ context.Context, limit, offset int) ([]index.EntryRow, int, error) {
	rows, total, err := s.db.ListEntries(limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for i := range rows {
		rows[i].RemoteIDs = nonNilMap(rows[i].RemoteIDs)
	}
	return nonNilSlice(rows), total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	res, err := s.db.Search(query, limit)
	return nonNilSlice(res), err
}

// History returns logged publish attempts for date, or for every date when
// date is empty.
func (s *Service) History(_ context.Context, date string, limit int) ([]index.PublishRow, error) {
	if date != "" {
		if _, err := time.Parse(models.DateLayout, date); err != nil {
			return nil, fmt.Errorf("%w: bad date %q", apperr.ErrInvalidEntry, date)
		}
	}
	rows, err := s.db.History(date, limit)
	return nonNilSlice(rows), err
}

// Import runs one inbox import pass.
func (s *Service) Import(ctx context.Context, opts inbox.Options) (*inbox.Summary, error) {
	if s.importer == nil {
		return nil, ErrNoInbox
	}
	return s.importer.Import(ctx, opts)
}

// Check reports internal content-service links left in content.
func (s *Service) Check(content []byte) []links.Finding {
	return nonNilSlice(s.rewriter.FindInternal(string(content)))
}

func (s *Service) record(ctx context.Context, date string) (*archive.Record, error) {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return nil, apperr.ErrNotFound
	}
	return s.store.Get(ctx, date)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
