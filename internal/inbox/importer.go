// Package inbox imports content-service page exports dropped into an inbox
// directory into the archive.
package inbox

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/monologue/internal/apperr"
	"github.com/starford/monologue/internal/archive"
	"github.com/starford/monologue/internal/dispatch"
	"github.com/starford/monologue/internal/links"
	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/parser"
)

// Store is the archive surface the importer needs. *archive.Store satisfies it.
type Store interface {
	Lookup(ctx context.Context, id models.Identity) (*archive.Record, error)
	Save(ctx context.Context, e *models.Entry) (archive.SaveResult, error)
	Supersede(ctx context.Context, old models.Identity, e *models.Entry) (archive.SaveResult, error)
}

// Dispatcher publishes imported entries. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, e *models.Entry, req dispatch.Request) (*dispatch.Report, error)
}

// Options tune one import run.
type Options struct {
	// Draft sends newly archived entries to the newsletter target as drafts.
	Draft bool
	// Force replaces archived records even when the export is not newer.
	Force bool
}

// FileResult is the outcome for one export file.
type FileResult struct {
	Name    string           `json:"name"`
	Date    string           `json:"date,omitempty"`
	Outcome archive.Outcome  `json:"outcome,omitempty"`
	Path    string           `json:"path,omitempty"`
	Error   string           `json:"error,omitempty"`
	Report  *dispatch.Report `json:"report,omitempty"`
}

// Summary is the outcome of one import run.
type Summary struct {
	Extracted []string     `json:"extracted,omitempty"`
	Files     []FileResult `json:"files"`
}

// Failed reports whether any file could not be imported.
func (s *Summary) Failed() bool {
	for _, f := range s.Files {
		if f.Error != "" {
			return true
		}
	}
	return false
}

// Importer moves exports from an inbox directory into the archive.
type Importer struct {
	dir        string
	store      Store
	rewriter   *links.Rewriter
	dispatcher Dispatcher
	logger     *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the importer logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Importer) { i.logger = l }
}

// WithDispatcher enables Options.Draft.
func WithDispatcher(d Dispatcher) Option {
	return func(i *Importer) { i.dispatcher = d }
}

// New creates an Importer for the inbox directory dir.
func New(dir string, store Store, rewriter *links.Rewriter, opts ...Option) *Importer {
	i := &Importer{
		dir:      dir,
		store:    store,
		rewriter: rewriter,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Dir returns the inbox directory.
func (i *Importer) Dir() string { return i.dir }

// Import extracts zip exports, then archives every markdown export in the
// inbox. A file that fails to import is reported and does not stop the rest.
func (i *Importer) Import(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Draft && i.dispatcher == nil {
		return nil, errors.New("inbox: draft import needs a dispatcher")
	}
	sum := &Summary{}

	extracted, err := i.extractZips()
	if err != nil {
		return nil, err
	}
	sum.Extracted = extracted

	names, err := filepath.Glob(filepath.Join(i.dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("inbox: list: %w", err)
	}
	sort.Strings(names)

	for _, path := range names {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res := i.importFile(ctx, path, opts)
		if res.Error != "" {
			i.logger.Warn("inbox: import failed", slog.String("file", res.Name), slog.String("error", res.Error))
		} else {
			i.logger.Info("inbox: imported", slog.String("file", res.Name), slog.String("outcome", string(res.Outcome)))
		}
		sum.Files = append(sum.Files, res)
	}
	return sum, nil
}

func (i *Importer) importFile(ctx context.Context, path string, opts Options) FileResult {
	name := filepath.Base(path)
	res := FileResult{Name: name}

	e, err := i.Entry(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Date = e.DateKey()

	var saved archive.SaveResult
	if opts.Force {
		saved, err = i.force(ctx, e)
	} else {
		saved, err = i.store.Save(ctx, e)
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Outcome = saved.Outcome
	res.Path = saved.Path

	fresh := saved.Outcome == archive.OutcomeCreated || saved.Outcome == archive.OutcomeSuperseded
	if opts.Draft && fresh {
		rep, err := i.dispatcher.Dispatch(ctx, e, dispatch.Request{Targets: []string{models.TargetButtondown}})
		if err != nil {
			res.Error = err.Error()
		}
		res.Report = rep
	}
	return res
}

// Entry reads one export file. The content id comes from the file name and
// Last-Modified from the file's mtime.
func (i *Importer) Entry(path string) (*models.Entry, error) {
	name := filepath.Base(path)
	hex, err := links.IDFromFileName(name)
	if err != nil {
		return nil, fmt.Errorf("inbox: %s: %w", name, err)
	}
	e, err := parser.ParseFile(path, parser.WithRewriter(i.rewriter), parser.WithSource(name))
	if err != nil {
		return nil, err
	}
	return e.WithRemoteIDs(map[string]string{models.TargetNotion: i.rewriter.CanonicalURL(hex)}), nil
}

func (i *Importer) force(ctx context.Context, e *models.Entry) (archive.SaveResult, error) {
	prior, err := i.store.Lookup(ctx, e.Identity())
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return i.store.Save(ctx, e)
	case err != nil:
		return archive.SaveResult{}, err
	}
	return i.store.Supersede(ctx, prior.Entry.Identity(), e)
}

// extractZips unpacks every zip export into the inbox and removes the zip.
// Only markdown members are extracted, flattened to their base names.
func (i *Importer) extractZips() ([]string, error) {
	zips, err := filepath.Glob(filepath.Join(i.dir, "*.zip"))
	if err != nil {
		return nil, fmt.Errorf("inbox: list zips: %w", err)
	}
	sort.Strings(zips)

	var out []string
	for _, zp := range zips {
		names, err := i.extractZip(zp)
		if err != nil {
			return out, err
		}
		if err := os.Remove(zp); err != nil {
			return out, fmt.Errorf("inbox: remove %s: %w", filepath.Base(zp), err)
		}
		out = append(out, names...)
		i.logger.Info("inbox: extracted", slog.String("zip", filepath.Base(zp)), slog.Int("files", len(names)))
	}
	return out, nil
}

func (i *Importer) extractZip(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("inbox: open %s: %w", filepath.Base(path), err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".md") {
			continue
		}
		name := filepath.Base(filepath.FromSlash(f.Name))
		if name == "." || name == ".." || strings.HasPrefix(name, ".") {
			continue
		}
		if err := writeMember(f, filepath.Join(i.dir, name)); err != nil {
			return names, fmt.Errorf("inbox: extract %s: %w", f.Name, err)
		}
		names = append(names, name)
	}
	return names, nil
}

func writeMember(f *zip.File, dst string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if !f.Modified.IsZero() {
		return os.Chtimes(dst, f.Modified, f.Modified)
	}
	return nil
}
