// Package testutil provides shared test helpers for archives and index databases.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/monologue/internal/archive"
	"github.com/starford/monologue/internal/index"
	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/storage"
	"github.com/starford/monologue/internal/targets"
)

// TestDB creates a temporary SQLite index that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "monologue-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestArchive creates a temporary archive directory, its storage.Provider and
// an opened archive store.
func TestArchive(t *testing.T) (string, storage.Provider, *archive.Store) {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	store, err := archive.Open(context.Background(), files, archive.WithLogger(Logger()))
	if err != nil {
		t.Fatal(err)
	}
	return dir, files, store
}

// WriteFile writes content to dir/name and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Target is an in-memory publish target. The first publish creates ID; later
// publishes with a previous ID update it.
type Target struct {
	TargetName string
	ID         string

	mu    sync.Mutex
	calls []string
}

// NewTarget returns a Target named name that creates id.
func NewTarget(name, id string) *Target {
	return &Target{TargetName: name, ID: id}
}

func (t *Target) Name() string { return t.TargetName }

func (t *Target) Publish(_ context.Context, e *models.Entry, previousID string, opts targets.Options) targets.Result {
	t.mu.Lock()
	t.calls = append(t.calls, previousID)
	t.mu.Unlock()
	if opts.DryRun {
		return targets.Preview(t.TargetName, e, previousID)
	}
	if previousID != "" {
		return targets.Result{Status: targets.StatusUpdated, RemoteID: previousID}
	}
	return targets.Result{Status: targets.StatusCreated, RemoteID: t.ID}
}

// Calls returns the previous IDs Publish was called with.
func (t *Target) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}
