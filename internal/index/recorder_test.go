package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/monologue/internal/dispatch"
	"github.com/starford/monologue/internal/storage"
	"github.com/starford/monologue/internal/targets"
)

func TestRecorderLogsAndSyncs(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	rec := NewRecorder(db, store, quietLogger())
	ctx := context.Background()

	rec.Observe(ctx, dispatch.Event{
		Kind:    dispatch.EventTargetDone,
		Date:    "2025-02-07",
		Subject: "2025-02-07: Weekly notes",
		Target:  "notion",
		Result:  &targets.Result{Status: targets.StatusCreated, RemoteID: "n1"},
		Time:    time.Now(),
	})
	rows, err := db.History("2025-02-07", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Status != "created" || rows[0].RemoteID != "n1" {
		t.Fatalf("history = %+v", rows)
	}

	if err := os.WriteFile(filepath.Join(dir, "2025-02-07.md"), []byte(archived), 0o644); err != nil {
		t.Fatal(err)
	}
	rec.Observe(ctx, dispatch.Event{Kind: dispatch.EventArchived, Date: "2025-02-07"})
	if _, err := db.GetEntry("2025-02-07.md"); err != nil {
		t.Errorf("archived entry not indexed: %v", err)
	}
}
