package inbox

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/monologue/internal/archive"
	"github.com/starford/monologue/internal/dispatch"
	"github.com/starford/monologue/internal/links"
	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/storage"
	"github.com/starford/monologue/internal/targets"
)

const (
	pageHex    = "0123456789abcdef0123456789abcdef"
	exportName = "Weekly notes " + pageHex + ".md"
	exportBody = "# 2025-02-07: Weekly notes\n\nCreated: today\n\n## Intro\n\nSee [the plan](https://www.notion.so/ws/The-Plan-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa?pvs=4).\n"
)

func testEnv(t *testing.T) (inboxDir, archiveDir string, store *archive.Store) {
	t.Helper()
	inboxDir = t.TempDir()
	archiveDir = t.TempDir()
	fs, err := storage.NewFS(archiveDir)
	if err != nil {
		t.Fatal(err)
	}
	store, err = archive.Open(context.Background(), fs)
	if err != nil {
		t.Fatal(err)
	}
	return inboxDir, archiveDir, store
}

func writeExport(t *testing.T, dir, name, content string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

var mtime = time.Date(2025, 2, 7, 12, 0, 0, 0, time.UTC)

func TestImportArchivesExport(t *testing.T) {
	inboxDir, archiveDir, store := testEnv(t)
	writeExport(t, inboxDir, exportName, exportBody, mtime)

	imp := New(inboxDir, store, links.NewRewriter("ws"))
	sum, err := imp.Import(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Files) != 1 || sum.Files[0].Outcome != archive.OutcomeCreated {
		t.Fatalf("summary = %+v", sum.Files)
	}

	data, err := os.ReadFile(filepath.Join(archiveDir, "2025-02-07.md"))
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	for _, want := range []string{
		"Notion-Id: https://notion.so/ws/" + pageHex + "\n",
		"Last-Modified: 2025-02-07T12:00:00Z\n",
		"Subject: 2025-02-07: Weekly notes\n",
		"\n\n## Intro\n",
		"(https://notion.so/ws/aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("archive file missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Created: today") {
		t.Errorf("preamble leaked into archive:\n%s", got)
	}
}

func TestImportTwiceIsAlreadyCurrent(t *testing.T) {
	inboxDir, _, store := testEnv(t)
	writeExport(t, inboxDir, exportName, exportBody, mtime)
	imp := New(inboxDir, store, links.NewRewriter("ws"))

	if _, err := imp.Import(context.Background(), Options{}); err != nil {
		t.Fatal(err)
	}
	sum, err := imp.Import(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Files[0].Outcome != archive.OutcomeAlreadyCurrent {
		t.Errorf("outcome = %s", sum.Files[0].Outcome)
	}
}

func TestImportNewerExportSupersedesAcrossDates(t *testing.T) {
	inboxDir, archiveDir, store := testEnv(t)
	writeExport(t, inboxDir, exportName, exportBody, mtime)
	imp := New(inboxDir, store, links.NewRewriter("ws"))
	if _, err := imp.Import(context.Background(), Options{}); err != nil {
		t.Fatal(err)
	}

	moved := strings.Replace(exportBody, "2025-02-07", "2025-02-08", 1)
	writeExport(t, inboxDir, exportName, moved, mtime.Add(time.Hour))
	sum, err := imp.Import(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Files[0].Outcome != archive.OutcomeSuperseded {
		t.Fatalf("outcome = %s", sum.Files[0].Outcome)
	}
	if _, err := os.Stat(filepath.Join(archiveDir, "2025-02-07.md")); !os.IsNotExist(err) {
		t.Errorf("superseded file still present")
	}
	if _, err := os.Stat(filepath.Join(archiveDir, "2025-02-08.md")); err != nil {
		t.Errorf("new file missing: %v", err)
	}
}

func TestImportForceReplacesOlderExport(t *testing.T) {
	inboxDir, _, store := testEnv(t)
	writeExport(t, inboxDir, exportName, exportBody, mtime)
	imp := New(inboxDir, store, links.NewRewriter("ws"))
	if _, err := imp.Import(context.Background(), Options{}); err != nil {
		t.Fatal(err)
	}

	older := strings.Replace(exportBody, "Weekly notes", "Rewritten", 1)
	writeExport(t, inboxDir, exportName, older, mtime.Add(-time.Hour))

	sum, _ := imp.Import(context.Background(), Options{})
	if sum.Files[0].Outcome != archive.OutcomeAlreadyCurrent {
		t.Fatalf("without force: %s", sum.Files[0].Outcome)
	}
	sum, err := imp.Import(context.Background(), Options{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Files[0].Outcome != archive.OutcomeSuperseded {
		t.Fatalf("with force: %s", sum.Files[0].Outcome)
	}
	rec, err := store.Get(context.Background(), "2025-02-07")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Entry.Title != "Rewritten" {
		t.Errorf("title = %q", rec.Entry.Title)
	}
}

func TestImportExtractsZip(t *testing.T) {
	inboxDir, archiveDir, store := testEnv(t)

	zf, err := os.Create(filepath.Join(inboxDir, "Export-123.zip"))
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(zf)
	w, err := zw.Create("nested/" + exportName)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(exportBody)); err != nil {
		t.Fatal(err)
	}
	if _, err := zw.Create("nested/image.png"); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	zf.Close()

	imp := New(inboxDir, store, links.NewRewriter("ws"))
	sum, err := imp.Import(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Extracted) != 1 || sum.Extracted[0] != exportName {
		t.Errorf("extracted = %v", sum.Extracted)
	}
	if _, err := os.Stat(filepath.Join(inboxDir, "Export-123.zip")); !os.IsNotExist(err) {
		t.Errorf("zip not removed")
	}
	if _, err := os.Stat(filepath.Join(archiveDir, "2025-02-07.md")); err != nil {
		t.Errorf("entry not archived: %v", err)
	}
}

func TestImportReportsBadFilesAndContinues(t *testing.T) {
	inboxDir, _, store := testEnv(t)
	writeExport(t, inboxDir, exportName, exportBody, mtime)
	writeExport(t, inboxDir, "X-no-id.md", exportBody, mtime)
	writeExport(t, inboxDir, "Y "+strings.Repeat("f", 32)+".md", "no heading\n", mtime)

	imp := New(inboxDir, store, links.NewRewriter("ws"))
	sum, err := imp.Import(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Failed() {
		t.Error("expected failures")
	}
	if len(sum.Files) != 3 {
		t.Fatalf("files = %+v", sum.Files)
	}
	if sum.Files[0].Outcome != archive.OutcomeCreated {
		t.Errorf("good file outcome = %s", sum.Files[0].Outcome)
	}
	if sum.Files[1].Error == "" || sum.Files[2].Error == "" {
		t.Errorf("expected errors for bad files: %+v", sum.Files)
	}
}

type recordingDispatcher struct {
	requests []dispatch.Request
}

func (r *recordingDispatcher) Dispatch(_ context.Context, e *models.Entry, req dispatch.Request) (*dispatch.Report, error) {
	r.requests = append(r.requests, req)
	return &dispatch.Report{Entry: e, Results: []dispatch.TargetResult{{
		Target: models.TargetButtondown,
		Result: targets.Result{Status: targets.StatusCreated, RemoteID: "em-1"},
	}}}, nil
}

func TestImportDraftDispatchesNewEntriesOnly(t *testing.T) {
	inboxDir, _, store := testEnv(t)
	writeExport(t, inboxDir, exportName, exportBody, mtime)
	rd := &recordingDispatcher{}
	imp := New(inboxDir, store, links.NewRewriter("ws"), WithDispatcher(rd))

	sum, err := imp.Import(context.Background(), Options{Draft: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(rd.requests) != 1 || rd.requests[0].Targets[0] != models.TargetButtondown {
		t.Fatalf("requests = %+v", rd.requests)
	}
	if sum.Files[0].Report == nil {
		t.Error("report not attached")
	}

	if _, err := imp.Import(context.Background(), Options{Draft: true}); err != nil {
		t.Fatal(err)
	}
	if len(rd.requests) != 1 {
		t.Errorf("unchanged export dispatched again")
	}
}

func TestImportDraftNeedsDispatcher(t *testing.T) {
	inboxDir, _, store := testEnv(t)
	imp := New(inboxDir, store, links.NewRewriter("ws"))
	if _, err := imp.Import(context.Background(), Options{Draft: true}); err == nil {
		t.Error("expected error")
	}
}
