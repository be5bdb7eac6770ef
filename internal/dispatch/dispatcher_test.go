package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/monologue/internal/apperr"
	"github.com/starford/monologue/internal/archive"
	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/storage"
	"github.com/starford/monologue/internal/targets"
)

// stubTarget returns canned results and records what it was asked to do.
type stubTarget struct {
	name     string
	result   func(previousID string) targets.Result
	panics   bool
	mu       sync.Mutex
	calls    []string
	lastSeen *models.Entry
}

func (s *stubTarget) Name() string { return s.name }

func (s *stubTarget) Publish(_ context.Context, e *models.Entry, previousID string, opts targets.Options) targets.Result {
	s.mu.Lock()
	s.calls = append(s.calls, previousID)
	s.lastSeen = e
	s.mu.Unlock()
	if s.panics {
		panic("boom")
	}
	if opts.DryRun {
		return targets.Preview(s.name, e, previousID)
	}
	return s.result(previousID)
}

func creating(name, id string) *stubTarget {
	return &stubTarget{name: name, result: func(prev string) targets.Result {
		if prev != "" {
			return targets.Result{Status: targets.StatusUpdated, RemoteID: prev}
		}
		return targets.Result{Status: targets.StatusCreated, RemoteID: id}
	}}
}

func failing(name string) *stubTarget {
	return &stubTarget{name: name, result: func(string) targets.Result {
		return targets.Result{Status: targets.StatusFailed, Detail: "401 unauthorized"}
	}}
}

func newStore(t *testing.T) (string, *archive.Store) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	require.NoError(t, err)
	s, err := archive.Open(context.Background(), fs)
	require.NoError(t, err)
	return dir, s
}

func newEntry() *models.Entry {
	return &models.Entry{
		Date:         time.Date(2025, 2, 7, 0, 0, 0, 0, time.UTC),
		Title:        "Weekly notes",
		Body:         "## Intro\n\nHello.",
		SourceFormat: models.FormatPlain,
		LastModified: time.Date(2025, 2, 7, 9, 0, 0, 0, time.UTC),
	}
}

const notionURL = "https://notion.so/ws/0123456789abcdef0123456789abcdef"

func TestDispatchAllTargetsArchives(t *testing.T) {
	dir, store := newStore(t)
	notion := creating(models.TargetNotion, notionURL)
	bd := creating(models.TargetButtondown, "em-1")
	sl := creating(models.TargetSlack, "C1:1.1")

	var events []Event
	d := New(store, []targets.Target{notion, bd, sl},
		WithObserver(ObserverFunc(func(_ context.Context, ev Event) { events = append(events, ev) })))

	rep, err := d.Dispatch(context.Background(), newEntry(), Request{})
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Len(t, rep.Results, 3)
	assert.Equal(t, archive.OutcomeCreated, rep.ArchiveOutcome)
	assert.Equal(t, filepath.Join(dir, "2025-02-07.md"), rep.ArchivePath)

	// slack ran after notion and saw its page id
	assert.Equal(t, notionURL, sl.lastSeen.RemoteID(models.TargetNotion))

	rec, err := store.Get(context.Background(), "2025-02-07")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		models.TargetNotion:     notionURL,
		models.TargetButtondown: "em-1",
		models.TargetSlack:      "C1:1.1",
	}, rec.Entry.RemoteIDs)

	require.Len(t, events, 5)
	assert.Equal(t, EventTargetDone, events[0].Kind)
	assert.Equal(t, EventArchived, events[3].Kind)
	assert.Equal(t, EventCompleted, events[4].Kind)
}

func TestDispatchPartialFailure(t *testing.T) {
	_, store := newStore(t)
	d := New(store, []targets.Target{
		creating(models.TargetNotion, notionURL),
		failing(models.TargetButtondown),
		creating(models.TargetSlack, "C1:1.1"),
	})

	rep, err := d.Dispatch(context.Background(), newEntry(), Request{})
	require.NoError(t, err)
	assert.False(t, rep.OK())
	assert.Equal(t, []string{models.TargetButtondown}, rep.Failed())

	slack, ok := rep.Result(models.TargetSlack)
	require.True(t, ok)
	assert.Equal(t, targets.StatusCreated, slack.Status)

	rec, err := store.Get(context.Background(), "2025-02-07")
	require.NoError(t, err)
	assert.Empty(t, rec.Entry.RemoteID(models.TargetButtondown))
	assert.Equal(t, "C1:1.1", rec.Entry.RemoteID(models.TargetSlack))
}

func TestDispatchRepublishUpdates(t *testing.T) {
	_, store := newStore(t)
	notion := creating(models.TargetNotion, notionURL)
	d := New(store, []targets.Target{notion})

	_, err := d.Dispatch(context.Background(), newEntry(), Request{})
	require.NoError(t, err)

	// the source file never carries remote ids; they come from the archive
	rep, err := d.Dispatch(context.Background(), newEntry(), Request{})
	require.NoError(t, err)
	res, _ := rep.Result(models.TargetNotion)
	assert.Equal(t, targets.StatusUpdated, res.Status)
	assert.Equal(t, []string{"", notionURL}, notion.calls)
	assert.Equal(t, archive.OutcomeAlreadyCurrent, rep.ArchiveOutcome)
}

func TestDispatchDryRunWritesNothing(t *testing.T) {
	dir, store := newStore(t)
	d := New(store, []targets.Target{creating(models.TargetNotion, notionURL)})

	rep, err := d.Dispatch(context.Background(), newEntry(), Request{Options: targets.Options{DryRun: true}})
	require.NoError(t, err)
	assert.True(t, rep.DryRun)
	assert.False(t, rep.Archived())
	res, _ := rep.Result(models.TargetNotion)
	assert.Equal(t, targets.StatusPreviewed, res.Status)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDispatchNothingChangedSkipsArchive(t *testing.T) {
	dir, store := newStore(t)
	d := New(store, []targets.Target{
		failing(models.TargetNotion),
		targets.Unavailable(models.TargetSlack, "no token"),
	})

	rep, err := d.Dispatch(context.Background(), newEntry(), Request{})
	require.NoError(t, err)
	assert.False(t, rep.Archived())
	files, _ := os.ReadDir(dir)
	assert.Empty(t, files)
}

func TestDispatchRecoversPanics(t *testing.T) {
	_, store := newStore(t)
	after := creating(models.TargetSlack, "C1:1.1")
	d := New(store, []targets.Target{
		&stubTarget{name: models.TargetNotion, panics: true},
		after,
	})

	rep, err := d.Dispatch(context.Background(), newEntry(), Request{})
	require.NoError(t, err)
	res, _ := rep.Result(models.TargetNotion)
	assert.Equal(t, targets.StatusFailed, res.Status)
	assert.Contains(t, res.Detail, "panic")
	assert.Len(t, after.calls, 1)
}

func TestDispatchSelectsTargets(t *testing.T) {
	_, store := newStore(t)
	notion := creating(models.TargetNotion, notionURL)
	bd := creating(models.TargetButtondown, "em-1")
	d := New(store, []targets.Target{notion, bd})

	rep, err := d.Dispatch(context.Background(), newEntry(), Request{Targets: []string{models.TargetButtondown}})
	require.NoError(t, err)
	assert.Len(t, rep.Results, 1)
	assert.Empty(t, notion.calls)

	_, err = d.Dispatch(context.Background(), newEntry(), Request{Targets: []string{"myspace"}})
	assert.ErrorIs(t, err, apperr.ErrUnknownTarget)
	assert.Len(t, bd.calls, 1, "unknown target must abort before publishing")
}

func TestDispatchRejectsUntitledEntry(t *testing.T) {
	_, store := newStore(t)
	notion := creating(models.TargetNotion, notionURL)
	d := New(store, []targets.Target{notion})

	e := newEntry()
	e.Title = ""
	_, err := d.Dispatch(context.Background(), e, Request{})
	assert.ErrorIs(t, err, apperr.ErrInvalidEntry)
	assert.Empty(t, notion.calls)
}

func TestDispatchIdentityConflictAborts(t *testing.T) {
	_, store := newStore(t)
	existing := newEntry()
	existing.RemoteIDs = map[string]string{models.TargetNotion: notionURL}
	_, err := store.Save(context.Background(), existing)
	require.NoError(t, err)

	notion := creating(models.TargetNotion, notionURL)
	d := New(store, []targets.Target{notion})
	e := newEntry()
	e.RemoteIDs = map[string]string{models.TargetNotion: "https://notion.so/ws/ffffffffffffffffffffffffffffffff"}

	_, err = d.Dispatch(context.Background(), e, Request{})
	assert.ErrorIs(t, err, apperr.ErrIdentityConflict)
	assert.Empty(t, notion.calls)
}

func TestDispatchStalePageRecreatedKeepsArchive(t *testing.T) {
	_, store := newStore(t)
	pages := []string{
		"https://notion.so/ws/aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"https://notion.so/ws/bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}
	// the previous page is always gone, so every publish creates a new one
	var created int
	notion := &stubTarget{name: models.TargetNotion, result: func(string) targets.Result {
		id := pages[created]
		created++
		return targets.Result{Status: targets.StatusCreated, RemoteID: id}
	}}
	bd := creating(models.TargetButtondown, "em-1")
	d := New(store, []targets.Target{notion, bd})

	_, err := d.Dispatch(context.Background(), newEntry(), Request{})
	require.NoError(t, err)

	rep, err := d.Dispatch(context.Background(), newEntry(), Request{})
	require.NoError(t, err)
	assert.True(t, rep.Archived())
	assert.Equal(t, archive.OutcomeRemoteIDsUpdated, rep.ArchiveOutcome)
	assert.Equal(t, []string{"", pages[0]}, notion.calls)

	rec, err := store.Get(context.Background(), "2025-02-07")
	require.NoError(t, err)
	assert.Equal(t, pages[1], rec.Entry.ContentID())
	assert.Equal(t, "em-1", rec.Entry.RemoteID(models.TargetButtondown))

	// a third run sees the recreated page as its previous id
	notion.result = creating(models.TargetNotion, "").result
	_, err = d.Dispatch(context.Background(), newEntry(), Request{})
	require.NoError(t, err)
	assert.Equal(t, pages[1], notion.calls[2])
	assert.Equal(t, []string{"", "em-1", "em-1"}, bd.calls)
}

func TestDispatchFile(t *testing.T) {
	_, store := newStore(t)
	path := filepath.Join(t.TempDir(), "post.md")
	require.NoError(t, os.WriteFile(path, []byte("# 2025-02-07: From disk\n\n## Body\n\ntext\n"), 0o644))

	d := New(store, []targets.Target{creating(models.TargetNotion, notionURL)})
	rep, err := d.DispatchFile(context.Background(), path, Request{})
	require.NoError(t, err)
	assert.Equal(t, "From disk", rep.Entry.Title)
	assert.True(t, rep.Archived())

	_, err = d.DispatchFile(context.Background(), filepath.Join(t.TempDir(), "missing.md"), Request{})
	assert.Error(t, err)
}
