package buttondown

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/targets"
)

type fakeButtondown struct {
	mu     sync.Mutex
	emails map[string]Email
	nextID int
	calls  []string
}

func newFake(t *testing.T, existing ...Email) (*fakeButtondown, *Client) {
	t.Helper()
	f := &fakeButtondown{emails: map[string]Email{}}
	for _, e := range existing {
		f.emails[e.ID] = e
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, NewClient("key", WithBaseURL(srv.URL))
}

func (f *fakeButtondown) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)

	if r.Header.Get("Authorization") != "Token key" {
		http.Error(w, `{"detail":"invalid token"}`, http.StatusUnauthorized)
		return
	}

	var in Email
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&in)
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v1/emails":
		var results []Email
		for _, e := range f.emails {
			results = append(results, e)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	case r.Method == http.MethodPost && r.URL.Path == "/v1/emails":
		f.nextID++
		in.ID = fmt.Sprintf("em-%d", f.nextID)
		f.emails[in.ID] = in
		_ = json.NewEncoder(w).Encode(in)
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/v1/emails/"):
		id := strings.TrimPrefix(r.URL.Path, "/v1/emails/")
		if _, ok := f.emails[id]; !ok {
			http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
			return
		}
		in.ID = id
		f.emails[id] = in
		_ = json.NewEncoder(w).Encode(in)
	default:
		http.NotFound(w, r)
	}
}

func testEntry() *models.Entry {
	return &models.Entry{
		Date:  time.Date(2025, 2, 7, 0, 0, 0, 0, time.UTC),
		Title: "Weekly notes",
		Body:  "## Intro\n\nHello.",
	}
}

func TestPublishCreatesDraft(t *testing.T) {
	f, client := newFake(t)
	res := New(client, nil).Publish(context.Background(), testEntry(), "", targets.Options{})

	require.Equal(t, targets.StatusCreated, res.Status, res.Detail)
	assert.Equal(t, "em-1", res.RemoteID)
	assert.Equal(t, StatusDraft, f.emails["em-1"].Status)
	assert.Equal(t, "2025-02-07: Weekly notes", f.emails["em-1"].Subject)
}

func TestPublishReusesDraftWithSameDate(t *testing.T) {
	f, client := newFake(t,
		Email{ID: "old", Subject: "2025-02-07: Draft title", Status: StatusDraft},
		Email{ID: "other", Subject: "2025-01-01: Other", Status: StatusDraft},
	)
	res := New(client, nil).Publish(context.Background(), testEntry(), "", targets.Options{})

	require.Equal(t, targets.StatusUpdated, res.Status, res.Detail)
	assert.Equal(t, "old", res.RemoteID)
	assert.Equal(t, "## Intro\n\nHello.", f.emails["old"].Body)
	assert.Len(t, f.emails, 2)
}

func TestPublishUpdatesPreviousDraft(t *testing.T) {
	f, client := newFake(t, Email{ID: "prev", Subject: "something", Status: StatusDraft})
	res := New(client, nil).Publish(context.Background(), testEntry(), "prev", targets.Options{})

	require.Equal(t, targets.StatusUpdated, res.Status, res.Detail)
	assert.Equal(t, "prev", res.RemoteID)
	assert.NotContains(t, f.calls, "GET /v1/emails")
}

func TestPublishMissingDraftCreatesNew(t *testing.T) {
	_, client := newFake(t)
	res := New(client, nil).Publish(context.Background(), testEntry(), "gone", targets.Options{})

	require.Equal(t, targets.StatusCreated, res.Status, res.Detail)
	assert.Equal(t, "em-1", res.RemoteID)
}

func TestPublishRejectedKeyFails(t *testing.T) {
	f, _ := newFake(t)
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	defer srv.Close()
	res := New(NewClient("bad", WithBaseURL(srv.URL)), nil).Publish(context.Background(), testEntry(), "", targets.Options{})

	assert.Equal(t, targets.StatusFailed, res.Status)
	assert.Contains(t, res.Detail, "401")
}

func TestPublishDryRun(t *testing.T) {
	f, client := newFake(t)
	res := New(client, nil).Publish(context.Background(), testEntry(), "", targets.Options{DryRun: true})

	assert.Equal(t, targets.StatusPreviewed, res.Status)
	assert.Equal(t, "dry-run:buttondown:2025-02-07", res.RemoteID)
	assert.Empty(t, f.calls)
}
