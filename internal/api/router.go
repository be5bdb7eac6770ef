package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/monologue/internal/journal"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// inboxDir, if non-empty, enables export uploads at POST /inbox.
func NewRouter(svc *journal.Service, authEnabled bool, token string, sseHandler http.Handler, inboxDir string) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Archive.
	r.Get("/entries", h.ListEntries)
	r.Get("/entries/{date}", h.GetEntry)
	r.Post("/entries/{date}/publish", h.Republish)

	// Publishing.
	r.Post("/publish", h.Publish)
	r.Post("/info", h.Info)
	r.Post("/check", h.Check)
	r.Get("/history", h.History)

	// Search.
	r.Get("/search", h.Search)

	// Inbox.
	r.Post("/import", h.Import)
	if inboxDir != "" {
		r.Post("/inbox", NewInboxHandler(inboxDir).Upload)
	}

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
