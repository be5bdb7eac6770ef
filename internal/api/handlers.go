package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/monologue/internal/checksum"
	"github.com/starford/monologue/internal/dispatch"
	"github.com/starford/monologue/internal/inbox"
	"github.com/starford/monologue/internal/journal"
)

const maxEntryBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *journal.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *journal.Service) *Handler {
	return &Handler{svc: svc}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxEntryBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListEntries handles GET /api/entries.
//
//	@Summary		List archived entries, newest first
//	@Tags			entries
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	EntryListResponse
//	@Security		BearerAuth
//	@Router			/entries [get]
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	rows, total, err := h.svc.ListEntries(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, EntryListResponse{Entries: rows, Total: total})
}

// GetEntry handles GET /api/entries/{date}.
//
//	@Summary		Get an archived entry by date
//	@Tags			entries
//	@Produce		json
//	@Param			date	path		string	true	"Entry date (YYYY-MM-DD)"
//	@Success		200		{object}	journal.EntryDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries/{date} [get]
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.GetEntry(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, "get entry", err)
		return
	}
	w.Header().Set("ETag", checksum.ETag([]byte(entry.Content)))
	writeJSON(w, http.StatusOK, entry)
}

// Republish handles POST /api/entries/{date}/publish.
//
//	@Summary		Publish an archived entry again
//	@Tags			publish
//	@Accept			json
//	@Produce		json
//	@Param			date	path		string				true	"Entry date (YYYY-MM-DD)"
//	@Param			body	body		RepublishRequest	false	"Targets and options"
//	@Success		200		{object}	PublishResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries/{date}/publish [post]
func (h *Handler) Republish(w http.ResponseWriter, r *http.Request) {
	var req RepublishRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	rep, err := h.svc.Republish(r.Context(), chi.URLParam(r, "date"), dispatchRequest(req.Targets, req.DryRun, req.Canvas))
	if err != nil && rep == nil {
		writeError(w, "republish", err)
		return
	}
	writeReport(w, rep, err)
}

// Publish handles POST /api/publish.
//
//	@Summary		Parse and publish an entry
//	@Tags			publish
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PublishRequest	true	"Entry markdown and options"
//	@Success		200		{object}	PublishResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/publish [post]
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	rep, err := h.svc.Publish(r.Context(), []byte(req.Content), req.Source, dispatchRequest(req.Targets, req.DryRun, req.Canvas))
	if err != nil && rep == nil {
		writeError(w, "publish", err)
		return
	}
	writeReport(w, rep, err)
}

// writeReport answers a dispatch that ran. A failed archive write after the
// targets ran is a server error, but the report is still returned.
func writeReport(w http.ResponseWriter, rep *dispatch.Report, archiveErr error) {
	resp := publishResponse(rep)
	if archiveErr != nil {
		resp.OK = false
		writeJSON(w, http.StatusInternalServerError, struct {
			PublishResponse
			Error string `json:"error"`
		}{resp, archiveErr.Error()})
		return
	}
	status := http.StatusOK
	if !resp.OK {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

// Info handles POST /api/info.
//
//	@Summary		Describe what publishing an entry would do
//	@Tags			publish
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ContentRequest	true	"Entry markdown"
//	@Success		200		{object}	journal.Info
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/info [post]
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !decode(w, r, &req) {
		return
	}
	info, err := h.svc.Info(r.Context(), []byte(req.Content), req.Source)
	if err != nil {
		writeError(w, "info", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Check handles POST /api/check.
//
//	@Summary		Find internal content-service links
//	@Tags			publish
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ContentRequest	true	"Markdown to check"
//	@Success		200		{object}	CheckResponse
//	@Security		BearerAuth
//	@Router			/check [post]
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !decode(w, r, &req) {
		return
	}
	found := h.svc.Check([]byte(req.Content))
	writeJSON(w, http.StatusOK, CheckResponse{OK: len(found) == 0, Findings: found})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across archived entries
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// History handles GET /api/history.
//
//	@Summary		Publish attempts, newest first
//	@Tags			publish
//	@Produce		json
//	@Param			date	query		string	false	"Entry date (YYYY-MM-DD)"
//	@Param			limit	query		int		false	"Max rows"
//	@Success		200		{object}	HistoryResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.svc.History(r.Context(), r.URL.Query().Get("date"), limit)
	if err != nil {
		writeError(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Publishes: rows})
}

// Import handles POST /api/import.
//
//	@Summary		Import exports waiting in the inbox
//	@Tags			inbox
//	@Produce		json
//	@Param			draft	query		bool	false	"Send new entries to the newsletter as drafts"
//	@Param			force	query		bool	false	"Replace archived entries even when not newer"
//	@Success		200		{object}	inbox.Summary
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	draft, _ := strconv.ParseBool(r.URL.Query().Get("draft"))
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	sum, err := h.svc.Import(r.Context(), inbox.Options{Draft: draft, Force: force})
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
