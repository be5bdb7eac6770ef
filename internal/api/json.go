package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/monologue/internal/apperr"
	"github.com/starford/monologue/internal/journal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps domain errors onto HTTP statuses. Unexpected errors are
// logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, op string, err error) {
	var status int
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrFormat), errors.Is(err, apperr.ErrInvalidEntry):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrUnknownTarget):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrIdentityConflict):
		status = http.StatusConflict
	case errors.Is(err, journal.ErrNoInbox):
		status = http.StatusServiceUnavailable
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}
