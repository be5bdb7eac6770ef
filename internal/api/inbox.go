package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const maxUploadBytes = 50 << 20 // 50 MB

// InboxHandler accepts content-service exports into the inbox directory.
type InboxHandler struct {
	dir string
}

// NewInboxHandler creates a handler writing into dir.
func NewInboxHandler(dir string) *InboxHandler {
	return &InboxHandler{dir: dir}
}

// safeName validates that name is a plain .md or .zip file name and returns
// its absolute path inside the inbox.
func (h *InboxHandler) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	switch strings.ToLower(filepath.Ext(cleaned)) {
	case ".md", ".zip":
	default:
		return "", fmt.Errorf("only .md and .zip exports are accepted: %s", name)
	}
	return filepath.Join(h.dir, cleaned), nil
}

// Upload handles POST /api/inbox (multipart/form-data, field "file").
//
//	@Summary		Upload an export into the inbox
//	@Tags			inbox
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Markdown or zip export"
//	@Success		201		{object}	InboxUploadResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/inbox [post]
func (h *InboxHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	abs, err := h.safeName(header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create inbox dir"))
		return
	}

	// Stage under a dot name so the inbox watcher ignores the partial file.
	tmp, err := os.CreateTemp(h.dir, ".upload-*")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create file"))
		return
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return
	}

	writeJSON(w, http.StatusCreated, InboxUploadResponse{
		Filename: filepath.Base(abs),
		Size:     written,
	})
}
