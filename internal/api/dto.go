package api

import (
	"github.com/starford/monologue/internal/dispatch"
	"github.com/starford/monologue/internal/index"
	"github.com/starford/monologue/internal/links"
	"github.com/starford/monologue/internal/targets"
)

// PublishRequest is the request body for publishing an uploaded entry.
type PublishRequest struct {
	Content string   `json:"content" example:"# 2025-02-07: Weekly notes\n\n## Intro\n..." validate:"required"`
	Source  string   `json:"source,omitempty" example:"2025-02-07.md"`
	Targets []string `json:"targets,omitempty" example:"notion,slack"`
	DryRun  bool     `json:"dry_run,omitempty"`
	Canvas  bool     `json:"canvas,omitempty"`
}

// RepublishRequest is the request body for republishing an archived entry.
type RepublishRequest struct {
	Targets []string `json:"targets,omitempty" example:"buttondown"`
	DryRun  bool     `json:"dry_run,omitempty"`
	Canvas  bool     `json:"canvas,omitempty"`
}

func dispatchRequest(names []string, dryRun, canvas bool) dispatch.Request {
	return dispatch.Request{
		Targets: names,
		Options: targets.Options{DryRun: dryRun, AsCanvas: canvas},
	}
}

// PublishResponse wraps a dispatch report.
type PublishResponse struct {
	OK     bool             `json:"ok" validate:"required"`
	Failed []string         `json:"failed"`
	Report *dispatch.Report `json:"report" validate:"required"`
}

func publishResponse(rep *dispatch.Report) PublishResponse {
	failed := rep.Failed()
	if failed == nil {
		failed = []string{}
	}
	return PublishResponse{OK: rep.OK(), Failed: failed, Report: rep}
}

// ContentRequest carries raw entry markdown for info and check.
type ContentRequest struct {
	Content string `json:"content" validate:"required"`
	Source  string `json:"source,omitempty"`
}

// CheckResponse lists internal links left in a document.
type CheckResponse struct {
	OK       bool            `json:"ok"`
	Findings []links.Finding `json:"findings"`
}

// EntryListResponse wraps paginated entry listings.
type EntryListResponse struct {
	Entries []index.EntryRow `json:"entries" validate:"required"`
	Total   int              `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// HistoryResponse wraps logged publish attempts.
type HistoryResponse struct {
	Publishes []index.PublishRow `json:"publishes" validate:"required"`
}

// InboxUploadResponse is returned after an export lands in the inbox.
type InboxUploadResponse struct {
	Filename string `json:"filename" example:"Weekly notes 0123456789abcdef0123456789abcdef.md" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
}
