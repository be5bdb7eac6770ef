// Package links rewrites content-page service links into their stable public form.
package links

import (
	"errors"
	"regexp"
	"strings"
)

// PublicHost is the host used for rewritten page links.
const PublicHost = "https://notion.so"

// ErrNoContentID is returned when a file name carries no page identifier.
var ErrNoContentID = errors.New("links: no content id in name")

var (
	// Absolute page URLs, including the desktop-app scheme.
	pageURLRe = regexp.MustCompile(`(?:https?|notion)://(?:www\.)?notion\.so/[^\s)\]>"<]*`)
	// Export-relative links: [text](Some%20Page%20<hex>.md)
	exportLinkRe = regexp.MustCompile(`\]\(([^)\s]*?([0-9a-fA-F]{32})\.md)\)`)
	hexTailRe    = regexp.MustCompile(`([0-9a-f]{32})$`)
	hexAnyRe     = regexp.MustCompile(`[0-9a-fA-F]{32}`)

	allowedRe = regexp.MustCompile(`(?i)notion\.so/[^/\s]+/(?:abcdef123456abcdef123456abcdef12|example-)`)
)

const trailingPunct = ".,;:!?'"

// Rewriter turns internal page links into https://notion.so/<workspace>/<id>.
// It is pure and deterministic; applying it twice yields the same text.
type Rewriter struct {
	workspace string
}

// NewRewriter creates a Rewriter for the given workspace. An empty workspace
// produces links without a workspace segment.
func NewRewriter(workspace string) *Rewriter {
	return &Rewriter{workspace: strings.Trim(workspace, "/ ")}
}

// CanonicalURL returns the public URL for a compact page id.
func (r *Rewriter) CanonicalURL(id string) string {
	if r.workspace == "" {
		return PublicHost + "/" + id
	}
	return PublicHost + "/" + r.workspace + "/" + id
}

// Canonicalize rewrites a single page URL. ok is false when raw carries no page id.
func (r *Rewriter) Canonicalize(raw string) (string, bool) {
	id, ok := PageID(raw)
	if !ok {
		return raw, false
	}
	return r.CanonicalURL(id), true
}

// Rewrite rewrites every internal link in body.
func (r *Rewriter) Rewrite(body string) string {
	out := exportLinkRe.ReplaceAllStringFunc(body, func(m string) string {
		sub := exportLinkRe.FindStringSubmatch(m)
		return "](" + r.CanonicalURL(strings.ToLower(sub[2])) + ")"
	})
	return pageURLRe.ReplaceAllStringFunc(out, func(m string) string {
		trimmed := strings.TrimRight(m, trailingPunct)
		suffix := m[len(trimmed):]
		canon, ok := r.Canonicalize(trimmed)
		if !ok {
			return m
		}
		return canon + suffix
	})
}

// PageID extracts the compact 32-hex page id from a page URL or path.
func PageID(raw string) (string, bool) {
	path := raw
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimSuffix(strings.TrimRight(path, "/"), ".md")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	compact := strings.ToLower(strings.ReplaceAll(path, "-", ""))
	m := hexTailRe.FindStringSubmatch(compact)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IDFromFileName extracts the page id an export file was named after.
func IDFromFileName(name string) (string, error) {
	m := hexAnyRe.FindString(name)
	if m == "" {
		return "", ErrNoContentID
	}
	return strings.ToLower(m), nil
}

// Finding is an internal link left in a document.
type Finding struct {
	Line int    `json:"line"`
	URL  string `json:"url"`
}

// FindInternal reports page links that are not in canonical public form.
func (r *Rewriter) FindInternal(text string) []Finding {
	var out []Finding
	for i, line := range strings.Split(text, "\n") {
		for _, m := range pageURLRe.FindAllString(line, -1) {
			m = strings.TrimRight(m, trailingPunct)
			if allowedRe.MatchString(m) {
				continue
			}
			if canon, ok := r.Canonicalize(m); ok && canon == m {
				continue
			}
			out = append(out, Finding{Line: i + 1, URL: m})
		}
		for _, sub := range exportLinkRe.FindAllStringSubmatch(line, -1) {
			out = append(out, Finding{Line: i + 1, URL: sub[1]})
		}
	}
	return out
}
