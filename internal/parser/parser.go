// Package parser turns raw markdown entries into models.Entry records.
//
// Two layouts are recognised. The legacy archive layout starts with a block of
// "Key: value" header lines terminated by a blank line; its Subject header
// carries "YYYY-MM-DD: title". The plain layout has a "# YYYY-MM-DD: title"
// heading. Legacy fields are probed first.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/starford/monologue/internal/apperr"
	"github.com/starford/monologue/internal/links"
	"github.com/starford/monologue/internal/models"
)

// Legacy header keys.
const (
	HeaderNotionID     = "Notion-Id"
	HeaderLastModified = "Last-Modified"
	HeaderSubject      = "Subject"
	HeaderButtondownID = "Buttondown-Id"
	HeaderSlackID      = "Slack-Id"

	headerSlackTs      = "Slack-Ts"
	headerSlackChannel = "Slack-Channel"
)

// remoteIDHeaders maps header keys onto target names.
var remoteIDHeaders = map[string]string{
	strings.ToLower(HeaderNotionID):     models.TargetNotion,
	strings.ToLower(HeaderButtondownID): models.TargetButtondown,
	strings.ToLower(HeaderSlackID):      models.TargetSlack,
}

var (
	dateTokenRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	headerKeyRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)
)

type options struct {
	source   string
	rewriter *links.Rewriter
	modTime  time.Time
}

// Option configures a Parse call.
type Option func(*options)

// WithSource names the input in error messages.
func WithSource(name string) Option {
	return func(o *options) { o.source = name }
}

// WithRewriter sets the link rewriter applied to the body. Without one the body
// is kept verbatim.
func WithRewriter(r *links.Rewriter) Option {
	return func(o *options) { o.rewriter = r }
}

// WithModTime supplies the source modification time, used as LastModified when
// the input does not carry one.
func WithModTime(t time.Time) Option {
	return func(o *options) { o.modTime = t }
}

// Parse parses raw markdown in either supported layout.
func Parse(data []byte, opts ...Option) (*models.Entry, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	lines := splitLines(data)

	var (
		entry *models.Entry
		err   error
	)
	if hdr, bodyStart, ok := probeHeader(lines); ok {
		entry, err = parseLegacy(hdr, lines[bodyStart:], o)
	} else {
		entry, err = parsePlain(lines, o)
	}
	if err != nil {
		return nil, err
	}

	if o.rewriter != nil {
		entry.Body = o.rewriter.Rewrite(entry.Body)
	}
	if entry.LastModified.IsZero() && !o.modTime.IsZero() {
		entry.LastModified = o.modTime.UTC().Truncate(time.Second)
	}
	return entry, nil
}

// ParseFile reads and parses the file at path. The file's modification time is
// used as LastModified when the content carries none.
func ParseFile(path string, opts ...Option) (*models.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("parser: stat %s: %w", path, err)
	}
	all := append([]Option{WithSource(path), WithModTime(info.ModTime())}, opts...)
	return Parse(data, all...)
}

// ParseSubject splits "YYYY-MM-DD: title" into its date and title. The title is
// the text after the first colon following the date token.
func ParseSubject(s string) (time.Time, string, error) {
	loc := dateTokenRe.FindStringIndex(s)
	if loc == nil {
		return time.Time{}, "", fmt.Errorf("no YYYY-MM-DD date in %q", s)
	}
	date, err := time.Parse(models.DateLayout, s[loc[0]:loc[1]])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid date %q", s[loc[0]:loc[1]])
	}
	rest := s[loc[1]:]
	if i := strings.Index(rest, ":"); i >= 0 {
		rest = rest[i+1:]
	}
	return date, strings.TrimSpace(rest), nil
}

type headerField struct {
	key, value string
}

// probeHeader detects a legacy header block. It returns the header fields and
// the index of the first line after the terminating blank line.
func probeHeader(lines []string) ([]headerField, int, bool) {
	var fields []headerField
	hasSubject := false
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			return fields, i + 1, hasSubject
		}
		if strings.HasPrefix(line, "#") {
			return nil, 0, false
		}
		key, value, ok := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !ok || !headerKeyRe.MatchString(key) {
			return nil, 0, false
		}
		if strings.EqualFold(key, HeaderSubject) {
			hasSubject = true
		}
		fields = append(fields, headerField{key: key, value: strings.TrimSpace(value)})
	}
	return fields, len(lines), hasSubject
}

func parseLegacy(fields []headerField, rest []string, o options) (*models.Entry, error) {
	var subject string
	for _, f := range fields {
		if strings.EqualFold(f.key, HeaderSubject) {
			subject = f.value
		}
	}
	date, title, err := ParseSubject(subject)
	if err != nil {
		return nil, &apperr.FormatError{Source: o.source, Reason: "subject: " + err.Error()}
	}

	entry := &models.Entry{
		Date:         date,
		Title:        title,
		SourceFormat: models.FormatLegacy,
		RemoteIDs:    map[string]string{},
	}

	var slackTs, slackChannel string
	for _, f := range fields {
		lk := strings.ToLower(f.key)
		if target, ok := remoteIDHeaders[lk]; ok {
			if f.value != "" {
				entry.RemoteIDs[target] = f.value
			}
			continue
		}
		switch lk {
		case strings.ToLower(HeaderSubject):
		case strings.ToLower(HeaderLastModified):
			ts, err := time.Parse(time.RFC3339Nano, f.value)
			if err != nil {
				return nil, &apperr.FormatError{Source: o.source, Reason: fmt.Sprintf("last-modified %q: not RFC 3339", f.value)}
			}
			entry.LastModified = ts.UTC()
		case strings.ToLower(headerSlackTs):
			slackTs = f.value
		case strings.ToLower(headerSlackChannel):
			slackChannel = f.value
		default:
			if entry.Extra == nil {
				entry.Extra = map[string]string{}
			}
			entry.Extra[f.key] = f.value
		}
	}
	if slackTs != "" && entry.RemoteIDs[models.TargetSlack] == "" {
		entry.RemoteIDs[models.TargetSlack] = slackChannel + ":" + slackTs
	}

	// Body starts at the first level-2 heading; archives without one keep
	// everything after the header.
	start := firstH2(rest)
	if start < 0 {
		start = 0
	}
	entry.Body = joinBody(rest[start:])
	return entry, nil
}

func parsePlain(lines []string, o options) (*models.Entry, error) {
	for i, line := range lines {
		if !strings.HasPrefix(line, "# ") {
			continue
		}
		heading := strings.TrimSpace(line[2:])
		date, title, err := ParseSubject(heading)
		if err != nil {
			return nil, &apperr.FormatError{Source: o.source, Reason: "heading: " + err.Error()}
		}
		entry := &models.Entry{
			Date:         date,
			Title:        title,
			SourceFormat: models.FormatPlain,
			RemoteIDs:    map[string]string{},
		}
		rest := lines[i+1:]
		if start := firstH2(rest); start >= 0 {
			entry.Body = joinBody(rest[start:])
		}
		return entry, nil
	}
	return nil, &apperr.FormatError{Source: o.source, Reason: "no '# YYYY-MM-DD: title' heading or Subject header found"}
}

func firstH2(lines []string) int {
	for i, line := range lines {
		if strings.HasPrefix(line, "## ") || line == "##" {
			return i
		}
	}
	return -1
}

func joinBody(lines []string) string {
	return strings.TrimRight(strings.Join(lines, "\n"), "\n \t")
}

func splitLines(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		out = append(out, strings.TrimRight(sc.Text(), "\r"))
	}
	return out
}
