package slack

import (
	"regexp"
	"strings"
)

var (
	headingRe   = regexp.MustCompile(`^#{1,6}\s+(.*)$`)
	mdLinkRe    = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	boldStarRe  = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldScoreRe = regexp.MustCompile(`__(.+?)__`)
)

// Mrkdwn converts markdown to Slack's mrkdwn dialect. Headings become bold
// lines, links become <url|text>, and fenced code is left untouched.
func Mrkdwn(markdown string) string {
	lines := strings.Split(markdown, "\n")
	out := make([]string, 0, len(lines))
	fenced := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			fenced = !fenced
			out = append(out, line)
			continue
		}
		if fenced {
			out = append(out, line)
			continue
		}
		if m := headingRe.FindStringSubmatch(line); m != nil {
			out = append(out, "*"+strings.TrimSpace(m[1])+"*")
			continue
		}
		line = mdLinkRe.ReplaceAllString(line, "<$2|$1>")
		line = boldStarRe.ReplaceAllString(line, "*$1*")
		line = boldScoreRe.ReplaceAllString(line, "*$1*")
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
