// Package render prints command results for a terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/starford/monologue/internal/archive"
	"github.com/starford/monologue/internal/dispatch"
	"github.com/starford/monologue/internal/inbox"
	"github.com/starford/monologue/internal/index"
	"github.com/starford/monologue/internal/journal"
	"github.com/starford/monologue/internal/links"
	"github.com/starford/monologue/internal/targets"
)

// Styles contains all the styles used in terminal output.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Target  lipgloss.Style
	Success lipgloss.Style
	Preview lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// DefaultStyles returns the default styles for renderer r.
func DefaultStyles(r *lipgloss.Renderer) Styles {
	primary := lipgloss.Color("99")     // Purple
	secondary := lipgloss.Color("39")   // Cyan
	muted := lipgloss.Color("240")      // Gray
	success := lipgloss.Color("82")     // Green
	warning := lipgloss.Color("214")    // Orange
	errorColor := lipgloss.Color("196") // Red

	return Styles{
		Title:   r.NewStyle().Foreground(primary).Bold(true),
		Label:   r.NewStyle().Foreground(secondary).Bold(true).Width(14),
		Value:   r.NewStyle(),
		Muted:   r.NewStyle().Foreground(muted),
		Target:  r.NewStyle().Bold(true).Width(12),
		Success: r.NewStyle().Foreground(success).Width(10),
		Preview: r.NewStyle().Foreground(secondary).Width(10),
		Warning: r.NewStyle().Foreground(warning).Width(10),
		Error:   r.NewStyle().Foreground(errorColor).Bold(true).Width(10),
	}
}

// Printer writes styled results to w. Colours are dropped when w is not a terminal.
type Printer struct {
	w io.Writer
	s Styles
}

// New creates a Printer for w.
func New(w io.Writer) *Printer {
	return &Printer{w: w, s: DefaultStyles(lipgloss.NewRenderer(w))}
}

func (p *Printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *Printer) field(label, value string) {
	p.line("%s%s", p.s.Label.Render(label), p.s.Value.Render(value))
}

func (p *Printer) status(st targets.Status) string {
	switch st {
	case targets.StatusCreated, targets.StatusUpdated:
		return p.s.Success.Render(string(st))
	case targets.StatusPreviewed:
		return p.s.Preview.Render(string(st))
	case targets.StatusSkipped:
		return p.s.Warning.Render(string(st))
	default:
		return p.s.Error.Render(string(st))
	}
}

// Report prints one dispatch report.
func (p *Printer) Report(rep *dispatch.Report) {
	title := rep.Entry.Subject()
	if rep.DryRun {
		title += p.s.Muted.Render("  (dry run)")
	}
	p.line("%s", p.s.Title.Render(title))
	for _, r := range rep.Results {
		text := r.RemoteID
		if r.Detail != "" {
			if text != "" {
				text += "  "
			}
			text += p.s.Muted.Render(r.Detail)
		}
		p.line("  %s%s%s", p.s.Target.Render(r.Target), p.status(r.Status), text)
	}
	switch {
	case rep.Archived():
		p.line("  %s%s %s", p.s.Target.Render("archive"), p.s.Success.UnsetWidth().Render(string(rep.ArchiveOutcome)), rep.ArchivePath)
	case !rep.DryRun:
		p.line("  %s%s", p.s.Target.Render("archive"), p.s.Muted.Render("unchanged"))
	}
}

// Info prints what a publish would start from.
func (p *Printer) Info(info *journal.Info) {
	p.line("%s", p.s.Title.Render(info.Subject))
	p.field("format", string(info.Entry.SourceFormat))
	p.field("blocks", fmt.Sprint(info.Blocks))
	if info.ArchivePath != "" {
		p.field("archived", info.ArchivePath)
	} else {
		p.field("archived", p.s.Muted.Render("no"))
	}
	if !info.Entry.LastModified.IsZero() {
		p.field("last modified", info.Entry.LastModified.UTC().Format("2006-01-02 15:04:05Z"))
	}
	for _, t := range info.Targets {
		id := info.PreviousIDs[t]
		if id == "" {
			id = p.s.Muted.Render("new")
		}
		p.field(t, id)
	}
	if len(info.InternalLinks) > 0 {
		p.line("%s", p.s.Error.UnsetWidth().Render(fmt.Sprintf("%d internal link(s) left:", len(info.InternalLinks))))
		p.Findings("", info.InternalLinks)
	}
}

// Findings prints internal links found in path.
func (p *Printer) Findings(path string, found []links.Finding) {
	for _, f := range found {
		loc := fmt.Sprintf("line %d", f.Line)
		if path != "" {
			loc = path + ":" + fmt.Sprint(f.Line)
		}
		p.line("  %s  %s", p.s.Muted.Render(loc), f.URL)
	}
}

// ImportSummary prints one inbox import run.
func (p *Printer) ImportSummary(sum *inbox.Summary) {
	for _, name := range sum.Extracted {
		p.line("%s %s", p.s.Muted.Render("extracted"), name)
	}
	if len(sum.Files) == 0 {
		p.line("%s", p.s.Muted.Render("inbox empty"))
		return
	}
	for _, f := range sum.Files {
		if f.Error != "" {
			p.line("%s%s", p.s.Error.Render("error"), f.Name+": "+f.Error)
			continue
		}
		st := p.s.Success
		if f.Outcome == archive.OutcomeAlreadyCurrent {
			st = p.s.Preview
		}
		p.line("%s%s  %s", st.UnsetWidth().Width(20).Render(string(f.Outcome)), f.Date, p.s.Muted.Render(f.Name))
		if f.Report != nil {
			p.Report(f.Report)
		}
	}
}

// SearchResults prints index search hits.
func (p *Printer) SearchResults(results []index.SearchResult) {
	if len(results) == 0 {
		p.line("%s", p.s.Muted.Render("no matches"))
		return
	}
	for _, r := range results {
		p.line("%s", p.s.Title.Render(r.Subject))
		if snip := strings.TrimSpace(r.Snippet); snip != "" {
			p.line("  %s", p.s.Muted.Render(strings.ReplaceAll(snip, "\n", " ")))
		}
	}
}

// History prints logged publish attempts.
func (p *Printer) History(rows []index.PublishRow) {
	if len(rows) == 0 {
		p.line("%s", p.s.Muted.Render("no publishes recorded"))
		return
	}
	for _, r := range rows {
		when := r.CreatedAt.Local().Format("2006-01-02 15:04")
		text := r.RemoteID
		if r.Detail != "" {
			text = strings.TrimSpace(text + "  " + p.s.Muted.Render(r.Detail))
		}
		dry := ""
		if r.DryRun {
			dry = p.s.Muted.Render(" (dry run)")
		}
		p.line("%s  %s  %s%s%s%s", p.s.Muted.Render(when), r.Date, p.s.Target.Render(r.Target), p.status(targets.Status(r.Status)), text, dry)
	}
}

// Repair prints the outcome of an archive consistency pass.
func (p *Printer) Repair(rep archive.RepairReport) {
	if rep.Empty() {
		p.line("%s", p.s.Muted.Render("archive consistent"))
		return
	}
	for _, name := range rep.TempFiles {
		p.line("%s%s", p.s.Warning.Render("removed"), name)
	}
	for _, name := range rep.Duplicates {
		p.line("%s%s", p.s.Warning.Render("deduped"), name)
	}
}
