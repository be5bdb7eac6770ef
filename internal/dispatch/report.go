package dispatch

import (
	"time"

	"github.com/starford/monologue/internal/archive"
	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/targets"
)

// TargetResult is one target's outcome within a Report.
type TargetResult struct {
	Target string `json:"target"`
	targets.Result
}

// Report is the outcome of one dispatch.
type Report struct {
	Entry          *models.Entry   `json:"entry"`
	Results        []TargetResult  `json:"results"`
	ArchivePath    string          `json:"archive_path,omitempty"`
	ArchiveOutcome archive.Outcome `json:"archive_outcome,omitempty"`
	DryRun         bool            `json:"dry_run"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// OK reports whether no target failed.
func (r *Report) OK() bool {
	for _, res := range r.Results {
		if res.Status == targets.StatusFailed {
			return false
		}
	}
	return true
}

// Failed lists the targets that failed.
func (r *Report) Failed() []string {
	var out []string
	for _, res := range r.Results {
		if res.Status == targets.StatusFailed {
			out = append(out, res.Target)
		}
	}
	return out
}

// Result returns the outcome for target.
func (r *Report) Result(target string) (targets.Result, bool) {
	for _, res := range r.Results {
		if res.Target == target {
			return res.Result, true
		}
	}
	return targets.Result{}, false
}

// Archived reports whether the dispatch wrote the archive.
func (r *Report) Archived() bool {
	return r.ArchivePath != ""
}
