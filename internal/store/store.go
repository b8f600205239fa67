// Package store is the release ledger: a sqlite record of every pipeline run,
// its transitions, build outcomes, release and formula pull request.
package store

import (
	"time"

	"github.com/keithhendry/dotty/internal/pipeline"
)

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID         string         `json:"id"`
	Trigger    string         `json:"trigger"`
	DryRun     bool           `json:"dry_run"`
	State      pipeline.State `json:"state"`
	Version    string         `json:"version,omitempty"`
	Tag        string         `json:"tag,omitempty"`
	Source     string         `json:"source,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
}

// Transition is a recorded state change.
type Transition struct {
	Seq  int            `json:"seq"`
	From pipeline.State `json:"from"`
	To   pipeline.State `json:"to"`
	At   time.Time      `json:"at"`
}

// Build is a recorded build outcome.
type Build struct {
	Platform string        `json:"platform"`
	Archive  string        `json:"archive,omitempty"`
	SHA256   string        `json:"sha256,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Release is a recorded published release.
type Release struct {
	Tag         string    `json:"tag"`
	URL         string    `json:"url"`
	Assets      []string  `json:"assets"`
	PublishedAt time.Time `json:"published_at"`
}

// FormulaPR is a recorded tap pull request.
type FormulaPR struct {
	Branch string `json:"branch"`
	URL    string `json:"url,omitempty"`
	Reused bool   `json:"reused"`
}

// Run is everything recorded about one run.
type Run struct {
	RunSummary
	Transitions []Transition `json:"transitions"`
	Builds      []Build      `json:"builds"`
	Release     *Release     `json:"release,omitempty"`
	FormulaPR   *FormulaPR   `json:"formula_pr,omitempty"`
}
