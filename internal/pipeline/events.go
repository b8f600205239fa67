package pipeline

import (
	"time"

	"github.com/keithhendry/dotty/internal/platform"
)

// Event is something that happened during a run.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// Observer receives run events in order. An observer error is logged and
// never fails the run.
type Observer interface {
	Observe(e Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event) error

func (f ObserverFunc) Observe(e Event) error { return f(e) }

// RunStartedEvent is emitted once per run, before any transition.
type RunStartedEvent struct {
	RunID   string
	Trigger Trigger
	DryRun  bool
	At      time.Time
}

func (e *RunStartedEvent) EventName() string     { return "run.started" }
func (e *RunStartedEvent) OccurredAt() time.Time { return e.At }

// StateTransitionedEvent is emitted on every transition.
type StateTransitionedEvent struct {
	RunID string
	From  State
	To    State
	At    time.Time
}

func (e *StateTransitionedEvent) EventName() string     { return "run.state_transitioned" }
func (e *StateTransitionedEvent) OccurredAt() time.Time { return e.At }

// VersionResolvedEvent carries the resolved version.
type VersionResolvedEvent struct {
	RunID   string
	Version string
	Tag     string
	Source  string
	At      time.Time
}

func (e *VersionResolvedEvent) EventName() string     { return "run.version_resolved" }
func (e *VersionResolvedEvent) OccurredAt() time.Time { return e.At }

// BuildFinishedEvent is emitted as each build task reaches its outcome.
type BuildFinishedEvent struct {
	RunID    string
	Platform platform.Platform
	Archive  string
	SHA256   string
	Err      error
	Duration time.Duration
	At       time.Time
}

func (e *BuildFinishedEvent) EventName() string     { return "run.build_finished" }
func (e *BuildFinishedEvent) OccurredAt() time.Time { return e.At }

// ReleasePublishedEvent is emitted once the hosted release exists.
type ReleasePublishedEvent struct {
	RunID  string
	Tag    string
	URL    string
	Assets []string
	At     time.Time
}

func (e *ReleasePublishedEvent) EventName() string     { return "run.release_published" }
func (e *ReleasePublishedEvent) OccurredAt() time.Time { return e.At }

// FormulaUpdatedEvent is emitted when the tap pull request is open.
type FormulaUpdatedEvent struct {
	RunID  string
	Branch string
	URL    string
	Reused bool
	// UpToDate is set when the tap already carried this formula.
	UpToDate bool
	At       time.Time
}

func (e *FormulaUpdatedEvent) EventName() string     { return "run.formula_updated" }
func (e *FormulaUpdatedEvent) OccurredAt() time.Time { return e.At }

// RunFinishedEvent is the last event of a run.
type RunFinishedEvent struct {
	RunID string
	State State
	Err   error
	At    time.Time
}

func (e *RunFinishedEvent) EventName() string     { return "run.finished" }
func (e *RunFinishedEvent) OccurredAt() time.Time { return e.At }
