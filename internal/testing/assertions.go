package testing

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/keithhendry/dotty/internal/pipeline"
)

// Assertions provides fluent checks over a pipeline report.
type Assertions struct {
	t      *testing.T
	report *pipeline.Report
}

// NewAssertions creates a new assertions helper
func NewAssertions(t *testing.T, report *pipeline.Report) *Assertions {
	return &Assertions{t: t, report: report}
}

// Succeeded asserts the run published a release.
func (a *Assertions) Succeeded() *Assertions {
	a.t.Helper()
	if a.report.Err != nil {
		a.t.Errorf("run failed in state %s: %v", a.report.State, a.report.Err)
	}
	if !a.report.Released() {
		a.t.Errorf("run did not publish a release (state %s)", a.report.State)
	}
	return a
}

// FailedWith asserts the run stopped with an error matching target.
func (a *Assertions) FailedWith(target error) *Assertions {
	a.t.Helper()
	if !errors.Is(a.report.Err, target) {
		a.t.Errorf("expected error matching %v, got %v", target, a.report.Err)
	}
	return a
}

// State asserts the final state.
func (a *Assertions) State(expected pipeline.State) *Assertions {
	a.t.Helper()
	if a.report.State != expected {
		a.t.Errorf("expected state %s, got %s (error: %v)", expected, a.report.State, a.report.Err)
	}
	return a
}

// Visited asserts the run passed through states in order.
func (a *Assertions) Visited(states ...pipeline.State) *Assertions {
	a.t.Helper()
	got := make([]pipeline.State, 0, len(a.report.History)+1)
	if len(a.report.History) > 0 {
		got = append(got, a.report.History[0].From)
	}
	for _, s := range a.report.History {
		got = append(got, s.To)
	}
	if len(got) != len(states) {
		a.t.Errorf("expected path %v, got %v", states, got)
		return a
	}
	for i := range states {
		if got[i] != states[i] {
			a.t.Errorf("expected path %v, got %v", states, got)
			return a
		}
	}
	return a
}

// ExitCode asserts the exit code
func (a *Assertions) ExitCode(expected int) *Assertions {
	a.t.Helper()
	if got := a.report.ExitCode(); got != expected {
		a.t.Errorf("expected exit code %d, got %d", expected, got)
	}
	return a
}

// Version asserts the resolved version.
func (a *Assertions) Version(expected string) *Assertions {
	a.t.Helper()
	if a.report.Resolution == nil {
		a.t.Errorf("no version resolved, expected %s", expected)
		return a
	}
	if got := a.report.Resolution.Version.String(); got != expected {
		a.t.Errorf("expected version %s, got %s", expected, got)
	}
	return a
}

// Assets asserts the published release carries exactly names.
func (a *Assertions) Assets(names ...string) *Assertions {
	a.t.Helper()
	if a.report.Release == nil {
		a.t.Errorf("no release published")
		return a
	}
	got := a.report.Release.Release.Assets
	if strings.Join(got, ",") != strings.Join(names, ",") {
		a.t.Errorf("expected assets %v, got %v", names, got)
	}
	return a
}

// NoFormulaError asserts the formula stage did not fail.
func (a *Assertions) NoFormulaError() *Assertions {
	a.t.Helper()
	if a.report.FormulaErr != nil {
		a.t.Errorf("formula update failed: %v", a.report.FormulaErr)
	}
	return a
}

// DurationLessThan asserts the run took less than d.
func (a *Assertions) DurationLessThan(d time.Duration) *Assertions {
	a.t.Helper()
	if took := a.report.FinishedAt.Sub(a.report.StartedAt); took >= d {
		a.t.Errorf("run took %v, expected less than %v", took, d)
	}
	return a
}
