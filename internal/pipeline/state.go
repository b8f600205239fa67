package pipeline

import (
	"fmt"
	"time"
)

// State is a pipeline run state.
type State string

const (
	StatePending         State = "pending"
	StateResolving       State = "resolving"
	StateTagging         State = "tagging"
	StateBuilding        State = "building"
	StateAggregating     State = "aggregating"
	StateReleasing       State = "releasing"
	StateUpdatingFormula State = "updating_formula"
	StateDone            State = "done"

	StateSkipped         State = "skipped"
	StatePlanned         State = "planned"
	StateResolveFailed   State = "resolve_failed"
	StateTagFailed       State = "tag_failed"
	StateAggregateFailed State = "aggregate_failed"
	StateReleaseFailed   State = "release_failed"
	StateFormulaFailed   State = "formula_failed"
)

// transitions lists the allowed successors of each non-terminal state.
// Building has a single successor: the join decides whether the run failed.
var transitions = map[State][]State{
	StatePending:         {StateResolving, StateSkipped},
	StateResolving:       {StateTagging, StatePlanned, StateResolveFailed},
	StateTagging:         {StateBuilding, StateTagFailed},
	StateBuilding:        {StateAggregating},
	StateAggregating:     {StateReleasing, StateAggregateFailed},
	StateReleasing:       {StateUpdatingFormula, StateDone, StateReleaseFailed},
	StateUpdatingFormula: {StateDone, StateFormulaFailed},
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s State) bool {
	_, ok := transitions[s]
	return !ok
}

// IsFailed reports whether s is a failure state.
func IsFailed(s State) bool {
	switch s {
	case StateResolveFailed, StateTagFailed, StateAggregateFailed, StateReleaseFailed, StateFormulaFailed:
		return true
	default:
		return false
	}
}

// Released reports whether a run in state s has published its release.
func Released(s State) bool {
	return s == StateDone || s == StateUpdatingFormula || s == StateFormulaFailed
}

// Step is one recorded transition.
type Step struct {
	From State
	To   State
	At   time.Time
}

// Machine holds the current state of a run and its transition history.
type Machine struct {
	state   State
	history []Step
	now     func() time.Time
}

// NewMachine returns a machine in StatePending.
func NewMachine() *Machine {
	return &Machine{state: StatePending, now: time.Now}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// History returns the transitions taken so far.
func (m *Machine) History() []Step { return append([]Step(nil), m.history...) }

// Transition moves the machine from -> to. The caller names the state it
// expects to leave so an out-of-order call is caught rather than applied.
func (m *Machine) Transition(from, to State) (Step, error) {
	if m.state != from {
		return Step{}, fmt.Errorf("invalid transition: expected %s, got %s", from, m.state)
	}
	if !allowed(from, to) {
		return Step{}, fmt.Errorf("disallowed transition: %s -> %s", from, to)
	}
	step := Step{From: from, To: to, At: m.now()}
	m.state = to
	m.history = append(m.history, step)
	return step, nil
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
