package pipeline

import (
	"fmt"
	"sync"

	"git.home.luguber.info/inful/neuroflow/internal/task"
)

// State is the per-run state of one task.
type State string

const (
	StatePending            State = "PENDING"
	StateRunning            State = "RUNNING"
	StateDone               State = "DONE"
	StateSatisfied          State = "SATISFIED"
	StateSkipped            State = "SKIPPED"
	StateSkippedMissingDeps State = "SKIPPED_MISSING_DEPS"
	StateSkippedCancelled   State = "SKIPPED_CANCELLED"
	StateFailed             State = "FAILED"
)

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	switch s {
	case StateDone, StateSatisfied, StateSkipped, StateSkippedMissingDeps, StateSkippedCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// Transition performs a validated transition on the state table. The caller
// supplies the expected prior state so races become observable.
func Transition(states map[task.Name]State, name task.Name, from, to State) error {
	cur, ok := states[name]
	if !ok {
		return fmt.Errorf("unknown task in state table: %q", name)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", name, from, cur)
	}
	if !allowed(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", name, from, to)
	}
	states[name] = to
	return nil
}

func allowed(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateSatisfied || to == StateSkipped ||
			to == StateSkippedMissingDeps || to == StateSkippedCancelled
	case StateRunning:
		return to == StateDone || to == StateFailed || to == StateSkippedCancelled
	default:
		return false
	}
}

// stateTable guards the state map of one run.
type stateTable struct {
	mu     sync.Mutex
	states map[task.Name]State
}

func newStateTable(names []task.Name) *stateTable {
	st := &stateTable{states: make(map[task.Name]State, len(names))}
	for _, n := range names {
		st.states[n] = StatePending
	}
	return st
}

func (st *stateTable) transition(name task.Name, from, to State) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return Transition(st.states, name, from, to)
}

func (st *stateTable) get(name task.Name) State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.states[name]
}
