package pipeline

import (
	"testing"

	"git.home.luguber.info/inful/neuroflow/internal/task"
)

func TestTransitionRules(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StatePending, StateRunning, true},
		{StatePending, StateSatisfied, true},
		{StatePending, StateSkipped, true},
		{StatePending, StateSkippedMissingDeps, true},
		{StatePending, StateSkippedCancelled, true},
		{StatePending, StateDone, false},
		{StatePending, StateFailed, false},
		{StateRunning, StateDone, true},
		{StateRunning, StateFailed, true},
		{StateRunning, StateSkippedCancelled, true},
		{StateRunning, StateSatisfied, false},
		{StateDone, StateRunning, false},
		{StateFailed, StateRunning, false},
		{StateSatisfied, StateRunning, false},
	}
	for _, tc := range cases {
		states := map[task.Name]State{"a": tc.from}
		err := Transition(states, "a", tc.from, tc.to)
		if tc.ok && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s -> %s: expected error", tc.from, tc.to)
		}
		if !tc.ok && states["a"] != tc.from {
			t.Fatalf("%s -> %s: state mutated on rejected transition", tc.from, tc.to)
		}
	}
}

func TestTransitionDetectsStaleFrom(t *testing.T) {
	states := map[task.Name]State{"a": StateRunning}
	if err := Transition(states, "a", StatePending, StateRunning); err == nil {
		t.Fatalf("expected error for stale from state")
	}
	if err := Transition(states, "ghost", StatePending, StateRunning); err == nil {
		t.Fatalf("expected error for unknown task")
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []State{StateDone, StateSatisfied, StateSkipped, StateSkippedMissingDeps, StateSkippedCancelled, StateFailed} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StatePending, StateRunning} {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
