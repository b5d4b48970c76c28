package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

// ErrIncompleteOutputs is returned when Implement succeeded but expected
// outputs are still missing.
var ErrIncompleteOutputs = errors.New("implement finished but expected outputs are missing")

// Outcome is the terminal result of one task in a run.
type Outcome struct {
	Name       task.Name
	State      State
	Reason     string
	Missing    []string // missing requirement or output descriptions
	WorkingDir string
	Duration   time.Duration
	Commands   int
	Err        error
	QA         *artifact.Set
	QAErr      error
}

// RunOutcome summarises a whole run.
type RunOutcome string

const (
	RunSucceeded RunOutcome = "success"
	RunFailed    RunOutcome = "failed"
	RunCanceled  RunOutcome = "canceled"
)

// Report captures every task outcome of one subject run.
type Report struct {
	RunID    string
	Subject  string
	Start    time.Time
	End      time.Time
	DryRun   bool
	Outcome  RunOutcome
	Outcomes []Outcome // topological order
}

func newReport(runID, subject string, dryRun bool) *Report {
	return &Report{RunID: runID, Subject: subject, Start: time.Now(), DryRun: dryRun}
}

// Get returns the outcome of a task.
func (r *Report) Get(name task.Name) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Name == name {
			return o, true
		}
	}
	return Outcome{}, false
}

// Counts returns the number of tasks per state.
func (r *Report) Counts() map[State]int {
	counts := map[State]int{}
	for _, o := range r.Outcomes {
		counts[o.State]++
	}
	return counts
}

// Failed returns the names of failed tasks.
func (r *Report) Failed() []task.Name {
	var out []task.Name
	for _, o := range r.Outcomes {
		if o.State == StateFailed {
			out = append(out, o.Name)
		}
	}
	return out
}

// Commands returns the total number of commands launched.
func (r *Report) Commands() int {
	n := 0
	for _, o := range r.Outcomes {
		n += o.Commands
	}
	return n
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration { return r.End.Sub(r.Start) }

func (r *Report) finish(canceled bool) {
	r.End = time.Now()
	switch {
	case len(r.Failed()) > 0:
		r.Outcome = RunFailed
	case canceled:
		r.Outcome = RunCanceled
	default:
		r.Outcome = RunSucceeded
	}
}

// Err returns a pipeline error naming the failed tasks, or nil.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		if r.Outcome == RunCanceled {
			return ferrors.NewError(ferrors.CategoryRuntime, "run canceled").
				ForRun(r.RunID).Build()
		}
		return nil
	}
	names := make([]string, len(failed))
	for i, n := range failed {
		names[i] = string(n)
	}
	b := ferrors.PipelineError(fmt.Sprintf("%d task(s) failed", len(failed))).
		ForRun(r.RunID).
		ForSubject(r.Subject).
		WithContext("tasks", strings.Join(names, ", "))
	if o, ok := r.Get(failed[0]); ok && o.Err != nil {
		b = b.WithCause(o.Err)
	}
	return b.Build()
}

// Summary returns a human-readable single-line summary.
func (r *Report) Summary() string {
	c := r.Counts()
	return fmt.Sprintf("subject=%s run=%s outcome=%s duration=%s done=%d satisfied=%d skipped=%d missing_deps=%d cancelled=%d failed=%d commands=%d",
		r.Subject, r.RunID, r.Outcome, r.Duration().Truncate(time.Millisecond),
		c[StateDone], c[StateSatisfied], c[StateSkipped], c[StateSkippedMissingDeps], c[StateSkippedCancelled], c[StateFailed], r.Commands())
}
