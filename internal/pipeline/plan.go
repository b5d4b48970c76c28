package pipeline

import (
	"os"

	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

// PlanEntry is the predicted evaluation of one task, computed without running anything.
type PlanEntry struct {
	Name           task.Name
	WorkingDir     string
	Dependencies   []task.Name
	Excluded       string   // filter or ignore reason; empty when the task is eligible
	Missing        []string // unmet requirements
	MissingOutputs []string // expected outputs not yet present
	Dirty          bool
}

// Predicted returns the state the task would reach if evaluated now, assuming
// upstream tasks do not change the filesystem.
func (p PlanEntry) Predicted() State {
	switch {
	case p.Excluded != "":
		return StateSkipped
	case len(p.Missing) > 0:
		return StateSkippedMissingDeps
	case !p.Dirty:
		return StateSatisfied
	default:
		return StateRunning
	}
}

// Plan evaluates the pure predicates of every task for subject in
// topological order. No command is launched and no directory is modified.
func (s *Scheduler) Plan(subject string) ([]PlanEntry, error) {
	subjectDir := s.SubjectDir(subject)
	if info, err := os.Stat(subjectDir); err != nil || !info.IsDir() {
		return nil, ferrors.NewError(ferrors.CategoryNotFound, "subject directory not found").
			ForSubject(subject).
			WithContext("dir", subjectDir).Build()
	}
	r := &run{
		report:     newReport(uuid.NewString(), subject, true),
		subject:    subject,
		subjectDir: subjectDir,
		logger:     s.logger,
	}
	entries := make([]PlanEntry, 0, s.graph.Len())
	for _, idx := range s.graph.order {
		t := s.graph.tasks[idx]
		env := s.env(r, idx)
		entry := PlanEntry{
			Name:         t.Name(),
			WorkingDir:   env.WorkingDir,
			Dependencies: s.graph.DependenciesOf(t.Name()),
		}
		err := guarded(t.Name(), "plan", func() error {
			if excluded, reason := s.filtered(t.Name()); excluded {
				entry.Excluded = reason
			} else if ig, ok := t.(task.Ignorer); ok && ig.IsIgnore(env) {
				entry.Excluded = "ignored by configuration"
			}
			entry.Missing = t.MeetRequirement(env).Missing()
			outputs := t.IsDirty(env)
			entry.Dirty = task.Dirty(outputs)
			entry.MissingOutputs = outputs.Missing()
			return nil
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
