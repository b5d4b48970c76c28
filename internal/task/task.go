// Package task defines the contract every pipeline stage implements and the
// per-task environment through which stages reach artifacts and tools.
package task

import (
	"context"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
)

// Name identifies a task uniquely within a pipeline.
type Name string

// Dependency names an upstream task. Optional dependencies may be absent from
// the pipeline; their handle is then unresolved and lookups in it find nothing.
type Dependency struct {
	Name     Name
	Optional bool
}

// Requires builds mandatory dependencies.
func Requires(names ...Name) []Dependency {
	deps := make([]Dependency, len(names))
	for i, n := range names {
		deps[i] = Dependency{Name: n}
	}
	return deps
}

// OptionalDep builds an optional dependency.
func OptionalDep(name Name) Dependency { return Dependency{Name: name, Optional: true} }

// Task is one pipeline stage.
//
// MeetRequirement and IsDirty are pure predicates evaluated before execution:
// MeetRequirement returns the upstream artifacts that must exist, IsDirty the
// outputs this task is expected to have produced in its own working directory.
// Implement is the only mutating operation and is invoked at most once per run.
type Task interface {
	Name() Name
	Order() int
	Description() string
	Dependencies() []Dependency
	MeetRequirement(env *Env) *artifact.Set
	IsDirty(env *Env) *artifact.Set
	Implement(ctx context.Context, env *Env) error
}

// QASupplier is implemented by tasks that render review images after a
// successful Implement.
type QASupplier interface {
	QASupplier(ctx context.Context, env *Env) (*artifact.Set, error)
}

// Ignorer is implemented by tasks that can be switched off by configuration.
type Ignorer interface {
	IsIgnore(env *Env) bool
}

// CleanupPolicy is implemented by tasks that control whether their working
// directory is emptied before Implement.
type CleanupPolicy interface {
	CleanupBeforeImplement() bool
}

// Dirty reports whether an expected-output set demands execution: any entry is
// missing or the set is empty.
func Dirty(outputs *artifact.Set) bool {
	return outputs.Len() == 0 || len(outputs.Missing()) > 0
}

// ShouldCleanup reports the cleanup policy of t, defaulting to true.
func ShouldCleanup(t Task) bool {
	if p, ok := t.(CleanupPolicy); ok {
		return p.CleanupBeforeImplement()
	}
	return true
}
