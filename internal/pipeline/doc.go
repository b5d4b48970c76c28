// Package pipeline orders tasks by their declared dependencies and runs them
// for one subject.
//
// The dependency graph is built and validated once (unknown names, duplicates,
// cycles) and each task receives typed handles to its dependencies' working
// directories. For every task the scheduler evaluates, in order: configuration
// filters and IsIgnore, MeetRequirement, IsDirty, then Implement. Skips never
// abort the run; a failed task blocks only its dependents.
package pipeline
