package metrics

import "time"

// Recorder defines observability hooks for runs, tasks and external commands.
type Recorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	IncTaskResult(task, state string)
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(outcome string) // success|failed|canceled
	ObserveCommandDuration(program string, d time.Duration, success bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration)          {}
func (NoopRecorder) IncTaskResult(string, string)                       {}
func (NoopRecorder) ObserveRunDuration(time.Duration)                   {}
func (NoopRecorder) IncRunOutcome(string)                               {}
func (NoopRecorder) ObserveCommandDuration(string, time.Duration, bool) {}
