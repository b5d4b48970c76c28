package pipeline

import (
	"time"

	"git.home.luguber.info/inful/neuroflow/internal/task"
)

// Observer receives callbacks around task evaluation and the run lifecycle.
// Implementations must be safe for concurrent use when tasks run in parallel.
type Observer interface {
	OnRunStart(report *Report)
	OnTaskStart(report *Report, name task.Name)
	OnTaskComplete(report *Report, outcome Outcome)
	OnRunComplete(report *Report)
}

// NoopObserver is a no-op implementation.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(*Report)              {}
func (NoopObserver) OnTaskStart(*Report, task.Name)  {}
func (NoopObserver) OnTaskComplete(*Report, Outcome) {}
func (NoopObserver) OnRunComplete(*Report)           {}

// Observers fans callbacks out to every member in order.
type Observers []Observer

func (obs Observers) OnRunStart(r *Report) {
	for _, o := range obs {
		o.OnRunStart(r)
	}
}

func (obs Observers) OnTaskStart(r *Report, name task.Name) {
	for _, o := range obs {
		o.OnTaskStart(r, name)
	}
}

func (obs Observers) OnTaskComplete(r *Report, out Outcome) {
	for _, o := range obs {
		o.OnTaskComplete(r, out)
	}
}

func (obs Observers) OnRunComplete(r *Report) {
	for _, o := range obs {
		o.OnRunComplete(r)
	}
}

// TaskRecorder is the subset of the metrics recorder used by RecorderObserver.
type TaskRecorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	IncTaskResult(task, state string)
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(outcome string)
}

// RecorderObserver adapts a metrics recorder into an Observer.
type RecorderObserver struct{ Recorder TaskRecorder }

func (RecorderObserver) OnRunStart(*Report)             {}
func (RecorderObserver) OnTaskStart(*Report, task.Name) {}

func (r RecorderObserver) OnTaskComplete(_ *Report, out Outcome) {
	if r.Recorder != nil {
		r.Recorder.ObserveTaskDuration(string(out.Name), out.Duration)
		r.Recorder.IncTaskResult(string(out.Name), string(out.State))
	}
}

func (r RecorderObserver) OnRunComplete(report *Report) {
	if r.Recorder != nil {
		r.Recorder.ObserveRunDuration(report.Duration())
		r.Recorder.IncRunOutcome(string(report.Outcome))
	}
}
