package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
)

func TestReportOutcomeDerivation(t *testing.T) {
	r := newReport("run-1", "s01", false)
	r.Outcomes = []Outcome{
		{Name: "a", State: StateDone, Commands: 2},
		{Name: "b", State: StateSatisfied},
		{Name: "c", State: StateFailed, Err: errors.New("exit 1")},
	}
	r.finish(false)

	assert.Equal(t, RunFailed, r.Outcome)
	assert.Equal(t, 3, len(r.Counts()))
	assert.Equal(t, 2, r.Commands())
	assert.False(t, r.End.Before(r.Start))

	err := r.Err()
	require.Error(t, err)
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	tasks, _ := ce.Context().GetString("tasks")
	assert.Equal(t, "c", tasks)
}

func TestReportSucceededHasNoError(t *testing.T) {
	r := newReport("run-2", "s01", false)
	r.Outcomes = []Outcome{{Name: "a", State: StateSkippedMissingDeps}}
	r.finish(false)
	assert.Equal(t, RunSucceeded, r.Outcome)
	assert.NoError(t, r.Err())
}

type countingRecorder struct {
	durations map[string]time.Duration
	results   map[string]string
	outcome   string
}

func (c *countingRecorder) ObserveTaskDuration(task string, d time.Duration) { c.durations[task] = d }
func (c *countingRecorder) IncTaskResult(task, state string)                 { c.results[task] = state }
func (c *countingRecorder) ObserveRunDuration(time.Duration)                 {}
func (c *countingRecorder) IncRunOutcome(outcome string)                     { c.outcome = outcome }

func TestRecorderObserver(t *testing.T) {
	rec := &countingRecorder{durations: map[string]time.Duration{}, results: map[string]string{}}
	obs := Observers{NoopObserver{}, RecorderObserver{Recorder: rec}}
	r := newReport("run-3", "s01", false)

	obs.OnRunStart(r)
	obs.OnTaskStart(r, "a")
	obs.OnTaskComplete(r, Outcome{Name: "a", State: StateDone, Duration: time.Second})
	r.finish(false)
	obs.OnRunComplete(r)

	assert.Equal(t, time.Second, rec.durations["a"])
	assert.Equal(t, "DONE", rec.results["a"])
	assert.Equal(t, "success", rec.outcome)
}
