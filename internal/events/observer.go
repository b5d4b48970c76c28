package events

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/neuroflow/internal/logfields"
	"git.home.luguber.info/inful/neuroflow/internal/pipeline"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

// Observer turns pipeline callbacks into published events. Publish failures
// are logged; they never affect the run.
type Observer struct {
	Publisher Publisher
	Logger    *slog.Logger
	Timeout   time.Duration
	Now       func() time.Time
}

// NewObserver creates an observer publishing through p.
func NewObserver(p Publisher, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{Publisher: p, Logger: logger, Timeout: 5 * time.Second, Now: time.Now}
}

func (o *Observer) OnRunStart(r *pipeline.Report) {
	o.publish(Event{Type: RunStarted, RunID: r.RunID, Subject: r.Subject})
}

func (o *Observer) OnTaskStart(r *pipeline.Report, name task.Name) {
	o.publish(Event{Type: TaskStarted, RunID: r.RunID, Subject: r.Subject, Task: string(name)})
}

func (o *Observer) OnTaskComplete(r *pipeline.Report, out pipeline.Outcome) {
	o.publish(Event{
		Type:       TaskCompleted,
		RunID:      r.RunID,
		Subject:    r.Subject,
		Task:       string(out.Name),
		State:      string(out.State),
		Reason:     out.Reason,
		DurationMS: out.Duration.Milliseconds(),
	})
}

func (o *Observer) OnRunComplete(r *pipeline.Report) {
	o.publish(Event{
		Type:       RunCompleted,
		RunID:      r.RunID,
		Subject:    r.Subject,
		Outcome:    string(r.Outcome),
		DurationMS: r.Duration().Milliseconds(),
	})
}

func (o *Observer) publish(e Event) {
	e.Timestamp = o.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), o.Timeout)
	defer cancel()
	if err := o.Publisher.Publish(ctx, e); err != nil {
		o.Logger.Warn("Failed to publish event", slog.String("type", string(e.Type)),
			logfields.RunID(e.RunID), logfields.Error(err))
	}
}
