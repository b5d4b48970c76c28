package store

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/neuroflow/internal/logfields"
	"git.home.luguber.info/inful/neuroflow/internal/pipeline"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

// Observer records every run and task outcome. Write failures are logged and
// never affect the run.
type Observer struct {
	Store   *Store
	Logger  *slog.Logger
	Timeout time.Duration
}

// NewObserver creates a recording observer.
func NewObserver(s *Store, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{Store: s, Logger: logger, Timeout: 5 * time.Second}
}

func (o *Observer) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.Timeout)
}

func (o *Observer) OnRunStart(r *pipeline.Report) {
	ctx, cancel := o.ctx()
	defer cancel()
	o.check(o.Store.RecordRun(ctx, runRecord(r)), r)
}

func (o *Observer) OnTaskStart(*pipeline.Report, task.Name) {}

func (o *Observer) OnTaskComplete(r *pipeline.Report, out pipeline.Outcome) {
	rec := TaskRecord{
		RunID:    r.RunID,
		Task:     string(out.Name),
		State:    string(out.State),
		Reason:   out.Reason,
		Missing:  out.Missing,
		Duration: out.Duration,
		Commands: out.Commands,
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	ctx, cancel := o.ctx()
	defer cancel()
	o.check(o.Store.RecordTask(ctx, rec), r)
}

func (o *Observer) OnRunComplete(r *pipeline.Report) {
	ctx, cancel := o.ctx()
	defer cancel()
	o.check(o.Store.RecordRun(ctx, runRecord(r)), r)
}

func (o *Observer) check(err error, r *pipeline.Report) {
	if err != nil {
		o.Logger.Warn("Failed to record run history", logfields.RunID(r.RunID), logfields.Error(err))
	}
}

func runRecord(r *pipeline.Report) RunRecord {
	return RunRecord{
		RunID:   r.RunID,
		Subject: r.Subject,
		Start:   r.Start,
		End:     r.End,
		DryRun:  r.DryRun,
		Outcome: string(r.Outcome),
	}
}
