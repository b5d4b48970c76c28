package metrics

import (
	"context"
	"time"

	"git.home.luguber.info/inful/neuroflow/internal/command"
)

// InstrumentedRunner records the duration and result of every command.
// Dry-run invocations are not recorded.
type InstrumentedRunner struct {
	Next     command.Runner
	Recorder Recorder
}

func (r InstrumentedRunner) Run(ctx context.Context, inv command.Invocation) (command.Result, error) {
	start := time.Now()
	res, err := r.Next.Run(ctx, inv)
	if !res.DryRun && r.Recorder != nil {
		r.Recorder.ObserveCommandDuration(inv.Program, time.Since(start), err == nil)
	}
	return res, err
}
