package commands

import (
	"context"
	"errors"
	"log/slog"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/neuroflow/internal/command"
	"git.home.luguber.info/inful/neuroflow/internal/config"
	"git.home.luguber.info/inful/neuroflow/internal/events"
	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/logfields"
	"git.home.luguber.info/inful/neuroflow/internal/metrics"
	"git.home.luguber.info/inful/neuroflow/internal/pipeline"
	"git.home.luguber.info/inful/neuroflow/internal/qa"
	"git.home.luguber.info/inful/neuroflow/internal/resources"
	"git.home.luguber.info/inful/neuroflow/internal/retry"
	"git.home.luguber.info/inful/neuroflow/internal/stages"
	"git.home.luguber.info/inful/neuroflow/internal/store"
)

// runtimeOptions selects which collaborators are assembled.
type runtimeOptions struct {
	Runner command.Runner // nil selects the exec runner
	Fetch  bool           // clone or pull the resource bundle
	Sinks  bool           // attach QA report, history, events and metrics
	Logger *slog.Logger
}

// Runtime is a scheduler wired to its observers for one configuration.
type Runtime struct {
	Config    *config.Config
	Graph     *pipeline.Graph
	Scheduler *pipeline.Scheduler
	Registry  *prom.Registry // nil unless metrics are enabled

	logger  *slog.Logger
	closers []func() error
}

func newRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{Config: cfg, logger: logger}

	tasks, err := stages.Build(cfg)
	if err != nil {
		return nil, err
	}
	if rt.Graph, err = pipeline.NewGraph(tasks...); err != nil {
		return nil, err
	}

	policy := retry.FromConfig(cfg.Retry)
	fetcher := resources.NewFetcher(cfg.Resources, policy, logger)
	resDir := fetcher.Path()
	if opts.Fetch {
		if resDir, err = fetcher.Fetch(ctx); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryResources, "failed to fetch resources").
				WithContext("url", cfg.Resources.URL).Retryable().Build()
		}
	}

	runner := opts.Runner
	if runner == nil {
		runner = command.NewExecRunner(cfg.Pipeline.DryRun, cfg.Pipeline.LogTailLines, policy, logger)
	}

	var observers pipeline.Observers
	if opts.Sinks {
		if observers, runner, err = rt.sinks(runner); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	rt.Scheduler = pipeline.NewScheduler(rt.Graph, pipeline.Options{
		Config:       cfg,
		Runner:       runner,
		Logger:       logger,
		Observer:     observers,
		ResourcesDir: resDir,
	})
	return rt, nil
}

// sinks builds the observers configured for cfg and wraps runner for metrics.
func (rt *Runtime) sinks(runner command.Runner) (pipeline.Observers, command.Runner, error) {
	cfg := rt.Config
	var observers pipeline.Observers

	if !cfg.QA.Disabled {
		observers = append(observers, qa.NewReporter(cfg.Pipeline.SubjectsDir, cfg.QA.ReportDir, rt.logger))
	}
	if !cfg.Store.Disabled {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, st.Close)
		observers = append(observers, store.NewObserver(st, rt.logger))
	}
	if cfg.Events.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject, rt.logger)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, pub.Close)
		observers = append(observers, events.NewObserver(pub, rt.logger))
	}
	if cfg.Metrics.Enabled {
		rt.Registry = prom.NewRegistry()
		rec := metrics.NewPrometheusRecorder(rt.Registry)
		observers = append(observers, pipeline.RecorderObserver{Recorder: rec})
		runner = metrics.InstrumentedRunner{Next: runner, Recorder: rec}
	}
	return observers, runner, nil
}

// ServeMetrics exposes the registry on listen until ctx is done. It is a
// no-op when metrics are disabled.
func (rt *Runtime) ServeMetrics(ctx context.Context, listen string) {
	if rt.Registry == nil {
		return
	}
	srv := metrics.NewServer(listen, rt.Registry, rt.logger)
	srv.Start()
	rt.closers = append(rt.closers, srv.Shutdown)
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown()
	}()
}

// Close releases the store, the event connection and the metrics server.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// RunSubject runs the pipeline for one subject and logs the summary.
func (rt *Runtime) RunSubject(ctx context.Context, subject string) (*pipeline.Report, error) {
	report, err := rt.Scheduler.Run(ctx, subject)
	if err != nil {
		return nil, err
	}
	rt.logger.Info("Run finished", logfields.Subject(subject), logfields.RunID(report.RunID),
		slog.String("outcome", string(report.Outcome)), logfields.Duration(report.Duration()))
	return report, nil
}
