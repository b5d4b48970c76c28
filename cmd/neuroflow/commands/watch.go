package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/neuroflow/internal/config"
	"git.home.luguber.info/inful/neuroflow/internal/logfields"
	"git.home.luguber.info/inful/neuroflow/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Subjects      []string      `arg:"" optional:"" help:"Subjects to watch (default: every directory in pipeline.subjects_dir)"`
	Debounce      time.Duration `help:"Quiet period after an input change before a run starts (overrides watch.debounce)"`
	Interval      time.Duration `help:"Re-run every subject at this interval; 0 keeps watch.interval"`
	MetricsListen string        `name:"metrics-listen" help:"Serve Prometheus metrics on this address"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if w.Debounce > 0 {
		cfg.Watch.Debounce = w.Debounce
	}
	if w.Interval > 0 {
		cfg.Watch.Interval = w.Interval
	}
	if w.MetricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = w.MetricsListen
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunWatch(ctx, cfg, w.Subjects, g)
}

// RunWatch runs every subject once, then again whenever its inputs change or
// the interval elapses, until ctx is done.
func RunWatch(ctx context.Context, cfg *config.Config, subjects []string, g *Global) error {
	subjects, err := resolveSubjects(cfg.Pipeline.SubjectsDir, subjects)
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg, runtimeOptions{Runner: g.Runner, Fetch: true, Sinks: true, Logger: g.logger()})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			g.logger().Warn("Failed to release resources", logfields.Error(cerr))
		}
	}()
	if cfg.Metrics.Enabled {
		rt.ServeMetrics(ctx, cfg.Metrics.Listen)
	}

	w, err := watch.New(watch.Options{
		SubjectsDir: cfg.Pipeline.SubjectsDir,
		Subjects:    subjects,
		Debounce:    cfg.Watch.Debounce,
		Interval:    cfg.Watch.Interval,
		Logger:      g.logger(),
		Run: func(ctx context.Context, subject string) error {
			report, err := rt.RunSubject(ctx, subject)
			if err != nil {
				return err
			}
			return report.Err()
		},
	})
	if err != nil {
		return err
	}
	g.logger().Info("Watching subjects", "subjects", len(subjects), "debounce", cfg.Watch.Debounce, "interval", cfg.Watch.Interval)
	return w.Run(ctx)
}
