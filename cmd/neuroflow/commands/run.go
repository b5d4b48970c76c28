package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/neuroflow/internal/config"
	"git.home.luguber.info/inful/neuroflow/internal/logfields"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	Subjects      []string `arg:"" optional:"" help:"Subjects to process (default: every directory in pipeline.subjects_dir)"`
	DryRun        bool     `help:"Log commands instead of executing them"`
	FailFast      bool     `help:"Stop scheduling after the first failed task"`
	Only          []string `help:"Run only these tasks" sep:","`
	Skip          []string `help:"Skip these tasks" sep:","`
	MetricsListen string   `name:"metrics-listen" help:"Serve Prometheus metrics on this address while running"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if err := r.apply(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunSubjects(ctx, cfg, r.Subjects, g)
}

// apply layers command-line overrides on top of the loaded configuration.
func (r *RunCmd) apply(cfg *config.Config) error {
	if r.DryRun {
		cfg.Pipeline.DryRun = true
	}
	if r.FailFast {
		cfg.Pipeline.FailFast = true
	}
	if len(r.Only) > 0 {
		cfg.Pipeline.Only = r.Only
	}
	if len(r.Skip) > 0 {
		cfg.Pipeline.Skip = r.Skip
	}
	if r.MetricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = r.MetricsListen
	}
	return cfg.Validate()
}

// RunSubjects runs the pipeline for every subject in turn and prints one
// summary line per run. The returned error joins the failures of all runs.
func RunSubjects(ctx context.Context, cfg *config.Config, subjects []string, g *Global) error {
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

	var failures []error
	for _, subject := range subjects {
		if ctx.Err() != nil {
			failures = append(failures, ctx.Err())
			break
		}
		report, err := rt.RunSubject(ctx, subject)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		_, _ = fmt.Fprintln(g.out(), report.Summary())
		if err := report.Err(); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}
