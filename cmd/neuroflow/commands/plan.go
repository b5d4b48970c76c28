package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"git.home.luguber.info/inful/neuroflow/internal/command"
	"git.home.luguber.info/inful/neuroflow/internal/config"
	"git.home.luguber.info/inful/neuroflow/internal/pipeline"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

// PlanCmd implements the 'plan' command.
type PlanCmd struct {
	Subjects []string `arg:"" optional:"" help:"Subjects to inspect (default: every directory in pipeline.subjects_dir)"`
	Only     []string `help:"Plan only these tasks" sep:","`
	Skip     []string `help:"Skip these tasks" sep:","`
}

func (p *PlanCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if len(p.Only) > 0 {
		cfg.Pipeline.Only = p.Only
	}
	if len(p.Skip) > 0 {
		cfg.Pipeline.Skip = p.Skip
	}
	return RunPlan(context.Background(), cfg, p.Subjects, g)
}

// RunPlan prints the topological order and, per subject, what each task
// would do. Nothing is executed and no directory is modified.
func RunPlan(ctx context.Context, cfg *config.Config, subjects []string, g *Global) error {
	rt, err := newRuntime(ctx, cfg, runtimeOptions{Runner: &command.FakeRunner{}, Logger: g.logger()})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	out := g.out()
	order := rt.Graph.TopologicalOrder()
	names := make([]string, len(order))
	for i, n := range order {
		names[i] = string(n)
	}
	_, _ = fmt.Fprintf(out, "order: %s\n", strings.Join(names, " -> "))

	subjects, err = resolveSubjects(cfg.Pipeline.SubjectsDir, subjects)
	if err != nil {
		return err
	}
	for _, subject := range subjects {
		entries, err := rt.Scheduler.Plan(subject)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "\nsubject %s\n", subject)
		writePlan(out, entries)
	}
	return nil
}

func writePlan(out io.Writer, entries []pipeline.PlanEntry) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TASK\tPREDICTED\tDEPENDS ON\tDETAIL")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, e.Predicted(), joinNames(e.Dependencies), planDetail(e))
	}
	_ = tw.Flush()
}

func planDetail(e pipeline.PlanEntry) string {
	switch {
	case e.Excluded != "":
		return e.Excluded
	case len(e.Missing) > 0:
		return "missing " + strings.Join(e.Missing, ", ")
	case e.Dirty:
		return "will produce " + strings.Join(e.MissingOutputs, ", ")
	default:
		return "up to date"
	}
}

func joinNames(names []task.Name) string {
	if len(names) == 0 {
		return "-"
	}
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ",")
}
