package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/neuroflow/internal/config"
	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/store"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Subject string `arg:"" optional:"" help:"Only list runs of this subject"`
	Limit   int    `short:"n" default:"20" help:"Maximum number of runs to list"`
	Tasks   bool   `short:"t" help:"Also list the task outcomes of each run"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	return RunHistory(context.Background(), cfg, h.Subject, h.Limit, h.Tasks, g)
}

// RunHistory prints the newest runs recorded in the history store.
func RunHistory(ctx context.Context, cfg *config.Config, subject string, limit int, tasks bool, g *Global) error {
	if cfg.Store.Disabled {
		return ferrors.ValidationError("run history is disabled").
			WithContext("hint", "set store.disabled to false").Build()
	}
	if _, err := os.Stat(cfg.Store.Path); err != nil {
		return ferrors.NewError(ferrors.CategoryNotFound, "no run history recorded yet").
			WithContext("path", cfg.Store.Path).Build()
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	runs, err := st.ListRuns(ctx, subject, limit)
	if err != nil {
		return err
	}
	out := g.out()
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "no runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tSUBJECT\tSTARTED\tDURATION\tOUTCOME")
	for _, run := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", run.RunID, run.Subject,
			run.Start.Local().Format(time.DateTime), runDuration(run), runOutcome(run))
		if !tasks {
			continue
		}
		outcomes, err := st.TaskOutcomes(ctx, run.RunID)
		if err != nil {
			return err
		}
		writeTaskOutcomes(tw, outcomes)
	}
	return tw.Flush()
}

func writeTaskOutcomes(w io.Writer, outcomes []store.TaskRecord) {
	for _, o := range outcomes {
		detail := o.Reason
		if len(o.Missing) > 0 {
			detail = strings.TrimSpace(detail + " " + strings.Join(o.Missing, ", "))
		}
		if o.Error != "" {
			detail = o.Error
		}
		_, _ = fmt.Fprintf(w, "  %s\t%s\t\t%s\t%s\n", o.Task, o.State, o.Duration.Truncate(time.Millisecond), detail)
	}
}

func runDuration(run store.RunRecord) string {
	if run.End.IsZero() {
		return "-"
	}
	return run.End.Sub(run.Start).Truncate(time.Millisecond).String()
}

func runOutcome(run store.RunRecord) string {
	outcome := run.Outcome
	if outcome == "" {
		outcome = "running"
	}
	if run.DryRun {
		outcome += " (dry run)"
	}
	return outcome
}
