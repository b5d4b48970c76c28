package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
	"git.home.luguber.info/inful/neuroflow/internal/command"
	"git.home.luguber.info/inful/neuroflow/internal/config"
	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/logfields"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

// Options configures a Scheduler.
type Options struct {
	Config       *config.Config
	Runner       command.Runner
	Resolver     *artifact.Resolver
	Logger       *slog.Logger
	Observer     Observer
	ResourcesDir string
}

// Scheduler runs a validated graph for one subject at a time.
type Scheduler struct {
	graph    *Graph
	cfg      *config.Config
	runner   command.Runner
	resolver *artifact.Resolver
	logger   *slog.Logger
	observer Observer
	resDir   string
}

// NewScheduler creates a scheduler for g.
func NewScheduler(g *Graph, opts Options) *Scheduler {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = artifact.NewResolver(logger)
	}
	observer := opts.Observer
	if observer == nil {
		observer = NoopObserver{}
	}
	return &Scheduler{
		graph:    g,
		cfg:      cfg,
		runner:   opts.Runner,
		resolver: resolver,
		logger:   logger,
		observer: observer,
		resDir:   opts.ResourcesDir,
	}
}

// run holds the mutable state of one subject run.
type run struct {
	report     *Report
	subject    string
	subjectDir string
	logger     *slog.Logger
	states     *stateTable
	outcomes   []Outcome
	failed     atomic.Bool
	mu         sync.Mutex
}

// SubjectDir returns the directory holding a subject's task directories.
func (s *Scheduler) SubjectDir(subject string) string {
	return filepath.Join(s.cfg.Pipeline.SubjectsDir, subject)
}

// Run evaluates every task for subject. Task failures are reported in the
// returned Report, not as an error; the error is reserved for problems that
// prevent the run from starting.
func (s *Scheduler) Run(ctx context.Context, subject string) (*Report, error) {
	subjectDir := s.SubjectDir(subject)
	info, err := os.Stat(subjectDir)
	if err != nil || !info.IsDir() {
		return nil, ferrors.NewError(ferrors.CategoryNotFound, "subject directory not found").
			ForSubject(subject).
			WithContext("dir", subjectDir).Build()
	}

	runID := uuid.NewString()
	r := &run{
		report:     newReport(runID, subject, s.cfg.Pipeline.DryRun),
		subject:    subject,
		subjectDir: subjectDir,
		logger:     s.logger.With(logfields.RunID(runID), logfields.Subject(subject)),
		states:     newStateTable(s.graph.TopologicalOrder()),
		outcomes:   make([]Outcome, s.graph.Len()),
	}
	r.logger.Info("Pipeline run started",
		slog.Int("tasks", s.graph.Len()),
		slog.Int("concurrency", s.cfg.Pipeline.Concurrency),
		slog.Bool("dry_run", s.cfg.Pipeline.DryRun))
	s.observer.OnRunStart(r.report)

	if s.cfg.Pipeline.Concurrency <= 1 {
		s.runSerial(ctx, r)
	} else {
		s.runParallel(ctx, r)
	}

	for _, idx := range s.graph.order {
		r.report.Outcomes = append(r.report.Outcomes, r.outcomes[idx])
	}
	r.report.finish(ctx.Err() != nil)
	r.logger.Info("Pipeline run finished", slog.String("summary", r.report.Summary()))
	s.observer.OnRunComplete(r.report)
	return r.report, nil
}

func (s *Scheduler) runSerial(ctx context.Context, r *run) {
	for _, idx := range s.graph.order {
		s.record(r, idx, s.evaluate(ctx, r, idx))
	}
}

// runParallel starts one goroutine per task. Each waits for all of its
// dependencies to reach a terminal state before competing for one of the
// Concurrency slots, so slots are never held while waiting.
func (s *Scheduler) runParallel(ctx context.Context, r *run) {
	n := s.graph.Len()
	done := make([]chan struct{}, n)
	for i := range done {
		done[i] = make(chan struct{})
	}
	sem := semaphore.NewWeighted(int64(s.cfg.Pipeline.Concurrency))
	var g errgroup.Group
	for _, idx := range s.graph.order {
		g.Go(func() error {
			defer close(done[idx])
			for _, dep := range s.graph.deps[idx] {
				<-done[dep]
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				s.record(r, idx, s.cancelled(r, idx, "run cancelled before task started"))
				return nil
			}
			out := s.evaluate(ctx, r, idx)
			sem.Release(1)
			s.record(r, idx, out)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) cancelled(r *run, idx int, reason string) Outcome {
	t := s.graph.tasks[idx]
	return Outcome{
		Name:       t.Name(),
		State:      StateSkippedCancelled,
		Reason:     reason,
		WorkingDir: filepath.Join(r.subjectDir, task.WorkingDirName(t)),
	}
}

func (s *Scheduler) env(r *run, idx int) *task.Env {
	return task.NewEnv(task.EnvOptions{
		Subject:      r.subject,
		SubjectDir:   r.subjectDir,
		Task:         s.graph.tasks[idx],
		Config:       s.cfg,
		Runner:       s.runner,
		Resolver:     s.resolver,
		Logger:       r.logger,
		ResourcesDir: s.resDir,
		Deps:         s.graph.handles(idx, r.subjectDir),
	})
}

// filtered reports whether pipeline.only / pipeline.skip exclude the task.
func (s *Scheduler) filtered(name task.Name) (bool, string) {
	p := s.cfg.Pipeline
	if len(p.Only) > 0 && !slices.Contains(p.Only, string(name)) {
		return true, "not selected by pipeline.only"
	}
	if slices.Contains(p.Skip, string(name)) {
		return true, "excluded by pipeline.skip"
	}
	return false, ""
}

// evaluate walks one task through its state machine and returns its outcome.
func (s *Scheduler) evaluate(ctx context.Context, r *run, idx int) Outcome {
	t := s.graph.tasks[idx]
	name := t.Name()
	env := s.env(r, idx)
	start := time.Now()
	s.observer.OnTaskStart(r.report, name)

	out := Outcome{Name: name, WorkingDir: env.WorkingDir}
	finish := func(state State, reason string) Outcome {
		out.State = state
		out.Reason = reason
		out.Duration = time.Since(start)
		out.Commands = env.Launches()
		return out
	}

	if ctx.Err() != nil {
		return finish(StateSkippedCancelled, "run cancelled")
	}
	if s.cfg.Pipeline.FailFast && r.failed.Load() {
		return finish(StateSkippedCancelled, "aborted after an earlier failure")
	}
	if excluded, reason := s.filtered(name); excluded {
		return finish(StateSkipped, reason)
	}
	// A panicking predicate fails the task; the state table only allows
	// FAILED from RUNNING.
	failBeforeRun := func(err error) Outcome {
		if terr := r.states.transition(name, StatePending, StateRunning); terr != nil {
			r.logger.Error("Invalid task state transition", logfields.Task(string(name)), logfields.Error(terr))
		}
		out.Err = err
		return finish(StateFailed, failureReason(err))
	}

	var ignored bool
	if ig, ok := t.(task.Ignorer); ok {
		if err := guarded(name, "IsIgnore", func() error { ignored = ig.IsIgnore(env); return nil }); err != nil {
			return failBeforeRun(err)
		}
	}
	if ignored {
		return finish(StateSkipped, "ignored by configuration")
	}
	for _, dep := range s.graph.deps[idx] {
		if s.graph.mandatory(idx, dep) && r.states.get(s.graph.tasks[dep].Name()) == StateFailed {
			out.Missing = []string{string(s.graph.tasks[dep].Name())}
			return finish(StateSkippedMissingDeps, fmt.Sprintf("upstream task %s failed", s.graph.tasks[dep].Name()))
		}
	}
	var missing []string
	if err := guarded(name, "MeetRequirement", func() error { missing = t.MeetRequirement(env).Missing(); return nil }); err != nil {
		return failBeforeRun(err)
	}
	if len(missing) > 0 {
		out.Missing = missing
		return finish(StateSkippedMissingDeps, "missing requirements: "+strings.Join(missing, ", "))
	}
	var outputs *artifact.Set
	if err := guarded(name, "IsDirty", func() error { outputs = t.IsDirty(env); return nil }); err != nil {
		return failBeforeRun(err)
	}
	if !task.Dirty(outputs) {
		return finish(StateSatisfied, "outputs already present")
	}

	if err := r.states.transition(name, StatePending, StateRunning); err != nil {
		out.Err = ferrors.WrapError(err, ferrors.CategoryInternal, "state transition failed").Build()
		return finish(StateFailed, "internal state error")
	}
	env.Logger.Info("Task running", logfields.State(string(StateRunning)), logfields.Dir(env.WorkingDir))

	if err := s.prepareWorkingDir(t, env); err != nil {
		out.Err = err
		return finish(StateFailed, "could not prepare working directory")
	}
	if err := guarded(name, "Implement", func() error { return t.Implement(ctx, env) }); err != nil {
		out.Err = err
		if ctx.Err() != nil {
			return finish(StateSkippedCancelled, "cancelled during implement")
		}
		return finish(StateFailed, failureReason(err))
	}
	if !env.DryRun {
		if err := guarded(name, "IsDirty", func() error { outputs = t.IsDirty(env); return nil }); err != nil {
			out.Err = err
			return finish(StateFailed, failureReason(err))
		}
		if task.Dirty(outputs) {
			out.Missing = outputs.Missing()
			out.Err = ferrors.PipelineError("task outputs incomplete after implement").
				WithCause(ErrIncompleteOutputs).
				ForTask(string(name)).
				WithContext("missing", strings.Join(out.Missing, ", ")).Build()
			return finish(StateFailed, "outputs missing after implement")
		}
	}
	if qa, ok := t.(task.QASupplier); ok && !s.cfg.QA.Disabled && !env.DryRun {
		var set *artifact.Set
		err := guarded(name, "QASupplier", func() (err error) {
			set, err = qa.QASupplier(ctx, env)
			return err
		})
		if err != nil {
			out.QAErr = err
			env.Logger.Warn("QA supplier failed", logfields.Error(err))
		}
		out.QA = set
	}
	return finish(StateDone, "")
}

func (s *Scheduler) prepareWorkingDir(t task.Task, env *task.Env) error {
	if env.DryRun || !task.ShouldCleanup(t) {
		return env.EnsureWorkingDir()
	}
	return env.CleanWorkingDir()
}

// guarded runs one task callback and turns a panic into an internal error
// naming the callback, so a broken stage fails alone instead of taking the
// run down.
func guarded(name task.Name, callback string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = ferrors.InternalError(fmt.Sprintf("task panicked in %s: %v", callback, rec)).
				ForTask(string(name)).
				WithContext("callback", callback).Build()
		}
	}()
	return fn()
}

func failureReason(err error) string {
	if tf, ok := command.AsToolFailure(err); ok {
		return fmt.Sprintf("command failed with exit code %d: %s", tf.ExitCode, tf.Command)
	}
	if errors.Is(err, command.ErrToolNotFound) {
		return "required tool not installed"
	}
	return err.Error()
}

// record stores the outcome, advances the state table and notifies observers.
func (s *Scheduler) record(r *run, idx int, out Outcome) {
	name := out.Name
	from := r.states.get(name)
	if from != out.State {
		if err := r.states.transition(name, from, out.State); err != nil {
			r.logger.Error("Invalid task state transition", logfields.Task(string(name)), logfields.Error(err))
		}
	}
	if out.State == StateFailed {
		r.failed.Store(true)
	}
	r.mu.Lock()
	r.outcomes[idx] = out
	r.mu.Unlock()

	attrs := []any{logfields.Task(string(name)), logfields.State(string(out.State)), logfields.Duration(out.Duration)}
	if out.Reason != "" {
		attrs = append(attrs, logfields.Reason(out.Reason))
	}
	switch out.State {
	case StateFailed:
		if out.Err != nil {
			attrs = append(attrs, logfields.Error(out.Err))
		}
		r.logger.Error("Task finished", attrs...)
	case StateSkippedMissingDeps, StateSkippedCancelled:
		r.logger.Warn("Task finished", attrs...)
	default:
		r.logger.Info("Task finished", attrs...)
	}
	s.observer.OnTaskComplete(r.report, out)
}
