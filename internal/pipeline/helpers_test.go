package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
	"git.home.luguber.info/inful/neuroflow/internal/command"
	"git.home.luguber.info/inful/neuroflow/internal/config"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

type requirement struct {
	dep  task.Name
	base string
}

type fakeTask struct {
	task.Base
	requires     []requirement
	outputs      []string
	program      string
	ignore       bool
	skipOutputs  bool
	implementErr func(ctx context.Context, env *task.Env) error
	calls        atomic.Int32
}

func newFake(name task.Name, order int, deps ...task.Dependency) *fakeTask {
	return &fakeTask{
		Base:    task.NewBase(task.Metadata{Name: name, Order: order, Dependencies: deps}),
		program: "tool-" + string(name),
	}
}

func (f *fakeTask) needs(dep task.Name, bases ...string) *fakeTask {
	for _, b := range bases {
		f.requires = append(f.requires, requirement{dep: dep, base: b})
	}
	return f
}

func (f *fakeTask) produces(bases ...string) *fakeTask {
	f.outputs = append(f.outputs, bases...)
	return f
}

func (f *fakeTask) MeetRequirement(env *task.Env) *artifact.Set {
	set := artifact.NewSet()
	for _, r := range f.requires {
		set.Add(env.FindIn(r.dep, r.base), string(r.dep)+":"+r.base)
	}
	return set
}

func (f *fakeTask) IsDirty(env *task.Env) *artifact.Set {
	set := artifact.NewSet()
	for _, b := range f.outputs {
		set.Add(env.Own(b), b)
	}
	return set
}

func (f *fakeTask) IsIgnore(*task.Env) bool { return f.ignore }

func (f *fakeTask) Implement(ctx context.Context, env *task.Env) error {
	f.calls.Add(1)
	if f.implementErr != nil {
		if err := f.implementErr(ctx, env); err != nil {
			return err
		}
	}
	inv := command.New(f.program)
	if !f.skipOutputs {
		for _, b := range f.outputs {
			inv = inv.Producing(filepath.Join(env.WorkingDir, b+".nii"))
		}
	}
	return env.Launch(ctx, inv)
}

type qaTask struct {
	*fakeTask
	err error
}

func (q qaTask) QASupplier(_ context.Context, env *task.Env) (*artifact.Set, error) {
	return artifact.NewSet().Add(env.Own(q.outputs[0]), "overview").SetInformation("checked"), q.err
}

type recordingObserver struct {
	mu        sync.Mutex
	started   []task.Name
	completed []Outcome
	runs      int
	finished  *Report
}

func (o *recordingObserver) OnRunStart(*Report) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs++
}

func (o *recordingObserver) OnTaskStart(_ *Report, name task.Name) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, name)
}

func (o *recordingObserver) OnTaskComplete(_ *Report, out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, out)
}

func (o *recordingObserver) OnRunComplete(r *Report) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = r
}

type fixture struct {
	cfg    *config.Config
	runner *command.FakeRunner
	subj   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.SubjectsDir = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Pipeline.SubjectsDir, "s01"), 0o750))
	return &fixture{cfg: cfg, runner: command.NewFakeRunner(), subj: "s01"}
}

func (fx *fixture) dir(t task.Task) string {
	return filepath.Join(fx.cfg.Pipeline.SubjectsDir, fx.subj, task.WorkingDirName(t))
}

func (fx *fixture) seed(t *testing.T, owner task.Task, names ...string) {
	t.Helper()
	dir := fx.dir(owner)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o600))
	}
}

func (fx *fixture) scheduler(t *testing.T, obs Observer, tasks ...task.Task) *Scheduler {
	t.Helper()
	g, err := NewGraph(tasks...)
	require.NoError(t, err)
	return NewScheduler(g, Options{Config: fx.cfg, Runner: fx.runner, Observer: obs})
}

func (fx *fixture) run(t *testing.T, tasks ...task.Task) *Report {
	t.Helper()
	report, err := fx.scheduler(t, nil, tasks...).Run(context.Background(), fx.subj)
	require.NoError(t, err)
	return report
}

// brokenTask panics in the named callback and otherwise behaves like its fakeTask.
type brokenTask struct {
	*fakeTask
	in string
}

func (b brokenTask) MeetRequirement(env *task.Env) *artifact.Set {
	if b.in == "MeetRequirement" {
		panic("requirement lookup exploded")
	}
	return b.fakeTask.MeetRequirement(env)
}

func (b brokenTask) IsDirty(env *task.Env) *artifact.Set {
	if b.in == "IsDirty" {
		panic("output lookup exploded")
	}
	return b.fakeTask.IsDirty(env)
}

func (b brokenTask) QASupplier(context.Context, *task.Env) (*artifact.Set, error) {
	if b.in == "QASupplier" {
		panic("renderer exploded")
	}
	return artifact.NewSet(), nil
}
