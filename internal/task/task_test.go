package task

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
	"git.home.luguber.info/inful/neuroflow/internal/command"
	"git.home.luguber.info/inful/neuroflow/internal/config"
)

type stubTask struct {
	Base
}

func (stubTask) MeetRequirement(*Env) *artifact.Set    { return artifact.NewSet() }
func (stubTask) IsDirty(*Env) *artifact.Set            { return artifact.NewSet() }
func (stubTask) Implement(context.Context, *Env) error { return nil }

func newStub(name Name, order int, keep bool, deps ...Dependency) stubTask {
	return stubTask{NewBase(Metadata{Name: name, Order: order, Description: "stub", Dependencies: deps, KeepWorkingDir: keep})}
}

func TestBaseMetadata(t *testing.T) {
	st := newStub("registration", 3, false, Requires("upsampling", "parcellation")...)
	assert.Equal(t, Name("registration"), st.Name())
	assert.Equal(t, 3, st.Order())
	assert.Equal(t, "stub", st.Description())
	assert.Equal(t, []Dependency{{Name: "upsampling"}, {Name: "parcellation"}}, st.Dependencies())
	assert.Equal(t, "03-registration", WorkingDirName(st))
	assert.True(t, ShouldCleanup(st))
	assert.False(t, ShouldCleanup(newStub("tractquerier", 5, true)))
	assert.Equal(t, Dependency{Name: "atlasregistration", Optional: true}, OptionalDep("atlasregistration"))
}

func TestDirty(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "brodmann.nii")
	require.NoError(t, os.WriteFile(present, nil, 0o600))

	assert.True(t, Dirty(artifact.NewSet()), "empty expectation is dirty")
	assert.True(t, Dirty(nil))
	assert.False(t, Dirty(artifact.NewSet().Add(present, "brodmann")))
	assert.True(t, Dirty(artifact.NewSet().Add(present, "brodmann").Add("", "aparc")))
}

func newTestEnv(t *testing.T, runner command.Runner, deps map[Name]Handle) *Env {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.Threads = 3
	cfg.Tasks["registration"] = map[string]any{"cleanup": "True"}
	return NewEnv(EnvOptions{
		Subject:    "s01",
		SubjectDir: t.TempDir(),
		Task:       newStub("registration", 3, false),
		Config:     cfg,
		Runner:     runner,
		Deps:       deps,
	})
}

func TestEnvDependencyHandles(t *testing.T) {
	upDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(upDir, "b0_upsample.nii"), nil, 0o600))
	env := newTestEnv(t, nil, map[Name]Handle{
		"upsampling":        {Name: "upsampling", Dir: upDir, Resolved: true},
		"atlasregistration": {Name: "atlasregistration"},
	})

	h, ok := env.Dep("upsampling")
	require.True(t, ok)
	assert.Equal(t, upDir, h.Dir)
	_, ok = env.Dep("atlasregistration")
	assert.False(t, ok)
	assert.Empty(t, env.DependDir("unknown"))

	assert.Equal(t, filepath.Join(upDir, "b0_upsample.nii"), env.FindIn("upsampling", "b0", "upsample"))
	assert.Empty(t, env.FindIn("atlasregistration", "wmparc", "resample"))
}

func TestEnvSectionsAndPaths(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	assert.Equal(t, 3, env.Threads)
	assert.Equal(t, Name("registration"), env.TaskName())
	assert.True(t, env.Section().BoolOr("cleanup", false))
	assert.Equal(t, "tractography", env.SectionOf("tractography").Name())
	assert.Equal(t, filepath.Join(env.SubjectDir, "03-registration"), env.WorkingDir)
	assert.Equal(t, filepath.Join(env.WorkingDir, "registration.log"), env.LogFile())
	assert.Equal(t, filepath.Join(env.WorkingDir, "norm_register.nii"), env.Compose("/elsewhere/norm.nii", "register", ""))
}

func TestEnvLaunchDefaultsAndCounts(t *testing.T) {
	runner := command.NewFakeRunner()
	env := newTestEnv(t, runner, nil)

	require.NoError(t, env.Launch(context.Background(), command.New("mrcalc", "a", "b")))
	require.NoError(t, env.Launch(context.Background(), command.New("mrcalc").In("/tmp")))
	assert.Equal(t, 2, env.Launches())

	calls := runner.Invocations()
	assert.Equal(t, env.WorkingDir, calls[0].Dir)
	assert.Equal(t, env.LogFile(), calls[0].LogFile)
	assert.Equal(t, "/tmp", calls[1].Dir)
}

func TestEnvLaunchWithoutRunner(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	require.Error(t, env.Launch(context.Background(), command.New("true")))
}

func TestCleanWorkingDirOnlyTouchesOwnDirectory(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	sibling := filepath.Join(env.SubjectDir, "02-parcellation")
	require.NoError(t, os.MkdirAll(sibling, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(sibling, "brodmann.nii"), nil, 0o600))

	require.NoError(t, env.CleanWorkingDir())
	assert.DirExists(t, env.WorkingDir)

	require.NoError(t, os.MkdirAll(filepath.Join(env.WorkingDir, "nested"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(env.WorkingDir, "partial.nii"), nil, 0o600))
	require.NoError(t, env.CleanWorkingDir())

	entries, err := os.ReadDir(env.WorkingDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.FileExists(t, filepath.Join(sibling, "brodmann.nii"))
}

func TestSymlinkReplacesExisting(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	src := filepath.Join(t.TempDir(), "dwi.nii.gz")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o600))

	link, err := env.Symlink(src)
	require.NoError(t, err)
	_, err = env.SymlinkAs(src, "dwi.nii.gz")
	require.NoError(t, err)

	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, src, target)
	assert.Equal(t, link, env.Own("dwi"))
}
