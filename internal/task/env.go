package task

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
	"git.home.luguber.info/inful/neuroflow/internal/command"
	"git.home.luguber.info/inful/neuroflow/internal/config"
	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/logfields"
)

// Handle is a resolved reference to a dependency's working directory.
type Handle struct {
	Name     Name
	Dir      string
	Resolved bool
}

// EnvOptions carries everything needed to build an Env.
type EnvOptions struct {
	Subject      string
	SubjectDir   string
	Task         Task
	Config       *config.Config
	Runner       command.Runner
	Resolver     *artifact.Resolver
	Logger       *slog.Logger
	ResourcesDir string
	Deps         map[Name]Handle
}

// Env is the per-task, per-subject view of the run. Stages reach artifacts,
// configuration and tools only through it.
type Env struct {
	Subject      string
	SubjectDir   string
	WorkingDir   string
	ResourcesDir string
	Threads      int
	DryRun       bool
	Config       *config.Config
	Logger       *slog.Logger

	name     Name
	section  config.Section
	runner   command.Runner
	resolver *artifact.Resolver
	deps     map[Name]Handle
	launches atomic.Int64
}

// NewEnv builds the environment of opts.Task.
func NewEnv(opts EnvOptions) *Env {
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
	name := opts.Task.Name()
	return &Env{
		Subject:      opts.Subject,
		SubjectDir:   opts.SubjectDir,
		WorkingDir:   filepath.Join(opts.SubjectDir, WorkingDirName(opts.Task)),
		ResourcesDir: opts.ResourcesDir,
		Threads:      cfg.Pipeline.Threads,
		DryRun:       cfg.Pipeline.DryRun,
		Config:       cfg,
		Logger:       logger.With(logfields.Task(string(name)), logfields.Subject(opts.Subject)),
		name:         name,
		section:      cfg.Section(string(name)),
		runner:       opts.Runner,
		resolver:     resolver,
		deps:         opts.Deps,
	}
}

// TaskName returns the name of the task owning the environment.
func (e *Env) TaskName() Name { return e.name }

// Section returns the task's own configuration section.
func (e *Env) Section() config.Section { return e.section }

// SectionOf returns another task's configuration section.
func (e *Env) SectionOf(name Name) config.Section { return e.Config.Section(string(name)) }

// Dep returns the handle of a declared dependency.
func (e *Env) Dep(name Name) (Handle, bool) {
	h, ok := e.deps[name]
	if !ok || !h.Resolved {
		return Handle{Name: name}, false
	}
	return h, true
}

// DependDir returns a dependency's working directory, or "" when unresolved.
func (e *Env) DependDir(name Name) string {
	h, _ := e.Dep(name)
	return h.Dir
}

// Find resolves an artifact in dir. It returns "" when absent.
func (e *Env) Find(dir string, q artifact.Query) string {
	path, _ := e.resolver.Find(dir, q)
	return path
}

// FindAll resolves every matching artifact in dir.
func (e *Env) FindAll(dir string, q artifact.Query) []string {
	return e.resolver.FindAll(dir, q)
}

// FindIn resolves an image in a dependency's working directory.
func (e *Env) FindIn(dep Name, base string, modifiers ...string) string {
	return e.Find(e.DependDir(dep), artifact.Q(base, modifiers...))
}

// Own resolves an image in the task's own working directory.
func (e *Env) Own(base string, modifiers ...string) string {
	return e.Find(e.WorkingDir, artifact.Q(base, modifiers...))
}

// Compose derives an output path in the task's working directory.
func (e *Env) Compose(source, modifier, ext string) string {
	return artifact.Compose(source, modifier, ext, e.WorkingDir)
}

// Launch runs inv through the task's runner. Unset fields default to the
// working directory and the task transcript `<working dir>/<task>.log`.
func (e *Env) Launch(ctx context.Context, inv command.Invocation) error {
	if e.runner == nil {
		return ferrors.InternalError("task environment has no command runner").Build()
	}
	if inv.Dir == "" {
		inv.Dir = e.WorkingDir
	}
	if inv.LogFile == "" {
		inv.LogFile = e.LogFile()
	}
	e.launches.Add(1)
	e.Logger.Info("Launching command", logfields.Command(inv.String()))
	_, err := e.runner.Run(ctx, inv)
	return err
}

// Launches returns the number of commands issued through Launch.
func (e *Env) Launches() int { return int(e.launches.Load()) }

// LogFile returns the transcript path of the task.
func (e *Env) LogFile() string {
	return filepath.Join(e.WorkingDir, string(e.name)+".log")
}

// EnsureWorkingDir creates the working directory.
func (e *Env) EnsureWorkingDir() error {
	if err := os.MkdirAll(e.WorkingDir, 0o750); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create working directory").
			WithContext("dir", e.WorkingDir).Build()
	}
	return nil
}

// CleanWorkingDir removes everything inside the task's own working directory.
// Other tasks' directories are never touched.
func (e *Env) CleanWorkingDir() error {
	entries, err := os.ReadDir(e.WorkingDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return e.EnsureWorkingDir()
		}
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to list working directory").
			WithContext("dir", e.WorkingDir).Build()
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(e.WorkingDir, entry.Name())); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to clean working directory").
				WithContext("dir", e.WorkingDir).
				WithContext("path", entry.Name()).Build()
		}
	}
	return nil
}

// Symlink links source into the working directory under its own name and
// returns the link path. An existing link of the same name is replaced.
func (e *Env) Symlink(source string) (string, error) {
	return e.SymlinkAs(source, filepath.Base(source))
}

// SymlinkAs links source into the working directory as name.
func (e *Env) SymlinkAs(source, name string) (string, error) {
	if err := e.EnsureWorkingDir(); err != nil {
		return "", err
	}
	target := filepath.Join(e.WorkingDir, name)
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to resolve link source").
			WithContext("path", source).Build()
	}
	if _, err := os.Lstat(target); err == nil {
		if err := os.Remove(target); err != nil {
			return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to replace link").
				WithContext("path", target).Build()
		}
	}
	if err := os.Symlink(abs, target); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to link artifact").
			WithContext("path", target).Build()
	}
	e.Logger.Debug("Linked artifact", logfields.Artifact(abs), logfields.Path(target))
	return target, nil
}
