package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/logfields"
	"git.home.luguber.info/inful/neuroflow/internal/retry"
)

// Runner executes invocations synchronously.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// ExecRunner runs invocations as OS processes.
type ExecRunner struct {
	DryRun    bool
	TailLines int
	Retry     retry.Policy // applied to process start failures only
	Logger    *slog.Logger
}

// NewExecRunner creates a runner with the given dry-run mode and tail size.
func NewExecRunner(dryRun bool, tailLines int, policy retry.Policy, logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{DryRun: dryRun, TailLines: tailLines, Retry: policy, Logger: logger}
}

// Run executes inv and blocks until it exits.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	logger := r.logger().With(logfields.Command(inv.String()))
	if inv.Program == "" {
		return Result{}, ferrors.ValidationError("invocation has no program").Build()
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if r.DryRun {
		logger.Info("Dry run, command not executed", logfields.Dir(inv.Dir))
		return Result{DryRun: true}, nil
	}
	if _, err := exec.LookPath(inv.Program); err != nil {
		return Result{}, ferrors.ToolError(fmt.Sprintf("%s is not installed", inv.Program)).
			WithCause(fmt.Errorf("%w: %w", ErrToolNotFound, err)).
			WithContext("command", inv.String()).
			UserAction().Build()
	}

	transcript, closeTranscript, err := openTranscript(inv)
	if err != nil {
		return Result{}, err
	}
	defer closeTranscript()

	stdout := newTailBuffer(r.TailLines)
	stderr := newTailBuffer(r.TailLines)
	var stdoutEcho, stderrEcho []io.Writer
	var echoes []*lineWriter
	if inv.Echo.stdout() {
		w := newEchoWriter(logger, "stdout")
		stdoutEcho, echoes = append(stdoutEcho, w), append(echoes, w)
	}
	if inv.Echo.stderr() {
		w := newEchoWriter(logger, "stderr")
		stderrEcho, echoes = append(stderrEcho, w), append(echoes, w)
	}
	start := time.Now()

	var cmd *exec.Cmd
	startErr := r.Retry.Do(ctx, func() error {
		cmd = exec.CommandContext(ctx, inv.Program, inv.Args...) // #nosec G204 -- tools and arguments come from the task definition
		cmd.Dir = inv.Dir
		if len(inv.Env) > 0 {
			cmd.Env = append(os.Environ(), inv.environ()...)
		}
		cmd.Stdout = io.MultiWriter(append([]io.Writer{stdout, transcript}, stdoutEcho...)...)
		cmd.Stderr = io.MultiWriter(append([]io.Writer{stderr, transcript}, stderrEcho...)...)
		if err := cmd.Start(); err != nil {
			if isTransientStart(err) {
				return err
			}
			return retry.Permanent(err)
		}
		return nil
	}, func(err error, attempt int, wait time.Duration) {
		logger.Warn("Command failed to start, retrying", logfields.Error(err),
			slog.Int("attempt", attempt), logfields.Duration(wait))
	})
	if startErr != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, ferrors.WrapError(startErr, ferrors.CategoryTool, "failed to start command").
			WithContext("command", inv.String()).Build()
	}

	logger.Debug("Command started", logfields.Dir(inv.Dir), slog.String("log_kind", inv.LogKind.String()))
	waitErr := cmd.Wait()
	for _, w := range echoes {
		w.Flush()
	}
	res := Result{
		Duration:   time.Since(start),
		StdoutTail: stdout.Lines(),
		StderrTail: stderr.Lines(),
	}
	if inv.LogKind != LogQuiet {
		if len(res.StdoutTail) > 0 {
			logger.Debug("Command stdout", slog.String("tail", strings.Join(res.StdoutTail, "\n")))
		}
		if len(res.StderrTail) > 0 {
			logger.Debug("Command stderr", slog.String("tail", strings.Join(res.StderrTail, "\n")))
		}
	}

	if waitErr != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			logger.Error("Command failed", logfields.ExitCode(res.ExitCode), logfields.Duration(res.Duration))
			return res, toolFailure(inv, res.ExitCode, res.StderrTail)
		}
		return res, ferrors.WrapError(waitErr, ferrors.CategoryTool, "command did not complete").
			WithContext("command", inv.String()).Build()
	}
	logger.Debug("Command completed", logfields.Duration(res.Duration))
	return res, nil
}

func (r *ExecRunner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// isTransientStart reports start errors worth retrying (busy binaries, exhausted process slots).
func isTransientStart(err error) bool {
	return errors.Is(err, syscall.ETXTBSY) || errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ENOMEM)
}

// openTranscript opens the invocation's log file in append mode with a header line.
func openTranscript(inv Invocation) (io.Writer, func(), error) {
	if inv.LogKind != LogTranscript || inv.LogFile == "" {
		return io.Discard, func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(inv.LogFile), 0o750); err != nil {
		return nil, nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create log directory").
			WithContext("path", inv.LogFile).Build()
	}
	f, err := os.OpenFile(inv.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to open command transcript").
			WithContext("path", inv.LogFile).Build()
	}
	_, _ = fmt.Fprintf(f, "\n# %s\n$ %s\n", time.Now().Format(time.RFC3339), inv.String())
	return f, func() { _ = f.Close() }, nil
}
