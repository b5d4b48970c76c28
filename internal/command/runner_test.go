package command

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/retry"
)

func newTestRunner() *ExecRunner {
	return NewExecRunner(false, 5, retry.DefaultPolicy(), nil)
}

func TestExecRunnerWritesTranscript(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "registration.log")
	inv := New("sh", "-c", "echo hello; echo oops >&2").In(dir)
	inv.LogFile = logFile

	res, err := newTestRunner().Run(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, []string{"hello"}, res.StdoutTail)
	assert.Equal(t, []string{"oops"}, res.StderrTail)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "$ sh -c 'echo hello; echo oops >&2'")
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "oops")
}

func TestExecRunnerNonZeroExitIsToolFailure(t *testing.T) {
	inv := New("sh", "-c", "for i in 1 2 3 4 5 6 7; do echo line$i >&2; done; exit 3").Logging(LogQuiet)

	res, err := newTestRunner().Run(context.Background(), inv)
	require.Error(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.True(t, errors.Is(err, ErrToolFailed))
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryTool))

	tf, ok := AsToolFailure(err)
	require.True(t, ok)
	assert.Equal(t, 3, tf.ExitCode)
	assert.Equal(t, []string{"line3", "line4", "line5", "line6", "line7"}, tf.StderrTail)
	assert.True(t, strings.HasPrefix(tf.Command, "sh -c"))
}

func TestExecRunnerPassesExplicitEnvironment(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "env.txt")
	inv := New("sh", "-c", "printf %s \"$SUBJECTS_DIR\" > "+out).WithEnv("SUBJECTS_DIR", "/data/fs").Logging(LogTail)

	_, err := newTestRunner().Run(context.Background(), inv)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "/data/fs", string(data))
}

func TestExecRunnerDryRunDoesNotExecute(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	r := NewExecRunner(true, 5, retry.DefaultPolicy(), nil)

	res, err := r.Run(context.Background(), New("touch", marker))
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.NoFileExists(t, marker)
}

func TestExecRunnerMissingTool(t *testing.T) {
	_, err := newTestRunner().Run(context.Background(), New("neuroflow-definitely-not-installed"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolNotFound))
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.RetryUserAction, ce.RetryStrategy())
}

func TestExecRunnerCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestRunner().Run(ctx, New("sleep", "5"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestExecRunnerRejectsEmptyProgram(t *testing.T) {
	_, err := newTestRunner().Run(context.Background(), Invocation{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func debugRunner(buf *bytes.Buffer) *ExecRunner {
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewExecRunner(false, 5, retry.DefaultPolicy(), logger)
}

func TestExecRunnerEchoesSelectedStream(t *testing.T) {
	var buf bytes.Buffer
	inv := New("sh", "-c", "echo progress; printf 'warn without newline' >&2").
		In(t.TempDir()).Logging(LogQuiet).Echoing(EchoStderr)

	res, err := debugRunner(&buf).Run(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, []string{"progress"}, res.StdoutTail)

	logs := buf.String()
	assert.Contains(t, logs, `level=INFO msg="warn without newline"`)
	assert.Contains(t, logs, "stream=stderr")
	assert.NotContains(t, logs, "stream=stdout")
}

func TestExecRunnerQuietSkipsTailEcho(t *testing.T) {
	script := "echo out; echo err >&2"

	var quiet bytes.Buffer
	_, err := debugRunner(&quiet).Run(context.Background(), New("sh", "-c", script).In(t.TempDir()).Logging(LogQuiet))
	require.NoError(t, err)
	assert.NotContains(t, quiet.String(), "Command stdout")
	assert.NotContains(t, quiet.String(), "Command stderr")

	var tail bytes.Buffer
	_, err = debugRunner(&tail).Run(context.Background(), New("sh", "-c", script).In(t.TempDir()).Logging(LogTail))
	require.NoError(t, err)
	assert.Contains(t, tail.String(), "Command stdout")
	assert.Contains(t, tail.String(), "Command stderr")
}
