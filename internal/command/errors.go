package command

import (
	"errors"
	"fmt"
	"strings"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
)

var (
	// ErrToolNotFound indicates the program is not on PATH.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolFailed is matched by every *ToolFailure.
	ErrToolFailed = errors.New("tool exited with non-zero status")
)

// ToolFailure records which command failed and how.
type ToolFailure struct {
	Command    string
	ExitCode   int
	StderrTail []string
}

func (f *ToolFailure) Error() string {
	msg := fmt.Sprintf("%s: exit code %d", f.Command, f.ExitCode)
	if len(f.StderrTail) > 0 {
		msg += ": " + strings.Join(f.StderrTail, "\n")
	}
	return msg
}

// Is lets errors.Is(err, ErrToolFailed) match.
func (f *ToolFailure) Is(target error) bool { return target == ErrToolFailed }

// AsToolFailure extracts the failure from a wrapped error chain.
func AsToolFailure(err error) (*ToolFailure, bool) {
	var tf *ToolFailure
	if errors.As(err, &tf) {
		return tf, true
	}
	return nil, false
}

func toolFailure(inv Invocation, code int, stderrTail []string) error {
	tf := &ToolFailure{Command: inv.String(), ExitCode: code, StderrTail: stderrTail}
	return ferrors.ToolError(fmt.Sprintf("%s failed", inv.Program)).
		WithCause(tf).
		WithContext("command", tf.Command).
		WithContext("exit_code", code).Build()
}
