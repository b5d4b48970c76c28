package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// CLIErrorAdapter turns the error returned by a command into a message on
// stderr and a process exit status.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	stderr  io.Writer
	exit    func(int)
}

func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger, stderr: os.Stderr, exit: os.Exit}
}

// ExitCodeFor returns 0 for nil, the category's status for classified errors
// and 1 for anything else.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if ce, ok := AsClassified(err); ok {
		return ce.ExitCode()
	}
	return 1
}

// FormatError renders err for the terminal. Internal errors are summarised
// unless verbose output was requested. A "hint" context field is printed on
// its own line.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	ce, ok := AsClassified(err)
	switch {
	case !ok:
		return "Error: " + err.Error()
	case ce.Category() == CategoryInternal && !a.verbose:
		return "Internal error occurred (use -v for details)"
	}
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(err.Error())
	if hint, ok := ce.Context().GetString("hint"); ok {
		fmt.Fprintf(&b, "\n  hint: %s", hint)
	}
	return b.String()
}

// HandleError logs err, prints it and exits. It returns without exiting when
// err is nil.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	if ce, ok := AsClassified(err); ok {
		a.logger.LogAttrs(context.Background(), ce.Severity().Level(), ce.Message(), ce.LogAttrs()...)
	} else {
		a.logger.Error("Command failed", slog.String("error", err.Error()))
	}
	fmt.Fprintln(a.stderr, a.FormatError(err))
	a.exit(a.ExitCodeFor(err))
}
