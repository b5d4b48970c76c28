package command

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// LogKind selects how the output of an invocation is recorded.
type LogKind int

const (
	// LogTranscript appends the full output to the invocation's LogFile.
	LogTranscript LogKind = iota
	// LogTail only keeps the last lines of output for failure reports.
	LogTail
	// LogQuiet keeps the failure tail but never echoes output, not even at Debug.
	LogQuiet
)

// EchoKind selects the output streams logged line by line while the command
// runs, independently of LogKind.
type EchoKind int

const (
	EchoNone EchoKind = iota
	EchoStdout
	EchoStderr
	EchoBoth
)

func (k EchoKind) stdout() bool { return k == EchoStdout || k == EchoBoth }
func (k EchoKind) stderr() bool { return k == EchoStderr || k == EchoBoth }

func (k LogKind) String() string {
	switch k {
	case LogTranscript:
		return "transcript"
	case LogTail:
		return "tail"
	case LogQuiet:
		return "quiet"
	default:
		return fmt.Sprintf("LogKind(%d)", int(k))
	}
}

// Invocation is a fully formed external command.
type Invocation struct {
	Program string
	Args    []string
	Dir     string            // working directory of the process
	Env     map[string]string // added to the inherited environment, never set process wide
	LogKind LogKind
	Echo    EchoKind
	LogFile string   // transcript target for LogTranscript
	Outputs []string // artifacts the command is expected to write; empty for log-only commands
}

// New creates an invocation of program with args.
func New(program string, args ...string) Invocation {
	return Invocation{Program: program, Args: args}
}

// In sets the working directory.
func (inv Invocation) In(dir string) Invocation {
	inv.Dir = dir
	return inv
}

// WithEnv adds one environment variable for this invocation only.
func (inv Invocation) WithEnv(key, value string) Invocation {
	env := make(map[string]string, len(inv.Env)+1)
	for k, v := range inv.Env {
		env[k] = v
	}
	env[key] = value
	inv.Env = env
	return inv
}

// Producing declares the artifacts the command writes.
func (inv Invocation) Producing(paths ...string) Invocation {
	inv.Outputs = append(append([]string(nil), inv.Outputs...), paths...)
	return inv
}

// Logging selects the log kind.
func (inv Invocation) Logging(kind LogKind) Invocation {
	inv.LogKind = kind
	return inv
}

// Echoing selects the streams logged live while the command runs.
func (inv Invocation) Echoing(kind EchoKind) Invocation {
	inv.Echo = kind
	return inv
}

// ArtifactProducing reports whether the invocation declares outputs.
func (inv Invocation) ArtifactProducing() bool { return len(inv.Outputs) > 0 }

// String renders the command line with shell style quoting.
func (inv Invocation) String() string {
	parts := make([]string, 0, len(inv.Args)+1)
	parts = append(parts, quote(inv.Program))
	for _, a := range inv.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func (inv Invocation) environ() []string {
	keys := make([]string, 0, len(inv.Env))
	for k := range inv.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+inv.Env[k])
	}
	return out
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.ContainsAny(s, " \t\n'\"\\$`*?[]{}()<>|&;#") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}

// Result describes a completed invocation.
type Result struct {
	ExitCode   int
	Duration   time.Duration
	StdoutTail []string
	StderrTail []string
	DryRun     bool
}
