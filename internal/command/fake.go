package command

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// FakeRunner records invocations instead of executing them. It is used by
// tests across the module and by `neuroflow plan`.
type FakeRunner struct {
	mu sync.Mutex

	calls     []Invocation
	exitCodes map[string]int
	stderr    map[string][]string

	// CreateOutputs writes an empty file for every declared output.
	CreateOutputs bool
	// Hook runs after a successful fake execution.
	Hook func(inv Invocation) error
}

// NewFakeRunner returns a runner that creates declared outputs.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{CreateOutputs: true, exitCodes: map[string]int{}, stderr: map[string][]string{}}
}

// FailOn makes every invocation of program exit with code.
func (f *FakeRunner) FailOn(program string, code int, stderrTail ...string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exitCodes == nil {
		f.exitCodes = map[string]int{}
		f.stderr = map[string][]string{}
	}
	f.exitCodes[program] = code
	f.stderr[program] = stderrTail
	return f
}

// Run records inv and simulates its outcome.
func (f *FakeRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	code := f.exitCodes[inv.Program]
	tail := f.stderr[inv.Program]
	create := f.CreateOutputs
	hook := f.Hook
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if code != 0 {
		return Result{ExitCode: code, StderrTail: tail}, toolFailure(inv, code, tail)
	}
	if create {
		for _, out := range inv.Outputs {
			if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
				return Result{}, err
			}
			if err := os.WriteFile(out, nil, 0o600); err != nil {
				return Result{}, err
			}
		}
	}
	if hook != nil {
		if err := hook(inv); err != nil {
			return Result{}, err
		}
	}
	return Result{}, nil
}

// Invocations returns a copy of all recorded invocations.
func (f *FakeRunner) Invocations() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Invocation(nil), f.calls...)
}

// Programs returns the program of each recorded invocation in order.
func (f *FakeRunner) Programs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Program
	}
	return out
}

// Count returns the number of recorded invocations.
func (f *FakeRunner) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Reset forgets recorded invocations.
func (f *FakeRunner) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
