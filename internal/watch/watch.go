// Package watch re-runs the pipeline for subjects whose raw inputs change and,
// optionally, on a fixed interval. Runs are serialized; requests arriving while
// a subject is running collapse into a single follow-up run.
package watch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/logfields"
)

// RunFunc runs the pipeline for one subject.
type RunFunc func(ctx context.Context, subject string) error

// Options configures a Watch.
type Options struct {
	SubjectsDir string
	Subjects    []string
	Debounce    time.Duration
	Interval    time.Duration // zero disables periodic runs
	Run         RunFunc
	Logger      *slog.Logger
}

// Watch coordinates input watching, periodic runs and the run queue.
type Watch struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]string // subject -> reason
	wake    chan struct{}
	runs    int
}

// New validates opts and creates a Watch.
func New(opts Options) (*Watch, error) {
	if opts.Run == nil {
		return nil, ferrors.ValidationError("watch requires a run function").Build()
	}
	if len(opts.Subjects) == 0 {
		return nil, ferrors.ValidationError("watch requires at least one subject").Build()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watch{
		opts:    opts,
		logger:  logger,
		pending: map[string]string{},
		wake:    make(chan struct{}, 1),
	}, nil
}

// Request queues a run of subject. Repeated requests before the run starts
// are merged.
func (w *Watch) Request(subject, reason string) {
	w.mu.Lock()
	if _, queued := w.pending[subject]; !queued {
		w.pending[subject] = reason
	}
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Runs returns the number of completed runs.
func (w *Watch) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

// Run starts the file watcher and scheduler, performs an initial run of
// every subject and processes requests until ctx is done.
func (w *Watch) Run(ctx context.Context) error {
	inputs, err := newInputWatcher(w.opts.SubjectsDir, w.opts.Subjects, w.opts.Debounce, w.Request, w.logger)
	if err != nil {
		return err
	}
	defer inputs.Close()
	go inputs.loop(ctx)

	if w.opts.Interval > 0 {
		sched, err := NewSchedule(w.opts.Interval, w.opts.Subjects, w.Request, w.logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			if err := sched.Stop(); err != nil {
				w.logger.Warn("Failed to stop scheduler", logfields.Error(err))
			}
		}()
	}

	for _, s := range w.opts.Subjects {
		w.Request(s, "startup")
	}
	w.loop(ctx)
	return nil
}

func (w *Watch) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}
		for _, req := range w.drain() {
			if ctx.Err() != nil {
				return
			}
			w.logger.Info("Running subject", logfields.Subject(req.subject), logfields.Reason(req.reason))
			if err := w.opts.Run(ctx, req.subject); err != nil {
				w.logger.Error("Subject run failed", logfields.Subject(req.subject), logfields.Error(err))
			}
			w.mu.Lock()
			w.runs++
			w.mu.Unlock()
		}
	}
}

type request struct{ subject, reason string }

func (w *Watch) drain() []request {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]request, 0, len(w.pending))
	for s, r := range w.pending {
		out = append(out, request{s, r})
	}
	clear(w.pending)
	sort.Slice(out, func(i, j int) bool { return out[i].subject < out[j].subject })
	return out
}
