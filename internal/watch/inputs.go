package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/logfields"
)

var rawExtensions = []string{".bval", ".bvec"}

// relevant reports whether a file name in a subject directory is a raw input.
// Task working directories, logs and hidden files never trigger runs.
func relevant(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	_, ext := artifact.SplitExt(base)
	ext = strings.ToLower(ext)
	return slices.Contains(artifact.ImageExtensions, ext) || slices.Contains(rawExtensions, ext)
}

// inputWatcher watches subject directories (not their task subdirectories)
// and debounces changes per subject.
type inputWatcher struct {
	watcher  *fsnotify.Watcher
	subjects map[string]string // dir -> subject
	debounce time.Duration
	request  func(subject, reason string)
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newInputWatcher(subjectsDir string, subjects []string, debounce time.Duration,
	request func(subject, reason string), logger *slog.Logger) (*inputWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to create file watcher").Build()
	}
	iw := &inputWatcher{
		watcher:  fw,
		subjects: map[string]string{},
		debounce: debounce,
		request:  request,
		logger:   logger,
		timers:   map[string]*time.Timer{},
	}
	for _, s := range subjects {
		dir := filepath.Clean(filepath.Join(subjectsDir, s))
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to watch subject directory").
				WithContext("dir", dir).Build()
		}
		iw.subjects[dir] = s
	}
	logger.Info("Watching subject inputs", slog.Int("subjects", len(subjects)), logfields.Duration(debounce))
	return iw, nil
}

func (iw *inputWatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			iw.stopTimers()
			return
		case event, ok := <-iw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 || !relevant(event.Name) {
				continue
			}
			subject, ok := iw.subjects[filepath.Dir(event.Name)]
			if !ok {
				continue
			}
			iw.logger.Debug("Input change detected", logfields.Subject(subject), logfields.Path(event.Name),
				slog.String("op", event.Op.String()))
			iw.schedule(subject)
		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
			iw.logger.Error("File watcher error", logfields.Error(err))
		}
	}
}

func (iw *inputWatcher) schedule(subject string) {
	iw.mu.Lock()
	defer iw.mu.Unlock()
	if t, ok := iw.timers[subject]; ok {
		t.Reset(iw.debounce)
		return
	}
	iw.timers[subject] = time.AfterFunc(iw.debounce, func() {
		iw.mu.Lock()
		delete(iw.timers, subject)
		iw.mu.Unlock()
		iw.request(subject, "inputs changed")
	})
}

func (iw *inputWatcher) stopTimers() {
	iw.mu.Lock()
	defer iw.mu.Unlock()
	for s, t := range iw.timers {
		t.Stop()
		delete(iw.timers, s)
	}
}

func (iw *inputWatcher) Close() error { return iw.watcher.Close() }
