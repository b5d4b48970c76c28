package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runLog struct {
	mu   sync.Mutex
	runs []string
}

func (l *runLog) run(_ context.Context, subject string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, subject)
	return nil
}

func (l *runLog) count(subject string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.runs {
		if s == subject {
			n++
		}
	}
	return n
}

func TestRelevant(t *testing.T) {
	for name, want := range map[string]bool{
		"/s/s01/dwi.nii.gz":      true,
		"/s/s01/anat.mgz":        true,
		"/s/s01/dwi.bval":        true,
		"/s/s01/dwi.bvec":        true,
		"/s/s01/notes.txt":       false,
		"/s/s01/.dwi.nii.gz.swp": false,
		"/s/s01/00-preparation":  false,
		"/s/s01/preparation.log": false,
		"/s/s01/.neuroflow":      false,
	} {
		assert.Equal(t, want, relevant(name), name)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Subjects: []string{"s01"}})
	assert.Error(t, err)
	_, err = New(Options{Run: (&runLog{}).run})
	assert.Error(t, err)
}

func TestRequestsMergeWhilePending(t *testing.T) {
	w, err := New(Options{Subjects: []string{"s01"}, Run: (&runLog{}).run})
	require.NoError(t, err)
	w.Request("s02", "a")
	w.Request("s01", "b")
	w.Request("s02", "c")

	got := w.drain()
	require.Len(t, got, 2)
	assert.Equal(t, request{"s01", "b"}, got[0])
	assert.Equal(t, request{"s02", "a"}, got[1])
	assert.Empty(t, w.drain())
}

func TestInputChangesAreDebounced(t *testing.T) {
	subjects := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(subjects, "s01"), 0o750))
	log := &runLog{}
	w, err := New(Options{
		SubjectsDir: subjects,
		Subjects:    []string{"s01"},
		Debounce:    50 * time.Millisecond,
		Run:         log.run,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	require.Eventually(t, func() bool { return log.count("s01") == 1 }, 2*time.Second, 10*time.Millisecond, "startup run")

	for i := range 5 {
		path := filepath.Join(subjects, "s01", "dwi.bval")
		require.NoError(t, os.WriteFile(path, []byte{byte('0' + i)}, 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(subjects, "s01", "notes.txt"), []byte("x"), 0o600))

	require.Eventually(t, func() bool { return log.count("s01") == 2 }, 2*time.Second, 10*time.Millisecond, "debounced run")
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 2, log.count("s01"))

	cancel()
	<-done
}

func TestScheduleRequestsEverySubject(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	s, err := NewSchedule(20*time.Millisecond, []string{"s01", "s02"}, func(subject, _ string) {
		mu.Lock()
		defer mu.Unlock()
		seen[subject]++
	}, nil)
	require.NoError(t, err)
	s.Start()
	defer func() { require.NoError(t, s.Stop()) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["s01"] > 0 && seen["s02"] > 0
	}, 2*time.Second, 10*time.Millisecond)
}
