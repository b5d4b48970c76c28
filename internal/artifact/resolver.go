package artifact

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"git.home.luguber.info/inful/neuroflow/internal/logfields"
)

// Resolver locates artifacts in directories. A missing directory is treated
// like an empty one.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a resolver logging through logger (slog.Default when nil).
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

type candidate struct {
	path string
	rank int
}

// Find returns the path of the artifact matching q in dir. Absence is reported
// through the boolean, never as an error. When several files match, the
// preferred extension wins, then lexical order.
func (r *Resolver) Find(dir string, q Query) (string, bool) {
	matches := r.scan(dir, q)
	if len(matches) == 0 {
		return "", false
	}
	if len(matches) > 1 {
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = filepath.Base(m.path)
		}
		r.logger.Debug("Ambiguous artifact query resolved to first candidate",
			logfields.Dir(dir),
			logfields.Artifact(q.String()),
			slog.Any("candidates", names))
	}
	return matches[0].path, true
}

// FindAll returns every artifact matching q in dir; empty when none.
func (r *Resolver) FindAll(dir string, q Query) []string {
	matches := r.scan(dir, q)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.path
	}
	return out
}

func (r *Resolver) scan(dir string, q Query) []candidate {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("Failed to list artifact directory", logfields.Dir(dir), logfields.Error(err))
		}
		return nil
	}
	var matches []candidate
	for _, entry := range entries {
		ok, rank := q.Matches(entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		// Symlinked inputs are followed; dangling links and directories are skipped.
		info, statErr := os.Stat(path)
		if statErr != nil || info.IsDir() {
			continue
		}
		matches = append(matches, candidate{path: path, rank: rank})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].rank != matches[j].rank {
			return matches[i].rank < matches[j].rank
		}
		return matches[i].path < matches[j].path
	})
	return matches
}
