// Package store keeps the run history of the pipeline in SQLite: one row per
// subject run and one per task outcome.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
)

// RunRecord is a stored subject run.
type RunRecord struct {
	RunID   string
	Subject string
	Start   time.Time
	End     time.Time
	DryRun  bool
	Outcome string // empty while the run is in progress
}

// TaskRecord is a stored task outcome.
type TaskRecord struct {
	RunID    string
	Task     string
	State    string
	Reason   string
	Missing  []string
	Duration time.Duration
	Commands int
	Error    string
}

// Store is a SQLite backed run history.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the history database. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryStore, "failed to create history directory").
				WithContext("path", path).Build()
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryStore, "failed to open history database").
			WithContext("path", path).Build()
	}
	// A single connection keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryStore, "failed to initialize history schema").Build()
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		dry_run INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_runs_subject ON runs(subject);
	CREATE TABLE IF NOT EXISTS task_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		task TEXT NOT NULL,
		state TEXT NOT NULL,
		reason TEXT,
		missing TEXT,
		duration_ms INTEGER NOT NULL,
		commands INTEGER NOT NULL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_task_outcomes_run ON task_outcomes(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun inserts or updates a run.
func (s *Store) RecordRun(ctx context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ended any
	if !run.End.IsZero() {
		ended = run.End.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, subject, started_at, ended_at, dry_run, outcome) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET ended_at = excluded.ended_at, outcome = excluded.outcome`,
		run.RunID, run.Subject, run.Start.UnixMilli(), ended, run.DryRun, run.Outcome,
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryStore, "failed to record run").
			WithContext("run_id", run.RunID).Build()
	}
	return nil
}

// RecordTask appends a task outcome to its run.
func (s *Store) RecordTask(ctx context.Context, rec TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []byte
	if len(rec.Missing) > 0 {
		var err error
		if missing, err = json.Marshal(rec.Missing); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryStore, "failed to encode missing artifacts").Build()
		}
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO task_outcomes (run_id, task, state, reason, missing, duration_ms, commands, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		rec.RunID, rec.Task, rec.State, rec.Reason, string(missing), rec.Duration.Milliseconds(), rec.Commands, rec.Error,
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryStore, "failed to record task outcome").
			WithContext("run_id", rec.RunID).
			WithContext("task", rec.Task).Build()
	}
	return nil
}

// ListRuns returns the most recent runs first. An empty subject lists all
// subjects; limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, subject string, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT run_id, subject, started_at, ended_at, dry_run, outcome FROM runs"
	var args []any
	if subject != "" {
		query += " WHERE subject = ?"
		args = append(args, subject)
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryStore, "failed to query runs").Build()
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&r.RunID, &r.Subject, &started, &ended, &r.DryRun, &r.Outcome); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryStore, "failed to scan run").Build()
		}
		r.Start = time.UnixMilli(started)
		if ended.Valid {
			r.End = time.UnixMilli(ended.Int64)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryStore, "failed to iterate runs").Build()
	}
	return runs, nil
}

// TaskOutcomes returns the task outcomes of a run in recording order.
func (s *Store) TaskOutcomes(ctx context.Context, runID string) ([]TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, task, state, reason, missing, duration_ms, commands, error FROM task_outcomes WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryStore, "failed to query task outcomes").Build()
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		var reason, missing, errText sql.NullString
		var durationMS int64
		if err := rows.Scan(&rec.RunID, &rec.Task, &rec.State, &reason, &missing, &durationMS, &rec.Commands, &errText); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryStore, "failed to scan task outcome").Build()
		}
		rec.Reason = reason.String
		rec.Error = errText.String
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if missing.String != "" {
			if err := json.Unmarshal([]byte(missing.String), &rec.Missing); err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryStore, "failed to decode missing artifacts").Build()
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryStore, "failed to iterate task outcomes").Build()
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
