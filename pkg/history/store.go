// Package history persists playbook run outcomes to a local SQLite database
// so past runs can be inspected after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/opsailor/opsail/pkg/playbook"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	playbook    TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	ok          INTEGER NOT NULL DEFAULT 0,
	changed     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	unreachable INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS task_results (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	host       TEXT NOT NULL,
	task       TEXT NOT NULL,
	status     TEXT NOT NULL,
	msg        TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_task_results_run ON task_results(run_id);
`

// Store records runs and their task results. It satisfies the runner's
// HistoryRecorder contract.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a store for the given database path. Call Init before
// use.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &Store{path: path}, nil
}

// Init opens the database in WAL mode and creates the schema when missing.
func (s *Store) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create history schema: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StartRun inserts a new run row and returns its id.
func (s *Store) StartRun(playbookPath string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		"INSERT INTO runs (id, playbook, started_at) VALUES (?, ?, ?)",
		id, playbookPath, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record run start: %w", err)
	}
	return id, nil
}

// RecordTask appends one task result to a run.
func (s *Store) RecordTask(runID, host, task, status, msg string) error {
	_, err := s.db.Exec(
		"INSERT INTO task_results (run_id, host, task, status, msg, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		runID, host, task, status, msg, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record task result: %w", err)
	}
	return nil
}

// FinishRun stamps the run's end time and recap totals.
func (s *Store) FinishRun(runID string, totals playbook.RecapLine) error {
	_, err := s.db.Exec(
		"UPDATE runs SET finished_at = ?, ok = ?, changed = ?, failed = ?, unreachable = ?, skipped = ? WHERE id = ?",
		time.Now().UTC(), totals.OK, totals.Changed, totals.Failed, totals.Unreachable, totals.Skipped, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}
	return nil
}

// Run is one recorded playbook run.
type Run struct {
	ID          string
	Playbook    string
	StartedAt   time.Time
	FinishedAt  sql.NullTime
	OK          int
	Changed     int
	Failed      int
	Unreachable int
	Skipped     int
}

// TaskResult is one recorded task outcome.
type TaskResult struct {
	Host      string
	Task      string
	Status    string
	Msg       string
	CreatedAt time.Time
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, playbook, started_at, finished_at, ok, changed, failed, unreachable, skipped FROM runs ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Playbook, &r.StartedAt, &r.FinishedAt, &r.OK, &r.Changed, &r.Failed, &r.Unreachable, &r.Skipped); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// TasksForRun returns the task results of one run in execution order.
func (s *Store) TasksForRun(ctx context.Context, runID string) ([]TaskResult, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT host, task, status, msg, created_at FROM task_results WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list task results: %w", err)
	}
	defer rows.Close()

	var results []TaskResult
	for rows.Next() {
		var t TaskResult
		if err := rows.Scan(&t.Host, &t.Task, &t.Status, &t.Msg, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task result: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}
