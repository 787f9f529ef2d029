// Package artifacts persists what a test run leaves behind: the captured
// console stream, per-spec outcomes, and readable page dumps for failed
// specs. Runs accumulate in a local SQLite database so flaky behavior can
// be compared across runs.
package artifacts

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kembridge/bridgecheck/conlog"
)

const schema = `
CREATE TABLE IF NOT EXISTS console_records (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id    TEXT NOT NULL,
    spec      TEXT NOT NULL,
    kind      TEXT NOT NULL,
    text      TEXT NOT NULL,
    logged_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_console_run ON console_records(run_id, spec);

CREATE TABLE IF NOT EXISTS spec_outcomes (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id        TEXT NOT NULL,
    spec          TEXT NOT NULL,
    ok            INTEGER NOT NULL,
    soft_failures INTEGER NOT NULL DEFAULT 0,
    detail        TEXT NOT NULL DEFAULT '',
    started_at    TIMESTAMP NOT NULL,
    finished_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_run ON spec_outcomes(run_id);
`

// Outcome is one spec's result within a run.
type Outcome struct {
	RunID        string
	Spec         string
	OK           bool
	SoftFailures int
	Detail       string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Store is the SQLite-backed artifact sink.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the artifact database at path. Parent
// directories are created. Pass ":memory:" for an ephemeral store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("artifacts: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("artifacts: open: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a distinct database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("artifacts: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("artifacts: apply schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveConsole stores a spec's captured console records in one transaction.
func (s *Store) SaveConsole(ctx context.Context, runID, spec string, records []conlog.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("artifacts: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO console_records
		(run_id, spec, kind, text, logged_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("artifacts: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, runID, spec, r.Kind, r.Text, r.Time); err != nil {
			return fmt.Errorf("artifacts: insert console record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("artifacts: commit: %w", err)
	}
	s.logger.Debug("console records saved", "run", runID, "spec", spec, "count", len(records))
	return nil
}

// SaveOutcome records one spec's result.
func (s *Store) SaveOutcome(ctx context.Context, o Outcome) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO spec_outcomes
		(run_id, spec, ok, soft_failures, detail, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.Spec, boolInt(o.OK), o.SoftFailures, o.Detail, o.StartedAt, o.FinishedAt)
	if err != nil {
		return fmt.Errorf("artifacts: insert outcome: %w", err)
	}
	return nil
}

// Outcomes returns every outcome recorded for a run, in insertion order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, spec, ok, soft_failures,
		detail, started_at, finished_at FROM spec_outcomes WHERE run_id = ? ORDER BY id`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("artifacts: query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var ok int
		if err := rows.Scan(&o.RunID, &o.Spec, &ok, &o.SoftFailures,
			&o.Detail, &o.StartedAt, &o.FinishedAt); err != nil {
			return nil, fmt.Errorf("artifacts: scan outcome: %w", err)
		}
		o.OK = ok != 0
		out = append(out, o)
	}
	return out, rows.Err()
}

// ConsoleRecords returns a spec's stored console stream in logged order.
func (s *Store) ConsoleRecords(ctx context.Context, runID, spec string) ([]conlog.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, text, logged_at
		FROM console_records WHERE run_id = ? AND spec = ? ORDER BY id`, runID, spec)
	if err != nil {
		return nil, fmt.Errorf("artifacts: query console records: %w", err)
	}
	defer rows.Close()

	var out []conlog.Record
	for rows.Next() {
		var r conlog.Record
		if err := rows.Scan(&r.Kind, &r.Text, &r.Time); err != nil {
			return nil, fmt.Errorf("artifacts: scan console record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Cleanup removes artifacts older than the retention window and compacts
// the file. Returns the number of outcomes deleted.
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention)

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM console_records WHERE logged_at < ?", threshold); err != nil {
		return 0, fmt.Errorf("artifacts: cleanup console records: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM spec_outcomes WHERE finished_at < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("artifacts: cleanup outcomes: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return n, fmt.Errorf("artifacts: vacuum: %w", err)
	}
	if n > 0 {
		s.logger.Info("artifact store cleaned", "deleted_outcomes", n)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
