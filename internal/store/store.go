// Package store persists run history to SQLite. Persistence is best-effort:
// the pipeline logs and continues when a write fails, and a nil *Store is a
// valid disabled store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"utforge/internal/logging"
	"utforge/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	created_at       TIMESTAMP NOT NULL,
	status           TEXT NOT NULL,
	stage            TEXT NOT NULL,
	total_tests      INTEGER NOT NULL,
	passed           INTEGER NOT NULL,
	failed           INTEGER NOT NULL,
	overall_coverage REAL NOT NULL,
	diagnostics      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

// Run is one persisted history row.
type Run struct {
	ID              string
	CreatedAt       time.Time
	Status          string
	Stage           string
	TotalTests      int
	Passed          int
	Failed          int
	OverallCoverage float64
	Diagnostics     string
}

// Store wraps the runs database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	// modernc sqlite serializes internally but concurrent writers still
	// trip SQLITE_BUSY; a single connection sidesteps that.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: applying schema: %w", err)
	}
	logging.Store("run history opened at %s", path)
	return &Store{db: db}, nil
}

// Close releases the database. Nil-safe.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save persists one report summary. Nil-safe.
func (s *Store) Save(ctx context.Context, rep *report.FinalReport) error {
	if s == nil || s.db == nil {
		return nil
	}

	status := ""
	diagnostics := ""
	if rep.Run != nil {
		status = string(rep.Run.Status)
		diagnostics = rep.Run.Diagnostics
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, status, stage, total_tests, passed, failed, overall_coverage, diagnostics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.RequestID, time.Now().UTC(), status, rep.Stage,
		len(rep.TestCases), rep.Passed(), rep.Failed(),
		rep.Coverage.Overall, diagnostics,
	)
	if err != nil {
		return fmt.Errorf("store: saving run %s: %w", rep.RequestID, err)
	}
	return nil
}

// Recent returns the newest n runs. Nil-safe.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if n <= 0 {
		n = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, status, stage, total_tests, passed, failed, overall_coverage, diagnostics
		FROM runs ORDER BY created_at DESC, id LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Status, &r.Stage,
			&r.TotalTests, &r.Passed, &r.Failed, &r.OverallCoverage, &r.Diagnostics); err != nil {
			return nil, fmt.Errorf("store: scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
