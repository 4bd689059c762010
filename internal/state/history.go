// Package state provides SQLite-based persistence of evaluation run
// history, so stage pass rates can be compared across runs.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/oIoTShipTalk/convex-evals/internal/report"
)

// DB wraps an SQLite database holding run history.
type DB struct {
	conn *sql.DB
	path string
}

// Run is one evaluation run's summary row.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	EvalsRoot  string
	Passed     bool
}

// StageResult is one recorded stage outcome for one project in a run.
type StageResult struct {
	RunID    string
	Category string
	Test     string
	Stage    string
	Status   string
}

// Open opens (creating if needed) the history database at path.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// migrate applies the schema.
func (db *DB) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	evals_root TEXT NOT NULL,
	passed INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS stage_results (
	run_id TEXT NOT NULL REFERENCES runs(id),
	category TEXT NOT NULL,
	test TEXT NOT NULL,
	stage TEXT NOT NULL,
	status TEXT NOT NULL,
	PRIMARY KEY (run_id, category, test, stage)
);`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// RecordRun persists one finished run and every attempted stage
// outcome from its report, in a single transaction.
func (db *DB) RecordRun(run Run, rep *report.Report) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO runs (id, started_at, finished_at, evals_root, passed) VALUES (?, ?, ?, ?, ?)",
		run.ID, run.StartedAt, run.FinishedAt, run.EvalsRoot, run.Passed,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stageNames := []string{"setup", "typecheck", "lint", "deploy"}
	for _, entry := range rep.Entries {
		for i, outcome := range entry.Outcomes() {
			if outcome == nil {
				continue
			}
			_, err = tx.Exec(
				"INSERT INTO stage_results (run_id, category, test, stage, status) VALUES (?, ?, ?, ?, ?)",
				run.ID, entry.Category, entry.Test, stageNames[i], string(outcome.Status),
			)
			if err != nil {
				return fmt.Errorf("insert stage result: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Runs returns all recorded runs, most recent first.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.conn.Query(
		"SELECT id, started_at, finished_at, evals_root, passed FROM runs ORDER BY started_at DESC")
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.EvalsRoot, &r.Passed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// StageResults returns all stage outcomes recorded for one run.
func (db *DB) StageResults(runID string) ([]StageResult, error) {
	rows, err := db.conn.Query(
		"SELECT run_id, category, test, stage, status FROM stage_results WHERE run_id = ? ORDER BY category, test, stage",
		runID)
	if err != nil {
		return nil, fmt.Errorf("query stage results: %w", err)
	}
	defer rows.Close()

	var results []StageResult
	for rows.Next() {
		var r StageResult
		if err := rows.Scan(&r.RunID, &r.Category, &r.Test, &r.Stage, &r.Status); err != nil {
			return nil, fmt.Errorf("scan stage result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
