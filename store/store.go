// Package store persists test results and run summaries in a local
// SQLite database. Writes are append-only and serialized through an
// internal mutex; readers only observe runs whose summary row has been
// written.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/testpilot/testpilot/model"
)

// DefaultPath is the store location relative to the working directory.
const DefaultPath = ".testpilot/results.db"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	duration_ns INTEGER NOT NULL,
	total      INTEGER NOT NULL,
	passed     INTEGER NOT NULL,
	failed     INTEGER NOT NULL,
	errored    INTEGER NOT NULL,
	skipped    INTEGER NOT NULL,
	parallel   INTEGER NOT NULL,
	workers    INTEGER NOT NULL,
	fail_fast  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	test_id     TEXT NOT NULL,
	attempt     INTEGER NOT NULL,
	status      TEXT NOT NULL,
	duration_ns INTEGER NOT NULL,
	error       TEXT,
	timestamp   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_test_id ON results(test_id);
CREATE INDEX IF NOT EXISTS idx_results_timestamp ON results(timestamp);
`

// Store is the embedded result store. It is safe for concurrent use:
// workers append results while the run is in flight.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the store at path, creating the parent
// directory and schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// Single connection: SQLite writes are serialized anyway, and this
	// keeps the driver from returning SQLITE_BUSY under worker load.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordResult appends one test attempt. Called as each attempt
// completes so a crashed run loses at most the in-flight attempt.
func (s *Store) RecordResult(res model.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO results (run_id, test_id, attempt, status, duration_ns, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.TestID, res.Attempt, string(res.Status),
		res.Duration.Nanoseconds(), res.Error, res.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

// RecordSummary appends the run summary. This is the final write of a
// run and marks its results as finalized for readers.
func (s *Store) RecordSummary(sum model.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO runs (id, started_at, duration_ns, total, passed, failed, errored, skipped, parallel, workers, fail_fast)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, sum.StartedAt.UTC().Format(time.RFC3339Nano), sum.Duration.Nanoseconds(),
		sum.Total, sum.Passed, sum.Failed, sum.Errored, sum.Skipped,
		boolToInt(sum.Parallel), sum.Workers, boolToInt(sum.FailFast),
	)
	if err != nil {
		return fmt.Errorf("failed to record run summary: %w", err)
	}
	return nil
}

// ResultsSince returns results recorded after cutoff, oldest first,
// optionally filtered by test identity. Results belonging to a run
// without a summary row are excluded: such a run never finalized.
func (s *Store) ResultsSince(cutoff time.Time, testID string) ([]model.TestResult, error) {
	query := `
		SELECT r.run_id, r.test_id, r.attempt, r.status, r.duration_ns, r.error, r.timestamp
		FROM results r
		INNER JOIN runs ON runs.id = r.run_id
		WHERE r.timestamp > ?`
	args := []any{cutoff.UTC().Format(time.RFC3339Nano)}
	if testID != "" {
		query += " AND r.test_id = ?"
		args = append(args, testID)
	}
	query += " ORDER BY r.timestamp, r.id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []model.TestResult
	for rows.Next() {
		var res model.TestResult
		var status, ts string
		var durationNS int64
		var errText sql.NullString
		if err := rows.Scan(&res.RunID, &res.TestID, &res.Attempt, &status, &durationNS, &errText, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.Status = model.Status(status)
		res.Duration = time.Duration(durationNS)
		res.Error = errText.String
		if res.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("failed to parse result timestamp: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Summaries returns the most recent run summaries, newest first.
func (s *Store) Summaries(limit int) ([]model.RunSummary, error) {
	query := `
		SELECT id, started_at, duration_ns, total, passed, failed, errored, skipped, parallel, workers, fail_fast
		FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var sum model.RunSummary
		var startedAt string
		var durationNS int64
		var parallel, failFast int
		if err := rows.Scan(&sum.RunID, &startedAt, &durationNS, &sum.Total, &sum.Passed,
			&sum.Failed, &sum.Errored, &sum.Skipped, &parallel, &sum.Workers, &failFast); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		sum.Duration = time.Duration(durationNS)
		sum.Parallel = parallel != 0
		sum.FailFast = failFast != 0
		if sum.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse run timestamp: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
