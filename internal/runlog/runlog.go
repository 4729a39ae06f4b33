// Package runlog persists one record per analysis run so results stay
// comparable across dataset revisions.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound reports a run ID with no stored record.
var ErrNotFound = errors.New("runlog: run not found")

// Record is one persisted analysis run.
type Record struct {
	ID      int64  `json:"id"`
	RunID   string `json:"run_id"`
	Dataset string `json:"dataset"`
	Model   string `json:"model"`
	// Params snapshots the resolved analysis settings as JSON.
	Params  json.RawMessage `json:"params,omitempty"`
	Summary Summary         `json:"summary"`
	// StartedAt has second resolution.
	StartedAt  time.Time `json:"started_at"`
	DurationMS float64   `json:"duration_ms"`
}

// Store keeps run records in SQLite. Use ":memory:" for an ephemeral store.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the run database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runlog: open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("runlog: initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		dataset TEXT NOT NULL,
		model TEXT NOT NULL,
		params TEXT,
		summary TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores one run record.
func (s *Store) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaryJSON, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("runlog: marshal summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO runs (run_id, dataset, model, params, summary, started_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?)",
		rec.RunID, rec.Dataset, rec.Model, []byte(rec.Params), summaryJSON,
		rec.StartedAt.Unix(), rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("runlog: insert run: %w", err)
	}
	return nil
}

// History returns stored runs newest first. A non-positive limit returns
// everything.
func (s *Store) History(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := "SELECT id, run_id, dataset, model, params, summary, started_at, duration_ms FROM runs ORDER BY id DESC"
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("runlog: query runs: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ByRunID fetches a single run record.
func (s *Store) ByRunID(ctx context.Context, runID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, dataset, model, params, summary, started_at, duration_ms FROM runs WHERE run_id = ?",
		runID,
	)
	if err != nil {
		return Record{}, fmt.Errorf("runlog: query run: %w", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return recs[0], nil
}

// Latest fetches the newest run record.
func (s *Store) Latest(ctx context.Context) (Record, error) {
	recs, err := s.History(ctx, 1)
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, ErrNotFound
	}
	return recs[0], nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var recs []Record
	for rows.Next() {
		var (
			rec         Record
			params      []byte
			summaryJSON []byte
			startedUnix int64
		)
		err := rows.Scan(&rec.ID, &rec.RunID, &rec.Dataset, &rec.Model,
			&params, &summaryJSON, &startedUnix, &rec.DurationMS)
		if err != nil {
			return nil, fmt.Errorf("runlog: scan run: %w", err)
		}
		rec.Params = json.RawMessage(params)
		rec.StartedAt = time.Unix(startedUnix, 0)
		if err := json.Unmarshal(summaryJSON, &rec.Summary); err != nil {
			return nil, fmt.Errorf("runlog: unmarshal summary: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("runlog: iterate rows: %w", err)
	}
	return recs, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
