package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"hkquant/internal/optimize"
)

// Compile-time interface checks.
var _ ParamStore = (*SQLiteStore)(nil)
var _ optimize.SetStore = (*SQLiteStore)(nil)

// SQLiteStore implements ParamStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS param_sets (
	name       TEXT PRIMARY KEY,
	params     TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS optimization_runs (
	id         TEXT PRIMARY KEY,
	method     TEXT NOT NULL,
	started_at TEXT NOT NULL,
	elapsed    TEXT NOT NULL,
	evaluated  INTEGER NOT NULL,
	failed     INTEGER NOT NULL,
	best       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON optimization_runs(started_at);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Parameter sets
// ---------------------------------------------------------------------------

// SaveParamSet inserts or replaces a named parameter set.
func (s *SQLiteStore) SaveParamSet(ctx context.Context, name string, p optimize.Params) error {
	blob, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding param set %q: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO param_sets (name, params, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET params = excluded.params, updated_at = excluded.updated_at`,
		name, string(blob), time.Now().UTC().Format(time.RFC3339))
	return err
}

// LoadParamSet retrieves a named parameter set.
func (s *SQLiteStore) LoadParamSet(ctx context.Context, name string) (optimize.Params, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT params FROM param_sets WHERE name = ?`, name).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: param set %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	var p optimize.Params
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return nil, fmt.Errorf("decoding param set %q: %w", name, err)
	}
	return p, nil
}

// ListParamSets returns the names of all saved parameter sets, sorted.
func (s *SQLiteStore) ListParamSets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM param_sets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteParamSet removes a saved parameter set.
func (s *SQLiteStore) DeleteParamSet(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM param_sets WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: param set %q", ErrNotFound, name)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Optimization runs
// ---------------------------------------------------------------------------

// SaveRun persists one completed optimization run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run optimize.Run) error {
	best, err := json.Marshal(run.Best)
	if err != nil {
		return fmt.Errorf("encoding run %q: %w", run.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO optimization_runs
		 (id, method, started_at, elapsed, evaluated, failed, best)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Method, run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Elapsed, run.Evaluated, run.Failed, string(best))
	return err
}

// ListRuns returns the most recent optimization runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]optimize.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, method, started_at, elapsed, evaluated, failed, best
		 FROM optimization_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []optimize.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun retrieves one optimization run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (optimize.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, method, started_at, elapsed, evaluated, failed, best
		 FROM optimization_runs WHERE id = ?`, id)
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return optimize.Run{}, fmt.Errorf("%w: run %q", ErrNotFound, id)
	}
	return run, err
}

func scanRun(scan func(...any) error) (optimize.Run, error) {
	var (
		run     optimize.Run
		started string
		best    string
	)
	if err := scan(&run.ID, &run.Method, &started, &run.Elapsed, &run.Evaluated, &run.Failed, &best); err != nil {
		return optimize.Run{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return optimize.Run{}, fmt.Errorf("decoding run %q timestamp: %w", run.ID, err)
	}
	run.StartedAt = ts
	if err := json.Unmarshal([]byte(best), &run.Best); err != nil {
		return optimize.Run{}, fmt.Errorf("decoding run %q results: %w", run.ID, err)
	}
	return run, nil
}
