// Package sqlite is the SQLite implementation of the run store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/contextgate/contextgate/internal/core/domain"
	"github.com/contextgate/contextgate/internal/storage"
)

// Store persists runs in a SQLite database.
type Store struct {
	db *sql.DB
}

var _ storage.RunStore = (*Store)(nil)

// New opens (creating if needed) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			ok INTEGER NOT NULL,
			blocked_at TEXT,
			request TEXT NOT NULL,
			result TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun inserts one run record.
func (s *Store) SaveRun(ctx context.Context, rec *storage.RunRecord) error {
	request, err := json.Marshal(rec.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	ok := 0
	if rec.OK {
		ok = 1
	}
	var blockedAt sql.NullString
	if rec.BlockedAt != "" {
		blockedAt = sql.NullString{String: rec.BlockedAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, ok, blocked_at, request, result) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt, ok, blockedAt, string(request), string(result))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun fetches one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*storage.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, ok, blocked_at, request, result FROM runs WHERE id = ?`, id)

	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*storage.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, ok, blocked_at, request, result FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var recs []*storage.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteRunsBefore removes runs created before cutoff.
func (s *Store) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*storage.RunRecord, error) {
	var (
		rec       storage.RunRecord
		ok        int
		blockedAt sql.NullString
		request   string
		result    string
	)
	if err := row.Scan(&rec.ID, &rec.CreatedAt, &ok, &blockedAt, &request, &result); err != nil {
		return nil, err
	}

	rec.OK = ok == 1
	rec.BlockedAt = blockedAt.String

	if err := json.Unmarshal([]byte(request), &rec.Request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	var res domain.Result
	if err := json.Unmarshal([]byte(result), &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	rec.Result = res

	return &rec, nil
}
