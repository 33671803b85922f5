// Package store provides a SQLite-backed audit log of compliance queries.
// Every answered query is persisted with its trace ID and validation outcome
// so operators can review what the assistant told users and on what grounds.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Record is one persisted compliance query with its outcome.
type Record struct {
	// UserID identifies who asked.
	UserID string
	// TraceID correlates the record with logs and traces.
	TraceID string
	// Query is the original user question.
	Query string
	// Answer is the synthesized answer as returned to the user.
	Answer string
	// ValidationPassed reports whether the answer cleared the quality gate.
	ValidationPassed bool
	// Diagnostic is the first stage failure recorded during the run, if any.
	Diagnostic string
	// CreatedAt is when the record was persisted.
	CreatedAt time.Time
}

// QueryStore persists and retrieves compliance query records.
// Implementations must be safe for concurrent use.
type QueryStore interface {
	// Append persists one record.
	Append(ctx context.Context, rec Record) error
	// Recent returns the most recent n records, newest-first. If fewer than
	// n records exist, all are returned.
	Recent(ctx context.Context, n int) ([]Record, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a QueryStore backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the query audit database.
// It resolves to ~/.reguscope/queries.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".reguscope")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "queries.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS queries (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id     TEXT    NOT NULL,
    trace_id    TEXT    NOT NULL,
    query       TEXT    NOT NULL,
    answer      TEXT    NOT NULL,
    validated   INTEGER NOT NULL,
    diagnostic  TEXT    NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_queries_created ON queries (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists one record. A zero CreatedAt is replaced with the current time.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	validated := 0
	if rec.ValidationPassed {
		validated = 1
	}
	const q = `INSERT INTO queries (user_id, trace_id, query, answer, validated, diagnostic, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q,
		rec.UserID, rec.TraceID, rec.Query, rec.Answer, validated, rec.Diagnostic, created.Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n records, newest-first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Record, error) {
	const q = `SELECT user_id, trace_id, query, answer, validated, diagnostic, created_at
FROM queries ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var validated int
		var created int64
		if err := rows.Scan(&rec.UserID, &rec.TraceID, &rec.Query, &rec.Answer,
			&validated, &rec.Diagnostic, &created); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		rec.ValidationPassed = validated == 1
		rec.CreatedAt = time.Unix(created, 0)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: rows: %w", err)
	}
	return recs, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
