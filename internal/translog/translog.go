// Package translog provides a SQLite-backed transcript log of answered
// questions. Every completed exchange is persisted with its tenant,
// session, timing, and source count so support teams can audit what the
// assistant told customers. The log is write-mostly; reads serve the
// transcript CLI and offline review.
package translog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Entry is one answered exchange.
type Entry struct {
	// BusinessID is the tenant the exchange belongs to.
	BusinessID string
	// SessionID is the conversation the exchange belongs to. May be empty
	// for sessionless questions.
	SessionID string
	// Question is the user's question as asked.
	Question string
	// Answer is the text returned to the user, including canned fallbacks.
	Answer string
	// ResponseTimeMs is the wall-clock answer latency.
	ResponseTimeMs int64
	// SourceCount is how many retrieved units backed the answer.
	SourceCount int
	// CreatedAt is when the exchange was persisted.
	CreatedAt time.Time
}

// TranscriptLog persists and retrieves answered exchanges. Implementations
// must be safe for concurrent use.
type TranscriptLog interface {
	// Append persists a single exchange.
	Append(ctx context.Context, e Entry) error
	// Recent returns the most recent n exchanges for the tenant and session,
	// ordered oldest-first. If fewer than n exist, all are returned.
	Recent(ctx context.Context, businessID, sessionID string, n int) ([]Entry, error)
	// Close releases any resources held by the log.
	Close() error
}

// SQLiteLog is a TranscriptLog backed by a local SQLite database.
type SQLiteLog struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the transcript database.
// It resolves to ~/.docmind/transcripts.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("translog: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docmind")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("translog: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "transcripts.db"), nil
}

// Open opens (or creates) a SQLiteLog at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteLog, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("translog: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	l := &SQLiteLog{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// migrate creates the schema if it does not already exist.
func (l *SQLiteLog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS transcripts (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    business_id      TEXT    NOT NULL,
    session_id       TEXT    NOT NULL DEFAULT '',
    question         TEXT    NOT NULL,
    answer           TEXT    NOT NULL,
    response_time_ms INTEGER NOT NULL,
    source_count     INTEGER NOT NULL,
    created_at       INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_transcripts_tenant_session_created
    ON transcripts (business_id, session_id, created_at);
`
	if _, err := l.db.Exec(ddl); err != nil {
		return fmt.Errorf("translog: migrate: %w", err)
	}
	return nil
}

// Append persists a single exchange. A zero CreatedAt is stamped with the
// current time.
func (l *SQLiteLog) Append(ctx context.Context, e Entry) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	const q = `INSERT INTO transcripts
	(business_id, session_id, question, answer, response_time_ms, source_count, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := l.db.ExecContext(ctx, q,
		e.BusinessID, e.SessionID, e.Question, e.Answer,
		e.ResponseTimeMs, e.SourceCount, created.Unix(),
	); err != nil {
		return fmt.Errorf("translog: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n exchanges for the tenant and session,
// ordered oldest-first. Uses a subquery to select the tail then re-order.
func (l *SQLiteLog) Recent(ctx context.Context, businessID, sessionID string, n int) ([]Entry, error) {
	const q = `
SELECT business_id, session_id, question, answer, response_time_ms, source_count, created_at FROM (
    SELECT id, business_id, session_id, question, answer, response_time_ms, source_count, created_at
    FROM   transcripts
    WHERE  business_id = ? AND session_id = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := l.db.QueryContext(ctx, q, businessID, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("translog: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.BusinessID, &e.SessionID, &e.Question, &e.Answer,
			&e.ResponseTimeMs, &e.SourceCount, &ts); err != nil {
			return nil, fmt.Errorf("translog: recent scan: %w", err)
		}
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("translog: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (l *SQLiteLog) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("translog: close: %w", err)
	}
	return nil
}
