// Package transcriptlog persists accepted final transcripts to PostgreSQL.
//
// The log is append-only and best effort: the server keeps serving when the
// database is unreachable. An empty DSN disables the package entirely.
package transcriptlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the transcripts table. Executed by [Store.Migrate].
const Schema = `
CREATE TABLE IF NOT EXISTS transcripts (
    id          BIGSERIAL        PRIMARY KEY,
    session_id  TEXT             NOT NULL,
    text        TEXT             NOT NULL,
    language    TEXT             NOT NULL DEFAULT '',
    duration_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ      NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transcripts_session_id ON transcripts(session_id);
CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Entry is one persisted transcript.
type Entry struct {
	SessionID  string
	Text       string
	Language   string
	DurationMs float64
	CreatedAt  time.Time
}

// Store is a PostgreSQL-backed transcript log. All methods are safe for
// concurrent use.
type Store struct {
	db   DB
	pool *pgxpool.Pool
}

// NewStore creates a Store over an existing connection or pool. The caller is
// responsible for calling [Store.Migrate] before issuing queries.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Open connects to the database at dsn, verifies the connection, and runs
// [Store.Migrate]. The returned Store owns the pool; release it with
// [Store.Close].
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("transcriptlog: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcriptlog: ping: %w", err)
	}
	s := &Store{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate executes the [Schema] DDL, creating the transcripts table and
// indexes if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("transcriptlog: migrate: %w", err)
	}
	return nil
}

// Append writes one accepted transcript.
func (s *Store) Append(ctx context.Context, sessionID, text, language string, durationMs float64) error {
	const q = `
		INSERT INTO transcripts (session_id, text, language, duration_ms)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.db.Exec(ctx, q, sessionID, text, language, durationMs); err != nil {
		return fmt.Errorf("transcriptlog: append: %w", err)
	}
	return nil
}

// Recent returns up to limit transcripts for sessionID, newest first.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	const q = `
		SELECT session_id, text, language, duration_ms, created_at
		FROM   transcripts
		WHERE  session_id = $1
		ORDER  BY created_at DESC
		LIMIT  $2`

	rows, err := s.db.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("transcriptlog: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.SessionID, &e.Text, &e.Language, &e.DurationMs, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("transcriptlog: scan: %w", err)
	}
	return entries, nil
}

// Ping reports whether the database is reachable. Suitable as a readiness
// check. Stores built over a bare connection always report healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool if this Store owns one.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
