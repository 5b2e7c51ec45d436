package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the turns table. [PostgresStore.Migrate] applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS turns (
    id              TEXT PRIMARY KEY,
    mode            TEXT NOT NULL,
    chat_id         TEXT NOT NULL DEFAULT '',
    conversation_id TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT '',
    reply           TEXT NOT NULL DEFAULT '',
    error_kind      TEXT NOT NULL DEFAULT '',
    error           TEXT NOT NULL DEFAULT '',
    audio_bytes     INTEGER NOT NULL DEFAULT 0,
    audio_mime      TEXT NOT NULL DEFAULT '',
    audio_ms        BIGINT NOT NULL DEFAULT 0,
    has_image       BOOLEAN NOT NULL DEFAULT false,
    farewell        BOOLEAN NOT NULL DEFAULT false,
    trace_id        TEXT NOT NULL DEFAULT '',
    started_at      TIMESTAMPTZ NOT NULL,
    duration_ms     BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_turns_started_at ON turns(started_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store using db. Call [PostgresStore.Migrate]
// before the first query.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects a pool to dsn, pings it and applies [Schema]. The returned
// close function releases the pool.
func Open(ctx context.Context, dsn string) (*PostgresStore, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("history: ping: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// Migrate applies [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Ping reports whether the database answers. It has the signature of a
// readiness check.
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("history: ping: %w", err)
	}
	return nil
}

// Append implements [Store].
func (s *PostgresStore) Append(ctx context.Context, r Record) error {
	const query = `
		INSERT INTO turns (
			id, mode, chat_id, conversation_id, status, reply,
			error_kind, error, audio_bytes, audio_mime, audio_ms,
			has_image, farewell, trace_id, started_at, duration_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.db.Exec(ctx, query,
		r.ID, r.Mode, r.ChatID, r.ConversationID, r.Status, r.Reply,
		r.ErrorKind, r.Error, r.AudioBytes, r.AudioMIME, r.AudioLen.Milliseconds(),
		r.HasImage, r.Farewell, r.TraceID, r.StartedAt, r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("history: append %s: %w", r.ID, err)
	}
	return nil
}

// Recent implements [Store].
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultCapacity
	}
	const query = `
		SELECT id, mode, chat_id, conversation_id, status, reply,
		       error_kind, error, audio_bytes, audio_mime, audio_ms,
		       has_image, farewell, trace_id, started_at, duration_ms
		FROM turns
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			r                 Record
			audioMS, duration int64
		)
		if err := rows.Scan(
			&r.ID, &r.Mode, &r.ChatID, &r.ConversationID, &r.Status, &r.Reply,
			&r.ErrorKind, &r.Error, &r.AudioBytes, &r.AudioMIME, &audioMS,
			&r.HasImage, &r.Farewell, &r.TraceID, &r.StartedAt, &duration,
		); err != nil {
			return nil, fmt.Errorf("history: recent scan: %w", err)
		}
		r.AudioLen = time.Duration(audioMS) * time.Millisecond
		r.Duration = time.Duration(duration) * time.Millisecond
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	return recs, nil
}
