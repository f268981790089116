// Package store persists completed conversation turns in PostgreSQL.
//
// The Store satisfies session.TurnSink so the session manager can hand off
// turns as they complete. Persistence is optional: when no DSN is configured
// the application simply runs without a sink.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/liveprompt/liveprompt/internal/session"
)

// Compile-time interface check.
var _ session.TurnSink = (*Store)(nil)

// schemaDDL creates the turn table. Executed with IF NOT EXISTS so repeated
// startups against the same database are harmless.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS conversation_turns (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	question     TEXT NOT NULL,
	answer       TEXT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS conversation_turns_session_idx
	ON conversation_turns (session_id, completed_at);
`

// Store is a PostgreSQL-backed turn sink holding a single [pgxpool.Pool].
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn and runs
// [Migrate] so the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate ensures the turn table and its index exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

// RecordTurn inserts one completed turn. Each row gets a ULID so insertion
// order is recoverable even when CompletedAt collides.
func (s *Store) RecordTurn(ctx context.Context, sessionID string, turn session.ConversationTurn) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_turns (id, session_id, question, answer, completed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ulid.Make().String(), sessionID, turn.Question, turn.Answer, turn.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert turn: %w", err)
	}
	return nil
}

// Turns returns all turns of a session in completion order.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]session.ConversationTurn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT question, answer, completed_at
		 FROM conversation_turns
		 WHERE session_id = $1
		 ORDER BY completed_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query turns: %w", err)
	}

	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (session.ConversationTurn, error) {
		var t session.ConversationTurn
		var completed time.Time
		if err := row.Scan(&t.Question, &t.Answer, &completed); err != nil {
			return t, err
		}
		t.CompletedAt = completed
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: scan turns: %w", err)
	}
	return turns, nil
}

// Ping probes the database, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}
