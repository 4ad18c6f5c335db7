// Package archive persists finished calls to PostgreSQL so lead records,
// transcripts and summaries survive the session registry eviction.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/callsmith-ai/callsmith/internal/call"
)

const ddlCalls = `
CREATE TABLE IF NOT EXISTS calls (
    id          UUID         PRIMARY KEY,
    call_id     TEXT         NOT NULL,
    started_at  TIMESTAMPTZ  NOT NULL,
    ended_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    state       TEXT         NOT NULL,
    entities    JSONB        NOT NULL DEFAULT '{}',
    history     JSONB        NOT NULL DEFAULT '[]',
    summary     TEXT         NOT NULL DEFAULT '',
    outcome     TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_calls_call_id ON calls (call_id);
CREATE INDEX IF NOT EXISTS idx_calls_ended_at ON calls (ended_at);
`

// Store writes call records. Safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn and ensures the calls table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlCalls); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Record is one archived call as read back from storage.
type Record struct {
	ID        uuid.UUID
	CallID    string
	StartedAt time.Time
	EndedAt   time.Time
	State     string
	Summary   string
	Outcome   string
}

// Save archives sess with its cached summary, if any. The session lock is
// taken to snapshot history and entities consistently.
func (s *Store) Save(ctx context.Context, sess *call.Session) error {
	sess.Lock()
	entities, err := json.Marshal(&sess.Entities)
	if err != nil {
		sess.Unlock()
		return fmt.Errorf("archive: marshal entities: %w", err)
	}
	history, err := json.Marshal(sess.History)
	if err != nil {
		sess.Unlock()
		return fmt.Errorf("archive: marshal history: %w", err)
	}
	state := sess.State.String()
	started := sess.CreatedAt
	sess.Unlock()

	var summaryText string
	var outcome call.Outcome
	if sum, ok := sess.CachedSummary(); ok {
		summaryText = sum.Text
		outcome = sum.Outcome
	}

	const q = `
		INSERT INTO calls (id, call_id, started_at, state, entities, history, summary, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = s.pool.Exec(ctx, q,
		uuid.New(),
		sess.ID,
		started,
		state,
		entities,
		history,
		summaryText,
		string(outcome),
	)
	if err != nil {
		return fmt.Errorf("archive: save call %s: %w", sess.ID, err)
	}
	return nil
}

// Recent returns up to limit archived calls, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	const q = `
		SELECT id, call_id, started_at, ended_at, state, summary, outcome
		FROM   calls
		ORDER  BY ended_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.CallID, &r.StartedAt, &r.EndedAt, &r.State, &r.Summary, &r.Outcome); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: rows: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
