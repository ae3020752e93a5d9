// Package store owns durable debate state in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session lifecycle statuses.
const (
	StatusDraft     = "draft"
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Timestamp fields settable alongside a status change.
const (
	TimestampStarted  = "started_at"
	TimestampFinished = "finished_at"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// Session is one debate: a topic, two (backend, role) participants, a fixed
// round budget and a lifecycle status.
type Session struct {
	ID         uuid.UUID  `json:"id"`
	Topic      string     `json:"topic"`
	Backend1   string     `json:"backend1"`
	Role1      string     `json:"role1"`
	Backend2   string     `json:"backend2"`
	Role2      string     `json:"role2"`
	Rounds     int        `json:"rounds"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Turn is one generated utterance. Slot is 1 or 2 and matches the session's
// participant position; (SessionID, Round, Slot) is unique in storage.
type Turn struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Round     int       `json:"round"`
	Slot      int       `json:"slot"`
	Backend   string    `json:"backend"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the schema. The unique index on (debate_id, round, slot) is
// the load-bearing piece: it makes turn creation an atomic check-then-create,
// so two racing round requests cannot both write the same slot.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS debates (
			id UUID PRIMARY KEY,
			topic TEXT NOT NULL,
			backend1 TEXT NOT NULL,
			role1 TEXT NOT NULL,
			backend2 TEXT NOT NULL,
			role2 TEXT NOT NULL,
			rounds INTEGER NOT NULL DEFAULT 5,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			debate_id UUID NOT NULL REFERENCES debates(id),
			round INTEGER NOT NULL,
			slot INTEGER NOT NULL,
			backend TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (debate_id, round, slot)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
