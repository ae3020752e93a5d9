package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, topic, backend1, role1, backend2, role2, rounds, status, created_at, started_at, finished_at`

// CreateSession inserts a new debate in draft status and returns it.
func (s *Store) CreateSession(ctx context.Context, topic, backend1, role1, backend2, role2 string, rounds int) (Session, error) {
	sess := Session{
		ID:        uuid.New(),
		Topic:     topic,
		Backend1:  backend1,
		Role1:     role1,
		Backend2:  backend2,
		Role2:     role2,
		Rounds:    rounds,
		Status:    StatusDraft,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO debates (id, topic, backend1, role1, backend2, role2, rounds, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.Topic, sess.Backend1, sess.Role1, sess.Backend2, sess.Role2, sess.Rounds, sess.Status, sess.CreatedAt,
	)
	if err != nil {
		return Session{}, fmt.Errorf("insert debate: %w", err)
	}
	return sess, nil
}

// GetSession fetches a debate by id.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM debates WHERE id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: debate %s", ErrNotFound, id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get debate: %w", err)
	}
	return sess, nil
}

// SetSessionStatus updates the lifecycle status, optionally stamping
// started_at or finished_at.
func (s *Store) SetSessionStatus(ctx context.Context, id uuid.UUID, status, timestampField string) error {
	var err error
	switch timestampField {
	case TimestampStarted:
		_, err = s.pool.Exec(ctx, `UPDATE debates SET status = $1, started_at = now() WHERE id = $2`, status, id)
	case TimestampFinished:
		_, err = s.pool.Exec(ctx, `UPDATE debates SET status = $1, finished_at = now() WHERE id = $2`, status, id)
	case "":
		_, err = s.pool.Exec(ctx, `UPDATE debates SET status = $1 WHERE id = $2`, status, id)
	default:
		return fmt.Errorf("unknown timestamp field %q", timestampField)
	}
	if err != nil {
		return fmt.Errorf("update debate status: %w", err)
	}
	return nil
}

// ListSessions returns all debates, most recent first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sessionColumns+` FROM debates ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list debates: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debate: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (Session, error) {
	var sess Session
	err := row.Scan(
		&sess.ID, &sess.Topic, &sess.Backend1, &sess.Role1, &sess.Backend2, &sess.Role2,
		&sess.Rounds, &sess.Status, &sess.CreatedAt, &sess.StartedAt, &sess.FinishedAt,
	)
	return sess, err
}
