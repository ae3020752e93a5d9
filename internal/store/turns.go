package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const turnColumns = `id, debate_id, round, slot, backend, role, content, created_at`

// CreateTurn writes one turn. The (debate_id, round, slot) unique constraint
// resolves races: when another writer got there first, the insert is a no-op
// and the already-persisted turn is returned with inserted=false.
func (s *Store) CreateTurn(ctx context.Context, t Turn) (Turn, bool, error) {
	t.ID = uuid.New()
	t.CreatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, debate_id, round, slot, backend, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (debate_id, round, slot) DO NOTHING`,
		t.ID, t.SessionID, t.Round, t.Slot, t.Backend, t.Role, t.Content, t.CreatedAt,
	)
	if err != nil {
		return Turn{}, false, fmt.Errorf("insert turn: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return t, true, nil
	}

	existing, err := s.getSlotTurn(ctx, t.SessionID, t.Round, t.Slot)
	if err != nil {
		return Turn{}, false, fmt.Errorf("reread conflicting turn: %w", err)
	}
	return existing, false, nil
}

// GetTurns returns a session's full ordered history: by round, then slot.
func (s *Store) GetTurns(ctx context.Context, sessionID uuid.UUID) ([]Turn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+turnColumns+` FROM messages
		WHERE debate_id = $1
		ORDER BY round ASC, slot ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// GetRoundTurns returns the turns of one round, first slot first.
func (s *Store) GetRoundTurns(ctx context.Context, sessionID uuid.UUID, round int) ([]Turn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+turnColumns+` FROM messages
		WHERE debate_id = $1 AND round = $2
		ORDER BY slot ASC`, sessionID, round)
	if err != nil {
		return nil, fmt.Errorf("list round turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *Store) getSlotTurn(ctx context.Context, sessionID uuid.UUID, round, slot int) (Turn, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+turnColumns+` FROM messages
		WHERE debate_id = $1 AND round = $2 AND slot = $3`, sessionID, round, slot)
	var t Turn
	err := row.Scan(&t.ID, &t.SessionID, &t.Round, &t.Slot, &t.Backend, &t.Role, &t.Content, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Turn{}, fmt.Errorf("%w: turn %s/%d/%d", ErrNotFound, sessionID, round, slot)
	}
	return t, err
}

func scanTurns(rows pgx.Rows) ([]Turn, error) {
	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Round, &t.Slot, &t.Backend, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
