package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process store with the same conflict semantics as the
// Postgres store. It backs unit tests and credential-free dev runs; it is not
// durable and not shared across processes.
type Memory struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]Session
	turns    map[uuid.UUID][]Turn // keyed by session id, insertion order
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[uuid.UUID]Session),
		turns:    make(map[uuid.UUID][]Turn),
	}
}

func (m *Memory) CreateSession(ctx context.Context, topic, backend1, role1, backend2, role2 string, rounds int) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

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
	m.sessions[sess.ID] = sess
	return sess, nil
}

func (m *Memory) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: debate %s", ErrNotFound, id)
	}
	return sess, nil
}

func (m *Memory) SetSessionStatus(ctx context.Context, id uuid.UUID, status, timestampField string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: debate %s", ErrNotFound, id)
	}
	sess.Status = status
	now := time.Now().UTC()
	switch timestampField {
	case TimestampStarted:
		sess.StartedAt = &now
	case TimestampFinished:
		sess.FinishedAt = &now
	case "":
	default:
		return fmt.Errorf("unknown timestamp field %q", timestampField)
	}
	m.sessions[id] = sess
	return nil
}

func (m *Memory) ListSessions(ctx context.Context) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CreateTurn mirrors the Postgres ON CONFLICT DO NOTHING behavior: the first
// writer of a (session, round, slot) wins, later writers get the stored turn
// back with inserted=false.
func (m *Memory) CreateTurn(ctx context.Context, t Turn) (Turn, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.turns[t.SessionID] {
		if existing.Round == t.Round && existing.Slot == t.Slot {
			return existing, false, nil
		}
	}
	t.ID = uuid.New()
	t.CreatedAt = time.Now().UTC()
	m.turns[t.SessionID] = append(m.turns[t.SessionID], t)
	return t, true, nil
}

func (m *Memory) GetTurns(ctx context.Context, sessionID uuid.UUID) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := append([]Turn(nil), m.turns[sessionID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].Slot < out[j].Slot
	})
	return out, nil
}

func (m *Memory) GetRoundTurns(ctx context.Context, sessionID uuid.UUID, round int) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Turn
	for _, t := range m.turns[sessionID] {
		if t.Round == round {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}
