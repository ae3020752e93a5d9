package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestMemory_SessionLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "a topic of sufficient length", "gpt-4o-mini", "proponent", "gemini-2.5-flash", "critic", 5)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.Status != StatusDraft {
		t.Errorf("expected draft status, got %q", sess.Status)
	}

	if err := m.SetSessionStatus(ctx, sess.ID, StatusActive, TimestampStarted); err != nil {
		t.Fatalf("SetSessionStatus: %v", err)
	}
	got, err := m.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != StatusActive || got.StartedAt == nil {
		t.Errorf("expected active with started_at, got %+v", got)
	}

	_, err = m.GetSession(ctx, uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_CreateTurnConflict(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sess, _ := m.CreateSession(ctx, "a topic of sufficient length", "gpt-4o-mini", "proponent", "gemini-2.5-flash", "critic", 3)

	first, inserted, err := m.CreateTurn(ctx, Turn{SessionID: sess.ID, Round: 1, Slot: 1, Backend: "gpt-4o-mini", Role: "proponent", Content: "first"})
	if err != nil || !inserted {
		t.Fatalf("expected insert, got inserted=%v err=%v", inserted, err)
	}

	dup, inserted, err := m.CreateTurn(ctx, Turn{SessionID: sess.ID, Round: 1, Slot: 1, Backend: "gpt-4o-mini", Role: "proponent", Content: "second"})
	if err != nil {
		t.Fatalf("CreateTurn duplicate: %v", err)
	}
	if inserted {
		t.Error("duplicate slot write must not insert")
	}
	if dup.ID != first.ID || dup.Content != "first" {
		t.Errorf("expected the first writer's turn back, got %+v", dup)
	}
}

func TestMemory_ConcurrentSlotWritersSingleWinner(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sess, _ := m.CreateSession(ctx, "a topic of sufficient length", "gpt-4o-mini", "proponent", "gemini-2.5-flash", "critic", 3)

	var wg sync.WaitGroup
	inserts := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, inserted, err := m.CreateTurn(ctx, Turn{SessionID: sess.ID, Round: 2, Slot: 2, Backend: "b", Role: "critic", Content: "racer"})
			if err != nil {
				t.Errorf("CreateTurn: %v", err)
				return
			}
			inserts <- inserted
		}()
	}
	wg.Wait()
	close(inserts)

	wins := 0
	for inserted := range inserts {
		if inserted {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one winning writer, got %d", wins)
	}

	turns, _ := m.GetRoundTurns(ctx, sess.ID, 2)
	if len(turns) != 1 {
		t.Errorf("expected a single stored turn, got %d", len(turns))
	}
}

func TestMemory_TurnOrdering(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sess, _ := m.CreateSession(ctx, "a topic of sufficient length", "gpt-4o-mini", "proponent", "gemini-2.5-flash", "critic", 3)

	// Insert out of order on purpose.
	m.CreateTurn(ctx, Turn{SessionID: sess.ID, Round: 2, Slot: 1, Role: "proponent", Content: "r2s1"})
	m.CreateTurn(ctx, Turn{SessionID: sess.ID, Round: 1, Slot: 2, Role: "critic", Content: "r1s2"})
	m.CreateTurn(ctx, Turn{SessionID: sess.ID, Round: 1, Slot: 1, Role: "proponent", Content: "r1s1"})

	turns, err := m.GetTurns(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetTurns: %v", err)
	}
	want := []string{"r1s1", "r1s2", "r2s1"}
	for i, w := range want {
		if turns[i].Content != w {
			t.Errorf("position %d: expected %s, got %s", i, w, turns[i].Content)
		}
	}
}

func TestMemory_ListSessionsMostRecentFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, _ := m.CreateSession(ctx, "first topic of sufficient length", "gpt-4o-mini", "proponent", "gemini-2.5-flash", "critic", 3)
	b, _ := m.CreateSession(ctx, "second topic of sufficient length", "gpt-4o-mini", "critic", "gemini-2.5-flash", "proponent", 3)

	// Force a strict ordering regardless of clock resolution.
	sa := m.sessions[a.ID]
	sa.CreatedAt = sa.CreatedAt.Add(-1e9)
	m.sessions[a.ID] = sa

	list, err := m.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 2 || list[0].ID != b.ID {
		t.Errorf("expected most recent session first, got %+v", list)
	}
}
