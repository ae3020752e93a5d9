package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sparlabs/rostrum/internal/prompt"
	"github.com/sparlabs/rostrum/internal/roles"
	"github.com/sparlabs/rostrum/internal/store"
	"github.com/sparlabs/rostrum/internal/summary"
)

const testTopic = "Remote work is more effective than office work"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// genCall records one generation invocation.
type genCall struct {
	Backend string
	System  string
	Prompt  string
}

// fakeGen is a scripted generation backend. failOnAttempt makes the n-th
// attempt (1-based, counting failures) fail once, then clears itself.
type fakeGen struct {
	calls         []genCall
	attempts      int
	failOnAttempt int
}

func (f *fakeGen) Generate(ctx context.Context, backend, system, prompt string, temperature float64, maxTokens int) (string, error) {
	f.attempts++
	if f.failOnAttempt == f.attempts {
		f.failOnAttempt = 0
		return "", errors.New("backend exploded")
	}
	f.calls = append(f.calls, genCall{Backend: backend, System: system, Prompt: prompt})
	return fmt.Sprintf("reply %d from %s", len(f.calls), backend), nil
}

func (f *fakeGen) Available(backend string) bool {
	return backend == "gpt-4o-mini" || backend == "gemini-2.5-flash"
}

// capturingPublisher collects published events.
type capturingPublisher struct {
	subjects []string
}

func (p *capturingPublisher) Publish(subject string, data any) error {
	p.subjects = append(p.subjects, subject)
	return nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeGen, *capturingPublisher) {
	t.Helper()
	gen := &fakeGen{}
	pub := &capturingPublisher{}
	o := New(store.NewMemory(), gen, prompt.New(summary.DefaultOptions()), pub, discardLogger(), 0.7, 500)
	return o, gen, pub
}

func validConfig() Config {
	return Config{
		Topic:    testTopic,
		Backend1: "gpt-4o-mini",
		Role1:    roles.Proponent,
		Backend2: "gemini-2.5-flash",
		Role2:    roles.Critic,
		Rounds:   3,
	}
}

func TestCreateSession_Valid(t *testing.T) {
	o, _, pub := newTestOrchestrator(t)

	sess, err := o.CreateSession(context.Background(), validConfig())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.Status != store.StatusDraft {
		t.Errorf("expected draft status, got %q", sess.Status)
	}
	if sess.Rounds != 3 {
		t.Errorf("expected 3 rounds, got %d", sess.Rounds)
	}
	if len(pub.subjects) != 1 || pub.subjects[0] != SubjectSessionCreated {
		t.Errorf("expected a session.created event, got %v", pub.subjects)
	}
}

func TestCreateSession_DefaultRounds(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	cfg := validConfig()
	cfg.Rounds = 0
	sess, err := o.CreateSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.Rounds != DefaultRounds {
		t.Errorf("expected default of %d rounds, got %d", DefaultRounds, sess.Rounds)
	}
}

func TestCreateSession_Rejections(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"short topic", func(c *Config) { c.Topic = "too short" }, ErrInvalidConfig},
		{"long topic", func(c *Config) { c.Topic = strings.Repeat("x", 501) }, ErrInvalidConfig},
		{"same roles", func(c *Config) { c.Role2 = c.Role1 }, ErrInvalidConfig},
		{"unknown role", func(c *Config) { c.Role1 = "moderator" }, ErrInvalidConfig},
		{"negative rounds", func(c *Config) { c.Rounds = -1 }, ErrInvalidConfig},
		{"unknown backend", func(c *Config) { c.Backend1 = "claude-3" }, ErrInvalidConfig},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := validConfig()
			c.mutate(&cfg)
			_, err := o.CreateSession(ctx, cfg)
			if !errors.Is(err, c.want) {
				t.Errorf("expected %v, got %v", c.want, err)
			}
		})
	}
}

func TestCreateSession_BackendWithoutCredentials(t *testing.T) {
	o := New(store.NewMemory(), unavailableGen{}, prompt.New(summary.DefaultOptions()), nil, discardLogger(), 0.7, 500)

	_, err := o.CreateSession(context.Background(), validConfig())
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

type unavailableGen struct{}

func (unavailableGen) Generate(ctx context.Context, backend, system, prompt string, temperature float64, maxTokens int) (string, error) {
	return "", errors.New("no client")
}
func (unavailableGen) Available(backend string) bool { return false }

func TestGenerateRound_TwoTurnsInOrder(t *testing.T) {
	o, gen, pub := newTestOrchestrator(t)
	ctx := context.Background()
	sess, _ := o.CreateSession(ctx, validConfig())

	turns, err := o.GenerateRound(ctx, sess.ID, 1)
	if err != nil {
		t.Fatalf("GenerateRound: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Slot != 1 || turns[0].Role != roles.Proponent {
		t.Errorf("first turn should be slot 1 proponent, got %+v", turns[0])
	}
	if turns[1].Slot != 2 || turns[1].Role != roles.Critic {
		t.Errorf("second turn should be slot 2 critic, got %+v", turns[1])
	}

	got, _ := o.GetSession(ctx, sess.ID)
	if got.Status != store.StatusActive {
		t.Errorf("session should be active after a non-final round, got %q", got.Status)
	}

	want := []string{SubjectSessionCreated, SubjectTurnRecorded, SubjectTurnRecorded}
	if len(pub.subjects) != 3 || pub.subjects[1] != want[1] || pub.subjects[2] != want[2] {
		t.Errorf("expected events %v, got %v", want, pub.subjects)
	}
	if len(gen.calls) != 2 {
		t.Errorf("expected 2 provider calls, got %d", len(gen.calls))
	}
}

func TestGenerateRound_SecondSpeakerSeesFirstOutput(t *testing.T) {
	o, gen, _ := newTestOrchestrator(t)
	ctx := context.Background()
	sess, _ := o.CreateSession(ctx, validConfig())

	// Round 1 carries no history. Round 2's prompts must include round 1, and
	// the second speaker's prompt must include the first speaker's round-2 turn.
	if _, err := o.GenerateRound(ctx, sess.ID, 1); err != nil {
		t.Fatalf("round 1: %v", err)
	}
	turns, err := o.GenerateRound(ctx, sess.ID, 2)
	if err != nil {
		t.Fatalf("round 2: %v", err)
	}

	slot1Text := turns[0].Content
	slot2Prompt := gen.calls[3].Prompt
	if !strings.Contains(slot2Prompt, slot1Text) {
		t.Errorf("second speaker's prompt must contain the first speaker's fresh turn %q", slot1Text)
	}
	if !strings.Contains(slot2Prompt, "OPPONENT'S LAST ARGUMENT:\n"+slot1Text) {
		t.Error("the first speaker's fresh turn should be the highlighted opponent argument")
	}
}

func TestGenerateRound_Idempotent(t *testing.T) {
	o, gen, _ := newTestOrchestrator(t)
	ctx := context.Background()
	sess, _ := o.CreateSession(ctx, validConfig())

	first, err := o.GenerateRound(ctx, sess.ID, 1)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	replay, err := o.GenerateRound(ctx, sess.ID, 1)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(gen.calls) != 2 {
		t.Errorf("replay must not invoke the provider again, got %d calls", len(gen.calls))
	}
	for i := range first {
		if replay[i].ID != first[i].ID || replay[i].Content != first[i].Content {
			t.Errorf("replay turn %d differs: %+v vs %+v", i, replay[i], first[i])
		}
	}

	history, _ := o.GetHistory(ctx, sess.ID)
	if len(history) != 2 {
		t.Errorf("expected 2 persisted turns after replay, got %d", len(history))
	}
}

func TestGenerateRound_FinalRoundCompletesSession(t *testing.T) {
	o, _, pub := newTestOrchestrator(t)
	ctx := context.Background()

	cfg := validConfig()
	cfg.Rounds = 1
	sess, _ := o.CreateSession(ctx, cfg)

	turns, err := o.GenerateRound(ctx, sess.ID, 1)
	if err != nil {
		t.Fatalf("GenerateRound: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}

	got, _ := o.GetSession(ctx, sess.ID)
	if got.Status != store.StatusCompleted {
		t.Errorf("expected completed status, got %q", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("expected finished_at to be stamped")
	}
	if pub.subjects[len(pub.subjects)-1] != SubjectSessionCompleted {
		t.Errorf("expected a session.completed event, got %v", pub.subjects)
	}

	_, err = o.GenerateRound(ctx, sess.ID, 1)
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted after completion, got %v", err)
	}
}

func TestGenerateRound_ExactMinimumTopic(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	cfg := validConfig()
	cfg.Topic = strings.Repeat("t", 20)
	cfg.Rounds = 1
	sess, err := o.CreateSession(ctx, cfg)
	if err != nil {
		t.Fatalf("20-char topic should be accepted: %v", err)
	}

	turns, err := o.GenerateRound(ctx, sess.ID, 1)
	if err != nil {
		t.Fatalf("GenerateRound: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	got, _ := o.GetSession(ctx, sess.ID)
	if got.Status != store.StatusCompleted {
		t.Errorf("expected immediate completion with budget 1, got %q", got.Status)
	}
}

func TestGenerateRound_OutOfOrderRejected(t *testing.T) {
	o, gen, _ := newTestOrchestrator(t)
	ctx := context.Background()
	sess, _ := o.CreateSession(ctx, validConfig())

	_, err := o.GenerateRound(ctx, sess.ID, 2)
	if !errors.Is(err, ErrRoundOutOfOrder) {
		t.Fatalf("expected ErrRoundOutOfOrder for round 2 before round 1, got %v", err)
	}
	if len(gen.calls) != 0 {
		t.Error("rejected request must not invoke the provider")
	}

	_, err = o.GenerateRound(ctx, sess.ID, 4)
	if !errors.Is(err, ErrRoundOutOfOrder) {
		t.Fatalf("expected ErrRoundOutOfOrder for round beyond budget, got %v", err)
	}
	_, err = o.GenerateRound(ctx, sess.ID, 0)
	if !errors.Is(err, ErrRoundOutOfOrder) {
		t.Fatalf("expected ErrRoundOutOfOrder for round 0, got %v", err)
	}
}

func TestGenerateRound_NotFound(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	_, err := o.GenerateRound(context.Background(), uuid.New(), 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGenerateRound_ProviderFailureLeavesRoundResumable(t *testing.T) {
	o, gen, _ := newTestOrchestrator(t)
	ctx := context.Background()
	sess, _ := o.CreateSession(ctx, validConfig())

	if _, err := o.GenerateRound(ctx, sess.ID, 1); err != nil {
		t.Fatalf("round 1: %v", err)
	}

	// Slot 1 of round 2 succeeds, slot 2 fails.
	gen.failOnAttempt = gen.attempts + 2
	_, err := o.GenerateRound(ctx, sess.ID, 2)
	if !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}

	partial, _ := o.store.GetRoundTurns(ctx, sess.ID, 2)
	if len(partial) != 1 || partial[0].Slot != 1 {
		t.Fatalf("expected only slot 1 persisted after the failure, got %+v", partial)
	}
	slot1ID := partial[0].ID

	// Retry completes only the missing slot; slot 1 is not regenerated.
	callsBefore := len(gen.calls)
	turns, err := o.GenerateRound(ctx, sess.ID, 2)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected a full round after retry, got %d turns", len(turns))
	}
	if turns[0].ID != slot1ID {
		t.Error("retry must keep the already-persisted slot 1 turn")
	}
	if len(gen.calls) != callsBefore+1 {
		t.Errorf("retry should generate exactly the missing slot, got %d new calls", len(gen.calls)-callsBefore)
	}
}

func TestCompleteSession_Idempotent(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()
	sess, _ := o.CreateSession(ctx, validConfig())

	if err := o.CompleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	got, _ := o.GetSession(ctx, sess.ID)
	if got.Status != store.StatusCompleted || got.FinishedAt == nil {
		t.Errorf("expected completed with finished_at, got %+v", got)
	}
	finishedAt := *got.FinishedAt

	if err := o.CompleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("repeat CompleteSession: %v", err)
	}
	got, _ = o.GetSession(ctx, sess.ID)
	if !got.FinishedAt.Equal(finishedAt) {
		t.Error("repeated completion must not re-stamp finished_at")
	}

	if err := o.CompleteSession(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLifecycle_Monotonic(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()
	sess, _ := o.CreateSession(ctx, validConfig())

	var observed []string
	record := func() {
		got, _ := o.GetSession(ctx, sess.ID)
		observed = append(observed, got.Status)
	}

	record()
	o.GenerateRound(ctx, sess.ID, 1)
	record()
	o.GenerateRound(ctx, sess.ID, 2)
	record()
	o.GenerateRound(ctx, sess.ID, 3)
	record()

	want := []string{store.StatusDraft, store.StatusActive, store.StatusActive, store.StatusCompleted}
	for i := range want {
		if observed[i] != want[i] {
			t.Errorf("status %d: expected %q, got %q", i, want[i], observed[i])
		}
	}
}

func TestGetHistory_UnknownSession(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	_, err := o.GetHistory(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHandleRoundRequested(t *testing.T) {
	o, gen, _ := newTestOrchestrator(t)
	ctx := context.Background()
	sess, _ := o.CreateSession(ctx, validConfig())

	payload, _ := json.Marshal(RoundRequest{DebateID: sess.ID.String(), Round: 1})
	o.HandleRoundRequested(SubjectRoundRequested, payload)

	if len(gen.calls) != 2 {
		t.Fatalf("expected the bus request to generate 2 turns, got %d calls", len(gen.calls))
	}
	history, _ := o.GetHistory(ctx, sess.ID)
	if len(history) != 2 {
		t.Errorf("expected 2 persisted turns, got %d", len(history))
	}
}

func TestHandleRoundRequested_BadPayload(t *testing.T) {
	o, gen, _ := newTestOrchestrator(t)

	o.HandleRoundRequested(SubjectRoundRequested, []byte("not json"))
	o.HandleRoundRequested(SubjectRoundRequested, []byte(`{"debate_id":"nope","round":1}`))

	if len(gen.calls) != 0 {
		t.Errorf("bad payloads must not trigger generation, got %d calls", len(gen.calls))
	}
}
