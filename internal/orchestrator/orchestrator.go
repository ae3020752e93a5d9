// Package orchestrator drives debate sessions through their lifecycle: it
// validates configuration, decides whose turn is next, assembles per-turn
// context, invokes the generation backends and persists the results.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sparlabs/rostrum/internal/prompt"
	"github.com/sparlabs/rostrum/internal/provider"
	"github.com/sparlabs/rostrum/internal/roles"
	"github.com/sparlabs/rostrum/internal/store"
)

// Topic length bounds, in runes.
const (
	MinTopicLength = 20
	MaxTopicLength = 500
)

// DefaultRounds is used when a session config leaves the budget unset.
const DefaultRounds = 5

var (
	// ErrNotFound mirrors the store sentinel so callers only import this package.
	ErrNotFound = store.ErrNotFound
	// ErrInvalidConfig covers topic length, role and round-budget violations.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrAlreadyCompleted rejects generation on a finished session.
	ErrAlreadyCompleted = errors.New("debate already completed")
	// ErrBackendUnavailable means a known backend has no configured credentials.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrRoundOutOfOrder rejects round requests that skip ahead or fall outside
	// the budget. Rounds must be requested sequentially.
	ErrRoundOutOfOrder = errors.New("round out of order")
	// ErrProviderFailure wraps any generation backend failure. The failed slot
	// is not persisted; retrying the round is safe.
	ErrProviderFailure = errors.New("generation failed")
)

// Store is the persistence boundary. Both the Postgres store and the
// in-memory store satisfy it; turn uniqueness is enforced there, atomically,
// not here.
type Store interface {
	CreateSession(ctx context.Context, topic, backend1, role1, backend2, role2 string, rounds int) (store.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (store.Session, error)
	SetSessionStatus(ctx context.Context, id uuid.UUID, status, timestampField string) error
	ListSessions(ctx context.Context) ([]store.Session, error)
	CreateTurn(ctx context.Context, t store.Turn) (store.Turn, bool, error)
	GetTurns(ctx context.Context, sessionID uuid.UUID) ([]store.Turn, error)
	GetRoundTurns(ctx context.Context, sessionID uuid.UUID, round int) ([]store.Turn, error)
}

// Publisher emits lifecycle events to the bus. Optional: a nil publisher
// disables events without changing orchestration behavior.
type Publisher interface {
	Publish(subject string, data any) error
}

// Event subjects published by the orchestrator.
const (
	SubjectSessionCreated   = "debate.session.created"
	SubjectTurnRecorded     = "debate.turn.recorded"
	SubjectSessionCompleted = "debate.session.completed"
	SubjectRoundRequested   = "debate.round.requested"
)

// Config is a session creation request.
type Config struct {
	Topic    string `json:"topic"`
	Backend1 string `json:"backend1"`
	Role1    string `json:"role1"`
	Backend2 string `json:"backend2"`
	Role2    string `json:"role2"`
	Rounds   int    `json:"rounds"`
}

// Orchestrator is safe for concurrent use across sessions; turns within one
// round are generated strictly sequentially because the second participant's
// context includes the first participant's fresh output.
type Orchestrator struct {
	store       Store
	gen         provider.Generator
	compiler    *prompt.Compiler
	events      Publisher
	logger      *slog.Logger
	temperature float64
	maxTokens   int
}

func New(s Store, gen provider.Generator, compiler *prompt.Compiler, events Publisher, logger *slog.Logger, temperature float64, maxTokens int) *Orchestrator {
	return &Orchestrator{
		store:       s,
		gen:         gen,
		compiler:    compiler,
		events:      events,
		logger:      logger,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// CreateSession validates the config and creates the debate in draft status.
func (o *Orchestrator) CreateSession(ctx context.Context, cfg Config) (store.Session, error) {
	if n := utf8.RuneCountInString(cfg.Topic); n < MinTopicLength || n > MaxTopicLength {
		return store.Session{}, fmt.Errorf("%w: topic must be %d-%d characters, got %d", ErrInvalidConfig, MinTopicLength, MaxTopicLength, n)
	}
	if _, err := roles.Lookup(cfg.Role1); err != nil {
		return store.Session{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := roles.Lookup(cfg.Role2); err != nil {
		return store.Session{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Role1 == cfg.Role2 {
		return store.Session{}, fmt.Errorf("%w: participants must have distinct roles", ErrInvalidConfig)
	}
	if cfg.Rounds < 0 {
		return store.Session{}, fmt.Errorf("%w: rounds must be positive", ErrInvalidConfig)
	}
	rounds := cfg.Rounds
	if rounds == 0 {
		rounds = DefaultRounds
	}
	for _, backend := range []string{cfg.Backend1, cfg.Backend2} {
		if !provider.Known(backend) {
			return store.Session{}, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, backend)
		}
		if !o.gen.Available(backend) {
			return store.Session{}, fmt.Errorf("%w: no credentials for %q", ErrBackendUnavailable, backend)
		}
	}

	sess, err := o.store.CreateSession(ctx, cfg.Topic, cfg.Backend1, cfg.Role1, cfg.Backend2, cfg.Role2, rounds)
	if err != nil {
		return store.Session{}, fmt.Errorf("create session: %w", err)
	}

	o.logger.Info("debate created", "debate_id", sess.ID, "rounds", sess.Rounds)
	o.publish(SubjectSessionCreated, map[string]any{"debate_id": sess.ID, "topic": sess.Topic, "rounds": sess.Rounds})
	return sess, nil
}

// GenerateRound produces both turns of the given round, in participant order.
// It is idempotent per slot: already-persisted turns are returned, never
// regenerated, so a retry after a slot-2 provider failure keeps slot 1's
// result. Rounds must be requested in sequence.
func (o *Orchestrator) GenerateRound(ctx context.Context, id uuid.UUID, round int) ([]store.Turn, error) {
	sess, err := o.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == store.StatusCompleted {
		return nil, fmt.Errorf("%w: debate %s", ErrAlreadyCompleted, id)
	}
	if round < 1 || round > sess.Rounds {
		return nil, fmt.Errorf("%w: round %d outside budget of %d", ErrRoundOutOfOrder, round, sess.Rounds)
	}

	history, err := o.store.GetTurns(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	roundTurns := turnsOfRound(history, round)
	if len(roundTurns) == 2 {
		// Idempotent replay. Still close the lifecycle if a crash landed
		// between the final round's persist and the status update.
		if round == sess.Rounds {
			if err := o.store.SetSessionStatus(ctx, id, store.StatusCompleted, store.TimestampFinished); err != nil {
				return nil, fmt.Errorf("mark completed: %w", err)
			}
		}
		return roundTurns, nil
	}

	// Sequential precondition: every earlier round must already be complete.
	if got, want := len(history)-len(roundTurns), 2*(round-1); got != want {
		return nil, fmt.Errorf("%w: round %d requested with %d of %d earlier turns recorded", ErrRoundOutOfOrder, round, got, want)
	}

	if sess.Status == store.StatusDraft {
		if err := o.store.SetSessionStatus(ctx, id, store.StatusActive, store.TimestampStarted); err != nil {
			return nil, fmt.Errorf("mark active: %w", err)
		}
	}

	participants := []struct {
		slot    int
		backend string
		roleID  string
	}{
		{1, sess.Backend1, sess.Role1},
		{2, sess.Backend2, sess.Role2},
	}

	promptHistory := toPromptTurns(history[:len(history)-len(roundTurns)])
	for _, t := range roundTurns {
		promptHistory = append(promptHistory, promptTurn(t))
	}

	out := make([]store.Turn, 0, 2)
	for _, p := range participants {
		if t, ok := slotTurn(roundTurns, p.slot); ok {
			out = append(out, t)
			continue
		}

		role, err := roles.Lookup(p.roleID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		bundle := o.compiler.Compile(sess.Topic, round, sess.Rounds, promptHistory, role)

		text, err := o.gen.Generate(ctx, p.backend, bundle.System, bundle.User, o.temperature, o.maxTokens)
		if err != nil {
			o.logger.Error("generation failed", "debate_id", id, "round", round, "slot", p.slot, "backend", p.backend, "error", err)
			return nil, fmt.Errorf("%w: slot %d: %v", ErrProviderFailure, p.slot, err)
		}

		turn, inserted, err := o.store.CreateTurn(ctx, store.Turn{
			SessionID: id,
			Round:     round,
			Slot:      p.slot,
			Backend:   p.backend,
			Role:      p.roleID,
			Content:   text,
		})
		if err != nil {
			return nil, fmt.Errorf("persist turn: %w", err)
		}
		if !inserted {
			// A concurrent request won the slot; its turn is the canonical one.
			o.logger.Warn("slot already written by a concurrent request", "debate_id", id, "round", round, "slot", p.slot)
		}

		out = append(out, turn)
		promptHistory = append(promptHistory, promptTurn(turn))
		o.publish(SubjectTurnRecorded, map[string]any{"debate_id": id, "round": round, "slot": p.slot, "turn_id": turn.ID})
	}

	if round == sess.Rounds {
		if err := o.store.SetSessionStatus(ctx, id, store.StatusCompleted, store.TimestampFinished); err != nil {
			return nil, fmt.Errorf("mark completed: %w", err)
		}
		o.logger.Info("debate completed", "debate_id", id, "rounds", sess.Rounds)
		o.publish(SubjectSessionCompleted, map[string]any{"debate_id": id})
	}

	return out, nil
}

// CompleteSession forces a session into completed status. Idempotent.
func (o *Orchestrator) CompleteSession(ctx context.Context, id uuid.UUID) error {
	sess, err := o.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status == store.StatusCompleted {
		return nil
	}
	if err := o.store.SetSessionStatus(ctx, id, store.StatusCompleted, store.TimestampFinished); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	o.publish(SubjectSessionCompleted, map[string]any{"debate_id": id})
	return nil
}

func (o *Orchestrator) GetSession(ctx context.Context, id uuid.UUID) (store.Session, error) {
	return o.store.GetSession(ctx, id)
}

func (o *Orchestrator) ListSessions(ctx context.Context) ([]store.Session, error) {
	return o.store.ListSessions(ctx)
}

func (o *Orchestrator) GetHistory(ctx context.Context, id uuid.UUID) ([]store.Turn, error) {
	if _, err := o.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return o.store.GetTurns(ctx, id)
}

func (o *Orchestrator) publish(subject string, data any) {
	if o.events == nil {
		return
	}
	if err := o.events.Publish(subject, data); err != nil {
		o.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

func turnsOfRound(history []store.Turn, round int) []store.Turn {
	var out []store.Turn
	for _, t := range history {
		if t.Round == round {
			out = append(out, t)
		}
	}
	return out
}

func slotTurn(turns []store.Turn, slot int) (store.Turn, bool) {
	for _, t := range turns {
		if t.Slot == slot {
			return t, true
		}
	}
	return store.Turn{}, false
}

func promptTurn(t store.Turn) prompt.Turn {
	return prompt.Turn{Role: t.Role, Backend: t.Backend, Round: t.Round, Text: t.Content}
}

func toPromptTurns(turns []store.Turn) []prompt.Turn {
	out := make([]prompt.Turn, len(turns))
	for i, t := range turns {
		out[i] = promptTurn(t)
	}
	return out
}
