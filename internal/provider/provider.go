// Package provider talks to the external text-generation backends.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Backend ids understood by the service. These match the model names the
// setup UI offers.
const (
	BackendOpenAI = "gpt-4o-mini"
	BackendGemini = "gemini-2.5-flash"
)

// Generation failure classes. All of them mean the turn was not produced;
// callers retry at the round level, they are not retried here.
var (
	ErrUnavailable    = errors.New("provider unavailable")
	ErrRejected       = errors.New("provider rejected request")
	ErrTimeout        = errors.New("provider timed out")
	ErrUnknownBackend = errors.New("unknown backend")
)

// Client is a single backend connection.
type Client interface {
	Generate(ctx context.Context, system, prompt string, temperature float64, maxTokens int) (string, error)
}

// Generator dispatches generation calls by backend id. The orchestrator
// depends on this interface, never on a concrete client.
type Generator interface {
	Generate(ctx context.Context, backend, system, prompt string, temperature float64, maxTokens int) (string, error)
	Available(backend string) bool
}

// Registry maps backend ids to configured clients. Built once at process
// start; read-only afterwards.
type Registry struct {
	clients map[string]Client
}

// NewRegistry builds a registry from the configured clients. A nil client is
// treated as "backend known but no credentials configured".
func NewRegistry(openai, gemini Client) *Registry {
	clients := map[string]Client{}
	if openai != nil {
		clients[BackendOpenAI] = openai
	}
	if gemini != nil {
		clients[BackendGemini] = gemini
	}
	return &Registry{clients: clients}
}

// Known reports whether the backend id is one the service understands at all,
// regardless of credentials.
func Known(backend string) bool {
	return backend == BackendOpenAI || backend == BackendGemini
}

// Available reports whether the backend has a configured client.
func (r *Registry) Available(backend string) bool {
	_, ok := r.clients[backend]
	return ok
}

// Backends lists the backend ids with configured credentials, in a stable
// order.
func (r *Registry) Backends() []string {
	var out []string
	for _, id := range []string{BackendOpenAI, BackendGemini} {
		if r.Available(id) {
			out = append(out, id)
		}
	}
	return out
}

// Generate dispatches to the backend's client.
func (r *Registry) Generate(ctx context.Context, backend, system, prompt string, temperature float64, maxTokens int) (string, error) {
	c, ok := r.clients[backend]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
	return c.Generate(ctx, system, prompt, temperature, maxTokens)
}

// classify maps a transport-level error to a failure class, preserving the
// underlying cause.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
