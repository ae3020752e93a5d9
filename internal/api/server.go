// Package api is the HTTP transport surface. It carries no debate logic:
// handlers decode requests, call the orchestrator and map its errors to
// status codes.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sparlabs/rostrum/internal/orchestrator"
	"github.com/sparlabs/rostrum/internal/provider"
	"github.com/sparlabs/rostrum/internal/roles"
)

type Server struct {
	router   *chi.Mux
	orch     *orchestrator.Orchestrator
	backends *provider.Registry
	logger   *slog.Logger
	port     int
}

func NewServer(port int, orch *orchestrator.Orchestrator, backends *provider.Registry, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		orch:     orch,
		backends: backends,
		logger:   logger,
		port:     port,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/roles", s.listRoles)
		r.Get("/backends", s.listBackends)
		r.Get("/topics", s.listTopics)
		r.Route("/debates", func(r chi.Router) {
			r.Post("/", s.createDebate)
			r.Get("/", s.listDebates)
			r.Get("/{id}", s.getDebate)
			r.Get("/{id}/messages", s.getMessages)
			r.Post("/{id}/rounds/{round}", s.generateRound)
			r.Post("/{id}/complete", s.completeDebate)
		})
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	type roleInfo struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	}
	var out []roleInfo
	for _, id := range roles.IDs() {
		role, err := roles.Lookup(id)
		if err != nil {
			continue
		}
		out = append(out, roleInfo{ID: role.ID, DisplayName: role.DisplayName})
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (s *Server) listBackends(w http.ResponseWriter, r *http.Request) {
	backends := s.backends.Backends()
	if backends == nil {
		backends = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"backends": backends})
}

func (s *Server) listTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"topics": roles.ExampleTopics})
}

func (s *Server) createDebate(w http.ResponseWriter, r *http.Request) {
	var cfg orchestrator.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	sess, err := s.orch.CreateSession(r.Context(), cfg)
	if err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"debate": sess})
}

func (s *Server) listDebates(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.orch.ListSessions(r.Context())
	if err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"debates": sessions})
}

func (s *Server) getDebate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.debateID(w, r)
	if !ok {
		return
	}
	sess, err := s.orch.GetSession(r.Context(), id)
	if err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"debate": sess})
}

func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := s.debateID(w, r)
	if !ok {
		return
	}
	turns, err := s.orch.GetHistory(r.Context(), id)
	if err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": turns})
}

func (s *Server) generateRound(w http.ResponseWriter, r *http.Request) {
	id, ok := s.debateID(w, r)
	if !ok {
		return
	}
	round, err := strconv.Atoi(chi.URLParam(r, "round"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid round: %w", err))
		return
	}

	turns, err := s.orch.GenerateRound(r.Context(), id, round)
	if err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": turns})
}

func (s *Server) completeDebate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.debateID(w, r)
	if !ok {
		return
	}
	if err := s.orch.CompleteSession(r.Context(), id); err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) debateID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid debate id: %w", err))
		return uuid.Nil, false
	}
	return id, true
}

// writeOrchestratorError maps the orchestrator's error taxonomy to HTTP
// status codes.
func (s *Server) writeOrchestratorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, orchestrator.ErrInvalidConfig),
		errors.Is(err, orchestrator.ErrBackendUnavailable):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, orchestrator.ErrAlreadyCompleted),
		errors.Is(err, orchestrator.ErrRoundOutOfOrder):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, orchestrator.ErrProviderFailure):
		writeError(w, http.StatusBadGateway, err)
	default:
		s.logger.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
