// Package web exposes the fleet view and audit trail over HTTP.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"hostsentry/internal/engine"
	"hostsentry/internal/remediation"
)

// Trail is the read side of the audit store.
type Trail interface {
	RecentOutcomes(ctx context.Context, limit int) ([]remediation.Outcome, error)
	RecentDispatches(ctx context.Context, limit int) ([]engine.DispatchRecord, error)
}

// Server serves the read-only JSON API. It never mutates engine state.
type Server struct {
	engine *engine.Engine
	trail  Trail
	log    *zap.Logger
	mux    *http.ServeMux
}

func NewServer(eng *engine.Engine, trail Trail, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		engine: eng,
		trail:  trail,
		log:    log.With(zap.String("component", "web")),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/fleet", s.handleFleet)
	s.mux.HandleFunc("GET /api/hosts/{id}", s.handleHost)
	s.mux.HandleFunc("GET /api/conditions", s.handleConditions)
	s.mux.HandleFunc("GET /api/audit", s.handleAudit)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Health()
	status := http.StatusOK
	if !h.Alive {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, h)
}

func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	view := s.engine.FleetView()
	if view == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no cycle completed yet")
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHost(w http.ResponseWriter, r *http.Request) {
	view := s.engine.FleetView()
	if view == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no cycle completed yet")
		return
	}
	id := r.PathValue("id")
	state, ok := view.Hosts[id]
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown host "+id)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleConditions(w http.ResponseWriter, r *http.Request) {
	conds := s.engine.RecentConditions()
	if conds == nil {
		conds = []engine.Condition{}
	}
	s.writeJSON(w, http.StatusOK, conds)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.trail == nil {
		s.writeError(w, http.StatusNotFound, "audit trail not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	outcomes, err := s.trail.RecentOutcomes(r.Context(), limit)
	if err != nil {
		s.log.Error("audit query failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	dispatches, err := s.trail.RecentDispatches(r.Context(), limit)
	if err != nil {
		s.log.Error("audit query failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"outcomes":   outcomes,
		"dispatches": dispatches,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
