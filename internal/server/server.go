// Package server exposes the control API: health, per-graph status and
// snapshots, stimulus injection, and the degraded-mode override.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mindmesh/pulse/internal/engine"
	"github.com/mindmesh/pulse/internal/stimulus"
)

// Server is the pulse control API server.
type Server struct {
	fleet   *engine.Fleet
	logger  *slog.Logger
	router  chi.Router
	started time.Time
}

// New creates a Server over the given fleet.
func New(fleet *engine.Fleet, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		fleet:   fleet,
		logger:  logger,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves the API on addr until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	s.logger.Info("control api listening", "addr", addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errc
		return ctx.Err()
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Post("/stimuli", s.handleStimulus)

		r.Route("/graphs/{graph}", func(r chi.Router) {
			r.Get("/status", s.handleGraphStatus)
			r.Get("/snapshot", s.handleSnapshot)
			r.Post("/degraded", s.handleForceDegraded)
			r.Delete("/degraded", s.handleReleaseDegraded)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"graphs": s.fleet.Names(),
		"uptime": time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.Status())
}

func (s *Server) handleGraphStatus(w http.ResponseWriter, r *http.Request) {
	e := s.fleet.Engine(chi.URLParam(r, "graph"))
	if e == nil {
		writeError(w, http.StatusNotFound, "unknown graph")
		return
	}
	writeJSON(w, http.StatusOK, e.Status())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	e := s.fleet.Engine(chi.URLParam(r, "graph"))
	if e == nil {
		writeError(w, http.StatusNotFound, "unknown graph")
		return
	}
	writeJSON(w, http.StatusOK, e.Snapshot())
}

func (s *Server) handleStimulus(w http.ResponseWriter, r *http.Request) {
	var env stimulus.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := env.Normalize(time.Now()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.fleet.Route(env); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": env.ID})
}

func (s *Server) handleForceDegraded(w http.ResponseWriter, r *http.Request) {
	e := s.fleet.Engine(chi.URLParam(r, "graph"))
	if e == nil {
		writeError(w, http.StatusNotFound, "unknown graph")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "operator"
	}

	e.Supervisor().Force(req.Reason, time.Now())
	s.logger.Warn("degraded mode forced", "graph", chi.URLParam(r, "graph"), "reason", req.Reason)
	writeJSON(w, http.StatusOK, e.Supervisor().Status())
}

func (s *Server) handleReleaseDegraded(w http.ResponseWriter, r *http.Request) {
	e := s.fleet.Engine(chi.URLParam(r, "graph"))
	if e == nil {
		writeError(w, http.StatusNotFound, "unknown graph")
		return
	}
	e.Supervisor().Release(time.Now())
	s.logger.Info("degraded mode released", "graph", chi.URLParam(r, "graph"))
	writeJSON(w, http.StatusOK, e.Supervisor().Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
