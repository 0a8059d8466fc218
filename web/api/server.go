// Package api serves the HTTP surface: run inspection endpoints and the
// SSE progress stream.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/forgeworks/appforge/internal/domain"
	"github.com/forgeworks/appforge/internal/progress"
)

// Store interface for database operations
type Store interface {
	ListRuns(limit int) ([]*domain.GenerationRun, error)
	GetRun(id string) (*domain.GenerationRun, error)
	ListArtifacts(runID string) ([]*domain.ArtifactRecord, error)
	ListSandboxAttempts(runID string) ([]*domain.SandboxAttempt, error)
}

// Launcher accepts new runs. Start persists the pending run; Drive takes
// it to a terminal state.
type Launcher interface {
	Start(prompt string) (*domain.GenerationRun, error)
	Drive(ctx context.Context, run *domain.GenerationRun) error
}

// Server is the HTTP API server
type Server struct {
	store    Store
	launcher Launcher
	hub      *progress.Hub
	addr     string
	mux      *http.ServeMux
	logger   *zap.Logger
}

// NewServer creates a new API server around an already-running event hub.
// launcher may be nil, in which case POST /api/runs is rejected.
func NewServer(store Store, launcher Launcher, hub *progress.Hub, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:    store,
		launcher: launcher,
		hub:      hub,
		addr:     addr,
		mux:      http.NewServeMux(),
		logger:   logger.Named("api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/api/runs/", s.runHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("api listening", zap.String("addr", s.addr))
	return http.ListenAndServe(s.addr, s.mux)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
