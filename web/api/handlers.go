package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forgeworks/appforge/internal/domain"
)

// RunResponse is the API response for a run
type RunResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Prompt      string `json:"prompt"`
	ProjectName string `json:"project_name,omitempty"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ArtifactResponse is the API response for one artifact record
type ArtifactResponse struct {
	ID        int64  `json:"id"`
	Stage     string `json:"stage"`
	Attempt   int    `json:"attempt"`
	Kind      string `json:"kind"`
	Inline    string `json:"inline,omitempty"`
	BlobRef   string `json:"blob_ref,omitempty"`
	CreatedAt string `json:"created_at"`
}

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

func runToResponse(r *domain.GenerationRun) RunResponse {
	return RunResponse{
		ID:          r.ID,
		Status:      string(r.Status),
		Prompt:      r.Prompt,
		ProjectName: r.ProjectName,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   r.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := s.store.ListRuns(0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp := StatusResponse{Total: len(runs)}
		for _, run := range runs {
			switch run.Status {
			case domain.RunPending:
				resp.Pending++
			case domain.RunRunning:
				resp.Running++
			case domain.RunCompleted:
				resp.Completed++
			case domain.RunFailed:
				resp.Failed++
			}
		}
		writeJSON(w, resp)
	}
}

// CreateRunRequest is the POST /api/runs body
type CreateRunRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			s.createRun(w, r)
			return
		}
		runs, err := s.store.ListRuns(100)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp := make([]RunResponse, 0, len(runs))
		for _, run := range runs {
			resp = append(resp, runToResponse(run))
		}
		writeJSON(w, resp)
	}
}

// createRun accepts a new generation run and drives it in the background.
// Progress flows over /api/events; the response carries the pending run.
func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	if s.launcher == nil {
		writeError(w, http.StatusNotImplemented, "run launching not enabled")
		return
	}
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	run, err := s.launcher.Start(req.Prompt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	go func() {
		// Detached from the request context: a consumer may stop
		// observing, but the run always proceeds to a terminal state.
		if err := s.launcher.Drive(context.Background(), run); err != nil {
			s.logger.Error("run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(runToResponse(run))
}

// runHandler serves /api/runs/{id}, /api/runs/{id}/artifacts and
// /api/runs/{id}/attempts
func (s *Server) runHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		parts := strings.SplitN(rest, "/", 2)
		id := parts[0]
		if id == "" {
			writeError(w, http.StatusBadRequest, "missing run id")
			return
		}

		if len(parts) == 1 {
			run, err := s.store.GetRun(id)
			if errors.Is(err, sql.ErrNoRows) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, runToResponse(run))
			return
		}

		switch parts[1] {
		case "artifacts":
			records, err := s.store.ListArtifacts(id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			resp := make([]ArtifactResponse, 0, len(records))
			for _, rec := range records {
				resp = append(resp, ArtifactResponse{
					ID:        rec.ID,
					Stage:     string(rec.Stage),
					Attempt:   rec.Attempt,
					Kind:      string(rec.Kind),
					Inline:    string(rec.Inline),
					BlobRef:   rec.BlobRef,
					CreatedAt: rec.CreatedAt.Format(time.RFC3339),
				})
			}
			writeJSON(w, resp)
		case "attempts":
			attempts, err := s.store.ListSandboxAttempts(id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, attempts)
		default:
			writeError(w, http.StatusNotFound, "unknown resource")
		}
	}
}
