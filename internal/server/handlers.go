package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nemoooooooooo/ring-generator-service-tools/internal/jobs"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/pipeline"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "status_code": status})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": s.cfg.ServiceName,
		"status":  "running",
		"endpoints": map[string]string{
			"health":   "/health",
			"run":      "POST /run",
			"jobs":     "POST /jobs",
			"sessions": "/sessions/{id}",
			"model":    "/sessions/{id}/model.glb",
			"schema":   "/tool/schema",
			"stats":    "/stats",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.manager.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"queue_size":        stats.QueueDepth,
		"active_jobs":       stats.ActiveJobs,
		"workers":           stats.Workers,
		"blender_available": s.blenderOK,
		"providers": map[string]bool{
			"claude":  s.cfg.ClaudeAvailable(),
			"gemini":  s.cfg.GeminiAvailable(),
			"ollama":  s.cfg.OllamaHost != "",
			"bedrock": s.cfg.BedrockModel != "",
		},
	})
}

// decodeRequest parses and validates a generation request body.
func decodeRequest(r *http.Request) (*pipeline.Request, error) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// submit admits a request and translates admission failures into HTTP
// errors. A nil record means the response was already written.
func (s *Server) submit(w http.ResponseWriter, r *http.Request) *jobs.Record {
	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	record, err := s.manager.Submit(req, req.RequestID)
	switch {
	case errors.Is(err, jobs.ErrQueueFull):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "job queue is full, retry later")
		return nil
	case errors.Is(err, jobs.ErrDuplicateJob):
		writeError(w, http.StatusConflict, err.Error())
		return nil
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	return record
}

// handleRun submits a job and blocks until it finishes or the sync wait
// timeout elapses. On timeout the job keeps running and the caller gets
// the job id to poll.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	record := s.submit(w, r)
	if record == nil {
		return
	}

	done, err := s.manager.WaitForCompletion(r.Context(), record.ID(), s.cfg.SyncWaitTimeout)
	if err != nil {
		if errors.Is(err, jobs.ErrWaitTimeout) {
			writeJSON(w, http.StatusGatewayTimeout, map[string]any{
				"error":      "generation still running, poll the job endpoint",
				"job_id":     record.ID(),
				"status_url": "/jobs/" + record.ID(),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, truncate(err.Error(), 200))
		return
	}

	snap := done.Snapshot()
	switch snap.Status {
	case jobs.StatusSucceeded:
		writeJSON(w, http.StatusOK, snap.Result)
	case jobs.StatusCancelled:
		writeError(w, http.StatusConflict, "job was cancelled")
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  snap.Error,
			"result": snap.Result,
		})
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	record := s.submit(w, r)
	if record == nil {
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     record.ID(),
		"status":     record.Status(),
		"status_url": "/jobs/" + record.ID(),
		"result_url": "/jobs/" + record.ID() + "/result",
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	snaps := s.manager.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  snaps,
		"count": len(snaps),
	})
}

// jobView is a record snapshot plus the compact request summary.
type jobView struct {
	jobs.Snapshot
	RequestSummary map[string]any `json:"request_summary,omitempty"`
}

func (s *Server) getRecord(w http.ResponseWriter, id string) *jobs.Record {
	record, err := s.manager.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil
	}
	return record
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	record := s.getRecord(w, chi.URLParam(r, "id"))
	if record == nil {
		return
	}
	view := jobView{Snapshot: record.Snapshot()}
	if req, ok := record.Request().(*pipeline.Request); ok {
		view.RequestSummary = req.Summary()
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	record := s.getRecord(w, chi.URLParam(r, "id"))
	if record == nil {
		return
	}
	snap := record.Snapshot()
	switch snap.Status {
	case jobs.StatusSucceeded:
		writeJSON(w, http.StatusOK, snap.Result)
	case jobs.StatusFailed:
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  snap.Error,
			"result": snap.Result,
		})
	case jobs.StatusCancelled:
		writeError(w, http.StatusConflict, "job was cancelled")
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":   snap.Status,
			"progress": snap.Progress,
			"detail":   snap.Detail,
		})
	}
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	record, err := s.manager.Cancel(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, jobs.ErrCannotCancelRunning):
		writeError(w, http.StatusConflict, "job is already running and cannot be cancelled")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record.Snapshot())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":       s.manager.Stats(),
		"operations": s.collector.Snapshot(),
	})
}
