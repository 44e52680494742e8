package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// sessionDir resolves a session id to its on-disk directory. Ids that
// would escape the sessions root are rejected.
func (s *Server) sessionDir(id string) (string, bool) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", false
	}
	return filepath.Join(s.cfg.SessionsDir, id), true
}

// handleSession serves the persisted session.json for a finished
// generation, including code versions and the retry log.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.sessionDir(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	data, err := os.ReadFile(filepath.Join(dir, "session.json"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleSessionModel serves the generated GLB.
func (s *Server) handleSessionModel(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.sessionDir(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "model not found")
		return
	}
	glbPath := filepath.Join(dir, "model.glb")
	if _, err := os.Stat(glbPath); err != nil {
		writeError(w, http.StatusNotFound, "model not found")
		return
	}
	w.Header().Set("Content-Type", "model/gltf-binary")
	http.ServeFile(w, r, glbPath)
}

// handleToolSchema describes the generation tool for pipeline
// registries that discover capabilities over HTTP.
func (s *Server) handleToolSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name": "ring-generate",
		"description": "Generates a 3D ring GLB from a text prompt and/or reference image. " +
			"Uses LLM to produce Blender geometry code with auto-retry on failure.",
		"input_schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt":       map[string]any{"type": "string", "description": "ring description; empty for a classic solitaire"},
				"llm_name":     map[string]any{"type": "string", "enum": []string{"claude", "claude-sonnet", "claude-opus", "gemini", "ollama", "bedrock"}},
				"image_b64":    map[string]any{"type": "string", "description": "base64-encoded reference image"},
				"image_mime":   map[string]any{"type": "string"},
				"request_id":   map[string]any{"type": "string"},
				"max_retries":  map[string]any{"type": "integer", "minimum": 1},
				"max_cost_usd": map[string]any{"type": "number", "exclusiveMinimum": 0},
			},
		},
		"output_schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"success":          map[string]any{"type": "boolean"},
				"session_id":       map[string]any{"type": "string"},
				"glb_path":         map[string]any{"type": "string"},
				"code":             map[string]any{"type": "string"},
				"modules":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"spatial_report":   map[string]any{"type": "string"},
				"retry_log":        map[string]any{"type": "array"},
				"cost_summary":     map[string]any{"type": "object"},
				"needs_validation": map[string]any{"type": "boolean"},
			},
		},
	})
}
