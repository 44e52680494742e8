package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemoooooooooo/ring-generator-service-tools/internal/client"
)

// captureStdout runs fn and returns everything it printed.
func captureStdout(t *testing.T, fn func() error) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	runErr := fn()
	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, runErr)
	return string(out)
}

func withStubServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	origClient, origVerbose := apiClient, verbose
	t.Cleanup(func() { apiClient, verbose = origClient, origVerbose })
	apiClient = client.New(ts.URL)
}

func succeededJobJSON(id string) string {
	return fmt.Sprintf(`{
		"id": %[1]q,
		"status": "succeeded",
		"created_at": %[2]q,
		"progress": 100,
		"detail": "completed",
		"request_summary": {"prompt": "art deco emerald ring", "llm_name": "claude"},
		"result": {
			"success": true,
			"session_id": "s_abc123",
			"glb_path": "cas://deadbeef",
			"spatial_report": "MESH: Band",
			"retry_log": [{"attempt": 1, "success": true, "code_length": 512, "error_text": "", "timestamp": ""}],
			"cost_summary": {"total_input_tokens": 10, "total_output_tokens": 20, "total_usd": 0.05, "calls": 1},
			"llm_used": "claude",
			"glb_size": 4096
		}
	}`, id, time.Now().UTC().Format(time.RFC3339))
}

func TestShowJobPrintsModelURL(t *testing.T) {
	withStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, succeededJobJSON("job-1"))
	})

	out := captureStdout(t, func() error {
		return showJob(context.Background(), "job-1")
	})

	assert.Contains(t, out, "/sessions/s_abc123/model.glb")
	assert.NotContains(t, out, "cas://")
	// Spatial report and per-attempt lines only appear with --verbose.
	assert.NotContains(t, out, "MESH: Band")
}

func TestShowJobVerbose(t *testing.T) {
	withStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, succeededJobJSON("job-1"))
	})
	verbose = true

	out := captureStdout(t, func() error {
		return showJob(context.Background(), "job-1")
	})

	assert.Contains(t, out, "MESH: Band")
	assert.Contains(t, out, "attempt 1: ok")
}

func TestListJobsVerboseShowsPrompt(t *testing.T) {
	withStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jobs": [%s], "count": 1}`, succeededJobJSON("job-1"))
	})
	verbose = true

	out := captureStdout(t, func() error {
		return listJobs(context.Background())
	})

	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "art deco emerald ring")
}
