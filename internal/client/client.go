// Package client provides a typed HTTP client for the ring generation
// server, used by the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nemoooooooooo/ring-generator-service-tools/internal/pipeline"
)

// ErrJobPending is returned by Result while the job has not reached a
// terminal status yet.
var ErrJobPending = errors.New("job still pending")

// Client talks to the generation server's JSON API.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// New creates a client. If endpoint is empty, RINGGEN_SERVER_URL is
// used, falling back to localhost. The timeout covers synchronous /run
// calls and is configurable via RINGGEN_CLIENT_TIMEOUT.
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("RINGGEN_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8003"
	}
	endpoint = strings.TrimRight(endpoint, "/")

	timeout := 10 * time.Minute
	if t := os.Getenv("RINGGEN_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint: endpoint,
		apiKey:   os.Getenv("RINGGEN_API_KEY"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ModelURL returns the download URL for a session's generated GLB.
func (c *Client) ModelURL(sessionID string) string {
	return c.endpoint + "/sessions/" + sessionID + "/model.glb"
}

// SessionURL returns the URL of a session's persisted metadata.
func (c *Client) SessionURL(sessionID string) string {
	return c.endpoint + "/sessions/" + sessionID
}

// ErrorInfo mirrors the server's failure payload on job records.
type ErrorInfo struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	Reason     string `json:"reason,omitempty"`
}

// Job is the client-side view of a job record.
type Job struct {
	ID             string           `json:"id"`
	Status         string           `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
	Progress       int              `json:"progress"`
	Detail         string           `json:"detail"`
	Result         *pipeline.Result `json:"result,omitempty"`
	Error          *ErrorInfo       `json:"error,omitempty"`
	RequestSummary map[string]any   `json:"request_summary,omitempty"`
}

// Terminal reports whether the job has finished in any way.
func (j Job) Terminal() bool {
	switch j.Status {
	case "succeeded", "failed", "cancelled":
		return true
	}
	return false
}

// SubmitAck is the response to an asynchronous submission.
type SubmitAck struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
	ResultURL string `json:"result_url"`
}

// Stats is the /stats payload.
type Stats struct {
	Jobs struct {
		QueueDepth int `json:"queue_depth"`
		ActiveJobs int `json:"active_jobs"`
		Records    int `json:"records"`
		Workers    int `json:"workers"`
	} `json:"jobs"`
	Operations json.RawMessage `json:"operations"`
}

// Health is the /health payload.
type Health struct {
	Status           string          `json:"status"`
	QueueSize        int             `json:"queue_size"`
	ActiveJobs       int             `json:"active_jobs"`
	Workers          int             `json:"workers"`
	BlenderAvailable bool            `json:"blender_available"`
	Providers        map[string]bool `json:"providers"`
}

// apiError is a non-2xx response body.
type apiError struct {
	Err        string `json:"error"`
	StatusCode int    `json:"status_code"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Err != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, apiErr.Err)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(raw))
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Submit queues a generation job and returns immediately.
func (c *Client) Submit(ctx context.Context, req pipeline.Request) (*SubmitAck, error) {
	var ack SubmitAck
	if err := c.do(ctx, http.MethodPost, "/jobs", req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Run submits a job and blocks until the server reports the result. The
// server may answer with a gateway timeout for long generations; callers
// wanting progress should use Submit plus WatchProgress instead.
func (c *Client) Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	var result pipeline.Result
	if err := c.do(ctx, http.MethodPost, "/run", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJob fetches one job record.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Result fetches the final result of a job. While the job is still
// queued or running it returns ErrJobPending.
func (c *Client) Result(ctx context.Context, id string) (*pipeline.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/jobs/"+id+"/result", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var result pipeline.Result
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		return &result, nil
	case http.StatusAccepted:
		return nil, ErrJobPending
	default:
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Err != "" {
			return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, apiErr.Err)
		}
		return nil, fmt.Errorf("server error: %s - %s", resp.Status, string(raw))
	}
}

// Cancel cancels a queued job.
func (c *Client) Cancel(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodDelete, "/jobs/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns all tracked jobs, newest first.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	var out struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/jobs", nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Stats returns server runtime statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// WatchProgress streams job snapshots over the websocket endpoint until
// the job reaches a terminal status. onUpdate runs for every snapshot;
// returning an error from it aborts the watch.
func (c *Client) WatchProgress(ctx context.Context, id string, onUpdate func(Job) error) (*Job, error) {
	wsEndpoint := c.endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-API-Key", c.apiKey)
	}
	conn, _, err := dialer.DialContext(ctx, wsEndpoint+"/jobs/"+id+"/ws", header)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var job Job
		if err := conn.ReadJSON(&job); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read progress: %w", err)
		}
		if err := onUpdate(job); err != nil {
			return nil, err
		}
		if job.Terminal() {
			return &job, nil
		}
	}
}
