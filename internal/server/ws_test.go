package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemoooooooooo/ring-generator-service-tools/internal/config"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/jobs"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/pipeline"
)

func TestJobWebsocketStreamsUntilTerminal(t *testing.T) {
	exec := &stubExecutor{delay: 50 * time.Millisecond}
	ts := newTestServer(t, exec, config.Config{})

	resp := postJSON(t, ts.URL+"/jobs", pipeline.Request{LLMName: "claude", RequestID: "ws-1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/jobs/ws-1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	type progressView struct {
		Status   jobs.Status `json:"status"`
		Progress int         `json:"progress"`
	}

	deadline := time.Now().Add(5 * time.Second)
	var last progressView
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var snap progressView
		if err := conn.ReadJSON(&snap); err != nil {
			break
		}
		last = snap
		if snap.Status.Terminal() {
			break
		}
	}
	assert.Equal(t, jobs.StatusSucceeded, last.Status)
	assert.Equal(t, 100, last.Progress)
}

func TestJobWebsocketUnknownJob(t *testing.T) {
	ts := newTestServer(t, &stubExecutor{}, config.Config{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/jobs/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
