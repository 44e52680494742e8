package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// wsPollInterval is how often progress snapshots are pushed to
// websocket clients.
const wsPollInterval = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The service sits behind the platform gateway which enforces
	// origin policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleJobWS streams progress snapshots for one job until it reaches a
// terminal status, then sends the final snapshot and closes.
func (s *Server) handleJobWS(w http.ResponseWriter, r *http.Request) {
	record := s.getRecord(w, chi.URLParam(r, "id"))
	if record == nil {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(wsPollInterval)
	defer ticker.Stop()

	for {
		snap := record.Snapshot()
		if err := conn.WriteJSON(snap); err != nil {
			s.logger.Debug("websocket client gone", "job_id", record.ID(), "error", err)
			return
		}
		if snap.Status.Terminal() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(snap.Status))
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}

		select {
		case <-record.Done():
			// Loop once more to send the terminal snapshot.
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}
