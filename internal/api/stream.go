package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// heartbeatInterval is the interval for sending SSE heartbeat comments.
const heartbeatInterval = 20 * time.Second

// snapshotEvent is the first event on a stream: every line not saved yet.
type snapshotEvent struct {
	Lines []string `json:"lines"`
}

// handleStream handles GET /api/v1/stream (SSE).
//
// The stream opens with a "snapshot" event holding the current lines, then
// sends one "line" event per new line. Lines emitted between the snapshot
// and the subscription may appear in both; clients dedupe by text if they
// care.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}

	// Subscribe before taking the snapshot so no line is lost in between.
	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	current, err := s.logs.Current(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprintf(w, ": connected\n\n")
	writeSSE(w, "", "snapshot", snapshotEvent{Lines: current.Lines})
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			writeSSE(w, fmt.Sprint(e.Seq), "line", e)
			flusher.Flush()

		case <-ticker.C:
			fmt.Fprintf(w, ":\n\n")
			flusher.Flush()

		case <-ctx.Done():
			return

		case <-sub.Done():
			return
		}
	}
}

// writeSSE writes a single event in SSE format. An empty id is omitted.
func writeSSE(w http.ResponseWriter, id, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
