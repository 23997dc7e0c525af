package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lucasnoah/explainforge/internal/events"
)

// keepaliveInterval is how often an SSE comment line is written so idle
// streams survive proxies that reap quiet connections.
const keepaliveInterval = 15 * time.Second

// handleStream serves a Server-Sent Events stream of the session's bus
// events. Each bus event becomes one SSE message named by its type with a
// JSON body. When the workflow reaches a terminal state it sends a "done"
// event and closes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "session")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if present

	sendDone := func(reason string) {
		fmt.Fprintf(w, "event: done\ndata: %s\n\n", reason)
		flusher.Flush()
	}

	ch, cancel := s.bus.Subscribe(sid)
	defer cancel()

	// Push the headers out so the client sees the stream open immediately.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	tick := time.NewTicker(keepaliveInterval)
	defer tick.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-ch:
			if !open {
				sendDone("stream closed")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("event marshal failed", "type", ev.Type, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()

			if terminal, reason := isTerminal(ev); terminal {
				sendDone(reason)
				return
			}
		}
	}
}

// isTerminal reports whether the event marks the end of the workflow.
func isTerminal(ev events.Event) (bool, string) {
	switch ev.Type {
	case events.TypeWorkflowTerminated:
		return true, "workflow terminated"
	case events.TypeStateUpdate:
		status, _ := ev.Payload["status"].(string)
		if status == "completed" || status == "errored" {
			return true, "workflow " + status
		}
	}
	return false, ""
}
