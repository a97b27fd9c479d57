package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/walletscope/service/metrics"
	natspkg "github.com/brojonat/walletscope/service/nats"
)

const keepaliveInterval = 10 * time.Second

// sseEventName maps a published event kind to the SSE event name clients
// listen for.
func sseEventName(kind natspkg.EventKind) string {
	switch kind {
	case natspkg.EventSessionUpdated:
		return "session"
	case natspkg.EventNavigateLogin:
		return "login"
	case natspkg.EventReload:
		return "reload"
	default:
		return string(kind)
	}
}

// handleStreamSession streams session snapshots and navigation signals.
// GET /api/stream/session
//
// The current snapshot is sent right after the connected event so clients
// never start from a blank dashboard.
func handleStreamSession(source natspkg.Source, sessions SessionService, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		flusher, _ := w.(http.Flusher)
		flush := func() {
			if flusher != nil {
				flusher.Flush()
			}
		}

		events, err := source.Events(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "failed to subscribe to session events", "error", err)
			writeError(w, "failed to subscribe", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flush()

		if m != nil {
			m.RecordSSEConnectionChange(1)
			defer m.RecordSSEConnectionChange(-1)
		}

		logger.DebugContext(ctx, "SSE client connected", "remote_addr", r.RemoteAddr)

		send := func(name string, payload interface{}) bool {
			data, err := json.Marshal(payload)
			if err != nil {
				logger.WarnContext(ctx, "failed to marshal event", "event", name, "error", err)
				return true
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
				return false
			}
			flush()
			if m != nil {
				m.RecordSSEEventSent(name)
			}
			return true
		}

		if !send("connected", map[string]string{"stream": "session"}) {
			return
		}
		if !send("session", sessions.Session()) {
			return
		}

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush()

			case event, ok := <-events:
				if !ok {
					return
				}
				var payload interface{} = event
				if event.Kind == natspkg.EventSessionUpdated && event.Session != nil {
					payload = event.Session
				}
				if !send(sseEventName(event.Kind), payload) {
					return
				}

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected", "remote_addr", r.RemoteAddr)
				return
			}
		}
	})
}
