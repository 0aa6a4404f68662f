package hub

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/btouchard/beacon/internal/event"
)

const heartbeatInterval = 25 * time.Second

// SSEHandler streams hub events to one HTTP client as server-sent events,
// one JSON object per data frame. Comment frames are sent as heartbeats so
// intermediaries detect dead connections; clients ignore them.
func SSEHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sub := h.Subscribe()
		defer sub.Close()

		slog.Info("subscriber connected", "remote", r.RemoteAddr)
		defer slog.Info("subscriber disconnected", "remote", r.RemoteAddr)

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return

			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()

			case e, open := <-sub.Events():
				if !open {
					return
				}
				data, err := event.Encode(e)
				if err != nil {
					slog.Warn("skipping unencodable event", "error", err)
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
