package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	mw "github.com/vidhive/vidhive/internal/api/middleware"
	"github.com/vidhive/vidhive/internal/api/response"
	"github.com/vidhive/vidhive/internal/feed"
)

const heartbeatInterval = 25 * time.Second

// NewEventsHandler returns the handler for GET /api/v1/videos/events, a
// Server-Sent Events stream of the tenant's change feed. Delivery follows
// the feed contract: at-least-once, no ordering, no replay. Clients fetch
// the list first and reconcile live events against it by version.
func NewEventsHandler(fd feed.Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Streaming not supported", nil)
			return
		}

		events, unsubscribe, err := fd.Subscribe(r.Context(), tenantID)
		if err != nil {
			response.Error(w, http.StatusServiceUnavailable, "FEED_UNAVAILABLE", "Change feed is unavailable", nil)
			return
		}
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case event, open := <-events:
				if !open {
					return
				}
				payload, err := json.Marshal(event)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: change\ndata: %s\n\n", payload)
				flusher.Flush()
			}
		}
	}
}
