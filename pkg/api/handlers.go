package api

import (
	"encoding/json"
	"net/http"

	"gitevents/pkg/events"
	"gitevents/pkg/storage"

	"github.com/rs/zerolog"
)

// HealthHandler reports liveness. It does not touch the store.
type HealthHandler struct{}

func (HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// EventsHandler lists the most recent stored records, newest first.
type EventsHandler struct {
	Store  storage.EventStore
	Limit  int
	Logger zerolog.Logger
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Store == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}

	limit := h.Limit
	if limit == 0 {
		limit = storage.DefaultRecentLimit
	}
	records, err := h.Store.RecentEvents(r.Context(), limit)
	if err != nil {
		h.Logger.Error().Err(err).Msg("list events failed")
		http.Error(w, "list events failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []events.Record{}
	}

	writeJSON(w, records)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
