package http

import (
	"encoding/json"
	"net/http"

	"trivia-live-service/internal/app"
)

// HealthHandler is the liveness probe: process uptime, open transport
// connections and whether a session is currently active.
type HealthHandler struct {
	coordinator *app.Coordinator
	hub         *Hub
}

func NewHealthHandler(coordinator *app.Coordinator, hub *Hub) *HealthHandler {
	return &HealthHandler{coordinator: coordinator, hub: hub}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":        "ok",
		"uptimeSeconds": int(h.hub.Uptime().Seconds()),
		"connections":   h.hub.Connections(),
		"sessionActive": h.coordinator.Active(),
	})
}
