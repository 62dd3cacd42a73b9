package handler

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	ws "github.com/dukerupert/eventboard/internal/websocket"
)

type HealthHandler struct {
	db     *sql.DB
	hub    *ws.Hub
	logger *slog.Logger
}

func NewHealthHandler(db *sql.DB, hub *ws.Hub, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, hub: hub, logger: logger}
}

// Check reports whether the database answers, along with the live
// notification stream numbers.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := map[string]any{"status": "ok"}
	if h.hub != nil {
		resp["websocket_clients"] = h.hub.ClientCount()
		resp["websocket_dropped"] = h.hub.Dropped()
	}

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Error("health check failed", "error", err)
		resp["status"] = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
