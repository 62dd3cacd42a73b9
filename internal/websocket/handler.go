package websocket

import (
	"log/slog"
	"net/http"
	"strconv"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades GET /ws and streams change notifications. The
// optional event query parameter narrows the stream to one event. Origins
// are checked against originPatterns; an empty list only admits same-host
// pages.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var watch int64
		if s := r.URL.Query().Get("event"); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil || id <= 0 {
				http.Error(w, "invalid event id", http.StatusBadRequest)
				return
			}
			watch = id
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			logger.Warn("websocket accept failed", "error", err)
			return
		}

		NewClient(hub, conn, watch).Run(r.Context())
	}
}
