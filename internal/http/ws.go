package http

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamAudit upgrades an operator connection onto the live audit feed. The
// role check runs before the upgrade so an unauthorized caller never holds a
// socket.
func (h *Handler) StreamAudit(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !identity.IsOperator() {
		writeError(w, http.StatusForbidden, "operator role required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "audit stream upgrade failed", "error", err)
		return
	}
	h.Hub.Add(conn)

	// The feed is write-only. The read loop exists to notice the peer going
	// away.
	go func() {
		defer h.Hub.Remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
