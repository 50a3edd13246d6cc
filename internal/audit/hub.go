package audit

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"ScrapSettle/internal/models"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

type streamEntry struct {
	OrderID        string `json:"orderId"`
	Kind           string `json:"kind"`
	Detail         string `json:"detail"`
	GatewayTxnID   string `json:"gatewayTxnId,omitempty"`
	CompetingTxnID string `json:"competingTxnId,omitempty"`
	Actor          string `json:"actor,omitempty"`
	TraceID        string `json:"traceId,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

// Hub fans committed audit entries out to connected operator sockets.
// A connection that cannot keep up is dropped rather than buffered.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *Hub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		_ = conn.Close()
	}
}

func (h *Hub) Publish(entry *models.AuditEntry) {
	payload, err := json.Marshal(streamEntry{
		OrderID:        entry.OrderID,
		Kind:           entry.Kind,
		Detail:         entry.Detail,
		GatewayTxnID:   entry.GatewayTxnID,
		CompetingTxnID: entry.CompetingTxnID,
		Actor:          entry.Actor,
		TraceID:        entry.TraceID,
		CreatedAt:      entry.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		slog.Error("audit marshal failed", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(h.conns, conn)
			_ = conn.Close()
		}
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
