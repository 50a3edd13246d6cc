package reconcile

import (
	"crypto/sha256"
	"encoding/hex"

	"ScrapSettle/internal/models"
)

// Event is one normalized update, whichever door it came through.
type Event struct {
	Source       models.EventSource
	EventID      string // gateway event id, when the envelope carried one
	OrderID      string
	GatewayTxnID string
	Target       models.PaymentStatus
	Amount       int64
	Actor        string
}

// Key is the dedup identity of the event. The gateway's own event id wins
// when present; otherwise the key is derived from what the event claims, so
// a retried delivery hashes to the same key while events from different
// sources keep distinct keys.
func (e Event) Key() string {
	if e.EventID != "" {
		return "evt:" + e.EventID
	}
	sum := sha256.Sum256([]byte(string(e.Source) + "|" + e.GatewayTxnID + "|" + string(e.Target)))
	return "drv:" + hex.EncodeToString(sum[:])
}
