package gateway

import (
	"encoding/json"
	"errors"
)

const (
	SignatureHeader = "X-Gateway-Signature"
	EventIDHeader   = "X-Gateway-Event-Id"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundProcessed = "refund.processed"
)

// WebhookEvent is the envelope the gateway delivers, at least once, per
// transaction outcome.
type WebhookEvent struct {
	EventName      string `json:"event_name"`
	TransactionID  string `json:"gateway_transaction_id"`
	OrderReference string `json:"order_reference"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	if ev.EventName == "" || ev.TransactionID == "" || ev.OrderReference == "" {
		return nil, errors.New("webhook event missing required fields")
	}
	return &ev, nil
}
