package notify

import (
	"encoding/json"
	"time"

	"ScrapSettle/internal/models"

	"github.com/google/uuid"
)

const (
	KindOrderConfirmed   = "order.confirmed"
	KindPaymentFailed    = "payment.failed"
	KindOrderRefunded    = "order.refunded"
	KindOrderCancelled   = "order.cancelled"
	KindOrderFulfillment = "order.fulfillment"
)

// Payload is the notification body carried through the outbox and onto the
// broker. Downstream consumers (email, SMS, analytics) key on kind.
type Payload struct {
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	Kind          string    `json:"kind"`
	OrderStatus   string    `json:"order_status"`
	PaymentStatus string    `json:"payment_status"`
	Amount        int64     `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewMessage builds the outbox row for one notification. It is inserted in
// the same transaction as the state change it announces.
func NewMessage(kind string, order *models.Order, amount int64) (*models.OutboxMessage, error) {
	body, err := json.Marshal(Payload{
		OrderID:       order.OrderID,
		UserID:        order.UserID,
		Kind:          kind,
		OrderStatus:   string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Amount:        amount,
		Currency:      order.Currency,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &models.OutboxMessage{
		ID:      uuid.NewString(),
		OrderID: order.OrderID,
		Kind:    kind,
		Payload: body,
	}, nil
}
