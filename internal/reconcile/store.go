package reconcile

import (
	"context"

	"ScrapSettle/internal/models"
)

// Store is the persistence surface the engine drives. The Postgres
// implementation lives in internal/store; tests substitute an in-memory one.
type Store interface {
	// WithTx runs fn inside one database transaction. Everything fn touches
	// commits together or not at all.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListPayments(ctx context.Context, orderID string) ([]*models.Payment, error)
	CreatePayment(ctx context.Context, p *models.Payment) error

	// ClaimRefundID stamps refundID on the payment unless one is already
	// persisted, and returns whichever id now owns the row. The claim commits
	// on its own, before any gateway call.
	ClaimRefundID(ctx context.Context, paymentID, refundID string) (string, error)
}

// Tx is the transactional slice of the store. Admission, transition, outbox
// and audit writes all go through one Tx so a failure rolls back the lot.
type Tx interface {
	// InsertProcessedEvent is insert-if-absent on the event key. The boolean
	// is the admission decision: false means the key was already claimed and
	// the cached outcome should be served.
	InsertProcessedEvent(ctx context.Context, ev *models.ProcessedEvent) (bool, error)
	GetProcessedEvent(ctx context.Context, eventKey string) (*models.ProcessedEvent, error)
	SetEventOutcome(ctx context.Context, eventKey, outcome, summary string) error

	// GetOrderForUpdate locks the order row. Every mutation path takes this
	// lock first, which serializes competing updates per order.
	GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error)
	GetPaymentByTxnID(ctx context.Context, txnID string) (*models.Payment, error)
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetSettledPayment(ctx context.Context, orderID string) (*models.Payment, error)

	UpdatePaymentStatus(ctx context.Context, paymentID string, from, to models.PaymentStatus) (int64, error)
	UpdateOrderSettlement(ctx context.Context, orderID string, fromPay, toPay models.OrderPaymentStatus, toStatus *models.OrderStatus, finalAmount *int64) (int64, error)
	UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) (int64, error)

	InsertOutbox(ctx context.Context, msg *models.OutboxMessage) error
	InsertAudit(ctx context.Context, entry *models.AuditEntry) error
}
