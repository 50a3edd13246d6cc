package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by storage lookups for rows that do not exist, so
// callers never branch on driver sentinels.
var ErrNotFound = errors.New("not found")

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderConfirmed, OrderCancelled},
	OrderConfirmed:  {OrderInProgress, OrderCancelled},
	OrderInProgress: {OrderCompleted},
	OrderCompleted:  {},
	OrderCancelled:  {},
}

func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

type OrderPaymentStatus string

const (
	OrderUnpaid   OrderPaymentStatus = "pending"
	OrderPaid     OrderPaymentStatus = "paid"
	OrderFailed   OrderPaymentStatus = "failed"
	OrderRefunded OrderPaymentStatus = "refunded"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentSuccess  PaymentStatus = "success"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:  {PaymentSuccess, PaymentFailed},
	PaymentSuccess:  {PaymentRefunded},
	PaymentFailed:   {},
	PaymentRefunded: {},
}

func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

func (s PaymentStatus) IsTerminal() bool {
	return len(paymentTransitions[s]) == 0
}

type EventSource string

const (
	SourceClient   EventSource = "client"
	SourceWebhook  EventSource = "webhook"
	SourceOperator EventSource = "operator"
)

// Order holds the booking plus its settlement summary. Amounts are paise.
type Order struct {
	OrderID         string
	UserID          string
	Status          OrderStatus
	PaymentStatus   OrderPaymentStatus
	EstimatedAmount int64
	FinalAmount     *int64
	Currency        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Payment is one gateway attempt. An order may accumulate several rows
// (failed attempts keep their own gateway_txn_id), at most one of them
// settled.
type Payment struct {
	PaymentID    string
	OrderID      string
	GatewayTxnID string
	Status       PaymentStatus
	Amount       int64
	Currency     string
	RefundID     *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProcessedEvent caches the outcome served to redeliveries of an event key.
type ProcessedEvent struct {
	EventKey     string
	Source       EventSource
	GatewayTxnID string
	Outcome      string
	Summary      string
	FirstSeenAt  time.Time
}

type OutboxMessage struct {
	ID          string
	OrderID     string
	Kind        string
	Payload     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

type AuditEntry struct {
	ID             int64
	OrderID        string
	Kind           string
	Detail         string
	GatewayTxnID   string
	CompetingTxnID string
	Actor          string
	TraceID        string
	SpanID         string
	CreatedAt      time.Time
}

const (
	AuditConflict   = "conflict"
	AuditRefund     = "refund"
	AuditTransition = "transition"
	AuditSecurity   = "security"
)
