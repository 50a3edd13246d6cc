package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ScrapSettle/internal/gateway"
	"ScrapSettle/internal/models"
)

const testSecret = "whsec_test"

// memStore mimics the Postgres layer closely enough for engine tests: one
// lock stands in for the order row lock, and every transaction works on a
// copy that only replaces live state on commit.
type memStore struct {
	mu       sync.Mutex
	orders   map[string]*models.Order
	payments map[string]*models.Payment
	events   map[string]*models.ProcessedEvent
	outbox   []*models.OutboxMessage
	audit    []*models.AuditEntry
	auditSeq int64
}

func newMemStore() *memStore {
	return &memStore{
		orders:   make(map[string]*models.Order),
		payments: make(map[string]*models.Payment),
		events:   make(map[string]*models.ProcessedEvent),
	}
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	if o.FinalAmount != nil {
		v := *o.FinalAmount
		c.FinalAmount = &v
	}
	return &c
}

func copyPayment(p *models.Payment) *models.Payment {
	c := *p
	if p.RefundID != nil {
		v := *p.RefundID
		c.RefundID = &v
	}
	return &c
}

func (m *memStore) WithTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		orders:   make(map[string]*models.Order, len(m.orders)),
		payments: make(map[string]*models.Payment, len(m.payments)),
		events:   make(map[string]*models.ProcessedEvent, len(m.events)),
	}
	for k, v := range m.orders {
		tx.orders[k] = copyOrder(v)
	}
	for k, v := range m.payments {
		tx.payments[k] = copyPayment(v)
	}
	for k, v := range m.events {
		c := *v
		tx.events[k] = &c
	}

	if err := fn(tx); err != nil {
		return err
	}

	m.orders = tx.orders
	m.payments = tx.payments
	m.events = tx.events
	m.outbox = append(m.outbox, tx.outbox...)
	for _, e := range tx.audit {
		m.auditSeq++
		e.ID = m.auditSeq
		m.audit = append(m.audit, e)
	}
	return nil
}

func (m *memStore) GetOrder(_ context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyOrder(o), nil
}

func (m *memStore) ListPayments(_ context.Context, orderID string) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Payment
	for _, p := range m.payments {
		if p.OrderID == orderID {
			out = append(out, copyPayment(p))
		}
	}
	return out, nil
}

func (m *memStore) CreatePayment(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payments {
		if existing.GatewayTxnID == p.GatewayTxnID {
			return nil
		}
	}
	c := copyPayment(p)
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.payments[c.PaymentID] = c
	return nil
}

func (m *memStore) ClaimRefundID(_ context.Context, paymentID, refundID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return "", models.ErrNotFound
	}
	if p.RefundID != nil {
		return *p.RefundID, nil
	}
	v := refundID
	p.RefundID = &v
	return refundID, nil
}

func (m *memStore) order(orderID string) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyOrder(m.orders[orderID])
}

func (m *memStore) paymentByTxn(txnID string) *models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.GatewayTxnID == txnID {
			return copyPayment(p)
		}
	}
	return nil
}

func (m *memStore) outboxMessages() []*models.OutboxMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.OutboxMessage(nil), m.outbox...)
}

func (m *memStore) auditEntries() []*models.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditEntry(nil), m.audit...)
}

type memTx struct {
	orders   map[string]*models.Order
	payments map[string]*models.Payment
	events   map[string]*models.ProcessedEvent
	outbox   []*models.OutboxMessage
	audit    []*models.AuditEntry
}

func (t *memTx) InsertProcessedEvent(_ context.Context, ev *models.ProcessedEvent) (bool, error) {
	if _, ok := t.events[ev.EventKey]; ok {
		return false, nil
	}
	c := *ev
	c.FirstSeenAt = time.Now().UTC()
	t.events[ev.EventKey] = &c
	return true, nil
}

func (t *memTx) GetProcessedEvent(_ context.Context, eventKey string) (*models.ProcessedEvent, error) {
	ev, ok := t.events[eventKey]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *ev
	return &c, nil
}

func (t *memTx) SetEventOutcome(_ context.Context, eventKey, outcome, summary string) error {
	ev, ok := t.events[eventKey]
	if !ok {
		return models.ErrNotFound
	}
	ev.Outcome = outcome
	ev.Summary = summary
	return nil
}

func (t *memTx) GetOrderForUpdate(_ context.Context, orderID string) (*models.Order, error) {
	o, ok := t.orders[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyOrder(o), nil
}

func (t *memTx) GetPaymentByTxnID(_ context.Context, txnID string) (*models.Payment, error) {
	for _, p := range t.payments {
		if p.GatewayTxnID == txnID {
			return copyPayment(p), nil
		}
	}
	return nil, models.ErrNotFound
}

func (t *memTx) CreatePayment(_ context.Context, p *models.Payment) error {
	for _, existing := range t.payments {
		if existing.GatewayTxnID == p.GatewayTxnID {
			return fmt.Errorf("duplicate transaction %s", p.GatewayTxnID)
		}
	}
	c := copyPayment(p)
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	t.payments[c.PaymentID] = c
	return nil
}

func (t *memTx) GetSettledPayment(_ context.Context, orderID string) (*models.Payment, error) {
	for _, p := range t.payments {
		if p.OrderID == orderID && p.Status == models.PaymentSuccess {
			return copyPayment(p), nil
		}
	}
	return nil, models.ErrNotFound
}

func (t *memTx) UpdatePaymentStatus(_ context.Context, paymentID string, from, to models.PaymentStatus) (int64, error) {
	p, ok := t.payments[paymentID]
	if !ok || p.Status != from {
		return 0, nil
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	return 1, nil
}

func (t *memTx) UpdateOrderSettlement(_ context.Context, orderID string, fromPay, toPay models.OrderPaymentStatus, toStatus *models.OrderStatus, finalAmount *int64) (int64, error) {
	o, ok := t.orders[orderID]
	if !ok || o.PaymentStatus != fromPay {
		return 0, nil
	}
	o.PaymentStatus = toPay
	if toStatus != nil {
		o.Status = *toStatus
	}
	if finalAmount != nil {
		v := *finalAmount
		o.FinalAmount = &v
	}
	o.UpdatedAt = time.Now().UTC()
	return 1, nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, orderID string, from, to models.OrderStatus) (int64, error) {
	o, ok := t.orders[orderID]
	if !ok || o.Status != from {
		return 0, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return 1, nil
}

func (t *memTx) InsertOutbox(_ context.Context, msg *models.OutboxMessage) error {
	c := *msg
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	t.outbox = append(t.outbox, &c)
	return nil
}

func (t *memTx) InsertAudit(_ context.Context, entry *models.AuditEntry) error {
	c := *entry
	t.audit = append(t.audit, &c)
	return nil
}

type fakeGateway struct {
	mu          sync.Mutex
	txnSeq      int
	refundCalls []string
	createErr   error
	refundErr   error
}

func (f *fakeGateway) CreateTransaction(_ context.Context, orderID string, amount int64, currency string) (*gateway.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.txnSeq++
	return &gateway.Transaction{
		TxnID:    fmt.Sprintf("gwtxn-%d", f.txnSeq),
		Status:   "created",
		Amount:   amount,
		Currency: currency,
	}, nil
}

func (f *fakeGateway) Refund(_ context.Context, refundID, txnID string, amount int64) (*gateway.RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	f.refundCalls = append(f.refundCalls, refundID)
	return &gateway.RefundResult{RefundID: refundID, Status: "processed"}, nil
}

func (f *fakeGateway) refunds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refundCalls...)
}

func newTestEngine(store *memStore, gw gateway.Client) *Engine {
	return &Engine{
		Store:         store,
		Gateway:       gw,
		WebhookSecret: testSecret,
		Currency:      "INR",
	}
}

func seedOrder(s *memStore, orderID, userID string, status models.OrderStatus, pay models.OrderPaymentStatus, amount int64) {
	now := time.Now().UTC()
	s.orders[orderID] = &models.Order{
		OrderID:         orderID,
		UserID:          userID,
		Status:          status,
		PaymentStatus:   pay,
		EstimatedAmount: amount,
		Currency:        "INR",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func seedPayment(s *memStore, paymentID, orderID, txnID string, status models.PaymentStatus, amount int64) {
	now := time.Now().UTC()
	s.payments[paymentID] = &models.Payment{
		PaymentID:    paymentID,
		OrderID:      orderID,
		GatewayTxnID: txnID,
		Status:       status,
		Amount:       amount,
		Currency:     "INR",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
