package store

import (
	"context"
	"database/sql"
	"errors"

	"ScrapSettle/internal/models"
	"ScrapSettle/internal/reconcile"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const orderColumns = `order_id, user_id, status, payment_status, estimated_amount, final_amount, currency, created_at, updated_at`

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var finalAmount sql.NullInt64

	err := row.Scan(
		&order.OrderID,
		&order.UserID,
		&order.Status,
		&order.PaymentStatus,
		&order.EstimatedAmount,
		&finalAmount,
		&order.Currency,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if finalAmount.Valid {
		order.FinalAmount = &finalAmount.Int64
	}
	return &order, nil
}

const paymentColumns = `payment_id, order_id, gateway_txn_id, status, amount, currency, refund_id, created_at, updated_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var refundID sql.NullString

	err := row.Scan(
		&p.PaymentID,
		&p.OrderID,
		&p.GatewayTxnID,
		&p.Status,
		&p.Amount,
		&p.Currency,
		&refundID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if refundID.Valid {
		p.RefundID = &refundID.String
	}
	return &p, nil
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO orders (
			order_id, user_id, status, payment_status,
			estimated_amount, final_amount, currency
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		order.OrderID,
		order.UserID,
		order.Status,
		order.PaymentStatus,
		order.EstimatedAmount,
		order.FinalAmount,
		order.Currency,
	)
	return err
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1`, orderID)
	return scanOrder(row)
}

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO payments (
			payment_id, order_id, gateway_txn_id, status,
			amount, currency, refund_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (gateway_txn_id) DO NOTHING
	`,
		p.PaymentID,
		p.OrderID,
		p.GatewayTxnID,
		p.Status,
		p.Amount,
		p.Currency,
		p.RefundID,
	)
	return err
}

func (s *Store) ListPayments(ctx context.Context, orderID string) ([]*models.Payment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE order_id=$1
		ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ClaimRefundID stamps refundID on the payment unless a previous claim is
// already persisted, then reports the id that owns the row. The write
// commits immediately so a crash mid-refund resumes with the same id.
func (s *Store) ClaimRefundID(ctx context.Context, paymentID, refundID string) (string, error) {
	_, err := s.Pool.Exec(ctx, `
		UPDATE payments SET refund_id=$2, updated_at=now()
		WHERE payment_id=$1 AND refund_id IS NULL
	`, paymentID, refundID)
	if err != nil {
		return "", err
	}

	row := s.Pool.QueryRow(ctx, `SELECT refund_id FROM payments WHERE payment_id=$1`, paymentID)
	var claimed sql.NullString
	if err := row.Scan(&claimed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", models.ErrNotFound
		}
		return "", err
	}
	if !claimed.Valid {
		return "", errors.New("refund id claim did not persist")
	}
	return claimed.String, nil
}

func (s *Store) ListAuditEntries(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, order_id, kind, detail, gateway_txn_id, competing_txn_id,
			actor, trace_id, span_id, created_at
		FROM audit_log
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(
			&e.ID,
			&e.OrderID,
			&e.Kind,
			&e.Detail,
			&e.GatewayTxnID,
			&e.CompetingTxnID,
			&e.Actor,
			&e.TraceID,
			&e.SpanID,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// ProcessOutbox claims a batch of unsent notifications, hands each to
// handle, and marks the handled ones sent, all inside one transaction.
// SKIP LOCKED keeps concurrent relays off each other's batches.
func (s *Store) ProcessOutbox(ctx context.Context, limit int, handle func(msg *models.OutboxMessage) error) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, order_id, kind, payload, created_at
		FROM outbox_messages
		WHERE processed_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, err
	}

	var messages []*models.OutboxMessage
	for rows.Next() {
		var m models.OutboxMessage
		if err := rows.Scan(&m.ID, &m.OrderID, &m.Kind, &m.Payload, &m.CreatedAt); err != nil {
			rows.Close()
			return 0, err
		}
		messages = append(messages, &m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, msg := range messages {
		if err := handle(msg); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox_messages SET processed_at=now() WHERE id=$1`, msg.ID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(messages), nil
}

// WithTx runs fn in one transaction; any error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(tx reconcile.Tx) error) error {
	pgtx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer pgtx.Rollback(ctx)

	if err := fn(&Tx{tx: pgtx}); err != nil {
		return err
	}
	return pgtx.Commit(ctx)
}
