package store

import (
	"context"
	"errors"

	"ScrapSettle/internal/models"

	"github.com/jackc/pgx/v5"
)

// Tx is the transactional slice of the store handed to the engine. All
// methods run on the one underlying transaction opened by WithTx.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) InsertProcessedEvent(ctx context.Context, ev *models.ProcessedEvent) (bool, error) {
	res, err := t.tx.Exec(ctx, `
		INSERT INTO processed_events (event_key, source, gateway_txn_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (event_key) DO NOTHING
	`, ev.EventKey, ev.Source, ev.GatewayTxnID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (t *Tx) GetProcessedEvent(ctx context.Context, eventKey string) (*models.ProcessedEvent, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT event_key, source, gateway_txn_id, outcome, summary, first_seen_at
		FROM processed_events WHERE event_key=$1
	`, eventKey)

	var ev models.ProcessedEvent
	err := row.Scan(&ev.EventKey, &ev.Source, &ev.GatewayTxnID, &ev.Outcome, &ev.Summary, &ev.FirstSeenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}

func (t *Tx) SetEventOutcome(ctx context.Context, eventKey, outcome, summary string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE processed_events SET outcome=$2, summary=$3 WHERE event_key=$1
	`, eventKey, outcome, summary)
	return err
}

func (t *Tx) GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1 FOR UPDATE`, orderID)
	return scanOrder(row)
}

func (t *Tx) GetPaymentByTxnID(ctx context.Context, txnID string) (*models.Payment, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE gateway_txn_id=$1`, txnID)
	return scanPayment(row)
}

func (t *Tx) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments (
			payment_id, order_id, gateway_txn_id, status,
			amount, currency, refund_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
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

func (t *Tx) GetSettledPayment(ctx context.Context, orderID string) (*models.Payment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE order_id=$1 AND status='success'
	`, orderID)
	return scanPayment(row)
}

func (t *Tx) UpdatePaymentStatus(ctx context.Context, paymentID string, from, to models.PaymentStatus) (int64, error) {
	res, err := t.tx.Exec(ctx, `
		UPDATE payments SET status=$3, updated_at=now()
		WHERE payment_id=$1 AND status=$2
	`, paymentID, from, to)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (t *Tx) UpdateOrderSettlement(ctx context.Context, orderID string, fromPay, toPay models.OrderPaymentStatus, toStatus *models.OrderStatus, finalAmount *int64) (int64, error) {
	res, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET payment_status=$3,
			status=COALESCE($4, status),
			final_amount=COALESCE($5, final_amount),
			updated_at=now()
		WHERE order_id=$1 AND payment_status=$2
	`, orderID, fromPay, toPay, toStatus, finalAmount)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (t *Tx) UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) (int64, error) {
	res, err := t.tx.Exec(ctx, `
		UPDATE orders SET status=$3, updated_at=now()
		WHERE order_id=$1 AND status=$2
	`, orderID, from, to)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (t *Tx) InsertOutbox(ctx context.Context, msg *models.OutboxMessage) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox_messages (id, order_id, kind, payload)
		VALUES ($1,$2,$3,$4)
	`, msg.ID, msg.OrderID, msg.Kind, msg.Payload)
	return err
}

func (t *Tx) InsertAudit(ctx context.Context, entry *models.AuditEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO audit_log (
			order_id, kind, detail, gateway_txn_id, competing_txn_id,
			actor, trace_id, span_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		entry.OrderID,
		entry.Kind,
		entry.Detail,
		entry.GatewayTxnID,
		entry.CompetingTxnID,
		entry.Actor,
		entry.TraceID,
		entry.SpanID,
		entry.CreatedAt,
	)
	return err
}
