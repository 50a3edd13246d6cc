package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ScrapSettle/internal/auth"
	"ScrapSettle/internal/models"
	"ScrapSettle/internal/notify"
	"ScrapSettle/internal/telemetry"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

var (
	ErrIllegalTransition = errors.New("illegal order transition")
	ErrPaidOrderCancel   = errors.New("paid order must be refunded, not cancelled")
)

// apply is the transition authority. It holds the order row lock for the
// whole decision, so competing updates for one order serialize here and each
// sees the state the previous one committed.
func (e *Engine) apply(ctx context.Context, tx Tx, ev Event) (*Result, []*models.AuditEntry, error) {
	order, err := tx.GetOrderForUpdate(ctx, ev.OrderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return e.conflict(ctx, ev, "unknown order", "")
		}
		return nil, nil, err
	}

	p, err := tx.GetPaymentByTxnID(ctx, ev.GatewayTxnID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		// Only the signed webhook may introduce a transaction we have no
		// record of. A client claiming an unknown transaction is reported,
		// not trusted.
		if ev.Source != models.SourceWebhook {
			return e.conflict(ctx, ev, "unknown transaction", "")
		}
		p = &models.Payment{
			PaymentID:    uuid.NewString(),
			OrderID:      order.OrderID,
			GatewayTxnID: ev.GatewayTxnID,
			Status:       models.PaymentPending,
			Amount:       ev.Amount,
			Currency:     order.Currency,
		}
		if err := tx.CreatePayment(ctx, p); err != nil {
			return nil, nil, err
		}
	case err != nil:
		return nil, nil, err
	}

	if p.OrderID != order.OrderID {
		return e.conflict(ctx, ev, "transaction belongs to another order", p.GatewayTxnID)
	}

	if p.Status == ev.Target {
		return &Result{
			Outcome: OutcomeAlreadyProcessed,
			Summary: fmt.Sprintf("payment %s already %s", p.GatewayTxnID, p.Status),
		}, nil, nil
	}

	if !p.Status.CanTransitionTo(ev.Target) {
		return e.conflict(ctx, ev, fmt.Sprintf("illegal payment transition %s to %s", p.Status, ev.Target), "")
	}

	if ev.Target == models.PaymentSuccess {
		if order.Status == models.OrderCancelled {
			return e.conflict(ctx, ev, "settlement for cancelled order", "")
		}
		if order.PaymentStatus == models.OrderRefunded {
			return e.conflict(ctx, ev, "settlement after refund", "")
		}
		if ev.Amount > 0 && p.Amount > 0 && ev.Amount != p.Amount {
			return e.conflict(ctx, ev, "amount mismatch", "")
		}
		settled, err := tx.GetSettledPayment(ctx, order.OrderID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, nil, err
		}
		if settled != nil && settled.PaymentID != p.PaymentID {
			return e.conflict(ctx, ev, "duplicate settlement attempt", settled.GatewayTxnID)
		}
	}

	if n, err := tx.UpdatePaymentStatus(ctx, p.PaymentID, p.Status, ev.Target); err != nil {
		return nil, nil, err
	} else if n == 0 {
		return nil, nil, errStale
	}

	var (
		toPay    models.OrderPaymentStatus
		toStatus *models.OrderStatus
		finalAmt *int64
		kind     string
	)
	switch ev.Target {
	case models.PaymentSuccess:
		toPay = models.OrderPaid
		if order.Status == models.OrderPending {
			s := models.OrderConfirmed
			toStatus = &s
		}
		amt := p.Amount
		if amt <= 0 {
			amt = ev.Amount
		}
		if amt > 0 {
			finalAmt = &amt
		}
		kind = notify.KindOrderConfirmed
	case models.PaymentFailed:
		if order.PaymentStatus == models.OrderPaid || order.PaymentStatus == models.OrderRefunded {
			// An attempt failed but the order is settled through another
			// payment. The row records it; the order stands.
			return &Result{
				Outcome: OutcomeApplied,
				Summary: fmt.Sprintf("attempt %s failed, order settled elsewhere", p.GatewayTxnID),
			}, nil, nil
		}
		toPay = models.OrderFailed
		kind = notify.KindPaymentFailed
	case models.PaymentRefunded:
		toPay = models.OrderRefunded
		if order.Status.CanTransitionTo(models.OrderCancelled) {
			s := models.OrderCancelled
			toStatus = &s
		}
		kind = notify.KindOrderRefunded
	}

	if n, err := tx.UpdateOrderSettlement(ctx, order.OrderID, order.PaymentStatus, toPay, toStatus, finalAmt); err != nil {
		return nil, nil, err
	} else if n == 0 {
		return nil, nil, errStale
	}

	order.PaymentStatus = toPay
	if toStatus != nil {
		order.Status = *toStatus
	}
	if finalAmt != nil {
		order.FinalAmount = finalAmt
	}

	amount := ev.Amount
	if amount <= 0 {
		amount = p.Amount
	}
	msg, err := notify.NewMessage(kind, order, amount)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.InsertOutbox(ctx, msg); err != nil {
		return nil, nil, err
	}

	var entries []*models.AuditEntry
	if ev.Target == models.PaymentRefunded {
		entries = append(entries, e.newAudit(ctx, order.OrderID, models.AuditRefund,
			"payment refunded", p.GatewayTxnID, "", ev.Actor))
	}

	return &Result{
		Outcome: OutcomeApplied,
		Summary: fmt.Sprintf("payment %s now %s", p.GatewayTxnID, ev.Target),
	}, entries, nil
}

// ApplyOrderTransition validates and applies a pure fulfillment move:
// confirm-to-in-progress, in-progress-to-completed, or an unpaid cancel.
// Settlement-coupled moves go through apply instead.
func (e *Engine) ApplyOrderTransition(ctx context.Context, identity auth.Identity, orderID string, target models.OrderStatus) (*models.Order, error) {
	var (
		updated *models.Order
		entry   *models.AuditEntry
	)
	err := e.withRetry(ctx, func(ctx context.Context) error {
		updated, entry = nil, nil
		return e.Store.WithTx(ctx, func(tx Tx) error {
			order, err := tx.GetOrderForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if target == models.OrderCancelled && order.PaymentStatus == models.OrderPaid {
				return ErrPaidOrderCancel
			}
			if !order.Status.CanTransitionTo(target) {
				return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, order.Status, target)
			}

			if n, err := tx.UpdateOrderStatus(ctx, orderID, order.Status, target); err != nil {
				return err
			} else if n == 0 {
				return errStale
			}

			prev := order.Status
			order.Status = target

			kind := notify.KindOrderFulfillment
			if target == models.OrderCancelled {
				kind = notify.KindOrderCancelled
			}
			msg, err := notify.NewMessage(kind, order, 0)
			if err != nil {
				return err
			}
			if err := tx.InsertOutbox(ctx, msg); err != nil {
				return err
			}

			entry = e.newAudit(ctx, orderID, models.AuditTransition,
				fmt.Sprintf("order %s to %s", prev, target), "", "", identity.UserID)
			if err := tx.InsertAudit(ctx, entry); err != nil {
				return err
			}
			updated = order
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if e.Audit != nil && entry != nil {
		e.Audit.Publish(entry)
	}
	slog.InfoContext(ctx, "order transition", "order_id", orderID, "to", target, "actor", identity.UserID)
	return updated, nil
}

func (e *Engine) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, errStale) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (e *Engine) conflict(ctx context.Context, ev Event, detail, competing string) (*Result, []*models.AuditEntry, error) {
	entry := e.newAudit(ctx, ev.OrderID, models.AuditConflict, detail, ev.GatewayTxnID, competing, ev.Actor)
	return &Result{Outcome: OutcomeConflict, Summary: detail}, []*models.AuditEntry{entry}, nil
}

func (e *Engine) newAudit(ctx context.Context, orderID, kind, detail, txnID, competing, actor string) *models.AuditEntry {
	traceID, spanID := telemetry.TraceInfo(ctx)
	return &models.AuditEntry{
		OrderID:        orderID,
		Kind:           kind,
		Detail:         detail,
		GatewayTxnID:   txnID,
		CompetingTxnID: competing,
		Actor:          actor,
		TraceID:        traceID,
		SpanID:         spanID,
		CreatedAt:      time.Now().UTC(),
	}
}
