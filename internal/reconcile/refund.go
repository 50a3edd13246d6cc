package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"ScrapSettle/internal/auth"
	"ScrapSettle/internal/metrics"
	"ScrapSettle/internal/models"

	"github.com/google/uuid"
)

// Refund runs the operator refund flow for an order. Concurrent requests for
// the same order collapse into one gateway call and share its result; a
// sequential repeat observes the refunded payment and answers without
// touching the gateway again.
func (e *Engine) Refund(ctx context.Context, identity auth.Identity, orderID string, amount int64) (*RefundResult, error) {
	if !identity.IsOperator() {
		return nil, auth.ErrForbidden
	}

	v, err, _ := e.refunds.Do(orderID, func() (any, error) {
		// Collapsed callers share this one execution, so it must not die
		// with whichever caller happened to arrive first.
		return e.refundOnce(context.WithoutCancel(ctx), identity, orderID, amount)
	})
	if err != nil {
		metrics.RefundsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	res := v.(*RefundResult)
	metrics.RefundsTotal.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

func (e *Engine) refundOnce(ctx context.Context, identity auth.Identity, orderID string, amount int64) (*RefundResult, error) {
	order, err := e.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	payments, err := e.Store.ListPayments(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var settled, refunded *models.Payment
	for _, p := range payments {
		switch p.Status {
		case models.PaymentSuccess:
			settled = p
		case models.PaymentRefunded:
			refunded = p
		}
	}

	if refunded != nil && settled == nil {
		res := &RefundResult{Outcome: RefundOutcomeAlreadyRefunded, Amount: refunded.Amount}
		if refunded.RefundID != nil {
			res.RefundID = *refunded.RefundID
		}
		return res, nil
	}
	if settled == nil {
		return nil, ErrNotRefundable
	}
	if order.Status == models.OrderCancelled {
		return nil, ErrOrderCancelled
	}

	if amount <= 0 {
		amount = settled.Amount
	}
	if amount > settled.Amount {
		return nil, ErrRefundAmount
	}

	// The refund id is persisted before the gateway sees it. A crash between
	// here and the transition resumes with the same id, and the gateway
	// dedups on it.
	refundID, err := e.Store.ClaimRefundID(ctx, settled.PaymentID, "rfnd_"+uuid.NewString())
	if err != nil {
		return nil, err
	}

	if _, err := e.Gateway.Refund(ctx, refundID, settled.GatewayTxnID, amount); err != nil {
		return nil, err
	}

	res, err := e.handleEvent(ctx, Event{
		Source:       models.SourceOperator,
		OrderID:      orderID,
		GatewayTxnID: settled.GatewayTxnID,
		Target:       models.PaymentRefunded,
		Amount:       amount,
		Actor:        identity.UserID,
	})
	if err != nil {
		return nil, err
	}

	switch res.Outcome {
	case OutcomeApplied:
		slog.InfoContext(ctx, "refund processed",
			"order_id", orderID, "refund_id", refundID, "amount", amount, "actor", identity.UserID)
		return &RefundResult{Outcome: RefundOutcomeRefunded, RefundID: refundID, Amount: amount}, nil
	case OutcomeAlreadyProcessed:
		return &RefundResult{Outcome: RefundOutcomeAlreadyRefunded, RefundID: refundID, Amount: amount}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotRefundable, res.Summary)
	}
}
