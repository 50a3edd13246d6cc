package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ScrapSettle/internal/auth"
	"ScrapSettle/internal/gateway"
	"ScrapSettle/internal/metrics"
	"ScrapSettle/internal/models"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
)

var ErrValidation = errors.New("invalid event")

// errStale marks a guarded update that matched zero rows. The enclosing
// transaction is rolled back and the whole event is retried against fresh
// state.
var errStale = errors.New("stale state, retried")

// AuditSink receives committed audit entries for live operator feeds.
type AuditSink interface {
	Publish(entry *models.AuditEntry)
}

// Engine is the reconciliation coordinator. It is the only component that
// mutates order or payment state; handlers and workers hand it events and
// relay its answers.
type Engine struct {
	Store         Store
	Gateway       gateway.Client
	WebhookSecret string
	Currency      string
	Audit         AuditSink

	refunds singleflight.Group
}

// HandleWebhook verifies, parses and applies one gateway delivery. The
// signature check runs before anything is admitted so a forged request can
// never claim an event key.
func (e *Engine) HandleWebhook(ctx context.Context, rawBody []byte, signature, eventID string) (*Result, error) {
	if !gateway.VerifySignature(e.WebhookSecret, rawBody, signature) {
		slog.WarnContext(ctx, "webhook signature rejected")
		return nil, ErrBadSignature
	}

	ev, err := gateway.ParseWebhook(rawBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	target, ok := targetForEvent(ev.EventName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown event %q", ErrValidation, ev.EventName)
	}

	return e.handleEvent(ctx, Event{
		Source:       models.SourceWebhook,
		EventID:      eventID,
		OrderID:      ev.OrderReference,
		GatewayTxnID: ev.TransactionID,
		Target:       target,
		Amount:       ev.Amount,
		Actor:        "gateway",
	})
}

// HandleClientConfirmation applies the paying client's report of a checkout
// outcome. There is no signature on this path; trust anchors on the verified
// identity plus ownership of the order, checked before admission.
func (e *Engine) HandleClientConfirmation(ctx context.Context, identity auth.Identity, orderID, gatewayTxnID, reported string) (*Result, error) {
	var target models.PaymentStatus
	switch reported {
	case "", "success":
		target = models.PaymentSuccess
	case "failed":
		target = models.PaymentFailed
	default:
		return nil, fmt.Errorf("%w: unknown outcome %q", ErrValidation, reported)
	}
	if orderID == "" || gatewayTxnID == "" {
		return nil, fmt.Errorf("%w: order id and transaction id are required", ErrValidation)
	}

	order, err := e.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != identity.UserID {
		return nil, auth.ErrForbidden
	}

	return e.handleEvent(ctx, Event{
		Source:       models.SourceClient,
		OrderID:      orderID,
		GatewayTxnID: gatewayTxnID,
		Target:       target,
		Actor:        identity.UserID,
	})
}

func targetForEvent(name string) (models.PaymentStatus, bool) {
	switch name {
	case gateway.EventPaymentCaptured:
		return models.PaymentSuccess, true
	case gateway.EventPaymentFailed:
		return models.PaymentFailed, true
	case gateway.EventRefundProcessed:
		return models.PaymentRefunded, true
	}
	return "", false
}

// handleEvent runs admission, transition, outbox enqueue and outcome caching
// in one transaction. Storage failure rolls the lot back, including the
// event key, so a crashed attempt never burns its admission.
func (e *Engine) handleEvent(ctx context.Context, ev Event) (*Result, error) {
	var (
		res     *Result
		entries []*models.AuditEntry
	)

	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, entries = nil, nil
		err := e.Store.WithTx(ctx, func(tx Tx) error {
			admitted, err := tx.InsertProcessedEvent(ctx, &models.ProcessedEvent{
				EventKey:     ev.Key(),
				Source:       ev.Source,
				GatewayTxnID: ev.GatewayTxnID,
			})
			if err != nil {
				return err
			}
			if !admitted {
				prev, err := tx.GetProcessedEvent(ctx, ev.Key())
				if err != nil {
					return err
				}
				res = &Result{Outcome: replayOutcome(prev.Outcome), Summary: prev.Summary}
				return nil
			}

			r, audits, err := e.apply(ctx, tx, ev)
			if err != nil {
				return err
			}
			for _, entry := range audits {
				if err := tx.InsertAudit(ctx, entry); err != nil {
					return err
				}
			}
			if err := tx.SetEventOutcome(ctx, ev.Key(), string(r.Outcome), r.Summary); err != nil {
				return err
			}
			res, entries = r, audits
			return nil
		})
		if errors.Is(err, errStale) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	res.OrderID = ev.OrderID

	metrics.EventsTotal.WithLabelValues(string(ev.Source), string(res.Outcome)).Inc()
	for _, entry := range entries {
		if entry.Kind == models.AuditConflict {
			metrics.ConflictsTotal.WithLabelValues(entry.Detail).Inc()
		}
		if e.Audit != nil {
			e.Audit.Publish(entry)
		}
	}

	switch res.Outcome {
	case OutcomeApplied:
		slog.InfoContext(ctx, "event applied",
			"source", ev.Source, "order_id", ev.OrderID, "txn_id", ev.GatewayTxnID, "target", ev.Target)
	case OutcomeConflict:
		slog.WarnContext(ctx, "event conflict",
			"source", ev.Source, "order_id", ev.OrderID, "txn_id", ev.GatewayTxnID, "summary", res.Summary)
	}
	return res, nil
}

// replayOutcome is what a redelivery of an already-processed key is told.
// Conflicts keep answering conflict; anything applied reads as already done.
func replayOutcome(stored string) Outcome {
	if stored == string(OutcomeConflict) {
		return OutcomeConflict
	}
	return OutcomeAlreadyProcessed
}

// InitiatePayment opens a payment attempt for an order: one gateway
// transaction, one pending payment row. Retrying after a failed attempt
// yields a fresh row under a new transaction id.
func (e *Engine) InitiatePayment(ctx context.Context, identity auth.Identity, orderID string) (*models.Payment, error) {
	order, err := e.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != identity.UserID && !identity.IsOperator() {
		return nil, auth.ErrForbidden
	}
	if order.Status.IsTerminal() {
		return nil, ErrNotPayable
	}
	if order.PaymentStatus == models.OrderPaid || order.PaymentStatus == models.OrderRefunded {
		return nil, ErrNotPayable
	}

	txn, err := e.Gateway.CreateTransaction(ctx, orderID, order.EstimatedAmount, order.Currency)
	if err != nil {
		return nil, err
	}

	amount := txn.Amount
	if amount <= 0 {
		amount = order.EstimatedAmount
	}
	p := &models.Payment{
		PaymentID:    uuid.NewString(),
		OrderID:      orderID,
		GatewayTxnID: txn.TxnID,
		Status:       models.PaymentPending,
		Amount:       amount,
		Currency:     order.Currency,
	}
	if err := e.Store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "payment initiated", "order_id", orderID, "txn_id", p.GatewayTxnID, "amount", amount)
	return p, nil
}
