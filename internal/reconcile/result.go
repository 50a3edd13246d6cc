package reconcile

import "errors"

type Outcome string

const (
	// OutcomeApplied means this event performed the transition.
	OutcomeApplied Outcome = "applied"
	// OutcomeAlreadyProcessed means the state already reflects the event, via
	// an earlier delivery or another source reporting the same fact.
	OutcomeAlreadyProcessed Outcome = "already_processed"
	// OutcomeConflict means the event contradicts recorded state. Conflicts
	// are audited and never retried.
	OutcomeConflict Outcome = "conflict"
)

type Result struct {
	Outcome Outcome
	OrderID string
	Summary string
}

type RefundOutcome string

const (
	RefundOutcomeRefunded        RefundOutcome = "refunded"
	RefundOutcomeAlreadyRefunded RefundOutcome = "already_refunded"
)

type RefundResult struct {
	Outcome  RefundOutcome
	RefundID string
	Amount   int64
}

var (
	ErrBadSignature   = errors.New("webhook signature mismatch")
	ErrNotRefundable  = errors.New("order has no settled payment to refund")
	ErrRefundAmount   = errors.New("refund amount exceeds settled amount")
	ErrOrderCancelled = errors.New("order is cancelled")
	ErrNotPayable     = errors.New("order cannot accept a payment attempt")
)
