package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		name string
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{"pending confirms", OrderPending, OrderConfirmed, true},
		{"pending cancels", OrderPending, OrderCancelled, true},
		{"pending cannot complete", OrderPending, OrderCompleted, false},
		{"confirmed starts", OrderConfirmed, OrderInProgress, true},
		{"confirmed cancels", OrderConfirmed, OrderCancelled, true},
		{"in progress completes", OrderInProgress, OrderCompleted, true},
		{"in progress cannot cancel", OrderInProgress, OrderCancelled, false},
		{"completed is terminal", OrderCompleted, OrderCancelled, false},
		{"cancelled is terminal", OrderCancelled, OrderConfirmed, false},
		{"no self loop", OrderConfirmed, OrderConfirmed, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestPaymentStatusTransitions(t *testing.T) {
	cases := []struct {
		name string
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{"pending succeeds", PaymentPending, PaymentSuccess, true},
		{"pending fails", PaymentPending, PaymentFailed, true},
		{"pending cannot refund", PaymentPending, PaymentRefunded, false},
		{"success refunds", PaymentSuccess, PaymentRefunded, true},
		{"success cannot fail", PaymentSuccess, PaymentFailed, false},
		{"success cannot go pending", PaymentSuccess, PaymentPending, false},
		{"failed is terminal", PaymentFailed, PaymentSuccess, false},
		{"refunded is terminal", PaymentRefunded, PaymentSuccess, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, OrderCompleted.IsTerminal())
	assert.True(t, OrderCancelled.IsTerminal())
	assert.False(t, OrderPending.IsTerminal())
	assert.False(t, OrderInProgress.IsTerminal())

	assert.True(t, PaymentFailed.IsTerminal())
	assert.True(t, PaymentRefunded.IsTerminal())
	assert.False(t, PaymentPending.IsTerminal())
	assert.False(t, PaymentSuccess.IsTerminal())
}
