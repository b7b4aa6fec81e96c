package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		name   string
		from   OrderStatus
		to     OrderStatus
		source EventSource
		want   bool
	}{
		{name: "confirm", from: StatusCreated, to: StatusPaymentConfirmed, source: SourceMerchant, want: true},
		{name: "admit", from: StatusPaymentConfirmed, to: StatusProcessing, source: SourceMerchant, want: true},
		{name: "hold", from: StatusPaymentConfirmed, to: StatusAwaitingFunds, source: SourceMerchant, want: true},
		{name: "release hold", from: StatusAwaitingFunds, to: StatusPaymentConfirmed, source: SourceMerchant, want: true},
		{name: "ship", from: StatusProcessing, to: StatusShipped, source: SourceProvider, want: true},
		{name: "deliver from processing", from: StatusProcessing, to: StatusDelivered, source: SourceProvider, want: true},
		{name: "regress shipped", from: StatusShipped, to: StatusProcessing, source: SourceProvider, want: false},
		{name: "leave delivered", from: StatusDelivered, to: StatusCancelled, source: SourceAdmin, want: false},
		{name: "leave cancelled", from: StatusCancelled, to: StatusPaymentConfirmed, source: SourceAdmin, want: false},
		{name: "skip admission", from: StatusCreated, to: StatusProcessing, source: SourceMerchant, want: false},
		{name: "reset failed by admin", from: StatusFailed, to: StatusPaymentConfirmed, source: SourceAdmin, want: true},
		{name: "reset failed by merchant", from: StatusFailed, to: StatusPaymentConfirmed, source: SourceMerchant, want: false},
		{name: "reset processing by admin", from: StatusProcessing, to: StatusPaymentConfirmed, source: SourceAdmin, want: true},
		{name: "reset processing by provider", from: StatusProcessing, to: StatusPaymentConfirmed, source: SourceProvider, want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to, tc.source))
		})
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusShipped.IsTerminal())
	assert.False(t, StatusAwaitingFunds.IsTerminal())
}

func TestOrderStatus_Valid(t *testing.T) {
	assert.True(t, StatusScheduled.Valid())
	assert.False(t, OrderStatus("PROCESSED").Valid())
}
