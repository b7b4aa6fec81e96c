package models

import (
	"testing"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(status OrderStatus) *Order {
	return &Order{
		ID:          "order-1",
		Status:      status,
		TotalAmount: decimal.RequireFromString("100.00"),
		Currency:    "USD",
		PaymentRef:  "pi_1",
	}
}

func TestOrder_Transition_RecordsTimeline(t *testing.T) {
	order := newTestOrder(StatusCreated)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	err := order.Transition(StatusPaymentConfirmed, Cause{Source: SourceMerchant, Message: "captured", At: at})

	require.NoError(t, err)
	assert.Equal(t, StatusPaymentConfirmed, order.Status)
	require.Len(t, order.Timeline, 1)
	assert.Equal(t, "status.payment_confirmed", order.Timeline[0].Type)
	assert.Equal(t, SourceMerchant, order.Timeline[0].Source)
	assert.Equal(t, at, order.UpdatedAt)
}

func TestOrder_Transition_Rejected(t *testing.T) {
	order := newTestOrder(StatusDelivered)

	err := order.Transition(StatusCancelled, Cause{Source: SourceAdmin})

	assert.True(t, customerror.IsConflict(err))
	assert.Equal(t, StatusDelivered, order.Status)
	assert.Empty(t, order.Timeline)
}

func TestOrder_Transition_SameStatusIsConflict(t *testing.T) {
	order := newTestOrder(StatusProcessing)

	err := order.Transition(StatusProcessing, Cause{Source: SourceProvider})

	assert.True(t, customerror.IsConflict(err))
	assert.Empty(t, order.Timeline)
}

func TestOrder_HoldAndRelease(t *testing.T) {
	order := newTestOrder(StatusPaymentConfirmed)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	expected := now.Add(time.Hour)

	require.NoError(t, order.HoldForFunds("not enough", expected, now))
	assert.Equal(t, StatusAwaitingFunds, order.Status)
	assert.Equal(t, FundingAwaiting, order.FundingStatus)
	require.NotNil(t, order.ExpectedFundingDate)
	assert.Equal(t, expected, *order.ExpectedFundingDate)

	require.NoError(t, order.ReleaseFundingHold(now.Add(time.Minute)))
	assert.Equal(t, StatusPaymentConfirmed, order.Status)
	assert.Equal(t, FundingNone, order.FundingStatus)
	assert.Nil(t, order.ExpectedFundingDate)
	assert.Empty(t, order.FundingHoldReason)
}

func TestOrder_AttachFulfillmentRequest(t *testing.T) {
	order := newTestOrder(StatusPaymentConfirmed)

	require.NoError(t, order.AttachFulfillmentRequest("req-1"))
	require.NoError(t, order.AttachFulfillmentRequest("req-1"))

	err := order.AttachFulfillmentRequest("req-2")
	assert.True(t, customerror.IsConflict(err))
	assert.Equal(t, "req-1", order.FulfillmentRequestID)
}

func TestOrder_ResetForDispatch(t *testing.T) {
	order := newTestOrder(StatusFailed)
	order.FulfillmentRequestID = "req-1"
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, order.ResetForDispatch(Cause{Source: SourceAdmin, Message: "retry", At: at}))

	assert.Equal(t, StatusPaymentConfirmed, order.Status)
	assert.Empty(t, order.FulfillmentRequestID)
	assert.Equal(t, 1, order.RetryCount)
	assert.Equal(t, "order-1-1", order.DispatchKey())
	assert.Len(t, order.Timeline, 2)
	assert.True(t, order.HasEvent(EventID("fulfillment.request_cleared", at)))
}

func TestOrder_ResetForDispatch_NonAdminRejected(t *testing.T) {
	order := newTestOrder(StatusFailed)

	err := order.ResetForDispatch(Cause{Source: SourceMerchant})

	assert.True(t, customerror.IsConflict(err))
	assert.Equal(t, 0, order.RetryCount)
}

func TestOrder_AppendEvent_Dedupes(t *testing.T) {
	order := newTestOrder(StatusProcessing)
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	event := NewTimelineEvent("shipment.shipped", SourceProvider, ts, "", nil)

	assert.True(t, order.AppendEvent(event))
	assert.False(t, order.AppendEvent(event))
	assert.Len(t, order.Timeline, 1)
}

func TestOrder_Record_SuffixesCollidingIDs(t *testing.T) {
	order := newTestOrder(StatusProcessing)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	order.Record("note", SourceAdmin, at, "first", nil)
	order.Record("note", SourceAdmin, at, "second", nil)

	require.Len(t, order.Timeline, 2)
	assert.NotEqual(t, order.Timeline[0].ID, order.Timeline[1].ID)
}

func TestOrder_MergeTracking(t *testing.T) {
	order := newTestOrder(StatusShipped)
	refs := []TrackingInfo{{Merchant: "acme", MerchantOrderID: "A1"}}

	assert.True(t, order.MergeTracking(refs))
	assert.False(t, order.MergeTracking(refs))

	refs[0].TrackingURL = "https://track.example.com/A1"
	assert.True(t, order.MergeTracking(refs))
	require.Len(t, order.Tracking, 1)
	assert.Equal(t, "https://track.example.com/A1", order.Tracking[0].TrackingURL)
}

func TestOrder_Clone_IsDeep(t *testing.T) {
	order := newTestOrder(StatusProcessing)
	order.Record("note", SourceAdmin, time.Now(), "x", map[string]string{"a": "b"})

	clone := order.Clone()
	clone.Timeline[0].Message = "changed"
	clone.LineItems = append(clone.LineItems, LineItem{ProductID: "p"})

	assert.Equal(t, "x", order.Timeline[0].Message)
	assert.Empty(t, order.LineItems)
}

func TestMoneyCents(t *testing.T) {
	assert.Equal(t, int64(10050), ToCents(decimal.RequireFromString("100.50")))
	assert.Equal(t, int64(10051), ToCents(decimal.RequireFromString("100.505")))
	assert.True(t, decimal.RequireFromString("100.50").Equal(FromCents(10050)))
}
