package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Bessima/gift-fulfillment/internal/clients/payment"
	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func confirmation(ref, total string) models.PaymentConfirmation {
	return models.PaymentConfirmation{
		PaymentRef: ref,
		Amount:     amount(total),
		Currency:   "usd",
		LineItems:  []models.LineItem{{ProductID: "sku-1", Quantity: 1, Price: amount(total)}},
		ShippingAddress: models.ShippingAddress{
			FirstName: "Ann", LastName: "Lee", AddressLine1: "1 Main St", City: "Austin", ZipCode: "78701", Country: "US",
		},
	}
}

func TestCaptureCoordinator_ConfirmPayment(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.payment.On("Capture", mock.Anything, "pi_1", sameAmount(amount("40"))).
		Return(&payment.Intent{ID: "pi_1", Status: payment.IntentSucceeded, AmountReceived: 4000}, nil).Once()

	order, err := f.services.Capture.ConfirmPayment(context.Background(), confirmation("pi_1", "40"))

	require.NoError(t, err)
	assert.Equal(t, models.StatusPaymentConfirmed, order.Status)
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)
	assert.Equal(t, "USD", order.Currency)

	dispatchJobs := f.jobs(models.JobDispatch)
	require.Len(t, dispatchJobs, 1)
	assert.Equal(t, "dispatch:"+order.ID+"-0", dispatchJobs[0].DedupeKey)
	f.payment.AssertExpectations(t)
}

func TestCaptureCoordinator_ConfirmPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.payment.On("Capture", mock.Anything, "pi_1", mock.Anything).
		Return(&payment.Intent{ID: "pi_1", Status: payment.IntentSucceeded, AmountReceived: 4000}, nil).Once()

	first, err := f.services.Capture.ConfirmPayment(context.Background(), confirmation("pi_1", "40"))
	require.NoError(t, err)
	second, err := f.services.Capture.ConfirmPayment(context.Background(), confirmation("pi_1", "40"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.jobs(models.JobDispatch), 1)
	f.payment.AssertNumberOfCalls(t, "Capture", 1)
}

func TestCaptureCoordinator_ConfirmPaymentCaptureFails(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.payment.On("Capture", mock.Anything, "pi_1", mock.Anything).
		Return(nil, customerror.NewExternalServiceError("payment", 402, false, errors.New("card declined")))

	order, err := f.services.Capture.ConfirmPayment(context.Background(), confirmation("pi_1", "40"))

	require.Error(t, err)
	assert.Nil(t, order)
	stored, getErr := f.storage.Orders.GetByPaymentRef(context.Background(), "pi_1")
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.False(t, stored.NeedsReview)
	assert.Empty(t, f.jobs(models.JobDispatch))
}

func TestCaptureCoordinator_ConfirmPaymentAmountMismatch(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.payment.On("Capture", mock.Anything, "pi_1", mock.Anything).
		Return(&payment.Intent{ID: "pi_1", Status: payment.IntentSucceeded, AmountReceived: 3000}, nil)

	_, err := f.services.Capture.ConfirmPayment(context.Background(), confirmation("pi_1", "40"))

	assert.True(t, customerror.IsConflict(err))
	stored, getErr := f.storage.Orders.GetByPaymentRef(context.Background(), "pi_1")
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.True(t, stored.NeedsReview)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)
}

func TestCaptureCoordinator_ConfirmPaymentValidation(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	tests := []struct {
		name string
		in   models.PaymentConfirmation
	}{
		{name: "no payment ref", in: confirmation("", "40")},
		{name: "zero amount", in: confirmation("pi_1", "0")},
		{name: "no line items", in: func() models.PaymentConfirmation {
			in := confirmation("pi_1", "40")
			in.LineItems = nil
			return in
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.services.Capture.ConfirmPayment(context.Background(), tt.in)
			assert.True(t, customerror.IsValidation(err))
		})
	}
	f.payment.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything)
}

func registerContributions(t *testing.T, f *fixture, groupGiftID string, amounts ...string) {
	t.Helper()
	for i, a := range amounts {
		_, err := f.services.Capture.RegisterContribution(context.Background(), models.ContributionHold{
			GroupGiftID:   groupGiftID,
			ContributorID: string(rune('a' + i)),
			PaymentRef:    groupGiftID + "_pi_" + string(rune('a'+i)),
			Amount:        amount(a),
		})
		require.NoError(t, err)
	}
}

func groupCapture(groupGiftID, total string) models.GroupGiftCapture {
	in := confirmation("", total)
	return models.GroupGiftCapture{
		GroupGiftID:     groupGiftID,
		Total:           amount(total),
		Currency:        "usd",
		LineItems:       in.LineItems,
		ShippingAddress: in.ShippingAddress,
	}
}

func TestCaptureCoordinator_CaptureGroupGift(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	registerContributions(t, f, "gg1", "25", "25")
	f.payment.On("Capture", mock.Anything, mock.Anything, sameAmount(amount("25"))).
		Return(&payment.Intent{Status: payment.IntentSucceeded, AmountReceived: 2500}, nil).Twice()

	order, err := f.services.Capture.CaptureGroupGift(context.Background(), groupCapture("gg1", "50"))

	require.NoError(t, err)
	assert.Equal(t, models.StatusPaymentConfirmed, order.Status)
	assert.Equal(t, "gg1", order.GroupGiftID)
	assert.Equal(t, models.GroupGiftPaymentRef("gg1"), order.PaymentRef)

	contributions, err := f.storage.Contributions.ListByGroupGift(context.Background(), "gg1")
	require.NoError(t, err)
	for _, contribution := range contributions {
		assert.Equal(t, models.ContributionCaptured, contribution.Status)
	}
	assert.Len(t, f.jobs(models.JobDispatch), 1)

	_, err = f.services.Capture.RegisterContribution(context.Background(), models.ContributionHold{
		GroupGiftID: "gg1", PaymentRef: "late", Amount: amount("5"),
	})
	assert.True(t, customerror.IsConflict(err))
}

func TestCaptureCoordinator_CaptureGroupGiftCompensatesOnFailure(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	registerContributions(t, f, "gg1", "25", "25")
	f.payment.On("Capture", mock.Anything, "gg1_pi_a", mock.Anything).
		Return(&payment.Intent{Status: payment.IntentSucceeded, AmountReceived: 2500}, nil).Once()
	f.payment.On("Capture", mock.Anything, "gg1_pi_b", mock.Anything).
		Return(nil, customerror.NewExternalServiceError("payment", 402, false, errors.New("declined"))).Once()
	f.payment.On("Refund", mock.Anything, "gg1_pi_a", sameAmount(amount("25"))).Return(nil).Once()
	f.payment.On("Void", mock.Anything, "gg1_pi_b").Return(nil).Once()

	order, err := f.services.Capture.CaptureGroupGift(context.Background(), groupCapture("gg1", "50"))

	require.Error(t, err)
	require.NotNil(t, order)
	assert.Equal(t, models.StatusFailed, order.Status)
	assert.Equal(t, models.PaymentRefunded, order.PaymentStatus)
	assert.False(t, order.NeedsReview)
	assert.Empty(t, f.jobs(models.JobDispatch))

	contributions, err := f.storage.Contributions.ListByGroupGift(context.Background(), "gg1")
	require.NoError(t, err)
	require.Len(t, contributions, 2)
	assert.Equal(t, models.ContributionRefunded, contributions[0].Status)
	assert.Equal(t, models.ContributionVoided, contributions[1].Status)
	f.payment.AssertExpectations(t)

	// the dispatcher refuses a group gift whose contributions were not all captured
	_, _, err = f.services.Dispatcher.Dispatch(context.Background(), order)
	assert.True(t, customerror.IsConflict(err))
	f.fulfillment.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestCaptureCoordinator_CaptureGroupGiftFlagsFailedCompensation(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	registerContributions(t, f, "gg1", "25", "25")
	f.payment.On("Capture", mock.Anything, "gg1_pi_a", mock.Anything).
		Return(&payment.Intent{Status: payment.IntentSucceeded, AmountReceived: 2500}, nil).Once()
	f.payment.On("Capture", mock.Anything, "gg1_pi_b", mock.Anything).
		Return(nil, errors.New("timeout")).Once()
	f.payment.On("Refund", mock.Anything, "gg1_pi_a", mock.Anything).Return(errors.New("refund rejected")).Once()
	f.payment.On("Void", mock.Anything, "gg1_pi_b").Return(nil).Once()

	order, err := f.services.Capture.CaptureGroupGift(context.Background(), groupCapture("gg1", "50"))

	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, order.Status)
	assert.True(t, order.NeedsReview)
	assert.True(t, order.HasEvent(findEventID(order, "payment.compensated")))
}

func TestCaptureCoordinator_CaptureGroupGiftRequiresFullCoverage(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	registerContributions(t, f, "gg1", "25")

	_, err := f.services.Capture.CaptureGroupGift(context.Background(), groupCapture("gg1", "50"))

	assert.True(t, customerror.IsValidation(err))
	_, getErr := f.storage.Orders.GetByPaymentRef(context.Background(), models.GroupGiftPaymentRef("gg1"))
	assert.True(t, customerror.IsNotFound(getErr))
	f.payment.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything)
}

func TestCaptureCoordinator_RecoverIsIdempotent(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	in := confirmation("pi_lost", "40")
	f.payment.On("Retrieve", mock.Anything, "pi_lost").Return(&payment.Intent{
		ID:       "pi_lost",
		Status:   payment.IntentSucceeded,
		Amount:   4000,
		Currency: "usd",
		Metadata: payment.Metadata{LineItems: in.LineItems, ShippingAddress: in.ShippingAddress},
	}, nil).Once()

	first, recovered, err := f.services.Capture.Recover(context.Background(), "pi_lost")
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Equal(t, models.StatusPaymentConfirmed, first.Status)
	assert.True(t, first.TotalAmount.Equal(amount("40")))

	second, recovered, err := f.services.Capture.Recover(context.Background(), "pi_lost")
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.Equal(t, first.ID, second.ID)

	orders, err := f.storage.Orders.ListByStatus(context.Background(), []models.OrderStatus{models.StatusPaymentConfirmed}, 0)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	f.payment.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything)
}

func TestCaptureCoordinator_RecoverRejectsCanceledIntent(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.payment.On("Retrieve", mock.Anything, "pi_x").Return(&payment.Intent{ID: "pi_x", Status: payment.IntentCanceled}, nil)

	_, _, err := f.services.Capture.Recover(context.Background(), "pi_x")

	assert.True(t, customerror.IsConflict(err))
}

func findEventID(order *models.Order, eventType string) string {
	for _, event := range order.Timeline {
		if event.Type == eventType {
			return event.ID
		}
	}
	return ""
}
