package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/clients/payment"
	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CaptureCoordinator turns authorized payments into payment_confirmed orders.
type CaptureCoordinator struct {
	ledger        *Ledger
	orders        repository.OrderStorageRepositoryI
	contributions repository.ContributionStorageRepositoryI
	payment       payment.PaymentClientI
	now           func() time.Time
}

func NewCaptureCoordinator(
	ledger *Ledger,
	orders repository.OrderStorageRepositoryI,
	contributions repository.ContributionStorageRepositoryI,
	client payment.PaymentClientI,
) *CaptureCoordinator {
	return &CaptureCoordinator{
		ledger:        ledger,
		orders:        orders,
		contributions: contributions,
		payment:       client,
		now:           time.Now,
	}
}

// ConfirmPayment creates the order for a single buyer's authorization and captures it.
// A payment reference that already has an order returns that order.
func (c *CaptureCoordinator) ConfirmPayment(ctx context.Context, in models.PaymentConfirmation) (*models.Order, error) {
	if in.PaymentRef == "" {
		return nil, customerror.NewValidationError("payment reference is required")
	}
	if !in.Amount.IsPositive() {
		return nil, customerror.NewValidationError("amount must be positive")
	}
	if len(in.LineItems) == 0 {
		return nil, customerror.NewValidationError("at least one line item is required")
	}

	existing, err := c.orders.GetByPaymentRef(ctx, in.PaymentRef)
	switch {
	case err == nil:
		if existing.Status != models.StatusCreated {
			return existing, nil
		}
		// created but never captured: resume
		return c.captureSingle(ctx, existing)
	case !customerror.IsNotFound(err):
		return nil, err
	}

	order, _, err := c.create(ctx, c.newOrder(in.PaymentRef, in.Amount, in.Currency, in.LineItems, in.ShippingAddress, ""))
	if err != nil {
		return nil, err
	}
	if order.Status != models.StatusCreated {
		return order, nil
	}
	return c.captureSingle(ctx, order)
}

func (c *CaptureCoordinator) newOrder(
	paymentRef string, amount decimal.Decimal, currency string,
	items []models.LineItem, shipping models.ShippingAddress, groupGiftID string,
) *models.Order {
	now := c.now()
	order := &models.Order{
		ID:              uuid.NewString(),
		Status:          models.StatusCreated,
		TotalAmount:     amount,
		Currency:        strings.ToUpper(currency),
		LineItems:       items,
		ShippingAddress: shipping,
		PaymentRef:      paymentRef,
		PaymentStatus:   models.PaymentAuthorized,
		GroupGiftID:     groupGiftID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.Record("order.created", models.SourceMerchant, now, "", map[string]string{"payment_ref": paymentRef})
	return order
}

// create stores the order. When another request stored one for the same payment
// reference first, that order is returned and created is false.
func (c *CaptureCoordinator) create(ctx context.Context, order *models.Order) (stored *models.Order, created bool, err error) {
	err = c.orders.Create(ctx, order)
	if customerror.IsConflict(err) {
		existing, getErr := c.orders.GetByPaymentRef(ctx, order.PaymentRef)
		if getErr != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return order, true, nil
}

func (c *CaptureCoordinator) captureSingle(ctx context.Context, order *models.Order) (*models.Order, error) {
	intent, err := c.payment.Capture(ctx, order.PaymentRef, order.TotalAmount)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		c.fail(ctx, order.ID, "payment capture failed: "+err.Error(), false, nil)
		return nil, fmt.Errorf("capture payment %s: %w", order.PaymentRef, err)
	}

	received := intent.ReceivedDecimal()
	if intent.AmountReceived > 0 && !received.Equal(order.TotalAmount) {
		message := fmt.Sprintf("captured %s but order total is %s", received.StringFixed(2), order.TotalAmount.StringFixed(2))
		c.fail(ctx, order.ID, message, true, func(o *models.Order) {
			o.PaymentStatus = models.PaymentPaid
		})
		return nil, customerror.NewConflictError(message)
	}

	return c.confirm(ctx, order.ID, "payment captured", map[string]string{"payment_ref": order.PaymentRef}, true)
}

// confirm marks the payment as paid and moves the order to payment_confirmed. With
// enqueue set a dispatch job is queued; the scheduler's sweep picks the order up if that fails.
func (c *CaptureCoordinator) confirm(ctx context.Context, orderID, message string, data any, enqueue bool) (*models.Order, error) {
	at := c.now()
	confirmed, err := c.ledger.Update(ctx, orderID, func(o *models.Order) error {
		o.PaymentStatus = models.PaymentPaid
		o.UpdatedAt = at
		if o.Status == models.StatusPaymentConfirmed {
			return nil
		}
		return o.Transition(models.StatusPaymentConfirmed, models.Cause{
			Source:  models.SourceMerchant,
			Message: message,
			Data:    data,
			At:      at,
		})
	})
	if err != nil {
		return nil, err
	}

	if enqueue {
		if err := c.ledger.EnqueueDispatch(ctx, confirmed); err != nil {
			logger.Log.Error("dispatch job was not queued", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	return confirmed, nil
}

func (c *CaptureCoordinator) fail(ctx context.Context, orderID, message string, needsReview bool, mutate func(o *models.Order)) *models.Order {
	at := c.now()
	failed, err := c.ledger.Update(ctx, orderID, func(o *models.Order) error {
		if needsReview {
			o.NeedsReview = true
		}
		if mutate != nil {
			mutate(o)
		}
		o.UpdatedAt = at
		if o.Status == models.StatusFailed {
			return nil
		}
		return o.Transition(models.StatusFailed, models.Cause{Source: models.SourceMerchant, Message: message, At: at})
	})
	if err != nil {
		logger.Log.Error("could not mark order as failed", zap.String("order_id", orderID), zap.Error(err))
		return nil
	}
	return failed
}

// RegisterContribution сохраняет удержанный (авторизованный, но не списанный) взнос группового подарка.
func (c *CaptureCoordinator) RegisterContribution(ctx context.Context, hold models.ContributionHold) (*models.Contribution, error) {
	if hold.GroupGiftID == "" || hold.PaymentRef == "" {
		return nil, customerror.NewValidationError("group gift and payment reference are required")
	}
	if !hold.Amount.IsPositive() {
		return nil, customerror.NewValidationError("amount must be positive")
	}

	order, err := c.orders.GetByPaymentRef(ctx, models.GroupGiftPaymentRef(hold.GroupGiftID))
	if err == nil && order.Status != models.StatusCreated {
		return nil, customerror.NewConflictError(fmt.Sprintf("group gift %s is already %s", hold.GroupGiftID, order.Status))
	}
	if err != nil && !customerror.IsNotFound(err) {
		return nil, err
	}

	now := c.now()
	contribution := &models.Contribution{
		ID:            uuid.NewString(),
		GroupGiftID:   hold.GroupGiftID,
		ContributorID: hold.ContributorID,
		PaymentRef:    hold.PaymentRef,
		Amount:        hold.Amount,
		Status:        models.ContributionHeld,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.contributions.Save(ctx, contribution); err != nil {
		return nil, err
	}
	return contribution, nil
}

// CaptureGroupGift captures every held contribution of the group gift. Either all of them
// are captured and the order is payment_confirmed, or captured ones are refunded, the rest
// voided, and the order ends failed.
func (c *CaptureCoordinator) CaptureGroupGift(ctx context.Context, in models.GroupGiftCapture) (*models.Order, error) {
	if in.GroupGiftID == "" {
		return nil, customerror.NewValidationError("group gift id is required")
	}
	if !in.Total.IsPositive() {
		return nil, customerror.NewValidationError("total must be positive")
	}

	paymentRef := models.GroupGiftPaymentRef(in.GroupGiftID)
	order, err := c.orders.GetByPaymentRef(ctx, paymentRef)
	switch {
	case err == nil && order.Status != models.StatusCreated:
		return order, nil
	case err != nil && !customerror.IsNotFound(err):
		return nil, err
	}

	contributions, err := c.contributions.ListByGroupGift(ctx, in.GroupGiftID)
	if err != nil {
		return nil, err
	}
	captured := make([]models.Contribution, 0, len(contributions))
	held := make([]models.Contribution, 0, len(contributions))
	for _, contribution := range contributions {
		switch contribution.Status {
		case models.ContributionCaptured:
			captured = append(captured, contribution)
		case models.ContributionHeld:
			held = append(held, contribution)
		}
	}

	covered := models.SumContributions(contributions, models.ContributionHeld).
		Add(models.SumContributions(contributions, models.ContributionCaptured))
	if len(held) == 0 || !covered.Equal(in.Total) {
		return nil, customerror.NewValidationError(fmt.Sprintf("held contributions of group gift %s sum to %s, expected %s",
			in.GroupGiftID, covered.StringFixed(2), in.Total.StringFixed(2)))
	}

	if order == nil {
		order, _, err = c.create(ctx, c.newOrder(paymentRef, in.Total, in.Currency, in.LineItems, in.ShippingAddress, in.GroupGiftID))
		if err != nil {
			return nil, err
		}
		if order.Status != models.StatusCreated {
			return order, nil
		}
	}

	failed := make([]models.Contribution, 0)
	var failures []error
	for _, contribution := range held {
		if _, err := c.payment.Capture(ctx, contribution.PaymentRef, contribution.Amount); err != nil {
			failures = append(failures, err)
			failed = append(failed, contribution)
			c.setContributionStatus(ctx, contribution, models.ContributionFailed, err.Error())
			continue
		}
		captured = append(captured, contribution)
		c.setContributionStatus(ctx, contribution, models.ContributionCaptured, "")
	}

	if len(failures) > 0 {
		return c.compensate(ctx, order, captured, failed, errors.Join(failures...))
	}
	capturedSum := decimal.Zero
	for _, contribution := range captured {
		capturedSum = capturedSum.Add(contribution.Amount)
	}
	if !capturedSum.Equal(order.TotalAmount) {
		mismatch := customerror.NewConflictError(fmt.Sprintf("captured %s of %s", capturedSum.StringFixed(2), order.TotalAmount.StringFixed(2)))
		return c.compensate(ctx, order, captured, nil, mismatch)
	}

	return c.confirm(ctx, order.ID, "group gift captured",
		map[string]any{"group_gift_id": in.GroupGiftID, "contributions": len(captured)}, true)
}

// compensate refunds captured contributions and voids the authorizations that were not
// captured. A compensation that fails leaves the order flagged for review.
func (c *CaptureCoordinator) compensate(
	ctx context.Context, order *models.Order, captured, uncaptured []models.Contribution, cause error,
) (*models.Order, error) {
	reviewNeeded := false
	refunded, voided := 0, 0

	for _, contribution := range captured {
		if err := c.payment.Refund(ctx, contribution.PaymentRef, contribution.Amount); err != nil {
			reviewNeeded = true
			logger.Log.Error("refund of captured contribution failed",
				zap.String("contribution_id", contribution.ID), zap.Error(err))
			c.setContributionStatus(ctx, contribution, models.ContributionCaptured, "refund failed: "+err.Error())
			continue
		}
		refunded++
		c.setContributionStatus(ctx, contribution, models.ContributionRefunded, "")
	}
	for _, contribution := range uncaptured {
		if err := c.payment.Void(ctx, contribution.PaymentRef); err != nil {
			reviewNeeded = true
			logger.Log.Error("void of held contribution failed",
				zap.String("contribution_id", contribution.ID), zap.Error(err))
			c.setContributionStatus(ctx, contribution, models.ContributionFailed, "void failed: "+err.Error())
			continue
		}
		voided++
		c.setContributionStatus(ctx, contribution, models.ContributionVoided, "")
	}

	paymentStatus := models.PaymentVoided
	if len(captured) > 0 {
		paymentStatus = models.PaymentRefunded
	}
	at := c.now()
	failedOrder := c.fail(ctx, order.ID, "group gift capture failed: "+cause.Error(), reviewNeeded, func(o *models.Order) {
		o.PaymentStatus = paymentStatus
		o.Record("payment.compensated", models.SourceMerchant, at, "", map[string]any{
			"refunded":      refunded,
			"voided":        voided,
			"needs_review":  reviewNeeded,
			"group_gift_id": order.GroupGiftID,
		})
	})
	return failedOrder, fmt.Errorf("group gift %s: %w", order.GroupGiftID, cause)
}

func (c *CaptureCoordinator) setContributionStatus(ctx context.Context, contribution models.Contribution, status models.ContributionStatus, message string) {
	if err := c.contributions.UpdateStatus(ctx, contribution.ID, status, message, c.now()); err != nil {
		logger.Log.Error("could not update contribution",
			zap.String("contribution_id", contribution.ID), zap.String("status", string(status)), zap.Error(err))
	}
}

// Recover rebuilds the order for a payment reference from the metadata stored with the
// payment. An existing order is returned with recovered set to false.
func (c *CaptureCoordinator) Recover(ctx context.Context, paymentRef string) (order *models.Order, recovered bool, err error) {
	if paymentRef == "" {
		return nil, false, customerror.NewValidationError("payment reference is required")
	}
	existing, err := c.orders.GetByPaymentRef(ctx, paymentRef)
	if err == nil {
		return existing, false, nil
	}
	if !customerror.IsNotFound(err) {
		return nil, false, err
	}

	intent, err := c.payment.Retrieve(ctx, paymentRef)
	if err != nil {
		return nil, false, err
	}
	switch intent.Status {
	case payment.IntentRequiresCapture, payment.IntentSucceeded:
	default:
		return nil, false, customerror.NewConflictError(fmt.Sprintf("payment %s is %s and cannot be recovered", paymentRef, intent.Status))
	}
	if len(intent.Metadata.LineItems) == 0 {
		return nil, false, customerror.NewValidationError(fmt.Sprintf("payment %s carries no line items", paymentRef))
	}

	fresh := c.newOrder(paymentRef, intent.AmountDecimal(), intent.Currency, intent.Metadata.LineItems, intent.Metadata.ShippingAddress, "")
	fresh.Record("order.recovered", models.SourceAdmin, fresh.CreatedAt, "rebuilt from payment metadata", map[string]string{
		"intent_status": string(intent.Status),
	})
	order, created, err := c.create(ctx, fresh)
	if err != nil || !created {
		return order, false, err
	}

	if intent.Status == payment.IntentSucceeded {
		order, err = c.confirm(ctx, order.ID, "payment already captured", map[string]string{"payment_ref": paymentRef}, false)
		return order, true, err
	}

	if _, err = c.payment.Capture(ctx, paymentRef, order.TotalAmount); err != nil {
		failed := c.fail(ctx, order.ID, "payment capture failed: "+err.Error(), false, nil)
		return failed, true, fmt.Errorf("capture payment %s: %w", paymentRef, err)
	}
	order, err = c.confirm(ctx, order.ID, "payment captured", map[string]string{"payment_ref": paymentRef}, false)
	return order, true, err
}
