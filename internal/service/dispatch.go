package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/clients/fulfillment"
	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/repository"
	"go.uber.org/zap"
)

// Dispatcher отправляет одобренные заказы провайдеру исполнения.
type Dispatcher struct {
	ledger        *Ledger
	contributions repository.ContributionStorageRepositoryI
	fulfillment   fulfillment.FulfillmentClientI
	now           func() time.Time
}

func NewDispatcher(ledger *Ledger, contributions repository.ContributionStorageRepositoryI, client fulfillment.FulfillmentClientI) *Dispatcher {
	return &Dispatcher{ledger: ledger, contributions: contributions, fulfillment: client, now: time.Now}
}

// Dispatch submits the order under its dispatch key and moves it to processing. The
// provider returns the same request for a repeated key, so a dispatch interrupted after
// the submit can be repeated safely; duplicate reports that the order already carried the
// returned request. Once the retry budget is spent the order is failed.
func (d *Dispatcher) Dispatch(ctx context.Context, order *models.Order) (dispatched *models.Order, duplicate bool, err error) {
	if err = d.checkGroupGiftCaptured(ctx, order); err != nil {
		return nil, false, err
	}

	response, err := d.fulfillment.Submit(ctx, order.DispatchKey(), fulfillment.SubmitRequest{
		OrderID:         order.ID,
		LineItems:       order.LineItems,
		ShippingAddress: order.ShippingAddress,
		EstimatedCost:   order.TotalAmount,
		Currency:        order.Currency,
	})
	if err != nil {
		if ctx.Err() == nil {
			d.markFailed(ctx, order.ID, err)
		}
		return nil, false, fmt.Errorf("dispatch order %s: %w", order.ID, err)
	}

	at := d.now()
	dispatched, err = d.ledger.Update(ctx, order.ID, func(o *models.Order) error {
		duplicate = false
		if o.FulfillmentRequestID == response.RequestID {
			duplicate = true
			return nil
		}
		if err := o.ReleaseFundingHold(at); err != nil {
			return err
		}
		if err := o.AttachFulfillmentRequest(response.RequestID); err != nil {
			return err
		}
		return o.Transition(models.StatusProcessing, models.Cause{
			Source:  models.SourceMerchant,
			Message: "fulfillment request submitted",
			Data:    map[string]string{"request_id": response.RequestID, "idempotency_key": o.DispatchKey()},
			At:      at,
		})
	})
	if customerror.IsConflict(err) {
		// the order moved on while the request was in flight
		d.cancelOrphan(ctx, order.ID, response.RequestID)
	}
	if err != nil {
		return nil, false, err
	}
	return dispatched, duplicate, nil
}

func (d *Dispatcher) cancelOrphan(ctx context.Context, orderID, requestID string) {
	if err := d.fulfillment.Cancel(ctx, requestID); err != nil {
		logger.Log.Error("could not cancel orphaned fulfillment request",
			zap.String("order_id", orderID), zap.String("request_id", requestID), zap.Error(err))
		return
	}
	logger.Log.Warn("orphaned fulfillment request cancelled",
		zap.String("order_id", orderID), zap.String("request_id", requestID))
}

func (d *Dispatcher) markFailed(ctx context.Context, orderID string, cause error) {
	_, err := d.ledger.Transition(ctx, orderID, models.StatusFailed, models.Cause{
		Source:  models.SourceMerchant,
		Message: "fulfillment submission failed: " + cause.Error(),
		At:      d.now(),
	})
	if err != nil {
		logger.Log.Error("could not mark order as failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

// checkGroupGiftCaptured keeps a group gift out of processing until every contribution
// it is made of has been captured.
func (d *Dispatcher) checkGroupGiftCaptured(ctx context.Context, order *models.Order) error {
	if order.GroupGiftID == "" {
		return nil
	}
	contributions, err := d.contributions.ListByGroupGift(ctx, order.GroupGiftID)
	if err != nil {
		return err
	}
	captured := models.SumContributions(contributions, models.ContributionCaptured)
	if !captured.Equal(order.TotalAmount) {
		return customerror.NewConflictError(fmt.Sprintf("group gift %s captured %s of %s",
			order.GroupGiftID, captured.StringFixed(2), order.TotalAmount.StringFixed(2)))
	}
	return nil
}
