package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/clients/fulfillment"
	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/repository"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Reconciler applies provider status reports to orders. Reports may arrive twice or out
// of order; each distinct event lands in the timeline once and the status never regresses.
type Reconciler struct {
	ledger      *Ledger
	orders      repository.OrderStorageRepositoryI
	fulfillment fulfillment.FulfillmentClientI
	validate    *validator.Validate
}

func NewReconciler(ledger *Ledger, orders repository.OrderStorageRepositoryI, client fulfillment.FulfillmentClientI) *Reconciler {
	return &Reconciler{
		ledger:      ledger,
		orders:      orders,
		fulfillment: client,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Apply records the report's events and moves the order to the status implied by the
// latest one, unless a newer provider event is already recorded. Invalid reports are
// rejected before any order is read.
func (r *Reconciler) Apply(ctx context.Context, report models.ProviderReport) (*models.Order, error) {
	if err := r.validate.Struct(report); err != nil {
		return nil, customerror.NewValidationError(err.Error())
	}

	latest, _ := report.Latest()
	target, known := models.ParseProviderEventType(latest.Type).TargetStatus()
	if !known {
		logger.Log.Warn("unknown provider event, defaulting to processing",
			zap.String("request_id", report.RequestID), zap.String("type", latest.Type))
	}

	order, err := r.orders.GetByFulfillmentRequestID(ctx, report.RequestID)
	if err != nil {
		return nil, err
	}

	tracking := report.Tracking()
	updated, err := r.ledger.Update(ctx, order.ID, func(o *models.Order) error {
		newest, seen := latestProviderEvent(o)
		for _, update := range report.StatusUpdates {
			o.AppendEvent(models.NewTimelineEvent(update.Type, models.SourceProvider, update.Timestamp, update.Message, update.Data))
		}
		if o.MergeTracking(tracking) {
			o.UpdatedAt = latest.Timestamp
		}

		if o.Status == target {
			return nil
		}
		if seen && latest.Timestamp.Before(newest) {
			logger.Log.Debug("stale provider report, status kept",
				zap.String("order_id", o.ID), zap.String("status", string(o.Status)),
				zap.String("event", latest.Type), zap.Time("newest_recorded", newest))
			return nil
		}
		if !models.CanTransition(o.Status, target, models.SourceProvider) {
			logger.Log.Debug("provider event does not advance order",
				zap.String("order_id", o.ID), zap.String("status", string(o.Status)), zap.String("event", latest.Type))
			return nil
		}
		return o.Transition(target, models.Cause{
			Source:  models.SourceProvider,
			Message: latest.Message,
			Data:    map[string]string{"event": latest.Type, "request_id": report.RequestID},
			At:      latest.Timestamp,
		})
	})
	if err != nil {
		return nil, err
	}

	// the dedupe key makes this safe on every redelivery
	if updated.Status.IsShippedOrBeyond() {
		if err := r.ledger.EnqueueNotify(ctx, updated); err != nil {
			return nil, fmt.Errorf("order %s updated, notification not queued: %w", updated.ID, err)
		}
	}
	return updated, nil
}

// latestProviderEvent возвращает время самого позднего события провайдера, уже записанного
// в историю заказа. Записи о смене статуса не учитываются.
func latestProviderEvent(o *models.Order) (time.Time, bool) {
	var newest time.Time
	seen := false
	for _, event := range o.Timeline {
		if event.Source != models.SourceProvider || strings.HasPrefix(event.Type, "status.") {
			continue
		}
		if !seen || event.Timestamp.After(newest) {
			newest = event.Timestamp
			seen = true
		}
	}
	return newest, seen
}

// Sync polls the provider for the order's request and applies the answer like a webhook.
func (r *Reconciler) Sync(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := r.ledger.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.FulfillmentRequestID == "" || order.Status.IsTerminal() {
		return order, nil
	}

	report, err := r.fulfillment.GetStatus(ctx, order.FulfillmentRequestID)
	if err != nil {
		return nil, err
	}
	if len(report.StatusUpdates) == 0 {
		return order, nil
	}
	return r.Apply(ctx, *report)
}

// SyncActive polls every order the provider is still working on. Failures are logged
// per order and do not stop the sweep.
func (r *Reconciler) SyncActive(ctx context.Context, limit int) (synced int, err error) {
	active, err := r.orders.ListByStatus(ctx, []models.OrderStatus{models.StatusProcessing, models.StatusShipped}, limit)
	if err != nil {
		return 0, err
	}
	for _, order := range active {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if _, err := r.Sync(ctx, order.ID); err != nil {
			logger.Log.Warn("order status sync failed", zap.String("order_id", order.ID), zap.Error(err))
			continue
		}
		synced++
	}
	return synced, nil
}
