package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/clients/fulfillment"
	"github.com/Bessima/gift-fulfillment/internal/clients/payment"
	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdminService runs the operator recovery actions. Every call leaves an audit record,
// whatever its outcome.
type AdminService struct {
	ledger      *Ledger
	orders      repository.OrderStorageRepositoryI
	audit       repository.AuditStorageRepositoryI
	capture     *CaptureCoordinator
	admission   *AdmissionController
	payment     payment.PaymentClientI
	fulfillment fulfillment.FulfillmentClientI

	fundsRetryMaxOrders int
	now                 func() time.Time
}

func NewAdminService(
	ledger *Ledger,
	orders repository.OrderStorageRepositoryI,
	audit repository.AuditStorageRepositoryI,
	capture *CaptureCoordinator,
	admission *AdmissionController,
	paymentClient payment.PaymentClientI,
	fulfillmentClient fulfillment.FulfillmentClientI,
	fundsRetryMaxOrders int,
) *AdminService {
	return &AdminService{
		ledger:              ledger,
		orders:              orders,
		audit:               audit,
		capture:             capture,
		admission:           admission,
		payment:             paymentClient,
		fulfillment:         fulfillmentClient,
		fundsRetryMaxOrders: fundsRetryMaxOrders,
		now:                 time.Now,
	}
}

// Execute runs one admin action. The result is returned even when err is set, so
// callers can show what state the order was left in.
func (s *AdminService) Execute(ctx context.Context, actor *models.Operator, action models.AdminAction, orderID, paymentRef string) (any, error) {
	switch action {
	case models.ActionRetry:
		return s.Retry(ctx, actor, orderID)
	case models.ActionReconcile:
		return s.Reconcile(ctx, actor)
	case models.ActionRecover:
		return s.Recover(ctx, actor, paymentRef)
	case models.ActionCancel:
		return s.Cancel(ctx, actor, orderID)
	}
	err := customerror.NewValidationError(fmt.Sprintf("unknown action %q", action))
	s.record(ctx, actor, action, orderID+paymentRef, err)
	return nil, err
}

func audited[T any](ctx context.Context, s *AdminService, actor *models.Operator, action models.AdminAction, target string, fn func() (T, error)) (T, error) {
	if !actor.IsAdmin() {
		var zero T
		err := customerror.NewAuthorizationError(fmt.Sprintf("%s requires the admin role", action))
		s.record(ctx, actor, action, target, err)
		return zero, err
	}
	result, err := fn()
	s.record(ctx, actor, action, target, err)
	return result, err
}

func auditResult(err error) models.AuditResult {
	switch {
	case err == nil:
		return models.AuditSucceeded
	case customerror.IsAuthorization(err):
		return models.AuditUnauthorized
	case customerror.IsConflict(err), customerror.IsValidation(err), customerror.IsNotFound(err):
		return models.AuditRejected
	}
	return models.AuditFailed
}

func (s *AdminService) record(ctx context.Context, actor *models.Operator, action models.AdminAction, target string, err error) {
	record := models.AuditRecord{
		ID:        uuid.NewString(),
		Actor:     "anonymous",
		Action:    string(action),
		Target:    target,
		Result:    auditResult(err),
		CreatedAt: s.now(),
	}
	if actor != nil {
		record.Actor = actor.Username
	}
	if err != nil {
		record.Detail = err.Error()
	}

	// the audit record outlives a cancelled request
	if auditErr := s.audit.Record(context.WithoutCancel(ctx), record); auditErr != nil {
		logger.Log.Error("audit record was not written",
			zap.String("action", record.Action), zap.String("target", target), zap.Error(auditErr))
		return
	}
	logger.Log.Info("admin action",
		zap.String("actor", record.Actor),
		zap.String("action", record.Action),
		zap.String("target", target),
		zap.String("result", string(record.Result)),
	)
}

// Retry resets the order to payment_confirmed under a new dispatch key and runs admission
// and dispatch right away. Shipped, delivered and cancelled orders are rejected.
func (s *AdminService) Retry(ctx context.Context, actor *models.Operator, orderID string) (*models.Order, error) {
	return audited(ctx, s, actor, models.ActionRetry, orderID, func() (*models.Order, error) {
		if orderID == "" {
			return nil, customerror.NewValidationError("orderId is required")
		}
		order, err := s.ledger.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if err := retryable(order); err != nil {
			return order, err
		}

		previousRequest := order.FulfillmentRequestID
		at := s.now()
		_, err = s.ledger.Update(ctx, orderID, func(o *models.Order) error {
			if err := retryable(o); err != nil {
				return err
			}
			return o.ResetForDispatch(models.Cause{Source: models.SourceAdmin, Message: "retry requested by " + actorName(actor), At: at})
		})
		if err != nil {
			return order, err
		}
		if previousRequest != "" {
			s.cancelProviderRequest(ctx, orderID, previousRequest)
		}

		dispatched, err := s.admission.AdmitAndDispatch(ctx, orderID)
		if customerror.IsInsufficientFunds(err) {
			return dispatched, nil
		}
		return dispatched, err
	})
}

func retryable(order *models.Order) error {
	switch {
	case order.Status.IsShippedOrBeyond():
		return customerror.NewConflictError(fmt.Sprintf("order %s is already %s", order.ID, order.Status))
	case order.Status == models.StatusCancelled:
		return customerror.NewConflictError(fmt.Sprintf("order %s is cancelled", order.ID))
	case order.PaymentStatus != models.PaymentPaid:
		return customerror.NewConflictError(fmt.Sprintf("payment of order %s is %s", order.ID, order.PaymentStatus))
	}
	return nil
}

func actorName(actor *models.Operator) string {
	if actor == nil {
		return "anonymous"
	}
	return actor.Username
}

// Reconcile returns every failed order whose payment was captured to payment_confirmed and
// queues its dispatch. Orders flagged for review are left alone.
func (s *AdminService) Reconcile(ctx context.Context, actor *models.Operator) (models.ReconcileResult, error) {
	return audited(ctx, s, actor, models.ActionReconcile, "failed orders", func() (models.ReconcileResult, error) {
		result := models.ReconcileResult{OrderIDs: make([]string, 0)}
		failed, err := s.orders.ListByStatus(ctx, []models.OrderStatus{models.StatusFailed}, 0)
		if err != nil {
			return result, err
		}

		at := s.now()
		for _, candidate := range failed {
			if candidate.PaymentStatus != models.PaymentPaid || candidate.NeedsReview {
				continue
			}
			reset, err := s.ledger.Update(ctx, candidate.ID, func(o *models.Order) error {
				if o.Status != models.StatusFailed || o.PaymentStatus != models.PaymentPaid {
					return customerror.NewConflictError(fmt.Sprintf("order %s changed during reconcile", o.ID))
				}
				return o.ResetForDispatch(models.Cause{Source: models.SourceAdmin, Message: "reconciled by " + actorName(actor), At: at})
			})
			if customerror.IsConflict(err) {
				continue
			}
			if err != nil {
				return result, err
			}
			if err := s.ledger.EnqueueDispatch(ctx, reset); err != nil {
				logger.Log.Error("dispatch job was not queued", zap.String("order_id", reset.ID), zap.Error(err))
			}
			result.Reconciled++
			result.OrderIDs = append(result.OrderIDs, reset.ID)
		}
		return result, nil
	})
}

// Recover rebuilds a missing order from the payment processor and dispatches it. A payment
// that already has an order is rejected with that order in the result.
func (s *AdminService) Recover(ctx context.Context, actor *models.Operator, paymentRef string) (models.RecoverResult, error) {
	return audited(ctx, s, actor, models.ActionRecover, paymentRef, func() (models.RecoverResult, error) {
		order, recovered, err := s.capture.Recover(ctx, paymentRef)
		result := models.RecoverResult{Order: order, Recovered: recovered}
		if err != nil {
			return result, err
		}
		if !recovered {
			return result, customerror.NewConflictError(fmt.Sprintf("payment %s already has order %s", paymentRef, order.ID))
		}
		if order.Status != models.StatusPaymentConfirmed {
			return result, nil
		}

		dispatched, err := s.admission.AdmitAndDispatch(ctx, order.ID)
		if dispatched != nil {
			result.Order = dispatched
		}
		if customerror.IsInsufficientFunds(err) {
			return result, nil
		}
		return result, err
	})
}

// Cancel moves the order to cancelled, then voids an authorized payment and cancels an
// active fulfillment request on a best-effort basis. Delivered orders are rejected.
func (s *AdminService) Cancel(ctx context.Context, actor *models.Operator, orderID string) (*models.Order, error) {
	return audited(ctx, s, actor, models.ActionCancel, orderID, func() (*models.Order, error) {
		if orderID == "" {
			return nil, customerror.NewValidationError("orderId is required")
		}
		at := s.now()
		cancelled, err := s.ledger.Update(ctx, orderID, func(o *models.Order) error {
			if o.Status == models.StatusDelivered {
				return customerror.NewConflictError(fmt.Sprintf("order %s is delivered and cannot be cancelled", o.ID))
			}
			return o.Transition(models.StatusCancelled, models.Cause{
				Source:  models.SourceAdmin,
				Message: "cancelled by " + actorName(actor),
				At:      at,
			})
		})
		if err != nil {
			return nil, err
		}

		var outcomes []func(o *models.Order)
		if cancelled.PaymentStatus == models.PaymentAuthorized {
			if err := s.payment.Void(ctx, cancelled.PaymentRef); err != nil {
				logger.Log.Error("void on cancel failed", zap.String("order_id", orderID), zap.Error(err))
				outcomes = append(outcomes, func(o *models.Order) {
					o.NeedsReview = true
					o.Record("payment.void_failed", models.SourceAdmin, at, err.Error(), nil)
				})
			} else {
				outcomes = append(outcomes, func(o *models.Order) {
					o.PaymentStatus = models.PaymentVoided
					o.Record("payment.voided", models.SourceAdmin, at, "", nil)
				})
			}
		}
		if requestID := cancelled.FulfillmentRequestID; requestID != "" {
			if err := s.fulfillment.Cancel(ctx, requestID); err != nil {
				logger.Log.Error("fulfillment cancel failed", zap.String("order_id", orderID), zap.Error(err))
				outcomes = append(outcomes, func(o *models.Order) {
					o.NeedsReview = true
					o.Record("fulfillment.cancel_failed", models.SourceAdmin, at, err.Error(), map[string]string{"request_id": requestID})
				})
			} else {
				outcomes = append(outcomes, func(o *models.Order) {
					o.Record("fulfillment.cancel_requested", models.SourceAdmin, at, "", map[string]string{"request_id": requestID})
				})
			}
		}
		if len(outcomes) == 0 {
			return cancelled, nil
		}

		return s.ledger.Update(ctx, orderID, func(o *models.Order) error {
			for _, apply := range outcomes {
				apply(o)
			}
			return nil
		})
	})
}

func (s *AdminService) cancelProviderRequest(ctx context.Context, orderID, requestID string) {
	if err := s.fulfillment.Cancel(ctx, requestID); err != nil {
		logger.Log.Warn("previous fulfillment request was not cancelled",
			zap.String("order_id", orderID), zap.String("request_id", requestID), zap.Error(err))
	}
}

// RetryAwaitingFunds runs one funds retry batch on behalf of an operator.
func (s *AdminService) RetryAwaitingFunds(ctx context.Context, actor *models.Operator, maxOrders int) (models.FundsRetrySummary, error) {
	if maxOrders <= 0 {
		maxOrders = s.fundsRetryMaxOrders
	}
	return audited(ctx, s, actor, models.ActionFundsRetry, "funding", func() (models.FundsRetrySummary, error) {
		return s.admission.RetryAwaitingFunds(ctx, maxOrders)
	})
}

func (s *AdminService) FundingAccount(ctx context.Context) (models.FundingAccount, error) {
	return s.admission.Account(ctx)
}

func (s *AdminService) RecentAudit(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	return s.audit.ListRecent(ctx, limit)
}
