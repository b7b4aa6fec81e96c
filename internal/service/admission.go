package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// casAttempts bounds how often a decision is re-evaluated after another writer changed
// the funding account.
const casAttempts = 5

// BalanceSource reports the provider-side balance of the funding account.
type BalanceSource interface {
	GetBalance(ctx context.Context) (decimal.Decimal, error)
}

type AdmissionConfig struct {
	AccountID string
	// Buffer is the fraction added on top of the estimated cost, 0.3 for 30%.
	Buffer decimal.Decimal
	// HoldFor is how far ahead expected_funding_date is set for a held order.
	HoldFor time.Duration
}

// AdmissionController decides against the shared funding account whether an order is
// dispatched now or parked in awaiting_funds. Decisions are serialized by mu inside the
// process and by the account version across processes.
type AdmissionController struct {
	ledger     *Ledger
	orders     repository.OrderStorageRepositoryI
	funding    repository.FundingStorageRepositoryI
	dispatcher *Dispatcher
	balances   BalanceSource
	config     AdmissionConfig

	mu  sync.Mutex
	now func() time.Time
}

func NewAdmissionController(
	ledger *Ledger,
	orders repository.OrderStorageRepositoryI,
	funding repository.FundingStorageRepositoryI,
	dispatcher *Dispatcher,
	balances BalanceSource,
	config AdmissionConfig,
) *AdmissionController {
	return &AdmissionController{
		ledger:     ledger,
		orders:     orders,
		funding:    funding,
		dispatcher: dispatcher,
		balances:   balances,
		config:     config,
		now:        time.Now,
	}
}

// Required is estimated_cost * (1 + buffer) + safety_margin.
func Required(estimatedCost, buffer, safetyMargin decimal.Decimal) decimal.Decimal {
	return estimatedCost.Mul(decimal.NewFromInt(1).Add(buffer)).Add(safetyMargin)
}

func (c *AdmissionController) Account(ctx context.Context) (models.FundingAccount, error) {
	return c.funding.Get(ctx, c.config.AccountID)
}

// AdmitAndDispatch admits and dispatches one order. A denied order is returned together
// with an *InsufficientFundsError; that is a normal outcome, not a failure.
func (c *AdmissionController) AdmitAndDispatch(ctx context.Context, orderID string) (*models.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admit(ctx, orderID)
}

func (c *AdmissionController) admit(ctx context.Context, orderID string) (*models.Order, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		order, err := c.ledger.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order.FulfillmentRequestID != "" && (order.Status == models.StatusProcessing || order.Status.IsShippedOrBeyond()) {
			return order, nil
		}
		if order.Status != models.StatusPaymentConfirmed && order.Status != models.StatusAwaitingFunds {
			return nil, customerror.NewConflictError(fmt.Sprintf("order %s is %s and cannot be dispatched", order.ID, order.Status))
		}

		account, err := c.Account(ctx)
		if err != nil {
			return nil, err
		}
		required := Required(order.TotalAmount, c.config.Buffer, account.SafetyMargin)
		if account.Balance.LessThan(required) {
			return c.hold(ctx, order, required, account.Balance)
		}

		_, err = c.funding.CompareAndSetBalance(ctx, account.ID, account.Version, account.Balance.Sub(order.TotalAmount), c.now())
		if errors.Is(err, repository.ErrVersionMismatch) {
			logger.Log.Debug("funding account changed, re-evaluating admission",
				zap.String("order_id", order.ID), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}

		dispatched, duplicate, err := c.dispatcher.Dispatch(ctx, order)
		if err != nil {
			c.credit(ctx, order.ID, order.TotalAmount)
			return nil, err
		}
		if duplicate {
			// another admission already paid for this dispatch generation
			c.credit(ctx, order.ID, order.TotalAmount)
		}
		logger.Log.Info("order admitted and dispatched",
			zap.String("order_id", order.ID),
			zap.String("required", required.StringFixed(2)),
			zap.String("balance", account.Balance.StringFixed(2)),
			zap.String("request_id", dispatched.FulfillmentRequestID),
		)
		return dispatched, nil
	}
	return nil, customerror.NewConflictError(fmt.Sprintf("funding account %s is contended, order %s was not admitted", c.config.AccountID, orderID))
}

func (c *AdmissionController) hold(ctx context.Context, order *models.Order, required, balance decimal.Decimal) (*models.Order, error) {
	fundsErr := customerror.NewInsufficientFundsError(required, balance)
	at := c.now()
	expected := at.Add(c.config.HoldFor)

	held, err := c.ledger.Update(ctx, order.ID, func(o *models.Order) error {
		return o.HoldForFunds(fundsErr.Error(), expected, at)
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("order is awaiting funds",
		zap.String("order_id", order.ID),
		zap.String("shortfall", fundsErr.Shortfall().StringFixed(2)),
		zap.Time("expected_funding_date", expected),
	)
	return held, fundsErr
}

// credit returns amount to the account after a dispatch that did not go through.
func (c *AdmissionController) credit(ctx context.Context, orderID string, amount decimal.Decimal) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		account, err := c.Account(ctx)
		if err != nil {
			logger.Log.Error("could not load funding account to credit back", zap.String("order_id", orderID), zap.Error(err))
			return
		}
		_, err = c.funding.CompareAndSetBalance(ctx, account.ID, account.Version, account.Balance.Add(amount), c.now())
		if errors.Is(err, repository.ErrVersionMismatch) {
			continue
		}
		if err != nil {
			logger.Log.Error("could not credit back funding account", zap.String("order_id", orderID), zap.Error(err))
		}
		return
	}
	logger.Log.Error("gave up crediting back funding account",
		zap.String("order_id", orderID), zap.String("amount", amount.StringFixed(2)))
}

// syncBalance replaces the stored balance with the provider's live balance. When the
// provider cannot be reached the stored balance is used.
func (c *AdmissionController) syncBalance(ctx context.Context) (models.FundingAccount, error) {
	account, err := c.Account(ctx)
	if err != nil || c.balances == nil {
		return account, err
	}

	live, err := c.balances.GetBalance(ctx)
	if err != nil {
		logger.Log.Warn("live balance unavailable, using stored balance", zap.Error(err))
		return account, nil
	}
	if live.Equal(account.Balance) {
		return account, nil
	}

	synced, err := c.funding.CompareAndSetBalance(ctx, account.ID, account.Version, live, c.now())
	if err != nil {
		logger.Log.Warn("could not store live balance", zap.Error(err))
		return account, nil
	}
	logger.Log.Info("funding balance synced",
		zap.String("stored", account.Balance.StringFixed(2)), zap.String("live", live.StringFixed(2)))
	return synced, nil
}

// RetryAwaitingFunds walks the awaiting_funds orders oldest first and dispatches those the
// balance covers. The first order that cannot be covered blocks every younger one, so
// a cheaper order never overtakes an older one.
func (c *AdmissionController) RetryAwaitingFunds(ctx context.Context, maxOrders int) (models.FundsRetrySummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary := models.FundsRetrySummary{Results: make([]models.FundsRetryResult, 0)}

	account, err := c.syncBalance(ctx)
	if err != nil {
		return summary, err
	}
	summary.ZMABalance = account.Balance

	total, err := c.orders.CountByStatus(ctx, models.StatusAwaitingFunds)
	if err != nil {
		return summary, err
	}
	summary.TotalAwaiting = total

	waiting, err := c.orders.ListByStatus(ctx, []models.OrderStatus{models.StatusAwaitingFunds}, maxOrders)
	if err != nil {
		return summary, err
	}

	blocked := false
	for _, order := range waiting {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		result := models.FundsRetryResult{OrderID: order.ID}

		if blocked {
			result.Outcome = models.OutcomeSkipped
			result.Reason = "waiting behind an older order"
			summary.Skipped++
			summary.Results = append(summary.Results, result)
			continue
		}

		current, err := c.Account(ctx)
		if err != nil {
			return summary, err
		}
		result.Balance = current.Balance
		result.Required = Required(order.TotalAmount, c.config.Buffer, current.SafetyMargin)

		dispatched, err := c.admit(ctx, order.ID)
		var fundsErr *customerror.InsufficientFundsError
		switch {
		case err == nil:
			result.Outcome = models.OutcomeDispatched
			result.RequestID = dispatched.FulfillmentRequestID
			summary.Processed++
		case errors.As(err, &fundsErr):
			blocked = true
			result.Outcome = models.OutcomeSkipped
			result.Required = fundsErr.Required
			result.Balance = fundsErr.Balance
			result.Reason = fundsErr.Error()
			summary.Skipped++
		default:
			result.Outcome = models.OutcomeError
			result.Reason = err.Error()
			summary.Errors++
			logger.Log.Warn("funds retry could not dispatch order", zap.String("order_id", order.ID), zap.Error(err))
		}
		summary.Results = append(summary.Results, result)
	}

	logger.Log.Info("funds retry finished",
		zap.String("balance", summary.ZMABalance.StringFixed(2)),
		zap.Int("total_awaiting", summary.TotalAwaiting),
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}
