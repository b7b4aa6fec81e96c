package models

import "github.com/shopspring/decimal"

type AdminAction string

const (
	ActionRetry      AdminAction = "retry"
	ActionReconcile  AdminAction = "reconcile"
	ActionRecover    AdminAction = "recover"
	ActionCancel     AdminAction = "cancel"
	ActionFundsRetry AdminAction = "funds_retry"
)

func (a AdminAction) Valid() bool {
	switch a {
	case ActionRetry, ActionReconcile, ActionRecover, ActionCancel:
		return true
	}
	return false
}

type ReconcileResult struct {
	Reconciled int      `json:"reconciled"`
	OrderIDs   []string `json:"order_ids"`
}

type RecoverResult struct {
	Order     *Order `json:"order"`
	Recovered bool   `json:"recovered"`
}

type FundsRetryOutcome string

const (
	OutcomeDispatched FundsRetryOutcome = "dispatched"
	OutcomeSkipped    FundsRetryOutcome = "skipped"
	OutcomeError      FundsRetryOutcome = "error"
)

type FundsRetryResult struct {
	OrderID   string            `json:"order_id"`
	Outcome   FundsRetryOutcome `json:"outcome"`
	Required  decimal.Decimal   `json:"required"`
	Balance   decimal.Decimal   `json:"balance"`
	RequestID string            `json:"request_id,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

// FundsRetrySummary reports one pass over the awaiting_funds orders.
type FundsRetrySummary struct {
	ZMABalance    decimal.Decimal    `json:"zma_balance"`
	TotalAwaiting int                `json:"total_awaiting"`
	Processed     int                `json:"processed"`
	Skipped       int                `json:"skipped"`
	Errors        int                `json:"errors"`
	Results       []FundsRetryResult `json:"results"`
}
