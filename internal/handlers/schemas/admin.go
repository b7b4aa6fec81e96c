package schemas

import (
	"time"

	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/shopspring/decimal"
)

type AdminRequest struct {
	Action          models.AdminAction `json:"action" validate:"required,oneof=retry reconcile recover cancel"`
	OrderID         string             `json:"orderId,omitempty" validate:"required_if=Action retry,required_if=Action cancel"`
	PaymentIntentID string             `json:"paymentIntentId,omitempty" validate:"required_if=Action recover"`
}

type AdminResponse struct {
	Success bool               `json:"success"`
	Action  models.AdminAction `json:"action"`
	Result  any                `json:"result,omitempty"`
	Error   string             `json:"error,omitempty"`
}

type FundsRetryRequest struct {
	MaxOrders int `json:"maxOrders" validate:"gte=0"`
}

type FundingAccountResponse struct {
	ID           string          `json:"id"`
	Balance      decimal.Decimal `json:"balance"`
	SafetyMargin decimal.Decimal `json:"safety_margin"`
	Version      int64           `json:"version"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func NewFundingAccountResponse(account models.FundingAccount) FundingAccountResponse {
	return FundingAccountResponse{
		ID:           account.ID,
		Balance:      account.Balance,
		SafetyMargin: account.SafetyMargin,
		Version:      account.Version,
		UpdatedAt:    account.UpdatedAt,
	}
}

type WebhookResponse struct {
	Success bool          `json:"success"`
	Order   *models.Order `json:"order,omitempty"`
	Error   string        `json:"error,omitempty"`
}
