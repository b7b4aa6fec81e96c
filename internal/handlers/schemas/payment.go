package schemas

import (
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/shopspring/decimal"
)

type ConfirmPaymentRequest struct {
	PaymentIntentID string                 `json:"payment_intent_id" validate:"required"`
	Amount          decimal.Decimal        `json:"amount"`
	Currency        string                 `json:"currency" validate:"required,len=3"`
	LineItems       []models.LineItem      `json:"line_items" validate:"required,min=1,dive"`
	ShippingAddress models.ShippingAddress `json:"shipping_address" validate:"required"`
}

func (req ConfirmPaymentRequest) ToModel() models.PaymentConfirmation {
	return models.PaymentConfirmation{
		PaymentRef:      req.PaymentIntentID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		LineItems:       req.LineItems,
		ShippingAddress: req.ShippingAddress,
	}
}

type ContributionRequest struct {
	ContributorID   string          `json:"contributor_id" validate:"required"`
	PaymentIntentID string          `json:"payment_intent_id" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
}

func (req ContributionRequest) ToModel(groupGiftID string) models.ContributionHold {
	return models.ContributionHold{
		GroupGiftID:   groupGiftID,
		ContributorID: req.ContributorID,
		PaymentRef:    req.PaymentIntentID,
		Amount:        req.Amount,
	}
}

type GroupGiftCaptureRequest struct {
	Total           decimal.Decimal        `json:"total"`
	Currency        string                 `json:"currency" validate:"required,len=3"`
	LineItems       []models.LineItem      `json:"line_items" validate:"required,min=1,dive"`
	ShippingAddress models.ShippingAddress `json:"shipping_address" validate:"required"`
}

func (req GroupGiftCaptureRequest) ToModel(groupGiftID string) models.GroupGiftCapture {
	return models.GroupGiftCapture{
		GroupGiftID:     groupGiftID,
		Total:           req.Total,
		Currency:        req.Currency,
		LineItems:       req.LineItems,
		ShippingAddress: req.ShippingAddress,
	}
}
