package models

import "github.com/shopspring/decimal"

// PaymentConfirmation is what checkout reports once a single buyer's payment is authorized.
type PaymentConfirmation struct {
	PaymentRef      string
	Amount          decimal.Decimal
	Currency        string
	LineItems       []LineItem
	ShippingAddress ShippingAddress
}

// ContributionHold registers one escrowed group gift payment.
type ContributionHold struct {
	GroupGiftID   string
	ContributorID string
	PaymentRef    string
	Amount        decimal.Decimal
}

type GroupGiftCapture struct {
	GroupGiftID     string
	Total           decimal.Decimal
	Currency        string
	LineItems       []LineItem
	ShippingAddress ShippingAddress
}

// GroupGiftPaymentRef is the payment reference of the order created for a group gift.
func GroupGiftPaymentRef(groupGiftID string) string {
	return "group-" + groupGiftID
}
