package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundingAccount is the single shared balance used to pay the fulfillment provider.
// Version is bumped on every balance write and guards compare-and-swap updates.
type FundingAccount struct {
	ID           string          `json:"id"`
	Balance      decimal.Decimal `json:"balance"`
	SafetyMargin decimal.Decimal `json:"safety_margin"`
	Version      int64           `json:"version"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func NewFundingAccount(id string, balance, safetyMargin decimal.Decimal) FundingAccount {
	return FundingAccount{
		ID:           id,
		Balance:      balance,
		SafetyMargin: safetyMargin,
	}
}
