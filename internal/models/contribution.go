package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ContributionStatus string

const (
	ContributionHeld     ContributionStatus = "held"
	ContributionCaptured ContributionStatus = "captured"
	ContributionFailed   ContributionStatus = "failed"
	ContributionRefunded ContributionStatus = "refunded"
	ContributionVoided   ContributionStatus = "voided"
)

// Contribution is one escrowed payment towards a group gift.
type Contribution struct {
	ID            string             `json:"id"`
	GroupGiftID   string             `json:"group_gift_id"`
	ContributorID string             `json:"contributor_id"`
	PaymentRef    string             `json:"payment_ref"`
	Amount        decimal.Decimal    `json:"amount"`
	Status        ContributionStatus `json:"status"`
	Error         string             `json:"error,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func SumContributions(contributions []Contribution, status ContributionStatus) decimal.Decimal {
	sum := decimal.Zero
	for _, contribution := range contributions {
		if contribution.Status == status {
			sum = sum.Add(contribution.Amount)
		}
	}
	return sum
}
