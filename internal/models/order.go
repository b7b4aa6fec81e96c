package models

import (
	"fmt"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/shopspring/decimal"
)

type LineItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	Price     decimal.Decimal `json:"price"`
	Title     string          `json:"title,omitempty"`
}

type ShippingAddress struct {
	FirstName    string `json:"first_name" validate:"required"`
	LastName     string `json:"last_name" validate:"required"`
	AddressLine1 string `json:"address_line1" validate:"required"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state,omitempty"`
	ZipCode      string `json:"zip_code" validate:"required"`
	Country      string `json:"country" validate:"required,len=2"`
	PhoneNumber  string `json:"phone_number,omitempty"`
}

type TrackingInfo struct {
	Merchant        string     `json:"merchant"`
	MerchantOrderID string     `json:"merchant_order_id"`
	TrackingURL     string     `json:"tracking_url,omitempty"`
	PlacedAt        *time.Time `json:"placed_at,omitempty"`
}

type Order struct {
	ID                   string          `json:"id"`
	Status               OrderStatus     `json:"status"`
	FundingStatus        FundingStatus   `json:"funding_status,omitempty"`
	FundingHoldReason    string          `json:"funding_hold_reason,omitempty"`
	ExpectedFundingDate  *time.Time      `json:"expected_funding_date,omitempty"`
	FulfillmentRequestID string          `json:"fulfillment_request_id,omitempty"`
	RetryCount           int             `json:"retry_count"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	Currency             string          `json:"currency"`
	LineItems            []LineItem      `json:"line_items"`
	ShippingAddress      ShippingAddress `json:"shipping_address"`
	Tracking             []TrackingInfo  `json:"tracking,omitempty"`
	Timeline             []TimelineEvent `json:"timeline"`
	PaymentRef           string          `json:"payment_ref"`
	PaymentStatus        PaymentStatus   `json:"payment_status"`
	GroupGiftID          string          `json:"group_gift_id,omitempty"`
	NeedsReview          bool            `json:"needs_review"`
	Notes                string          `json:"notes,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Cause describes why a transition happens; it becomes the timeline entry.
type Cause struct {
	Source  EventSource
	Message string
	Data    any
	At      time.Time
}

// Transition moves the order to target and records the change in the timeline.
func (o *Order) Transition(target OrderStatus, cause Cause) error {
	if o.Status == target {
		return customerror.NewConflictError(fmt.Sprintf("order %s is already %s", o.ID, target))
	}
	if !CanTransition(o.Status, target, cause.Source) {
		return customerror.NewConflictError(fmt.Sprintf("order %s cannot move from %s to %s", o.ID, o.Status, target))
	}

	at := cause.At
	if at.IsZero() {
		at = time.Now()
	}
	data := map[string]any{"from": o.Status, "to": target}
	if cause.Data != nil {
		data["detail"] = cause.Data
	}

	o.Status = target
	o.Record("status."+string(target), cause.Source, at, cause.Message, data)
	return nil
}

// HoldForFunds parks the order until the funding account can cover it.
func (o *Order) HoldForFunds(reason string, expected time.Time, at time.Time) error {
	if o.Status != StatusAwaitingFunds {
		if err := o.Transition(StatusAwaitingFunds, Cause{Source: SourceMerchant, Message: reason, At: at}); err != nil {
			return err
		}
	}
	o.FundingStatus = FundingAwaiting
	o.FundingHoldReason = reason
	o.ExpectedFundingDate = &expected
	o.UpdatedAt = at
	return nil
}

// ReleaseFundingHold returns a held order to payment_confirmed once funds are available.
func (o *Order) ReleaseFundingHold(at time.Time) error {
	if o.Status == StatusAwaitingFunds {
		if err := o.Transition(StatusPaymentConfirmed, Cause{Source: SourceMerchant, Message: "funds available", At: at}); err != nil {
			return err
		}
	}
	o.ClearFundingHold()
	return nil
}

func (o *Order) ClearFundingHold() {
	o.FundingStatus = FundingNone
	o.FundingHoldReason = ""
	o.ExpectedFundingDate = nil
}

// AttachFulfillmentRequest records the provider request id. A second, different id
// while one is active is rejected.
func (o *Order) AttachFulfillmentRequest(requestID string) error {
	if requestID == "" {
		return customerror.NewValidationError("empty fulfillment request id")
	}
	if o.FulfillmentRequestID != "" && o.FulfillmentRequestID != requestID {
		return customerror.NewConflictError(fmt.Sprintf(
			"order %s already has active fulfillment request %s", o.ID, o.FulfillmentRequestID))
	}
	o.FulfillmentRequestID = requestID
	return nil
}

// ResetForDispatch returns the order to payment_confirmed with no active request so it can
// be dispatched again under a new idempotency key.
func (o *Order) ResetForDispatch(cause Cause) error {
	if o.Status != StatusPaymentConfirmed {
		if err := o.Transition(StatusPaymentConfirmed, cause); err != nil {
			return err
		}
	}
	previous := o.FulfillmentRequestID
	o.FulfillmentRequestID = ""
	o.RetryCount++
	o.ClearFundingHold()
	if previous != "" {
		o.Record("fulfillment.request_cleared", cause.Source, cause.At, "", map[string]string{"request_id": previous})
	}
	return nil
}

// DispatchKey is the idempotency key sent to the provider for the current dispatch generation.
func (o *Order) DispatchKey() string {
	return fmt.Sprintf("%s-%d", o.ID, o.RetryCount)
}

// MergeTracking adds merchant tracking metadata, replacing entries for the same merchant order.
func (o *Order) MergeTracking(refs []TrackingInfo) bool {
	changed := false
	for _, ref := range refs {
		found := false
		for i := range o.Tracking {
			if o.Tracking[i].Merchant == ref.Merchant && o.Tracking[i].MerchantOrderID == ref.MerchantOrderID {
				found = true
				if ref.TrackingURL != "" && o.Tracking[i].TrackingURL != ref.TrackingURL {
					o.Tracking[i].TrackingURL = ref.TrackingURL
					changed = true
				}
				if ref.PlacedAt != nil && o.Tracking[i].PlacedAt == nil {
					o.Tracking[i].PlacedAt = ref.PlacedAt
					changed = true
				}
				break
			}
		}
		if !found {
			o.Tracking = append(o.Tracking, ref)
			changed = true
		}
	}
	return changed
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	c.LineItems = append([]LineItem(nil), o.LineItems...)
	c.Tracking = append([]TrackingInfo(nil), o.Tracking...)
	c.Timeline = make([]TimelineEvent, len(o.Timeline))
	for i, event := range o.Timeline {
		event.Data = append([]byte(nil), event.Data...)
		c.Timeline[i] = event
	}
	if o.ExpectedFundingDate != nil {
		expected := *o.ExpectedFundingDate
		c.ExpectedFundingDate = &expected
	}
	return &c
}
