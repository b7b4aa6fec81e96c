package models

import (
	"encoding/json"
	"time"
)

// ProviderEventType is the closed set of fulfillment provider status events.
// Anything the provider sends outside this set parses to EventUnknown.
type ProviderEventType string

const (
	EventRequestPlaced         ProviderEventType = "request.placed"
	EventRequestProcessing     ProviderEventType = "request.processing"
	EventRequestSucceeded      ProviderEventType = "request.succeeded"
	EventTrackingObtained      ProviderEventType = "tracking.obtained"
	EventShipmentShipped       ProviderEventType = "shipment.shipped"
	EventShipmentDelivered     ProviderEventType = "shipment.delivered"
	EventRequestFailed         ProviderEventType = "request.failed"
	EventRequestAborted        ProviderEventType = "request.aborted"
	EventCancellationSucceeded ProviderEventType = "cancellation.succeeded"
	EventUnknown               ProviderEventType = "unknown"
)

func ParseProviderEventType(raw string) ProviderEventType {
	switch t := ProviderEventType(raw); t {
	case EventRequestPlaced, EventRequestProcessing, EventRequestSucceeded,
		EventTrackingObtained, EventShipmentShipped, EventShipmentDelivered,
		EventRequestFailed, EventRequestAborted, EventCancellationSucceeded:
		return t
	default:
		return EventUnknown
	}
}

// TargetStatus maps an event to the order status it implies. known is false for
// EventUnknown, which falls back to processing; callers must log that case.
func (t ProviderEventType) TargetStatus() (status OrderStatus, known bool) {
	switch t {
	case EventRequestPlaced, EventRequestProcessing, EventRequestSucceeded:
		return StatusProcessing, true
	case EventTrackingObtained, EventShipmentShipped:
		return StatusShipped, true
	case EventShipmentDelivered:
		return StatusDelivered, true
	case EventRequestFailed, EventRequestAborted:
		return StatusFailed, true
	case EventCancellationSucceeded:
		return StatusCancelled, true
	case EventUnknown:
		return StatusProcessing, false
	}
	return StatusProcessing, false
}

// ProviderReport is the status payload the fulfillment provider pushes by webhook and
// returns when polled.
type ProviderReport struct {
	RequestID        string                 `json:"request_id" validate:"required"`
	StatusUpdates    []ProviderStatusUpdate `json:"status_updates" validate:"required,min=1,dive"`
	MerchantOrderIDs []MerchantOrderRef     `json:"merchant_order_ids,omitempty" validate:"omitempty,dive"`
	DeliveryDates    []DeliveryDate         `json:"delivery_dates,omitempty" validate:"omitempty,dive"`
}

type ProviderStatusUpdate struct {
	Timestamp time.Time       `json:"timestamp" validate:"required"`
	Type      string          `json:"type" validate:"required"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type MerchantOrderRef struct {
	Merchant        string     `json:"merchant" validate:"required"`
	MerchantOrderID string     `json:"merchant_order_id" validate:"required"`
	TrackingURL     string     `json:"tracking_url,omitempty" validate:"omitempty,url"`
	PlacedAt        *time.Time `json:"placed_at,omitempty"`
}

type DeliveryDate struct {
	Date     string            `json:"date" validate:"required"`
	Products []DeliveryProduct `json:"products,omitempty"`
}

type DeliveryProduct struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Latest returns the update with the greatest timestamp; ties keep the later position.
func (r ProviderReport) Latest() (ProviderStatusUpdate, bool) {
	if len(r.StatusUpdates) == 0 {
		return ProviderStatusUpdate{}, false
	}
	latest := r.StatusUpdates[0]
	for _, update := range r.StatusUpdates[1:] {
		if !update.Timestamp.Before(latest.Timestamp) {
			latest = update
		}
	}
	return latest, true
}

func (r ProviderReport) Tracking() []TrackingInfo {
	tracking := make([]TrackingInfo, 0, len(r.MerchantOrderIDs))
	for _, ref := range r.MerchantOrderIDs {
		tracking = append(tracking, TrackingInfo{
			Merchant:        ref.Merchant,
			MerchantOrderID: ref.MerchantOrderID,
			TrackingURL:     ref.TrackingURL,
			PlacedAt:        ref.PlacedAt,
		})
	}
	return tracking
}
