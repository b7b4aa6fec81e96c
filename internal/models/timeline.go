package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventSource string

const (
	SourceProvider EventSource = "provider"
	SourceMerchant EventSource = "merchant"
	SourceAdmin    EventSource = "admin"
)

// TimelineEvent is one fact about an order's external lifecycle. ID doubles as the
// idempotency key for provider redeliveries.
type TimelineEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    EventSource     `json:"source"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventID derives the dedupe key of an event from its type and timestamp.
func EventID(eventType string, timestamp time.Time) string {
	return eventType + ":" + timestamp.UTC().Format(time.RFC3339Nano)
}

func NewTimelineEvent(eventType string, source EventSource, timestamp time.Time, message string, data any) TimelineEvent {
	event := TimelineEvent{
		ID:        EventID(eventType, timestamp),
		Type:      eventType,
		Timestamp: timestamp.UTC(),
		Source:    source,
		Message:   message,
	}
	if data != nil {
		if raw, ok := data.(json.RawMessage); ok {
			event.Data = raw
		} else if encoded, err := json.Marshal(data); err == nil {
			event.Data = encoded
		}
	}
	return event
}

func (o *Order) HasEvent(id string) bool {
	for _, event := range o.Timeline {
		if event.ID == id {
			return true
		}
	}
	return false
}

// AppendEvent adds event unless an event with the same ID is already recorded.
func (o *Order) AppendEvent(event TimelineEvent) bool {
	if o.HasEvent(event.ID) {
		return false
	}
	o.Timeline = append(o.Timeline, event)
	return true
}

// recordEvent appends an internally generated event, suffixing the ID when two
// events of the same type share a timestamp.
func (o *Order) recordEvent(event TimelineEvent) {
	base := event.ID
	for n := 2; o.HasEvent(event.ID); n++ {
		event.ID = fmt.Sprintf("%s#%d", base, n)
	}
	o.Timeline = append(o.Timeline, event)
}

// Record appends a merchant or admin fact to the timeline.
func (o *Order) Record(eventType string, source EventSource, at time.Time, message string, data any) {
	o.recordEvent(NewTimelineEvent(eventType, source, at, message, data))
	o.UpdatedAt = at
}
