package domain

import (
	"time"
)

type EventType string

const (
	EventBookCheckedOut      EventType = "BookCheckedOut"
	EventBookReturned        EventType = "BookReturned"
	EventBookDeactivated     EventType = "BookDeactivated"
	EventHoldEntered         EventType = "HoldEntered"
	EventHoldExpired         EventType = "HoldExpired"
	EventWaitlistJoined      EventType = "WaitlistJoined"
	EventWaitlistLeft        EventType = "WaitlistLeft"
	EventWaitlistPromoted    EventType = "WaitlistPromoted"
	EventWaitlistReverted    EventType = "WaitlistReverted"
	EventCheckoutOverdue     EventType = "CheckoutOverdue"
	EventCheckoutExtended    EventType = "CheckoutExtended"
	EventNotificationCreated EventType = "NotificationCreated"
	EventSimulationAdvanced  EventType = "SimulationAdvanced"
	EventSimulationCleared   EventType = "SimulationCleared"
	EventAutoReturnApplied   EventType = "AutoReturnApplied"
	EventAutoReturnReverted  EventType = "AutoReturnReverted"
)

// Event is an audit record of a lifecycle transition. Events are persisted
// to the lifecycle_events table and fanned out to in-memory subscribers.
type Event struct {
	ID            int64                  `json:"id"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	EventType     EventType              `json:"event_type"`
	EventData     map[string]interface{} `json:"event_data"`
	CreatedAt     time.Time              `json:"created_at"`
	Actor         string                 `json:"actor,omitempty"`
}

// GetString safely extracts a string field from EventData.
func (e *Event) GetString(key string) (string, bool) {
	if e.EventData == nil {
		return "", false
	}
	v, ok := e.EventData[key].(string)
	return v, ok
}

// GetInt64 safely extracts an int64 field from EventData.
// Handles both int64 and float64 (JSON unmarshaling produces float64).
func (e *Event) GetInt64(key string) (int64, bool) {
	if e.EventData == nil {
		return 0, false
	}
	switch v := e.EventData[key].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	}
	return 0, false
}
