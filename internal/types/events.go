// Package types defines the shared domain types, error taxonomy, and context
// helpers for the RollCall realtime core. It has no dependencies on other
// internal packages so that every component can import it freely.
package types

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of push event delivered to subscribers.
// The set is closed: clients switch on these values, so adding a new type is
// a wire-compatibility decision, not a local refactor.
type EventType string

const (
	EventAttendanceUpdate EventType = "attendance_update"
	EventMetricsUpdate    EventType = "metrics_update"
	EventNotification     EventType = "notification"
	EventPing             EventType = "ping"
)

// Valid reports whether t is a member of the closed event type set.
func (t EventType) Valid() bool {
	switch t {
	case EventAttendanceUpdate, EventMetricsUpdate, EventNotification, EventPing:
		return true
	}
	return false
}

// Event is a single push message. It is immutable once constructed and is
// never persisted: delivery is at-most-once to currently connected
// subscribers, and a reconnecting client only sees events emitted after it
// reconnected.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent constructs an Event with a fresh id and the current UTC timestamp.
func NewEvent(eventType EventType, data map[string]any) Event {
	return Event{
		ID:        "evt_" + uuid.NewString(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Subscriber is the read-only projection of a subscriber row owned by the
// surrounding attendance application. The core only needs enough identity to
// tag connections and address events.
type Subscriber struct {
	ID      string
	Name    string
	GroupID string
}
