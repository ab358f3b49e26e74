// Package notify publishes attendance events to downstream consumers.
package notify

import (
	"context"
	"time"
)

// EventAttendanceRecorded is the type of the event sent after a ledger append.
const EventAttendanceRecorded = "attendance.recorded"

// Event describes one recorded attendance.
type Event struct {
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Time      time.Time `json:"time"`
	Status    string    `json:"status"`
	SessionID string    `json:"session_id,omitempty"`
}

// Publisher delivers attendance events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(ctx context.Context, event Event) error { return nil }

// Close does nothing.
func (Noop) Close() error { return nil }
