package domain

import (
	"encoding/json"
	"time"
)

// ActionKind names a mutating booking operation that can be queued.
type ActionKind string

const (
	ActionCreateBooking ActionKind = "create_booking"
	ActionCancelBooking ActionKind = "cancel_booking"
	ActionCheckIn       ActionKind = "check_in"
)

// QueuedAction is a pending mutation awaiting delivery to the backend.
// IDs are monotonic and define FIFO order.
type QueuedAction struct {
	ID             int64           `json:"id"`
	Kind           ActionKind      `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at"`
	Attempts       int             `json:"attempts"`
	LastError      string          `json:"last_error,omitempty"`
	NextAttemptAt  *time.Time      `json:"next_attempt_at,omitempty"`
}

// CreateBookingPayload is the payload of ActionCreateBooking.
type CreateBookingPayload struct {
	SeatID          string   `json:"seat_id"`
	DurationMinutes int      `json:"duration_minutes"`
	Location        GeoPoint `json:"location"`
}

// BookingRefPayload is the payload of actions addressing an existing booking.
type BookingRefPayload struct {
	BookingID string `json:"booking_id"`
}

// QueueStatus is derived from the durable queue and the connectivity signal.
type QueueStatus struct {
	IsOnline     bool       `json:"is_online"`
	PendingCount int        `json:"pending_count"`
	Syncing      bool       `json:"syncing"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
}

// QueueEventType identifies a queue lifecycle event.
type QueueEventType string

const (
	EventQueued       QueueEventType = "queued"
	EventSyncStart    QueueEventType = "syncStart"
	EventSyncComplete QueueEventType = "syncComplete"
	EventSyncError    QueueEventType = "syncError"
)

// QueueEvent is published to queue listeners. Terminal is set on syncError
// when the action was dropped and will not be retried.
type QueueEvent struct {
	Type      QueueEventType `json:"type"`
	Action    *QueuedAction  `json:"action,omitempty"`
	Delivered int            `json:"delivered,omitempty"`
	Error     string         `json:"error,omitempty"`
	Code      string         `json:"code,omitempty"`
	Terminal  bool           `json:"terminal,omitempty"`
	At        time.Time      `json:"at"`
}
