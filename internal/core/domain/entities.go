package domain

import (
	"encoding/json"
	"time"
)

// Library is a study location whose geofence gates seat booking.
type Library struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Address      string    `json:"address,omitempty"`
	Location     GeoPoint  `json:"location"`
	RadiusMeters float64   `json:"radius_meters"`
	Floors       int       `json:"floors"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Geofence returns the library boundary used for proximity checks.
func (l Library) Geofence() GeofenceTarget {
	return GeofenceTarget{
		ID:           l.ID,
		Name:         l.Name,
		Latitude:     l.Location.Lat,
		Longitude:    l.Location.Lon,
		RadiusMeters: l.RadiusMeters,
	}
}

// SeatStatus is the occupancy state of a seat.
type SeatStatus string

const (
	SeatAvailable   SeatStatus = "available"
	SeatReserved    SeatStatus = "reserved"
	SeatOccupied    SeatStatus = "occupied"
	SeatMaintenance SeatStatus = "maintenance"
)

// Seat is a bookable seat on a library floor.
type Seat struct {
	ID        string     `json:"id"`
	LibraryID string     `json:"library_id"`
	Floor     int        `json:"floor"`
	Label     string     `json:"label"`
	Status    SeatStatus `json:"status"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCheckedIn BookingStatus = "checked_in"
	BookingCancelled BookingStatus = "cancelled"
	BookingExpired   BookingStatus = "expired"
)

// Booking is a seat reservation held by a user.
type Booking struct {
	ID              string        `json:"id"`
	SeatID          string        `json:"seat_id"`
	UserID          string        `json:"user_id,omitempty"`
	DurationMinutes int           `json:"duration_minutes"`
	StartsAt        time.Time     `json:"starts_at"`
	EndsAt          time.Time     `json:"ends_at"`
	Status          BookingStatus `json:"status"`
	Location        GeoPoint      `json:"location"`
	ClientRef       string        `json:"client_ref,omitempty"`
	CheckedInAt     *time.Time    `json:"checked_in_at,omitempty"`
}

// SeatQR is a decoded seat QR code.
type SeatQR struct {
	Location string `json:"location"`
	Floor    string `json:"floor"`
	SeatID   string `json:"seat_id"`
}

// ChangeType is the kind of row change delivered by the realtime feed.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// RowChange is a single realtime change event for a backend table.
type RowChange struct {
	Type   ChangeType      `json:"type"`
	Table  string          `json:"table"`
	Row    json.RawMessage `json:"row,omitempty"`
	OldRow json.RawMessage `json:"old_row,omitempty"`
	At     time.Time       `json:"at"`
}

// SeatEvent announces a seat change applied from the realtime feed. For a
// delete, Seat holds the removed row.
type SeatEvent struct {
	Type ChangeType `json:"type"`
	Seat Seat       `json:"seat"`
}
