package ports

import (
	"context"
	"time"

	"github.com/samirrijal/studyspot/internal/core/domain"
)

// BookingBackend is the backend API contract used by the action queue and the
// offline data cache. Mutations carry the queued action's idempotency key so a
// replayed delivery is applied at most once.
type BookingBackend interface {
	CreateBooking(ctx context.Context, idempotencyKey, seatID string, durationMinutes int, location domain.GeoPoint) (*domain.Booking, error)
	CancelBooking(ctx context.Context, idempotencyKey, bookingID string) error
	CheckIn(ctx context.Context, idempotencyKey, bookingID string) error
	FetchSeats(ctx context.Context, floor int) ([]domain.Seat, error)
	FetchLibraries(ctx context.Context, activeOnly bool) ([]domain.Library, error)
	Ping(ctx context.Context) error
}

// KeyValueStore is durable string-keyed storage. Get returns
// domain.ErrKeyNotFound for absent keys. A zero ttl keeps the value forever.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SeatChangeSource lists seats modified after a watermark, oldest first.
type SeatChangeSource interface {
	SeatsChangedSince(ctx context.Context, since time.Time) ([]domain.Seat, error)
}
