package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/studyspot/internal/core/domain"
)

// BookingBackend implements ports.BookingBackend directly against the
// booking database. Errors are classified for the action queue.
type BookingBackend struct {
	db *DB
}

// NewBookingBackend creates a new BookingBackend.
func NewBookingBackend(db *DB) *BookingBackend {
	return &BookingBackend{db: db}
}

const bookingColumns = `
	id::text, seat_id::text, COALESCE(user_id::text, ''), duration_minutes,
	starts_at, ends_at, status,
	ST_Y(location::geometry), ST_X(location::geometry),
	COALESCE(client_ref, ''), checked_in_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var status string
	err := row.Scan(&b.ID, &b.SeatID, &b.UserID, &b.DurationMinutes,
		&b.StartsAt, &b.EndsAt, &status,
		&b.Location.Lat, &b.Location.Lon,
		&b.ClientRef, &b.CheckedInAt)
	if err != nil {
		return nil, err
	}
	b.Status = domain.BookingStatus(status)
	return &b, nil
}

// CreateBooking inserts a booking keyed by the idempotency key. Replaying the
// same key returns the booking created the first time. Overlapping bookings
// of one seat are rejected by the exclusion constraint (slot_taken).
func (r *BookingBackend) CreateBooking(ctx context.Context, idempotencyKey, seatID string, durationMinutes int, location domain.GeoPoint) (*domain.Booking, error) {
	now := time.Now().UTC()
	ends := now.Add(time.Duration(durationMinutes) * time.Minute)

	b, err := scanBooking(r.db.Pool.QueryRow(ctx, `
		INSERT INTO bookings (seat_id, duration_minutes, starts_at, ends_at, status, location, client_ref)
		VALUES ($1, $2, $3, $4, 'active', ST_SetSRID(ST_MakePoint($5, $6), 4326)::geography, $7)
		ON CONFLICT (client_ref) DO NOTHING
		RETURNING `+bookingColumns,
		seatID, durationMinutes, now, ends, location.Lon, location.Lat, idempotencyKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return r.byClientRef(ctx, idempotencyKey)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("create booking for seat %s: %w", seatID, err))
	}
	return b, nil
}

func (r *BookingBackend) byClientRef(ctx context.Context, ref string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.Pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE client_ref = $1`, ref))
	if err != nil {
		return nil, classify(fmt.Errorf("booking for key %s: %w", ref, err))
	}
	return b, nil
}

// CancelBooking cancels an active or checked-in booking. Cancelling an
// already cancelled booking succeeds.
func (r *BookingBackend) CancelBooking(ctx context.Context, idempotencyKey, bookingID string) error {
	return r.transition(ctx, bookingID, domain.BookingCancelled, `
		UPDATE bookings SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status IN ('active', 'checked_in')`)
}

// CheckIn marks an active booking as checked in. Checking in twice succeeds.
func (r *BookingBackend) CheckIn(ctx context.Context, idempotencyKey, bookingID string) error {
	return r.transition(ctx, bookingID, domain.BookingCheckedIn, `
		UPDATE bookings SET status = 'checked_in', checked_in_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'active'`)
}

// transition applies an update and, when no row changed, decides between an
// idempotent replay (already in target state), a missing booking and an
// illegal transition.
func (r *BookingBackend) transition(ctx context.Context, bookingID string, target domain.BookingStatus, query string) error {
	tag, err := r.db.Pool.Exec(ctx, query, bookingID)
	if err != nil {
		return classify(fmt.Errorf("%s booking %s: %w", target, bookingID, err))
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err = r.db.Pool.QueryRow(ctx, `SELECT status FROM bookings WHERE id = $1`, bookingID).Scan(&status)
	if err != nil {
		return classify(fmt.Errorf("booking %s: %w", bookingID, err))
	}
	if domain.BookingStatus(status) == target {
		return nil
	}
	return domain.PermanentError(domain.CodeInvalid, fmt.Errorf("booking %s is %s", bookingID, status))
}

// FetchSeats returns the seats of a floor ordered by label.
func (r *BookingBackend) FetchSeats(ctx context.Context, floor int) ([]domain.Seat, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, library_id::text, floor, label, status, updated_at
		FROM seats WHERE floor = $1 ORDER BY label
	`, floor)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return scanSeats(rows)
}

// SeatsChangedSince returns seats updated after since, oldest first.
func (r *BookingBackend) SeatsChangedSince(ctx context.Context, since time.Time) ([]domain.Seat, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, library_id::text, floor, label, status, updated_at
		FROM seats WHERE updated_at > $1 ORDER BY updated_at, id
		LIMIT 500
	`, since)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return scanSeats(rows)
}

func scanSeats(rows pgx.Rows) ([]domain.Seat, error) {
	var seats []domain.Seat
	for rows.Next() {
		var s domain.Seat
		var status string
		if err := rows.Scan(&s.ID, &s.LibraryID, &s.Floor, &s.Label, &status, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Status = domain.SeatStatus(status)
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// FetchLibraries returns libraries ordered by name.
func (r *BookingBackend) FetchLibraries(ctx context.Context, activeOnly bool) ([]domain.Library, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, name, COALESCE(address, ''),
		       ST_Y(location::geometry), ST_X(location::geometry),
		       radius_meters, floors, active, created_at
		FROM libraries
		WHERE active OR NOT $1
		ORDER BY name
	`, activeOnly)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var libs []domain.Library
	for rows.Next() {
		var l domain.Library
		if err := rows.Scan(&l.ID, &l.Name, &l.Address, &l.Location.Lat, &l.Location.Lon,
			&l.RadiusMeters, &l.Floors, &l.Active, &l.CreatedAt); err != nil {
			return nil, err
		}
		libs = append(libs, l)
	}
	return libs, rows.Err()
}

// Ping checks database reachability.
func (r *BookingBackend) Ping(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}
