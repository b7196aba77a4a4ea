package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samirrijal/studyspot/internal/core/domain"
	"github.com/samirrijal/studyspot/internal/core/ports"
)

const (
	qrPrefix = "STUDY"

	MinBookingMinutes = 15
	MaxBookingMinutes = 480
)

// ParseSeatQR decodes a seat QR payload of the form
// STUDY-<location>-<floor>-<seat id>. The seat id may itself contain dashes.
func ParseSeatQR(payload string) (domain.SeatQR, error) {
	parts := strings.Split(strings.TrimSpace(payload), "-")
	if len(parts) < 4 || parts[0] != qrPrefix {
		return domain.SeatQR{}, fmt.Errorf("%w: %q", domain.ErrInvalidQR, payload)
	}
	qr := domain.SeatQR{
		Location: parts[1],
		Floor:    parts[2],
		SeatID:   strings.Join(parts[3:], "-"),
	}
	if qr.Location == "" || qr.Floor == "" || qr.SeatID == "" {
		return domain.SeatQR{}, fmt.Errorf("%w: %q has empty segments", domain.ErrInvalidQR, payload)
	}
	return qr, nil
}

// ProximityGate reports the verified location decision.
type ProximityGate interface {
	CanBook() bool
	Status() domain.LocationStatus
}

// BookingService turns user booking intents into queued actions. Creating a
// booking and checking in both require a verified in-range location.
type BookingService struct {
	queue  ports.ActionEnqueuer
	gate   ProximityGate
	logger *slog.Logger
}

// NewBookingService creates a new BookingService.
func NewBookingService(queue ports.ActionEnqueuer, gate ProximityGate) *BookingService {
	return &BookingService{queue: queue, gate: gate, logger: slog.Default().With("component", "booking_service")}
}

// BookFromQR validates a scanned seat QR and queues a booking for it.
func (s *BookingService) BookFromQR(ctx context.Context, payload string, durationMinutes int) (int64, domain.SeatQR, error) {
	qr, err := ParseSeatQR(payload)
	if err != nil {
		return 0, domain.SeatQR{}, err
	}
	if durationMinutes < MinBookingMinutes || durationMinutes > MaxBookingMinutes {
		return 0, qr, fmt.Errorf("%w: %d minutes (allowed %d..%d)", domain.ErrInvalidDuration, durationMinutes, MinBookingMinutes, MaxBookingMinutes)
	}

	loc, err := s.verifiedLocation()
	if err != nil {
		return 0, qr, err
	}

	body, err := json.Marshal(domain.CreateBookingPayload{
		SeatID:          qr.SeatID,
		DurationMinutes: durationMinutes,
		Location:        loc,
	})
	if err != nil {
		return 0, qr, fmt.Errorf("encode booking: %w", err)
	}
	id, err := s.queue.Enqueue(ctx, domain.ActionCreateBooking, body)
	if err != nil {
		return 0, qr, fmt.Errorf("queue booking: %w", err)
	}
	s.logger.Info("booking queued", "action_id", id, "seat_id", qr.SeatID, "location", qr.Location, "floor", qr.Floor)
	return id, qr, nil
}

// Cancel queues cancellation of an existing booking. No location check applies.
func (s *BookingService) Cancel(ctx context.Context, bookingID string) (int64, error) {
	return s.enqueueRef(ctx, domain.ActionCancelBooking, bookingID)
}

// CheckIn queues a check-in, which requires being at the library.
func (s *BookingService) CheckIn(ctx context.Context, bookingID string) (int64, error) {
	if _, err := s.verifiedLocation(); err != nil {
		return 0, err
	}
	return s.enqueueRef(ctx, domain.ActionCheckIn, bookingID)
}

func (s *BookingService) enqueueRef(ctx context.Context, kind domain.ActionKind, bookingID string) (int64, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return 0, fmt.Errorf("%s: booking id is required", kind)
	}
	body, err := json.Marshal(domain.BookingRefPayload{BookingID: bookingID})
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", kind, err)
	}
	id, err := s.queue.Enqueue(ctx, kind, body)
	if err != nil {
		return 0, fmt.Errorf("queue %s: %w", kind, err)
	}
	s.logger.Info("booking action queued", "action_id", id, "kind", kind, "booking_id", bookingID)
	return id, nil
}

func (s *BookingService) verifiedLocation() (domain.GeoPoint, error) {
	if s.gate == nil || !s.gate.CanBook() {
		return domain.GeoPoint{}, domain.ErrNotInRange
	}
	st := s.gate.Status()
	if st.UserLocation == nil {
		return domain.GeoPoint{}, domain.ErrNotInRange
	}
	return st.UserLocation.Point(), nil
}

// BookingDispatcher delivers queued booking actions to the backend.
type BookingDispatcher struct {
	backend ports.BookingBackend
}

// NewBookingDispatcher creates a new BookingDispatcher.
func NewBookingDispatcher(backend ports.BookingBackend) *BookingDispatcher {
	return &BookingDispatcher{backend: backend}
}

// Dispatch decodes the action payload and calls the matching backend operation
// with the action's idempotency key. Undecodable payloads fail permanently.
func (d *BookingDispatcher) Dispatch(ctx context.Context, action domain.QueuedAction) error {
	switch action.Kind {
	case domain.ActionCreateBooking:
		var p domain.CreateBookingPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return domain.PermanentError(domain.CodeInvalid, fmt.Errorf("decode %s: %w", action.Kind, err))
		}
		_, err := d.backend.CreateBooking(ctx, action.IdempotencyKey, p.SeatID, p.DurationMinutes, p.Location)
		return err

	case domain.ActionCancelBooking, domain.ActionCheckIn:
		var p domain.BookingRefPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil || p.BookingID == "" {
			return domain.PermanentError(domain.CodeInvalid, fmt.Errorf("decode %s: missing booking id", action.Kind))
		}
		if action.Kind == domain.ActionCancelBooking {
			return d.backend.CancelBooking(ctx, action.IdempotencyKey, p.BookingID)
		}
		return d.backend.CheckIn(ctx, action.IdempotencyKey, p.BookingID)

	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownAction, action.Kind)
	}
}
