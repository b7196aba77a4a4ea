package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/studyspot/internal/core/domain"
	"github.com/samirrijal/studyspot/internal/core/ports"
	"github.com/samirrijal/studyspot/internal/pkg/observe"
)

const seatsTable = "seats"

// SeatService serves per-floor seat maps with an offline fallback and keeps
// them current from the realtime change feed when one is configured.
type SeatService struct {
	backend ports.BookingBackend
	cache   *PersistentCache
	feed    ports.ChangeFeed
	logger  *slog.Logger
	group   singleflight.Group
	updates *observe.Broadcaster[domain.SeatEvent]

	// mu serializes read-modify-write of cached floors.
	mu sync.Mutex
}

// NewSeatService creates a new SeatService. feed may be nil.
func NewSeatService(backend ports.BookingBackend, cache *PersistentCache, feed ports.ChangeFeed) *SeatService {
	return &SeatService{
		backend: backend,
		cache:   cache,
		feed:    feed,
		logger:  slog.Default().With("component", "seat_service"),
		updates: observe.New[domain.SeatEvent](),
	}
}

func floorKey(floor int) string {
	return "seats:floor:" + strconv.Itoa(floor)
}

// Fetch returns the seats of a floor. Concurrent calls for the same floor
// share one backend request.
func (s *SeatService) Fetch(ctx context.Context, floor int) ([]domain.Seat, error) {
	v, err, _ := s.group.Do(floorKey(floor), func() (any, error) {
		seats, err := s.backend.FetchSeats(ctx, floor)
		if err != nil {
			var cached []domain.Seat
			if s.cache.Get(ctx, floorKey(floor), &cached) {
				s.logger.Warn("serving cached seats", "floor", floor, "error", err)
				return cached, nil
			}
			return nil, fmt.Errorf("fetch seats for floor %d: %w", floor, err)
		}
		s.store(ctx, floor, seats)
		return seats, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]domain.Seat)), nil
}

func (s *SeatService) store(ctx context.Context, floor int, seats []domain.Seat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cache.Set(ctx, floorKey(floor), seats); err != nil {
		s.logger.Warn("caching seats failed", "floor", floor, "error", err)
	}
}

// ApplyChange folds a realtime seat row change into the cached floor map.
// Only floors already cached are touched, and a storage read failure aborts
// the change rather than overwriting the floor. Changes for other tables are
// ignored.
func (s *SeatService) ApplyChange(ctx context.Context, change domain.RowChange) error {
	if change.Table != seatsTable {
		return nil
	}

	var seat, old domain.Seat
	hasOld := false
	switch change.Type {
	case domain.ChangeDelete:
		raw := change.OldRow
		if len(raw) == 0 {
			raw = change.Row
		}
		if err := decodeSeat(raw, &seat); err != nil {
			return err
		}
	case domain.ChangeInsert, domain.ChangeUpdate:
		if err := decodeSeat(change.Row, &seat); err != nil {
			return err
		}
		if len(change.OldRow) > 0 {
			if err := decodeSeat(change.OldRow, &old); err != nil {
				return err
			}
			hasOld = true
		}
	default:
		return fmt.Errorf("unknown change type %q", change.Type)
	}

	s.mu.Lock()
	err := s.applyLocked(ctx, change.Type, seat, old, hasOld)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.updates.Publish(domain.SeatEvent{Type: change.Type, Seat: seat})
	return nil
}

func (s *SeatService) applyLocked(ctx context.Context, typ domain.ChangeType, seat, old domain.Seat, hasOld bool) error {
	if typ == domain.ChangeDelete {
		return s.editFloor(ctx, seat.Floor, func(seats []domain.Seat) []domain.Seat {
			return removeSeat(seats, seat.ID)
		})
	}

	// A seat moved between floors leaves its old floor.
	if hasOld && old.Floor != seat.Floor {
		if err := s.editFloor(ctx, old.Floor, func(seats []domain.Seat) []domain.Seat {
			return removeSeat(seats, seat.ID)
		}); err != nil {
			return err
		}
	}
	return s.editFloor(ctx, seat.Floor, func(seats []domain.Seat) []domain.Seat {
		if idx := slices.IndexFunc(seats, func(x domain.Seat) bool { return x.ID == seat.ID }); idx >= 0 {
			seats[idx] = seat
			return seats
		}
		return append(seats, seat)
	})
}

// editFloor rewrites a cached floor. An uncached floor is left alone so a
// later Fetch loads it whole.
func (s *SeatService) editFloor(ctx context.Context, floor int, edit func([]domain.Seat) []domain.Seat) error {
	var seats []domain.Seat
	found, err := s.cache.Lookup(ctx, floorKey(floor), &seats)
	if err != nil {
		return fmt.Errorf("load floor %d: %w", floor, err)
	}
	if !found {
		return nil
	}
	return s.cache.Set(ctx, floorKey(floor), edit(seats))
}

func removeSeat(seats []domain.Seat, id string) []domain.Seat {
	return slices.DeleteFunc(seats, func(x domain.Seat) bool { return x.ID == id })
}

func decodeSeat(raw json.RawMessage, dst *domain.Seat) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode seat change: %w", err)
	}
	if dst.ID == "" {
		return fmt.Errorf("decode seat change: missing id")
	}
	return nil
}

// Listen subscribes to seat changes on the realtime feed. Without a feed it
// returns a no-op unsubscribe.
func (s *SeatService) Listen(ctx context.Context) (func(), error) {
	if s.feed == nil {
		return func() {}, nil
	}
	return s.feed.Subscribe(ctx, seatsTable, "", func(change domain.RowChange) {
		if err := s.ApplyChange(context.WithoutCancel(ctx), change); err != nil {
			s.logger.Warn("dropping seat change", "error", err)
		}
	})
}

// Subscribe registers fn for seat changes applied from the feed, deletes
// included.
func (s *SeatService) Subscribe(fn func(domain.SeatEvent)) *observe.Subscription {
	return s.updates.Subscribe(fn)
}
