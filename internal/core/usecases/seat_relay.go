package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/samirrijal/studyspot/internal/core/domain"
	"github.com/samirrijal/studyspot/internal/core/ports"
)

// SeatRelay polls the booking database for modified seats and publishes each
// one to the realtime feed, partitioned by floor. It feeds SeatService.Listen
// on agents that cannot read the database directly.
type SeatRelay struct {
	source    ports.SeatChangeSource
	publisher ports.ChangePublisher
	interval  time.Duration
	logger    *slog.Logger
	watermark time.Time
}

// NewSeatRelay creates a relay that reports changes made after since.
func NewSeatRelay(source ports.SeatChangeSource, publisher ports.ChangePublisher, interval time.Duration, since time.Time) *SeatRelay {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &SeatRelay{
		source:    source,
		publisher: publisher,
		interval:  interval,
		logger:    slog.Default().With("component", "seat_relay"),
		watermark: since,
	}
}

// Poll publishes every seat changed since the last successful poll and
// returns how many were published. The watermark only advances past seats
// that were published, so a failed publish is retried on the next poll.
func (r *SeatRelay) Poll(ctx context.Context) (int, error) {
	seats, err := r.source.SeatsChangedSince(ctx, r.watermark)
	if err != nil {
		return 0, fmt.Errorf("list changed seats: %w", err)
	}

	published := 0
	for _, seat := range seats {
		row, err := json.Marshal(seat)
		if err != nil {
			return published, fmt.Errorf("encode seat %s: %w", seat.ID, err)
		}
		change := domain.RowChange{
			Type:  domain.ChangeUpdate,
			Table: seatsTable,
			Row:   row,
			At:    seat.UpdatedAt,
		}
		if err := r.publisher.Publish(ctx, change, strconv.Itoa(seat.Floor)); err != nil {
			return published, fmt.Errorf("publish seat %s: %w", seat.ID, err)
		}
		if seat.UpdatedAt.After(r.watermark) {
			r.watermark = seat.UpdatedAt
		}
		published++
	}
	return published, nil
}

// Watermark returns the update time of the last published seat.
func (r *SeatRelay) Watermark() time.Time {
	return r.watermark
}

// Run polls until ctx ends.
func (r *SeatRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		n, err := r.Poll(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			r.logger.Warn("seat relay poll failed", "error", err)
		case n > 0:
			r.logger.Debug("seat changes published", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
