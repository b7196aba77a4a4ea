package http

import (
	"context"

	"github.com/samirrijal/studyspot/internal/core/usecases"
)

// ReadinessCheck probes one external dependency.
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
	// Optional checks report their state without failing readiness.
	Optional bool
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Location  *usecases.LocationCoordinator
	Queue     *usecases.ActionQueue
	Bookings  *usecases.BookingService
	Libraries *usecases.LibraryService
	Seats     *usecases.SeatService
	Checks    []ReadinessCheck
	Version   string
}
