package http

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/studyspot/internal/core/domain"
)

// ---- Location ----

// LocationStatusHandler returns the current location status snapshot.
func LocationStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(deps.Location.Status())
	}
}

// InitLocationHandler requests location permission and seeds the user position.
func InitLocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Location.Initialize(c.UserContext()); err != nil {
			return errDomain(c, err)
		}
		return c.JSON(deps.Location.Status())
	}
}

// targetRequest selects a geofence either by library ID or by explicit
// coordinates.
type targetRequest struct {
	LibraryID string `json:"library_id"`
	domain.GeofenceTarget
}

// GetTargetHandler returns the stored target library.
func GetTargetHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		t := deps.Location.Target()
		if t == nil {
			return errNotFound(c, "no target library selected")
		}
		return c.JSON(t)
	}
}

// SetTargetHandler stores the target library and verifies proximity to it.
func SetTargetHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req targetRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		target := req.GeofenceTarget
		if id := strings.TrimSpace(req.LibraryID); id != "" {
			lib, err := deps.Libraries.Get(c.UserContext(), id)
			if err != nil {
				return errDomain(c, err)
			}
			target = lib.Geofence()
		}

		res, err := deps.Location.SetTargetLibrary(c.UserContext(), &target)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(res)
	}
}

// RefreshLocationHandler takes a fresh sample against the stored target.
func RefreshLocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := deps.Location.RefreshCurrent(c.UserContext())
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(res)
	}
}

// NearestLibraryHandler picks the closest active library as the target.
func NearestLibraryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := deps.Location.SelectNearestLibrary(c.UserContext())
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(res)
	}
}

// StartWatchHandler starts continuous proximity tracking. An empty body
// watches the stored target.
func StartWatchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var override *domain.GeofenceTarget
		if len(c.Body()) > 0 {
			var t domain.GeofenceTarget
			if err := c.BodyParser(&t); err != nil {
				return errBadRequest(c, "invalid request body")
			}
			override = &t
		}
		if err := deps.Location.StartWatching(c.UserContext(), override); err != nil {
			return errDomain(c, err)
		}
		return c.JSON(deps.Location.Status())
	}
}

// StopWatchHandler cancels the location watch.
func StopWatchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deps.Location.StopWatching()
		return c.JSON(deps.Location.Status())
	}
}

// ---- Libraries & seats ----

// ListLibrariesHandler returns libraries, active ones by default.
func ListLibrariesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		libs, err := deps.Libraries.List(c.UserContext(), c.QueryBool("active", true))
		if err != nil {
			return errDomain(c, err)
		}

		offset, limit := pageParams(c, 100, 200)
		page, pg := paginate(libs, offset, limit)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// GetLibraryHandler returns a single library.
func GetLibraryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "library id is required")
		}
		lib, err := deps.Libraries.Get(c.UserContext(), id)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(lib)
	}
}

// ListSeatsHandler returns the seats of a floor.
func ListSeatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Query("floor")
		if raw == "" {
			return errBadRequest(c, "floor query parameter is required")
		}
		floor, err := strconv.Atoi(raw)
		if err != nil || floor < 0 {
			return errBadRequest(c, "floor must be a non-negative integer")
		}

		seats, err := deps.Seats.Fetch(c.UserContext(), floor)
		if err != nil {
			return errDomain(c, err)
		}
		if seats == nil {
			seats = []domain.Seat{}
		}
		return c.JSON(seats)
	}
}

// ---- Bookings ----

type bookRequest struct {
	QR              string `json:"qr"`
	DurationMinutes int    `json:"duration_minutes"`
}

// queuedResponse acknowledges an action accepted into the offline queue.
type queuedResponse struct {
	ActionID int64              `json:"action_id"`
	Seat     *domain.SeatQR     `json:"seat,omitempty"`
	Queue    domain.QueueStatus `json:"queue"`
}

// CreateBookingHandler books the seat named by a scanned QR code. The booking
// is queued and delivered when the backend is reachable.
func CreateBookingHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req bookRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.QR == "" {
			return errBadRequest(c, "qr is required")
		}

		id, qr, err := deps.Bookings.BookFromQR(c.UserContext(), req.QR, req.DurationMinutes)
		if err != nil {
			return errDomain(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(queuedResponse{ActionID: id, Seat: &qr, Queue: deps.Queue.Status()})
	}
}

// CancelBookingHandler queues cancellation of a booking.
func CancelBookingHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deps.Bookings.Cancel(c.UserContext(), c.Params("id"))
		if err != nil {
			return errDomain(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(queuedResponse{ActionID: id, Queue: deps.Queue.Status()})
	}
}

// CheckInHandler queues a check-in. The user must be inside the geofence.
func CheckInHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deps.Bookings.CheckIn(c.UserContext(), c.Params("id"))
		if err != nil {
			return errDomain(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(queuedResponse{ActionID: id, Queue: deps.Queue.Status()})
	}
}

// ---- Queue ----

// QueueStatusHandler returns the offline queue status.
func QueueStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(deps.Queue.Status())
	}
}

// PendingActionsHandler lists queued actions in delivery order.
func PendingActionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pending := deps.Queue.Pending()
		if pending == nil {
			pending = []domain.QueuedAction{}
		}
		return c.JSON(pending)
	}
}

// SyncQueueHandler drains the queue now, ignoring backoff gates.
func SyncQueueHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Queue.ForceSync(c.UserContext()); err != nil {
			return errDomain(c, err)
		}
		return c.JSON(deps.Queue.Status())
	}
}
