package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/studyspot/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, not_in_range, internal_error, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errDomain maps a usecase error onto an HTTP status and error code.
func errDomain(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidQR),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidTarget),
		errors.Is(err, domain.ErrInvalidCoordinate),
		errors.Is(err, domain.ErrUnknownAction):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrNotInRange):
		return newError(c, fiber.StatusForbidden, "not_in_range", err.Error())
	case errors.Is(err, domain.ErrPermissionDenied):
		return newError(c, fiber.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, domain.ErrKeyNotFound), errors.Is(err, domain.ErrNoCandidates):
		return errNotFound(c, err.Error())
	case errors.Is(err, domain.ErrSampleUnavailable):
		return newError(c, fiber.StatusServiceUnavailable, "location_unavailable", err.Error())
	}
	return errInternal(c, err.Error())
}
