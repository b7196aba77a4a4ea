package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrPermissionDenied  = errors.New("location permission denied")
	ErrSampleUnavailable = errors.New("location sample unavailable")
	ErrInvalidTarget     = errors.New("invalid geofence target")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrNoCandidates      = errors.New("no valid geofence candidates")
	ErrInvalidQR         = errors.New("invalid seat QR payload")
	ErrNotInRange        = errors.New("location not verified in range")
	ErrInvalidDuration   = errors.New("invalid booking duration")
	ErrKeyNotFound       = errors.New("key not found")
	ErrUnknownAction     = errors.New("unknown action kind")
)

// DeliveryClass tells the action queue whether a failed delivery may be retried.
type DeliveryClass int

const (
	Retryable DeliveryClass = iota
	Permanent
)

func (c DeliveryClass) String() string {
	if c == Permanent {
		return "permanent"
	}
	return "retryable"
}

// Delivery error codes shared by all backend adapters.
const (
	CodeUnavailable = "unavailable"
	CodeTimeout     = "timeout"
	CodeSlotTaken   = "slot_taken"
	CodeNotFound    = "not_found"
	CodeInvalid     = "invalid"
	CodeExhausted   = "retries_exhausted"
)

// DeliveryError is a backend failure carrying an explicit retry classification.
type DeliveryError struct {
	Class DeliveryClass
	Code  string
	Err   error
}

func (e *DeliveryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s delivery failure: %s", e.Class, e.Code)
	}
	return fmt.Sprintf("%s delivery failure: %s: %v", e.Class, e.Code, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// PermanentError wraps err as a non-retryable delivery failure.
func PermanentError(code string, err error) error {
	return &DeliveryError{Class: Permanent, Code: code, Err: err}
}

// RetryableError wraps err as a retryable delivery failure.
func RetryableError(code string, err error) error {
	return &DeliveryError{Class: Retryable, Code: code, Err: err}
}

// ClassifyDelivery maps an arbitrary delivery error to a class and code.
// Unclassified errors are treated as retryable; the queue's attempt limit bounds them.
func ClassifyDelivery(err error) (DeliveryClass, string) {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Class, de.Code
	}
	if errors.Is(err, ErrUnknownAction) {
		return Permanent, CodeInvalid
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return Retryable, CodeTimeout
	}
	return Retryable, CodeUnavailable
}
