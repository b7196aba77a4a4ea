// Package rest implements the booking backend contract against the
// backend's REST gateway.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/studyspot/internal/core/domain"
)

// Backend implements ports.BookingBackend over HTTP.
type Backend struct {
	client  *fasthttp.Client
	baseURL string
	apiKey  string
	timeout time.Duration
}

// Option customizes a Backend.
type Option func(*Backend)

// WithClient replaces the HTTP client.
func WithClient(c *fasthttp.Client) Option {
	return func(b *Backend) { b.client = c }
}

// New creates a REST backend rooted at baseURL.
func New(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Backend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b := &Backend{
		client: &fasthttp.Client{
			Name:                "studyspot-agent",
			MaxConnsPerHost:     8,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type createBookingRequest struct {
	SeatID          string          `json:"seat_id"`
	DurationMinutes int             `json:"duration_minutes"`
	Location        domain.GeoPoint `json:"location"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// CreateBooking posts a new booking.
func (b *Backend) CreateBooking(ctx context.Context, idempotencyKey, seatID string, durationMinutes int, location domain.GeoPoint) (*domain.Booking, error) {
	body, err := json.Marshal(createBookingRequest{SeatID: seatID, DurationMinutes: durationMinutes, Location: location})
	if err != nil {
		return nil, err
	}
	var booking domain.Booking
	if err := b.do(ctx, fasthttp.MethodPost, "/v1/bookings", idempotencyKey, body, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// CancelBooking cancels a booking.
func (b *Backend) CancelBooking(ctx context.Context, idempotencyKey, bookingID string) error {
	return b.do(ctx, fasthttp.MethodPost, "/v1/bookings/"+url.PathEscape(bookingID)+"/cancel", idempotencyKey, nil, nil)
}

// CheckIn checks in to a booking.
func (b *Backend) CheckIn(ctx context.Context, idempotencyKey, bookingID string) error {
	return b.do(ctx, fasthttp.MethodPost, "/v1/bookings/"+url.PathEscape(bookingID)+"/check-in", idempotencyKey, nil, nil)
}

// FetchSeats lists the seats of a floor.
func (b *Backend) FetchSeats(ctx context.Context, floor int) ([]domain.Seat, error) {
	var seats []domain.Seat
	err := b.do(ctx, fasthttp.MethodGet, "/v1/seats?floor="+strconv.Itoa(floor), "", nil, &seats)
	return seats, err
}

// FetchLibraries lists libraries.
func (b *Backend) FetchLibraries(ctx context.Context, activeOnly bool) ([]domain.Library, error) {
	var libs []domain.Library
	err := b.do(ctx, fasthttp.MethodGet, "/v1/libraries?active="+strconv.FormatBool(activeOnly), "", nil, &libs)
	return libs, err
}

// Ping checks gateway health.
func (b *Backend) Ping(ctx context.Context) error {
	return b.do(ctx, fasthttp.MethodGet, "/v1/health", "", nil, nil)
}

func (b *Backend) do(ctx context.Context, method, path, idempotencyKey string, body []byte, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(b.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if b.apiKey != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+b.apiKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline := time.Now().Add(b.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := b.client.DoDeadline(req, resp, deadline); err != nil {
		return domain.RetryableError(domain.CodeUnavailable, fmt.Errorf("%s %s: %w", method, path, err))
	}

	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		if out == nil || len(resp.Body()) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return nil
	}
	return classifyStatus(method, path, status, resp.Body())
}

// classifyStatus maps an HTTP failure to a delivery class.
func classifyStatus(method, path string, status int, body []byte) error {
	msg := fasthttp.StatusMessage(status)
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		msg = eb.Error
	}
	err := fmt.Errorf("%s %s: %d %s", method, path, status, msg)

	switch {
	case status == fasthttp.StatusConflict:
		return domain.PermanentError(domain.CodeSlotTaken, err)
	case status == fasthttp.StatusNotFound:
		return domain.PermanentError(domain.CodeNotFound, err)
	case status == fasthttp.StatusBadRequest || status == fasthttp.StatusUnprocessableEntity:
		return domain.PermanentError(domain.CodeInvalid, err)
	case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden:
		return domain.PermanentError(domain.CodeInvalid, err)
	default:
		// 408, 429, 5xx and anything unexpected.
		return domain.RetryableError(domain.CodeUnavailable, err)
	}
}
