package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/studyspot/internal/adapters/http"
	"github.com/samirrijal/studyspot/internal/core/domain"
	"github.com/samirrijal/studyspot/internal/core/ports"
	"github.com/samirrijal/studyspot/internal/core/usecases"
)

// ---- Mock ports ----

type mockBackend struct {
	createFn    func(ctx context.Context, key, seatID string, duration int, loc domain.GeoPoint) (*domain.Booking, error)
	cancelFn    func(ctx context.Context, key, id string) error
	seatsFn     func(ctx context.Context, floor int) ([]domain.Seat, error)
	librariesFn func(ctx context.Context, activeOnly bool) ([]domain.Library, error)
}

func (m *mockBackend) CreateBooking(ctx context.Context, key, seatID string, duration int, loc domain.GeoPoint) (*domain.Booking, error) {
	if m.createFn != nil {
		return m.createFn(ctx, key, seatID, duration, loc)
	}
	return &domain.Booking{ID: "b-1", SeatID: seatID}, nil
}

func (m *mockBackend) CancelBooking(ctx context.Context, key, id string) error {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, key, id)
	}
	return nil
}

func (m *mockBackend) CheckIn(ctx context.Context, key, id string) error { return nil }

func (m *mockBackend) FetchSeats(ctx context.Context, floor int) ([]domain.Seat, error) {
	if m.seatsFn != nil {
		return m.seatsFn(ctx, floor)
	}
	return nil, nil
}

func (m *mockBackend) FetchLibraries(ctx context.Context, activeOnly bool) ([]domain.Library, error) {
	if m.librariesFn != nil {
		return m.librariesFn(ctx, activeOnly)
	}
	return nil, nil
}

func (m *mockBackend) Ping(ctx context.Context) error { return nil }

type mockProvider struct {
	positionFn func(ctx context.Context, acc domain.Accuracy) (domain.PositionSample, error)
	denied     bool
}

func (m *mockProvider) RequestPermission(ctx context.Context) (bool, error) { return !m.denied, nil }

func (m *mockProvider) CurrentPosition(ctx context.Context, acc domain.Accuracy) (domain.PositionSample, error) {
	if m.positionFn != nil {
		return m.positionFn(ctx, acc)
	}
	return domain.PositionSample{}, errors.New("no fix")
}

func (m *mockProvider) Subscribe(ctx context.Context, acc domain.Accuracy, onFix func(domain.PositionSample)) (func(), error) {
	return func() {}, nil
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	return v, nil
}

func (s *memStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

type staticConnectivity bool

func (c staticConnectivity) Online() bool                   { return bool(c) }
func (c staticConnectivity) Subscribe(fn func(bool)) func() { return func() {} }

// ---- Helpers ----

var central = domain.Library{
	ID:           "lib-1",
	Name:         "Central Library",
	Location:     domain.GeoPoint{Lat: 28.6139, Lon: 77.2090},
	RadiusMeters: 100,
	Floors:       3,
	Active:       true,
}

func fixAt(lat, lon float64) func(context.Context, domain.Accuracy) (domain.PositionSample, error) {
	return func(context.Context, domain.Accuracy) (domain.PositionSample, error) {
		return domain.PositionSample{Latitude: lat, Longitude: lon, CapturedAtEpochMs: time.Now().UnixMilli()}, nil
	}
}

type testEnv struct {
	deps     *handler.Dependencies
	backend  *mockBackend
	provider *mockProvider
}

func newTestEnv(online bool) *testEnv {
	backend := &mockBackend{
		librariesFn: func(ctx context.Context, activeOnly bool) ([]domain.Library, error) {
			return []domain.Library{central}, nil
		},
	}
	provider := &mockProvider{positionFn: fixAt(central.Location.Lat, central.Location.Lon)}
	return newTestEnvWith(backend, provider, online)
}

func newTestEnvWith(backend ports.BookingBackend, provider *mockProvider, online bool) *testEnv {
	cache := usecases.NewPersistentCache(newMemStore(), "test")
	libraries := usecases.NewLibraryService(backend, cache)
	coordinator := usecases.NewLocationCoordinator(usecases.NewGeoSampler(provider), libraries, usecases.DefaultWatchOptions())
	queue := usecases.NewActionQueue(cache, usecases.NewBookingDispatcher(backend), staticConnectivity(online), usecases.DefaultQueueConfig())

	deps := &handler.Dependencies{
		Location:  coordinator,
		Queue:     queue,
		Bookings:  usecases.NewBookingService(queue, coordinator),
		Libraries: libraries,
		Seats:     usecases.NewSeatService(backend, cache, nil),
		Version:   "test",
	}
	mb, _ := backend.(*mockBackend)
	return &testEnv{deps: deps, backend: mb, provider: provider}
}

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New()
	handler.SetupRoutes(app, deps, handler.RouterConfig{})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func decodeError(t *testing.T, data []byte) handler.APIError {
	t.Helper()
	var apiErr handler.APIError
	if err := json.Unmarshal(data, &apiErr); err != nil {
		t.Fatalf("decode error body %q: %v", data, err)
	}
	return apiErr
}

// ---- Health ----

func TestHealthHandler(t *testing.T) {
	app := setupApp(newTestEnv(true).deps)

	status, body := doJSON(t, app, "GET", "/v1/health", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var out map[string]string
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "healthy" || out["version"] != "test" {
		t.Errorf("unexpected health body %v", out)
	}
}

func TestReadyHandler(t *testing.T) {
	env := newTestEnv(false)
	env.deps.Checks = []handler.ReadinessCheck{
		{Name: "store", Ping: func(context.Context) error { return nil }},
		{Name: "backend", Optional: true, Ping: func(context.Context) error { return errors.New("unreachable") }},
	}
	app := setupApp(env.deps)

	status, body := doJSON(t, app, "GET", "/v1/ready", nil)
	if status != 200 {
		t.Fatalf("optional failures must not fail readiness, got %d: %s", status, body)
	}
	var out struct {
		Checks map[string]string `json:"checks"`
	}
	_ = json.Unmarshal(body, &out)
	if out.Checks["connectivity"] != "offline" {
		t.Errorf("expected offline connectivity, got %v", out.Checks)
	}

	env.deps.Checks = append(env.deps.Checks, handler.ReadinessCheck{
		Name: "cache", Ping: func(context.Context) error { return errors.New("down") },
	})
	app = setupApp(env.deps)
	if status, _ := doJSON(t, app, "GET", "/v1/ready", nil); status != 503 {
		t.Errorf("expected 503 with a failing required check, got %d", status)
	}
}

// ---- Location ----

func TestSetTarget_InRange(t *testing.T) {
	env := newTestEnv(true)
	app := setupApp(env.deps)

	status, body := doJSON(t, app, "PUT", "/v1/location/target", central.Geofence())
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var res domain.ProximityResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.InRange || res.Target.ID != "lib-1" {
		t.Errorf("expected in range of lib-1, got %+v", res)
	}

	status, body = doJSON(t, app, "GET", "/v1/location", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var st domain.LocationStatus
	_ = json.Unmarshal(body, &st)
	if st.Status != domain.StatusInRange {
		t.Errorf("expected in_range status, got %s", st.Status)
	}
}

func TestSetTarget_ByLibraryID(t *testing.T) {
	env := newTestEnv(true)
	app := setupApp(env.deps)

	status, body := doJSON(t, app, "PUT", "/v1/location/target", map[string]string{"library_id": "lib-1"})
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	status, body = doJSON(t, app, "GET", "/v1/location/target", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var target domain.GeofenceTarget
	_ = json.Unmarshal(body, &target)
	if target.ID != "lib-1" || target.RadiusMeters != 100 {
		t.Errorf("unexpected target %+v", target)
	}

	status, body = doJSON(t, app, "PUT", "/v1/location/target", map[string]string{"library_id": "missing"})
	if status != 404 {
		t.Errorf("expected 404 for unknown library, got %d: %s", status, body)
	}
}

func TestSetTarget_ZeroCoordinatesRejected(t *testing.T) {
	app := setupApp(newTestEnv(true).deps)

	status, body := doJSON(t, app, "PUT", "/v1/location/target", domain.GeofenceTarget{ID: "x", RadiusMeters: 50})
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
	if e := decodeError(t, body); e.Code != "bad_request" {
		t.Errorf("expected bad_request, got %s", e.Code)
	}
}

func TestGetTarget_NoneSelected(t *testing.T) {
	app := setupApp(newTestEnv(true).deps)
	if status, _ := doJSON(t, app, "GET", "/v1/location/target", nil); status != 404 {
		t.Errorf("expected 404, got %d", status)
	}
}

func TestInitLocation_PermissionDenied(t *testing.T) {
	env := newTestEnv(true)
	env.provider.denied = true
	app := setupApp(env.deps)

	status, body := doJSON(t, app, "POST", "/v1/location/init", nil)
	if status != 403 {
		t.Fatalf("expected 403, got %d", status)
	}
	if e := decodeError(t, body); e.Code != "permission_denied" {
		t.Errorf("expected permission_denied, got %s", e.Code)
	}
}

func TestRefreshLocation_SampleUnavailable(t *testing.T) {
	env := newTestEnv(true)
	app := setupApp(env.deps)

	if status, _ := doJSON(t, app, "PUT", "/v1/location/target", central.Geofence()); status != 200 {
		t.Fatalf("set target: %d", status)
	}
	env.provider.positionFn = func(context.Context, domain.Accuracy) (domain.PositionSample, error) {
		return domain.PositionSample{}, errors.New("gps off")
	}

	status, _ := doJSON(t, app, "POST", "/v1/location/refresh", nil)
	if status != 503 {
		t.Fatalf("expected 503, got %d", status)
	}
	if !env.deps.Location.CanBook() {
		t.Error("a failed refresh must keep the previous decision")
	}
}

func TestNearestLibrary(t *testing.T) {
	app := setupApp(newTestEnv(true).deps)

	status, body := doJSON(t, app, "POST", "/v1/location/nearest", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var res domain.ProximityResult
	_ = json.Unmarshal(body, &res)
	if res.Target.ID != "lib-1" || !res.InRange {
		t.Errorf("unexpected nearest result %+v", res)
	}
}

func TestWatchStartStop(t *testing.T) {
	env := newTestEnv(true)
	app := setupApp(env.deps)

	status, body := doJSON(t, app, "POST", "/v1/location/watch", central.Geofence())
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var st domain.LocationStatus
	_ = json.Unmarshal(body, &st)
	if !st.Watching {
		t.Error("expected watching after start")
	}

	_, body = doJSON(t, app, "DELETE", "/v1/location/watch", nil)
	st = domain.LocationStatus{}
	_ = json.Unmarshal(body, &st)
	if st.Watching {
		t.Error("expected watching to stop")
	}
}

// ---- Libraries & seats ----

func TestListLibraries_Pagination(t *testing.T) {
	backend := &mockBackend{
		librariesFn: func(ctx context.Context, activeOnly bool) ([]domain.Library, error) {
			var libs []domain.Library
			for i := 0; i < 5; i++ {
				libs = append(libs, domain.Library{ID: fmt.Sprintf("lib-%d", i), Active: true})
			}
			return libs, nil
		},
	}
	env := newTestEnvWith(backend, &mockProvider{}, true)
	app := setupApp(env.deps)

	req := httptest.NewRequest("GET", "/v1/libraries?offset=2&limit=2", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if link := resp.Header.Get("Link"); !strings.Contains(link, `rel="next"`) {
		t.Errorf("expected next link, got %q", link)
	}

	var out struct {
		Data       []domain.Library   `json:"data"`
		Pagination handler.Pagination `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Data) != 2 || out.Data[0].ID != "lib-2" || out.Pagination.Total != 5 {
		t.Errorf("unexpected page %+v", out)
	}
}

func TestGetLibrary_NotFound(t *testing.T) {
	app := setupApp(newTestEnv(true).deps)
	status, body := doJSON(t, app, "GET", "/v1/libraries/nope", nil)
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
	if e := decodeError(t, body); e.Code != "not_found" {
		t.Errorf("expected not_found, got %s", e.Code)
	}
}

func TestListSeats(t *testing.T) {
	backend := &mockBackend{
		seatsFn: func(ctx context.Context, floor int) ([]domain.Seat, error) {
			return []domain.Seat{{ID: "A1", Floor: floor, Status: domain.SeatAvailable}}, nil
		},
	}
	app := setupApp(newTestEnvWith(backend, &mockProvider{}, true).deps)

	if status, _ := doJSON(t, app, "GET", "/v1/seats", nil); status != 400 {
		t.Errorf("expected 400 without floor, got %d", status)
	}
	if status, _ := doJSON(t, app, "GET", "/v1/seats?floor=abc", nil); status != 400 {
		t.Errorf("expected 400 for bad floor, got %d", status)
	}

	status, body := doJSON(t, app, "GET", "/v1/seats?floor=2", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var seats []domain.Seat
	_ = json.Unmarshal(body, &seats)
	if len(seats) != 1 || seats[0].Floor != 2 {
		t.Errorf("unexpected seats %+v", seats)
	}
}

// ---- Bookings & queue ----

func TestCreateBooking_RequiresRange(t *testing.T) {
	app := setupApp(newTestEnv(false).deps)

	status, body := doJSON(t, app, "POST", "/v1/bookings", map[string]interface{}{
		"qr": "STUDY-central-2-A14", "duration_minutes": 60,
	})
	if status != 403 {
		t.Fatalf("expected 403, got %d: %s", status, body)
	}
	if e := decodeError(t, body); e.Code != "not_in_range" {
		t.Errorf("expected not_in_range, got %s", e.Code)
	}
}

func TestCreateBooking_Validation(t *testing.T) {
	app := setupApp(newTestEnv(false).deps)

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing qr", map[string]interface{}{"duration_minutes": 60}},
		{"bad qr", map[string]interface{}{"qr": "HELLO-1", "duration_minutes": 60}},
		{"short duration", map[string]interface{}{"qr": "STUDY-central-2-A14", "duration_minutes": 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := doJSON(t, app, "POST", "/v1/bookings", tc.body)
			if status != 400 {
				t.Errorf("expected 400, got %d: %s", status, body)
			}
		})
	}
}

func TestCreateBooking_QueuedWhileOffline(t *testing.T) {
	env := newTestEnv(false)
	app := setupApp(env.deps)

	if status, _ := doJSON(t, app, "PUT", "/v1/location/target", central.Geofence()); status != 200 {
		t.Fatalf("set target: %d", status)
	}

	status, body := doJSON(t, app, "POST", "/v1/bookings", map[string]interface{}{
		"qr": "STUDY-central-2-A14", "duration_minutes": 60,
	})
	if status != 202 {
		t.Fatalf("expected 202, got %d: %s", status, body)
	}
	var ack struct {
		ActionID int64              `json:"action_id"`
		Seat     domain.SeatQR      `json:"seat"`
		Queue    domain.QueueStatus `json:"queue"`
	}
	if err := json.Unmarshal(body, &ack); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ack.ActionID == 0 || ack.Seat.SeatID != "A14" || ack.Queue.PendingCount != 1 || ack.Queue.IsOnline {
		t.Errorf("unexpected ack %+v", ack)
	}

	status, body = doJSON(t, app, "GET", "/v1/queue/actions", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var pending []domain.QueuedAction
	_ = json.Unmarshal(body, &pending)
	if len(pending) != 1 || pending[0].Kind != domain.ActionCreateBooking || pending[0].IdempotencyKey == "" {
		t.Errorf("unexpected pending actions %+v", pending)
	}

	// Offline sync is a no-op.
	status, body = doJSON(t, app, "POST", "/v1/queue/sync", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var qs domain.QueueStatus
	_ = json.Unmarshal(body, &qs)
	if qs.PendingCount != 1 {
		t.Errorf("expected action to stay queued offline, got %+v", qs)
	}
}

func TestSyncQueue_DeliversOnline(t *testing.T) {
	var mu sync.Mutex
	var cancelled []string
	backend := &mockBackend{
		cancelFn: func(ctx context.Context, key, id string) error {
			mu.Lock()
			cancelled = append(cancelled, id)
			mu.Unlock()
			return nil
		},
	}
	env := newTestEnvWith(backend, &mockProvider{}, true)
	app := setupApp(env.deps)

	status, body := doJSON(t, app, "DELETE", "/v1/bookings/42", nil)
	if status != 202 {
		t.Fatalf("expected 202, got %d: %s", status, body)
	}

	status, body = doJSON(t, app, "POST", "/v1/queue/sync", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var qs domain.QueueStatus
	_ = json.Unmarshal(body, &qs)
	if qs.PendingCount != 0 || qs.LastSyncAt == nil {
		t.Errorf("expected drained queue, got %+v", qs)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(cancelled) != 1 || cancelled[0] != "42" {
		t.Errorf("expected cancel of booking 42, got %v", cancelled)
	}
}

func TestCheckIn_RequiresRange(t *testing.T) {
	env := newTestEnv(false)
	app := setupApp(env.deps)

	if status, _ := doJSON(t, app, "POST", "/v1/bookings/42/check-in", nil); status != 403 {
		t.Fatalf("expected 403 before location is verified, got %d", status)
	}

	if status, _ := doJSON(t, app, "PUT", "/v1/location/target", central.Geofence()); status != 200 {
		t.Fatalf("set target: %d", status)
	}
	if status, body := doJSON(t, app, "POST", "/v1/bookings/42/check-in", nil); status != 202 {
		t.Errorf("expected 202, got %d: %s", status, body)
	}
}

// ---- Middleware & GraphQL ----

func TestETag_NotModified(t *testing.T) {
	app := setupApp(newTestEnv(true).deps)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/queue", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag header")
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected no-store for queue status, got %q", cc)
	}

	req := httptest.NewRequest("GET", "/v1/queue", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 304 {
		t.Errorf("expected 304, got %d", resp.StatusCode)
	}
}

func TestRequestIDHeader(t *testing.T) {
	app := setupApp(newTestEnv(true).deps)
	resp, err := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Header.Get(fiber.HeaderXRequestID) == "" {
		t.Error("expected X-Request-ID header")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestGraphQL_QueueAndLibraries(t *testing.T) {
	app := setupApp(newTestEnv(false).deps)

	status, body := doJSON(t, app, "POST", "/graphql", map[string]string{
		"query": `{ queue { is_online pending_count } libraries { id name radius_meters } }`,
	})
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var out struct {
		Data struct {
			Queue struct {
				IsOnline     bool `json:"is_online"`
				PendingCount int  `json:"pending_count"`
			} `json:"queue"`
			Libraries []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"libraries"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Errors) > 0 {
		t.Fatalf("unexpected graphql errors: %v", out.Errors)
	}
	if out.Data.Queue.IsOnline || len(out.Data.Libraries) != 1 || out.Data.Libraries[0].ID != "lib-1" {
		t.Errorf("unexpected graphql data %+v", out.Data)
	}
}

func TestGraphQL_InvalidBody(t *testing.T) {
	app := setupApp(newTestEnv(true).deps)
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader("{bad"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestETag_ListAndStrongForm(t *testing.T) {
	app := setupApp(newTestEnv(true).deps)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/location", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	etag := resp.Header.Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("expected weak ETag, got %q", etag)
	}

	req := httptest.NewRequest("GET", "/v1/location", nil)
	req.Header.Set("If-None-Match", `"stale", `+strings.TrimPrefix(etag, "W/"))
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 304 {
		t.Errorf("expected 304 for list containing strong form, got %d", resp.StatusCode)
	}
}
