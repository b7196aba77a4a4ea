package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/studyspot/internal/core/domain"
	"github.com/samirrijal/studyspot/internal/pkg/geospatial"
	"github.com/samirrijal/studyspot/internal/pkg/metrics"
	"github.com/samirrijal/studyspot/internal/pkg/observe"
)

// LibraryLister lists candidate libraries for nearest-library selection.
type LibraryLister interface {
	List(ctx context.Context, activeOnly bool) ([]domain.Library, error)
}

// LocationCoordinator owns the live LocationStatus and the single location
// watch. Mutating operations and watch callbacks are serialized so a published
// status is never a torn mix of two samples; the last applied sample wins.
type LocationCoordinator struct {
	sampler   *GeoSampler
	libraries LibraryLister
	watchOpts WatchOptions
	searchM   float64
	logger    *slog.Logger
	updates   *observe.Broadcaster[domain.LocationStatus]
	now       func() time.Time

	// opMu serializes mutations; stateMu guards status and target for
	// snapshot readers, so listeners may call Status and Target.
	opMu     sync.Mutex
	watch    *SampleSubscription
	watchGen uint64

	stateMu sync.RWMutex
	status  domain.LocationStatus
	target  *domain.GeofenceTarget
}

// CoordinatorOption customizes a LocationCoordinator.
type CoordinatorOption func(*LocationCoordinator)

// WithSearchRadius limits nearest-library selection to libraries within
// meters of the user. Zero searches every library.
func WithSearchRadius(meters float64) CoordinatorOption {
	return func(c *LocationCoordinator) { c.searchM = meters }
}

// NewLocationCoordinator creates a coordinator in the uninitialized state.
// libraries may be nil when nearest-library selection is not needed.
func NewLocationCoordinator(sampler *GeoSampler, libraries LibraryLister, watchOpts WatchOptions, opts ...CoordinatorOption) *LocationCoordinator {
	c := &LocationCoordinator{
		sampler:   sampler,
		libraries: libraries,
		watchOpts: watchOpts,
		logger:    slog.Default().With("component", "location_coordinator"),
		updates:   observe.New[domain.LocationStatus](),
		now:       time.Now,
		status: domain.LocationStatus{
			State:  domain.StateUninitialized,
			Status: domain.StatusUnknown,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize requests permission and seeds the user location. It does not
// evaluate any geofence: no target is known yet.
func (c *LocationCoordinator) Initialize(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.update(func(s *domain.LocationStatus) {
		s.State = domain.StateInitializing
		s.IsLoading = true
	})

	if !c.sampler.RequestPermission(ctx) {
		c.update(func(s *domain.LocationStatus) {
			s.State = domain.StatePermissionDenied
			s.PermissionGranted = false
			s.IsLoading = false
		})
		return domain.ErrPermissionDenied
	}

	sample, err := c.sampler.CurrentSample(ctx)
	if err != nil {
		c.logger.Warn("initial location unavailable", "error", err)
		c.update(func(s *domain.LocationStatus) {
			s.State = domain.StateReady
			s.PermissionGranted = true
			s.IsLoading = false
		})
		return nil
	}

	seed := *sample
	c.update(func(s *domain.LocationStatus) {
		s.State = domain.StateReady
		s.PermissionGranted = true
		s.IsLoading = false
		s.UserLocation = &seed
	})
	return nil
}

// SetTargetLibrary stores target and immediately verifies proximity to it.
// An invalid target is rejected without touching the status.
func (c *LocationCoordinator) SetTargetLibrary(ctx context.Context, target *domain.GeofenceTarget) (domain.ProximityResult, error) {
	if err := target.Validate(); err != nil {
		c.logger.Warn("rejecting target library", "error", err)
		return domain.ProximityResult{}, err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	t := *target
	c.setTarget(t)
	return c.refreshLocked(ctx, t)
}

// RefreshLocation takes a fresh sample and re-evaluates proximity to target.
// A sampling failure leaves the previous decision in place and is returned.
func (c *LocationCoordinator) RefreshLocation(ctx context.Context, target *domain.GeofenceTarget) (domain.ProximityResult, error) {
	if err := target.Validate(); err != nil {
		c.logger.Warn("rejecting refresh", "error", err)
		return domain.ProximityResult{}, err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	return c.refreshLocked(ctx, *target)
}

// RefreshCurrent re-evaluates against the stored target.
func (c *LocationCoordinator) RefreshCurrent(ctx context.Context) (domain.ProximityResult, error) {
	return c.RefreshLocation(ctx, c.Target())
}

func (c *LocationCoordinator) refreshLocked(ctx context.Context, target domain.GeofenceTarget) (domain.ProximityResult, error) {
	c.update(func(s *domain.LocationStatus) { s.IsLoading = true })

	sample, err := c.sampler.CurrentSample(ctx)
	if err != nil {
		denied := errors.Is(err, domain.ErrPermissionDenied)
		c.update(func(s *domain.LocationStatus) {
			s.IsLoading = false
			if denied {
				s.State = domain.StatePermissionDenied
				s.PermissionGranted = false
			}
		})
		return domain.ProximityResult{}, err
	}

	res, err := geospatial.Evaluate(*sample, target)
	if err != nil {
		c.update(func(s *domain.LocationStatus) { s.IsLoading = false })
		return domain.ProximityResult{}, fmt.Errorf("evaluate proximity: %w", err)
	}

	c.apply(res)
	return res, nil
}

// SelectNearestLibrary samples once, picks the closest active library and
// makes it the current target.
func (c *LocationCoordinator) SelectNearestLibrary(ctx context.Context) (domain.ProximityResult, error) {
	if c.libraries == nil {
		return domain.ProximityResult{}, errors.New("library directory not configured")
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	libs, err := c.libraries.List(ctx, true)
	if err != nil {
		return domain.ProximityResult{}, fmt.Errorf("list libraries: %w", err)
	}
	targets := make([]domain.GeofenceTarget, 0, len(libs))
	for _, l := range libs {
		targets = append(targets, l.Geofence())
	}

	c.update(func(s *domain.LocationStatus) { s.IsLoading = true })
	sample, err := c.sampler.CurrentSample(ctx)
	if err != nil {
		c.update(func(s *domain.LocationStatus) { s.IsLoading = false })
		return domain.ProximityResult{}, err
	}

	res, err := geospatial.NearestWithin(*sample, targets, c.searchM)
	if err != nil {
		c.update(func(s *domain.LocationStatus) { s.IsLoading = false })
		return domain.ProximityResult{}, err
	}

	c.setTarget(res.Target)
	c.apply(res)
	return res, nil
}

// StartWatching replaces any existing watch with one evaluating every sample
// against override, or the stored target when override is nil. Without a
// usable target it does nothing.
func (c *LocationCoordinator) StartWatching(ctx context.Context, override *domain.GeofenceTarget) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	target := override
	if target == nil {
		target = c.target
	}
	if err := target.Validate(); err != nil {
		c.logger.Debug("watch not started", "error", err)
		return nil
	}

	c.stopLocked()

	c.watchGen++
	gen := c.watchGen
	t := *target

	sub, err := c.sampler.Watch(ctx, c.watchOpts, func(sample domain.PositionSample) {
		c.onWatchSample(gen, t, sample)
	})
	if err != nil {
		return fmt.Errorf("start watch: %w", err)
	}

	c.watch = sub
	metrics.ActiveWatches.Inc()
	c.update(func(s *domain.LocationStatus) { s.Watching = true })
	return nil
}

func (c *LocationCoordinator) onWatchSample(gen uint64, target domain.GeofenceTarget, sample domain.PositionSample) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if gen != c.watchGen || c.watch == nil {
		return
	}
	res, err := geospatial.Evaluate(sample, target)
	if err != nil {
		c.logger.Warn("watch sample rejected", "error", err)
		return
	}
	c.apply(res)
}

// StopWatching cancels the active watch. Safe to call more than once.
func (c *LocationCoordinator) StopWatching() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.stopLocked()
}

func (c *LocationCoordinator) stopLocked() {
	if c.watch == nil {
		return
	}
	c.watch.Cancel()
	c.watch = nil
	c.watchGen++
	metrics.ActiveWatches.Dec()
	c.update(func(s *domain.LocationStatus) { s.Watching = false })
}

// Status returns a snapshot of the current location status.
func (c *LocationCoordinator) Status() domain.LocationStatus {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.status
}

// Target returns a copy of the stored target library, or nil.
func (c *LocationCoordinator) Target() *domain.GeofenceTarget {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.target == nil {
		return nil
	}
	t := *c.target
	return &t
}

// CanBook reports whether the user is verified inside the stored target's
// geofence. A decision made against any other library does not count.
func (c *LocationCoordinator) CanBook() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.status.Status != domain.StatusInRange || c.target == nil || c.status.NearestLibrary == nil {
		return false
	}
	return sameTarget(*c.status.NearestLibrary, *c.target)
}

// Subscribe registers fn for every status change.
func (c *LocationCoordinator) Subscribe(fn func(domain.LocationStatus)) *observe.Subscription {
	return c.updates.Subscribe(fn)
}

// Close stops watching and drops all listeners.
func (c *LocationCoordinator) Close() {
	c.StopWatching()
	c.updates.Close()
}

// setTarget stores t. Switching to a different library clears the proximity
// fields so no decision about the old one survives a failed sample.
func (c *LocationCoordinator) setTarget(t domain.GeofenceTarget) {
	c.stateMu.Lock()
	changed := c.target == nil || !sameTarget(*c.target, t)
	c.target = &t
	c.stateMu.Unlock()

	if changed {
		c.update(func(s *domain.LocationStatus) {
			s.Status = domain.StatusUnknown
			s.NearestLibrary = nil
			s.DistanceToLibrary = nil
		})
	}
}

func sameTarget(a, b domain.GeofenceTarget) bool {
	return a.ID == b.ID &&
		a.Latitude == b.Latitude &&
		a.Longitude == b.Longitude &&
		a.RadiusMeters == b.RadiusMeters
}

func (c *LocationCoordinator) apply(res domain.ProximityResult) {
	sample := res.Sample
	target := res.Target
	dist := res.DistanceMeters
	status := domain.StatusOutOfRange
	if res.InRange {
		status = domain.StatusInRange
	}

	c.update(func(s *domain.LocationStatus) {
		s.State = domain.StateReady
		s.PermissionGranted = true
		s.IsLoading = false
		s.UserLocation = &sample
		s.NearestLibrary = &target
		s.DistanceToLibrary = &dist
		s.Status = status
	})
	metrics.ProximityEvaluations.WithLabelValues(string(status)).Inc()
}

// update mutates the status and publishes the snapshot. Callers hold opMu,
// so listeners observe updates in mutation order.
func (c *LocationCoordinator) update(mut func(*domain.LocationStatus)) {
	c.stateMu.Lock()
	mut(&c.status)
	c.status.UpdatedAt = c.now()
	snap := c.status
	c.stateMu.Unlock()

	c.updates.Publish(snap)
}
