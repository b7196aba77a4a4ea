package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samirrijal/studyspot/internal/core/domain"
	"github.com/samirrijal/studyspot/internal/core/ports"
	"github.com/samirrijal/studyspot/internal/pkg/geospatial"
	"github.com/samirrijal/studyspot/internal/pkg/metrics"
)

// WatchOptions controls continuous sampling. A fix is reported when either
// MinInterval has elapsed or the device moved at least MinDistanceMeters since
// the last reported fix.
type WatchOptions struct {
	Accuracy          domain.Accuracy
	MinInterval       time.Duration
	MinDistanceMeters float64
}

// DefaultWatchOptions matches the booking screen's watch settings.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		Accuracy:          domain.AccuracyHigh,
		MinInterval:       10 * time.Second,
		MinDistanceMeters: 10,
	}
}

// GeoSampler wraps the platform location provider with permission handling
// and throttled watching.
type GeoSampler struct {
	provider ports.LocationProvider
	logger   *slog.Logger

	mu      sync.Mutex
	granted bool
}

// NewGeoSampler creates a new GeoSampler.
func NewGeoSampler(provider ports.LocationProvider) *GeoSampler {
	return &GeoSampler{provider: provider, logger: slog.Default().With("component", "geo_sampler")}
}

// RequestPermission asks for foreground location access. Denial and provider
// failures resolve to false. A grant is remembered for the session.
func (s *GeoSampler) RequestPermission(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.granted {
		return true
	}
	granted, err := s.provider.RequestPermission(ctx)
	if err != nil {
		s.logger.Warn("location permission request failed", "error", err)
		return false
	}
	if !granted {
		s.logger.Info("location permission denied")
		return false
	}
	s.granted = true
	return true
}

// PermissionGranted reports whether a previous request was granted.
func (s *GeoSampler) PermissionGranted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.granted
}

// CurrentSample takes a single high-accuracy fix. It returns nil with
// ErrPermissionDenied or ErrSampleUnavailable instead of a partial sample.
func (s *GeoSampler) CurrentSample(ctx context.Context) (*domain.PositionSample, error) {
	if !s.RequestPermission(ctx) {
		metrics.SampleErrors.WithLabelValues("permission").Inc()
		return nil, domain.ErrPermissionDenied
	}

	sample, err := s.provider.CurrentPosition(ctx, domain.AccuracyHigh)
	if err != nil {
		s.logger.Warn("location fix failed", "error", err)
		metrics.SampleErrors.WithLabelValues("provider").Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrSampleUnavailable, err)
	}
	if !domain.ValidCoordinate(sample.Latitude, sample.Longitude) {
		s.logger.Warn("location fix has invalid coordinates", "lat", sample.Latitude, "lon", sample.Longitude)
		metrics.SampleErrors.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: invalid coordinates", domain.ErrSampleUnavailable)
	}
	return &sample, nil
}

// Watch streams throttled fixes to onSample until the subscription is cancelled
// or ctx ends. Fixes older than the last reported one are dropped.
func (s *GeoSampler) Watch(ctx context.Context, opts WatchOptions, onSample func(domain.PositionSample)) (*SampleSubscription, error) {
	if !s.RequestPermission(ctx) {
		return nil, domain.ErrPermissionDenied
	}
	if opts.Accuracy == "" {
		opts.Accuracy = domain.AccuracyHigh
	}

	sub := &SampleSubscription{}
	th := &throttle{opts: opts}

	cancel, err := s.provider.Subscribe(ctx, opts.Accuracy, func(fix domain.PositionSample) {
		if sub.cancelled.Load() {
			return
		}
		if !domain.ValidCoordinate(fix.Latitude, fix.Longitude) {
			metrics.SampleErrors.WithLabelValues("invalid").Inc()
			return
		}
		if !th.allow(fix) {
			return
		}
		onSample(fix)
	})
	if err != nil {
		metrics.SampleErrors.WithLabelValues("provider").Inc()
		return nil, fmt.Errorf("%w: watch: %v", domain.ErrSampleUnavailable, err)
	}
	sub.cancel = cancel
	return sub, nil
}

// SampleSubscription is a live location watch.
type SampleSubscription struct {
	once      sync.Once
	cancelled atomic.Bool
	cancel    func()
}

// Cancel stops the watch. Safe to call more than once.
func (s *SampleSubscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.cancelled.Store(true)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Cancelled reports whether Cancel has been called.
func (s *SampleSubscription) Cancelled() bool {
	return s != nil && s.cancelled.Load()
}

// throttle implements the dual time/distance reporting threshold.
type throttle struct {
	opts WatchOptions

	mu   sync.Mutex
	last *domain.PositionSample
}

func (t *throttle) allow(fix domain.PositionSample) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last == nil {
		t.last = &fix
		return true
	}
	if fix.CapturedAtEpochMs < t.last.CapturedAtEpochMs {
		return false
	}

	elapsed := time.Duration(fix.CapturedAtEpochMs-t.last.CapturedAtEpochMs) * time.Millisecond
	moved := geospatial.Distance(t.last.Point(), fix.Point())
	if elapsed >= t.opts.MinInterval || moved >= t.opts.MinDistanceMeters {
		t.last = &fix
		return true
	}
	return false
}
