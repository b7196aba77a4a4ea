package geospatial

import (
	"fmt"
	"math"

	"github.com/samirrijal/studyspot/internal/core/domain"
)

// Evaluate decides whether sample lies inside target's geofence.
// The distance is rounded to whole meters and the boundary is inclusive.
func Evaluate(sample domain.PositionSample, target domain.GeofenceTarget) (domain.ProximityResult, error) {
	if !domain.ValidCoordinate(sample.Latitude, sample.Longitude) {
		return domain.ProximityResult{}, fmt.Errorf("%w: sample (%v, %v)", domain.ErrInvalidCoordinate, sample.Latitude, sample.Longitude)
	}
	if !domain.ValidCoordinate(target.Latitude, target.Longitude) {
		return domain.ProximityResult{}, fmt.Errorf("%w: target %q (%v, %v)", domain.ErrInvalidCoordinate, target.ID, target.Latitude, target.Longitude)
	}
	if !(target.RadiusMeters > 0) || math.IsInf(target.RadiusMeters, 0) {
		return domain.ProximityResult{}, fmt.Errorf("%w: target %q radius %v", domain.ErrInvalidCoordinate, target.ID, target.RadiusMeters)
	}

	dist := math.Round(Distance(sample.Point(), target.Center()))
	return domain.ProximityResult{
		InRange:        dist <= target.RadiusMeters,
		DistanceMeters: dist,
		Target:         target,
		Sample:         sample,
	}, nil
}

// Nearest evaluates every candidate and returns the closest one.
// Candidates with unusable coordinates are skipped.
func Nearest(sample domain.PositionSample, targets []domain.GeofenceTarget) (domain.ProximityResult, error) {
	return NearestWithin(sample, targets, 0)
}

// NearestWithin is Nearest restricted to candidates whose center falls inside a
// bounding box of searchRadius meters around the sample. A zero radius disables the box.
func NearestWithin(sample domain.PositionSample, targets []domain.GeofenceTarget, searchRadius float64) (domain.ProximityResult, error) {
	if !domain.ValidCoordinate(sample.Latitude, sample.Longitude) {
		return domain.ProximityResult{}, fmt.Errorf("%w: sample (%v, %v)", domain.ErrInvalidCoordinate, sample.Latitude, sample.Longitude)
	}

	var box *domain.Bounds
	if searchRadius > 0 {
		b := BoundingBox(sample.Latitude, sample.Longitude, searchRadius)
		box = &b
	}

	var (
		best  domain.ProximityResult
		found bool
	)
	for _, t := range targets {
		if t.Validate() != nil {
			continue
		}
		if box != nil && !box.Contains(t.Center()) {
			continue
		}
		res, err := Evaluate(sample, t)
		if err != nil {
			continue
		}
		if !found || res.DistanceMeters < best.DistanceMeters {
			best, found = res, true
		}
	}
	if !found {
		return domain.ProximityResult{}, domain.ErrNoCandidates
	}
	return best, nil
}
