package domain

import (
	"fmt"
	"math"
	"time"
)

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether p lies inside the box (edges included).
func (b Bounds) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// ValidCoordinate reports whether lat/lon are finite and inside WGS 84 ranges.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// GeofenceTarget is the circular boundary of a library used to verify presence.
type GeofenceTarget struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

// Center returns the geofence center.
func (t GeofenceTarget) Center() GeoPoint {
	return GeoPoint{Lat: t.Latitude, Lon: t.Longitude}
}

// Validate checks that the target carries usable coordinates and a positive radius.
// A nil target and the zero point (0,0) both count as missing coordinates.
func (t *GeofenceTarget) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: no target", ErrInvalidTarget)
	}
	if t.Latitude == 0 && t.Longitude == 0 {
		return fmt.Errorf("%w: %q has no coordinates", ErrInvalidTarget, t.ID)
	}
	if !ValidCoordinate(t.Latitude, t.Longitude) {
		return fmt.Errorf("%w: %q coordinates out of range", ErrInvalidTarget, t.ID)
	}
	if !(t.RadiusMeters > 0) {
		return fmt.Errorf("%w: %q radius must be positive", ErrInvalidTarget, t.ID)
	}
	return nil
}

// PositionSample is a single GPS fix. Samples are never persisted.
type PositionSample struct {
	Latitude          float64  `json:"latitude"`
	Longitude         float64  `json:"longitude"`
	AccuracyMeters    *float64 `json:"accuracy_meters,omitempty"`
	CapturedAtEpochMs int64    `json:"captured_at_epoch_ms"`
}

// Point returns the sample position as a GeoPoint.
func (s PositionSample) Point() GeoPoint {
	return GeoPoint{Lat: s.Latitude, Lon: s.Longitude}
}

// CapturedAt returns the capture time.
func (s PositionSample) CapturedAt() time.Time {
	return time.UnixMilli(s.CapturedAtEpochMs)
}

// ProximityResult is the outcome of evaluating a sample against a geofence.
type ProximityResult struct {
	InRange        bool           `json:"in_range"`
	DistanceMeters float64        `json:"distance_meters"`
	Target         GeofenceTarget `json:"target"`
	Sample         PositionSample `json:"sample"`
}

// Accuracy selects the location provider precision mode.
type Accuracy string

const (
	AccuracyLow      Accuracy = "low"
	AccuracyBalanced Accuracy = "balanced"
	AccuracyHigh     Accuracy = "high"
)

// ProximityStatus is the verified geofence decision exposed to the booking UI.
type ProximityStatus string

const (
	StatusUnknown    ProximityStatus = "unknown"
	StatusInRange    ProximityStatus = "in_range"
	StatusOutOfRange ProximityStatus = "out_of_range"
)

// CoordinatorState is the lifecycle state of the location coordinator.
type CoordinatorState string

const (
	StateUninitialized    CoordinatorState = "uninitialized"
	StateInitializing     CoordinatorState = "initializing"
	StatePermissionDenied CoordinatorState = "permission_denied"
	StateReady            CoordinatorState = "ready"
)

// LocationStatus is a snapshot of the coordinator's live state.
type LocationStatus struct {
	State             CoordinatorState `json:"state"`
	Status            ProximityStatus  `json:"status"`
	PermissionGranted bool             `json:"permission_granted"`
	IsLoading         bool             `json:"is_loading"`
	UserLocation      *PositionSample  `json:"user_location,omitempty"`
	NearestLibrary    *GeofenceTarget  `json:"nearest_library,omitempty"`
	DistanceToLibrary *float64         `json:"distance_to_library,omitempty"`
	Watching          bool             `json:"watching"`
	UpdatedAt         time.Time        `json:"updated_at"`
}
