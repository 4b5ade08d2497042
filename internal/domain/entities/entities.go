// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects and the pure
// calculations over them (orientation, energy yield).
package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
)

// Building is one footprint record flowing through the enrichment pipeline.
// Missing numeric inputs are carried as NaN rather than zero so that
// "no data" stays distinguishable from "zero".
type Building struct {
	ID        string       // bldg_id from the source dataset
	SourceID  string       // dataset the record was loaded from
	Footprint orb.Geometry // WGS84 lon/lat
	Lat       float64
	Lon       float64
	GHI       float64 // Wh/m²/year, NaN when missing
	RoofArea  float64 // m², NaN when missing

	// Populated by enrichment.
	Azimuth     float64 // degrees [0,360), NaN when undefined
	Orientation Orientation
	KWhEstimate float64
}

// NewBuilding returns a Building with every optional measurement marked missing.
func NewBuilding(id, sourceID string, footprint orb.Geometry) Building {
	return Building{
		ID:          id,
		SourceID:    sourceID,
		Footprint:   footprint,
		Lat:         math.NaN(),
		Lon:         math.NaN(),
		GHI:         math.NaN(),
		RoofArea:    math.NaN(),
		Azimuth:     math.NaN(),
		Orientation: OrientationUnknown,
	}
}

// Key identifies a building across sources.
func (b Building) Key() string {
	return b.SourceID + "/" + b.ID
}

// SourceID derives a stable dataset id from a file path.
func SourceID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	hash := sha256.Sum256([]byte(path))
	return hex.EncodeToString(hash[:8])
}

// Metric names a numeric building column that can be ranked or coloured by.
type Metric string

const (
	MetricGHI Metric = "ghi_sum"
	MetricKWh Metric = "kwh_estimate"
)

// Metrics lists the supported metrics in display order.
func Metrics() []Metric {
	return []Metric{MetricGHI, MetricKWh}
}

// Label is the human-readable axis label for a metric.
func (m Metric) Label() string {
	switch m {
	case MetricGHI:
		return "Annual GHI (kWh/m²)"
	case MetricKWh:
		return "Estimated Annual Energy (kWh)"
	default:
		return string(m)
	}
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m == MetricGHI || m == MetricKWh
}

// Value extracts the metric from a building.
func (m Metric) Value(b Building) float64 {
	switch m {
	case MetricGHI:
		return b.GHI
	case MetricKWh:
		return b.KWhEstimate
	default:
		return math.NaN()
	}
}

// BBox is an inclusive lon/lat rectangle.
type BBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// Contains reports whether the point lies inside the box, edges included.
func (b BBox) Contains(lon, lat float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// IsZero reports whether the box is unset.
func (b BBox) IsZero() bool {
	return b == BBox{}
}

// Bound converts the box to an orb.Bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLon, b.MinLat}, Max: orb.Point{b.MaxLon, b.MaxLat}}
}

// BuildingFilter narrows a building query. Zero values mean "no constraint".
type BuildingFilter struct {
	Orientation Orientation
	BBox        BBox
	Limit       int
}

// RankedBuilding is one row of a top-k table.
type RankedBuilding struct {
	Rank     int
	Building Building
	Value    float64
}

// OrientationStats summarises the kWh estimates of one orientation group.
type OrientationStats struct {
	Orientation Orientation
	Count       int
	TotalKWh    float64
	MeanKWh     float64
	MedianKWh   float64
	P90KWh      float64
}

// Summary aggregates estimates over the whole store.
type Summary struct {
	Buildings int
	TotalKWh  float64
	Groups    []OrientationStats
}

// Run records one enrichment pass over a source.
type Run struct {
	ID         string
	SourceID   string
	SourcePath string
	Loaded     int
	Stored     int
	Skipped    map[string]int
	StartedAt  time.Time
	FinishedAt time.Time
}
