package entities

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// EnergyParams are the tunable constants of the yield estimate.
type EnergyParams struct {
	// SystemEfficiency is the combined panel and system efficiency (fraction).
	SystemEfficiency float64 `yaml:"system_efficiency"`
	// DeratingFactor accounts for inverter and wiring losses (fraction).
	DeratingFactor float64 `yaml:"derating_factor"`
	// UsableAreaFraction is the share of the roof footprint available for panels.
	UsableAreaFraction float64 `yaml:"usable_area_fraction"`
}

// DefaultEnergyParams returns 18% efficiency, 0.77 derating and 75% usable roof.
func DefaultEnergyParams() EnergyParams {
	return EnergyParams{
		SystemEfficiency:   0.18,
		DeratingFactor:     0.77,
		UsableAreaFraction: 0.75,
	}
}

// EstimateKWh estimates annual output in kWh from GHI (Wh/m²/year) and roof
// area (m²). Missing (NaN) or non-positive inputs yield exactly 0.
func (p EnergyParams) EstimateKWh(ghi, roofArea float64) float64 {
	if math.IsNaN(ghi) || math.IsNaN(roofArea) || ghi <= 0 || roofArea <= 0 {
		return 0
	}
	usable := roofArea * p.UsableAreaFraction
	return ghi * usable * p.SystemEfficiency * p.DeratingFactor / 1000
}

// FootprintArea returns the geodesic area in m² of a lon/lat footprint.
func FootprintArea(g orb.Geometry) float64 {
	if g == nil {
		return math.NaN()
	}
	return math.Abs(geo.Area(g))
}

// FootprintCentroid returns the area-weighted centroid of a footprint.
func FootprintCentroid(g orb.Geometry) (lon, lat float64) {
	if g == nil {
		return math.NaN(), math.NaN()
	}
	c, _ := planar.CentroidArea(g)
	return c[0], c[1]
}
