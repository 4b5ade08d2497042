package entities

import (
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// Orientation is a compass label for a roof's dominant direction.
type Orientation string

const (
	OrientationNorth     Orientation = "North"
	OrientationNortheast Orientation = "Northeast"
	OrientationEast      Orientation = "East"
	OrientationSoutheast Orientation = "Southeast"
	OrientationSouth     Orientation = "South"
	OrientationSouthwest Orientation = "Southwest"
	OrientationWest      Orientation = "West"
	OrientationNorthwest Orientation = "Northwest"
	OrientationUnknown   Orientation = "Unknown"
)

// Orientations returns the full label vocabulary, Unknown last.
func Orientations() []Orientation {
	return []Orientation{
		OrientationNorth, OrientationNortheast, OrientationEast, OrientationSoutheast,
		OrientationSouth, OrientationSouthwest, OrientationWest, OrientationNorthwest,
		OrientationUnknown,
	}
}

// ParseOrientation maps a label (case-insensitive) back to an Orientation.
func ParseOrientation(s string) (Orientation, bool) {
	for _, o := range Orientations() {
		if strings.EqualFold(string(o), s) {
			return o, true
		}
	}
	return "", false
}

type sector struct {
	label      Orientation
	start, end float64
}

// sectors is checked in order. North is split across 0 so no entry has
// start > end today; the wraparound branch in matches only covers a single
// sector straddling 0 and must be generalised if the boundaries move.
var sectors = []sector{
	{OrientationNorth, 337.5, 360.0},
	{OrientationNorth, 0.0, 22.5},
	{OrientationNortheast, 22.5, 67.5},
	{OrientationEast, 67.5, 112.5},
	{OrientationSoutheast, 112.5, 157.5},
	{OrientationSouth, 157.5, 202.5},
	{OrientationSouthwest, 202.5, 247.5},
	{OrientationWest, 247.5, 292.5},
	{OrientationNorthwest, 292.5, 337.5},
}

func (s sector) matches(angle float64) bool {
	if s.start <= angle && angle < s.end {
		return true
	}
	return s.start > s.end && (angle >= s.start || angle < s.end)
}

// ComputeOrientation returns the bearing in degrees [0,360) of the longest
// edge of a polygon's outer ring, measured from the positive x-axis.
//
// The longest edge is taken as an approximation of the roof ridge; this is a
// heuristic, not a geometric guarantee. Anything other than an orb.Polygon,
// and polygons whose edges are all zero length, yield NaN. Ties keep the
// first edge encountered.
func ComputeOrientation(g orb.Geometry) float64 {
	poly, ok := g.(orb.Polygon)
	if !ok || len(poly) == 0 {
		return math.NaN()
	}

	ring := poly[0]
	maxLen := 0.0
	angle := math.NaN()
	for i := 0; i < len(ring)-1; i++ {
		dx := ring[i+1][0] - ring[i][0]
		dy := ring[i+1][1] - ring[i][1]
		length := math.Hypot(dx, dy)
		if length > maxLen {
			maxLen = length
			angle = math.Mod(math.Atan2(dy, dx)*180/math.Pi+360, 360)
		}
	}
	return angle
}

// Classify converts a bearing into a compass label. NaN and out-of-range
// angles that no sector covers return OrientationUnknown.
func Classify(angle float64) Orientation {
	for _, s := range sectors {
		if s.matches(angle) {
			return s.label
		}
	}
	return OrientationUnknown
}
