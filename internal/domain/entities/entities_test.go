package entities

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func square(size float64) orb.Polygon {
	return orb.Polygon{{{0, 0}, {size, 0}, {size, size}, {0, size}, {0, 0}}}
}

func TestComputeOrientation_NonPolygon(t *testing.T) {
	cases := map[string]orb.Geometry{
		"nil":          nil,
		"point":        orb.Point{1, 2},
		"linestring":   orb.LineString{{0, 0}, {1, 1}},
		"multipolygon": orb.MultiPolygon{square(1)},
		"empty":        orb.Polygon{},
	}
	for name, g := range cases {
		if got := ComputeOrientation(g); !math.IsNaN(got) {
			t.Errorf("%s: expected NaN, got %f", name, got)
		}
	}
}

func TestComputeOrientation_LongestEdge(t *testing.T) {
	// 10 wide, 2 tall: longest edges are horizontal, first one heads east.
	rect := orb.Polygon{{{0, 0}, {10, 0}, {10, 2}, {0, 2}, {0, 0}}}
	if got := ComputeOrientation(rect); !near(got, 0) {
		t.Errorf("expected 0, got %f", got)
	}

	// Longest edge goes straight up the y-axis.
	tall := orb.Polygon{{{0, 0}, {1, 0}, {1, 8}, {0, 8}, {0, 0}}}
	if got := ComputeOrientation(tall); !near(got, 90) {
		t.Errorf("expected 90, got %f", got)
	}
}

func TestComputeOrientation_NegativeBearingNormalized(t *testing.T) {
	// Longest edge runs from (0,10) down to (0,0): atan2(-10, 0) = -90.
	poly := orb.Polygon{{{0, 10}, {0, 0}, {1, 0}, {1, 1}, {0, 10}}}
	if got := ComputeOrientation(poly); !near(got, 270) {
		t.Errorf("expected 270, got %f", got)
	}
}

func TestComputeOrientation_SquareTieBreak(t *testing.T) {
	// All four edges are equal; the first (east-bound) must win.
	if got := ComputeOrientation(square(5)); !near(got, 0) {
		t.Errorf("expected first edge bearing 0, got %f", got)
	}

	// Same square starting from a different vertex picks that vertex's edge.
	rotated := orb.Polygon{{{5, 0}, {5, 5}, {0, 5}, {0, 0}, {5, 0}}}
	if got := ComputeOrientation(rotated); !near(got, 90) {
		t.Errorf("expected 90, got %f", got)
	}
}

func TestComputeOrientation_Degenerate(t *testing.T) {
	poly := orb.Polygon{{{3, 3}, {3, 3}, {3, 3}, {3, 3}}}
	if got := ComputeOrientation(poly); !math.IsNaN(got) {
		t.Errorf("expected NaN for zero-length edges, got %f", got)
	}
}

func TestClassify_Boundaries(t *testing.T) {
	cases := []struct {
		angle float64
		want  Orientation
	}{
		{0, OrientationNorth},
		{22.4, OrientationNorth},
		{22.5, OrientationNortheast},
		{45, OrientationNortheast},
		{67.5, OrientationEast},
		{112.5, OrientationSoutheast},
		{157.5, OrientationSouth},
		{180, OrientationSouth},
		{202.5, OrientationSouthwest},
		{247.5, OrientationWest},
		{292.5, OrientationNorthwest},
		{337.4, OrientationNorthwest},
		{337.5, OrientationNorth},
		{359.9, OrientationNorth},
	}
	for _, c := range cases {
		if got := Classify(c.angle); got != c.want {
			t.Errorf("Classify(%v) = %s, want %s", c.angle, got, c.want)
		}
	}
}

func TestClassify_Unknown(t *testing.T) {
	for _, a := range []float64{math.NaN(), 360, -1, 720} {
		if got := Classify(a); got != OrientationUnknown {
			t.Errorf("Classify(%v) = %s, want Unknown", a, got)
		}
	}
}

func TestClassify_ExactlyOneSectorPerDegree(t *testing.T) {
	for a := 0.0; a < 360; a += 0.25 {
		n := 0
		for _, s := range sectors {
			if s.matches(a) {
				n++
			}
		}
		if n != 1 {
			t.Fatalf("angle %v matched %d sectors", a, n)
		}
	}
}

func TestClassify_Idempotent(t *testing.T) {
	first := Classify(123.4)
	for i := 0; i < 5; i++ {
		if got := Classify(123.4); got != first {
			t.Fatalf("classify not stable: %s vs %s", got, first)
		}
	}
}

func TestClassify_OfComputedOrientation(t *testing.T) {
	vocab := map[Orientation]bool{}
	for _, o := range Orientations() {
		vocab[o] = true
	}
	polys := []orb.Geometry{
		square(1),
		orb.Polygon{{{0, 0}, {3, 4}, {0, 4}, {0, 0}}},
		orb.Polygon{{{0, 0}, {-3, -4}, {0, -4}, {0, 0}}},
		orb.Point{0, 0},
	}
	for _, p := range polys {
		if got := Classify(ComputeOrientation(p)); !vocab[got] {
			t.Errorf("label %q outside vocabulary", got)
		}
	}
}

func TestParseOrientation(t *testing.T) {
	o, ok := ParseOrientation("southwest")
	if !ok || o != OrientationSouthwest {
		t.Errorf("expected Southwest, got %q %v", o, ok)
	}
	if _, ok := ParseOrientation("up"); ok {
		t.Error("unexpected match for bogus label")
	}
}

func TestEstimateKWh_Regression(t *testing.T) {
	if got := DefaultEnergyParams().EstimateKWh(1000, 100); !near(got, 10.395) {
		t.Errorf("expected 10.395, got %v", got)
	}
}

func TestEstimateKWh_Guard(t *testing.T) {
	p := DefaultEnergyParams()
	nan := math.NaN()
	cases := []struct{ ghi, area float64 }{
		{0, 100},
		{-5, 100},
		{nan, 100},
		{nan, nan},
		{1000, 0},
		{1000, -1},
		{1000, nan},
	}
	for _, c := range cases {
		if got := p.EstimateKWh(c.ghi, c.area); got != 0 {
			t.Errorf("EstimateKWh(%v, %v) = %v, want 0", c.ghi, c.area, got)
		}
	}
}

func TestEstimateKWh_CustomParams(t *testing.T) {
	p := EnergyParams{SystemEfficiency: 0.2, DeratingFactor: 1, UsableAreaFraction: 1}
	if got := p.EstimateKWh(1000, 10); !near(got, 2) {
		t.Errorf("expected 2, got %v", got)
	}
}

func TestBBox_ContainsInclusive(t *testing.T) {
	b := BBox{MinLon: -87.67, MinLat: 41.87, MaxLon: -87.62, MaxLat: 41.92}
	if !b.Contains(-87.67, 41.87) || !b.Contains(-87.62, 41.92) {
		t.Error("edges should be inside")
	}
	if b.Contains(-87.61, 41.9) {
		t.Error("point east of box should be outside")
	}
}

func TestMetric_Value(t *testing.T) {
	b := NewBuilding("b1", "src", nil)
	b.GHI = 1200
	b.KWhEstimate = 42
	if MetricGHI.Value(b) != 1200 || MetricKWh.Value(b) != 42 {
		t.Error("metric values not extracted")
	}
	if !math.IsNaN(Metric("bogus").Value(b)) {
		t.Error("unknown metric should be NaN")
	}
}

func TestFootprintArea(t *testing.T) {
	// Roughly 0.0001° x 0.0001° near Chicago is on the order of 100 m².
	poly := orb.Polygon{{{-87.63, 41.88}, {-87.6299, 41.88}, {-87.6299, 41.8801}, {-87.63, 41.8801}, {-87.63, 41.88}}}
	area := FootprintArea(poly)
	if area < 50 || area > 150 {
		t.Errorf("unexpected area %f", area)
	}
}

func TestSourceID_Stable(t *testing.T) {
	if SourceID("data/a.geojson") != SourceID("data/a.geojson") {
		t.Error("source id should be deterministic")
	}
	if SourceID("data/a.geojson") == SourceID("data/b.geojson") {
		t.Error("different paths should differ")
	}
	if len(SourceID("x")) != 16 {
		t.Errorf("expected 16 hex chars, got %q", SourceID("x"))
	}
}
