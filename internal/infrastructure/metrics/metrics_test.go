package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMetrics_EnrichCounters(t *testing.T) {
	m := New()
	m.BuildingEnriched(entities.OrientationSouth, 100)
	m.BuildingEnriched(entities.OrientationSouth, 50)
	m.BuildingSkipped("no_geometry")
	m.RunFinished(2 * time.Second)
	m.CacheHit()

	out := scrape(t, m)
	for _, want := range []string{
		`solarmap_buildings_enriched_total{orientation="South"} 2`,
		`solarmap_kwh_estimate_total{orientation="South"} 150`,
		`solarmap_buildings_skipped_total{reason="no_geometry"} 1`,
		`solarmap_enrich_duration_seconds_count 1`,
		`irradiance_cache_hits_total 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in scrape output", want)
		}
	}
}

func TestMetrics_WrapHandler(t *testing.T) {
	m := New()
	h := m.WrapHandler("/api/summary", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/summary", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status not passed through: %d", rec.Code)
	}

	if !strings.Contains(scrape(t, m), `http_requests_total{route="/api/summary",status="418"} 1`) {
		t.Error("request not counted")
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.BuildingEnriched(entities.OrientationEast, 1)
	m.BuildingSkipped("x")
	m.RunFinished(time.Second)
	m.CacheHit()
	m.CacheMiss()

	rec := httptest.NewRecorder()
	m.WrapHandler("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
