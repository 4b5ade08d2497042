package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/0xcro3dile/solarmap-go/internal/adapters/store"
	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
	"github.com/0xcro3dile/solarmap-go/internal/domain/usecases"
	"github.com/0xcro3dile/solarmap-go/internal/infrastructure/metrics"
)

func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()

	mk := func(id string, o entities.Orientation, lon, lat, kwh float64) entities.Building {
		b := entities.NewBuilding(id, "", orb.Polygon{{{lon, lat}, {lon + 0.0001, lat}, {lon + 0.0001, lat + 0.0001}, {lon, lat}}})
		b.Lon, b.Lat = lon, lat
		b.Orientation = o
		b.KWhEstimate = kwh
		b.GHI = kwh * 100
		return b
	}
	st.Replace(context.Background(), "src", []entities.Building{
		mk("a", entities.OrientationSouth, -87.65, 41.90, 10),
		mk("b", entities.OrientationSouth, -87.64, 41.91, 30),
		mk("c", entities.OrientationWest, -87.00, 41.00, 20),
	})

	query := usecases.NewQueryUseCase(st, 10)
	return NewServer(query, metrics.New(), nil, io.Discard, ":0"), st
}

func get(t *testing.T, s *Server, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", url, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/health")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected health response: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}
}

func TestServer_Options(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/options")

	var body struct {
		Metrics      []option `json:"metrics"`
		Orientations []option `json:"orientations"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(body.Metrics) != 2 || body.Metrics[0].Label != "Annual GHI (kWh/m²)" {
		t.Errorf("unexpected metric options: %+v", body.Metrics)
	}
	want := []string{"all", "South", "West"}
	if len(body.Orientations) != len(want) {
		t.Fatalf("expected %v, got %+v", want, body.Orientations)
	}
	for i, w := range want {
		if body.Orientations[i].Value != w {
			t.Errorf("orientation %d: expected %s, got %s", i, w, body.Orientations[i].Value)
		}
	}
}

func TestServer_Buildings(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		url  string
		code int
		n    int
	}{
		{"/api/buildings", http.StatusOK, 3},
		{"/api/buildings?orientation=all", http.StatusOK, 3},
		{"/api/buildings?orientation=south", http.StatusOK, 2},
		{"/api/buildings?bbox=-87.67,41.87,-87.62,41.92", http.StatusOK, 2},
		{"/api/buildings?limit=1", http.StatusOK, 1},
		{"/api/buildings?orientation=Up", http.StatusBadRequest, 0},
		{"/api/buildings?bbox=1,2,3", http.StatusBadRequest, 0},
		{"/api/buildings?limit=-4", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		rec := get(t, s, tt.url)
		if rec.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.url, tt.code, rec.Code)
			continue
		}
		if tt.code != http.StatusOK {
			continue
		}
		var fc struct {
			Features []struct {
				Properties map[string]interface{} `json:"properties"`
			} `json:"features"`
		}
		json.NewDecoder(rec.Body).Decode(&fc)
		if len(fc.Features) != tt.n {
			t.Errorf("%s: expected %d features, got %d", tt.url, tt.n, len(fc.Features))
		}
		if len(fc.Features) > 0 && fc.Features[0].Properties["uid"] != "0" {
			t.Errorf("%s: expected uid 0, got %v", tt.url, fc.Features[0].Properties["uid"])
		}
	}
}

func TestServer_Top(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/api/buildings/top?k=2")
	var rows []topRow
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "b" || rows[0].Rank != 1 || *rows[0].Value != 30 {
		t.Errorf("unexpected top rows: %+v", rows)
	}

	if rec := get(t, s, "/api/buildings/top?metric=height"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown metric, got %d", rec.Code)
	}
	if rec := get(t, s, "/api/buildings/top?k=abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad k, got %d", rec.Code)
	}
}

func TestServer_Summary(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/summary")

	var body struct {
		Buildings int         `json:"buildings"`
		TotalKWh  float64     `json:"total_kwh"`
		Groups    []groupJSON `json:"groups"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Buildings != 3 || body.TotalKWh != 60 {
		t.Errorf("unexpected summary: %+v", body)
	}
	if len(body.Groups) != 2 || body.Groups[0].Orientation != "South" || body.Groups[0].MeanKWh != 20 {
		t.Errorf("unexpected groups: %+v", body.Groups)
	}
}

func TestServer_LatestRun(t *testing.T) {
	s, st := newTestServer(t)
	if rec := get(t, s, "/api/runs/latest"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before any run, got %d", rec.Code)
	}

	st.RecordRun(context.Background(), entities.Run{ID: "r1", Loaded: 3, Stored: 3, FinishedAt: time.Now()})
	rec := get(t, s, "/api/runs/latest")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"r1"`) {
		t.Errorf("unexpected run response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_Metrics(t *testing.T) {
	s, _ := newTestServer(t)
	get(t, s, "/api/health")

	rec := get(t, s, "/metrics")
	if !strings.Contains(rec.Body.String(), `http_requests_total{route="/api/health",status="200"} 1`) {
		t.Error("health request not counted in /metrics")
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/summary", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("-87.67, 41.87, -87.62, 41.92")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if b.MinLon != -87.67 || b.MaxLat != 41.92 {
		t.Errorf("unexpected bbox %+v", b)
	}

	for _, bad := range []string{"", "a,b,c,d", "0,95,1,96", "0,0,200,1", "1,1,0,0"} {
		if _, err := ParseBBox(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
