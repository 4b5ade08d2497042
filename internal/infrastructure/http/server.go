// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/0xcro3dile/solarmap-go/internal/adapters/loader"
	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
	"github.com/0xcro3dile/solarmap-go/internal/domain/ports"
	"github.com/0xcro3dile/solarmap-go/internal/domain/usecases"
	"github.com/0xcro3dile/solarmap-go/internal/infrastructure/metrics"
)

// maxLimit caps the number of features a single request may return.
const maxLimit = 100000

// Server is the HTTP server for the building data API.
type Server struct {
	query     *usecases.QueryUseCase
	metrics   *metrics.Metrics
	log       *slog.Logger
	accessLog io.Writer
	addr      string
}

// NewServer creates a new HTTP server. accessLog receives one line per
// request in combined log format; nil means stdout.
func NewServer(query *usecases.QueryUseCase, m *metrics.Metrics, log *slog.Logger, accessLog io.Writer, addr string) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if accessLog == nil {
		accessLog = os.Stdout
	}
	return &Server{
		query:     query,
		metrics:   m,
		log:       log.With("component", "http"),
		accessLog: accessLog,
		addr:      addr,
	}
}

// Handler returns the routed API with access logging and CORS applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	s.route(api, "/health", s.handleHealth)
	s.route(api, "/options", s.handleOptions)
	s.route(api, "/buildings", s.handleBuildings)
	s.route(api, "/buildings/top", s.handleTop)
	s.route(api, "/summary", s.handleSummary)
	s.route(api, "/runs/latest", s.handleLatestRun)

	r.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	return handlers.LoggingHandler(s.accessLog, corsMiddleware(r))
}

func (s *Server) route(r *mux.Router, path string, h http.HandlerFunc) {
	r.Handle(path, s.metrics.WrapHandler("/api"+path, h)).Methods("GET", "OPTIONS")
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.log.Info("server starting", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// handleOptions lists the selectable metrics and orientations.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	present, err := s.query.Orientations(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	labels := make([]string, len(present))
	for i, o := range present {
		labels[i] = string(o)
	}
	sort.Strings(labels)

	orientations := []option{{Label: "All", Value: "all"}}
	for _, l := range labels {
		orientations = append(orientations, option{Label: l, Value: l})
	}

	var ms []option
	for _, m := range entities.Metrics() {
		ms = append(ms, option{Label: m.Label(), Value: string(m)})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics":      ms,
		"orientations": orientations,
	})
}

// handleBuildings returns matching buildings as a GeoJSON FeatureCollection.
func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter entities.BuildingFilter

	if v := q.Get("orientation"); v != "" && !strings.EqualFold(v, "all") {
		o, ok := entities.ParseOrientation(v)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown orientation %q", v))
			return
		}
		filter.Orientation = o
	}

	if v := q.Get("bbox"); v != "" {
		bbox, err := ParseBBox(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.BBox = bbox
	}

	limit, err := intParam(q.Get("limit"), 0, maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}
	filter.Limit = limit

	buildings, err := s.query.Buildings(r.Context(), filter)
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	if err := loader.Encode(w, buildings); err != nil {
		s.log.Error("encoding buildings", "error", err)
	}
}

type topRow struct {
	Rank        int      `json:"rank"`
	ID          string   `json:"bldg_id"`
	Source      string   `json:"source"`
	Orientation string   `json:"orientation"`
	Value       *float64 `json:"value"`
	GHI         *float64 `json:"ghi_sum"`
	KWhEstimate *float64 `json:"kwh_estimate"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
}

// handleTop returns the top-k buildings by metric.
func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	k, err := intParam(q.Get("k"), 0, 1000)
	if err != nil {
		writeError(w, http.StatusBadRequest, "k: "+err.Error())
		return
	}

	ranked, err := s.query.Top(r.Context(), entities.Metric(q.Get("metric")), k)
	if errors.Is(err, usecases.ErrUnknownMetric) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	rows := make([]topRow, len(ranked))
	for i, rb := range ranked {
		b := rb.Building
		rows[i] = topRow{
			Rank:        rb.Rank,
			ID:          b.ID,
			Source:      b.SourceID,
			Orientation: string(b.Orientation),
			Value:       ptr(rb.Value),
			GHI:         ptr(b.GHI),
			KWhEstimate: ptr(b.KWhEstimate),
			Lat:         ptr(b.Lat),
			Lon:         ptr(b.Lon),
		}
	}
	writeJSON(w, http.StatusOK, rows)
}

type groupJSON struct {
	Orientation string  `json:"orientation"`
	Count       int     `json:"count"`
	TotalKWh    float64 `json:"total_kwh"`
	MeanKWh     float64 `json:"mean_kwh"`
	MedianKWh   float64 `json:"median_kwh"`
	P90KWh      float64 `json:"p90_kwh"`
}

// handleSummary returns per-orientation statistics.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.query.Summary(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	groups := make([]groupJSON, len(summary.Groups))
	for i, g := range summary.Groups {
		groups[i] = groupJSON{
			Orientation: string(g.Orientation),
			Count:       g.Count,
			TotalKWh:    g.TotalKWh,
			MeanKWh:     g.MeanKWh,
			MedianKWh:   g.MedianKWh,
			P90KWh:      g.P90KWh,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"buildings": summary.Buildings,
		"total_kwh": summary.TotalKWh,
		"groups":    groups,
	})
}

// handleLatestRun returns metadata about the last enrichment pass.
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.query.LatestRun(r.Context())
	if errors.Is(err, ports.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no runs recorded")
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          run.ID,
		"source_id":   run.SourceID,
		"source_path": run.SourcePath,
		"loaded":      run.Loaded,
		"stored":      run.Stored,
		"skipped":     run.Skipped,
		"started_at":  run.StartedAt,
		"finished_at": run.FinishedAt,
	})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
func ParseBBox(v string) (entities.BBox, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return entities.BBox{}, fmt.Errorf("bbox must have 4 components, got %d", len(parts))
	}

	var vals [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return entities.BBox{}, fmt.Errorf("invalid bbox component %q", p)
		}
		vals[i] = f
	}
	b := entities.BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}

	if b.MinLat < -90 || b.MinLat > 90 || b.MaxLat < -90 || b.MaxLat > 90 {
		return entities.BBox{}, fmt.Errorf("latitude out of range [-90, 90]")
	}
	if b.MinLon < -180 || b.MinLon > 180 || b.MaxLon < -180 || b.MaxLon > 180 {
		return entities.BBox{}, fmt.Errorf("longitude out of range [-180, 180]")
	}
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return entities.BBox{}, fmt.Errorf("min must be <= max")
	}
	return b, nil
}

func intParam(v string, def, max int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	if n > max {
		return 0, fmt.Errorf("must be at most %d", max)
	}
	return n, nil
}

func ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			return
		}
		next.ServeHTTP(w, r)
	})
}
