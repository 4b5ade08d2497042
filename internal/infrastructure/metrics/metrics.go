// Package metrics exposes Prometheus instrumentation for the HTTP API,
// enrichment runs and the irradiance cache.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
)

// Metrics holds every collector. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry          *prometheus.Registry
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	enrichedTotal     *prometheus.CounterVec
	kwhTotal          *prometheus.CounterVec
	skippedTotal      *prometheus.CounterVec
	runDuration       prometheus.Histogram
	lastRun           prometheus.Gauge
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		enrichedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solarmap_buildings_enriched_total",
			Help: "Buildings enriched by orientation.",
		}, []string{"orientation"}),
		kwhTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solarmap_kwh_estimate_total",
			Help: "Sum of estimated annual kWh of enriched buildings by orientation.",
		}, []string{"orientation"}),
		skippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solarmap_buildings_skipped_total",
			Help: "Buildings skipped during enrichment by reason.",
		}, []string{"reason"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "solarmap_enrich_duration_seconds",
			Help:    "Histogram of enrichment run durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solarmap_last_run_timestamp_seconds",
			Help: "Unix time the last enrichment run finished.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irradiance_cache_hits_total",
			Help: "Total irradiance cache hits observed.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irradiance_cache_misses_total",
			Help: "Total irradiance cache misses observed.",
		}),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.enrichedTotal,
		m.kwhTotal,
		m.skippedTotal,
		m.runDuration,
		m.lastRun,
		m.cacheHits,
		m.cacheMisses,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and latency for route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		duration := time.Since(start).Seconds()
		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(duration)
		}
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) BuildingEnriched(o entities.Orientation, kwh float64) {
	if m == nil {
		return
	}
	m.enrichedTotal.WithLabelValues(string(o)).Inc()
	if kwh > 0 {
		m.kwhTotal.WithLabelValues(string(o)).Add(kwh)
	}
}

func (m *Metrics) BuildingSkipped(reason string) {
	if m == nil {
		return
	}
	m.skippedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RunFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
	m.lastRun.SetToCurrentTime()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}
