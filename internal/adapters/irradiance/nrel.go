// Package irradiance fills missing annual GHI from the NREL PVWatts API.
package irradiance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultBaseURL is the NREL developer API root.
const DefaultBaseURL = "https://developer.nrel.gov"

// ErrNoAPIKey is returned when the client is built without an API key.
var ErrNoAPIKey = errors.New("nrel api key not configured")

// cellSize is the grid, in degrees, lookups are snapped to before caching.
const cellSize = 0.01

// DefaultFailureTTL bounds how long a failed cell lookup is remembered.
const DefaultFailureTTL = 10 * time.Minute

// lookup is a cached cell result. A failed lookup keeps its error.
type lookup struct {
	ghi float64
	err error
}

// NRELClient implements ports.IrradianceProvider using PVWatts v8.
type NRELClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cache   *Cache[lookup]

	failureTTL time.Duration

	mu    sync.Mutex
	cells map[string]*sync.Mutex
}

// NewNRELClient creates a client. Results are cached per 0.01° cell for ttl;
// failed lookups are cached for DefaultFailureTTL, or ttl if shorter.
func NewNRELClient(baseURL, apiKey string, ttl time.Duration, obs Observer) (*NRELClient, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &NRELClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache:      NewCache[lookup](ttl, obs),
		failureTTL: min(ttl, DefaultFailureTTL),
		cells:      make(map[string]*sync.Mutex),
	}, nil
}

// pvwattsResponse is the part of the PVWatts v8 response the client reads.
type pvwattsResponse struct {
	Errors  []string `json:"errors"`
	Outputs struct {
		SolradAnnual *float64 `json:"solrad_annual"`
	} `json:"outputs"`
}

// AnnualGHI returns annual global horizontal irradiance in Wh/m²/year.
func (c *NRELClient) AnnualGHI(ctx context.Context, lat, lon float64) (float64, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return 0, fmt.Errorf("location required")
	}
	lat, lon = snap(lat), snap(lon)
	key := strconv.FormatFloat(lat, 'f', 2, 64) + "," + strconv.FormatFloat(lon, 'f', 2, 64)
	if v, ok := c.cache.Get(key); ok {
		return v.ghi, v.err
	}

	// Concurrent misses on one cell share a single request.
	cell := c.cellLock(key)
	cell.Lock()
	defer cell.Unlock()
	if v, ok := c.cache.peek(key); ok {
		return v.ghi, v.err
	}

	ghi, err := c.fetch(ctx, lat, lon)
	if err != nil {
		// A cancelled caller says nothing about the cell.
		if ctx.Err() == nil {
			c.cache.SetTTL(key, lookup{err: err}, c.failureTTL)
		}
		return 0, err
	}
	c.cache.Set(key, lookup{ghi: ghi})
	return ghi, nil
}

func (c *NRELClient) cellLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.cells[key]
	if !ok {
		m = &sync.Mutex{}
		c.cells[key] = m
	}
	return m
}

func (c *NRELClient) fetch(ctx context.Context, lat, lon float64) (float64, error) {
	// A flat array (tilt 0) makes plane-of-array irradiance equal to GHI.
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("lat", strconv.FormatFloat(lat, 'f', 2, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 2, 64))
	q.Set("system_capacity", "1")
	q.Set("module_type", "0")
	q.Set("losses", "14")
	q.Set("array_type", "0")
	q.Set("tilt", "0")
	q.Set("azimuth", "180")

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/pvwatts/v8.json?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling PVWatts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("PVWatts returned status %d", resp.StatusCode)
	}

	var body pvwattsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}
	if len(body.Errors) > 0 {
		return 0, fmt.Errorf("PVWatts: %s", strings.Join(body.Errors, "; "))
	}
	if body.Outputs.SolradAnnual == nil {
		return 0, fmt.Errorf("PVWatts response has no solrad_annual")
	}

	// kWh/m²/day to Wh/m²/year.
	return *body.Outputs.SolradAnnual * 365 * 1000, nil
}

func snap(v float64) float64 {
	return math.Round(v/cellSize) * cellSize
}
