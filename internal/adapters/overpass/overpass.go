// Package overpass fetches OSM building footprints from an Overpass API endpoint.
package overpass

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/serjvanilla/go-overpass"

	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
)

// DefaultEndpoint is the public Overpass interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// SourcePrefix prefixes the ids of buildings fetched from OSM.
const SourcePrefix = "osm-way-"

// Provider implements ports.FootprintProvider.
type Provider struct {
	client     *overpass.Client
	timeout    time.Duration
	defaultGHI float64
}

// NewProvider creates a provider. defaultGHI (Wh/m²/year) is assigned to every
// footprint since OSM carries no irradiance; pass NaN to leave it missing.
func NewProvider(endpoint string, timeout time.Duration, defaultGHI float64) *Provider {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{
		Timeout: timeout,
	}
	client := overpass.NewWithSettings(endpoint, 2, httpClient)
	return &Provider{
		client:     &client,
		timeout:    timeout,
		defaultGHI: defaultGHI,
	}
}

type queryResult struct {
	result overpass.Result
	err    error
}

// Footprints returns every closed building way inside bbox. The Overpass
// client takes no context, so a cancelled ctx returns at once while the
// request itself runs on until the provider timeout.
func (p *Provider) Footprints(ctx context.Context, bbox entities.BBox) ([]entities.Building, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan queryResult, 1)
	go func() {
		r, err := p.client.Query(Query(bbox, p.timeout))
		done <- queryResult{result: r, err: err}
	}()

	var result overpass.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("overpass query failed: %w", r.err)
		}
		result = r.result
	}

	ways := make([]way, 0, len(result.Ways))
	for _, w := range result.Ways {
		coords := make([][2]float64, 0, len(w.Nodes))
		for _, n := range w.Nodes {
			if n == nil {
				continue
			}
			coords = append(coords, [2]float64{n.Lon, n.Lat})
		}
		ways = append(ways, way{id: w.ID, coords: coords})
	}
	return toBuildings(ways, p.defaultGHI), nil
}

// Query builds the Overpass QL for building ways in bbox. Overpass expects
// (south,west,north,east).
func Query(bbox entities.BBox, timeout time.Duration) string {
	return fmt.Sprintf(`[out:json][timeout:%d];
way["building"](%s,%s,%s,%s);
out body;
>;
out skel qt;`,
		int(math.Ceil(timeout.Seconds())),
		coord(bbox.MinLat), coord(bbox.MinLon), coord(bbox.MaxLat), coord(bbox.MaxLon))
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// way is the part of an OSM way the provider uses.
type way struct {
	id     int64
	coords [][2]float64 // lon, lat
}

// toBuildings converts ways to buildings ordered by OSM id. Ways that do not
// close into a ring of at least four points are dropped.
func toBuildings(ways []way, defaultGHI float64) []entities.Building {
	sort.Slice(ways, func(i, j int) bool { return ways[i].id < ways[j].id })

	out := make([]entities.Building, 0, len(ways))
	for _, w := range ways {
		ring := ringOf(w.coords)
		if ring == nil {
			continue
		}
		b := entities.NewBuilding(SourcePrefix+strconv.FormatInt(w.id, 10), "", orb.Polygon{ring})
		b.GHI = defaultGHI
		out = append(out, b)
	}
	return out
}

func ringOf(coords [][2]float64) orb.Ring {
	if len(coords) < 4 {
		return nil
	}
	first, last := coords[0], coords[len(coords)-1]
	if first != last {
		return nil
	}
	ring := make(orb.Ring, len(coords))
	for i, c := range coords {
		ring[i] = orb.Point{c[0], c[1]}
	}
	return ring
}
