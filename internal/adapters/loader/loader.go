// Package loader reads and writes building footprint datasets.
package loader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"

	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
)

var (
	// ErrUnsupportedFormat is returned for files no loader handles.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrUnsupportedCRS is returned when the source CRS cannot be reprojected.
	ErrUnsupportedCRS = errors.New("unsupported CRS")
)

// Supported source coordinate reference systems.
const (
	CRSWGS84        = "EPSG:4326"
	CRSWebMercator  = "EPSG:3857"
	defaultIDPrefix = "feature-"
)

// Properties names the GeoJSON feature properties a loader reads.
type Properties struct {
	ID       string `yaml:"id"`
	GHI      string `yaml:"ghi"`
	Lat      string `yaml:"lat"`
	Lon      string `yaml:"lon"`
	RoofArea string `yaml:"roof_area"`
}

// DefaultProperties matches the solar summary dataset column names.
func DefaultProperties() Properties {
	return Properties{
		ID:       "bldg_id",
		GHI:      "ghi_sum",
		Lat:      "lat",
		Lon:      "lon",
		RoofArea: "roof_area",
	}
}

// GeoJSONLoader loads building footprints from GeoJSON FeatureCollections.
type GeoJSONLoader struct {
	props    Properties
	toWGS84  orb.Projection
	extnames []string
}

// NewGeoJSONLoader creates a loader for files in the given source CRS.
// An empty CRS is treated as WGS84.
func NewGeoJSONLoader(props Properties, sourceCRS string) (*GeoJSONLoader, error) {
	l := &GeoJSONLoader{props: props, extnames: []string{".geojson", ".json"}}
	switch strings.ToUpper(strings.TrimSpace(sourceCRS)) {
	case "", CRSWGS84:
	case CRSWebMercator:
		l.toWGS84 = project.Mercator.ToWGS84
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCRS, sourceCRS)
	}
	return l, nil
}

// Load reads all buildings from a GeoJSON file. Features without geometry are
// still returned so enrichment can count them as skipped.
func (l *GeoJSONLoader) Load(ctx context.Context, path string) ([]entities.Building, error) {
	if !l.supports(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	sourceID := entities.SourceID(path)
	buildings := make([]entities.Building, 0, len(fc.Features))
	for i, f := range fc.Features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buildings = append(buildings, l.toBuilding(sourceID, i, f))
	}
	return buildings, nil
}

// SupportedExtensions returns file extensions this loader handles.
func (l *GeoJSONLoader) SupportedExtensions() []string {
	return l.extnames
}

func (l *GeoJSONLoader) supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range l.extnames {
		if ext == e {
			return true
		}
	}
	return false
}

func (l *GeoJSONLoader) toBuilding(sourceID string, index int, f *geojson.Feature) entities.Building {
	geom := f.Geometry
	if geom != nil && l.toWGS84 != nil {
		geom = project.Geometry(geom, l.toWGS84)
	}

	b := entities.NewBuilding(featureID(f, l.props.ID, index), sourceID, geom)
	b.GHI = number(f.Properties[l.props.GHI])
	b.Lat = number(f.Properties[l.props.Lat])
	b.Lon = number(f.Properties[l.props.Lon])
	b.RoofArea = number(f.Properties[l.props.RoofArea])
	return b
}

func featureID(f *geojson.Feature, key string, index int) string {
	if v, ok := f.Properties[key]; ok && v != nil {
		if s := text(v); s != "" {
			return s
		}
	}
	if f.ID != nil {
		if s := text(f.ID); s != "" {
			return s
		}
	}
	return defaultIDPrefix + strconv.Itoa(index)
}

func text(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// number converts a JSON property to float64; absent or unparsable values are NaN.
func number(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
