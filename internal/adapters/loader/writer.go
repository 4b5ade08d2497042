package loader

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
)

// ToFeatureCollection renders buildings as WGS84 GeoJSON. Each feature gets a
// "uid" property equal to its position so map front-ends can join on it.
func ToFeatureCollection(buildings []entities.Building) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, b := range buildings {
		if b.Footprint == nil {
			continue
		}
		f := geojson.NewFeature(b.Footprint)
		uid := strconv.Itoa(i)
		f.ID = uid
		f.Properties["uid"] = uid
		f.Properties["bldg_id"] = b.ID
		f.Properties["ghi_sum"] = nullable(b.GHI)
		f.Properties["lon"] = nullable(b.Lon)
		f.Properties["lat"] = nullable(b.Lat)
		f.Properties["orientation"] = string(b.Orientation)
		f.Properties["kwh_estimate"] = nullable(b.KWhEstimate)
		f.Properties["azimuth"] = nullable(b.Azimuth)
		fc.Append(f)
	}
	return fc
}

// Encode writes buildings as a GeoJSON FeatureCollection.
func Encode(w io.Writer, buildings []entities.Building) error {
	return json.NewEncoder(w).Encode(ToFeatureCollection(buildings))
}

// WriteFile writes the reduced dataset to path.
func WriteFile(path string, buildings []entities.Building) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Encode(f, buildings); err != nil {
		f.Close()
		return fmt.Errorf("encoding geojson: %w", err)
	}
	return f.Close()
}

// nullable maps NaN, which JSON cannot represent, to null.
func nullable(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
