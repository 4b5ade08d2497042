// Package config loads solarmap settings from a YAML file and SOLARMAP_*
// environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/solarmap-go/internal/adapters/loader"
	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SOLARMAP_"

// Config is the full solarmap configuration.
type Config struct {
	Energy     entities.EnergyParams `yaml:"energy"`
	Input      InputConfig           `yaml:"input"`
	Store      StoreConfig           `yaml:"store"`
	Kafka      KafkaConfig           `yaml:"kafka"`
	Overpass   OverpassConfig        `yaml:"overpass"`
	Irradiance IrradianceConfig      `yaml:"irradiance"`
	HTTP       HTTPConfig            `yaml:"http"`
	Watch      WatchConfig           `yaml:"watch"`
	Log        LogConfig             `yaml:"log"`
}

// InputConfig controls how dataset files are read and reduced.
type InputConfig struct {
	Properties        loader.Properties `yaml:"properties"`
	CRS               string            `yaml:"crs"`
	BBox              []float64         `yaml:"bbox"` // minLon, minLat, maxLon, maxLat
	SimplifyTolerance float64           `yaml:"simplify_tolerance"`
	Workers           int               `yaml:"workers"`
}

// StoreConfig selects the SQL driver and DSN.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite3 or postgres
	DSN    string `yaml:"dsn"`
}

// KafkaConfig enables publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// OverpassConfig configures OSM footprint fetches.
type OverpassConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Timeout    time.Duration `yaml:"timeout"`
	DefaultGHI float64       `yaml:"default_ghi"` // Wh/m²/year
}

// IrradianceConfig configures NREL lookups; an empty APIKey disables them.
type IrradianceConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// HTTPConfig configures the data API.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
	TopK int    `yaml:"top_k"`
}

// WatchConfig names the directory kept in sync by watch mode.
type WatchConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig sets the log level and optional log file.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Energy: entities.DefaultEnergyParams(),
		Input: InputConfig{
			Properties:        loader.DefaultProperties(),
			CRS:               loader.CRSWGS84,
			SimplifyTolerance: 0.01,
		},
		Store: StoreConfig{
			Driver: "sqlite3",
			DSN:    "./data/solarmap.db",
		},
		Kafka: KafkaConfig{
			Topic: "solarmap.buildings",
		},
		Overpass: OverpassConfig{
			Endpoint:   "https://overpass-api.de/api/interpreter",
			Timeout:    60 * time.Second,
			DefaultGHI: 1400000,
		},
		Irradiance: IrradianceConfig{
			BaseURL:  "https://developer.nrel.gov",
			CacheTTL: 24 * time.Hour,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
			TopK: 10,
		},
		Watch: WatchConfig{
			Dir: "./datasets",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then a .env file when present, then the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config: %w", err)
		}
	}

	// A missing .env is fine; variables already set are not overwritten.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	num("SYSTEM_EFFICIENCY", &c.Energy.SystemEfficiency)
	num("DERATING_FACTOR", &c.Energy.DeratingFactor)
	num("USABLE_AREA_FRACTION", &c.Energy.UsableAreaFraction)

	str("INPUT_CRS", &c.Input.CRS)
	num("SIMPLIFY_TOLERANCE", &c.Input.SimplifyTolerance)
	integer("WORKERS", &c.Input.Workers)
	if v, ok := os.LookupEnv(EnvPrefix + "BBOX"); ok {
		vals, err := parseFloats(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sBBOX: %w", EnvPrefix, err))
		} else {
			c.Input.BBox = vals
		}
	}

	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DSN", &c.Store.DSN)

	if v, ok := os.LookupEnv(EnvPrefix + "KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
	}
	str("KAFKA_TOPIC", &c.Kafka.Topic)

	str("OVERPASS_ENDPOINT", &c.Overpass.Endpoint)
	duration("OVERPASS_TIMEOUT", &c.Overpass.Timeout)
	num("OVERPASS_DEFAULT_GHI", &c.Overpass.DefaultGHI)

	str("NREL_BASE_URL", &c.Irradiance.BaseURL)
	str("NREL_API_KEY", &c.Irradiance.APIKey)
	duration("NREL_CACHE_TTL", &c.Irradiance.CacheTTL)

	str("HTTP_ADDR", &c.HTTP.Addr)
	integer("TOP_K", &c.HTTP.TopK)
	str("WATCH_DIR", &c.Watch.Dir)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)

	return errors.Join(errs...)
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	for name, v := range map[string]float64{
		"energy.system_efficiency":    c.Energy.SystemEfficiency,
		"energy.derating_factor":      c.Energy.DeratingFactor,
		"energy.usable_area_fraction": c.Energy.UsableAreaFraction,
	} {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in (0, 1], got %v", name, v))
		}
	}
	if c.Input.SimplifyTolerance < 0 {
		errs = append(errs, fmt.Errorf("input.simplify_tolerance must be >= 0"))
	}
	if _, err := c.BBox(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// BBox returns the configured input filter, or the zero box when unset.
func (c Config) BBox() (entities.BBox, error) {
	if len(c.Input.BBox) == 0 {
		return entities.BBox{}, nil
	}
	if len(c.Input.BBox) != 4 {
		return entities.BBox{}, fmt.Errorf("input.bbox needs 4 values, got %d", len(c.Input.BBox))
	}
	b := entities.BBox{
		MinLon: c.Input.BBox[0],
		MinLat: c.Input.BBox[1],
		MaxLon: c.Input.BBox[2],
		MaxLat: c.Input.BBox[3],
	}
	if b.MinLon > b.MaxLon || b.MinLat > b.MaxLat {
		return entities.BBox{}, fmt.Errorf("input.bbox min must be <= max")
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseFloats(v string) ([]float64, error) {
	parts := splitList(v)
	out := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
