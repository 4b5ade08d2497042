package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "solarmap.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Energy.SystemEfficiency != 0.18 || cfg.Energy.DeratingFactor != 0.77 || cfg.Energy.UsableAreaFraction != 0.75 {
		t.Errorf("unexpected energy defaults: %+v", cfg.Energy)
	}
	if cfg.Store.Driver != "sqlite3" || cfg.HTTP.Addr != ":8080" || cfg.Input.Properties.ID != "bldg_id" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if b, _ := cfg.BBox(); !b.IsZero() {
		t.Errorf("bbox should be unset by default, got %+v", b)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
energy:
  system_efficiency: 0.2
input:
  crs: EPSG:3857
  bbox: [-87.67, 41.87, -87.62, 41.92]
  properties:
    ghi: irradiance
kafka:
  brokers: [localhost:9092]
overpass:
  timeout: 30s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Energy.SystemEfficiency != 0.2 || cfg.Energy.DeratingFactor != 0.77 {
		t.Errorf("file should override only listed keys: %+v", cfg.Energy)
	}
	if cfg.Input.CRS != "EPSG:3857" || cfg.Input.Properties.GHI != "irradiance" {
		t.Errorf("input not loaded: %+v", cfg.Input)
	}
	if cfg.Overpass.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.Overpass.Timeout)
	}
	b, err := cfg.BBox()
	if err != nil || b.MinLon != -87.67 || b.MaxLat != 41.92 {
		t.Errorf("unexpected bbox %+v (%v)", b, err)
	}
	if len(cfg.Kafka.Brokers) != 1 {
		t.Errorf("expected 1 broker, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "http:\n  addr: \":9000\"\n")
	t.Setenv("SOLARMAP_HTTP_ADDR", ":7000")
	t.Setenv("SOLARMAP_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("SOLARMAP_DERATING_FACTOR", "0.8")
	t.Setenv("SOLARMAP_BBOX", "0,0,1,1")
	t.Setenv("SOLARMAP_NREL_CACHE_TTL", "2h")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTP.Addr != ":7000" {
		t.Errorf("env should win, got %s", cfg.HTTP.Addr)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Energy.DeratingFactor != 0.8 || cfg.Irradiance.CacheTTL != 2*time.Hour {
		t.Errorf("env numbers not applied: %+v", cfg)
	}
	if b, _ := cfg.BBox(); b.MaxLon != 1 {
		t.Errorf("env bbox not applied: %+v", b)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("SOLARMAP_WORKERS", "many")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric workers")
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []string{
		"energy:\n  system_efficiency: 1.5\n",
		"energy:\n  derating_factor: 0\n",
		"input:\n  bbox: [1, 2, 3]\n",
		"input:\n  bbox: [5, 0, 1, 1]\n",
		"input:\n  simplify_tolerance: -1\n",
	}
	for _, content := range tests {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("expected validation error for %q", content)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/solarmap.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
