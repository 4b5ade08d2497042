// Package store provides building store adapters.
// SQLStore persists to SQLite or PostgreSQL through sqlx; MemoryStore keeps
// everything in process for tests and one-shot CLI runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/paulmach/orb/geojson"

	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
	"github.com/0xcro3dile/solarmap-go/internal/domain/ports"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// ErrUnsupportedDriver is returned for drivers other than sqlite3 and postgres.
var ErrUnsupportedDriver = errors.New("unsupported store driver")

// metricColumns whitelists the columns a ranking may order by.
var metricColumns = map[entities.Metric]string{
	entities.MetricGHI: "ghi_sum",
	entities.MetricKWh: "kwh_estimate",
}

const schema = `
CREATE TABLE IF NOT EXISTS buildings (
	source_id TEXT NOT NULL,
	bldg_id TEXT NOT NULL,
	footprint TEXT,
	lat DOUBLE PRECISION,
	lon DOUBLE PRECISION,
	ghi_sum DOUBLE PRECISION,
	roof_area DOUBLE PRECISION,
	azimuth DOUBLE PRECISION,
	orientation TEXT NOT NULL,
	kwh_estimate DOUBLE PRECISION,
	PRIMARY KEY (source_id, bldg_id)
);
CREATE INDEX IF NOT EXISTS idx_buildings_orientation ON buildings(orientation);
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	source_path TEXT NOT NULL,
	loaded INTEGER NOT NULL,
	stored INTEGER NOT NULL,
	skipped TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL
);
`

const upsertBuilding = `
INSERT INTO buildings (source_id, bldg_id, footprint, lat, lon, ghi_sum, roof_area, azimuth, orientation, kwh_estimate)
VALUES (:source_id, :bldg_id, :footprint, :lat, :lon, :ghi_sum, :roof_area, :azimuth, :orientation, :kwh_estimate)
ON CONFLICT (source_id, bldg_id) DO UPDATE SET
	footprint = excluded.footprint,
	lat = excluded.lat,
	lon = excluded.lon,
	ghi_sum = excluded.ghi_sum,
	roof_area = excluded.roof_area,
	azimuth = excluded.azimuth,
	orientation = excluded.orientation,
	kwh_estimate = excluded.kwh_estimate`

const selectBuildings = `
SELECT source_id, bldg_id, footprint, lat, lon, ghi_sum, roof_area, azimuth, orientation, kwh_estimate
FROM buildings`

type buildingRow struct {
	SourceID    string          `db:"source_id"`
	ID          string          `db:"bldg_id"`
	Footprint   sql.NullString  `db:"footprint"`
	Lat         sql.NullFloat64 `db:"lat"`
	Lon         sql.NullFloat64 `db:"lon"`
	GHI         sql.NullFloat64 `db:"ghi_sum"`
	RoofArea    sql.NullFloat64 `db:"roof_area"`
	Azimuth     sql.NullFloat64 `db:"azimuth"`
	Orientation string          `db:"orientation"`
	KWhEstimate sql.NullFloat64 `db:"kwh_estimate"`
}

type runRow struct {
	ID         string    `db:"id"`
	SourceID   string    `db:"source_id"`
	SourcePath string    `db:"source_path"`
	Loaded     int       `db:"loaded"`
	Stored     int       `db:"stored"`
	Skipped    string    `db:"skipped"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}

// SQLStore implements ports.BuildingStore on a SQL database.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore opens the database and creates the schema. For sqlite3 the DSN
// is a file path whose directory is created when missing.
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = filepath.Join("data", "solarmap.db")
		}
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Replace swaps every building of sourceID for buildings in one transaction.
func (s *SQLStore) Replace(ctx context.Context, sourceID string, buildings []entities.Building) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM buildings WHERE source_id = ?"), sourceID); err != nil {
		return fmt.Errorf("clearing source: %w", err)
	}

	for _, b := range buildings {
		row, err := toRow(sourceID, b)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, upsertBuilding, row); err != nil {
			return fmt.Errorf("inserting building %s: %w", b.ID, err)
		}
	}

	return tx.Commit()
}

// Query returns buildings matching filter ordered by source and id.
func (s *SQLStore) Query(ctx context.Context, filter entities.BuildingFilter) ([]entities.Building, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Orientation != "" {
		where = append(where, "orientation = ?")
		args = append(args, string(filter.Orientation))
	}
	if !filter.BBox.IsZero() {
		where = append(where, "lon BETWEEN ? AND ? AND lat BETWEEN ? AND ?")
		args = append(args, filter.BBox.MinLon, filter.BBox.MaxLon, filter.BBox.MinLat, filter.BBox.MaxLat)
	}

	query := selectBuildings
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY source_id, bldg_id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.selectBuildings(ctx, query, args...)
}

// Top returns the k buildings with the highest metric. Buildings without a
// value for the metric are not ranked.
func (s *SQLStore) Top(ctx context.Context, metric entities.Metric, k int) ([]entities.Building, error) {
	col, ok := metricColumns[metric]
	if !ok {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	query := fmt.Sprintf("%s WHERE %s IS NOT NULL ORDER BY %s DESC, source_id, bldg_id LIMIT ?", selectBuildings, col, col)
	return s.selectBuildings(ctx, query, k)
}

// Orientations returns the distinct orientation labels stored.
func (s *SQLStore) Orientations(ctx context.Context) ([]entities.Orientation, error) {
	var labels []string
	if err := s.db.SelectContext(ctx, &labels, "SELECT DISTINCT orientation FROM buildings ORDER BY orientation"); err != nil {
		return nil, fmt.Errorf("listing orientations: %w", err)
	}
	out := make([]entities.Orientation, len(labels))
	for i, l := range labels {
		out[i] = entities.Orientation(l)
	}
	return out, nil
}

// Delete removes all buildings of a source.
func (s *SQLStore) Delete(ctx context.Context, sourceID string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM buildings WHERE source_id = ?"), sourceID)
	return err
}

// RecordRun saves run metadata.
func (s *SQLStore) RecordRun(ctx context.Context, run entities.Run) error {
	skipped, err := json.Marshal(run.Skipped)
	if err != nil {
		return fmt.Errorf("encoding skip counts: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, source_id, source_path, loaded, stored, skipped, started_at, finished_at)
		VALUES (:id, :source_id, :source_path, :loaded, :stored, :skipped, :started_at, :finished_at)`,
		runRow{
			ID:         run.ID,
			SourceID:   run.SourceID,
			SourcePath: run.SourcePath,
			Loaded:     run.Loaded,
			Stored:     run.Stored,
			Skipped:    string(skipped),
			StartedAt:  run.StartedAt.UTC(),
			FinishedAt: run.FinishedAt.UTC(),
		})
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// LatestRun returns the most recently finished run.
func (s *SQLStore) LatestRun(ctx context.Context) (entities.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, source_id, source_path, loaded, stored, skipped, started_at, finished_at
		FROM runs ORDER BY finished_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Run{}, ports.ErrNotFound
	}
	if err != nil {
		return entities.Run{}, fmt.Errorf("loading latest run: %w", err)
	}

	run := entities.Run{
		ID:         row.ID,
		SourceID:   row.SourceID,
		SourcePath: row.SourcePath,
		Loaded:     row.Loaded,
		Stored:     row.Stored,
		StartedAt:  row.StartedAt,
		FinishedAt: row.FinishedAt,
	}
	if err := json.Unmarshal([]byte(row.Skipped), &run.Skipped); err != nil {
		return entities.Run{}, fmt.Errorf("decoding skip counts: %w", err)
	}
	return run, nil
}

func (s *SQLStore) selectBuildings(ctx context.Context, query string, args ...interface{}) ([]entities.Building, error) {
	var rows []buildingRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying buildings: %w", err)
	}

	out := make([]entities.Building, 0, len(rows))
	for _, r := range rows {
		b, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func toRow(sourceID string, b entities.Building) (buildingRow, error) {
	row := buildingRow{
		SourceID:    sourceID,
		ID:          b.ID,
		Lat:         nullFloat(b.Lat),
		Lon:         nullFloat(b.Lon),
		GHI:         nullFloat(b.GHI),
		RoofArea:    nullFloat(b.RoofArea),
		Azimuth:     nullFloat(b.Azimuth),
		Orientation: string(b.Orientation),
		KWhEstimate: nullFloat(b.KWhEstimate),
	}
	if b.Footprint != nil {
		data, err := json.Marshal(geojson.NewGeometry(b.Footprint))
		if err != nil {
			return buildingRow{}, fmt.Errorf("encoding footprint %s: %w", b.ID, err)
		}
		row.Footprint = sql.NullString{String: string(data), Valid: true}
	}
	return row, nil
}

func fromRow(r buildingRow) (entities.Building, error) {
	b := entities.NewBuilding(r.ID, r.SourceID, nil)
	if r.Footprint.Valid {
		g, err := geojson.UnmarshalGeometry([]byte(r.Footprint.String))
		if err != nil {
			return entities.Building{}, fmt.Errorf("decoding footprint %s: %w", r.ID, err)
		}
		b.Footprint = g.Geometry()
	}
	b.Lat = floatOrNaN(r.Lat)
	b.Lon = floatOrNaN(r.Lon)
	b.GHI = floatOrNaN(r.GHI)
	b.RoofArea = floatOrNaN(r.RoofArea)
	b.Azimuth = floatOrNaN(r.Azimuth)
	b.Orientation = entities.Orientation(r.Orientation)
	b.KWhEstimate = floatOrNaN(r.KWhEstimate)
	return b, nil
}

// nullFloat stores NaN as NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
