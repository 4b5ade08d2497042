// Package usecases contains application business rules.
// Usecases orchestrate entities and depend on port interfaces.
package usecases

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/paulmach/orb/simplify"

	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
	"github.com/0xcro3dile/solarmap-go/internal/domain/ports"
)

// Skip reasons reported in entities.Run.Skipped.
const (
	SkipNoGeometry  = "no_geometry"
	SkipOutsideBBox = "outside_bbox"
)

// EnrichObserver is notified about every building that passes through Enrich.
type EnrichObserver interface {
	BuildingEnriched(o entities.Orientation, kwh float64)
	BuildingSkipped(reason string)
	RunFinished(d time.Duration)
}

// EnrichOptions configure an EnrichUseCase. Only Store is required.
type EnrichOptions struct {
	Store      ports.BuildingStore
	Publisher  ports.Publisher
	Irradiance ports.IrradianceProvider
	Observer   EnrichObserver
	Progress   ports.Progress
	Logger     *slog.Logger

	Energy            entities.EnergyParams
	BBox              entities.BBox // zero keeps everything
	SimplifyTolerance float64       // degrees; 0 disables
	Workers           int
}

// EnrichUseCase attaches orientation and energy estimates to buildings and
// persists the result.
type EnrichUseCase struct {
	opts EnrichOptions
	log  *slog.Logger
	now  func() time.Time
}

// NewEnrichUseCase creates an EnrichUseCase, filling unset options with defaults.
func NewEnrichUseCase(opts EnrichOptions) *EnrichUseCase {
	if opts.Energy == (entities.EnergyParams{}) {
		opts.Energy = entities.DefaultEnergyParams()
	}
	if opts.Workers <= 0 {
		opts.Workers = MaxParallelism()
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &EnrichUseCase{
		opts: opts,
		log:  log.With("component", "enrich"),
		now:  time.Now,
	}
}

// MaxParallelism returns the smaller of GOMAXPROCS and the CPU count.
func MaxParallelism() int {
	maxProcs := runtime.GOMAXPROCS(0)
	if numCPU := runtime.NumCPU(); numCPU < maxProcs {
		return numCPU
	}
	return maxProcs
}

type enrichResult struct {
	building entities.Building
	skip     string
}

// Enrich computes orientation and kWh for every building of a source, drops
// the ones outside the configured bbox, and replaces the source's records in
// the store. Input order is preserved.
func (uc *EnrichUseCase) Enrich(ctx context.Context, sourceID, sourcePath string, buildings []entities.Building) (entities.Run, error) {
	run := entities.Run{
		ID:         uuid.NewString(),
		SourceID:   sourceID,
		SourcePath: sourcePath,
		Loaded:     len(buildings),
		Skipped:    make(map[string]int),
		StartedAt:  uc.now(),
	}

	results, err := uc.enrichAll(ctx, buildings)
	if err != nil {
		return run, err
	}

	kept := make([]entities.Building, 0, len(results))
	for _, r := range results {
		if r.skip != "" {
			run.Skipped[r.skip]++
			uc.observeSkip(r.skip)
			continue
		}
		kept = append(kept, r.building)
		if uc.opts.Observer != nil {
			uc.opts.Observer.BuildingEnriched(r.building.Orientation, r.building.KWhEstimate)
		}
	}
	run.Stored = len(kept)

	if err := uc.opts.Store.Replace(ctx, sourceID, kept); err != nil {
		return run, fmt.Errorf("storing buildings: %w", err)
	}

	run.FinishedAt = uc.now()
	if err := uc.opts.Store.RecordRun(ctx, run); err != nil {
		return run, fmt.Errorf("recording run: %w", err)
	}
	if uc.opts.Observer != nil {
		uc.opts.Observer.RunFinished(run.FinishedAt.Sub(run.StartedAt))
	}

	uc.log.Info("enrichment finished",
		"run", run.ID, "source", sourceID, "loaded", run.Loaded, "stored", run.Stored, "skipped", run.Skipped)

	if uc.opts.Publisher != nil && len(kept) > 0 {
		if err := uc.opts.Publisher.Publish(ctx, run.ID, kept); err != nil {
			return run, fmt.Errorf("publishing buildings: %w", err)
		}
	}
	return run, nil
}

// Delete removes every building of a source.
func (uc *EnrichUseCase) Delete(ctx context.Context, sourceID string) error {
	return uc.opts.Store.Delete(ctx, sourceID)
}

// enrichAll fans the buildings out over a worker pool. Each worker writes to
// its own slot in results so no further synchronisation is needed.
func (uc *EnrichUseCase) enrichAll(ctx context.Context, buildings []entities.Building) ([]enrichResult, error) {
	results := make([]enrichResult, len(buildings))
	if uc.opts.Progress != nil {
		uc.opts.Progress.Start(len(buildings))
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	var progressMu sync.Mutex
	for w := 0; w < uc.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				b, skip := uc.enrichOne(ctx, buildings[i])
				results[i] = enrichResult{building: b, skip: skip}
				if uc.opts.Progress != nil {
					progressMu.Lock()
					uc.opts.Progress.Increment()
					progressMu.Unlock()
				}
			}
		}()
	}

	var err error
feed:
	for i := range buildings {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if uc.opts.Progress != nil {
		uc.opts.Progress.Finish("buildings enriched")
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

// enrichOne returns the enriched building, or a non-empty skip reason.
func (uc *EnrichUseCase) enrichOne(ctx context.Context, b entities.Building) (entities.Building, string) {
	if b.Footprint == nil {
		return b, SkipNoGeometry
	}

	if math.IsNaN(b.Lat) || math.IsNaN(b.Lon) {
		b.Lon, b.Lat = entities.FootprintCentroid(b.Footprint)
	}
	if !uc.opts.BBox.IsZero() && !uc.opts.BBox.Contains(b.Lon, b.Lat) {
		return b, SkipOutsideBBox
	}

	if math.IsNaN(b.GHI) && uc.opts.Irradiance != nil {
		ghi, err := uc.opts.Irradiance.AnnualGHI(ctx, b.Lat, b.Lon)
		if err != nil {
			uc.log.Debug("irradiance lookup failed", "building", b.ID, "error", err)
		} else {
			b.GHI = ghi
		}
	}
	if math.IsNaN(b.RoofArea) {
		b.RoofArea = entities.FootprintArea(b.Footprint)
	}

	// Web Mercator is conformal, so bearings measured there match the ground.
	b.Azimuth = entities.ComputeOrientation(toMercator(b.Footprint))
	b.Orientation = entities.Classify(b.Azimuth)
	b.KWhEstimate = uc.opts.Energy.EstimateKWh(b.GHI, b.RoofArea)

	if uc.opts.SimplifyTolerance > 0 {
		b.Footprint = SimplifyFootprint(b.Footprint, uc.opts.SimplifyTolerance)
	}
	return b, ""
}

func (uc *EnrichUseCase) observeSkip(reason string) {
	if uc.opts.Observer != nil {
		uc.opts.Observer.BuildingSkipped(reason)
	}
}

func toMercator(g orb.Geometry) orb.Geometry {
	return project.Geometry(orb.Clone(g), project.WGS84.ToMercator)
}

// SimplifyFootprint applies Douglas-Peucker simplification. Any ring that
// would fall below 4 points keeps its original coordinates, and if the
// simplifier drops a ring the original geometry is returned unchanged.
func SimplifyFootprint(g orb.Geometry, tolerance float64) orb.Geometry {
	if g == nil || tolerance <= 0 {
		return g
	}
	simplified := simplify.DouglasPeucker(tolerance).Simplify(orb.Clone(g))

	switch orig := g.(type) {
	case orb.Polygon:
		s, ok := simplified.(orb.Polygon)
		if !ok {
			return g
		}
		if p, ok := keepRings(orig, s); ok {
			return p
		}
		return g
	case orb.MultiPolygon:
		s, ok := simplified.(orb.MultiPolygon)
		if !ok || len(s) != len(orig) {
			return g
		}
		for i := range s {
			p, ok := keepRings(orig[i], s[i])
			if !ok {
				return g
			}
			s[i] = p
		}
		return s
	default:
		return simplified
	}
}

func keepRings(orig, simplified orb.Polygon) (orb.Polygon, bool) {
	if len(orig) != len(simplified) {
		return nil, false
	}
	for i := range simplified {
		if len(simplified[i]) < 4 {
			simplified[i] = orig[i]
		}
	}
	return simplified, true
}
