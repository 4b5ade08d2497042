// Package usecases - query.go serves filtered, ranked and summarised views
// over enriched buildings.
package usecases

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
	"github.com/0xcro3dile/solarmap-go/internal/domain/ports"
)

// ErrUnknownMetric is returned when a ranking metric is not supported.
var ErrUnknownMetric = errors.New("unknown metric")

// QueryUseCase handles read-side access to enriched buildings.
type QueryUseCase struct {
	store ports.BuildingStore
	topK  int
}

// NewQueryUseCase creates a QueryUseCase. topK is the default table size.
func NewQueryUseCase(store ports.BuildingStore, topK int) *QueryUseCase {
	if topK <= 0 {
		topK = 10
	}
	return &QueryUseCase{store: store, topK: topK}
}

// Buildings returns the buildings matching filter.
func (uc *QueryUseCase) Buildings(ctx context.Context, filter entities.BuildingFilter) ([]entities.Building, error) {
	buildings, err := uc.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying buildings: %w", err)
	}
	return buildings, nil
}

// Top ranks buildings by metric, highest first. k <= 0 uses the default size.
func (uc *QueryUseCase) Top(ctx context.Context, metric entities.Metric, k int) ([]entities.RankedBuilding, error) {
	if metric == "" {
		metric = entities.MetricKWh
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	if k <= 0 {
		k = uc.topK
	}

	buildings, err := uc.store.Top(ctx, metric, k)
	if err != nil {
		return nil, fmt.Errorf("ranking buildings: %w", err)
	}

	ranked := make([]entities.RankedBuilding, len(buildings))
	for i, b := range buildings {
		ranked[i] = entities.RankedBuilding{Rank: i + 1, Building: b, Value: metric.Value(b)}
	}
	return ranked, nil
}

// Orientations returns the labels present in the store in compass order.
func (uc *QueryUseCase) Orientations(ctx context.Context) ([]entities.Orientation, error) {
	present, err := uc.store.Orientations(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing orientations: %w", err)
	}
	set := make(map[entities.Orientation]bool, len(present))
	for _, o := range present {
		set[o] = true
	}
	var out []entities.Orientation
	for _, o := range entities.Orientations() {
		if set[o] {
			out = append(out, o)
		}
	}
	return out, nil
}

// Summary computes per-orientation statistics of the kWh estimates.
func (uc *QueryUseCase) Summary(ctx context.Context) (entities.Summary, error) {
	buildings, err := uc.store.Query(ctx, entities.BuildingFilter{})
	if err != nil {
		return entities.Summary{}, fmt.Errorf("querying buildings: %w", err)
	}

	groups := make(map[entities.Orientation][]float64)
	for _, b := range buildings {
		groups[b.Orientation] = append(groups[b.Orientation], b.KWhEstimate)
	}

	summary := entities.Summary{Buildings: len(buildings)}
	for _, o := range entities.Orientations() {
		values, ok := groups[o]
		if !ok {
			continue
		}
		sort.Float64s(values)
		g := entities.OrientationStats{
			Orientation: o,
			Count:       len(values),
			TotalKWh:    floats.Sum(values),
			MeanKWh:     stat.Mean(values, nil),
			MedianKWh:   median(values),
			P90KWh:      stat.Quantile(0.9, stat.Empirical, values, nil),
		}
		summary.TotalKWh += g.TotalKWh
		summary.Groups = append(summary.Groups, g)
	}
	return summary, nil
}

// median of sorted values; even counts average the two middle values.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// LatestRun returns metadata about the most recent enrichment pass.
func (uc *QueryUseCase) LatestRun(ctx context.Context) (entities.Run, error) {
	return uc.store.LatestRun(ctx)
}
