package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
	"github.com/0xcro3dile/solarmap-go/internal/domain/ports"
)

// MemoryStore is an in-process building store.
type MemoryStore struct {
	mu      sync.RWMutex
	sources map[string][]entities.Building // sourceID -> buildings
	runs    []entities.Run
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sources: make(map[string][]entities.Building)}
}

// Replace swaps every building of a source.
func (s *MemoryStore) Replace(ctx context.Context, sourceID string, buildings []entities.Building) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := make(map[string]int, len(buildings))
	kept := make([]entities.Building, 0, len(buildings))
	for _, b := range buildings {
		b.SourceID = sourceID
		if i, ok := byID[b.ID]; ok {
			kept[i] = b
			continue
		}
		byID[b.ID] = len(kept)
		kept = append(kept, b)
	}
	s.sources[sourceID] = kept
	return nil
}

// Query returns buildings matching filter ordered by source and id.
func (s *MemoryStore) Query(ctx context.Context, filter entities.BuildingFilter) ([]entities.Building, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entities.Building
	for _, b := range s.sorted() {
		if filter.Orientation != "" && b.Orientation != filter.Orientation {
			continue
		}
		if !filter.BBox.IsZero() && !filter.BBox.Contains(b.Lon, b.Lat) {
			continue
		}
		out = append(out, b)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Top returns the k buildings with the highest metric value.
func (s *MemoryStore) Top(ctx context.Context, metric entities.Metric, k int) ([]entities.Building, error) {
	if _, ok := metricColumns[metric]; !ok {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ranked []entities.Building
	for _, b := range s.sorted() {
		if !math.IsNaN(metric.Value(b)) {
			ranked = append(ranked, b)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return metric.Value(ranked[i]) > metric.Value(ranked[j])
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// Orientations returns the distinct orientation labels stored.
func (s *MemoryStore) Orientations(ctx context.Context) ([]entities.Orientation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[entities.Orientation]bool)
	var out []entities.Orientation
	for _, bs := range s.sources {
		for _, b := range bs {
			if !seen[b.Orientation] {
				seen[b.Orientation] = true
				out = append(out, b.Orientation)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Delete removes all buildings of a source.
func (s *MemoryStore) Delete(ctx context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, sourceID)
	return nil
}

// RecordRun saves run metadata.
func (s *MemoryStore) RecordRun(ctx context.Context, run entities.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// LatestRun returns the run with the latest finish time.
func (s *MemoryStore) LatestRun(ctx context.Context) (entities.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runs) == 0 {
		return entities.Run{}, ports.ErrNotFound
	}
	latest := s.runs[0]
	for _, r := range s.runs[1:] {
		if !r.FinishedAt.Before(latest.FinishedAt) {
			latest = r
		}
	}
	return latest, nil
}

// sorted must be called with the lock held.
func (s *MemoryStore) sorted() []entities.Building {
	var all []entities.Building
	for _, bs := range s.sources {
		all = append(all, bs...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].SourceID != all[j].SourceID {
			return all[i].SourceID < all[j].SourceID
		}
		return all[i].ID < all[j].ID
	})
	return all
}
