package usecases

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
	"github.com/0xcro3dile/solarmap-go/internal/domain/ports"
)

// mockStore implements ports.BuildingStore for testing
type mockStore struct {
	mu        sync.Mutex
	buildings map[string][]entities.Building
	runs      []entities.Run
	replaceFn func(sourceID string, buildings []entities.Building) error
}

func newMockStore() *mockStore {
	return &mockStore{buildings: make(map[string][]entities.Building)}
}

func (m *mockStore) Replace(ctx context.Context, sourceID string, buildings []entities.Building) error {
	if m.replaceFn != nil {
		return m.replaceFn(sourceID, buildings)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buildings[sourceID] = buildings
	return nil
}

func (m *mockStore) all() []entities.Building {
	var out []entities.Building
	for _, bs := range m.buildings {
		out = append(out, bs...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (m *mockStore) Query(ctx context.Context, f entities.BuildingFilter) ([]entities.Building, error) {
	var out []entities.Building
	for _, b := range m.all() {
		if f.Orientation != "" && b.Orientation != f.Orientation {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *mockStore) Top(ctx context.Context, metric entities.Metric, k int) ([]entities.Building, error) {
	all := m.all()
	sort.SliceStable(all, func(i, j int) bool { return metric.Value(all[i]) > metric.Value(all[j]) })
	if len(all) > k {
		all = all[:k]
	}
	return all, nil
}

func (m *mockStore) Orientations(ctx context.Context) ([]entities.Orientation, error) {
	seen := map[entities.Orientation]bool{}
	var out []entities.Orientation
	for _, b := range m.all() {
		if !seen[b.Orientation] {
			seen[b.Orientation] = true
			out = append(out, b.Orientation)
		}
	}
	return out, nil
}

func (m *mockStore) Delete(ctx context.Context, sourceID string) error {
	delete(m.buildings, sourceID)
	return nil
}

func (m *mockStore) RecordRun(ctx context.Context, run entities.Run) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockStore) LatestRun(ctx context.Context) (entities.Run, error) {
	if len(m.runs) == 0 {
		return entities.Run{}, ports.ErrNotFound
	}
	return m.runs[len(m.runs)-1], nil
}

// mockPublisher implements ports.Publisher for testing
type mockPublisher struct {
	runID     string
	published []entities.Building
	err       error
}

func (m *mockPublisher) Publish(ctx context.Context, runID string, buildings []entities.Building) error {
	m.runID = runID
	m.published = append(m.published, buildings...)
	return m.err
}

// mockIrradiance implements ports.IrradianceProvider for testing
type mockIrradiance struct {
	mu    sync.Mutex
	calls int
	ghi   float64
	fail  bool
}

func (m *mockIrradiance) AnnualGHI(ctx context.Context, lat, lon float64) (float64, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.fail {
		return 0, errors.New("service unavailable")
	}
	return m.ghi, nil
}

// mockObserver implements EnrichObserver for testing
type mockObserver struct {
	enriched int
	skipped  map[string]int
	finished bool
}

func (m *mockObserver) BuildingEnriched(o entities.Orientation, kwh float64) { m.enriched++ }

func (m *mockObserver) BuildingSkipped(reason string) {
	if m.skipped == nil {
		m.skipped = map[string]int{}
	}
	m.skipped[reason]++
}

func (m *mockObserver) RunFinished(d time.Duration) { m.finished = true }

// mockProgress implements ports.Progress for testing
type mockProgress struct {
	total, ticks int
	done         bool
}

func (m *mockProgress) Start(total int) { m.total = total }
func (m *mockProgress) Increment()      { m.ticks++ }
func (m *mockProgress) Finish(string)   { m.done = true }

// mockLoader implements ports.BuildingLoader for testing
type mockLoader struct {
	mu        sync.Mutex
	buildings map[string][]entities.Building // path -> buildings
	loads     []string
}

func (m *mockLoader) Load(ctx context.Context, path string) ([]entities.Building, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads = append(m.loads, path)
	bs, ok := m.buildings[path]
	if !ok {
		return nil, errors.New("unreadable file")
	}
	return bs, nil
}

func (m *mockLoader) SupportedExtensions() []string { return []string{".geojson"} }

// mockWatcher implements ports.FileWatcher with a caller-fed channel
type mockWatcher struct {
	events chan ports.FileEvent
}

func (m *mockWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	return m.events, nil
}

func (m *mockWatcher) Stop() error { return nil }
