package usecases

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
	"github.com/0xcro3dile/solarmap-go/internal/domain/ports"
)

func TestSyncUseCase_IngestFile(t *testing.T) {
	store := newMockStore()
	ld := &mockLoader{buildings: map[string][]entities.Building{
		"a.geojson": {building("b1", rect(-87.63, 41.88, 0.001, 0.0001), 1000)},
	}}
	uc := NewSyncUseCase(ld, NewEnrichUseCase(EnrichOptions{Store: store}), nil)

	run, err := uc.IngestFile(context.Background(), "a.geojson")
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if run.SourceID != entities.SourceID("a.geojson") || run.Stored != 1 {
		t.Errorf("unexpected run: %+v", run)
	}
	if len(store.buildings[run.SourceID]) != 1 {
		t.Error("buildings not stored under the file's source id")
	}
}

func TestSyncUseCase_IngestDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.geojson", "a.geojson", "notes.txt", "broken.geojson"} {
		os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644)
	}

	good := []entities.Building{building("b1", rect(0, 0, 0.001, 0.0001), 1000)}
	ld := &mockLoader{buildings: map[string][]entities.Building{
		filepath.Join(dir, "a.geojson"): good,
		filepath.Join(dir, "b.geojson"): good,
	}}
	uc := NewSyncUseCase(ld, NewEnrichUseCase(EnrichOptions{Store: newMockStore()}), nil)

	runs, err := uc.IngestDir(context.Background(), dir)
	if err == nil {
		t.Error("expected error from broken.geojson")
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 successful runs, got %d", len(runs))
	}
	want := []string{"a.geojson", "b.geojson", "broken.geojson"}
	if len(ld.loads) != len(want) {
		t.Fatalf("expected loads %v, got %v", want, ld.loads)
	}
	for i, w := range want {
		if filepath.Base(ld.loads[i]) != w {
			t.Errorf("load %d: expected %s, got %s", i, w, ld.loads[i])
		}
	}
}

func TestSyncUseCase_Watch(t *testing.T) {
	store := newMockStore()
	ld := &mockLoader{buildings: map[string][]entities.Building{
		"city.geojson": {building("b1", rect(0, 0, 0.001, 0.0001), 1000)},
	}}
	uc := NewSyncUseCase(ld, NewEnrichUseCase(EnrichOptions{Store: store}), nil)
	w := &mockWatcher{events: make(chan ports.FileEvent)}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- uc.Watch(ctx, w, ".") }()

	source := entities.SourceID("city.geojson")
	w.events <- ports.FileEvent{Path: "city.geojson", Operation: ports.FileCreated}
	w.events <- ports.FileEvent{Path: "missing.geojson", Operation: ports.FileModified}
	w.events <- ports.FileEvent{Path: "city.geojson", Operation: ports.FileDeleted}
	close(w.events)

	if err := <-done; err != nil {
		t.Fatalf("watch returned error: %v", err)
	}
	if len(store.runs) != 1 {
		t.Errorf("expected 1 run from the create event, got %d", len(store.runs))
	}
	if _, ok := store.buildings[source]; ok {
		t.Error("delete event should remove the source")
	}
}
