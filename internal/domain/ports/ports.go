// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions; adapters implement them.
package ports

import (
	"context"
	"errors"

	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
)

// ErrNotFound is returned by stores when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BuildingLoader reads building footprints from a dataset file.
type BuildingLoader interface {
	// Load reads all buildings from the given path.
	Load(ctx context.Context, path string) ([]entities.Building, error)

	// SupportedExtensions returns file extensions this loader handles.
	SupportedExtensions() []string
}

// FootprintProvider fetches building footprints for an area from a remote source.
type FootprintProvider interface {
	Footprints(ctx context.Context, bbox entities.BBox) ([]entities.Building, error)
}

// IrradianceProvider looks up annual GHI (Wh/m²/year) for a location.
type IrradianceProvider interface {
	AnnualGHI(ctx context.Context, lat, lon float64) (float64, error)
}

// BuildingStore persists enriched buildings.
type BuildingStore interface {
	// Replace swaps every building of a source for the given set.
	Replace(ctx context.Context, sourceID string, buildings []entities.Building) error

	// Query returns buildings matching the filter, ordered by source and id.
	Query(ctx context.Context, filter entities.BuildingFilter) ([]entities.Building, error)

	// Top returns the k buildings with the highest metric value.
	Top(ctx context.Context, metric entities.Metric, k int) ([]entities.Building, error)

	// Orientations returns the distinct orientation labels present.
	Orientations(ctx context.Context) ([]entities.Orientation, error)

	// Delete removes all buildings of a source.
	Delete(ctx context.Context, sourceID string) error

	// RecordRun saves metadata about an enrichment pass.
	RecordRun(ctx context.Context, run entities.Run) error

	// LatestRun returns the most recently finished run or ErrNotFound.
	LatestRun(ctx context.Context) (entities.Run, error)
}

// Publisher forwards enriched buildings to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, runID string, buildings []entities.Building) error
}

// Progress receives per-building progress ticks from long-running passes.
type Progress interface {
	Start(total int)
	Increment()
	Finish(msg string)
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

func (op FileOperation) String() string {
	switch op {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}
