package usecases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
	"github.com/0xcro3dile/solarmap-go/internal/domain/ports"
)

// SyncUseCase keeps the store in step with dataset files on disk.
type SyncUseCase struct {
	loader ports.BuildingLoader
	enrich *EnrichUseCase
	log    *slog.Logger
}

// NewSyncUseCase creates a SyncUseCase.
func NewSyncUseCase(loader ports.BuildingLoader, enrich *EnrichUseCase, log *slog.Logger) *SyncUseCase {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SyncUseCase{loader: loader, enrich: enrich, log: log.With("component", "sync")}
}

// IngestFile loads, enriches and stores one dataset file.
func (uc *SyncUseCase) IngestFile(ctx context.Context, path string) (entities.Run, error) {
	buildings, err := uc.loader.Load(ctx, path)
	if err != nil {
		return entities.Run{}, fmt.Errorf("loading %s: %w", path, err)
	}
	return uc.enrich.Enrich(ctx, entities.SourceID(path), path, buildings)
}

// IngestDir ingests every supported file in dir in name order. A failing file
// does not stop the others; all failures are returned together.
func (uc *SyncUseCase) IngestDir(ctx context.Context, dir string) ([]entities.Run, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && uc.supported(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	var (
		runs []entities.Run
		errs []error
	)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return runs, err
		}
		run, err := uc.IngestFile(ctx, p)
		if err != nil {
			uc.log.Warn("ingest failed", "path", p, "error", err)
			errs = append(errs, err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, errors.Join(errs...)
}

// Watch re-ingests files as they are created or modified and drops the
// buildings of deleted files until ctx is cancelled.
func (uc *SyncUseCase) Watch(ctx context.Context, watcher ports.FileWatcher, dir string) error {
	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	uc.log.Info("watching", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			uc.handle(ctx, ev)
		}
	}
}

func (uc *SyncUseCase) handle(ctx context.Context, ev ports.FileEvent) {
	log := uc.log.With("path", ev.Path, "op", ev.Operation.String())

	switch ev.Operation {
	case ports.FileCreated, ports.FileModified:
		run, err := uc.IngestFile(ctx, ev.Path)
		if err != nil {
			// Files are often seen mid-write; the next write event retries.
			log.Warn("ingest failed", "error", err)
			return
		}
		log.Info("ingested", "run_id", run.ID, "stored", run.Stored)
	case ports.FileDeleted:
		if err := uc.enrich.Delete(ctx, entities.SourceID(ev.Path)); err != nil {
			log.Warn("delete failed", "error", err)
			return
		}
		log.Info("removed source")
	}
}

func (uc *SyncUseCase) supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range uc.loader.SupportedExtensions() {
		if ext == e {
			return true
		}
	}
	return false
}
