// Command solarmap enriches building footprints with roof orientation and
// solar yield estimates and serves the results over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/solarmap-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/solarmap-go/internal/adapters/loader"
	"github.com/0xcro3dile/solarmap-go/internal/adapters/overpass"
	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
	"github.com/0xcro3dile/solarmap-go/internal/domain/usecases"
	httpserver "github.com/0xcro3dile/solarmap-go/internal/infrastructure/http"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "solarmap",
		Short:        "Estimate rooftop solar potential for building footprints",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(
		newEnrichCmd(&configPath),
		newServeCmd(&configPath),
		newWatchCmd(&configPath),
		newFetchCmd(&configPath),
		newTopCmd(&configPath),
	)
	return root
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newEnrichCmd(configPath *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "enrich <file>...",
		Short: "Enrich GeoJSON building datasets and store the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "" && len(args) > 1 {
				return fmt.Errorf("--output takes a single input file")
			}

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			enrich, err := a.enricher(true)
			if err != nil {
				return err
			}
			sync := usecases.NewSyncUseCase(a.loader, enrich, a.log)

			for _, path := range args {
				run, err := sync.IngestFile(ctx, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: loaded %d, stored %d, skipped %v (run %s)\n",
					filepath.Base(path), run.Loaded, run.Stored, run.Skipped, run.ID)

				if output != "" {
					if err := writeSource(ctx, a, run.SourceID, output); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the reduced GeoJSON to this path")
	return cmd
}

// writeSource writes the stored buildings of one source as reduced GeoJSON.
func writeSource(ctx context.Context, a *app, sourceID, path string) error {
	all, err := a.store.Query(ctx, entities.BuildingFilter{})
	if err != nil {
		return err
	}
	var out []entities.Building
	for _, b := range all {
		if b.SourceID == sourceID {
			out = append(out, b)
		}
	}
	return loader.WriteFile(path, out)
}

func newServeCmd(configPath *string) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the building data API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			if watch {
				enrich, err := a.enricher(false)
				if err != nil {
					return err
				}
				go func() {
					if err := runWatch(ctx, a, enrich); err != nil {
						a.log.Error("watcher stopped", "error", err)
					}
				}()
			}

			query := usecases.NewQueryUseCase(a.store, a.cfg.HTTP.TopK)
			server := httpserver.NewServer(query, a.metrics, a.log, nil, a.cfg.HTTP.Addr)
			return server.Start(ctx)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "also ingest datasets from the watch directory")
	return cmd
}

func newWatchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir]",
		Short: "Ingest datasets in a directory and keep them in sync",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if len(args) == 1 {
				a.cfg.Watch.Dir = args[0]
			}

			ctx, cancel := signalContext()
			defer cancel()

			enrich, err := a.enricher(false)
			if err != nil {
				return err
			}
			return runWatch(ctx, a, enrich)
		},
	}
}

// runWatch ingests the watch directory once, then follows changes.
func runWatch(ctx context.Context, a *app, enrich *usecases.EnrichUseCase) error {
	dir := a.cfg.Watch.Dir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating watch directory: %w", err)
	}

	sync := usecases.NewSyncUseCase(a.loader, enrich, a.log)
	if _, err := sync.IngestDir(ctx, dir); err != nil {
		a.log.Warn("initial ingest incomplete", "dir", dir, "error", err)
	}

	watcher, err := filewatcher.NewFSNotifyWatcher(a.loader.SupportedExtensions(), a.log)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Stop()

	return sync.Watch(ctx, watcher, dir)
}

func newFetchCmd(configPath *string) *cobra.Command {
	var (
		bboxArg string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch OSM building footprints for a bbox and enrich them",
		RunE: func(cmd *cobra.Command, args []string) error {
			bbox, err := httpserver.ParseBBox(bboxArg)
			if err != nil {
				return err
			}

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			provider := overpass.NewProvider(a.cfg.Overpass.Endpoint, a.cfg.Overpass.Timeout, a.defaultGHI())
			buildings, err := provider.Footprints(ctx, bbox)
			if err != nil {
				return err
			}

			sourceID := fmt.Sprintf("osm-%.5f_%.5f_%.5f_%.5f", bbox.MinLon, bbox.MinLat, bbox.MaxLon, bbox.MaxLat)
			for i := range buildings {
				buildings[i].SourceID = sourceID
			}

			enrich, err := a.enricher(true)
			if err != nil {
				return err
			}
			run, err := enrich.Enrich(ctx, sourceID, a.cfg.Overpass.Endpoint, buildings)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetched %d, stored %d, skipped %v (run %s)\n",
				run.Loaded, run.Stored, run.Skipped, run.ID)

			if output != "" {
				return writeSource(ctx, a, sourceID, output)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bboxArg, "bbox", "", "minLon,minLat,maxLon,maxLat")
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the reduced GeoJSON to this path")
	cmd.MarkFlagRequired("bbox")
	return cmd
}

func newTopCmd(configPath *string) *cobra.Command {
	var (
		k      int
		metric string
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Print the buildings with the highest solar potential",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			query := usecases.NewQueryUseCase(a.store, a.cfg.HTTP.TopK)
			m := entities.Metric(metric)
			ranked, err := query.Top(cmd.Context(), m, k)
			if err != nil {
				return err
			}
			if m == "" {
				m = entities.MetricKWh
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "RANK\tBLDG_ID\tORIENTATION\t%s\n", m.Label())
			for _, r := range ranked {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\n", r.Rank, r.Building.ID, r.Building.Orientation, r.Value)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of buildings (default from config)")
	cmd.Flags().StringVarP(&metric, "metric", "m", string(entities.MetricKWh), "ghi_sum or kwh_estimate")
	return cmd
}
