package main

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/0xcro3dile/solarmap-go/internal/adapters/irradiance"
	"github.com/0xcro3dile/solarmap-go/internal/adapters/loader"
	"github.com/0xcro3dile/solarmap-go/internal/adapters/progress"
	"github.com/0xcro3dile/solarmap-go/internal/adapters/publisher"
	"github.com/0xcro3dile/solarmap-go/internal/adapters/store"
	"github.com/0xcro3dile/solarmap-go/internal/config"
	"github.com/0xcro3dile/solarmap-go/internal/domain/ports"
	"github.com/0xcro3dile/solarmap-go/internal/domain/usecases"
	"github.com/0xcro3dile/solarmap-go/internal/infrastructure/metrics"
	"github.com/0xcro3dile/solarmap-go/internal/logging"
)

// app holds the wired adapters shared by every command.
type app struct {
	cfg       config.Config
	log       *slog.Logger
	logger    *logging.DualLogger
	store     *store.SQLStore
	publisher *publisher.KafkaPublisher
	metrics   *metrics.Metrics
	loader    *loader.GeoJSONLoader
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.File, nil)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := logger.Logger

	ld, err := loader.NewGeoJSONLoader(cfg.Input.Properties, cfg.Input.CRS)
	if err != nil {
		logger.Close()
		return nil, err
	}

	st, err := store.NewSQLStore(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		logger:  logger,
		store:   st,
		metrics: metrics.New(),
		loader:  ld,
	}

	if len(cfg.Kafka.Brokers) > 0 {
		a.publisher = publisher.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		log.Info("kafka publishing enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	return a, nil
}

// enricher builds an EnrichUseCase. A progress bar is attached when showProgress is set.
func (a *app) enricher(showProgress bool) (*usecases.EnrichUseCase, error) {
	bbox, err := a.cfg.BBox()
	if err != nil {
		return nil, err
	}

	opts := usecases.EnrichOptions{
		Store:             a.store,
		Observer:          a.metrics,
		Logger:            a.log,
		Energy:            a.cfg.Energy,
		BBox:              bbox,
		SimplifyTolerance: a.cfg.Input.SimplifyTolerance,
		Workers:           a.cfg.Input.Workers,
	}
	if a.publisher != nil {
		opts.Publisher = a.publisher
	}
	if showProgress {
		opts.Progress = progress.NewBar(nil)
	}
	if irr := a.irradiance(); irr != nil {
		opts.Irradiance = irr
	}
	return usecases.NewEnrichUseCase(opts), nil
}

func (a *app) irradiance() ports.IrradianceProvider {
	c := a.cfg.Irradiance
	if c.APIKey == "" {
		return nil
	}
	client, err := irradiance.NewNRELClient(c.BaseURL, c.APIKey, c.CacheTTL, a.metrics)
	if err != nil {
		a.log.Warn("irradiance lookups disabled", "error", err)
		return nil
	}
	return client
}

func (a *app) defaultGHI() float64 {
	if a.cfg.Overpass.DefaultGHI <= 0 {
		return math.NaN()
	}
	return a.cfg.Overpass.DefaultGHI
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("closing publisher", "error", err)
		}
	}
	a.store.Close()
	a.logger.Close()
}
