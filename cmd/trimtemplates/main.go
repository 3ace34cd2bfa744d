// Command trimtemplates cuts S-wave templates for catalogued earthquakes out
// of a continuous miniSEED archive.
//
// Usage:
//
//	TRIM_CONFIG=./trim.yaml go run ./cmd/trimtemplates
//
// A path ending in .par is read as the legacy positional parameter file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/couchcryptid/seismic-template-trim/internal/adapter/archive"
	"github.com/couchcryptid/seismic-template-trim/internal/adapter/fdsn"
	httpadapter "github.com/couchcryptid/seismic-template-trim/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/seismic-template-trim/internal/adapter/kafka"
	"github.com/couchcryptid/seismic-template-trim/internal/adapter/s3"
	"github.com/couchcryptid/seismic-template-trim/internal/adapter/sqlite"
	"github.com/couchcryptid/seismic-template-trim/internal/adapter/stationxml"
	"github.com/couchcryptid/seismic-template-trim/internal/catalog"
	"github.com/couchcryptid/seismic-template-trim/internal/config"
	"github.com/couchcryptid/seismic-template-trim/internal/domain"
	"github.com/couchcryptid/seismic-template-trim/internal/inventory"
	"github.com/couchcryptid/seismic-template-trim/internal/observability"
	"github.com/couchcryptid/seismic-template-trim/internal/pipeline"
	"github.com/couchcryptid/seismic-template-trim/internal/traveltime"
	"github.com/couchcryptid/seismic-template-trim/internal/waveform"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, metrics); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	events, err := catalog.ReadZMAPFile(cfg.Catalog, cfg.TimePrecision)
	if err != nil {
		return err
	}
	total := len(events)
	events = domain.SelectRange(events, cfg.Range.Start, cfg.Range.Stop)
	logger.Info("catalog loaded", "path", cfg.Catalog, "events", total, "selected", len(events))

	days, err := catalog.ReadDayListFile(cfg.DayList)
	if err != nil {
		return err
	}

	model, err := traveltime.Load(cfg.Model.Dir, cfg.Model.Name)
	if err != nil {
		return err
	}
	logger.Info("travel-time model built", "model", model.Name, "max_depth_km", model.MaxDepthKm())

	resolver := inventory.NewCachedResolver(
		inventory.NewResolver(inventorySources(cfg, logger), cfg.Inventory.Timeout, logger, metrics),
		cfg.Inventory.CacheSize, metrics,
	)

	loader := waveform.NewLoader(cfg.ContinuousDir, waveform.FilterSpec{
		Low:     cfg.Bandpass.Low,
		High:    cfg.Bandpass.High,
		Corners: cfg.Bandpass.Corners,
	}, logger)

	if err := os.MkdirAll(cfg.TemplateDir, 0o755); err != nil {
		return fmt.Errorf("create template dir: %w", err)
	}
	var mirrors []archive.Store
	if cfg.S3.Enabled {
		store, err := s3.NewStore(cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Prefix, logger)
		if err != nil {
			return err
		}
		mirrors = append(mirrors, store)
		logger.Info("s3 mirror enabled", "endpoint", cfg.S3.Endpoint, "bucket", cfg.S3.Bucket)
	}
	writer := archive.NewWriter(archive.NewDirStore(cfg.TemplateDir), mirrors, cfg.RecordLength, logger, metrics)

	var recorders []pipeline.Recorder
	if cfg.Manifest != "" {
		manifest, err := sqlite.Open(cfg.Manifest)
		if err != nil {
			return err
		}
		defer func() {
			if err := manifest.Close(); err != nil {
				logger.Error("manifest close error", "error", err)
			}
		}()
		recorders = append(recorders, manifest)
		logger.Info("sqlite manifest enabled", "path", cfg.Manifest)
	}
	if cfg.Kafka.Enabled {
		kw := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := kw.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		recorders = append(recorders, kw)
		logger.Info("kafka notifications enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	p := pipeline.New(events, pipeline.Options{
		Stations:      cfg.Stations,
		Channels:      cfg.Channels,
		Days:          days,
		Before:        cfg.WindowBefore(),
		After:         cfg.WindowAfter(),
		EarthRadiusKm: cfg.EarthRadiusKm,
		Workers:       cfg.Workers,
	}, pipeline.Stages{
		Resolver:  resolver,
		Loader:    loader,
		Timer:     model,
		Writer:    writer,
		Recorders: recorders,
	}, logger, metrics)

	srv := startHTTP(cfg, p, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}()

	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if summary.Produced == 0 {
		logger.Warn("no templates produced", summary.LogAttrs()...)
	}
	logger.Info("shutdown complete")
	return nil
}

// inventorySources orders lookups: inline stations, then StationXML files
// in configured order, then the FDSN web service.
func inventorySources(cfg *config.Config, logger *slog.Logger) []inventory.CoordinateSource {
	var sources []inventory.CoordinateSource
	if len(cfg.Inventory.Stations) > 0 {
		inline := make(map[string]domain.Coordinates, len(cfg.Inventory.Stations))
		for code, st := range cfg.Inventory.Stations {
			inline[code] = domain.Coordinates{Latitude: st.Latitude, Longitude: st.Longitude, Elevation: st.Elevation}
		}
		sources = append(sources, inventory.NewStaticSource("config", inline))
	}
	for _, path := range cfg.Inventory.Files {
		sources = append(sources, stationxml.NewFile(path))
	}
	if cfg.Inventory.FDSN.URL != "" {
		network := cfg.Inventory.FDSN.Network
		if network == "" {
			network = strings.Join(cfg.Networks, ",")
		}
		sources = append(sources, fdsn.NewClient(cfg.Inventory.FDSN.URL, network, cfg.Inventory.FDSN.Timeout, cfg.Inventory.FDSN.Attempts, logger))
	}

	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name())
	}
	logger.Info("inventory sources", "sources", names)
	return sources
}

func startHTTP(cfg *config.Config, p *pipeline.Extractor, logger *slog.Logger) *httpadapter.Server {
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	return srv
}
