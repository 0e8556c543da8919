package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/aquifer-feature-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/aquifer-feature-etl/internal/adapter/inference"
	"github.com/couchcryptid/aquifer-feature-etl/internal/adapter/jsonl"
	kafkaadapter "github.com/couchcryptid/aquifer-feature-etl/internal/adapter/kafka"
	"github.com/couchcryptid/aquifer-feature-etl/internal/adapter/sqlstore"
	"github.com/couchcryptid/aquifer-feature-etl/internal/config"
	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/features"
	"github.com/couchcryptid/aquifer-feature-etl/internal/observability"
	"github.com/couchcryptid/aquifer-feature-etl/internal/pipeline"
	"github.com/couchcryptid/aquifer-feature-etl/internal/spatial"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	engine, err := config.LoadEngine(cfg.EngineConfigPath)
	if err != nil {
		slog.Error("failed to load engine config", "path", cfg.EngineConfigPath, "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, engine, logger, metrics); err != nil {
		logger.Error("featurize failed", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the service logger and installs it as the slog default.
func newLogger(cfg *config.Config) *slog.Logger {
	return sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
}

func run(ctx context.Context, cfg *config.Config, engine config.Engine, logger *slog.Logger, metrics *observability.Metrics) error {
	assembler, err := features.NewAssembler(engine.Features)
	if err != nil {
		return err
	}
	logger.Info("engine configured", "features", assembler.Schema().Len(), "workers", cfg.Workers)

	store, err := sqlstore.Open(ctx, cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return err
	}
	defer closeWith(logger, "feature store", store.Close)

	loaders := pipeline.MultiLoader{store}
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer closeWith(logger, "kafka writer", writer.Close)
		loaders = append(loaders, writer)
		logger.Info("kafka sink enabled", "topic", cfg.KafkaSinkTopic, "brokers", cfg.KafkaBrokers)
	}

	// Initialize model inference (feature-flagged via MODEL_URL).
	var predictor domain.Predictor
	if cfg.ModelEnabled {
		client := inference.NewClient(cfg.ModelURL, cfg.ModelTimeout, metrics, logger)
		predictor = inference.NewCachedPredictor(client, cfg.ModelCacheSize, metrics)
		metrics.InferenceEnabled.Set(1)
		logger.Info("model inference enabled", "url", cfg.ModelURL, "cache_size", cfg.ModelCacheSize, "timeout", cfg.ModelTimeout)
	} else {
		logger.Info("model inference disabled")
	}

	opts := []pipeline.Option{pipeline.WithWorkers(cfg.Workers)}
	if cfg.TileInputPath != "" {
		catalog, err := buildTerrain(ctx, cfg, engine, logger, metrics)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithTerrain(catalog, cfg.TerrainMaxDistance))
	}

	var locations spatial.Holder
	opts = append(opts, pipeline.WithLocationIndex(&locations))

	jobs, err := jsonl.OpenJobs(cfg.LocationInputPath)
	if err != nil {
		return err
	}
	defer closeWith(logger, "location reader", jobs.Close)

	p := pipeline.New(jobs, pipeline.NewTransformer(assembler, logger), loaders, logger, metrics, cfg.BatchSize, opts...)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, httpadapter.Deps{
		Index:     &locations,
		Store:     store,
		Predictor: predictor,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the pipeline. A configuration error stops the service; a drained
	// source leaves the query API running until shutdown.
	pipelineErr := make(chan error, 1)
	go func() {
		pipelineErr <- p.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-pipelineErr:
		if runErr == nil {
			logger.Info("input drained, serving queries until shutdown")
			<-ctx.Done()
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
	return runErr
}

func buildTerrain(ctx context.Context, cfg *config.Config, engine config.Engine, logger *slog.Logger, metrics *observability.Metrics) (*pipeline.TerrainCatalog, error) {
	tiles, err := jsonl.OpenTiles(cfg.TileInputPath)
	if err != nil {
		return nil, err
	}
	defer closeWith(logger, "tile reader", tiles.Close)

	catalog, err := pipeline.BuildTerrain(ctx, tiles, engine.Terrain, cfg.Workers, logger, metrics)
	if err != nil {
		return nil, err
	}
	logger.Info("terrain catalog built", "samples", catalog.Len(), "max_distance_m", cfg.TerrainMaxDistance)
	return catalog, nil
}

func closeWith(logger *slog.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Error(what+" close error", "error", err)
	}
}
