package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/traffic-eagle/internal/adapter/csvsource"
	httpadapter "github.com/couchcryptid/traffic-eagle/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/traffic-eagle/internal/adapter/kafka"
	"github.com/couchcryptid/traffic-eagle/internal/config"
	"github.com/couchcryptid/traffic-eagle/internal/observability"
	"github.com/couchcryptid/traffic-eagle/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	schema, err := config.LoadSchema(cfg.SchemaPath)
	if err != nil {
		logger.Error("failed to load column schema", "error", err)
		os.Exit(1)
	}

	population := csvsource.NewFile(cfg.PopulationPath, schema, logger, metrics)

	// Accidents come from the CSV file or are replayed from Kafka (ACCIDENTS_SOURCE).
	var accidents pipeline.AccidentSource
	var reader *kafkaadapter.Reader
	if cfg.AccidentsSource == config.SourceKafka {
		reader = kafkaadapter.NewReader(cfg.KafkaBrokers, cfg.KafkaAccidentsTopic, cfg.KafkaIdleTimeout, logger, metrics)
		accidents = reader
	} else {
		accidents = csvsource.NewFile(cfg.AccidentsPath, schema, logger, metrics)
	}
	logger.Info("source tables configured", "accidents", accidents.Describe(), "population", population.Describe())

	p := pipeline.New(pipeline.Features{
		YearScoped:    cfg.SeriesYearScoped,
		Decomposition: cfg.DecompositionEnabled,
		Forecasting:   cfg.ForecastEnabled,
		Horizon:       cfg.ForecastHorizon,
	}, logger, metrics, pipeline.WithCacheSize(cfg.AnalysisCacheSize))

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:              cfg.HTTPAddr,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}, p, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server. /readyz reports 503 until the tables are attached.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Load source tables.
	go func() {
		if err := p.LoadAndAttach(ctx, accidents, population); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("table load error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
