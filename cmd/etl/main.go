package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/adapter/csvstore"
	httpadapter "github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/adapter/http"
	kafkaadapter "github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/adapter/kafka"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/adapter/openmeteo"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/adapter/parquetfile"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/adapter/warehouse"
	_ "github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/adapter/warehouse/postgres"
	_ "github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/adapter/warehouse/sqlite"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/config"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/observability"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read .env", "error", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := pipeline.Instrument(csvstore.New(cfg.CleanDir, map[string]string{
		domain.RawTicketSalesTable:     cfg.RawTicketsPath,
		domain.RawSectionCapacityTable: cfg.RawCapacityPath,
		domain.RawWeatherHourlyTable:   cfg.RawWeatherPath,
	}, logger), metrics)

	// Weather ingestion is feature-flagged via WEATHER_INGEST.
	var fetcher pipeline.WeatherFetcher
	if cfg.WeatherIngest {
		fetcher = openmeteo.NewClient(cfg, metrics, logger)
		logger.Info("weather ingestion enabled",
			"start", cfg.WeatherStartDate, "end", cfg.WeatherEndDate, "vars", cfg.WeatherHourlyVars)
	} else {
		logger.Info("weather ingestion disabled", "raw_weather", cfg.RawWeatherPath)
	}

	sinks := []pipeline.FactSink{parquetfile.NewWriter(cfg.ParquetPath, logger)}

	if cfg.WarehouseKind != "" {
		loader, err := warehouse.Open(ctx, warehouse.Config{
			Kind:  cfg.WarehouseKind,
			DSN:   cfg.WarehouseDSN,
			Table: cfg.WarehouseTable,
		}, clock, logger)
		if err != nil {
			logger.Error("failed to open warehouse", "kind", cfg.WarehouseKind, "error", err)
			return 1
		}
		defer func() {
			if err := loader.Close(); err != nil {
				logger.Error("warehouse close error", "error", err)
			}
		}()
		sinks = append(sinks, loader)
		logger.Info("warehouse load enabled", "kind", cfg.WarehouseKind, "table", cfg.WarehouseTable)
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafkaadapter.NewPublisher(cfg, clock, metrics, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		sinks = append(sinks, publisher)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaFactTopic)
	}

	stages := pipeline.Stages(store, config.MarketsFile{Path: cfg.MarketsFile}, fetcher, sinks...)
	p := pipeline.New(store, stages, logger, metrics, clock)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	runErr := p.Run(ctx)
	if runErr != nil {
		logger.Error("pipeline finished with errors", "error", runErr)
	} else {
		logger.Info("pipeline finished")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	if runErr != nil {
		return 1
	}
	return 0
}
