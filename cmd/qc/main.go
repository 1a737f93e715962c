package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/case-data-qc/internal/adapter/countyapi"
	httpadapter "github.com/couchcryptid/case-data-qc/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/case-data-qc/internal/adapter/kafka"
	redisadapter "github.com/couchcryptid/case-data-qc/internal/adapter/redis"
	"github.com/couchcryptid/case-data-qc/internal/adapter/sqlite"
	"github.com/couchcryptid/case-data-qc/internal/config"
	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/observability"
	"github.com/couchcryptid/case-data-qc/internal/pipeline"
	"github.com/couchcryptid/case-data-qc/internal/qc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	preset, err := qc.ByName(cfg.Preset)
	if err != nil {
		logger.Error("invalid preset", "error", err)
		os.Exit(1)
	}

	calendar, err := qc.NewCalendar(clock)
	if err != nil {
		logger.Error("failed to load time zone", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	opts := []pipeline.Option{pipeline.WithClock(clock), pipeline.WithParallelism(cfg.Parallelism)}

	// County rollups come from the HTTP API when configured, else from the database.
	if cfg.CountyAPIURL != "" {
		client := countyapi.NewClient(cfg.CountyAPIURL, cfg.CountyAPITimeout, metrics, logger)
		opts = append(opts, pipeline.WithCounty(countyapi.NewCachedSource(client, cfg.CountyCacheSize, cfg.CacheTTL, clock, metrics)))
		logger.Info("county api enabled", "url", cfg.CountyAPIURL, "cache_size", cfg.CountyCacheSize)
	} else {
		opts = append(opts, pipeline.WithCounty(store))
	}
	if cfg.SaveForecasts {
		opts = append(opts, pipeline.WithForecastStore(store))
	}

	runner := pipeline.New(preset, store, calendar, logger, metrics, opts...)

	var shared pipeline.SnapshotCache
	var redisCache *redisadapter.SnapshotCache
	if cfg.RedisAddr != "" {
		redisCache = redisadapter.NewSnapshotCache(cfg.RedisAddr)
		shared = redisCache
		logger.Info("shared snapshot cache enabled", "addr", cfg.RedisAddr)
	}
	cached := pipeline.NewCachedRunner(runner, shared, clock, cfg.CacheTTL, logger, metrics)

	var publisher pipeline.Publisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka findings enabled", "topic", cfg.KafkaFindingsTopic)
	} else {
		logger.Info("kafka findings disabled")
	}

	scheduler := pipeline.NewScheduler(cached, publisher, cfg.CheckSchedule,
		[]domain.Dataset{domain.DatasetWorking, domain.DatasetCurrent}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, runner, cached, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start scheduled checks.
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before shutdown timeout")
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("shutdown complete")
}
