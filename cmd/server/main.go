package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/taxi-dashboard/internal/config"
	httpapi "github.com/example/taxi-dashboard/internal/http"
	"github.com/example/taxi-dashboard/internal/ingest"
	"github.com/example/taxi-dashboard/internal/loader"
	"github.com/example/taxi-dashboard/internal/logging"
	"github.com/example/taxi-dashboard/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) error {
	migrate := cfg.RunMigrations || cfg.DBDriver == "sqlite3"
	store, closeStore, err := storage.Open(ctx, cfg.DBDriver, cfg.DBDSN, migrate)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = closeStore() }()
	logger.Info("store ready", "driver", cfg.DBDriver, "migrated", migrate)

	if err := loader.New(store, logger).Seed(ctx, cfg.ZonesCSV, cfg.TripsCSV); err != nil {
		logger.Error("data loading failed", "error", err)
	}

	opts := []httpapi.Option{httpapi.WithCORSOrigins(cfg.CORSOrigins)}
	switch {
	case cfg.TopZonesCacheTTL == 0:
	case cfg.RedisAddr != "":
		cache, rc := storage.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.TopZonesCacheTTL)
		defer func() { _ = rc.Close() }()
		opts = append(opts, httpapi.WithCache(cache))
		logger.Info("top zones cache", "backend", "redis", "addr", cfg.RedisAddr, "ttl", cfg.TopZonesCacheTTL)
	default:
		opts = append(opts, httpapi.WithCache(storage.NewMemoryCache(cfg.TopZonesCacheTTL)))
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() { _ = producer.Close() }()
		opts = append(opts, httpapi.WithPublisher(producer))
		logger.Info("trip ingestion via kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(store, logger, opts...),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("trip api listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
