package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/example/taxi-dashboard/internal/config"
	"github.com/example/taxi-dashboard/internal/dashboard"
	"github.com/example/taxi-dashboard/internal/logging"
	"github.com/example/taxi-dashboard/internal/taxiapi"
	"github.com/example/taxi-dashboard/internal/views"
)

func main() {
	cfg, err := config.LoadDashboardConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := taxiapi.NewClient(cfg.APIBaseURL, taxiapi.WithTimeout(cfg.APITimeout), taxiapi.WithLogger(logger))

	list := views.NewListTrips(client, client, logger)
	top := views.NewTopZones(client, logger)
	summary := views.NewZoneTrips(client, logger)
	hub := dashboard.NewHub(logger)
	handler := dashboard.NewServer(list, top, summary, hub, logger)
	list.OnChange(handler.Publish)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		list.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		top.Load(ctx)
	}()

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard listening", "addr", cfg.HTTPAddr, "api", cfg.APIBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error("dashboard server failed", "error", err)
		stop()
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	wg.Wait()
}
