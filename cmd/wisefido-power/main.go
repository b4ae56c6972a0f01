package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-power/internal/common/logger"
	"wisefido-power/internal/config"
	httpapi "wisefido-power/internal/http"
	"wisefido-power/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.NewLoggerWithFile(cfg.Log.Level, cfg.Log.Format, "wisefido-power",
		logger.FileOptions{Path: cfg.Log.File, MaxBackups: 5, MaxAgeDays: 30})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("Starting wisefido-power service",
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.Duration("sample_interval", cfg.Sampler.Interval),
	)

	powerService, err := service.NewPowerService(cfg, zlog, prometheus.DefaultRegisterer)
	if err != nil {
		zlog.Fatal("Failed to create power service", zap.Error(err))
	}

	router := httpapi.NewRouter(zlog)
	router.RegisterPowerRoutes(httpapi.NewPowerHandler(powerService.Queries(), powerService.Sampler(), zlog))
	router.RegisterLiveRoutes(httpapi.NewLiveHandler(powerService.Hub(), cfg.Live.WriteTimeout, zlog))
	health := httpapi.NewHealthHandler(powerService.Hub(), powerService.Sampler())
	if broker := powerService.Broker(); broker != nil {
		health.WithBroker(broker)
	}
	router.RegisterOpsRoutes(health, promhttp.Handler())

	srv := service.NewServer(cfg.HTTP.Addr, router, zlog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := powerService.Start(ctx); err != nil {
		zlog.Fatal("Failed to start power service", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zlog.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("HTTP server failed", zap.Error(err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		zlog.Error("Error stopping HTTP server", zap.Error(err))
	}
	if err := powerService.Stop(shutdownCtx); err != nil {
		zlog.Error("Error during shutdown", zap.Error(err))
	}

	zlog.Info("Service stopped")
}
