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

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/ticket-storefront/internal/di"
	"github.com/prohmpiriya/ticket-storefront/internal/metrics"
	"github.com/prohmpiriya/ticket-storefront/pkg/config"
	"github.com/prohmpiriya/ticket-storefront/pkg/logger"
	"github.com/prohmpiriya/ticket-storefront/pkg/telemetry"
	"go.uber.org/zap"
)

const serviceName = "storefront"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appLog, err := di.InitObservability(ctx, cfg, serviceName)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer logger.Sync()
	appLog.Info("Starting Storefront...",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("inventory", cfg.Storage.InventoryBackend),
		zap.String("card_processor", cfg.Payment.CardProcessor),
	)

	if err := metrics.Init(); err != nil {
		appLog.Warn("Failed to register metrics", zap.Error(err))
	}

	infra, err := di.ConnectStorage(ctx, cfg)
	if err != nil {
		appLog.Fatal("Storage connection failed", zap.Error(err))
	}
	defer infra.Close()

	notifier := di.NewNotifier(ctx, cfg, serviceName)
	defer notifier.Close()

	container, err := di.NewContainer(&di.ContainerConfig{
		Config:   cfg,
		DB:       infra.DB,
		Redis:    infra.Redis,
		Notifier: notifier,
	})
	if err != nil {
		appLog.Fatal("Failed to build container", zap.Error(err))
	}

	// In-process sweeper; cmd/expiry-sweeper runs the same loop standalone
	if cfg.Sales.SweepInterval > 0 {
		if err := container.ExpiryWorker.Start(ctx); err != nil {
			appLog.Fatal("Failed to start expiry worker", zap.Error(err))
		}
		defer container.ExpiryWorker.Stop()
	}

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := container.Router(serviceName)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLog.Info("Storefront listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}
	cancel()
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("Failed to flush traces", zap.Error(err))
	}

	appLog.Info("Server exited gracefully")
}
