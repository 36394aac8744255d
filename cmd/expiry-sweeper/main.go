package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prohmpiriya/ticket-storefront/internal/di"
	"github.com/prohmpiriya/ticket-storefront/internal/metrics"
	"github.com/prohmpiriya/ticket-storefront/pkg/config"
	"github.com/prohmpiriya/ticket-storefront/pkg/logger"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const serviceName = "expiry-sweeper"

func main() {
	flagSet := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	once := flagSet.Bool("once", false, "run a single sweep and exit")
	flagSet.Duration("interval", 0, "sweep interval (overrides SALES_SWEEP_INTERVAL)")
	flagSet.Int("batch-size", 0, "sales handled per sweep (overrides SALES_SWEEP_BATCH_SIZE)")
	flagSet.Duration("reminder-lead", 0, "reminder lead time, 0 keeps SALES_REMINDER_LEAD")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// flags override the environment only when given
	v := viper.New()
	bindFlag(v, flagSet, "SALES_SWEEP_INTERVAL", "interval")
	bindFlag(v, flagSet, "SALES_SWEEP_BATCH_SIZE", "batch-size")
	bindFlag(v, flagSet, "SALES_REMINDER_LEAD", "reminder-lead")

	cfg, err := config.LoadFrom(v)
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

	if *once {
		result, err := container.ExpiryWorker.RunOnce(ctx)
		if err != nil {
			appLog.Error("Sweep failed", zap.Error(err))
			os.Exit(1)
		}
		appLog.Info("Sweep finished",
			zap.Int("expired", result.Expired),
			zap.Int("confirmed", result.Confirmed),
			zap.Int("settled", result.Settled),
			zap.Int("reminded", result.Reminded),
			zap.Int("failed", result.Failed),
		)
		return
	}

	if err := container.ExpiryWorker.Start(ctx); err != nil {
		appLog.Fatal("Failed to start expiry worker", zap.Error(err))
	}
	appLog.Info("Expiry Sweeper started", zap.Duration("interval", cfg.Sales.SweepInterval))

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down sweeper...")
	container.ExpiryWorker.Stop()
	appLog.Info("Sweeper exited gracefully")
}

func bindFlag(v *viper.Viper, flagSet *pflag.FlagSet, key, name string) {
	if flag := flagSet.Lookup(name); flag != nil && flag.Changed {
		_ = v.BindPFlag(key, flag)
	}
}
