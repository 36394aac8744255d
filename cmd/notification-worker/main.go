package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prohmpiriya/ticket-storefront/internal/di"
	"github.com/prohmpiriya/ticket-storefront/internal/metrics"
	"github.com/prohmpiriya/ticket-storefront/internal/notification"
	"github.com/prohmpiriya/ticket-storefront/internal/worker"
	"github.com/prohmpiriya/ticket-storefront/pkg/config"
	"github.com/prohmpiriya/ticket-storefront/pkg/kafka"
	"github.com/prohmpiriya/ticket-storefront/pkg/logger"
	"github.com/prohmpiriya/ticket-storefront/pkg/retry"
	"go.uber.org/zap"
)

const serviceName = "notification-worker"

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
	appLog.Info("Starting Notification Worker...")

	if err := metrics.Init(); err != nil {
		appLog.Warn("Failed to register metrics", zap.Error(err))
	}

	consumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        serviceName,
		Topics:         []string{cfg.Notification.Topic},
		ClientID:       serviceName,
		SessionTimeout: 30 * time.Second,
	})
	if err != nil {
		appLog.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()
	appLog.Info("Kafka consumer connected", zap.String("topic", cfg.Notification.Topic))

	producer, err := di.NewProducer(ctx, cfg, serviceName)
	if err != nil {
		appLog.Fatal("Failed to create Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	sender, err := notification.NewHTTPEmailSender(&notification.HTTPEmailSenderConfig{
		BaseURL: cfg.Notification.EmailServiceURL,
		APIKey:  cfg.Notification.EmailAPIKey,
		Timeout: cfg.Notification.EmailTimeout,
	})
	if err != nil {
		appLog.Fatal("Failed to create email sender", zap.Error(err))
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.Notification.EmailMaxRetries
	dlq := retry.NewDLQHandler(retry.NewKafkaDLQPublisher(producer, serviceName, ""), retryCfg, serviceName)

	w := worker.NewNotificationWorker(nil, consumer, sender, dlq)
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	appLog.Info("Notification Worker started successfully")

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		appLog.Warn("Worker did not stop in time")
	}
	appLog.Info("Worker exited gracefully")
}
