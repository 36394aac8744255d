package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/internal/metrics"
	"github.com/prohmpiriya/ticket-storefront/internal/notification"
	"github.com/prohmpiriya/ticket-storefront/pkg/kafka"
	"github.com/prohmpiriya/ticket-storefront/pkg/logger"
	"github.com/prohmpiriya/ticket-storefront/pkg/retry"
	"github.com/prohmpiriya/ticket-storefront/pkg/telemetry"
	"go.uber.org/zap"
)

// RecordConsumer is satisfied by kafka.Consumer
type RecordConsumer interface {
	Poll(ctx context.Context) ([]*kafka.Record, error)
	CommitRecords(ctx context.Context, records []*kafka.Record) error
}

// NotificationWorkerConfig holds configuration for the notification worker
type NotificationWorkerConfig struct {
	// PollBackoff is the pause after a failed poll
	PollBackoff time.Duration
}

// NotificationWorker consumes sale events and emails the buyer. A message
// that keeps failing is dead-lettered so the partition keeps moving.
type NotificationWorker struct {
	config   *NotificationWorkerConfig
	consumer RecordConsumer
	sender   notification.EmailSender
	dlq      *retry.DLQHandler
	log      *logger.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(
	cfg *NotificationWorkerConfig,
	consumer RecordConsumer,
	sender notification.EmailSender,
	dlq *retry.DLQHandler,
) *NotificationWorker {
	if cfg == nil {
		cfg = &NotificationWorkerConfig{}
	}
	if cfg.PollBackoff <= 0 {
		cfg.PollBackoff = time.Second
	}
	if dlq == nil {
		dlq = retry.NewDLQHandler(nil, retry.DefaultConfig(), "notification-worker")
	}

	return &NotificationWorker{
		config:   cfg,
		consumer: consumer,
		sender:   sender,
		dlq:      dlq,
		log:      logger.Get(),
	}
}

// Start polls until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) {
	w.log.Info("Starting notification worker")
	for {
		if ctx.Err() != nil {
			w.log.Info("Notification worker stopped")
			return
		}

		records, err := w.consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, kafka.ErrClientClosed) {
				w.log.Info("Notification worker stopped")
				return
			}
			w.log.Error("Failed to poll Kafka", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(w.config.PollBackoff):
			}
			continue
		}

		if len(records) == 0 {
			continue
		}

		w.ProcessRecords(ctx, records)

		if err := w.consumer.CommitRecords(ctx, records); err != nil {
			w.log.Error("Failed to commit offsets", zap.Error(err))
		}
	}
}

// ProcessRecords handles a polled batch in order
func (w *NotificationWorker) ProcessRecords(ctx context.Context, records []*kafka.Record) {
	for _, record := range records {
		if err := w.processRecord(ctx, record); err != nil {
			w.log.ErrorContext(ctx, "Failed to deliver notification",
				zap.String("topic", record.Topic),
				zap.Int64("offset", record.Offset),
				zap.Error(err),
			)
		}
	}
}

func (w *NotificationWorker) processRecord(ctx context.Context, record *kafka.Record) error {
	ctx = telemetry.ExtractMap(ctx, record.Headers)
	ctx, span := telemetry.StartSpan(ctx, "worker.notification.process")
	defer span.End()

	var event domain.SaleEvent
	if err := json.Unmarshal(record.Value, &event); err != nil {
		return w.deadLetter(ctx, record, fmt.Errorf("failed to unmarshal sale event: %w", err))
	}
	if !event.Kind.IsValid() {
		return w.deadLetter(ctx, record, fmt.Errorf("unknown sale event kind %q", event.Kind))
	}

	msg := &retry.MessageContext{
		ID:      event.ID,
		Topic:   record.Topic,
		Key:     string(record.Key),
		Payload: record.Value,
		Headers: record.Headers,
	}
	err := w.dlq.Process(ctx, msg, func(ctx context.Context) error {
		return w.sender.Send(ctx, string(event.Kind), event.SaleCode, event.BuyerEmail)
	})
	if err != nil {
		metrics.RecordNotificationFailure(ctx, string(event.Kind))
		return fmt.Errorf("sale %s %s email: %w", event.SaleCode, event.Kind, err)
	}

	w.log.Debug("Notification sent",
		zap.String("sale_code", event.SaleCode),
		zap.String("kind", string(event.Kind)),
	)
	return nil
}

// deadLetter parks a message that can never be delivered
func (w *NotificationWorker) deadLetter(ctx context.Context, record *kafka.Record, cause error) error {
	msg := &retry.MessageContext{
		ID:      fmt.Sprintf("%s-%d-%d", record.Topic, record.Partition, record.Offset),
		Topic:   record.Topic,
		Key:     string(record.Key),
		Payload: record.Value,
		Headers: record.Headers,
	}
	if err := w.dlq.Process(ctx, msg, func(context.Context) error { return retry.Permanent(cause) }); err != nil {
		return err
	}
	return cause
}
