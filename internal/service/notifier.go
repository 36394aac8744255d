package service

import (
	"context"
	"fmt"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/internal/metrics"
	"github.com/prohmpiriya/ticket-storefront/pkg/logger"
	"go.uber.org/zap"
)

// Notifier publishes sale lifecycle events
type Notifier interface {
	Notify(ctx context.Context, event *domain.SaleEvent) error
	Close() error
}

// JSONProducer is the part of kafka.Producer used here
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, data interface{}, headers map[string]string) error
}

// KafkaNotifier implements Notifier on a Kafka topic keyed by sale code,
// so every event of one sale lands on the same partition
type KafkaNotifier struct {
	producer    JSONProducer
	topic       string
	serviceName string
	closer      func()
}

// NotifierConfig contains configuration for the Kafka notifier
type NotifierConfig struct {
	Topic       string
	ServiceName string
	// Close is called by KafkaNotifier.Close, typically producer.Close
	Close func()
}

// NewKafkaNotifier creates a new Kafka notifier
func NewKafkaNotifier(producer JSONProducer, cfg *NotifierConfig) *KafkaNotifier {
	n := &KafkaNotifier{producer: producer, topic: "sale-events", serviceName: "ticket-storefront"}
	if cfg != nil {
		if cfg.Topic != "" {
			n.topic = cfg.Topic
		}
		if cfg.ServiceName != "" {
			n.serviceName = cfg.ServiceName
		}
		n.closer = cfg.Close
	}
	return n
}

// Notify publishes one event
func (n *KafkaNotifier) Notify(ctx context.Context, event *domain.SaleEvent) error {
	headers := map[string]string{
		"event_type":   string(event.Kind),
		"event_id":     event.ID,
		"source":       n.serviceName,
		"content_type": "application/json",
	}
	if err := n.producer.ProduceJSON(ctx, n.topic, event.SaleCode, event, headers); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Kind, err)
	}
	return nil
}

// Close closes the underlying producer
func (n *KafkaNotifier) Close() error {
	if n.closer != nil {
		n.closer()
	}
	return nil
}

// NoOpNotifier drops every event
type NoOpNotifier struct{}

// NewNoOpNotifier creates a notifier that does nothing
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Notify does nothing
func (n *NoOpNotifier) Notify(ctx context.Context, event *domain.SaleEvent) error {
	return nil
}

// Close does nothing
func (n *NoOpNotifier) Close() error {
	return nil
}

// notify publishes an event and swallows the error
func notify(ctx context.Context, log *logger.Logger, n Notifier, kind domain.SaleEventKind, sale *domain.Sale) {
	if err := n.Notify(ctx, domain.NewSaleEvent(kind, sale)); err != nil {
		metrics.RecordNotificationFailure(ctx, string(kind))
		log.WarnContext(ctx, "failed to publish sale event",
			zap.String("kind", string(kind)),
			zap.String("sale_code", sale.Code),
			zap.Error(err),
		)
	}
}
