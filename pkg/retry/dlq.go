package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DLQMessage is the envelope written to a dead letter topic
type DLQMessage struct {
	ID             string            `json:"id"`
	OriginalTopic  string            `json:"original_topic"`
	OriginalKey    string            `json:"original_key"`
	Payload        json.RawMessage   `json:"payload"`
	Headers        map[string]string `json:"headers,omitempty"`
	Error          string            `json:"error"`
	Attempts       int               `json:"attempts"`
	FirstAttemptAt time.Time         `json:"first_attempt_at"`
	LastAttemptAt  time.Time         `json:"last_attempt_at"`
	MovedToDLQAt   time.Time         `json:"moved_to_dlq_at"`
	Source         string            `json:"source"`
}

// DLQPublisher publishes failed messages to a dead letter queue
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg *DLQMessage) error
}

// JSONProducer is satisfied by kafka.Producer
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, data interface{}, headers map[string]string) error
}

// KafkaDLQPublisher publishes to "<topic><suffix>"
type KafkaDLQPublisher struct {
	producer JSONProducer
	suffix   string
	source   string
}

// NewKafkaDLQPublisher creates a publisher; an empty suffix defaults to ".dlq"
func NewKafkaDLQPublisher(producer JSONProducer, source, suffix string) *KafkaDLQPublisher {
	if suffix == "" {
		suffix = ".dlq"
	}
	return &KafkaDLQPublisher{producer: producer, suffix: suffix, source: source}
}

// Topic returns the dead letter topic for originalTopic
func (p *KafkaDLQPublisher) Topic(originalTopic string) string {
	return originalTopic + p.suffix
}

// PublishToDLQ publishes msg to the dead letter topic of its original topic
func (p *KafkaDLQPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error {
	if msg == nil {
		return fmt.Errorf("DLQ message cannot be nil")
	}

	msg.MovedToDLQAt = time.Now()
	msg.Source = p.source

	headers := map[string]string{
		"content_type":   "application/json",
		"original_topic": msg.OriginalTopic,
		"error":          msg.Error,
		"attempts":       strconv.Itoa(msg.Attempts),
		"source":         msg.Source,
	}
	for k, v := range msg.Headers {
		if _, exists := headers[k]; !exists {
			headers["original_"+k] = v
		}
	}

	return p.producer.ProduceJSON(ctx, p.Topic(msg.OriginalTopic), msg.OriginalKey, msg, headers)
}

// NoOpDLQPublisher drops messages
type NoOpDLQPublisher struct{}

// PublishToDLQ does nothing
func (NoOpDLQPublisher) PublishToDLQ(context.Context, *DLQMessage) error { return nil }

// MessageContext identifies the message being processed
type MessageContext struct {
	ID      string
	Topic   string
	Key     string
	Payload json.RawMessage
	Headers map[string]string
}

// DLQHandler retries an operation and dead-letters the message when it keeps failing
type DLQHandler struct {
	retrier   *Retrier
	publisher DLQPublisher
	source    string
}

// NewDLQHandler creates a handler
func NewDLQHandler(publisher DLQPublisher, config *Config, source string) *DLQHandler {
	if publisher == nil {
		publisher = NoOpDLQPublisher{}
	}
	return &DLQHandler{retrier: New(config), publisher: publisher, source: source}
}

// Process runs op with retry. On final failure the message is dead-lettered
// and the operation error is returned.
func (h *DLQHandler) Process(ctx context.Context, msg *MessageContext, op Operation) error {
	first := time.Now()
	result := h.retrier.Do(ctx, op)
	if result.Err == nil {
		return nil
	}

	errMsg := result.Err.Error()
	if result.LastError != nil {
		errMsg = result.LastError.Error()
	}

	dlqMsg := &DLQMessage{
		ID:             msg.ID,
		OriginalTopic:  msg.Topic,
		OriginalKey:    msg.Key,
		Payload:        msg.Payload,
		Headers:        msg.Headers,
		Error:          errMsg,
		Attempts:       result.Attempts,
		FirstAttemptAt: first,
		LastAttemptAt:  time.Now(),
	}
	if err := h.publisher.PublishToDLQ(ctx, dlqMsg); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w (original error: %s)", err, errMsg)
	}
	return result.Err
}
