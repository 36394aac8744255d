package kafka

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(context.Background(), &ProducerConfig{})
	assert.EqualError(t, err, "kafka brokers are required")

	_, err = NewProducer(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewConsumer_RequiresGroupAndTopics(t *testing.T) {
	_, err := NewConsumer(context.Background(), &ConsumerConfig{Brokers: []string{"localhost:9092"}})
	assert.EqualError(t, err, "consumer group and topics are required")
}

func TestCommitRecords_IgnoresDetachedRecords(t *testing.T) {
	c := &Consumer{}
	assert.NoError(t, c.CommitRecords(context.Background(), []*Record{{Topic: "t"}}))
}

func TestProduceConsume_Integration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}

	brokers := strings.Split(os.Getenv("TEST_KAFKA_BROKERS"), ",")
	if brokers[0] == "" {
		brokers = []string{"localhost:9092"}
	}
	topic := "storefront-test-" + time.Now().Format("150405")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	producer, err := NewProducer(ctx, &ProducerConfig{Brokers: brokers, ClientID: "test"})
	require.NoError(t, err)
	defer producer.Close()

	require.NoError(t, producer.ProduceJSON(ctx, topic, "k", map[string]string{"hello": "world"}, map[string]string{"event_type": "test"}))

	consumer, err := NewConsumer(ctx, &ConsumerConfig{Brokers: brokers, GroupID: topic, Topics: []string{topic}})
	require.NoError(t, err)
	defer consumer.Close()

	records, err := consumer.Poll(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, "test", records[0].Headers["event_type"])
	assert.NoError(t, consumer.CommitRecords(ctx, records))
}
