package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) ProduceJSON(ctx context.Context, topic, key string, data interface{}, headers map[string]string) error {
	args := m.Called(ctx, topic, key, data, headers)
	return args.Error(0)
}

func TestKafkaNotifier_Notify(t *testing.T) {
	producer := new(MockProducer)
	closed := false
	n := NewKafkaNotifier(producer, &NotifierConfig{Topic: "sale-events", ServiceName: "storefront", Close: func() { closed = true }})
	event := domain.NewSaleEvent(domain.SaleEventCreated, &domain.Sale{Code: "TS-ABCDEFGHJKMN"})

	producer.On("ProduceJSON", mock.Anything, "sale-events", "TS-ABCDEFGHJKMN", event, mock.MatchedBy(func(h map[string]string) bool {
		return h["event_type"] == "created" && h["event_id"] == event.ID && h["source"] == "storefront"
	})).Return(nil)

	assert.NoError(t, n.Notify(context.Background(), event))
	assert.NoError(t, n.Close())
	assert.True(t, closed)
	producer.AssertExpectations(t)
}

func TestKafkaNotifier_NotifyError(t *testing.T) {
	producer := new(MockProducer)
	producer.On("ProduceJSON", mock.Anything, "sale-events", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))
	n := NewKafkaNotifier(producer, nil)

	err := n.Notify(context.Background(), domain.NewSaleEvent(domain.SaleEventExpired, &domain.Sale{Code: "TS-X"}))

	assert.ErrorContains(t, err, "failed to publish expired event")
}
