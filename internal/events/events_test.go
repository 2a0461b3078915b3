package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/jogardn/coffee-storefront/internal/circuitbreaker"
	"github.com/jogardn/coffee-storefront/pkg/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBrokerDown = errors.New("broker down")

func sampleOrder() *models.Order {
	return &models.Order{
		OrderID: "UC-1760000000000-abc123xyz",
		Items: models.LineItems{
			{Name: "Colombian Supremo", Price: decimal.RequireFromString("16.99"), Quantity: 2},
			{Name: "Sumatra Mandheling", Price: decimal.RequireFromString("19.99"), Quantity: 1},
		},
		CustomerInfo: models.CustomerInfo{Name: "Ada", Email: "ada@example.com"},
		Total:        decimal.RequireFromString("53.97"),
		Status:       models.OrderStatusConfirmed,
		CreatedAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestNewOrderPlacedEvent(t *testing.T) {
	event := NewOrderPlacedEvent(sampleOrder())

	assert.Equal(t, "UC-1760000000000-abc123xyz", event.OrderID)
	assert.Equal(t, "ada@example.com", event.CustomerEmail)
	assert.Equal(t, 3, event.ItemCount)
	assert.Equal(t, "53.97", event.Total.String())
}

func TestOpenWithoutBroker(t *testing.T) {
	logger, _ := test.NewNullLogger()

	p, err := Open(Options{Broker: BrokerNone}, logger)
	require.NoError(t, err)
	assert.IsType(t, NoopPublisher{}, p)
	assert.NoError(t, p.PublishOrderPlaced(context.Background(), OrderPlacedEvent{}))

	_, err = Open(Options{Broker: "carrier-pigeon"}, logger)
	assert.Error(t, err)
}

func TestKafkaProducerPublishesOrderPlaced(t *testing.T) {
	logger, _ := test.NewNullLogger()
	mockProducer := mocks.NewSyncProducer(t, newProducerConfig())
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != OrderPlacedTopic {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "UC-1760000000000-abc123xyz" {
			return fmt.Errorf("unexpected key %s", key)
		}
		value, _ := msg.Value.Encode()
		var event OrderPlacedEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		if event.EventTime.IsZero() {
			return errors.New("event time not stamped")
		}
		return nil
	})

	p := NewKafkaProducerWithClient(mockProducer, logger)
	require.NoError(t, p.PublishOrderPlaced(context.Background(), NewOrderPlacedEvent(sampleOrder())))
	require.NoError(t, p.Close())
}

func TestKafkaProducerSendFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	mockProducer := mocks.NewSyncProducer(t, newProducerConfig())
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaProducerWithClient(mockProducer, logger)
	err := p.PublishSubscriberAdded(context.Background(), SubscriberAddedEvent{Email: "a@b.com"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.Equal(t, "Failed to send message to Kafka", hook.LastEntry().Message)
	require.NoError(t, p.Close())
}

type fakeChannel struct {
	mu        sync.Mutex
	declared  []string
	published []amqp.Publishing
	keys      []string
	err       error
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.declared = append(c.declared, name+":"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.keys = append(c.keys, exchange+"/"+key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestRabbitMQPublisher(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ch := &fakeChannel{}

	p, err := newRabbitMQPublisher(ch, "storefront_events", logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"storefront_events:topic"}, ch.declared)

	require.NoError(t, p.PublishOrderPlaced(context.Background(), NewOrderPlacedEvent(sampleOrder())))
	require.Len(t, ch.published, 1)
	assert.Equal(t, []string{"storefront_events/" + OrderPlacedTopic}, ch.keys)
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, "UC-1760000000000-abc123xyz", ch.published[0].MessageId)

	ch.err = errBrokerDown
	assert.ErrorIs(t, p.PublishSubscriberAdded(context.Background(), SubscriberAddedEvent{Email: "a@b.com"}), errBrokerDown)
	require.NoError(t, p.Close())
}

type failingPublisher struct {
	NoopPublisher
	calls int
}

func (p *failingPublisher) PublishOrderPlaced(context.Context, OrderPlacedEvent) error {
	p.calls++
	return errBrokerDown
}

func TestGuardedFailsFastWhenBrokerIsDown(t *testing.T) {
	logger, _ := test.NewNullLogger()
	inner := &failingPublisher{}
	g := NewGuarded(inner, logger)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, g.PublishOrderPlaced(context.Background(), OrderPlacedEvent{}), errBrokerDown)
	}
	assert.ErrorIs(t, g.PublishOrderPlaced(context.Background(), OrderPlacedEvent{}), circuitbreaker.ErrCircuitBreakerOpen)
	assert.Equal(t, 3, inner.calls)

	// Subscriber events have their own breaker.
	assert.NoError(t, g.PublishSubscriberAdded(context.Background(), SubscriberAddedEvent{}))

	stats := g.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "open", stats[0].State)
	assert.Equal(t, "closed", stats[1].State)
}
