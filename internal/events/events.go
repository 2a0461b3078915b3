package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jogardn/coffee-storefront/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	OrderPlacedTopic     = "storefront.order.placed"
	OrderPlacedDLQTopic  = "storefront.order.placed.dlq"
	SubscriberAddedTopic = "storefront.newsletter.subscribed"
)

const (
	BrokerNone     = "none"
	BrokerKafka    = "kafka"
	BrokerRabbitMQ = "rabbitmq"
)

type OrderPlacedEvent struct {
	OrderID       string          `json:"order_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	Total         decimal.Decimal `json:"total"`
	ItemCount     int             `json:"item_count"`
	CreatedAt     time.Time       `json:"created_at"`
	EventTime     time.Time       `json:"event_time"`
}

func NewOrderPlacedEvent(order *models.Order) OrderPlacedEvent {
	count := 0
	for _, item := range order.Items {
		count += item.Quantity
	}
	return OrderPlacedEvent{
		OrderID:       order.OrderID,
		CustomerName:  order.CustomerInfo.Name,
		CustomerEmail: order.CustomerInfo.Email,
		Total:         order.Total,
		ItemCount:     count,
		CreatedAt:     order.CreatedAt,
	}
}

type SubscriberAddedEvent struct {
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	SubscribedAt time.Time `json:"subscribed_at"`
	EventTime    time.Time `json:"event_time"`
}

func NewSubscriberAddedEvent(s *models.Subscriber) SubscriberAddedEvent {
	return SubscriberAddedEvent{
		Email:        s.Email,
		Name:         s.Name,
		SubscribedAt: s.SubscribedAt,
	}
}

// Publisher announces storefront domain events to a broker.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, event OrderPlacedEvent) error
	PublishSubscriberAdded(ctx context.Context, event SubscriberAddedEvent) error
	Close() error
}

type Options struct {
	Broker           string
	KafkaBrokers     string
	RabbitMQURL      string
	RabbitMQExchange string
}

// Open connects the publisher selected by opts.Broker and wraps it in a
// circuit breaker. BrokerNone yields a publisher that drops everything.
func Open(opts Options, logger *logrus.Logger) (Publisher, error) {
	var (
		inner Publisher
		err   error
	)
	switch strings.ToLower(opts.Broker) {
	case "", BrokerNone:
		return NoopPublisher{}, nil
	case BrokerKafka:
		inner, err = NewKafkaProducer(opts.KafkaBrokers, logger)
	case BrokerRabbitMQ:
		inner, err = NewRabbitMQPublisher(opts.RabbitMQURL, opts.RabbitMQExchange, logger)
	default:
		return nil, fmt.Errorf("unknown event broker %q", opts.Broker)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s publisher: %w", opts.Broker, err)
	}
	return NewGuarded(inner, logger), nil
}

type NoopPublisher struct{}

func (NoopPublisher) PublishOrderPlaced(context.Context, OrderPlacedEvent) error { return nil }

func (NoopPublisher) PublishSubscriberAdded(context.Context, SubscriberAddedEvent) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
