package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	headerRetryCount    = "retry_count"
	headerMetadata      = "metadata"
	headerOriginalTopic = "original_topic"
)

type OrderPlacedHandler interface {
	HandleOrderPlaced(ctx context.Context, event OrderPlacedEvent) error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the message goes straight to
// the dead letter topic.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:   3,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
}

type MessageMetadata struct {
	RetryCount    int       `json:"retry_count"`
	FailedAt      time.Time `json:"failed_at"`
	OriginalTopic string    `json:"original_topic"`
	ErrorMessage  string    `json:"error_message"`
}

type ConsumerStats struct {
	Processed    int64 `json:"processed"`
	Succeeded    int64 `json:"succeeded"`
	Retried      int64 `json:"retried"`
	DeadLettered int64 `json:"dead_lettered"`
}

// OrderConsumer reads order-placed events, retries retryable handler
// failures with exponential backoff and dead-letters the rest.
type OrderConsumer struct {
	group   sarama.ConsumerGroup
	dlq     sarama.SyncProducer
	handler OrderPlacedHandler
	retry   RetryPolicy
	logger  *logrus.Logger

	processed    atomic.Int64
	succeeded    atomic.Int64
	retried      atomic.Int64
	deadLettered atomic.Int64
}

func NewOrderConsumer(brokers, groupID string, handler OrderPlacedHandler, logger *logrus.Logger) (*OrderConsumer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerConfig.Version = sarama.V2_6_0_0

	group, err := sarama.NewConsumerGroup(splitBrokers(brokers), groupID, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	producer, err := sarama.NewSyncProducer(splitBrokers(brokers), newProducerConfig())
	if err != nil {
		group.Close()
		return nil, fmt.Errorf("failed to create producer for DLQ: %w", err)
	}

	c := newOrderConsumer(producer, handler, DefaultRetryPolicy, logger)
	c.group = group
	return c, nil
}

func newOrderConsumer(dlq sarama.SyncProducer, handler OrderPlacedHandler, retry RetryPolicy, logger *logrus.Logger) *OrderConsumer {
	return &OrderConsumer{
		dlq:     dlq,
		handler: handler,
		retry:   retry,
		logger:  logger,
	}
}

func (c *OrderConsumer) Start(ctx context.Context) error {
	for {
		if err := c.group.Consume(ctx, []string{OrderPlacedTopic}, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.WithError(err).Error("Error consuming from Kafka")
			return err
		}
		if ctx.Err() != nil {
			c.logger.Info("Kafka consumer context cancelled")
			return nil
		}
	}
}

func (c *OrderConsumer) Close() error {
	if err := c.dlq.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close DLQ producer")
	}
	if c.group == nil {
		return nil
	}
	return c.group.Close()
}

func (c *OrderConsumer) Stats() ConsumerStats {
	return ConsumerStats{
		Processed:    c.processed.Load(),
		Succeeded:    c.succeeded.Load(),
		Retried:      c.retried.Load(),
		DeadLettered: c.deadLettered.Load(),
	}
}

func (c *OrderConsumer) Setup(sarama.ConsumerGroupSession) error {
	c.logger.Info("Kafka consumer group session setup")
	return nil
}

func (c *OrderConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	c.logger.Info("Kafka consumer group session cleanup")
	return nil
}

func (c *OrderConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.process(session.Context(), message)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// process never returns an error: a message is either handled or parked on
// the dead letter topic, so the partition keeps moving.
func (c *OrderConsumer) process(ctx context.Context, message *sarama.ConsumerMessage) {
	c.processed.Add(1)

	err := c.handleWithRetry(ctx, message)
	if err == nil {
		c.succeeded.Add(1)
		return
	}
	if ctx.Err() != nil {
		return
	}

	if dlqErr := c.sendToDLQ(message, err); dlqErr != nil {
		c.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
		return
	}
	c.deadLettered.Add(1)
}

func (c *OrderConsumer) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	var event OrderPlacedEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		c.logger.WithError(err).WithField("offset", message.Offset).Error("Failed to unmarshal order placed event")
		return Permanent(err)
	}

	log := c.logger.WithField("order_id", event.OrderID)
	delay := c.retry.InitialDelay

	var err error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			log.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay.String(),
			}).Info("Retrying order event")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			c.retried.Add(1)

			delay *= 2
			if delay > c.retry.MaxDelay {
				delay = c.retry.MaxDelay
			}
		}

		err = c.handler.HandleOrderPlaced(ctx, event)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			log.WithError(err).Error("Non-retryable error handling order event")
			return err
		}
		log.WithError(err).WithField("attempt", attempt+1).Warn("Retryable error handling order event")
	}

	return fmt.Errorf("exhausted retries for order %s: %w", event.OrderID, err)
}

func retryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == headerRetryCount {
			if n, err := strconv.Atoi(string(header.Value)); err == nil {
				return n
			}
		}
	}
	return 0
}

func (c *OrderConsumer) sendToDLQ(message *sarama.ConsumerMessage, cause error) error {
	metadata := MessageMetadata{
		RetryCount:    retryCount(message) + 1,
		FailedAt:      time.Now().UTC(),
		OriginalTopic: message.Topic,
		ErrorMessage:  cause.Error(),
	}

	metadataBytes, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	dlqMessage := &sarama.ProducerMessage{
		Topic: OrderPlacedDLQTopic,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerMetadata), Value: metadataBytes},
			{Key: []byte(headerOriginalTopic), Value: []byte(message.Topic)},
		},
	}

	partition, offset, err := c.dlq.SendMessage(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to send to DLQ: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"dlq_topic":     OrderPlacedDLQTopic,
		"dlq_partition": partition,
		"dlq_offset":    offset,
		"original_key":  string(message.Key),
		"error":         cause.Error(),
	}).Warn("Message sent to dead letter queue")

	return nil
}
