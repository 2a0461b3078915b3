package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

var ErrReplayLimit = errors.New("exceeded maximum replay attempts")

// DLQProcessor moves dead-lettered order events back onto the main topic
// after a delay, until a message has failed MaxReplays times.
type DLQProcessor struct {
	consumer    sarama.ConsumerGroup
	producer    sarama.SyncProducer
	logger      *logrus.Logger
	ReplayDelay time.Duration
	MaxReplays  int
}

func NewDLQProcessor(brokers string, logger *logrus.Logger) (*DLQProcessor, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerConfig.Version = sarama.V2_6_0_0

	consumer, err := sarama.NewConsumerGroup(splitBrokers(brokers), "storefront-dlq-processor", consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ consumer: %w", err)
	}

	producer, err := sarama.NewSyncProducer(splitBrokers(brokers), newProducerConfig())
	if err != nil {
		consumer.Close()
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	p := newDLQProcessor(producer, logger)
	p.consumer = consumer
	return p, nil
}

func newDLQProcessor(producer sarama.SyncProducer, logger *logrus.Logger) *DLQProcessor {
	return &DLQProcessor{
		producer:    producer,
		logger:      logger,
		ReplayDelay: 30 * time.Second,
		MaxReplays:  DefaultRetryPolicy.MaxRetries * 2,
	}
}

func (p *DLQProcessor) Start(ctx context.Context) error {
	handler := &dlqConsumerHandler{processor: p}
	for {
		if err := p.consumer.Consume(ctx, []string{OrderPlacedDLQTopic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			p.logger.WithError(err).Error("Error consuming from DLQ")
			return err
		}
		if ctx.Err() != nil {
			p.logger.Info("DLQ processor context cancelled")
			return nil
		}
	}
}

func dlqMetadata(message *sarama.ConsumerMessage) (MessageMetadata, error) {
	var metadata MessageMetadata
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == headerMetadata {
			err := json.Unmarshal(header.Value, &metadata)
			return metadata, err
		}
	}
	return metadata, nil
}

func (p *DLQProcessor) ReplayMessage(message *sarama.ConsumerMessage) error {
	metadata, err := dlqMetadata(message)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to unmarshal DLQ metadata")
	}

	if metadata.RetryCount >= p.MaxReplays {
		p.logger.WithFields(logrus.Fields{
			"order_key":   string(message.Key),
			"retry_count": metadata.RetryCount,
		}).Error("Message exceeded maximum replay attempts")
		return ErrReplayLimit
	}

	replay := &sarama.ProducerMessage{
		Topic: OrderPlacedTopic,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerRetryCount), Value: []byte(strconv.Itoa(metadata.RetryCount))},
			{Key: []byte("replayed_from_dlq"), Value: []byte("true")},
		},
	}

	partition, offset, err := p.producer.SendMessage(replay)
	if err != nil {
		return fmt.Errorf("failed to replay message: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"replay_topic":     OrderPlacedTopic,
		"replay_partition": partition,
		"replay_offset":    offset,
		"order_key":        string(message.Key),
	}).Info("Message replayed from DLQ")

	return nil
}

func (p *DLQProcessor) Close() error {
	if err := p.producer.Close(); err != nil {
		p.logger.WithError(err).Error("Failed to close producer")
	}
	if p.consumer == nil {
		return nil
	}
	return p.consumer.Close()
}

type dlqConsumerHandler struct {
	processor *DLQProcessor
}

func (h *dlqConsumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *dlqConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *dlqConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	logger := h.processor.logger
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			metadata, _ := dlqMetadata(message)
			logger.WithFields(logrus.Fields{
				"key":            string(message.Key),
				"offset":         message.Offset,
				"original_topic": metadata.OriginalTopic,
				"retry_count":    metadata.RetryCount,
				"failed_at":      metadata.FailedAt,
				"error_message":  metadata.ErrorMessage,
			}).Warn("DLQ message detected")

			select {
			case <-time.After(h.processor.ReplayDelay):
			case <-session.Context().Done():
				return nil
			}

			if err := h.processor.ReplayMessage(message); err != nil {
				logger.WithError(err).Error("Failed to replay DLQ message")
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
