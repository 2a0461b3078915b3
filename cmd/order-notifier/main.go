package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jogardn/coffee-storefront/internal/config"
	"github.com/jogardn/coffee-storefront/internal/events"
	"github.com/jogardn/coffee-storefront/internal/notify"
	"github.com/sirupsen/logrus"
)

const consumerGroup = "storefront-order-notifier"

func main() {
	replayDLQ := flag.Bool("replay-dlq", false, "replay dead-lettered order events instead of consuming new ones")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	logger := config.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down order notifier...")
		cancel()
	}()

	if *replayDLQ {
		runReplay(ctx, cfg, logger)
		return
	}
	runConsumer(ctx, cfg, logger)
}

func runConsumer(ctx context.Context, cfg config.Config, logger *logrus.Logger) {
	confirmer := notify.NewOrderConfirmer(logger)

	consumer, err := events.NewOrderConsumer(cfg.KafkaBrokers, consumerGroup, confirmer, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create order consumer")
	}
	defer consumer.Close()

	logger.WithFields(logrus.Fields{
		"brokers": cfg.KafkaBrokers,
		"topic":   events.OrderPlacedTopic,
		"group":   consumerGroup,
	}).Info("Order notifier started")

	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Error("Order consumer stopped with error")
	}

	stats := consumer.Stats()
	logger.WithFields(logrus.Fields{
		"processed":     stats.Processed,
		"succeeded":     stats.Succeeded,
		"retried":       stats.Retried,
		"dead_lettered": stats.DeadLettered,
		"confirmations": confirmer.SentCount(),
	}).Info("Order notifier stopped")
}

func runReplay(ctx context.Context, cfg config.Config, logger *logrus.Logger) {
	processor, err := events.NewDLQProcessor(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create DLQ processor")
	}
	defer processor.Close()

	logger.WithFields(logrus.Fields{
		"brokers":      cfg.KafkaBrokers,
		"topic":        events.OrderPlacedDLQTopic,
		"replay_delay": processor.ReplayDelay.String(),
		"max_replays":  processor.MaxReplays,
	}).Info("DLQ replay started")

	if err := processor.Start(ctx); err != nil {
		logger.WithError(err).Error("DLQ processor stopped with error")
	}
	logger.Info("DLQ replay stopped")
}
