package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jogardn/coffee-storefront/internal/config"
	"github.com/jogardn/coffee-storefront/internal/events"
	"github.com/jogardn/coffee-storefront/internal/server"
	"github.com/jogardn/coffee-storefront/internal/storage"
	"github.com/jogardn/coffee-storefront/internal/websocket"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	logger := config.NewLogger(cfg)

	store, err := storage.Open(storage.Options{
		Backend:     cfg.StorageBackend,
		DataDir:     cfg.DataDir,
		BoltPath:    cfg.BoltPath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		logger.WithError(err).WithField("backend", cfg.StorageBackend).Fatal("Failed to open storage")
	}
	defer store.Close()

	publisher, err := events.Open(events.Options{
		Broker:           cfg.EventBroker,
		KafkaBrokers:     cfg.KafkaBrokers,
		RabbitMQURL:      cfg.RabbitMQURL,
		RabbitMQExchange: cfg.RabbitMQExchange,
	}, logger)
	if err != nil {
		logger.WithError(err).WithField("broker", cfg.EventBroker).Fatal("Failed to create event publisher")
	}
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsHub := websocket.NewHub(cfg.FrontendURL, logger)
	go wsHub.Run(ctx)

	srv, err := server.New(server.Dependencies{
		Config:    cfg,
		Store:     store,
		Publisher: publisher,
		Hub:       wsHub,
		Logger:    logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to build server")
	}
	if err := srv.Initialize(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to initialize data files")
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":        cfg.Port,
			"environment": cfg.Environment,
			"storage":     cfg.StorageBackend,
			"events":      cfg.EventBroker,
			"cors_origin": cfg.FrontendURL,
		}).Info("Unforgettable Coffee server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	logger.WithField("signal", sig.String()).Info("Shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	cancel()

	logger.Info("Server gracefully stopped")
}
