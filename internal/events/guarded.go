package events

import (
	"context"
	"time"

	"github.com/jogardn/coffee-storefront/internal/circuitbreaker"
	"github.com/jogardn/coffee-storefront/internal/metrics"
	"github.com/sirupsen/logrus"
)

const (
	eventOrderPlaced     = "order_placed"
	eventSubscriberAdded = "subscriber_added"
)

// Guarded wraps a Publisher so that a broker outage trips a breaker per
// event kind and later publishes fail fast.
type Guarded struct {
	inner    Publisher
	breakers *circuitbreaker.Manager
	logger   *logrus.Logger
}

func NewGuarded(inner Publisher, logger *logrus.Logger) *Guarded {
	return &Guarded{
		inner: inner,
		breakers: circuitbreaker.NewManager(circuitbreaker.Config{
			MaxFailures: 3,
			Timeout:     30 * time.Second,
			MaxRequests: 1,
		}, logger),
		logger: logger,
	}
}

func (g *Guarded) PublishOrderPlaced(ctx context.Context, event OrderPlacedEvent) error {
	return g.run(eventOrderPlaced, func() error {
		return g.inner.PublishOrderPlaced(ctx, event)
	})
}

func (g *Guarded) PublishSubscriberAdded(ctx context.Context, event SubscriberAddedEvent) error {
	return g.run(eventSubscriberAdded, func() error {
		return g.inner.PublishSubscriberAdded(ctx, event)
	})
}

func (g *Guarded) run(event string, fn func() error) error {
	err := g.breakers.Get(event).Execute(fn)
	metrics.EventPublishes.WithLabelValues(event, metrics.Result(err)).Inc()
	return err
}

func (g *Guarded) Stats() []circuitbreaker.Stats {
	return g.breakers.Stats()
}

func (g *Guarded) Close() error {
	return g.inner.Close()
}
