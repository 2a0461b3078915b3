// Package notify turns order-placed events into customer order
// confirmations. Delivery is a log line for now; the handler is where a
// mail sender would plug in.
package notify

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jogardn/coffee-storefront/internal/events"
	"github.com/sirupsen/logrus"
)

var ErrNoRecipient = errors.New("order has no customer email")

type Confirmation struct {
	OrderID   string
	Recipient string
	Name      string
	Subject   string
	Total     string
	ItemCount int
}

type OrderConfirmer struct {
	logger *logrus.Logger

	mu   sync.Mutex
	sent map[string]bool
}

func NewOrderConfirmer(logger *logrus.Logger) *OrderConfirmer {
	return &OrderConfirmer{
		logger: logger,
		sent:   make(map[string]bool),
	}
}

// HandleOrderPlaced sends one confirmation per order id. Redelivered events
// for an order already confirmed are acknowledged without a second send.
// An event without a recipient can never succeed and is marked permanent.
func (c *OrderConfirmer) HandleOrderPlaced(ctx context.Context, event events.OrderPlacedEvent) error {
	if strings.TrimSpace(event.CustomerEmail) == "" {
		return events.Permanent(ErrNoRecipient)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent[event.OrderID] {
		c.logger.WithField("order_id", event.OrderID).Debug("Confirmation already sent, skipping")
		return nil
	}

	confirmation := Build(event)
	c.logger.WithFields(logrus.Fields{
		"order_id":   confirmation.OrderID,
		"recipient":  confirmation.Recipient,
		"subject":    confirmation.Subject,
		"total":      confirmation.Total,
		"item_count": confirmation.ItemCount,
	}).Info("Order confirmation sent")

	c.sent[event.OrderID] = true
	return nil
}

func (c *OrderConfirmer) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func Build(event events.OrderPlacedEvent) Confirmation {
	name := strings.TrimSpace(event.CustomerName)
	if name == "" {
		name = "Coffee lover"
	}
	return Confirmation{
		OrderID:   event.OrderID,
		Recipient: strings.TrimSpace(event.CustomerEmail),
		Name:      name,
		Subject:   "Your Unforgettable Coffee order " + event.OrderID,
		Total:     "$" + event.Total.StringFixed(2),
		ItemCount: event.ItemCount,
	}
}
