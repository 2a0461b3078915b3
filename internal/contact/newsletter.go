package contact

import (
	"context"
	"errors"
	"time"

	"github.com/jogardn/coffee-storefront/internal/storage"
	"github.com/jogardn/coffee-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

const NewsletterCollection = "newsletter"

var ErrAlreadySubscribed = errors.New("email already subscribed")

type Newsletter struct {
	subscribers     *storage.Collection[models.Subscriber]
	caseInsensitive bool
	logger          *logrus.Logger
	now             func() time.Time
}

// NewNewsletter builds the subscriber list. With caseInsensitive set,
// "Ada@Example.com" and "ada@example.com" count as the same subscriber.
func NewNewsletter(store storage.Store, caseInsensitive bool, logger *logrus.Logger) *Newsletter {
	return &Newsletter{
		subscribers:     storage.NewCollection[models.Subscriber](store, NewsletterCollection, logger),
		caseInsensitive: caseInsensitive,
		logger:          logger,
		now:             time.Now,
	}
}

func (n *Newsletter) Initialize(ctx context.Context) (bool, error) {
	return n.subscribers.Initialize(ctx, nil)
}

func (n *Newsletter) List(ctx context.Context) ([]models.Subscriber, error) {
	return n.subscribers.List(ctx)
}

// Subscribe adds email unless it is already on the list. The duplicate check
// and the write happen under the collection lock.
func (n *Newsletter) Subscribe(ctx context.Context, email, name, ip string) (*models.Subscriber, error) {
	if !ValidEmail(email) {
		return nil, errInvalidEmail
	}

	key := normalizeEmail(email, n.caseInsensitive)
	sub, err := n.subscribers.Append(ctx, func(existing []models.Subscriber) (models.Subscriber, error) {
		var last int64
		for _, s := range existing {
			if normalizeEmail(s.Email, n.caseInsensitive) == key {
				return models.Subscriber{}, ErrAlreadySubscribed
			}
			if s.ID > last {
				last = s.ID
			}
		}
		now := n.now().UTC()
		return models.Subscriber{
			ID:           nextID(now, last),
			Email:        email,
			Name:         name,
			SubscribedAt: now,
			IP:           ip,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	n.logger.WithFields(logrus.Fields{
		"subscriber_id": sub.ID,
		"email":         sub.Email,
	}).Info("Newsletter subscriber added")

	return &sub, nil
}
