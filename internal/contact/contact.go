// Package contact stores contact-form messages and newsletter subscribers.
package contact

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/jogardn/coffee-storefront/internal/storage"
	"github.com/jogardn/coffee-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

const MessagesCollection = "contacts"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var errInvalidEmail = &ValidationError{Message: "Valid email address is required"}

// ValidEmail reports whether email has a non-empty local part and domain,
// the domain contains a dot, and neither contains whitespace.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

type Messages struct {
	messages *storage.Collection[models.ContactMessage]
	logger   *logrus.Logger
	now      func() time.Time
}

func NewMessages(store storage.Store, logger *logrus.Logger) *Messages {
	return &Messages{
		messages: storage.NewCollection[models.ContactMessage](store, MessagesCollection, logger),
		logger:   logger,
		now:      time.Now,
	}
}

func (m *Messages) Initialize(ctx context.Context) (bool, error) {
	return m.messages.Initialize(ctx, nil)
}

func (m *Messages) List(ctx context.Context) ([]models.ContactMessage, error) {
	return m.messages.List(ctx)
}

// Submit stores every submitted field as-is. Only the email field is
// checked.
func (m *Messages) Submit(ctx context.Context, fields map[string]any, ip string) (*models.ContactMessage, error) {
	email, _ := fields["email"].(string)
	if !ValidEmail(email) {
		return nil, errInvalidEmail
	}

	msg, err := m.messages.Append(ctx, func(existing []models.ContactMessage) (models.ContactMessage, error) {
		var last int64
		if n := len(existing); n > 0 {
			last = existing[n-1].ID
		}
		now := m.now().UTC()
		return models.ContactMessage{
			ID:        nextID(now, last),
			Fields:    fields,
			CreatedAt: now,
			IP:        ip,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"contact_id": msg.ID,
		"email":      email,
	}).Info("Contact form stored")

	return &msg, nil
}

// nextID is the epoch-millis id, bumped past last so two records stored in
// the same millisecond stay distinct.
func nextID(now time.Time, last int64) int64 {
	id := now.UnixMilli()
	if id <= last {
		id = last + 1
	}
	return id
}

// normalizeEmail is the newsletter duplicate key. Exact mode compares the
// address untouched.
func normalizeEmail(email string, caseInsensitive bool) string {
	if caseInsensitive {
		return strings.ToLower(strings.TrimSpace(email))
	}
	return email
}
