package contact

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jogardn/coffee-storefront/internal/events"
	"github.com/jogardn/coffee-storefront/internal/httpx"
	"github.com/jogardn/coffee-storefront/internal/metrics"
	"github.com/jogardn/coffee-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

type WebSocketHub interface {
	Broadcast(messageType string, data interface{}, source string)
}

type Handler struct {
	messages   *Messages
	newsletter *Newsletter
	publisher  events.Publisher
	logger     *logrus.Logger
	wsHub      WebSocketHub
	detailed   bool
}

func NewHandler(messages *Messages, newsletter *Newsletter, publisher events.Publisher, logger *logrus.Logger, detailed bool) *Handler {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Handler{
		messages:   messages,
		newsletter: newsletter,
		publisher:  publisher,
		logger:     logger,
		detailed:   detailed,
	}
}

func (h *Handler) SetWebSocketHub(hub WebSocketHub) {
	h.wsHub = hub
}

func (h *Handler) broadcast(messageType string, data interface{}) {
	if h.wsHub != nil {
		h.wsHub.Broadcast(messageType, data, "storefront")
	}
}

func (h *Handler) SubmitContact(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		httpx.RespondWithError(w, http.StatusBadRequest, errInvalidEmail.Message)
		return
	}

	msg, err := h.messages.Submit(r.Context(), fields, httpx.ClientIP(r))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			httpx.RespondWithError(w, http.StatusBadRequest, verr.Message)
			return
		}
		h.logger.WithError(err).WithField("collection", MessagesCollection).Error("Error saving contact")
		httpx.RespondWithServerError(w, "Failed to save contact message", err, h.detailed)
		return
	}

	h.broadcast("contact_submitted", msg)

	httpx.RespondWithJSON(w, http.StatusCreated, models.ItemResponse{
		Success: true,
		Message: "Contact form submitted successfully! We will get back to you soon.",
		Data:    msg,
	})
}

func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messages.List(r.Context())
	if err != nil {
		h.logger.WithError(err).WithField("collection", MessagesCollection).Error("Failed to fetch contacts")
		httpx.RespondWithServerError(w, "Failed to fetch contacts", err, h.detailed)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, models.ListResponse{
		Success: true,
		Data:    messages,
		Count:   len(messages),
	})
}

type subscribeRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondWithError(w, http.StatusBadRequest, errInvalidEmail.Message)
		return
	}

	sub, err := h.newsletter.Subscribe(r.Context(), req.Email, req.Name, httpx.ClientIP(r))
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			metrics.NewsletterSignups.WithLabelValues("invalid").Inc()
			httpx.RespondWithError(w, http.StatusBadRequest, verr.Message)
		case errors.Is(err, ErrAlreadySubscribed):
			metrics.NewsletterSignups.WithLabelValues("duplicate").Inc()
			httpx.RespondWithError(w, http.StatusConflict, "Email already subscribed to our newsletter")
		default:
			metrics.NewsletterSignups.WithLabelValues("error").Inc()
			h.logger.WithError(err).WithField("collection", NewsletterCollection).Error("Error subscribing to newsletter")
			httpx.RespondWithServerError(w, "Failed to subscribe to newsletter", err, h.detailed)
		}
		return
	}

	metrics.NewsletterSignups.WithLabelValues("subscribed").Inc()

	if err := h.publisher.PublishSubscriberAdded(r.Context(), events.NewSubscriberAddedEvent(sub)); err != nil {
		h.logger.WithError(err).WithField("email", sub.Email).Warn("Failed to publish subscriber added event")
	}
	h.broadcast("newsletter_subscribed", sub)

	httpx.RespondWithJSON(w, http.StatusCreated, models.ItemResponse{
		Success: true,
		Message: "Successfully subscribed to our newsletter! Welcome to the Unforgettable Coffee family!",
	})
}

func (h *Handler) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	subscribers, err := h.newsletter.List(r.Context())
	if err != nil {
		h.logger.WithError(err).WithField("collection", NewsletterCollection).Error("Failed to fetch subscribers")
		httpx.RespondWithServerError(w, "Failed to fetch subscribers", err, h.detailed)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, models.ListResponse{
		Success: true,
		Data:    subscribers,
		Count:   len(subscribers),
	})
}
