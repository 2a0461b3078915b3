package orders

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
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
	repo      *Repository
	publisher events.Publisher
	logger    *logrus.Logger
	wsHub     WebSocketHub
	detailed  bool
}

// NewHandler wires the order routes. detailed exposes storage error text in
// responses and is only set in development.
func NewHandler(repo *Repository, publisher events.Publisher, logger *logrus.Logger, detailed bool) *Handler {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Handler{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		detailed:  detailed,
	}
}

func (h *Handler) SetWebSocketHub(hub WebSocketHub) {
	h.wsHub = hub
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Warn("Failed to decode order request")
		httpx.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.repo.Create(r.Context(), req)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			httpx.RespondWithError(w, http.StatusBadRequest, verr.Message)
			return
		}
		h.logger.WithError(err).WithField("collection", CollectionName).Error("Failed to create order")
		httpx.RespondWithServerError(w, "Failed to create order", err, h.detailed)
		return
	}

	metrics.RecordOrder(order.Total)

	h.logger.WithFields(logrus.Fields{
		"order_id":       order.OrderID,
		"customer_email": order.CustomerInfo.Email,
		"total":          order.Total.StringFixed(2),
	}).Info("New order received")

	if err := h.publisher.PublishOrderPlaced(r.Context(), events.NewOrderPlacedEvent(order)); err != nil {
		h.logger.WithError(err).WithField("order_id", order.OrderID).Warn("Failed to publish order placed event")
	}

	if h.wsHub != nil {
		h.wsHub.Broadcast("order_placed", order, "storefront")
	}

	httpx.RespondWithJSON(w, http.StatusCreated, models.OrderPlacedResponse{
		Success: true,
		Message: "Order placed successfully!",
		OrderID: order.OrderID,
		Data:    order,
	})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.WithError(err).WithField("collection", CollectionName).Error("Failed to fetch orders")
		httpx.RespondWithServerError(w, "Failed to fetch orders", err, h.detailed)
		return
	}

	httpx.RespondWithJSON(w, http.StatusOK, models.ListResponse{
		Success: true,
		Data:    orders,
		Count:   len(orders),
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	order, err := h.repo.FindByID(r.Context(), orderID)
	if errors.Is(err, ErrOrderNotFound) {
		httpx.RespondWithError(w, http.StatusNotFound, "Order not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("order_id", orderID).Error("Failed to fetch order")
		httpx.RespondWithServerError(w, "Failed to fetch order", err, h.detailed)
		return
	}

	httpx.RespondWithJSON(w, http.StatusOK, models.ItemResponse{
		Success: true,
		Data:    order,
	})
}
