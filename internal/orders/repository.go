package orders

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jogardn/coffee-storefront/internal/storage"
	"github.com/jogardn/coffee-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

const CollectionName = "orders"

var ErrOrderNotFound = errors.New("order not found")

// ValidationError is a client mistake in an order submission, never a
// server fault.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type Repository struct {
	orders *storage.Collection[models.Order]
	logger *logrus.Logger
	now    func() time.Time
}

func NewRepository(store storage.Store, logger *logrus.Logger) *Repository {
	return &Repository{
		orders: storage.NewCollection[models.Order](store, CollectionName, logger),
		logger: logger,
		now:    time.Now,
	}
}

func (r *Repository) Initialize(ctx context.Context) (bool, error) {
	return r.orders.Initialize(ctx, nil)
}

// List returns orders in the order they were placed.
func (r *Repository) List(ctx context.Context) ([]models.Order, error) {
	return r.orders.List(ctx)
}

func (r *Repository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	orders, err := r.orders.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].OrderID == id {
			return &orders[i], nil
		}
	}
	return nil, ErrOrderNotFound
}

// Create validates req, stamps id, status and timestamps, and appends the
// order. Validation happens before any storage access.
func (r *Repository) Create(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	order, err := r.orders.Append(ctx, func(existing []models.Order) (models.Order, error) {
		now := r.now().UTC()
		id := NewOrderID(now)
		for orderIDTaken(existing, id) {
			id = NewOrderID(now)
		}
		return models.Order{
			OrderID:      id,
			Items:        req.Items,
			CustomerInfo: *req.CustomerInfo,
			Total:        *req.Total,
			Status:       models.OrderStatusConfirmed,
			CreatedAt:    now,
			UpdatedAt:    now,
			Extra:        req.Extra,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"order_id":    order.OrderID,
		"total":       order.Total.StringFixed(2),
		"items_count": len(order.Items),
	}).Info("Order stored")

	return &order, nil
}

func Validate(req models.OrderRequest) error {
	if len(req.Items) == 0 {
		return &ValidationError{Message: "Order must contain at least one item"}
	}
	if req.CustomerInfo == nil ||
		strings.TrimSpace(req.CustomerInfo.Name) == "" ||
		strings.TrimSpace(req.CustomerInfo.Email) == "" {
		return &ValidationError{Message: "Customer name and email are required"}
	}
	if req.Total == nil || !req.Total.IsPositive() {
		return &ValidationError{Message: "Valid total amount is required"}
	}
	return nil
}

// NewOrderID returns "UC-<epoch millis>-<9 random hex chars>".
func NewOrderID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return "UC-" + strconv.FormatInt(t.UnixMilli(), 10) + "-" + suffix
}

func orderIDTaken(orders []models.Order, id string) bool {
	for i := range orders {
		if orders[i].OrderID == id {
			return true
		}
	}
	return false
}
