// Package catalog serves the seeded, read-only product list.
package catalog

import (
	"context"
	"errors"

	"github.com/jogardn/coffee-storefront/internal/storage"
	"github.com/jogardn/coffee-storefront/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const CollectionName = "products"

var ErrProductNotFound = errors.New("product not found")

type Repository struct {
	products *storage.Collection[models.Product]
}

func NewRepository(store storage.Store, logger *logrus.Logger) *Repository {
	return &Repository{
		products: storage.NewCollection[models.Product](store, CollectionName, logger),
	}
}

// Initialize writes the seed catalog when no products document exists yet.
func (r *Repository) Initialize(ctx context.Context) (bool, error) {
	return r.products.Initialize(ctx, Seed())
}

func (r *Repository) List(ctx context.Context) ([]models.Product, error) {
	return r.products.List(ctx)
}

func (r *Repository) FindByID(ctx context.Context, id int) (*models.Product, error) {
	products, err := r.products.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range products {
		if products[i].ID == id {
			return &products[i], nil
		}
	}
	return nil, ErrProductNotFound
}

// Seed is the launch catalog.
func Seed() []models.Product {
	return []models.Product{
		{
			ID:          1,
			Name:        "Ethiopian Yirgacheffe",
			Price:       decimal.RequireFromString("18.99"),
			Image:       "https://images.unsplash.com/photo-1587734195503-904fca47e0e9?ixlib=rb-4.0.3&auto=format&fit=crop&w=774&q=80",
			Description: "Bright, floral notes with a citrusy finish. A classic Ethiopian coffee.",
			Category:    "single-origin",
			Stock:       50,
		},
		{
			ID:          2,
			Name:        "Colombian Supremo",
			Price:       decimal.RequireFromString("16.99"),
			Image:       "https://images.unsplash.com/photo-1511537190424-bbbab87ac5eb?ixlib=rb-4.0.3&auto=format&fit=crop&w=1170&q=80",
			Description: "Well-balanced with notes of caramel and nuts. A crowd-pleaser.",
			Category:    "single-origin",
			Stock:       45,
		},
		{
			ID:          3,
			Name:        "Sumatra Mandheling",
			Price:       decimal.RequireFromString("19.99"),
			Image:       "https://images.unsplash.com/photo-1578662996442-48f60103fc96?ixlib=rb-4.0.3&auto=format&fit=crop&w=1170&q=80",
			Description: "Full-bodied with earthy tones and low acidity. A bold choice.",
			Category:    "single-origin",
			Stock:       30,
		},
		{
			ID:          4,
			Name:        "Guatemalan Antigua",
			Price:       decimal.RequireFromString("17.99"),
			Image:       "https://images.unsplash.com/photo-1568649929103-28ffbefaca1e?ixlib=rb-4.0.3&auto=format&fit=crop&w=1170&q=80",
			Description: "Chocolatey with a spicy finish. A complex and satisfying brew.",
			Category:    "single-origin",
			Stock:       40,
		},
	}
}
