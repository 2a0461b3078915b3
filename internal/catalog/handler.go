package catalog

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/coffee-storefront/internal/httpx"
	"github.com/jogardn/coffee-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

// listCacheControl lets browsers and proxies hold the catalog for five minutes.
const listCacheControl = "public, max-age=300"

type Handler struct {
	repo     *Repository
	logger   *logrus.Logger
	detailed bool
	now      func() time.Time
}

func NewHandler(repo *Repository, logger *logrus.Logger, detailed bool) *Handler {
	return &Handler{
		repo:     repo,
		logger:   logger,
		detailed: detailed,
		now:      time.Now,
	}
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.WithError(err).WithField("collection", CollectionName).Error("Failed to fetch products")
		httpx.RespondWithServerError(w, "Failed to fetch products", err, h.detailed)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"count":     len(products),
		"client_ip": httpx.ClientIP(r),
	}).Debug("Sending products")

	now := h.now().UTC()
	w.Header().Set("Cache-Control", listCacheControl)
	httpx.RespondWithJSON(w, http.StatusOK, models.ListResponse{
		Success:   true,
		Data:      products,
		Count:     len(products),
		Timestamp: &now,
	})
}

// GetProduct looks a product up by its integer id. An id that is not an
// integer cannot match anything and gets the same 404.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		httpx.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}

	product, err := h.repo.FindByID(r.Context(), id)
	if errors.Is(err, ErrProductNotFound) {
		httpx.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("product_id", id).Error("Failed to fetch product")
		httpx.RespondWithServerError(w, "Failed to fetch product", err, h.detailed)
		return
	}

	httpx.RespondWithJSON(w, http.StatusOK, models.ItemResponse{
		Success: true,
		Data:    product,
	})
}
