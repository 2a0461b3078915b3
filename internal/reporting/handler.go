package reporting

import (
	"context"
	"net/http"
	"strconv"

	"github.com/jogardn/coffee-storefront/internal/httpx"
	"github.com/jogardn/coffee-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

type OrderSource interface {
	List(ctx context.Context) ([]models.Order, error)
}

type Handler struct {
	orders   OrderSource
	analyzer *Analyzer
	logger   *logrus.Logger
	detailed bool
}

func NewHandler(orders OrderSource, analyzer *Analyzer, logger *logrus.Logger, detailed bool) *Handler {
	return &Handler{
		orders:   orders,
		analyzer: analyzer,
		logger:   logger,
		detailed: detailed,
	}
}

type salesReportResponse struct {
	Success bool    `json:"success"`
	Report  *Report `json:"report"`
}

// SalesReport serves the full report. ?top= and ?days= override the
// product and day limits.
func (h *Handler) SalesReport(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		h.logger.WithError(err).WithField("collection", "orders").Error("Failed to load orders for sales report")
		httpx.RespondWithServerError(w, "Failed to generate sales report", err, h.detailed)
		return
	}

	opts := FullOptions
	if n, err := strconv.Atoi(r.URL.Query().Get("top")); err == nil && n > 0 {
		opts.TopN = n
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && n > 0 {
		opts.RecentDays = n
	}

	httpx.RespondWithJSON(w, http.StatusOK, salesReportResponse{
		Success: true,
		Report:  h.analyzer.Build(orders, opts),
	})
}
