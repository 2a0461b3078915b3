package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jogardn/coffee-storefront/internal/reporting"
	"github.com/jogardn/coffee-storefront/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clock = time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC)

type stubOrders struct {
	orders []models.Order
	err    error
}

func (s stubOrders) List(context.Context) ([]models.Order, error) { return s.orders, s.err }

type stubContacts []models.ContactMessage

func (s stubContacts) List(context.Context) ([]models.ContactMessage, error) { return s, nil }

type stubSubscribers []models.Subscriber

func (s stubSubscribers) List(context.Context) ([]models.Subscriber, error) { return s, nil }

func sampleOrders() []models.Order {
	return []models.Order{
		{
			OrderID:      "UC-1-older",
			Items:        models.LineItems{{Name: "Ethiopian Yirgacheffe", Quantity: 2, Price: decimal.RequireFromString("18.99")}},
			CustomerInfo: models.CustomerInfo{Name: "Ana", Email: "ana@example.com"},
			Total:        decimal.RequireFromString("37.98"),
			Status:       models.OrderStatusConfirmed,
			CreatedAt:    clock.Add(-48 * time.Hour),
		},
		{
			OrderID:      "UC-2-newer",
			Items:        models.LineItems{{Product: "Colombian Supremo", Quantity: 1, Price: decimal.RequireFromString("16.99")}},
			CustomerInfo: models.CustomerInfo{Name: "Ben <b>", Email: "ben@example.com"},
			Total:        decimal.RequireFromString("16.99"),
			Status:       models.OrderStatusConfirmed,
			CreatedAt:    clock.Add(-time.Hour),
		},
	}
}

func newTestPages(t *testing.T, orders OrderLister, staticRoots ...string) *Pages {
	t.Helper()
	logger, _ := test.NewNullLogger()

	renderer, err := NewRenderer(time.UTC)
	require.NoError(t, err)

	analyzer := reporting.NewAnalyzer(time.UTC, logger)
	p := NewPages(renderer, Options{
		Orders:      orders,
		Contacts:    stubContacts{{ID: 1}},
		Subscribers: stubSubscribers{{ID: 1}, {ID: 2}},
		Analyzer:    analyzer,
		Static:      NewStaticFiles(staticRoots),
		Info:        ServerInfo{Port: "3000", Environment: "development", StorageBackend: "file", Started: clock.Add(-90 * time.Second)},
	}, logger)
	p.now = func() time.Time { return clock }
	return p
}

func get(t *testing.T, handler http.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestAllTemplatesParse(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)
	assert.Len(t, r.pages, len(pageNames))
}

func TestHomeWithoutFrontend(t *testing.T) {
	p := newTestPages(t, stubOrders{}, t.TempDir())

	rec := get(t, p.Home, "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "Unforgettable Coffee - Backend Running")
	assert.Contains(t, body, `href="/api/health"`)
	assert.Contains(t, body, `href="/test"`)
}

func TestHomeServesIndex(t *testing.T) {
	empty, public := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(public, "index.html"), []byte("<h1>storefront spa</h1>"), 0o644))
	p := newTestPages(t, stubOrders{}, empty, public)

	rec := get(t, p.Home, "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront spa")
}

func TestTestPage(t *testing.T) {
	p := newTestPages(t, stubOrders{})

	rec := get(t, p.TestPage, "/test")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Unforgettable Coffee - TEST")
	assert.Contains(t, body, "SERVER IS WORKING PERFECTLY!")
	assert.Contains(t, body, "3000")
	assert.Contains(t, body, "development")
	assert.Contains(t, body, "1m30s")
}

func TestDashboard(t *testing.T) {
	p := newTestPages(t, stubOrders{orders: sampleOrders()})

	rec := get(t, p.Dashboard, "/admin")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Admin Dashboard")
	assert.Contains(t, body, "$54.97")
	assert.Contains(t, body, "Ethiopian Yirgacheffe")
	assert.Contains(t, body, "Colombian Supremo")
	assert.Contains(t, body, "Ben &lt;b&gt;", "customer data is escaped")
	assert.Less(t, strings.Index(body, "UC-2-newer"), strings.Index(body, "UC-1-older"))
}

func TestSalesReportPage(t *testing.T) {
	p := newTestPages(t, stubOrders{orders: sampleOrders()})

	rec := get(t, p.SalesReport, "/admin/sales-report")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Top 10 Products")
	assert.Contains(t, body, "March 2026")
	assert.Contains(t, body, "$27.49")
}

func TestOrdersPageNewestFirst(t *testing.T) {
	p := newTestPages(t, stubOrders{orders: sampleOrders()})

	rec := get(t, p.Orders, "/admin/orders")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "2 orders, newest first")
	assert.Less(t, strings.Index(body, "UC-2-newer"), strings.Index(body, "UC-1-older"))
}

func TestAdminPagesWithNoOrders(t *testing.T) {
	p := newTestPages(t, stubOrders{})

	for _, h := range []http.HandlerFunc{p.Dashboard, p.SalesReport, p.Orders} {
		rec := get(t, h, "/admin")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "No ")
	}

	for name, h := range map[string]http.HandlerFunc{"dashboard": p.Dashboard, "sales report": p.SalesReport} {
		body := get(t, h, "/admin").Body.String()
		assert.Contains(t, body, `<div class="value">$0.00</div><div class="label">Average Order</div>`, name)
		assert.Contains(t, body, `<div class="value">$0.00</div><div class="label">Total Sales</div>`, name)
	}
}

func TestAdminPageStorageFailure(t *testing.T) {
	p := newTestPages(t, stubOrders{err: errors.New("disk on fire")})

	rec := get(t, p.Dashboard, "/admin")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestFallback(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "css", "site.css"), []byte("body{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("SECRET=1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "orders.json"), []byte("[]"), 0o644))

	t.Run("404 page without a front end", func(t *testing.T) {
		p := newTestPages(t, stubOrders{}, root)
		rec := get(t, p.Fallback, "/menu")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "404 - Page Not Found")
		assert.Contains(t, rec.Body.String(), "Return to Home")
	})

	t.Run("assets are served", func(t *testing.T) {
		p := newTestPages(t, stubOrders{}, root)
		rec := get(t, p.Fallback, "/css/site.css")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "body{}", rec.Body.String())
	})

	t.Run("dotfiles and data files are not", func(t *testing.T) {
		p := newTestPages(t, stubOrders{}, root)
		for _, target := range []string{"/.env", "/orders.json", "/../" + filepath.Base(root) + "/.env"} {
			rec := get(t, p.Fallback, target)
			assert.Equal(t, http.StatusNotFound, rec.Code, target)
		}
	})

	t.Run("client routes get the SPA", func(t *testing.T) {
		spa := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(spa, "index.html"), []byte("spa shell"), 0o644))
		p := newTestPages(t, stubOrders{}, spa)
		rec := get(t, p.Fallback, "/products/3")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "spa shell", rec.Body.String())
	})
}

func TestBarWidth(t *testing.T) {
	assert.Equal(t, 0, barWidth(decimal.NewFromInt(5), decimal.Zero))
	assert.Equal(t, 50, barWidth(decimal.NewFromInt(5), decimal.NewFromInt(10)))
	assert.Equal(t, 100, barWidth(decimal.NewFromInt(10), decimal.NewFromInt(10)))
	assert.Equal(t, 100, barWidth(decimal.NewFromInt(20), decimal.NewFromInt(10)))
}
