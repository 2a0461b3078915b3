package web

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/jogardn/coffee-storefront/internal/reporting"
	"github.com/jogardn/coffee-storefront/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const recentOrderLimit = 10

type OrderLister interface {
	List(ctx context.Context) ([]models.Order, error)
}

type ContactLister interface {
	List(ctx context.Context) ([]models.ContactMessage, error)
}

type SubscriberLister interface {
	List(ctx context.Context) ([]models.Subscriber, error)
}

// ServerInfo is what the test page reports about the running process.
type ServerInfo struct {
	Port           string
	Environment    string
	StorageBackend string
	Started        time.Time
}

type Options struct {
	Orders      OrderLister
	Contacts    ContactLister
	Subscribers SubscriberLister
	Analyzer    *reporting.Analyzer
	Static      *StaticFiles
	Info        ServerInfo
}

type Pages struct {
	renderer    *Renderer
	orders      OrderLister
	contacts    ContactLister
	subscribers SubscriberLister
	analyzer    *reporting.Analyzer
	static      *StaticFiles
	info        ServerInfo
	logger      *logrus.Logger
	now         func() time.Time
}

func NewPages(renderer *Renderer, opts Options, logger *logrus.Logger) *Pages {
	static := opts.Static
	if static == nil {
		static = NewStaticFiles(nil)
	}
	return &Pages{
		renderer:    renderer,
		orders:      opts.Orders,
		contacts:    opts.Contacts,
		subscribers: opts.Subscribers,
		analyzer:    opts.Analyzer,
		static:      static,
		info:        opts.Info,
		logger:      logger,
		now:         time.Now,
	}
}

type testPage struct {
	Port           string
	Environment    string
	GoVersion      string
	Platform       string
	StorageBackend string
	Uptime         string
}

type reportPage struct {
	Report          *reporting.Report
	MaxDaily        decimal.Decimal
	RecentOrders    []models.Order
	ContactCount    int
	SubscriberCount int
}

type ordersPage struct {
	Orders []models.Order
}

// Home serves the storefront's index.html, or a landing page saying the
// backend is up when no front end is deployed.
func (p *Pages) Home(w http.ResponseWriter, r *http.Request) {
	if p.static.ServeIndex(w, r) {
		return
	}
	p.render(w, http.StatusOK, pageHome, nil)
}

func (p *Pages) TestPage(w http.ResponseWriter, r *http.Request) {
	p.render(w, http.StatusOK, pageTest, testPage{
		Port:           p.info.Port,
		Environment:    p.info.Environment,
		GoVersion:      runtime.Version(),
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
		StorageBackend: p.info.StorageBackend,
		Uptime:         p.now().Sub(p.info.Started).Round(time.Second).String(),
	})
}

func (p *Pages) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orders, err := p.orders.List(ctx)
	if err != nil {
		p.fail(w, "orders", err)
		return
	}
	contacts, err := p.contacts.List(ctx)
	if err != nil {
		p.fail(w, "contacts", err)
		return
	}
	subscribers, err := p.subscribers.List(ctx)
	if err != nil {
		p.fail(w, "newsletter", err)
		return
	}

	report := p.analyzer.Build(orders, reporting.DashboardOptions)
	recent := newestFirst(orders)
	if len(recent) > recentOrderLimit {
		recent = recent[:recentOrderLimit]
	}

	p.render(w, http.StatusOK, pageDashboard, reportPage{
		Report:          report,
		MaxDaily:        maxTotal(report.DailySales),
		RecentOrders:    recent,
		ContactCount:    len(contacts),
		SubscriberCount: len(subscribers),
	})
}

func (p *Pages) SalesReport(w http.ResponseWriter, r *http.Request) {
	orders, err := p.orders.List(r.Context())
	if err != nil {
		p.fail(w, "orders", err)
		return
	}

	report := p.analyzer.Build(orders, reporting.FullOptions)
	p.render(w, http.StatusOK, pageSalesReport, reportPage{
		Report:   report,
		MaxDaily: maxTotal(report.DailySales),
	})
}

func (p *Pages) Orders(w http.ResponseWriter, r *http.Request) {
	orders, err := p.orders.List(r.Context())
	if err != nil {
		p.fail(w, "orders", err)
		return
	}
	p.render(w, http.StatusOK, pageOrders, ordersPage{Orders: newestFirst(orders)})
}

// Fallback handles every path no other route claimed: front-end assets
// first, then the SPA entry point so client-side routes resolve, then a
// 404 page.
func (p *Pages) Fallback(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		if p.static.ServeAsset(w, r) || p.static.ServeIndex(w, r) {
			return
		}
	}
	p.NotFound(w, r)
}

func (p *Pages) NotFound(w http.ResponseWriter, r *http.Request) {
	p.render(w, http.StatusNotFound, pageNotFound, nil)
}

func (p *Pages) render(w http.ResponseWriter, status int, page string, data any) {
	if err := p.renderer.Render(w, status, page, data); err != nil {
		p.logger.WithError(err).WithField("page", page).Error("Failed to render page")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (p *Pages) fail(w http.ResponseWriter, collection string, err error) {
	p.logger.WithError(err).WithField("collection", collection).Error("Failed to load admin page data")
	http.Error(w, "Failed to load data", http.StatusInternalServerError)
}

// newestFirst returns a sorted copy; orders without a timestamp sink to
// the bottom in stored order.
func newestFirst(orders []models.Order) []models.Order {
	sorted := make([]models.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted
}

func maxTotal(periods []reporting.PeriodSales) decimal.Decimal {
	max := decimal.Zero
	for _, period := range periods {
		if period.Total.GreaterThan(max) {
			max = period.Total
		}
	}
	return max
}
