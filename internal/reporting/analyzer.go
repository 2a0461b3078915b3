// Package reporting derives sales statistics from the stored orders. Every
// report is recomputed from the full order list; nothing is cached.
package reporting

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jogardn/coffee-storefront/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "January 2006"
)

type ProductSales struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type PeriodSales struct {
	Label  string          `json:"label"`
	Start  time.Time       `json:"start"`
	Total  decimal.Decimal `json:"total"`
	Orders int             `json:"orders"`
}

type Report struct {
	TotalSales        decimal.Decimal `json:"totalSales"`
	TotalOrders       int             `json:"totalOrders"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
	TopProducts       []ProductSales  `json:"topProducts"`
	DailySales        []PeriodSales   `json:"dailySales"`
	MonthlySales      []PeriodSales   `json:"monthlySales"`
	TodaySales        decimal.Decimal `json:"todaySales"`
	TodayOrders       int             `json:"todayOrders"`
	GeneratedAt       time.Time       `json:"generatedAt"`
}

// Options size a report. Zero TopN or RecentDays means no truncation.
type Options struct {
	TopN       int
	RecentDays int
	Location   *time.Location
}

var (
	DashboardOptions = Options{TopN: 5, RecentDays: 7}
	FullOptions      = Options{TopN: 10, RecentDays: 30}
)

type Analyzer struct {
	location *time.Location
	now      func() time.Time
	logger   *logrus.Logger
}

// NewAnalyzer buckets dates in loc, or in the local zone when loc is nil.
func NewAnalyzer(loc *time.Location, logger *logrus.Logger) *Analyzer {
	if loc == nil {
		loc = time.Local
	}
	return &Analyzer{
		location: loc,
		now:      time.Now,
		logger:   logger,
	}
}

// Build aggregates orders. An order with no usable items still counts
// toward totals and dates; an order without a timestamp counts toward
// totals only.
func (a *Analyzer) Build(orders []models.Order, opts Options) *Report {
	startTime := time.Now()
	loc := opts.Location
	if loc == nil {
		loc = a.location
	}
	now := a.now().In(loc)

	report := &Report{
		TotalSales:  decimal.Zero,
		TotalOrders: len(orders),
		GeneratedAt: now,
	}

	products := newProductTally()
	daily := newPeriodTally()
	monthly := newPeriodTally()

	for i := range orders {
		order := &orders[i]
		report.TotalSales = report.TotalSales.Add(order.Total)

		for _, item := range order.Items {
			products.add(ProductLabel(item), item.Quantity)
		}

		if order.CreatedAt.IsZero() {
			continue
		}
		created := order.CreatedAt.In(loc)
		day := time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, loc)
		month := time.Date(created.Year(), created.Month(), 1, 0, 0, 0, 0, loc)
		daily.add(day.Format(dayLayout), day, order.Total)
		monthly.add(month.Format(monthLayout), month, order.Total)
	}

	report.AverageOrderValue = AverageOrderValue(report.TotalSales, report.TotalOrders)
	report.TopProducts = products.top(opts.TopN)
	report.MonthlySales = monthly.sorted()
	allDays := daily.sorted()

	today := now.Format(dayLayout)
	report.TodaySales = decimal.Zero
	for _, d := range allDays {
		if d.Label == today {
			report.TodaySales = d.Total
			report.TodayOrders = d.Orders
		}
	}

	if opts.RecentDays > 0 && len(allDays) > opts.RecentDays {
		allDays = allDays[len(allDays)-opts.RecentDays:]
	}
	report.DailySales = allDays

	a.logger.WithFields(logrus.Fields{
		"orders":          report.TotalOrders,
		"products":        len(products.order),
		"days":            len(daily.order),
		"processing_time": time.Since(startTime).String(),
	}).Debug("Sales report built")

	return report
}

// AverageOrderValue is total/count, or zero when there are no orders.
func AverageOrderValue(total decimal.Decimal, count int) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(count)))
}

// ProductLabel names a line item the way reports and admin pages show it.
func ProductLabel(item models.LineItem) string {
	if name := strings.TrimSpace(item.Name); name != "" {
		return name
	}
	if product := strings.TrimSpace(item.Product); product != "" {
		return product
	}
	if item.ProductID != 0 {
		return "Product #" + strconv.Itoa(item.ProductID)
	}
	return "Unknown product"
}

// productTally keeps first-encounter order so equal quantities rank in the
// order the products were first seen.
type productTally struct {
	order []string
	qty   map[string]int
}

func newProductTally() *productTally {
	return &productTally{qty: make(map[string]int)}
}

func (t *productTally) add(name string, quantity int) {
	if _, ok := t.qty[name]; !ok {
		t.order = append(t.order, name)
	}
	t.qty[name] += quantity
}

func (t *productTally) top(n int) []ProductSales {
	out := make([]ProductSales, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, ProductSales{Name: name, Quantity: t.qty[name]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Quantity > out[j].Quantity
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

type periodTally struct {
	order   []string
	periods map[string]*PeriodSales
}

func newPeriodTally() *periodTally {
	return &periodTally{periods: make(map[string]*PeriodSales)}
}

func (t *periodTally) add(label string, start time.Time, total decimal.Decimal) {
	p, ok := t.periods[label]
	if !ok {
		p = &PeriodSales{Label: label, Start: start, Total: decimal.Zero}
		t.periods[label] = p
		t.order = append(t.order, label)
	}
	p.Total = p.Total.Add(total)
	p.Orders++
}

func (t *periodTally) sorted() []PeriodSales {
	out := make([]PeriodSales, 0, len(t.order))
	for _, label := range t.order {
		out = append(out, *t.periods[label])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}
