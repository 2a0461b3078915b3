// Package web renders the server-side HTML pages: the backend landing and
// test pages, the admin views and the storefront SPA fallback.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/jogardn/coffee-storefront/internal/reporting"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageHome        = "home"
	pageTest        = "test"
	pageDashboard   = "dashboard"
	pageSalesReport = "sales_report"
	pageOrders      = "orders"
	pageNotFound    = "not_found"
)

var pageNames = []string{pageHome, pageTest, pageDashboard, pageSalesReport, pageOrders, pageNotFound}

// Renderer holds one parsed template set per page. Every set shares the
// layout, nav and partials files.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses the embedded templates. Timestamps are displayed in loc.
func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.Local
	}
	funcs := templateFuncs(loc)

	r := &Renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/nav.html",
			"templates/partials.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// Render executes the page into a buffer first so a template error never
// leaves a half-written 200 behind.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data any) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func templateFuncs(loc *time.Location) template.FuncMap {
	return template.FuncMap{
		"money": func(d decimal.Decimal) string {
			return "$" + d.StringFixed(2)
		},
		"datetime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.In(loc).Format("Jan 2, 2006 15:04")
		},
		"inc":       func(i int) int { return i + 1 },
		"barWidth":  barWidth,
		"itemLabel": reporting.ProductLabel,
	}
}

// barWidth is value as a whole percentage of max, clamped to [0, 100].
func barWidth(value, max decimal.Decimal) int {
	if !max.IsPositive() || !value.IsPositive() {
		return 0
	}
	pct := value.Div(max).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if pct > 100 {
		return 100
	}
	return int(pct)
}
