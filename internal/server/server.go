// Package server assembles the storefront HTTP surface: the JSON API, the
// admin pages, the admin live feed and the SPA fallback.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/coffee-storefront/internal/catalog"
	"github.com/jogardn/coffee-storefront/internal/config"
	"github.com/jogardn/coffee-storefront/internal/contact"
	"github.com/jogardn/coffee-storefront/internal/events"
	"github.com/jogardn/coffee-storefront/internal/httpx"
	"github.com/jogardn/coffee-storefront/internal/metrics"
	"github.com/jogardn/coffee-storefront/internal/orders"
	"github.com/jogardn/coffee-storefront/internal/reporting"
	"github.com/jogardn/coffee-storefront/internal/storage"
	"github.com/jogardn/coffee-storefront/internal/web"
	"github.com/jogardn/coffee-storefront/internal/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	maxBodyBytes = 10 << 20
	version      = "1.0.0"
)

// Dependencies are the collaborators New wires together. Hub is required
// and must already be running, since admin feed upgrades register with it.
type Dependencies struct {
	Config    config.Config
	Store     storage.Store
	Publisher events.Publisher
	Hub       *websocket.Hub
	Logger    *logrus.Logger
}

var ErrNoHub = errors.New("server: websocket hub is required")

type Server struct {
	cfg       config.Config
	store     storage.Store
	publisher events.Publisher
	hub       *websocket.Hub
	logger    *logrus.Logger
	started   time.Time
	now       func() time.Time

	products   *catalog.Repository
	orders     *orders.Repository
	messages   *contact.Messages
	newsletter *contact.Newsletter

	handler http.Handler
}

func New(deps Dependencies) (*Server, error) {
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}
	if deps.Hub == nil {
		return nil, ErrNoHub
	}

	s := &Server{
		cfg:        deps.Config,
		store:      deps.Store,
		publisher:  deps.Publisher,
		hub:        deps.Hub,
		logger:     deps.Logger,
		started:    time.Now(),
		now:        time.Now,
		products:   catalog.NewRepository(deps.Store, deps.Logger),
		orders:     orders.NewRepository(deps.Store, deps.Logger),
		messages:   contact.NewMessages(deps.Store, deps.Logger),
		newsletter: contact.NewNewsletter(deps.Store, deps.Config.NewsletterCaseInsensitive, deps.Logger),
	}

	renderer, err := web.NewRenderer(deps.Config.ReportLocation)
	if err != nil {
		return nil, err
	}

	s.handler = s.routes(renderer)
	return s, nil
}

// Initialize creates every collection that does not exist yet: the seed
// catalog for products, an empty list for the rest.
func (s *Server) Initialize(ctx context.Context) error {
	steps := []struct {
		name string
		init func(context.Context) (bool, error)
	}{
		{catalog.CollectionName, s.products.Initialize},
		{orders.CollectionName, s.orders.Initialize},
		{contact.MessagesCollection, s.messages.Initialize},
		{contact.NewsletterCollection, s.newsletter.Initialize},
	}

	for _, step := range steps {
		created, err := step.init(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		if created {
			s.logger.WithField("collection", step.name).Info("Created collection")
		}
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes(renderer *web.Renderer) http.Handler {
	detailed := s.cfg.Development()

	productHandler := catalog.NewHandler(s.products, s.logger, detailed)

	orderHandler := orders.NewHandler(s.orders, s.publisher, s.logger, detailed)
	orderHandler.SetWebSocketHub(s.hub)

	contactHandler := contact.NewHandler(s.messages, s.newsletter, s.publisher, s.logger, detailed)
	contactHandler.SetWebSocketHub(s.hub)

	analyzer := reporting.NewAnalyzer(s.cfg.ReportLocation, s.logger)
	reportHandler := reporting.NewHandler(s.orders, analyzer, s.logger, detailed)

	pages := web.NewPages(renderer, web.Options{
		Orders:      s.orders,
		Contacts:    s.messages,
		Subscribers: s.newsletter,
		Analyzer:    analyzer,
		Static:      web.NewStaticFiles(s.cfg.StaticDirs),
		Info: web.ServerInfo{
			Port:           s.cfg.Port,
			Environment:    s.cfg.Environment,
			StorageBackend: s.cfg.StorageBackend,
			Started:        s.started,
		},
	}, s.logger)

	router := mux.NewRouter()
	router.Use(metrics.Middleware())

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.health).Methods(http.MethodGet)
	api.HandleFunc("/products", productHandler.ListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", productHandler.GetProduct).Methods(http.MethodGet)
	api.HandleFunc("/orders", orderHandler.ListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders", orderHandler.CreateOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", orderHandler.GetOrder).Methods(http.MethodGet)
	api.HandleFunc("/contact", contactHandler.SubmitContact).Methods(http.MethodPost)
	api.HandleFunc("/contacts", contactHandler.ListContacts).Methods(http.MethodGet)
	api.HandleFunc("/newsletter", contactHandler.Subscribe).Methods(http.MethodPost)
	api.HandleFunc("/newsletter", contactHandler.ListSubscribers).Methods(http.MethodGet)
	api.HandleFunc("/sales-report", reportHandler.SalesReport).Methods(http.MethodGet)
	api.PathPrefix("/").HandlerFunc(apiNotFound)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/ws/admin", s.hub.HandleWebSocket)

	router.HandleFunc("/", pages.Home).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/test", pages.TestPage).Methods(http.MethodGet)
	router.HandleFunc("/admin", pages.Dashboard).Methods(http.MethodGet)
	router.HandleFunc("/admin/sales-report", pages.SalesReport).Methods(http.MethodGet)
	router.HandleFunc("/admin/orders", pages.Orders).Methods(http.MethodGet)
	router.PathPrefix("/").HandlerFunc(pages.Fallback)

	// These wrap the router rather than going through router.Use so they
	// also see preflights and requests no route matched.
	var handler http.Handler = router
	for _, mw := range []mux.MiddlewareFunc{
		httpx.LimitBody(maxBodyBytes),
		httpx.Recover(s.logger, detailed),
		httpx.CORS(s.cfg.FrontendURL),
		httpx.Logging(s.logger),
		httpx.RequestID(),
	} {
		handler = mw(handler)
	}
	return handler
}

func apiNotFound(w http.ResponseWriter, r *http.Request) {
	httpx.RespondWithError(w, http.StatusNotFound, "API endpoint not found")
}
