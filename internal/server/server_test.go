package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/jogardn/coffee-storefront/internal/config"
	"github.com/jogardn/coffee-storefront/internal/storage"
	"github.com/jogardn/coffee-storefront/internal/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runningHub(t *testing.T) *websocket.Hub {
	t.Helper()
	logger, _ := test.NewNullLogger()
	hub := websocket.NewHub("*", logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func newServer(t *testing.T) *Server {
	t.Helper()
	logger, _ := test.NewNullLogger()

	cfg := config.Config{
		Port:           "3000",
		FrontendURL:    "*",
		Environment:    "test",
		StorageBackend: storage.BackendMemory,
		StaticDirs:     []string{t.TempDir()},
		ReportLocation: time.UTC,
	}
	srv, err := New(Dependencies{
		Config: cfg,
		Store:  storage.NewMemoryStore(),
		Hub:    runningHub(t),
		Logger: logger,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Initialize(context.Background()))
	return srv
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(newServer(t).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, data := do(t, http.MethodGet, ts.URL+"/api/health", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, data)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "Unforgettable Coffee Server is running!", body["message"])
	assert.Equal(t, "1.0.0", body["version"])
	assert.Equal(t, "test", body["environment"])
	assert.Contains(t, body, "uptime")
	assert.Contains(t, body, "memory")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestProducts(t *testing.T) {
	ts := newTestServer(t)

	resp, data := do(t, http.MethodGet, ts.URL+"/api/products", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, max-age=300", resp.Header.Get("Cache-Control"))
	body := decode(t, data)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 4.0, body["count"])
	assert.Len(t, body["data"], 4)
	assert.NotEmpty(t, body["timestamp"])

	resp, data = do(t, http.MethodGet, ts.URL+"/api/products/2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	product := decode(t, data)["data"].(map[string]interface{})
	assert.Equal(t, 2.0, product["id"])

	for _, id := range []string{"99", "abc"} {
		resp, data = do(t, http.MethodGet, ts.URL+"/api/products/"+id, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.JSONEq(t, `{"success":false,"error":"Product not found"}`, string(data))
	}
}

func TestPlaceOrderEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	body := `{"items":[{"name":"Ethiopian Yirgacheffe","price":18.99,"quantity":2}],"customerInfo":{"name":"A","email":"a@b.com"},"total":37.98}`

	resp, data := do(t, http.MethodPost, ts.URL+"/api/orders", body)

	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	created := decode(t, data)
	assert.Equal(t, true, created["success"])
	assert.Regexp(t, regexp.MustCompile(`^UC-\d+-[a-z0-9]+$`), created["orderId"])
	assert.Equal(t, "confirmed", created["data"].(map[string]interface{})["status"])

	resp, data = do(t, http.MethodGet, ts.URL+"/api/orders", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, decode(t, data)["count"])

	resp, data = do(t, http.MethodGet, ts.URL+"/api/sales-report", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode(t, data)["report"].(map[string]interface{})
	assert.Equal(t, 1.0, report["totalOrders"])
	assert.Equal(t, 37.98, report["totalSales"])

	resp, data = do(t, http.MethodGet, ts.URL+"/admin/orders", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), created["orderId"])
}

func TestPlaceOrderValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, data := do(t, http.MethodPost, ts.URL+"/api/orders", `{"items":[],"customerInfo":{"name":"A","email":"a@b.com"},"total":1}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, decode(t, data)["success"])
}

func TestNewsletterDuplicateEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	body := `{"email":"x@y.com"}`

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/newsletter", body)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, data := do(t, http.MethodPost, ts.URL+"/api/newsletter", body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, false, decode(t, data)["success"])

	resp, data = do(t, http.MethodGet, ts.URL+"/api/newsletter", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, decode(t, data)["count"])
}

func TestContactEndToEnd(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/contact", `{"name":"Ana","email":"ana@example.com","message":"More decaf please"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/contact", `{"name":"Ana","email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data := do(t, http.MethodGet, ts.URL+"/api/contacts", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, decode(t, data)["count"])
}

func TestUnknownAPIRoutes(t *testing.T) {
	ts := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/nope"},
		{http.MethodGet, "/api/orders/extra/segments"},
		{http.MethodDelete, "/api/orders"},
	} {
		resp, data := do(t, tc.method, ts.URL+tc.path, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, tc.path)
		assert.JSONEq(t, `{"success":false,"error":"API endpoint not found"}`, string(data), tc.path)
	}
}

func TestHTMLRoutes(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/", "/test", "/admin", "/admin/sales-report", "/admin/orders"} {
		resp, _ := do(t, http.MethodGet, ts.URL+path, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html", path)
	}

	resp, data := do(t, http.MethodGet, ts.URL+"/no/such/page", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(data), "404 - Page Not Found")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/orders", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://shop.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestOversizedBodyRejected(t *testing.T) {
	srv := newServer(t)
	body := `{"customerInfo":{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}}`

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	do(t, http.MethodGet, ts.URL+"/api/health", "")

	resp, data := do(t, http.MethodGet, ts.URL+"/metrics", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `storefront_http_requests_total{method="GET",path="/api/health",status="200"}`)
}

func TestInitializeIsIdempotent(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := storage.NewMemoryStore()
	srv, err := New(Dependencies{Config: config.Config{ReportLocation: time.UTC}, Store: store, Hub: runningHub(t), Logger: logger})
	require.NoError(t, err)

	require.NoError(t, srv.Initialize(context.Background()))
	require.NoError(t, srv.Initialize(context.Background()))

	names, err := store.Names(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"products", "orders", "contacts", "newsletter"}, names)
}

func TestNewRequiresHub(t *testing.T) {
	logger, _ := test.NewNullLogger()

	_, err := New(Dependencies{Config: config.Config{ReportLocation: time.UTC}, Store: storage.NewMemoryStore(), Logger: logger})

	assert.ErrorIs(t, err, ErrNoHub)
}

func TestAdminFeedConnects(t *testing.T) {
	ts := newTestServer(t)

	conn, resp, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/admin", nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/api/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var health struct {
			AdminClients int `json:"adminClients"`
		}
		return json.NewDecoder(resp.Body).Decode(&health) == nil && health.AdminClients == 1
	}, 2*time.Second, 20*time.Millisecond)
}
