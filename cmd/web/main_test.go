package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"superstore-dashboard/internal/config"
	"superstore-dashboard/internal/dashboard"
	"superstore-dashboard/internal/insight"
	"superstore-dashboard/internal/middleware"
	"superstore-dashboard/internal/server"
	"superstore-dashboard/internal/services"
)

const testCSV = `Order Date,Segment,Category,Region,State,Sales,Profit,Discount
11/8/2016,Consumer,Furniture,South,Kentucky,261.96,41.9136,0
6/12/2016,Corporate,Office Supplies,West,California,14.62,6.8714,0
10/11/2015,Consumer,Furniture,South,Florida,957.5775,-383.031,0.45`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestApp wires the application the way main does, over a temporary CSV.
func newTestApp(t *testing.T, csv string) http.Handler {
	t.Helper()
	logger := quietLogger()

	path := filepath.Join(t.TempDir(), "superstore.csv")
	if csv != "" {
		if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	dataset := services.NewDataset()
	_ = dataset.LoadFromCSV(t.Context(), path)

	prompts, err := insight.DefaultPrompts()
	if err != nil {
		t.Fatal(err)
	}
	insights := insight.NewService(nil, prompts, time.Second, logger)

	opts := dashboardOptions(config.DashboardConfig{
		DefaultDateRange:      "all",
		DefaultRegion:         "all",
		DefaultProfitRatioMin: -100,
		DefaultProfitRatioMax: 100,
		YearAnchor:            dashboard.AnchorDataset,
		MapStyle:              dashboard.MapStates,
	})
	sessions := dashboard.NewRegistry(func() *dashboard.Controller {
		return dashboard.NewController(dataset, insights, opts, logger)
	}, time.Hour, logger)

	srv := server.NewServer(dataset, sessions, logger, &server.TemplateHandlers{
		Dashboard: newDashboardPage(sessions, logger),
	})

	security := config.SecurityConfig{
		EnableRateLimit: true,
		RateLimitRPS:    1000,
		RateLimitBurst:  1000,
		AllowedOrigins:  []string{"http://localhost:8084"},
	}
	chain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(security),
		middleware.RateLimit(middleware.NewRateLimiter(security), logger),
	)
	return chain(srv)
}

func TestDashboardPage(t *testing.T) {
	app := newTestApp(t, testCSV)

	w := httptest.NewRecorder()
	app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("middleware should set a request id")
	}

	doc, err := goquery.NewDocumentFromReader(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.Find("#kpi-sales").Text(); got != "$1,234" {
		t.Errorf("sales KPI = %q, want $1,234", got)
	}
	options := doc.Find(`select[name="dateRange"] option`)
	if options.Length() != 4 {
		t.Errorf("expected all, last-3-years, 2016 and 2015 options, got %d", options.Length())
	}
	if doc.Find("#load-error").Length() != 0 {
		t.Error("no load error expected")
	}
}

func TestDashboardPage_MissingCSV(t *testing.T) {
	app := newTestApp(t, "")

	w := httptest.NewRecorder()
	app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("a missing dataset should still render the page, got %d", w.Code)
	}
	doc, err := goquery.NewDocumentFromReader(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Find("#load-error").Length() != 1 {
		t.Error("load error banner expected")
	}
	if got := doc.Find("#kpi-sales").Text(); got != "No data" {
		t.Errorf("sales KPI = %q, want No data", got)
	}

	w = httptest.NewRecorder()
	app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var response struct {
		Data map[string]string `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatal(err)
	}
	if response.Data["status"] != "degraded" {
		t.Errorf("health status = %q, want degraded", response.Data["status"])
	}
}

func TestFilterFlow(t *testing.T) {
	app := newTestApp(t, testCSV)

	w := httptest.NewRecorder()
	app.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/filters", strings.NewReader(`{"type":"date-range","value":"2015"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected a session cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/kpis", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	app.ServeHTTP(w, req)

	var response struct {
		Data struct {
			Display struct {
				Sales  string `json:"sales"`
				Profit string `json:"profit"`
			} `json:"display"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatal(err)
	}
	if response.Data.Display.Sales != "$958" || response.Data.Display.Profit != "-$383" {
		t.Errorf("2015 KPIs = %+v", response.Data.Display)
	}
}

func TestServer_ErrorHandling(t *testing.T) {
	app := newTestApp(t, testCSV)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{"PUT", "/", http.StatusMethodNotAllowed},
		{"DELETE", "/health", http.StatusMethodNotAllowed},
		{"GET", "/api/insight", http.StatusMethodNotAllowed},
		{"GET", "/api/aggregates?dimension=region", http.StatusBadRequest},
		{"GET", "/missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			app.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestNewGenerator(t *testing.T) {
	gen, err := newGenerator(t.Context(), config.InsightConfig{Provider: "none"})
	if err != nil || gen != nil {
		t.Errorf("provider none should disable the model, got %v, %v", gen, err)
	}

	gen, err = newGenerator(t.Context(), config.InsightConfig{Provider: "ollama", Endpoint: "http://localhost:11434", Model: "mistral", Timeout: time.Second})
	if err != nil || gen == nil || gen.Name() != "ollama/mistral" {
		t.Errorf("expected an ollama generator, got %v, %v", gen, err)
	}
}
