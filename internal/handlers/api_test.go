package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"superstore-dashboard/internal/dashboard"
	"superstore-dashboard/internal/insight"
	"superstore-dashboard/internal/models"
	"superstore-dashboard/internal/services"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func rec(date, segment, category, region, state string, sales, profit float64) models.Record {
	return models.Record{
		Date:        models.ParseDate(date),
		Segment:     segment,
		Category:    category,
		Region:      region,
		State:       state,
		Sales:       sales,
		Profit:      profit,
		ProfitRatio: models.ProfitRatio(profit, sales),
	}
}

func createTestDataset() *services.Dataset {
	d := services.NewDataset()
	d.SetRecords([]models.Record{
		rec("2014-02-01", "Consumer", "Furniture", "South", "Kentucky", 100, 20),
		rec("2016-05-03", "Corporate", "Technology", "West", "California", 50, -10),
		rec("2017-05-20", "Consumer", "Technology", "West", "California", 200, 40),
		rec("2017-07-04", "Home Office", "Office Supplies", "East", "New York", 80, 8),
	})
	return d
}

func createTestRegistry(t *testing.T, dataset *services.Dataset) *dashboard.Registry {
	t.Helper()
	prompts, err := insight.DefaultPrompts()
	if err != nil {
		t.Fatal(err)
	}
	insights := insight.NewService(nil, prompts, time.Second, quietLogger())
	return dashboard.NewRegistry(func() *dashboard.Controller {
		return dashboard.NewController(dataset, insights, dashboard.Options{}, quietLogger())
	}, time.Hour, quietLogger())
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Success bool            `json:"success"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not a JSON envelope: %v (%s)", err, w.Body.String())
	}
	return env
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == dashboard.SessionCookie {
			return c
		}
	}
	t.Fatal("expected a session cookie")
	return nil
}

func newTestAPI(t *testing.T) *APIHandlers {
	t.Helper()
	dataset := createTestDataset()
	return NewAPIHandlers(dataset, createTestRegistry(t, dataset), quietLogger())
}

func TestAPIHandlers_HandleDashboard(t *testing.T) {
	h := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard?width=400", nil)
	w := httptest.NewRecorder()
	h.HandleDashboard(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("session views must not be cached, got %q", w.Header().Get("Cache-Control"))
	}
	sessionCookie(t, w)

	var view dashboard.View
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &view); err != nil {
		t.Fatal(err)
	}
	if view.RecordCount != 4 {
		t.Errorf("expected 4 records, got %d", view.RecordCount)
	}
	if view.Dimensions.MapWidth != 200 {
		t.Errorf("width parameter not applied: %+v", view.Dimensions)
	}
	if view.Display.Sales != "$430" {
		t.Errorf("sales display = %q", view.Display.Sales)
	}
}

func TestAPIHandlers_FiltersPerSession(t *testing.T) {
	h := newTestAPI(t)

	body := strings.NewReader(`{"type":"region","value":"West"}`)
	w := httptest.NewRecorder()
	h.HandleUpdateFilters(w, httptest.NewRequest(http.MethodPost, "/api/filters", body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	cookie := sessionCookie(t, w)

	req := httptest.NewRequest(http.MethodGet, "/api/filters", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.HandleGetFilters(w, req)

	var state models.FilterState
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &state); err != nil {
		t.Fatal(err)
	}
	if state.Region != "West" {
		t.Errorf("session should keep region West, got %+v", state)
	}

	w = httptest.NewRecorder()
	h.HandleGetFilters(w, httptest.NewRequest(http.MethodGet, "/api/filters", nil))
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &state); err != nil {
		t.Fatal(err)
	}
	if state.Region != models.RegionAll {
		t.Errorf("a new session should start from defaults, got %+v", state)
	}
}

func TestAPIHandlers_HandleUpdateFilters(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantState  models.FilterState
	}{
		{
			name:       "partial state",
			body:       `{"dateRange":"2017","profitRatioMin":0}`,
			wantStatus: http.StatusOK,
			wantState:  models.FilterState{DateRange: "2017", Region: "all", ProfitRatioMin: 0, ProfitRatioMax: 100},
		},
		{
			name:       "reset event",
			body:       `{"type":"reset"}`,
			wantStatus: http.StatusOK,
			wantState:  models.DefaultFilterState(),
		},
		{
			name:       "invalid date range",
			body:       `{"type":"date-range","value":"yesterday"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown event",
			body:       `{"type":"colour","value":"red"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "not an object",
			body:       `[1,2]`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestAPI(t)
			w := httptest.NewRecorder()
			h.HandleUpdateFilters(w, httptest.NewRequest(http.MethodPost, "/api/filters", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			env := decodeEnvelope(t, w)
			if tt.wantStatus != http.StatusOK {
				if env.Success || env.Error == nil {
					t.Errorf("expected an error envelope, got %s", w.Body.String())
				}
				return
			}
			var state models.FilterState
			if err := json.Unmarshal(env.Data, &state); err != nil {
				t.Fatal(err)
			}
			if state != tt.wantState {
				t.Errorf("state = %+v, want %+v", state, tt.wantState)
			}
		})
	}
}

func TestAPIHandlers_HandleKPIs(t *testing.T) {
	h := newTestAPI(t)
	w := httptest.NewRecorder()
	h.HandleKPIs(w, httptest.NewRequest(http.MethodGet, "/api/kpis", nil))

	var resp struct {
		KPIs    *models.KPISummary `json:"kpis"`
		Display models.KPIDisplay  `json:"display"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.KPIs == nil || resp.KPIs.TotalSales != 430 || resp.KPIs.TotalProfit != 58 {
		t.Errorf("unexpected kpis %+v", resp.KPIs)
	}
	if resp.Display.Profit != "$58" {
		t.Errorf("profit display = %q", resp.Display.Profit)
	}
}

func TestAPIHandlers_HandleAggregates(t *testing.T) {
	h := newTestAPI(t)

	w := httptest.NewRecorder()
	h.HandleAggregates(w, httptest.NewRequest(http.MethodGet, "/api/aggregates?dimension=category", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var buckets []map[string]any
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &buckets); err != nil {
		t.Fatal(err)
	}
	if len(buckets) != 4 {
		t.Errorf("expected one bucket per month and category, got %d", len(buckets))
	}
	if _, ok := buckets[0]["category"]; !ok {
		t.Errorf("bucket should be keyed by category: %v", buckets[0])
	}

	w = httptest.NewRecorder()
	h.HandleAggregates(w, httptest.NewRequest(http.MethodGet, "/api/aggregates?dimension=colour", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown dimension should be rejected, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"details":"dimension=colour"`) {
		t.Errorf("error should name the rejected dimension: %s", w.Body.String())
	}
}

func TestAPIHandlers_HandleStates(t *testing.T) {
	h := newTestAPI(t)
	w := httptest.NewRecorder()
	h.HandleStates(w, httptest.NewRequest(http.MethodGet, "/api/states", nil))

	var states []models.StateSummary
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &states); err != nil {
		t.Fatal(err)
	}
	if len(states) != 3 {
		t.Errorf("expected 3 states, got %d", len(states))
	}
}

func TestAPIHandlers_HandleInsight(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantText   string
	}{
		{
			name:       "location fallback",
			body:       `{"type":"location","datum":{"state":"Kentucky","sales":261.96,"profit":41.91,"profitRatio":16}}`,
			wantStatus: http.StatusOK,
			wantText:   "Kentucky shows 16.0% profit ratio",
		},
		{
			name:       "unknown type",
			body:       `{"type":"product","datum":{}}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			body:       `{"type":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestAPI(t)
			w := httptest.NewRecorder()
			h.HandleInsight(w, httptest.NewRequest(http.MethodPost, "/api/insight", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantText == "" {
				return
			}
			var in models.Insight
			if err := json.Unmarshal(decodeEnvelope(t, w).Data, &in); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(in.Text, tt.wantText) {
				t.Errorf("insight %q should contain %q", in.Text, tt.wantText)
			}
			if in.Source != models.InsightFromTemplate {
				t.Errorf("expected template source without a model, got %q", in.Source)
			}
		})
	}
}

func TestAPIHandlers_HandleHealth(t *testing.T) {
	h := newTestAPI(t)
	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var health map[string]string
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &health); err != nil {
		t.Fatal(err)
	}
	if health["status"] != "healthy" {
		t.Errorf("status = %q", health["status"])
	}
	if _, err := time.Parse(time.RFC3339, health["timestamp"]); err != nil {
		t.Errorf("timestamp should be RFC3339: %v", err)
	}
	if _, ok := health["error_code"]; ok {
		t.Error("a healthy dataset should not report a data error")
	}
}

func TestAPIHandlers_HandleHealthDegraded(t *testing.T) {
	dataset := services.NewDataset()
	_ = dataset.LoadFromCSV(t.Context(), filepath.Join(t.TempDir(), "missing.csv"))
	h := NewAPIHandlers(dataset, createTestRegistry(t, dataset), quietLogger())

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var health map[string]string
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &health); err != nil {
		t.Fatal(err)
	}
	if health["status"] != "degraded" {
		t.Errorf("status = %q, want degraded", health["status"])
	}
	if health["error_code"] != "DATA_UNAVAILABLE" || health["error"] != "Error loading data" {
		t.Errorf("unexpected data error %q / %q", health["error_code"], health["error"])
	}
}

func TestAPIHandlers_HandleStats(t *testing.T) {
	h := newTestAPI(t)
	h.HandleDashboard(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	w := httptest.NewRecorder()
	h.HandleStats(w, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))

	var stats map[string]any
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &stats); err != nil {
		t.Fatal(err)
	}
	if stats["record_count"] != 4.0 {
		t.Errorf("record_count = %v", stats["record_count"])
	}
	if stats["sessions"] != 1.0 {
		t.Errorf("sessions = %v", stats["sessions"])
	}
}

func BenchmarkAPIHandlers_HandleDashboard(b *testing.B) {
	dataset := services.NewDataset()
	records := make([]models.Record, 0, 2000)
	for i := range 2000 {
		records = append(records, rec(fmt.Sprintf("201%d-%02d-01", 4+i%4, 1+i%12), "Consumer", "Furniture", "West", "California", 100, 10))
	}
	dataset.SetRecords(records)

	prompts, _ := insight.DefaultPrompts()
	insights := insight.NewService(nil, prompts, time.Second, quietLogger())
	registry := dashboard.NewRegistry(func() *dashboard.Controller {
		return dashboard.NewController(dataset, insights, dashboard.Options{}, quietLogger())
	}, time.Hour, quietLogger())
	h := NewAPIHandlers(dataset, registry, quietLogger())

	first := httptest.NewRecorder()
	h.HandleDashboard(first, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.AddCookie(first.Result().Cookies()[0])
	for b.Loop() {
		h.HandleDashboard(httptest.NewRecorder(), req)
	}
}
