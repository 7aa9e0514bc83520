package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"superstore-dashboard/internal/dashboard"
	"superstore-dashboard/internal/errors"
	"superstore-dashboard/internal/insight"
	"superstore-dashboard/internal/models"
	"superstore-dashboard/internal/observability"
	"superstore-dashboard/internal/ui/templates"
)

// pageSignals is the subset of the page's signals the server reads back.
type pageSignals struct {
	Width          flexNumber `json:"width"`
	DateRange      string     `json:"dateRange"`
	Region         string     `json:"region"`
	ProfitRatioMin flexNumber `json:"profitRatioMin"`
	ProfitRatioMax flexNumber `json:"profitRatioMax"`
	Selection      string     `json:"selection"`
}

func (s pageSignals) filters() models.FilterState {
	return models.FilterState{
		DateRange:      s.DateRange,
		Region:         s.Region,
		ProfitRatioMin: int(s.ProfitRatioMin),
		ProfitRatioMax: int(s.ProfitRatioMax),
	}
}

type SSEHandlers struct {
	sessions *dashboard.Registry
	logger   *slog.Logger
}

func NewSSEHandlers(sessions *dashboard.Registry, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		sessions: sessions,
		logger:   logger,
	}
}

func (h *SSEHandlers) readSignals(w http.ResponseWriter, r *http.Request) (pageSignals, bool) {
	var signals pageSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		errors.WriteError(w, observability.LoggerFrom(r.Context(), h.logger),
			errors.BadRequestWrap(err, "invalid datastar signals"), observability.GetRequestID(r.Context()))
		return signals, false
	}
	return signals, true
}

// HandleDashboard renders the session's view at the client's width.
func (h *SSEHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	signals, ok := h.readSignals(w, r)
	if !ok {
		return
	}
	controller := SessionController(w, r, h.sessions)

	sse := datastar.NewSSE(w, r)
	view := controller.Render(r.Context(), float64(signals.Width))
	h.patchView(r.Context(), sse, view)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// HandleFilters applies the submitted controls, or a reset, and re-renders.
// The insight panel is hidden since its selection no longer applies.
func (h *SSEHandlers) HandleFilters(w http.ResponseWriter, r *http.Request) {
	signals, ok := h.readSignals(w, r)
	if !ok {
		return
	}
	controller := SessionController(w, r, h.sessions)
	logger := observability.LoggerFrom(r.Context(), h.logger)

	var err error
	if r.URL.Query().Has("reset") {
		_, err = controller.Dispatch(dashboard.Event{Kind: dashboard.EventReset})
	} else {
		_, err = controller.Apply(signals.filters())
	}
	switch {
	case err == nil:
	case errors.HasCode(err, errors.CodeValidation):
		// The controls are snapped back to the last valid state below.
		logger.Warn("filter update rejected", "error", err)
	default:
		logger.Error("filter update failed", "error", err)
	}

	sse := datastar.NewSSE(w, r)
	view := controller.Render(r.Context(), float64(signals.Width))

	state, err := json.Marshal(map[string]any{
		"dateRange":      view.Filters.DateRange,
		"region":         view.Filters.Region,
		"profitRatioMin": view.Filters.ProfitRatioMin,
		"profitRatioMax": view.Filters.ProfitRatioMax,
		"selection":      "",
	})
	if err != nil {
		logger.Error("marshal filter signals", "error", err)
		return
	}
	sse.PatchSignals(state)

	h.patchView(r.Context(), sse, view)

	hidden, err := templates.String(r.Context(), templates.InsightHidden())
	if err != nil {
		logger.Error("render insight panel", "error", err)
		return
	}
	sse.PatchElements(hidden)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// HandleInsight answers a chart click. The loading panel goes out first;
// the result is dropped if a filter change or newer click superseded it.
func (h *SSEHandlers) HandleInsight(w http.ResponseWriter, r *http.Request) {
	signals, ok := h.readSignals(w, r)
	if !ok {
		return
	}
	logger := observability.LoggerFrom(r.Context(), h.logger)

	var req models.InsightRequest
	if err := json.Unmarshal([]byte(strings.TrimSpace(signals.Selection)), &req); err != nil || !req.Kind.Valid() {
		errors.WriteError(w, logger, errors.Validation("selection must name a location, segment or category datum"),
			observability.GetRequestID(r.Context()))
		return
	}
	controller := SessionController(w, r, h.sessions)

	sse := datastar.NewSSE(w, r)

	loading, err := templates.String(r.Context(), templates.InsightLoading())
	if err != nil {
		logger.Error("render insight loading", "error", err)
		return
	}
	sse.PatchElements(loading)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	result, err := controller.Select(r.Context(), req)
	if err != nil {
		logger.Error("insight failed", "type", req.Kind, "error", err)
		result = models.Insight{Kind: req.Kind, Text: insight.RetryMessage, HTML: "<p>" + insight.RetryMessage + "</p>"}
	}
	if result.Stale {
		return
	}

	panel, err := templates.String(r.Context(), templates.Insight(result))
	if err != nil {
		logger.Error("render insight", "error", err)
		return
	}
	sse.PatchElements(panel)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) patchView(ctx context.Context, sse *datastar.ServerSentEventGenerator, view dashboard.View) {
	logger := observability.LoggerFrom(ctx, h.logger)

	kpis, err := templates.String(ctx, templates.KPIs(view))
	if err != nil {
		logger.Error("render kpi panel", "error", err)
		return
	}
	sse.PatchElements(kpis)

	form, err := templates.String(ctx, templates.Controls(view))
	if err != nil {
		logger.Error("render filter controls", "error", err)
		return
	}
	sse.PatchElements(form)

	chartSignals, err := templates.NewChartSignals(view.Charts)
	if err != nil {
		logger.Error("encode chart specs", "error", err)
		return
	}
	jsonData, err := json.Marshal(chartSignals)
	if err != nil {
		logger.Error("marshal chart signals", "error", err)
		return
	}
	sse.PatchSignals(jsonData)
}
