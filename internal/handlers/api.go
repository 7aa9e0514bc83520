package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"superstore-dashboard/internal/dashboard"
	"superstore-dashboard/internal/errors"
	"superstore-dashboard/internal/format"
	"superstore-dashboard/internal/models"
	"superstore-dashboard/internal/observability"
	"superstore-dashboard/internal/services"
)

const maxBodyBytes = 64 << 10

var noStore = map[string]string{"Cache-Control": "no-store"}

type APIHandlers struct {
	dataset  *services.Dataset
	sessions *dashboard.Registry
	logger   *slog.Logger
}

func NewAPIHandlers(dataset *services.Dataset, sessions *dashboard.Registry, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		dataset:  dataset,
		sessions: sessions,
		logger:   logger,
	}
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, observability.LoggerFrom(r.Context(), h.logger), err, observability.GetRequestID(r.Context()))
}

// HandleDashboard returns the whole view for the session's filters.
func (h *APIHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	controller := SessionController(w, r, h.sessions)
	view := controller.Render(r.Context(), widthParam(r))
	errors.WriteSuccessWithHeaders(w, view, noStore)
}

func (h *APIHandlers) HandleGetFilters(w http.ResponseWriter, r *http.Request) {
	controller := SessionController(w, r, h.sessions)
	errors.WriteSuccessWithHeaders(w, controller.Filters(), noStore)
}

// HandleUpdateFilters accepts either one control event ({"type","value"})
// or a partial filter state merged over the current one.
func (h *APIHandlers) HandleUpdateFilters(w http.ResponseWriter, r *http.Request) {
	controller := SessionController(w, r, h.sessions)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.fail(w, r, errors.BadRequestWrap(err, "failed to read request body"))
		return
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		h.fail(w, r, errors.BadRequestWrap(err, "request body must be a JSON object"))
		return
	}

	var state models.FilterState
	if _, isEvent := probe["type"]; isEvent {
		var ev dashboard.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			h.fail(w, r, errors.BadRequestWrap(err, "invalid filter event"))
			return
		}
		state, err = controller.Dispatch(ev)
	} else {
		target := controller.Filters()
		if err := json.Unmarshal(body, &target); err != nil {
			h.fail(w, r, errors.BadRequestWrap(err, "invalid filter state"))
			return
		}
		state, err = controller.Apply(target)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, state, noStore)
}

func (h *APIHandlers) HandleKPIs(w http.ResponseWriter, r *http.Request) {
	controller := SessionController(w, r, h.sessions)
	kpis, ok := controller.KPIs()

	resp := struct {
		KPIs    *models.KPISummary `json:"kpis"`
		Display models.KPIDisplay  `json:"display"`
	}{Display: format.KPIs(kpis, ok)}
	if ok {
		resp.KPIs = &kpis
	}
	errors.WriteSuccessWithHeaders(w, resp, noStore)
}

func (h *APIHandlers) HandleAggregates(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("dimension")
	dim, err := models.ParseDimension(raw)
	if err != nil {
		h.fail(w, r, errors.BadRequestWrap(err, "dimension must be segment or category").WithDetails("dimension="+raw))
		return
	}
	controller := SessionController(w, r, h.sessions)
	errors.WriteSuccessWithHeaders(w, controller.Aggregate(dim), noStore)
}

func (h *APIHandlers) HandleStates(w http.ResponseWriter, r *http.Request) {
	controller := SessionController(w, r, h.sessions)
	errors.WriteSuccessWithHeaders(w, controller.States(), noStore)
}

// HandleInsight generates an insight for a chart element. The session's
// filters and KPIs are attached server side.
func (h *APIHandlers) HandleInsight(w http.ResponseWriter, r *http.Request) {
	controller := SessionController(w, r, h.sessions)

	var req models.InsightRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.fail(w, r, errors.BadRequestWrap(err, "invalid insight request"))
		return
	}
	if !req.Kind.Valid() {
		h.fail(w, r, errors.Validation("insight type must be location, segment or category"))
		return
	}

	insight, err := controller.Select(r.Context(), req)
	if err != nil {
		if _, ok := errors.As(err); !ok {
			err = errors.ServiceUnavailable(err.Error())
		}
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, insight, noStore)
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}
	if loadErr := h.dataset.LoadError(); loadErr != nil {
		dataErr := errors.DataUnavailable(loadErr)
		healthData["status"] = "degraded"
		healthData["error_code"] = string(dataErr.Code)
		healthData["error"] = dataErr.Message
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.dataset.Stats()
	stats["sessions"] = h.sessions.Len()

	errors.WriteSuccess(w, stats)
}
