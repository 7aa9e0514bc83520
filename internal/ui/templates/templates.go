// Package templates renders the dashboard page and the fragments patched
// into it over SSE. Each fragment is a templ.Component so handlers can
// render into a response or into a string for datastar patches.
package templates

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/a-h/templ"

	"superstore-dashboard/internal/dashboard"
	"superstore-dashboard/internal/insight"
	"superstore-dashboard/internal/models"
)

//go:embed dashboard.html
var source string

var pages = template.Must(template.New("dashboard").Parse(source))

// Title is the page heading.
const Title = "Superstore Sales Dashboard"

// Signals are the datastar signals the page starts with. Chart specs travel
// as JSON strings so a patch replaces them whole, and are underscore
// prefixed so datastar never sends them back with a request.
type Signals struct {
	Width          float64 `json:"width"`
	DateRange      string  `json:"dateRange"`
	Region         string  `json:"region"`
	ProfitRatioMin int     `json:"profitRatioMin"`
	ProfitRatioMax int     `json:"profitRatioMax"`
	Selection      string  `json:"selection"`
	MapSpec        string  `json:"_mapSpec"`
	SegmentSpec    string  `json:"_segmentSpec"`
	CategorySpec   string  `json:"_categorySpec"`
}

// ChartSignals are the signals patched after every render.
type ChartSignals struct {
	MapSpec      string `json:"_mapSpec"`
	SegmentSpec  string `json:"_segmentSpec"`
	CategorySpec string `json:"_categorySpec"`
}

// NewChartSignals encodes the three specs of a view.
func NewChartSignals(c dashboard.Charts) (ChartSignals, error) {
	var out ChartSignals
	for _, item := range []struct {
		dst  *string
		spec any
	}{
		{&out.MapSpec, c.Map},
		{&out.SegmentSpec, c.Segment},
		{&out.CategorySpec, c.Category},
	} {
		raw, err := json.Marshal(item.spec)
		if err != nil {
			return ChartSignals{}, fmt.Errorf("encode chart spec: %w", err)
		}
		*item.dst = string(raw)
	}
	return out, nil
}

type pageData struct {
	Title   string
	Signals string
	View    dashboard.View
}

func execute(name string, data any) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return pages.ExecuteTemplate(w, name, data)
	})
}

// Dashboard is the full page. Charts are left empty; the page asks for them
// over SSE once it knows the viewport width.
func Dashboard(view dashboard.View) (templ.Component, error) {
	signals, err := json.Marshal(Signals{
		DateRange:      view.Filters.DateRange,
		Region:         view.Filters.Region,
		ProfitRatioMin: view.Filters.ProfitRatioMin,
		ProfitRatioMax: view.Filters.ProfitRatioMax,
	})
	if err != nil {
		return nil, fmt.Errorf("encode page signals: %w", err)
	}
	return execute("page", pageData{Title: Title, Signals: string(signals), View: view}), nil
}

// Controls is the filter form, re-rendered when the year list or the
// selected values change.
func Controls(view dashboard.View) templ.Component {
	return execute("controls", view)
}

// KPIs is the KPI panel, including the load error banner.
func KPIs(view dashboard.View) templ.Component {
	return execute("kpis", view)
}

type insightData struct {
	ID     string
	Source models.InsightSource
	HTML   template.HTML
}

// Insight shows a generated insight. Its HTML comes from the Markdown
// renderer, which escapes raw HTML in model output.
func Insight(in models.Insight) templ.Component {
	return execute("insight", insightData{ID: in.ID, Source: in.Source, HTML: template.HTML(in.HTML)})
}

// InsightLoading is shown while an insight is generated.
func InsightLoading() templ.Component {
	return execute("insight-loading", insight.LoadingMessage)
}

// InsightHidden clears the insight panel after a filter change.
func InsightHidden() templ.Component {
	return execute("insight-hidden", nil)
}

// String renders c into a string for an SSE patch.
func String(ctx context.Context, c templ.Component) (string, error) {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}
