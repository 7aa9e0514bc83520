// Package dashboard owns per-session filter state and runs the
// filter → KPI → aggregate → chart pipeline for each render.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"superstore-dashboard/internal/charts"
	"superstore-dashboard/internal/format"
	"superstore-dashboard/internal/models"
	"superstore-dashboard/internal/observability"
	"superstore-dashboard/internal/services"
)

const (
	AnchorDataset = "dataset"
	AnchorClock   = "clock"

	MapStates = "states"
	MapPoints = "points"
)

// Insighter produces an insight for a chart selection.
type Insighter interface {
	Generate(ctx context.Context, req models.InsightRequest) (models.Insight, error)
}

type Options struct {
	Defaults   models.FilterState
	YearAnchor string
	MapStyle   string
	TopoJSON   string
	Clock      func() time.Time
}

// Charts holds the three Vega-Lite documents of a view.
type Charts struct {
	Map      charts.Spec `json:"map"`
	Segment  charts.Spec `json:"segment"`
	Category charts.Spec `json:"category"`
}

// View is everything the page needs for one render.
type View struct {
	Filters     models.FilterState       `json:"filters"`
	KPIs        *models.KPISummary       `json:"kpis"`
	Display     models.KPIDisplay        `json:"display"`
	RecordCount int                      `json:"recordCount"`
	States      []models.StateSummary    `json:"states"`
	Segments    []models.AggregateBucket `json:"segments"`
	Categories  []models.AggregateBucket `json:"categories"`
	Charts      Charts                   `json:"charts"`
	Dimensions  charts.Dimensions        `json:"dimensions"`
	Years       []int                    `json:"years"`
	Regions     []string                 `json:"regions"`
	LoadError   string                   `json:"loadError,omitempty"`
}

// Controller is one session's dashboard. It is safe for concurrent use.
type Controller struct {
	dataset  *services.Dataset
	insights Insighter
	opts     Options
	logger   *slog.Logger

	mu         sync.Mutex
	filters    models.FilterState
	selected   *models.InsightRequest
	generation uint64
}

func NewController(dataset *services.Dataset, insights Insighter, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Defaults == (models.FilterState{}) {
		opts.Defaults = models.DefaultFilterState()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Controller{
		dataset:  dataset,
		insights: insights,
		opts:     opts,
		logger:   logger,
		filters:  opts.Defaults,
	}
}

func (c *Controller) Filters() models.FilterState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters
}

// Selected is the chart element last clicked, nil after any filter change.
func (c *Controller) Selected() *models.InsightRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return nil
	}
	sel := *c.selected
	return &sel
}

// Dispatch applies a filter event. A successful event clears the selection
// and invalidates any insight still being generated.
func (c *Controller) Dispatch(ev Event) (models.FilterState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := Reduce(c.filters, ev, c.opts.Defaults)
	if err != nil {
		return c.filters, err
	}

	c.filters = next
	c.selected = nil
	c.generation++
	c.logger.Debug("filter event applied", "type", ev.Kind, "value", ev.Value, "filters", next)
	return next, nil
}

// Apply moves the filters to target through the events Diff produces. The
// update is all or nothing: if any event is rejected the filters stay as
// they were.
func (c *Controller) Apply(target models.FilterState) (models.FilterState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	events := Diff(c.filters, target)
	if len(events) == 0 {
		return c.filters, nil
	}

	next := c.filters
	for _, ev := range events {
		var err error
		if next, err = Reduce(next, ev, c.opts.Defaults); err != nil {
			return c.filters, err
		}
	}

	c.filters = next
	c.selected = nil
	c.generation++
	c.logger.Debug("filter update applied", "events", len(events), "filters", next)
	return next, nil
}

func (c *Controller) anchorYear() int {
	if c.opts.YearAnchor == AnchorClock {
		return c.opts.Clock().Year()
	}
	return c.dataset.MaxYear()
}

func (c *Controller) filtered(state models.FilterState) []models.Record {
	return services.FilterRecords(c.dataset.Records(), state, c.anchorYear())
}

// Render runs the pipeline for the current filters at the given viewport
// width.
func (c *Controller) Render(ctx context.Context, width float64) View {
	_, span := observability.StartSpan(ctx, "dashboard.render")
	defer span.End(c.logger)

	state := c.Filters()
	records := c.filtered(state)
	span.SetTag("records", strconv.Itoa(len(records)))

	view := View{
		Filters:     state,
		RecordCount: len(records),
		Dimensions:  charts.DimensionsFor(width),
		Years:       c.dataset.Years(),
		Regions:     c.dataset.Regions(),
	}
	if err := c.dataset.LoadError(); err != nil {
		view.LoadError = err.Error()
		span.SetError(err)
	}

	kpis, ok := services.CalculateKPIs(records)
	if ok {
		view.KPIs = &kpis
	}
	view.Display = format.KPIs(kpis, ok)

	var g errgroup.Group
	g.Go(func() error {
		view.Segments = services.AggregateByMonth(records, models.DimensionSegment)
		return nil
	})
	g.Go(func() error {
		view.Categories = services.AggregateByMonth(records, models.DimensionCategory)
		return nil
	})
	g.Go(func() error {
		view.States = services.AggregateByState(records)
		return nil
	})
	_ = g.Wait()

	if c.opts.MapStyle == MapPoints {
		view.Charts.Map = charts.PointMapSpec(records, c.opts.TopoJSON, view.Dimensions)
	} else {
		view.Charts.Map = charts.MapSpec(view.States, c.opts.TopoJSON, view.Dimensions)
	}
	view.Charts.Segment = charts.TrendSpec(view.Segments, models.DimensionSegment, view.Dimensions)
	view.Charts.Category = charts.TrendSpec(view.Categories, models.DimensionCategory, view.Dimensions)

	return view
}

// KPIs summarizes the current filtered set.
func (c *Controller) KPIs() (models.KPISummary, bool) {
	return services.CalculateKPIs(c.filtered(c.Filters()))
}

// Select records req as the selected chart element and generates its
// insight with the current filters and KPIs as context. If a filter event
// or a newer selection lands while the insight is generated, the result is
// returned with Stale set.
func (c *Controller) Select(ctx context.Context, req models.InsightRequest) (models.Insight, error) {
	if c.insights == nil {
		return models.Insight{}, fmt.Errorf("no insight service configured")
	}

	c.mu.Lock()
	filters := c.filters
	c.generation++
	generation := c.generation
	c.mu.Unlock()

	req.Filters = &filters
	if kpis, ok := services.CalculateKPIs(c.filtered(filters)); ok {
		req.KPIs = &kpis
	}

	c.mu.Lock()
	if c.generation == generation {
		sel := req
		c.selected = &sel
	}
	c.mu.Unlock()

	insight, err := c.insights.Generate(ctx, req)
	if err != nil {
		return insight, err
	}

	c.mu.Lock()
	insight.Stale = c.generation != generation
	c.mu.Unlock()

	if insight.Stale {
		c.logger.Debug("insight superseded", "insight_id", insight.ID, "type", insight.Kind)
	}
	return insight, nil
}

// Aggregate buckets the current filtered set by month and dim.
func (c *Controller) Aggregate(dim models.Dimension) []models.AggregateBucket {
	return services.AggregateByMonth(c.filtered(c.Filters()), dim)
}

// States summarizes the current filtered set per state.
func (c *Controller) States() []models.StateSummary {
	return services.AggregateByState(c.filtered(c.Filters()))
}
