package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const (
	DateRangeAll        = "all"
	DateRangeLast3Years = "last-3-years"
	RegionAll           = "all"
)

// FilterState holds the user's current filter selection.
type FilterState struct {
	DateRange      string `json:"dateRange"`
	Region         string `json:"region"`
	ProfitRatioMin int    `json:"profitRatioMin"`
	ProfitRatioMax int    `json:"profitRatioMax"`
}

func DefaultFilterState() FilterState {
	return FilterState{
		DateRange:      DateRangeAll,
		Region:         RegionAll,
		ProfitRatioMin: -100,
		ProfitRatioMax: 100,
	}
}

// Dimension selects the categorical field used for monthly grouping.
type Dimension string

const (
	DimensionSegment  Dimension = "segment"
	DimensionCategory Dimension = "category"
)

func ParseDimension(s string) (Dimension, error) {
	switch Dimension(s) {
	case DimensionSegment, DimensionCategory:
		return Dimension(s), nil
	default:
		return "", fmt.Errorf("unknown dimension %q", s)
	}
}

// AggregateBucket sums the measures of one (month, dimension value) pair.
type AggregateBucket struct {
	Date      Date
	Dimension Dimension
	Value     string
	Sales     float64
	Profit    float64
	Count     int
}

// MarshalJSON names the dimension value after its dimension, so segment
// buckets carry a "segment" field and category buckets a "category" field.
func (b AggregateBucket) MarshalJSON() ([]byte, error) {
	key := string(b.Dimension)
	if key == "" {
		key = "value"
	}
	return json.Marshal(map[string]any{
		"date":   b.Date,
		key:      b.Value,
		"sales":  b.Sales,
		"profit": b.Profit,
		"count":  b.Count,
	})
}

// StateSummary aggregates records by state for the map view.
type StateSummary struct {
	ID          string  `json:"id,omitempty"`
	State       string  `json:"state"`
	Region      string  `json:"region"`
	Sales       float64 `json:"sales"`
	Profit      float64 `json:"profit"`
	Count       int     `json:"count"`
	ProfitRatio float64 `json:"profitRatio"`
}

// KPISummary is the scalar summary of a filtered record set.
type KPISummary struct {
	TotalSales      float64 `json:"totalSales"`
	TotalProfit     float64 `json:"totalProfit"`
	AvgDiscount     float64 `json:"avgDiscount"`
	ProfitRatio     float64 `json:"profitRatio"`
	UniqueOrders    int     `json:"uniqueOrders"`
	UniqueCustomers int     `json:"uniqueCustomers"`
}

func (k KPISummary) ProfitPerOrder() float64 {
	return k.TotalProfit / math.Max(1, float64(k.UniqueOrders))
}

func (k KPISummary) ProfitPerCustomer() float64 {
	return k.TotalProfit / math.Max(1, float64(k.UniqueCustomers))
}

// KPIDisplay is the formatted text of the six KPI fields.
type KPIDisplay struct {
	Sales             string `json:"sales"`
	Profit            string `json:"profit"`
	ProfitRatio       string `json:"profitRatio"`
	ProfitPerOrder    string `json:"profitPerOrder"`
	ProfitPerCustomer string `json:"profitPerCustomer"`
	Discount          string `json:"discount"`
}

type InsightKind string

const (
	InsightLocation InsightKind = "location"
	InsightSegment  InsightKind = "segment"
	InsightCategory InsightKind = "category"
)

func (k InsightKind) Valid() bool {
	switch k {
	case InsightLocation, InsightSegment, InsightCategory:
		return true
	}
	return false
}

// InsightDatum is the chart element the user clicked. Location datums use
// State and Region; segment and category datums use Date and their label.
type InsightDatum struct {
	State       string  `json:"state,omitempty"`
	Region      string  `json:"region,omitempty"`
	Segment     string  `json:"segment,omitempty"`
	Category    string  `json:"category,omitempty"`
	Date        Date    `json:"date"`
	Sales       float64 `json:"sales"`
	Profit      float64 `json:"profit"`
	ProfitRatio float64 `json:"profitRatio"`
}

type InsightRequest struct {
	Kind    InsightKind  `json:"type"`
	Datum   InsightDatum `json:"datum"`
	Filters *FilterState `json:"filters,omitempty"`
	KPIs    *KPISummary  `json:"kpis,omitempty"`
}

type InsightSource string

const (
	InsightFromModel    InsightSource = "model"
	InsightFromTemplate InsightSource = "template"
)

type Insight struct {
	ID          string        `json:"id"`
	Kind        InsightKind   `json:"type"`
	Text        string        `json:"text"`
	HTML        string        `json:"html"`
	Source      InsightSource `json:"source"`
	Stale       bool          `json:"stale,omitempty"`
	GeneratedAt time.Time     `json:"generatedAt"`
}
