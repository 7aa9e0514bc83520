// Package charts builds the Vega-Lite v5 specifications rendered by the
// dashboard page. Specs are plain JSON-ready maps so they can be sent to the
// browser as datastar signals or REST payloads without another schema layer.
package charts

import (
	"math"

	"superstore-dashboard/internal/models"
)

const (
	schemaURL = "https://vega.github.io/schema/vega-lite/v5.json"

	// DefaultViewportWidth sizes charts when the client did not report a width.
	DefaultViewportWidth = 1280

	// DefaultTopoJSON is the US states topology looked up by FIPS id.
	DefaultTopoJSON = "https://cdn.jsdelivr.net/npm/vega-datasets@2/data/us-10m.json"

	salesColor  = "#0faeca"
	profitColor = "#ffca24"
	moneyFormat = "$,.0f"
)

var (
	ratioDomain = []int{-50, 0, 50}
	ratioRange  = []string{"#ff6b6b", "#ffffff", "#45b7d1"}
)

// Spec is a Vega-Lite document.
type Spec map[string]any

// Dimensions are the pixel sizes derived from the browser viewport width.
type Dimensions struct {
	MapWidth      float64 `json:"mapWidth"`
	MapHeight     float64 `json:"mapHeight"`
	ChartWidth    float64 `json:"chartWidth"`
	ChartHeight   float64 `json:"chartHeight"`
	ChartFontSize float64 `json:"chartFontSize"`
}

func DimensionsFor(width float64) Dimensions {
	if width <= 0 || math.IsNaN(width) || math.IsInf(width, 0) {
		width = DefaultViewportWidth
	}
	return Dimensions{
		MapWidth:      math.Min(width*0.5, 700),
		MapHeight:     math.Min(width*0.3, 400),
		ChartWidth:    math.Min(width*0.35, 380),
		ChartHeight:   math.Min(width*0.5, 300),
		ChartFontSize: math.Min(width*0.025, 12),
	}
}

// MapSpec is the state choropleth colored by profit ratio.
func MapSpec(states []models.StateSummary, topoURL string, dims Dimensions) Spec {
	if topoURL == "" {
		topoURL = DefaultTopoJSON
	}
	values := make([]models.StateSummary, 0, len(states))
	for _, s := range states {
		if s.ID != "" {
			values = append(values, s)
		}
	}

	return Spec{
		"$schema":    schemaURL,
		"title":      "US Profitability Data",
		"width":      dims.MapWidth,
		"height":     dims.MapHeight,
		"projection": map[string]any{"type": "albersUsa"},
		"layer": []any{
			map[string]any{
				"data": topoData(topoURL),
				"transform": []any{
					map[string]any{
						"lookup": "id",
						"from": map[string]any{
							"data":   map[string]any{"values": values},
							"key":    "id",
							"fields": []string{"state", "sales", "profit", "profitRatio", "region"},
						},
					},
				},
				"mark": map[string]any{"type": "geoshape", "stroke": "#000", "strokeWidth": 0.5},
				"encoding": map[string]any{
					"color": ratioColor("Profit Ratio (%)"),
					"tooltip": []any{
						field("state", "nominal", "State"),
						field("region", "nominal", "Region"),
						formatted("sales", "Sales", moneyFormat),
						formatted("profit", "Profit", moneyFormat),
						formatted("profitRatio", "Profit Percentage", ".1f"),
					},
				},
			},
		},
	}
}

type point struct {
	State       string  `json:"state"`
	Region      string  `json:"region"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Sales       float64 `json:"sales"`
	Profit      float64 `json:"profit"`
	ProfitRatio float64 `json:"profitRatio"`
}

// PointMapSpec draws one circle per record that carries coordinates, sized
// by sales over a grey state outline.
func PointMapSpec(records []models.Record, topoURL string, dims Dimensions) Spec {
	if topoURL == "" {
		topoURL = DefaultTopoJSON
	}
	points := make([]point, 0, len(records))
	for _, r := range records {
		if !r.HasCoordinates {
			continue
		}
		points = append(points, point{
			State:       r.State,
			Region:      r.Region,
			Latitude:    r.Latitude,
			Longitude:   r.Longitude,
			Sales:       r.Sales,
			Profit:      r.Profit,
			ProfitRatio: r.ProfitRatio,
		})
	}

	return Spec{
		"$schema":    schemaURL,
		"title":      "US Profitability Data",
		"width":      dims.MapWidth,
		"height":     dims.MapHeight,
		"projection": map[string]any{"type": "albersUsa"},
		"layer": []any{
			map[string]any{
				"data": topoData(topoURL),
				"mark": map[string]any{"type": "geoshape", "fill": "#e8e8e8", "stroke": "#ffffff", "strokeWidth": 0.5},
			},
			map[string]any{
				"data": map[string]any{"values": points},
				"mark": map[string]any{"type": "circle", "opacity": 0.8, "stroke": "#fff", "strokeWidth": 1},
				"encoding": map[string]any{
					"longitude": map[string]any{"field": "longitude", "type": "quantitative"},
					"latitude":  map[string]any{"field": "latitude", "type": "quantitative"},
					"size": map[string]any{
						"field":  "sales",
						"type":   "quantitative",
						"scale":  map[string]any{"range": []int{50, 1000}},
						"legend": nil,
					},
					"color": ratioColor(""),
					"tooltip": []any{
						field("state", "nominal", "State"),
						formatted("sales", "Sales", moneyFormat),
						formatted("profit", "Profit", moneyFormat),
						formatted("profitRatio", "Profit Ratio", ".1f"),
					},
				},
			},
		},
	}
}

// TrendSpec is the monthly sales and profit chart faceted into one row per
// dimension value. Sales is the solid area, profit the dashed one.
func TrendSpec(buckets []models.AggregateBucket, dim models.Dimension, dims Dimensions) Spec {
	if buckets == nil {
		buckets = []models.AggregateBucket{}
	}
	label := dimensionTitle(dim)

	return Spec{
		"$schema": schemaURL,
		"data":    map[string]any{"values": buckets},
		"facet": map[string]any{
			"row": map[string]any{
				"field": string(dim),
				"type":  "nominal",
				"title": nil,
				"header": map[string]any{
					"labelFontSize": dims.ChartFontSize,
					"labelAngle":    0,
					"labelAlign":    "left",
				},
			},
		},
		"spec": map[string]any{
			"width":  dims.ChartWidth,
			"height": dims.ChartHeight / 3,
			"layer": []any{
				map[string]any{
					"mark": map[string]any{"type": "area", "point": false},
					"encoding": map[string]any{
						"x": map[string]any{
							"field": "date",
							"type":  "temporal",
							"title": "Date",
							"axis":  map[string]any{"format": "%b %Y"},
						},
						"y": map[string]any{
							"field": "sales",
							"type":  "quantitative",
							"title": "Amount ($)",
							"axis":  map[string]any{"format": moneyFormat},
						},
						"color": map[string]any{
							"datum": "Sales",
							"scale": map[string]any{
								"domain": []string{"Sales", "Profit"},
								"range":  []string{salesColor, profitColor},
							},
						},
					},
				},
				map[string]any{
					"mark": map[string]any{"type": "area", "point": false, "strokeDash": []int{4, 4}},
					"encoding": map[string]any{
						"x":     map[string]any{"field": "date", "type": "temporal"},
						"y":     map[string]any{"field": "profit", "type": "quantitative"},
						"color": map[string]any{"datum": "Profit"},
					},
				},
			},
			"encoding": map[string]any{
				"tooltip": []any{
					field("date", "temporal", "Date"),
					field(string(dim), "nominal", label),
					formatted("sales", "Sales", moneyFormat),
					formatted("profit", "Profit", moneyFormat),
				},
			},
		},
	}
}

func topoData(url string) map[string]any {
	return map[string]any{
		"url":    url,
		"format": map[string]any{"type": "topojson", "feature": "states"},
	}
}

func ratioColor(title string) map[string]any {
	enc := map[string]any{
		"field": "profitRatio",
		"type":  "quantitative",
		"scale": map[string]any{"domain": ratioDomain, "range": ratioRange},
	}
	if title != "" {
		enc["title"] = title
	} else {
		enc["legend"] = nil
	}
	return enc
}

func field(name, typ, title string) map[string]any {
	return map[string]any{"field": name, "type": typ, "title": title}
}

func formatted(name, title, format string) map[string]any {
	return map[string]any{"field": name, "type": "quantitative", "title": title, "format": format}
}

func dimensionTitle(dim models.Dimension) string {
	switch dim {
	case models.DimensionSegment:
		return "Segment"
	case models.DimensionCategory:
		return "Category"
	default:
		return string(dim)
	}
}
