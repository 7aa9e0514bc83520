package charts

import (
	"encoding/json"
	"strings"
	"testing"

	"superstore-dashboard/internal/models"
)

func TestDimensionsFor(t *testing.T) {
	tests := []struct {
		name  string
		width float64
		want  Dimensions
	}{
		{
			name:  "wide screen hits every cap",
			width: 2000,
			want:  Dimensions{MapWidth: 700, MapHeight: 400, ChartWidth: 380, ChartHeight: 300, ChartFontSize: 12},
		},
		{
			name:  "narrow screen scales",
			width: 400,
			want:  Dimensions{MapWidth: 200, MapHeight: 120, ChartWidth: 140, ChartHeight: 200, ChartFontSize: 10},
		},
		{
			name:  "unknown width uses default",
			width: 0,
			want:  DimensionsFor(DefaultViewportWidth),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DimensionsFor(tt.width); got != tt.want {
				t.Errorf("DimensionsFor(%v) = %+v, want %+v", tt.width, got, tt.want)
			}
		})
	}
}

func decode(t *testing.T, spec Spec) map[string]any {
	t.Helper()
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("spec is not JSON-encodable: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestMapSpec(t *testing.T) {
	states := []models.StateSummary{
		{ID: "06", State: "California", Region: "West", Sales: 200, Profit: 10, ProfitRatio: 5},
		{ID: "", State: "Atlantis", Region: "Nowhere", Sales: 1, Profit: 1, ProfitRatio: 100},
	}

	spec := decode(t, MapSpec(states, "", DimensionsFor(1280)))

	if spec["$schema"] != schemaURL {
		t.Errorf("unexpected schema %v", spec["$schema"])
	}
	if spec["width"] != 640.0 || spec["height"] != 384.0 {
		t.Errorf("unexpected size %vx%v", spec["width"], spec["height"])
	}

	layer := spec["layer"].([]any)[0].(map[string]any)
	data := layer["data"].(map[string]any)
	if data["url"] != DefaultTopoJSON {
		t.Errorf("expected default topojson, got %v", data["url"])
	}

	lookup := layer["transform"].([]any)[0].(map[string]any)["from"].(map[string]any)
	values := lookup["data"].(map[string]any)["values"].([]any)
	if len(values) != 1 {
		t.Fatalf("states without a FIPS id cannot be drawn, expected 1 value, got %d", len(values))
	}
	if values[0].(map[string]any)["id"] != "06" {
		t.Errorf("unexpected lookup value %v", values[0])
	}

	scale := layer["encoding"].(map[string]any)["color"].(map[string]any)["scale"].(map[string]any)
	if len(scale["domain"].([]any)) != 3 || scale["range"].([]any)[0] != "#ff6b6b" {
		t.Errorf("unexpected color scale %v", scale)
	}
}

func TestPointMapSpec(t *testing.T) {
	records := []models.Record{
		{State: "Texas", Sales: 100, Latitude: 31, Longitude: -100, HasCoordinates: true},
		{State: "Texas", Sales: 50},
	}

	spec := decode(t, PointMapSpec(records, "https://example.test/us.json", DimensionsFor(1280)))
	layers := spec["layer"].([]any)
	if len(layers) != 2 {
		t.Fatalf("expected outline and point layers, got %d", len(layers))
	}

	base := layers[0].(map[string]any)["data"].(map[string]any)
	if base["url"] != "https://example.test/us.json" {
		t.Errorf("custom topojson url not used: %v", base["url"])
	}

	points := layers[1].(map[string]any)
	if points["mark"].(map[string]any)["type"] != "circle" {
		t.Errorf("expected circle marks, got %v", points["mark"])
	}
	values := points["data"].(map[string]any)["values"].([]any)
	if len(values) != 1 {
		t.Errorf("records without coordinates should be skipped, got %d points", len(values))
	}
}

func TestTrendSpec(t *testing.T) {
	buckets := []models.AggregateBucket{
		{Date: models.NewDate(2016, 1, 1), Dimension: models.DimensionCategory, Value: "Furniture", Sales: 300, Profit: 40, Count: 2},
	}

	spec := decode(t, TrendSpec(buckets, models.DimensionCategory, DimensionsFor(2000)))

	row := spec["facet"].(map[string]any)["row"].(map[string]any)
	if row["field"] != "category" {
		t.Errorf("expected facet on category, got %v", row["field"])
	}
	if row["header"].(map[string]any)["labelFontSize"] != 12.0 {
		t.Errorf("unexpected header %v", row["header"])
	}

	values := spec["data"].(map[string]any)["values"].([]any)
	first := values[0].(map[string]any)
	if first["category"] != "Furniture" || first["date"] != "2016-01-01" {
		t.Errorf("bucket should be keyed by its dimension: %v", first)
	}

	inner := spec["spec"].(map[string]any)
	if inner["height"] != 100.0 {
		t.Errorf("facet height should be a third of chart height, got %v", inner["height"])
	}

	layers := inner["layer"].([]any)
	profit := layers[1].(map[string]any)["mark"].(map[string]any)
	if dash, ok := profit["strokeDash"].([]any); !ok || len(dash) != 2 {
		t.Errorf("profit layer should be dashed, got %v", profit)
	}

	raw, _ := json.Marshal(inner["encoding"])
	if !strings.Contains(string(raw), `"title":"Category"`) {
		t.Errorf("tooltip should name the dimension: %s", raw)
	}
}

func TestTrendSpec_Empty(t *testing.T) {
	spec := decode(t, TrendSpec(nil, models.DimensionSegment, DimensionsFor(800)))
	values, ok := spec["data"].(map[string]any)["values"].([]any)
	if !ok || len(values) != 0 {
		t.Errorf("empty buckets should encode as an empty array, got %v", spec["data"])
	}
}
