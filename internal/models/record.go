package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// dateLayouts are tried in order when a date arrives as text.
var dateLayouts = []string{
	"1/2/2006",
	"01/02/2006",
	dateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"1/2/06",
	"Jan 2, 2006",
	"January 2, 2006",
}

// Date is a calendar day. The zero value is the invalid date produced by
// unparseable input and is carried through the pipeline instead of an error.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate never fails; unrecognised input yields the invalid date.
func ParseDate(s string) Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t.Year(), t.Month(), t.Day())
		}
	}
	return Date{}
}

func (d Date) Valid() bool {
	return !d.Time.IsZero()
}

// MonthStart returns the first day of d's month.
func (d Date) MonthStart() Date {
	if !d.Valid() {
		return Date{}
	}
	return NewDate(d.Year(), d.Month(), 1)
}

// DayKey identifies the calendar day; all invalid dates share one key.
func (d Date) DayKey() string {
	if !d.Valid() {
		return "invalid"
	}
	return d.Format(dateLayout)
}

// MonthKey is YYYY-MM, or "invalid".
func (d Date) MonthKey() string {
	if !d.Valid() {
		return "invalid"
	}
	return d.Format("2006-01")
}

func (d Date) String() string {
	if !d.Valid() {
		return "Invalid Date"
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

// UnmarshalJSON accepts date strings, RFC 3339 timestamps and epoch
// milliseconds, which is how chart libraries hand back temporal fields.
func (d *Date) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode date: %w", err)
		}
		*d = ParseDate(s)
		return nil
	}

	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("decode date %s: %w", data, err)
	}
	t := time.UnixMilli(int64(ms)).UTC()
	*d = NewDate(t.Year(), t.Month(), t.Day())
	return nil
}

// Record is one transaction line of the dataset.
type Record struct {
	Date           Date    `json:"date"`
	Segment        string  `json:"segment"`
	Category       string  `json:"category"`
	Region         string  `json:"region"`
	State          string  `json:"state"`
	City           string  `json:"city,omitempty"`
	Country        string  `json:"country,omitempty"`
	Sales          float64 `json:"sales"`
	Profit         float64 `json:"profit"`
	Discount       float64 `json:"discount"`
	ProfitRatio    float64 `json:"profitRatio"`
	Quantity       int     `json:"quantity,omitempty"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
	HasCoordinates bool    `json:"-"`
}

// ProfitRatio is profit as a percentage of sales, 0 when there are no sales.
func ProfitRatio(profit, sales float64) float64 {
	if sales == 0 {
		return 0
	}
	return profit / sales * 100
}

// DimensionValue returns the record's label for a grouping dimension.
func (r Record) DimensionValue(d Dimension) string {
	switch d {
	case DimensionSegment:
		return r.Segment
	case DimensionCategory:
		return r.Category
	default:
		return ""
	}
}
