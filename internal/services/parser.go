package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"superstore-dashboard/internal/models"
)

const (
	batchSize  = 10000
	maxWorkers = 10
)

// Column names of the Superstore export.
const (
	colOrderDate = "Order Date"
	colSegment   = "Segment"
	colCategory  = "Category"
	colRegion    = "Region"
	colState     = "State"
	colCity      = "City"
	colCountry   = "Country"
	colSales     = "Sales"
	colProfit    = "Profit"
	colDiscount  = "Discount"
	colQuantity  = "Quantity"
	colLatitude  = "Latitude"
	colLongitude = "Longitude"
)

// columnIndex maps header names to positions in a row.
type columnIndex map[string]int

func newColumnIndex(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		h = strings.TrimSpace(strings.ReplaceAll(h, `"`, ""))
		if _, exists := idx[h]; !exists {
			idx[h] = i
		}
	}
	return idx
}

func (c columnIndex) has(name string) bool {
	_, ok := c[name]
	return ok
}

func (c columnIndex) value(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(strings.ReplaceAll(row[i], `"`, ""))
}

// ParseCSV reads a header row followed by one record per line. Every line
// after the header yields a Record, blank ones included, up to the last
// non-empty line: numeric fields that do not parse become 0 and dates
// that do not parse become the invalid date. Only an unreadable header or a
// broken stream is an error.
func ParseCSV(ctx context.Context, r io.Reader) ([]models.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := newColumnIndex(header)
	lastLine := endLine(reader, header)

	var rows [][]string
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				// keep the row position; the record comes out with defaults
				rows = appendBlankLines(rows, parseErr.StartLine-lastLine-1)
				rows = append(rows, row)
				lastLine = parseErr.Line
				continue
			}
			return nil, fmt.Errorf("read row: %w", err)
		}

		// encoding/csv skips empty lines; each one between data rows still
		// counts as a record with every field defaulted.
		line, _ := reader.FieldPos(0)
		rows = appendBlankLines(rows, line-lastLine-1)
		rows = append(rows, row)
		lastLine = endLine(reader, row)
	}

	records := make([]models.Record, len(rows))

	var g errgroup.Group
	g.SetLimit(maxWorkers)

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			for i := start; i < end; i++ {
				records[i] = parseRecord(cols, rows[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return records, nil
}

func parseRecord(cols columnIndex, row []string) models.Record {
	sales := parseFloat(cols.value(row, colSales))
	profit := parseFloat(cols.value(row, colProfit))

	rec := models.Record{
		Date:        models.ParseDate(cols.value(row, colOrderDate)),
		Segment:     cols.value(row, colSegment),
		Category:    cols.value(row, colCategory),
		Region:      cols.value(row, colRegion),
		State:       cols.value(row, colState),
		City:        cols.value(row, colCity),
		Country:     cols.value(row, colCountry),
		Sales:       sales,
		Profit:      profit,
		Discount:    parseFloat(cols.value(row, colDiscount)),
		ProfitRatio: models.ProfitRatio(profit, sales),
		Quantity:    parseInt(cols.value(row, colQuantity)),
	}

	if cols.has(colLatitude) && cols.has(colLongitude) {
		lat, latErr := strconv.ParseFloat(cols.value(row, colLatitude), 64)
		lon, lonErr := strconv.ParseFloat(cols.value(row, colLongitude), 64)
		if latErr == nil && lonErr == nil {
			rec.Latitude, rec.Longitude = lat, lon
			rec.HasCoordinates = true
		}
	}

	return rec
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func parseInt(s string) int {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	// "3.0" style quantities
	return int(parseFloat(s))
}

// endLine is the line on which row, just returned by reader, ends. Quoted
// fields may span lines.
func endLine(reader *csv.Reader, row []string) int {
	last := len(row) - 1
	line, _ := reader.FieldPos(last)
	return line + strings.Count(row[last], "\n")
}

func appendBlankLines(rows [][]string, n int) [][]string {
	for range n {
		rows = append(rows, nil)
	}
	return rows
}
