package services

import (
	"strconv"

	"superstore-dashboard/internal/models"
)

// trailingYears is how many years before the anchor "last-3-years" keeps.
const trailingYears = 2

// ApplyFilters filters records anchoring "last-3-years" to the latest year
// present in records themselves.
func ApplyFilters(records []models.Record, state models.FilterState) []models.Record {
	return FilterRecords(records, state, MaxYear(records))
}

// FilterRecords returns, in order, the records that pass every predicate of
// state. anchorYear is the reference year for "last-3-years". The result is
// never nil.
func FilterRecords(records []models.Record, state models.FilterState, anchorYear int) []models.Record {
	keep := yearPredicate(state.DateRange, anchorYear)
	minRatio := float64(state.ProfitRatioMin)
	maxRatio := float64(state.ProfitRatioMax)

	filtered := make([]models.Record, 0, len(records))
	for _, r := range records {
		if !keep(r.Date) {
			continue
		}
		if state.Region != models.RegionAll && r.Region != state.Region {
			continue
		}
		if r.ProfitRatio < minRatio || r.ProfitRatio > maxRatio {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

func yearPredicate(dateRange string, anchorYear int) func(models.Date) bool {
	switch dateRange {
	case models.DateRangeAll, "":
		return func(models.Date) bool { return true }
	case models.DateRangeLast3Years:
		from := anchorYear - trailingYears
		return func(d models.Date) bool {
			return d.Valid() && d.Year() >= from
		}
	default:
		return func(d models.Date) bool {
			return d.Valid() && strconv.Itoa(d.Year()) == dateRange
		}
	}
}

// MaxYear returns the latest valid year among records, or 0.
func MaxYear(records []models.Record) int {
	maxYear := 0
	for _, r := range records {
		if r.Date.Valid() && r.Date.Year() > maxYear {
			maxYear = r.Date.Year()
		}
	}
	return maxYear
}
