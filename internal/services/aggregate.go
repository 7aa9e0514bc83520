package services

import (
	"superstore-dashboard/internal/models"
)

// AggregateByMonth groups records by (month, dimension value) and sums
// sales and profit. Buckets come out in first-seen order; consumers that
// need chronological order must sort. Records with an invalid date share
// the "invalid" month so bucket totals always match the input totals.
func AggregateByMonth(records []models.Record, dim models.Dimension) []models.AggregateBucket {
	grouped := make(map[string]*models.AggregateBucket)
	order := make([]string, 0)

	for _, r := range records {
		value := r.DimensionValue(dim)
		key := r.Date.MonthKey() + "_" + value

		bucket, exists := grouped[key]
		if !exists {
			bucket = &models.AggregateBucket{
				Date:      r.Date.MonthStart(),
				Dimension: dim,
				Value:     value,
			}
			grouped[key] = bucket
			order = append(order, key)
		}
		bucket.Sales += r.Sales
		bucket.Profit += r.Profit
		bucket.Count++
	}

	result := make([]models.AggregateBucket, 0, len(order))
	for _, key := range order {
		result = append(result, *grouped[key])
	}
	return result
}

// AggregateByState totals records per state for the map view.
func AggregateByState(records []models.Record) []models.StateSummary {
	grouped := make(map[string]*models.StateSummary)
	order := make([]string, 0)

	for _, r := range records {
		summary, exists := grouped[r.State]
		if !exists {
			summary = &models.StateSummary{
				ID:     StateFIPS(r.State),
				State:  r.State,
				Region: r.Region,
			}
			grouped[r.State] = summary
			order = append(order, r.State)
		}
		summary.Sales += r.Sales
		summary.Profit += r.Profit
		summary.Count++
	}

	result := make([]models.StateSummary, 0, len(order))
	for _, state := range order {
		s := *grouped[state]
		if s.Sales > 0 {
			s.ProfitRatio = s.Profit / s.Sales * 100
		}
		result = append(result, s)
	}
	return result
}
