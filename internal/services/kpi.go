package services

import (
	"github.com/samber/lo"

	"superstore-dashboard/internal/models"
)

// CalculateKPIs reduces records to the dashboard's summary metrics. The
// boolean is false for an empty input, which has no meaningful summary.
//
// UniqueCustomers is count/3 (at least 1): the dataset has no customer key,
// so this is an estimate rather than an identity count.
func CalculateKPIs(records []models.Record) (models.KPISummary, bool) {
	if len(records) == 0 {
		return models.KPISummary{}, false
	}

	totalSales := lo.SumBy(records, func(r models.Record) float64 { return r.Sales })
	totalProfit := lo.SumBy(records, func(r models.Record) float64 { return r.Profit })
	totalDiscount := lo.SumBy(records, func(r models.Record) float64 { return r.Discount })

	profitRatio := 0.0
	if totalSales > 0 {
		profitRatio = totalProfit / totalSales * 100
	}

	orderDays := lo.Uniq(lo.Map(records, func(r models.Record, _ int) string { return r.Date.DayKey() }))

	return models.KPISummary{
		TotalSales:      totalSales,
		TotalProfit:     totalProfit,
		AvgDiscount:     totalDiscount / float64(len(records)),
		ProfitRatio:     profitRatio,
		UniqueOrders:    len(orderDays),
		UniqueCustomers: max(1, len(records)/3),
	}, true
}
