// Package format renders dashboard numbers for people: grouped thousands,
// dollar signs and percent suffixes in US English.
package format

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"superstore-dashboard/internal/models"
)

// NoData is shown in place of a metric when the filtered set is empty.
const NoData = "No data"

func printer() *message.Printer {
	return message.NewPrinter(language.English)
}

// Dollars formats v as whole dollars, e.g. "$12,346" or "-$383".
func Dollars(v float64) string {
	return money(v, "%.0f")
}

// Cents formats v as dollars and cents, e.g. "$1,234.50".
func Cents(v float64) string {
	return money(v, "%.2f")
}

func money(v float64, verb string) string {
	v = finite(v)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + "$" + printer().Sprintf(verb, v)
}

// Percent formats v (already scaled to 0..100) with the given decimals.
func Percent(v float64, decimals int) string {
	return Number(v, decimals) + "%"
}

func Number(v float64, decimals int) string {
	v = finite(v)
	switch decimals {
	case 0:
		return printer().Sprintf("%.0f", v)
	case 1:
		return printer().Sprintf("%.1f", v)
	default:
		return printer().Sprintf("%.2f", v)
	}
}

// Month renders a date as "January 2006".
func Month(d models.Date) string {
	if !d.Valid() {
		return d.String()
	}
	return d.Format("January 2006")
}

// KPIs builds the six KPI field texts. ok=false yields NoData everywhere.
func KPIs(k models.KPISummary, ok bool) models.KPIDisplay {
	if !ok {
		return models.KPIDisplay{
			Sales:             NoData,
			Profit:            NoData,
			ProfitRatio:       NoData,
			ProfitPerOrder:    NoData,
			ProfitPerCustomer: NoData,
			Discount:          NoData,
		}
	}
	return models.KPIDisplay{
		Sales:             Dollars(k.TotalSales),
		Profit:            Dollars(k.TotalProfit),
		ProfitRatio:       Percent(k.ProfitRatio, 0),
		ProfitPerOrder:    Cents(k.ProfitPerOrder()),
		ProfitPerCustomer: Cents(k.ProfitPerCustomer()),
		Discount:          Percent(k.AvgDiscount*100, 0),
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	// avoid "-0"
	if v == 0 {
		return 0
	}
	return v
}
