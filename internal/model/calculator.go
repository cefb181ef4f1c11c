package model

import (
	"sort"

	"github.com/shopspring/decimal"
)

// MaterialCost is the sheet purchase cost for one material of a result.
type MaterialCost struct {
	Material      string          `json:"material"`
	Boards        int             `json:"boards"`
	PricePerSheet decimal.Decimal `json:"price_per_sheet"`
	Currency      string          `json:"currency"`
	Total         decimal.Decimal `json:"total"`
	UsedAreaM2    float64         `json:"used_area_m2"`
	WasteAreaM2   float64         `json:"waste_area_m2"`
}

// CostSummary holds per-material costs and totals per currency.
type CostSummary struct {
	Materials []MaterialCost             `json:"materials"`
	Totals    map[string]decimal.Decimal `json:"totals"` // Currency -> amount
}

const sqmmPerSqm = 1_000_000.0

// CalculateCost prices the boards of a result with the stock catalog. Price
// and currency never influence placement; this is reporting only.
func CalculateCost(result Result, settings Settings) CostSummary {
	byMaterial := map[string]*MaterialCost{}
	var order []string

	for _, b := range result.Boards {
		mc, ok := byMaterial[b.Material]
		if !ok {
			sm, _ := settings.Stock(b.Material)
			currency := sm.Currency
			if currency == "" {
				currency = DefaultCurrency
			}
			mc = &MaterialCost{
				Material:      b.Material,
				PricePerSheet: decimal.NewFromFloat(sm.Price).Round(2),
				Currency:      currency,
				Total:         decimal.Zero,
			}
			byMaterial[b.Material] = mc
			order = append(order, b.Material)
		}
		mc.Boards++
		mc.Total = mc.Total.Add(mc.PricePerSheet)
		mc.UsedAreaM2 += b.UsedArea() / sqmmPerSqm
		mc.WasteAreaM2 += b.WasteArea() / sqmmPerSqm
	}

	sort.Strings(order)
	summary := CostSummary{Totals: map[string]decimal.Decimal{}}
	for _, m := range order {
		mc := *byMaterial[m]
		summary.Materials = append(summary.Materials, mc)
		summary.Totals[mc.Currency] = summary.Totals[mc.Currency].Add(mc.Total)
	}
	return summary
}
