package insight

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/shopspring/decimal"
)

const (
	topMerchantLimit = 10
	stableBandPct    = 5.0
	minorPct         = 15.0
	moderatePct      = 30.0
	severePct        = 50.0
)

var hundred = decimal.NewFromInt(100)

// AnalyzeSpending summarizes debit spending in current and compares each
// category against previous, an equally long prior period.
func AnalyzeSpending(current, previous []model.CategorizedTransaction, periodDays int) model.SpendingSummary {
	summary := model.SpendingSummary{
		PeriodDays: periodDays,
		Total:      decimal.Zero,
	}

	merchants := make(map[string]*model.MerchantTotal)
	currentByCategory := make(map[model.Category]decimal.Decimal)
	for _, txn := range current {
		if !txn.IsDebit() {
			continue
		}
		amount := txn.Amount.Abs()
		summary.Total = summary.Total.Add(amount)
		currentByCategory[txn.Category] = currentByCategory[txn.Category].Add(amount)

		name := txn.NormalizedMerchant
		if name == "" {
			name = txn.RawMerchant
		}
		mt, ok := merchants[name]
		if !ok {
			mt = &model.MerchantTotal{Merchant: name, Total: decimal.Zero}
			merchants[name] = mt
		}
		mt.Total = mt.Total.Add(amount)
		mt.Count++
	}

	previousByCategory := totalsByCategory(previous)

	summary.TopMerchants = topMerchants(merchants, topMerchantLimit)
	summary.Categories = categoryBreakdown(currentByCategory, previousByCategory, summary.Total)
	summary.Anomalies = anomalies(summary.Categories)
	return summary
}

func totalsByCategory(txns []model.CategorizedTransaction) map[model.Category]decimal.Decimal {
	totals := make(map[model.Category]decimal.Decimal)
	for _, txn := range txns {
		if txn.IsDebit() {
			totals[txn.Category] = totals[txn.Category].Add(txn.Amount.Abs())
		}
	}
	return totals
}

func topMerchants(merchants map[string]*model.MerchantTotal, limit int) []model.MerchantTotal {
	out := make([]model.MerchantTotal, 0, len(merchants))
	for _, mt := range merchants {
		out = append(out, *mt)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Total.Equal(out[j].Total) {
			return out[i].Total.GreaterThan(out[j].Total)
		}
		return out[i].Merchant < out[j].Merchant
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func categoryBreakdown(current, previous map[model.Category]decimal.Decimal, total decimal.Decimal) []model.CategoryTotal {
	seen := make(map[model.Category]bool, len(current)+len(previous))
	var out []model.CategoryTotal
	add := func(category model.Category) {
		if seen[category] {
			return
		}
		seen[category] = true

		ct := model.CategoryTotal{
			Category: category,
			Total:    current[category],
			Previous: previous[category],
		}
		if total.IsPositive() {
			ct.Percent = ct.Total.Div(total).Mul(hundred).Round(2).InexactFloat64()
		}
		ct.Trend = trend(ct.Total, ct.Previous)
		out = append(out, ct)
	}
	for category := range current {
		add(category)
	}
	for category := range previous {
		add(category)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Total.Equal(out[j].Total) {
			return out[i].Total.GreaterThan(out[j].Total)
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func changePercent(current, previous decimal.Decimal) float64 {
	return current.Sub(previous).Div(previous).Mul(hundred).Round(2).InexactFloat64()
}

func trend(current, previous decimal.Decimal) model.TrendDirection {
	if previous.IsZero() {
		if current.IsPositive() {
			return model.TrendIncreasing
		}
		return model.TrendStable
	}
	change := changePercent(current, previous)
	switch {
	case change > stableBandPct:
		return model.TrendIncreasing
	case change < -stableBandPct:
		return model.TrendDecreasing
	default:
		return model.TrendStable
	}
}

var severityRank = map[model.Severity]int{
	model.SeveritySevere:   0,
	model.SeverityModerate: 1,
	model.SeverityMinor:    2,
}

func anomalies(categories []model.CategoryTotal) []model.SpendingAnomaly {
	var out []model.SpendingAnomaly
	for _, ct := range categories {
		if !ct.Previous.IsPositive() {
			continue
		}
		change := changePercent(ct.Total, ct.Previous)
		deviation := change
		if deviation < 0 {
			deviation = -deviation
		}

		var severity model.Severity
		switch {
		case deviation >= severePct:
			severity = model.SeveritySevere
		case deviation >= moderatePct:
			severity = model.SeverityModerate
		case deviation >= minorPct:
			severity = model.SeverityMinor
		default:
			continue
		}
		out = append(out, model.SpendingAnomaly{
			Category:         ct.Category,
			Current:          ct.Total,
			Previous:         ct.Previous,
			Severity:         severity,
			DeviationPercent: change,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		ri, rj := severityRank[out[i].Severity], severityRank[out[j].Severity]
		if ri != rj {
			return ri < rj
		}
		di, dj := abs(out[i].DeviationPercent), abs(out[j].DeviationPercent)
		if di != dj {
			return di > dj
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ParsePeriod converts a period like "30d", "4w" or "3m" into days.
func ParsePeriod(period string) (int, error) {
	period = strings.TrimSpace(strings.ToLower(period))
	if len(period) < 2 {
		return 0, fmt.Errorf("%w: invalid period %q", common.ErrInvalidInput, period)
	}

	unit := period[len(period)-1]
	n, err := strconv.Atoi(period[:len(period)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid period %q", common.ErrInvalidInput, period)
	}

	switch unit {
	case 'd':
		return n, nil
	case 'w':
		return n * 7, nil
	case 'm':
		return n * 30, nil
	case 'y':
		return n * 365, nil
	default:
		return 0, fmt.Errorf("%w: unknown period unit %q", common.ErrInvalidInput, string(unit))
	}
}
