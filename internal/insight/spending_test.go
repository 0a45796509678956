package insight

import (
	"fmt"
	"testing"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spend(merchant string, category model.Category, amount string) model.CategorizedTransaction {
	return model.CategorizedTransaction{
		Transaction: model.Transaction{
			ID:          merchant + amount,
			AccountID:   "acct",
			PostedDate:  base,
			Amount:      decimal.RequireFromString(amount),
			RawMerchant: merchant,
		},
		NormalizedMerchant: merchant,
		Category:           category,
	}
}

func TestAnalyzeSpending(t *testing.T) {
	current := []model.CategorizedTransaction{
		spend("WHOLE FOODS", model.CategoryGroceries, "-120.00"),
		spend("WHOLE FOODS", model.CategoryGroceries, "-80.00"),
		spend("CHIPOTLE", model.CategoryDining, "-50.00"),
		spend("NETFLIX", model.CategorySubscriptions, "-15.00"),
		spend("SHELL", model.CategoryTransportation, "-35.00"),
		spend("ACME PAYROLL", model.CategoryIncome, "2500.00"),
	}
	previous := []model.CategorizedTransaction{
		spend("WHOLE FOODS", model.CategoryGroceries, "-195.00"),
		spend("CHIPOTLE", model.CategoryDining, "-100.00"),
		spend("NETFLIX", model.CategorySubscriptions, "-15.00"),
		spend("SHELL", model.CategoryTransportation, "-25.00"),
		spend("UNITED", model.CategoryTravel, "-400.00"),
	}

	summary := AnalyzeSpending(current, previous, 30)

	assert.Equal(t, 30, summary.PeriodDays)
	assert.Equal(t, "300.00", summary.Total.StringFixed(2), "credits are excluded")

	require.NotEmpty(t, summary.TopMerchants)
	assert.Equal(t, "WHOLE FOODS", summary.TopMerchants[0].Merchant)
	assert.Equal(t, 2, summary.TopMerchants[0].Count)
	assert.Equal(t, "200.00", summary.TopMerchants[0].Total.StringFixed(2))

	byCategory := map[model.Category]model.CategoryTotal{}
	for _, ct := range summary.Categories {
		byCategory[ct.Category] = ct
	}
	assert.InDelta(t, 66.67, byCategory[model.CategoryGroceries].Percent, 0.01)
	assert.Equal(t, model.TrendStable, byCategory[model.CategoryGroceries].Trend)
	assert.Equal(t, model.TrendDecreasing, byCategory[model.CategoryDining].Trend)
	assert.Equal(t, model.TrendStable, byCategory[model.CategorySubscriptions].Trend)
	assert.Equal(t, model.TrendIncreasing, byCategory[model.CategoryTransportation].Trend)
	assert.Equal(t, model.TrendDecreasing, byCategory[model.CategoryTravel].Trend)
	assert.Equal(t, "0.00", byCategory[model.CategoryTravel].Total.StringFixed(2))
	assert.NotContains(t, byCategory, model.CategoryIncome)

	require.Len(t, summary.Anomalies, 3)
	assert.Equal(t, model.CategoryTravel, summary.Anomalies[0].Category)
	assert.Equal(t, model.SeveritySevere, summary.Anomalies[0].Severity)
	assert.InDelta(t, -100.0, summary.Anomalies[0].DeviationPercent, 0.001)
	assert.Equal(t, model.CategoryDining, summary.Anomalies[1].Category)
	assert.Equal(t, model.SeveritySevere, summary.Anomalies[1].Severity)
	assert.Equal(t, model.CategoryTransportation, summary.Anomalies[2].Category)
	assert.Equal(t, model.SeverityModerate, summary.Anomalies[2].Severity)
}

func TestAnalyzeSpending_AnomalyThresholds(t *testing.T) {
	tests := []struct {
		current string
		want    model.Severity
	}{
		{"-110.00", ""},
		{"-115.00", model.SeverityMinor},
		{"-130.00", model.SeverityModerate},
		{"-150.00", model.SeveritySevere},
		{"-80.00", model.SeverityMinor},
	}
	for _, tt := range tests {
		t.Run(tt.current, func(t *testing.T) {
			summary := AnalyzeSpending(
				[]model.CategorizedTransaction{spend("CAFE", model.CategoryDining, tt.current)},
				[]model.CategorizedTransaction{spend("CAFE", model.CategoryDining, "-100.00")},
				30)
			if tt.want == "" {
				assert.Empty(t, summary.Anomalies)
				return
			}
			require.Len(t, summary.Anomalies, 1)
			assert.Equal(t, tt.want, summary.Anomalies[0].Severity)
		})
	}
}

func TestAnalyzeSpending_TopMerchantsLimit(t *testing.T) {
	var current []model.CategorizedTransaction
	for i := range 15 {
		current = append(current, spend(fmt.Sprintf("SHOP %02d", i), model.CategoryShopping, fmt.Sprintf("-%d.00", 10+i)))
	}

	summary := AnalyzeSpending(current, nil, 7)
	require.Len(t, summary.TopMerchants, 10)
	assert.Equal(t, "SHOP 14", summary.TopMerchants[0].Merchant)
	assert.Equal(t, "SHOP 05", summary.TopMerchants[9].Merchant)
	require.Len(t, summary.Categories, 1)
	assert.Equal(t, model.TrendIncreasing, summary.Categories[0].Trend)
	assert.InDelta(t, 100.0, summary.Categories[0].Percent, 0.001)
	assert.Empty(t, summary.Anomalies)
}
