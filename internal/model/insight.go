package model

import "github.com/shopspring/decimal"

// InsightFlag marks an actionable observation about a pattern.
type InsightFlag string

// Insight flags.
const (
	FlagPriceIncrease           InsightFlag = "price_increase"
	FlagCancellationOpportunity InsightFlag = "cancellation_opportunity"
	FlagNone                    InsightFlag = "none"
)

// Insight is a derived, read-only view of a confirmed pattern.
type Insight struct {
	MonthlyCostEstimate decimal.Decimal `json:"monthly_cost_estimate"`
	LatestAmount        decimal.Decimal `json:"latest_amount"`
	HistoricalMean      decimal.Decimal `json:"historical_mean"`
	Key                 MerchantKey     `json:"merchant_key"`
	PatternType         PatternType     `json:"pattern_type"`
	Flag                InsightFlag     `json:"flag"`
	Detail              string          `json:"detail,omitempty"`
	ChangePercent       float64         `json:"change_percent"`
}

// TrendDirection describes period-over-period spending movement.
type TrendDirection string

// Trend directions.
const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// Severity ranks a spending anomaly.
type Severity string

// Anomaly severities.
const (
	SeveritySevere   Severity = "severe"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

// MerchantTotal is the spend attributed to one normalized merchant.
type MerchantTotal struct {
	Total    decimal.Decimal `json:"total"`
	Merchant string          `json:"merchant"`
	Count    int             `json:"count"`
}

// CategoryTotal is the spend attributed to one category.
type CategoryTotal struct {
	Total    decimal.Decimal `json:"total"`
	Previous decimal.Decimal `json:"previous"`
	Category Category        `json:"category"`
	Trend    TrendDirection  `json:"trend"`
	Percent  float64         `json:"percent"`
}

// SpendingAnomaly flags a category whose spend deviates from the prior period.
type SpendingAnomaly struct {
	Current          decimal.Decimal `json:"current"`
	Previous         decimal.Decimal `json:"previous"`
	Category         Category        `json:"category"`
	Severity         Severity        `json:"severity"`
	DeviationPercent float64         `json:"deviation_percent"`
}

// SpendingSummary aggregates debit spending over a period.
type SpendingSummary struct {
	Total        decimal.Decimal   `json:"total"`
	TopMerchants []MerchantTotal   `json:"top_merchants"`
	Categories   []CategoryTotal   `json:"categories"`
	Anomalies    []SpendingAnomaly `json:"anomalies"`
	PeriodDays   int               `json:"period_days"`
}
