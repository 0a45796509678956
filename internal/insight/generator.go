// Package insight derives monthly cost estimates, actionable flags and
// spending summaries from recurring patterns and categorized transactions.
package insight

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/shopspring/decimal"
)

// daysPerMonth is the mean Gregorian month length.
var daysPerMonth = decimal.RequireFromString("30.4375")

// Config tunes insight flags.
type Config struct {
	PriceIncreaseThreshold float64 `mapstructure:"price_increase_threshold"`
	MissedCycleGraceDays   int     `mapstructure:"missed_cycle_grace_days"`
}

// DefaultConfig returns the standard flag thresholds.
func DefaultConfig() Config {
	return Config{
		PriceIncreaseThreshold: 0.10,
		MissedCycleGraceDays:   3,
	}
}

// Generator turns confirmed patterns into insights. It holds no state and
// is safe for concurrent use.
type Generator struct {
	logger *slog.Logger
	cfg    Config
}

// New creates a Generator.
func New(cfg Config, logger *slog.Logger) *Generator {
	if cfg.PriceIncreaseThreshold <= 0 {
		cfg.PriceIncreaseThreshold = DefaultConfig().PriceIncreaseThreshold
	}
	if cfg.MissedCycleGraceDays < 0 {
		cfg.MissedCycleGraceDays = 0
	}
	return &Generator{cfg: cfg, logger: common.OrDefault(logger)}
}

// Generate returns one insight per confirmed pattern, most expensive first.
func (g *Generator) Generate(patterns []model.RecurringPattern, asOf time.Time) []model.Insight {
	insights := make([]model.Insight, 0, len(patterns))
	for _, p := range patterns {
		if p.Status != model.StatusConfirmed {
			continue
		}
		occs := p.ActiveOccurrences()
		if len(occs) == 0 {
			continue
		}
		insights = append(insights, g.build(p, occs, asOf))
	}

	sort.SliceStable(insights, func(i, j int) bool {
		if !insights[i].MonthlyCostEstimate.Equal(insights[j].MonthlyCostEstimate) {
			return insights[i].MonthlyCostEstimate.GreaterThan(insights[j].MonthlyCostEstimate)
		}
		return insights[i].Key.String() < insights[j].Key.String()
	})
	return insights
}

func (g *Generator) build(p model.RecurringPattern, occs []model.Occurrence, asOf time.Time) model.Insight {
	latest := occs[len(occs)-1].Amount
	historical := latest
	if len(occs) > 1 {
		historical = meanAmount(occs[:len(occs)-1])
	}

	in := model.Insight{
		Key:                 p.Key,
		PatternType:         p.PatternType,
		MonthlyCostEstimate: monthlyCost(p),
		LatestAmount:        latest,
		HistoricalMean:      historical.Round(2),
		Flag:                model.FlagNone,
	}
	if historical.IsPositive() {
		in.ChangePercent = latest.Sub(historical).Div(historical).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}

	graceDeadline := p.NextExpectedDate.AddDate(0, 0, g.cfg.MissedCycleGraceDays)
	threshold := historical.Mul(decimal.NewFromFloat(1 + g.cfg.PriceIncreaseThreshold))

	switch {
	case p.PatternType == model.PatternFixedSubscription && !p.NextExpectedDate.IsZero() && asOf.After(graceDeadline):
		in.Flag = model.FlagCancellationOpportunity
		in.Detail = fmt.Sprintf("no charge since %s, expected by %s",
			p.LastSeenDate.Format(time.DateOnly), p.NextExpectedDate.Format(time.DateOnly))
	case len(occs) > 1 && latest.GreaterThan(threshold):
		in.Flag = model.FlagPriceIncrease
		in.Detail = fmt.Sprintf("latest charge %s is %.1f%% above the prior average of %s",
			latest.StringFixed(2), in.ChangePercent, historical.StringFixed(2))
	}

	if in.Flag != model.FlagNone {
		g.logger.Debug("insight flagged",
			"key", p.Key.String(),
			"flag", in.Flag,
			"change_percent", in.ChangePercent)
	}
	return in
}

// monthlyCost normalizes a pattern's expected amount to a monthly figure.
func monthlyCost(p model.RecurringPattern) decimal.Decimal {
	if p.PatternType == model.PatternIrregularAnnual {
		return p.ExpectedAmount.Div(decimal.NewFromInt(12)).Round(2)
	}
	if p.Interval.MeanDays <= 0 {
		return p.ExpectedAmount.Round(2)
	}
	return p.ExpectedAmount.Mul(daysPerMonth).Div(decimal.NewFromFloat(p.Interval.MeanDays)).Round(2)
}

func meanAmount(occs []model.Occurrence) decimal.Decimal {
	total := decimal.Zero
	for _, occ := range occs {
		total = total.Add(occ.Amount)
	}
	return total.Div(decimal.NewFromInt(int64(len(occs))))
}

// MonthlyTotal sums the monthly estimates of a set of insights.
func MonthlyTotal(insights []model.Insight) decimal.Decimal {
	total := decimal.Zero
	for _, in := range insights {
		total = total.Add(in.MonthlyCostEstimate)
	}
	return total
}
