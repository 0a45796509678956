package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/insight"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/pattern"
	"github.com/charmbracelet/lipgloss"
)

const dateFormat = "2006-01-02"

// table lays out rows in padded columns measured by display width.
type table struct {
	headers []string
	rows    [][]string
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render() string {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = TableCellStyle.Render(cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell)))
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}

	lines := []string{TableHeaderStyle.Render(line(t.headers))}
	for _, row := range t.rows {
		lines = append(lines, line(row))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func writeLines(w io.Writer, lines ...string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateFormat)
}

// RenderPatterns prints recurring patterns, most recently seen first.
func RenderPatterns(w io.Writer, patterns []model.RecurringPattern) error {
	if len(patterns) == 0 {
		return writeLines(w, SubtleStyle.Render("No recurring patterns detected yet."))
	}

	sorted := append([]model.RecurringPattern(nil), patterns...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastSeenDate.After(sorted[j].LastSeenDate)
	})

	t := &table{headers: []string{"MERCHANT", "TYPE", "STATUS", "AMOUNT", "EVERY", "LAST SEEN", "NEXT"}}
	for _, p := range sorted {
		every := "-"
		if p.Interval.MeanDays > 0 {
			every = fmt.Sprintf("%.0fd", p.Interval.MeanDays)
		}
		t.add(
			p.Key.Merchant,
			string(p.PatternType),
			statusStyle(p.Status).Render(string(p.Status)),
			p.ExpectedAmount.StringFixed(2),
			every,
			formatDate(p.LastSeenDate),
			formatDate(p.NextExpectedDate),
		)
	}
	return writeLines(w, FormatTitle(RepeatIcon+" Recurring charges"), t.render())
}

func statusStyle(status model.PatternStatus) lipgloss.Style {
	switch status {
	case model.StatusConfirmed:
		return SuccessStyle
	case model.StatusInactive:
		return SubtleStyle
	default:
		return InfoStyle
	}
}

// RenderInsights prints per-subscription insights and the monthly total.
func RenderInsights(w io.Writer, insights []model.Insight) error {
	if len(insights) == 0 {
		return writeLines(w, SubtleStyle.Render("No confirmed recurring charges."))
	}

	t := &table{headers: []string{"MERCHANT", "TYPE", "MONTHLY", "LATEST", "FLAG"}}
	var flagged []string
	for _, in := range insights {
		flag := ""
		switch in.Flag {
		case model.FlagPriceIncrease:
			flag = WarningStyle.Render("price increase")
		case model.FlagCancellationOpportunity:
			flag = ErrorStyle.Render("cancel?")
		}
		if in.Detail != "" {
			flagged = append(flagged, FormatWarning(in.Key.Merchant+": "+in.Detail))
		}
		t.add(
			in.Key.Merchant,
			string(in.PatternType),
			in.MonthlyCostEstimate.StringFixed(2),
			in.LatestAmount.StringFixed(2),
			flag,
		)
	}

	lines := []string{
		FormatTitle(ChartIcon + " Subscription insights"),
		t.render(),
		"",
		BoldStyle.Render("Estimated monthly total: " + insight.MonthlyTotal(insights).StringFixed(2)),
	}
	return writeLines(w, append(lines, flagged...)...)
}

// RenderSpending prints a spending summary with anomalies.
func RenderSpending(w io.Writer, summary model.SpendingSummary) error {
	lines := []string{
		FormatTitle(fmt.Sprintf("%s Spending over %d days: %s", ChartIcon, summary.PeriodDays, summary.Total.StringFixed(2))),
	}

	categories := &table{headers: []string{"CATEGORY", "TOTAL", "SHARE", "PREVIOUS", "TREND"}}
	for _, ct := range summary.Categories {
		categories.add(
			string(ct.Category),
			ct.Total.StringFixed(2),
			fmt.Sprintf("%.1f%%", ct.Percent),
			ct.Previous.StringFixed(2),
			trendArrow(ct.Trend),
		)
	}
	lines = append(lines, categories.render(), "")

	if len(summary.TopMerchants) > 0 {
		merchants := &table{headers: []string{"MERCHANT", "TOTAL", "COUNT"}}
		for _, mt := range summary.TopMerchants {
			merchants.add(mt.Merchant, mt.Total.StringFixed(2), fmt.Sprintf("%d", mt.Count))
		}
		lines = append(lines, BoldStyle.Render("Top merchants"), merchants.render(), "")
	}

	for _, a := range summary.Anomalies {
		msg := fmt.Sprintf("%s %s: %+.1f%% vs previous period (%s -> %s)",
			a.Severity, a.Category, a.DeviationPercent, a.Previous.StringFixed(2), a.Current.StringFixed(2))
		if a.Severity == model.SeveritySevere {
			lines = append(lines, FormatError(msg))
		} else {
			lines = append(lines, FormatWarning(msg))
		}
	}
	return writeLines(w, lines...)
}

func trendArrow(trend model.TrendDirection) string {
	switch trend {
	case model.TrendIncreasing:
		return ErrorStyle.Render("↑ increasing")
	case model.TrendDecreasing:
		return SuccessStyle.Render("↓ decreasing")
	default:
		return SubtleStyle.Render("→ stable")
	}
}

// BatchSummary is the outcome of one classify run.
type BatchSummary struct {
	BySource        map[model.Source]int
	RunID           string
	Categorized     int
	Rejected        int
	PatternsUpdated int
}

// RenderBatch prints the outcome of a classify run.
func RenderBatch(w io.Writer, s BatchSummary) error {
	sources := []model.Source{model.SourceRule, model.SourceCache, model.SourceFallback, model.SourceNone}
	parts := make([]string, 0, len(sources))
	for _, src := range sources {
		parts = append(parts, fmt.Sprintf("%s=%d", src, s.BySource[src]))
	}

	lines := []string{
		FormatSuccess(fmt.Sprintf("Classified %d transactions", s.Categorized)),
		SubtleStyle.Render("  run " + s.RunID),
		"  " + strings.Join(parts, " "),
	}
	if s.PatternsUpdated > 0 {
		lines = append(lines, FormatInfo(fmt.Sprintf("%d recurring patterns updated", s.PatternsUpdated)))
	}
	if s.Rejected > 0 {
		lines = append(lines, FormatWarning(fmt.Sprintf("%d malformed transactions rejected", s.Rejected)))
	}
	return writeLines(w, lines...)
}

// RenderRules prints rules in match order followed by validation findings.
func RenderRules(w io.Writer, rules []model.CategoryRule, issues []pattern.Issue) error {
	t := &table{headers: []string{"ID", "PRIORITY", "MATCH", "PATTERN", "CATEGORY", "NAME"}}
	for _, r := range rules {
		t.add(
			fmt.Sprintf("%d", r.ID),
			fmt.Sprintf("%d", r.Priority),
			string(r.MatchType),
			r.Pattern,
			string(r.Category),
			r.Name,
		)
	}

	lines := []string{FormatTitle(fmt.Sprintf("%d category rules", len(rules))), t.render()}
	for _, issue := range issues {
		lines = append(lines, FormatWarning(fmt.Sprintf("%s: %s", issue.Kind, issue.Message)))
	}
	if len(issues) == 0 {
		lines = append(lines, FormatSuccess("No shadowed or conflicting rules"))
	}
	return writeLines(w, lines...)
}
