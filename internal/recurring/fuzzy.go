package recurring

import (
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
)

// similarNames reports the edit distance between two merchant names and
// whether it is small enough to treat them as one merchant.
func similarNames(a, b string, maxDistance int) (int, bool) {
	if maxDistance <= 0 || a == b {
		return 0, false
	}
	shorter := len(a)
	if len(b) < shorter {
		shorter = len(b)
	}
	distance := levenshtein.ComputeDistance(a, b)
	return distance, distance <= maxDistance && distance*3 < shorter
}

// plausibleContinuation checks that an occurrence fits an existing pattern
// by amount and timing.
func plausibleContinuation(p *model.RecurringPattern, amount decimal.Decimal, posted time.Time, cfg Config) bool {
	if len(p.Occurrences) == 0 {
		return false
	}

	expected := p.ExpectedAmount
	if expected.IsZero() {
		expected = p.Occurrences[len(p.Occurrences)-1].Amount
	}
	tolerance := expected.Mul(decimal.NewFromFloat(cfg.FuzzyAmountTolerance))
	if amount.Sub(expected).Abs().GreaterThan(tolerance) {
		return false
	}

	gap := daysBetween(p.LastSeenDate, posted)
	if p.Interval.MeanDays > 0 {
		return gap >= p.Interval.MeanDays/2
	}
	return gap >= cfg.MinIntervalDays
}

// findSimilar returns the closest existing merchant in book that the new
// occurrence plausibly continues. The caller holds book.mu.
func (b *accountBook) findSimilar(merchant string, amount decimal.Decimal, posted time.Time, cfg Config) (*patternState, string) {
	var (
		best     *patternState
		bestName string
		bestDist int
	)
	for name, state := range b.patterns {
		dist, ok := similarNames(merchant, name, cfg.MaxEditDistance)
		if !ok {
			continue
		}
		if best != nil && (dist > bestDist || (dist == bestDist && name > bestName)) {
			continue
		}

		state.mu.Lock()
		fits := plausibleContinuation(&state.pattern, amount, posted, cfg)
		state.mu.Unlock()
		if !fits {
			continue
		}
		best, bestName, bestDist = state, name, dist
	}
	return best, bestName
}
