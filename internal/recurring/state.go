package recurring

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
)

// patternState owns one merchant key's pattern. All reads and writes of
// pattern go through mu.
type patternState struct {
	pattern model.RecurringPattern
	mu      sync.Mutex
}

// insert adds occ to the window and re-evaluates the pattern. It reports
// false when the occurrence was already known or fell outside the window.
func insert(p *model.RecurringPattern, occ model.Occurrence, cfg Config) bool {
	for _, existing := range p.Occurrences {
		if existing.TransactionID == occ.TransactionID {
			return false
		}
	}

	if p.Status == model.StatusInactive && occ.PostedDate.After(p.LastSeenDate) {
		p.ActiveSince = occ.PostedDate
		p.Status = model.StatusCandidate
		p.PatternType = model.PatternNone
	}

	occs := make([]model.Occurrence, 0, len(p.Occurrences)+1)
	occs = append(occs, p.Occurrences...)
	occs = append(occs, occ)
	sortOccurrences(occs)
	if len(occs) > cfg.WindowSize {
		occs = occs[len(occs)-cfg.WindowSize:]
	}
	if !containsID(occs, occ.TransactionID) {
		return false
	}
	p.Occurrences = occs
	p.TotalObserved++

	evaluate(p, cfg)
	return true
}

// evaluate recomputes statistics and applies the state rules. Inactive
// patterns keep their status; only a newer occurrence reactivates them.
func evaluate(p *model.RecurringPattern, cfg Config) {
	if len(p.Occurrences) == 0 {
		return
	}
	p.LastSeenDate = p.Occurrences[len(p.Occurrences)-1].PostedDate

	active := p.ActiveOccurrences()
	s := summarize(active)

	p.ExpectedAmount = s.expected
	p.AmountRange = s.rng
	p.AmountCV = s.amountCV
	p.Interval = model.IntervalStats{MeanDays: s.meanDays, StddevDays: s.stddevDays}
	if s.meanDays > 0 {
		p.NextExpectedDate = p.LastSeenDate.AddDate(0, 0, int(math.Round(s.meanDays)))
	} else {
		p.NextExpectedDate = time.Time{}
	}

	patternType, status := classify(p.PatternType, s, cfg)
	if patternType == model.PatternFixedSubscription && s.amountCV >= cfg.FixedAmountCV {
		// price step: expect the current price, not the blended mean
		if k, ok := priceStep(s.amounts, cfg.FixedAmountCV); ok {
			p.ExpectedAmount = summarize(active[k:]).expected
		}
	}

	p.PatternType = patternType
	if p.Status != model.StatusInactive {
		p.Status = status
	}
}

func classify(previous model.PatternType, s summary, cfg Config) (model.PatternType, model.PatternStatus) {
	n := len(s.amounts)
	switch {
	case n < 2:
		return model.PatternNone, model.StatusCandidate
	case s.meanDays > cfg.AnnualIntervalDays:
		// Two charges a year apart only count when they look like the same bill.
		if s.amountCV > cfg.VariableAmountCV {
			return model.PatternNone, model.StatusCandidate
		}
		return model.PatternIrregularAnnual, model.StatusConfirmed
	case n < cfg.MinOccurrences:
		return model.PatternNone, model.StatusCandidate
	case s.intervalCV() > cfg.IntervalCV || s.meanDays < cfg.MinIntervalDays:
		return model.PatternNone, model.StatusCandidate
	case s.amountCV < cfg.FixedAmountCV:
		return model.PatternFixedSubscription, model.StatusConfirmed
	}

	if previous == model.PatternFixedSubscription {
		if _, ok := priceStep(s.amounts, cfg.FixedAmountCV); ok {
			return model.PatternFixedSubscription, model.StatusConfirmed
		}
	}
	if s.amountCV <= cfg.VariableAmountCV {
		return model.PatternVariableBill, model.StatusConfirmed
	}
	return model.PatternNone, model.StatusCandidate
}

// expire marks a confirmed pattern inactive once asOf passes the allowed gap.
func expire(p *model.RecurringPattern, asOf time.Time, cfg Config) bool {
	if p.Status != model.StatusConfirmed || p.Interval.MeanDays <= 0 {
		return false
	}
	deadline := addDays(p.LastSeenDate, cfg.InactiveMultiplier*p.Interval.MeanDays)
	if !asOf.After(deadline) {
		return false
	}
	p.Status = model.StatusInactive
	return true
}

func sortOccurrences(occs []model.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		if !occs[i].PostedDate.Equal(occs[j].PostedDate) {
			return occs[i].PostedDate.Before(occs[j].PostedDate)
		}
		return occs[i].TransactionID < occs[j].TransactionID
	})
}

func containsID(occs []model.Occurrence, id string) bool {
	for _, occ := range occs {
		if occ.TransactionID == id {
			return true
		}
	}
	return false
}
