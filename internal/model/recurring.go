package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PatternType classifies what kind of recurring charge a pattern represents.
type PatternType string

// Recurring pattern types.
const (
	PatternFixedSubscription PatternType = "fixed_subscription"
	PatternVariableBill      PatternType = "variable_bill"
	PatternIrregularAnnual   PatternType = "irregular_annual"
	PatternNone              PatternType = "none"
)

// PatternStatus is the lifecycle state of a recurring pattern.
type PatternStatus string

// Recurring pattern states.
const (
	StatusCandidate PatternStatus = "candidate"
	StatusConfirmed PatternStatus = "confirmed"
	StatusInactive  PatternStatus = "inactive"
)

// MerchantKey groups transactions for recurring detection.
type MerchantKey struct {
	AccountID string `json:"account_id"`
	Merchant  string `json:"merchant"`
}

func (k MerchantKey) String() string {
	return k.AccountID + "|" + k.Merchant
}

// Occurrence is one transaction observed for a pattern.
type Occurrence struct {
	PostedDate    time.Time       `json:"posted_date"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id"`
	RawMerchant   string          `json:"raw_merchant"`
}

// AmountRange is the observed min/max charge for a pattern.
type AmountRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// IntervalStats summarizes the day gaps between occurrences.
type IntervalStats struct {
	MeanDays   float64 `json:"mean_days"`
	StddevDays float64 `json:"stddev_days"`
}

// RecurringPattern is the detector's state for one merchant key.
type RecurringPattern struct {
	LastSeenDate     time.Time       `json:"last_seen_date"`
	NextExpectedDate time.Time       `json:"next_expected_date"`
	ActiveSince      time.Time       `json:"active_since"`
	UpdatedAt        time.Time       `json:"updated_at"`
	ExpectedAmount   decimal.Decimal `json:"expected_amount"`
	Key              MerchantKey     `json:"key"`
	AmountRange      AmountRange     `json:"expected_amount_range"`
	PatternType      PatternType     `json:"pattern_type"`
	Status           PatternStatus   `json:"status"`
	Category         Category        `json:"category"`
	Occurrences      []Occurrence    `json:"occurrences"`
	Aliases          []string        `json:"aliases,omitempty"`
	Interval         IntervalStats   `json:"expected_interval_days"`
	AmountCV         float64         `json:"amount_cv"`
	TotalObserved    int             `json:"total_observed"`
}

// ActiveOccurrences returns the occurrences that count toward the current state.
func (p RecurringPattern) ActiveOccurrences() []Occurrence {
	if p.ActiveSince.IsZero() {
		return p.Occurrences
	}
	for i, occ := range p.Occurrences {
		if !occ.PostedDate.Before(p.ActiveSince) {
			return p.Occurrences[i:]
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand to callers.
func (p RecurringPattern) Clone() RecurringPattern {
	out := p
	out.Occurrences = append([]Occurrence(nil), p.Occurrences...)
	out.Aliases = append([]string(nil), p.Aliases...)
	return out
}
