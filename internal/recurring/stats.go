package recurring

import (
	"math"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/shopspring/decimal"
)

const hoursPerDay = 24

// summary holds the statistics recomputed after every window change.
type summary struct {
	expected   decimal.Decimal
	rng        model.AmountRange
	intervals  []float64
	amounts    []float64
	amountCV   float64
	meanDays   float64
	stddevDays float64
}

func summarize(occs []model.Occurrence) summary {
	var s summary
	if len(occs) == 0 {
		return s
	}

	s.amounts = make([]float64, len(occs))
	total := decimal.Zero
	s.rng = model.AmountRange{Min: occs[0].Amount, Max: occs[0].Amount}
	for i, occ := range occs {
		s.amounts[i] = occ.Amount.InexactFloat64()
		total = total.Add(occ.Amount)
		if occ.Amount.LessThan(s.rng.Min) {
			s.rng.Min = occ.Amount
		}
		if occ.Amount.GreaterThan(s.rng.Max) {
			s.rng.Max = occ.Amount
		}
	}
	s.expected = total.Div(decimal.NewFromInt(int64(len(occs)))).Round(2)
	s.amountCV = coefficientOfVariation(s.amounts)

	for i := 1; i < len(occs); i++ {
		s.intervals = append(s.intervals, daysBetween(occs[i-1].PostedDate, occs[i].PostedDate))
	}
	s.meanDays, s.stddevDays = meanStddev(s.intervals)
	return s
}

func (s summary) intervalCV() float64 {
	if s.meanDays == 0 {
		return 0
	}
	return s.stddevDays / s.meanDays
}

// meanStddev returns the population mean and standard deviation.
func meanStddev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var squares float64
	for _, v := range values {
		diff := v - mean
		squares += diff * diff
	}
	return mean, math.Sqrt(squares / float64(len(values)))
}

func coefficientOfVariation(values []float64) float64 {
	mean, stddev := meanStddev(values)
	if mean == 0 {
		return 0
	}
	return stddev / math.Abs(mean)
}

// priceStep reports whether amounts split into an earlier run and a trailing
// run at the latest price, each individually stable under limit. It returns
// the index where the trailing run starts.
func priceStep(amounts []float64, limit float64) (int, bool) {
	for k := len(amounts) - 1; k >= 1; k-- {
		if coefficientOfVariation(amounts[:k]) < limit && coefficientOfVariation(amounts[k:]) < limit {
			return k, true
		}
	}
	return 0, false
}

func daysBetween(from, to time.Time) float64 {
	return math.Round(to.Sub(from).Hours() / hoursPerDay)
}

func addDays(t time.Time, days float64) time.Time {
	return t.Add(time.Duration(days * hoursPerDay * float64(time.Hour)))
}
