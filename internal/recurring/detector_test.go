package recurring

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/normalize"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return base.AddDate(0, 0, n)
}

func charge(id, account, raw string, offset int, amount string) model.CategorizedTransaction {
	return model.CategorizedTransaction{
		Transaction: model.Transaction{
			ID:          id,
			AccountID:   account,
			PostedDate:  day(offset),
			Amount:      decimal.RequireFromString(amount).Neg(),
			RawMerchant: raw,
		},
		NormalizedMerchant: normalize.Merchant(raw),
		Category:           model.CategorySubscriptions,
		Source:             model.SourceRule,
		Confidence:         1,
	}
}

func newTestDetector(cfg Config) *Detector {
	return New(cfg, nil, WithClock(func() time.Time { return base }))
}

func netflixCharges() []model.CategorizedTransaction {
	return []model.CategorizedTransaction{
		charge("nf-1", "acct", "NETFLIX.COM", 0, "9.99"),
		charge("nf-2", "acct", "NETFLIX.COM", 30, "9.99"),
		charge("nf-3", "acct", "NETFLIX.COM", 58, "9.99"),
		charge("nf-4", "acct", "NETFLIX.COM", 90, "9.99"),
	}
}

func TestDetector_FixedSubscriptionConfirmsOnThirdOccurrence(t *testing.T) {
	d := newTestDetector(DefaultConfig())
	ctx := context.Background()

	want := []struct {
		status      model.PatternStatus
		patternType model.PatternType
	}{
		{model.StatusCandidate, model.PatternNone},
		{model.StatusCandidate, model.PatternNone},
		{model.StatusConfirmed, model.PatternFixedSubscription},
		{model.StatusConfirmed, model.PatternFixedSubscription},
	}

	var last model.RecurringPattern
	for i, txn := range netflixCharges() {
		p, changed := d.Observe(ctx, txn)
		require.True(t, changed)
		assert.Equal(t, want[i].status, p.Status, "after occurrence %d", i+1)
		assert.Equal(t, want[i].patternType, p.PatternType, "after occurrence %d", i+1)
		last = p
	}

	assert.Equal(t, model.MerchantKey{AccountID: "acct", Merchant: "NETFLIX"}, last.Key)
	assert.Equal(t, "9.99", last.ExpectedAmount.StringFixed(2))
	assert.InDelta(t, 30.0, last.Interval.MeanDays, 0.001)
	assert.Equal(t, day(90), last.LastSeenDate)
	assert.Equal(t, day(120), last.NextExpectedDate)
	assert.Equal(t, 4, last.TotalObserved)
	assert.Equal(t, model.CategorySubscriptions, last.Category)
	assert.InDelta(t, 0, last.AmountCV, 1e-9)
}

func TestDetector_Inactivation(t *testing.T) {
	d := newTestDetector(DefaultConfig())
	for _, txn := range netflixCharges() {
		d.Observe(context.Background(), txn)
	}

	patterns := d.Patterns("acct", day(150))
	require.Len(t, patterns, 1)
	assert.Equal(t, model.StatusConfirmed, patterns[0].Status, "exactly two intervals is still active")

	assert.Empty(t, d.Sweep(day(150)))

	expired := d.Sweep(day(151))
	require.Len(t, expired, 1)
	assert.Equal(t, model.StatusInactive, expired[0].Status)

	patterns = d.Patterns("acct", day(400))
	require.Len(t, patterns, 1)
	assert.Equal(t, model.StatusInactive, patterns[0].Status)
	assert.Len(t, patterns[0].Occurrences, 4, "inactive patterns keep history")
	assert.Empty(t, d.Sweep(day(400)), "already inactive patterns do not transition again")
}

func TestDetector_ReplayIsIdempotent(t *testing.T) {
	d := newTestDetector(DefaultConfig())
	ctx := context.Background()
	charges := netflixCharges()

	for _, txn := range charges {
		d.Observe(ctx, txn)
	}
	before := d.Snapshot()

	for _, txn := range charges {
		p, changed := d.Observe(ctx, txn)
		assert.False(t, changed)
		assert.Len(t, p.Occurrences, 4)
	}
	assert.Equal(t, before, d.Snapshot())
}

func TestDetector_OutOfOrderArrival(t *testing.T) {
	ctx := context.Background()
	charges := netflixCharges()

	ordered := newTestDetector(DefaultConfig())
	for _, txn := range charges {
		ordered.Observe(ctx, txn)
	}

	shuffled := newTestDetector(DefaultConfig())
	for _, i := range []int{2, 0, 3, 1} {
		shuffled.Observe(ctx, charges[i])
	}

	assert.Equal(t, ordered.Snapshot(), shuffled.Snapshot())

	p := shuffled.Snapshot()[0]
	for i := 1; i < len(p.Occurrences); i++ {
		assert.True(t, p.Occurrences[i-1].PostedDate.Before(p.Occurrences[i].PostedDate))
	}
}

func TestDetector_Classification(t *testing.T) {
	tests := []struct {
		name       string
		offsets    []int
		amounts    []string
		wantType   model.PatternType
		wantStatus model.PatternStatus
		wantAmount string
	}{
		{
			name:       "variable utility bill",
			offsets:    []int{0, 31, 61, 92},
			amounts:    []string{"80.00", "120.00", "95.00", "110.00"},
			wantType:   model.PatternVariableBill,
			wantStatus: model.StatusConfirmed,
			wantAmount: "101.25",
		},
		{
			name:       "annual premium after two charges",
			offsets:    []int{0, 365},
			amounts:    []string{"1200.00", "1250.00"},
			wantType:   model.PatternIrregularAnnual,
			wantStatus: model.StatusConfirmed,
			wantAmount: "1225.00",
		},
		{
			name:       "unrelated purchases a year apart stay candidate",
			offsets:    []int{0, 320},
			amounts:    []string{"1499.00", "12.99"},
			wantType:   model.PatternNone,
			wantStatus: model.StatusCandidate,
			wantAmount: "756.00",
		},
		{
			name:       "erratic intervals stay candidate",
			offsets:    []int{0, 5, 40, 45},
			amounts:    []string{"20.00", "20.00", "20.00", "20.00"},
			wantType:   model.PatternNone,
			wantStatus: model.StatusCandidate,
			wantAmount: "20.00",
		},
		{
			name:       "wildly varying amounts stay candidate",
			offsets:    []int{0, 30, 60, 90},
			amounts:    []string{"5.00", "300.00", "12.00", "150.00"},
			wantType:   model.PatternNone,
			wantStatus: model.StatusCandidate,
			wantAmount: "116.75",
		},
		{
			name:       "daily purchases are not recurring",
			offsets:    []int{0, 1, 2, 3, 4},
			amounts:    []string{"4.50", "4.50", "4.50", "4.50", "4.50"},
			wantType:   model.PatternNone,
			wantStatus: model.StatusCandidate,
			wantAmount: "4.50",
		},
		{
			name:       "two monthly charges are not enough",
			offsets:    []int{0, 30},
			amounts:    []string{"15.00", "15.00"},
			wantType:   model.PatternNone,
			wantStatus: model.StatusCandidate,
			wantAmount: "15.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDetector(DefaultConfig())
			var p model.RecurringPattern
			for i, offset := range tt.offsets {
				p, _ = d.Observe(context.Background(),
					charge(fmt.Sprintf("t-%d", i), "acct", "CITY POWER", offset, tt.amounts[i]))
			}
			assert.Equal(t, tt.wantType, p.PatternType)
			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Equal(t, tt.wantAmount, p.ExpectedAmount.StringFixed(2))
		})
	}
}

func TestDetector_PriceStepKeepsFixedSubscription(t *testing.T) {
	d := newTestDetector(DefaultConfig())
	ctx := context.Background()
	for i, amount := range []string{"9.99", "9.99", "9.99", "11.49"} {
		d.Observe(ctx, charge(fmt.Sprintf("p-%d", i), "acct", "SPOTIFY USA", i*30, amount))
	}

	p := d.Snapshot()[0]
	assert.Equal(t, model.PatternFixedSubscription, p.PatternType)
	assert.Equal(t, model.StatusConfirmed, p.Status)
	assert.Equal(t, "11.49", p.ExpectedAmount.StringFixed(2))
	assert.Equal(t, "9.99", p.AmountRange.Min.StringFixed(2))
	assert.Equal(t, "11.49", p.AmountRange.Max.StringFixed(2))
}

func TestDetector_IgnoredTransactions(t *testing.T) {
	ctx := context.Background()

	credit := charge("c-1", "acct", "ACME PAYROLL", 0, "1500.00")
	credit.Amount = credit.Amount.Neg()

	unknown := charge("u-1", "acct", "#### 1234", 0, "10.00")

	zero := charge("z-1", "acct", "NETFLIX", 0, "0")

	d := newTestDetector(DefaultConfig())
	for _, txn := range []model.CategorizedTransaction{credit, unknown, zero} {
		_, changed := d.Observe(ctx, txn)
		assert.False(t, changed, txn.ID)
	}
	assert.Empty(t, d.Snapshot())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, changed := d.Observe(cancelled, charge("n-1", "acct", "NETFLIX", 0, "9.99"))
	assert.False(t, changed)

	cfg := DefaultConfig()
	cfg.IncludeCredits = true
	withCredits := newTestDetector(cfg)
	p, changed := withCredits.Observe(ctx, credit)
	require.True(t, changed)
	assert.Equal(t, "1500.00", p.Occurrences[0].Amount.StringFixed(2))
}

func TestDetector_FuzzyMerge(t *testing.T) {
	ctx := context.Background()

	seed := func() *Detector {
		d := newTestDetector(DefaultConfig())
		for i := range 3 {
			d.Observe(ctx, charge(fmt.Sprintf("h-%d", i), "acct", "HULU", i*30, "17.99"))
			d.Observe(ctx, charge(fmt.Sprintf("n-%d", i), "acct", "NETFLIX", i*30, "15.49"))
		}
		return d
	}

	t.Run("renamed merchant continues the pattern", func(t *testing.T) {
		d := seed()
		p, changed := d.Observe(ctx, charge("n-3", "acct", "NETFLX", 90, "15.49"))
		require.True(t, changed)
		assert.Equal(t, "NETFLIX", p.Key.Merchant)
		assert.Equal(t, []string{"NETFLX"}, p.Aliases)
		assert.Len(t, p.Occurrences, 4)
		assert.Equal(t, model.StatusConfirmed, p.Status)

		p, changed = d.Observe(ctx, charge("n-4", "acct", "NETFLX", 120, "15.49"))
		require.True(t, changed)
		assert.Equal(t, "NETFLIX", p.Key.Merchant)
		assert.Len(t, p.Occurrences, 5)
		assert.Len(t, d.Patterns("acct", day(120)), 2)
	})

	tests := []struct {
		name string
		txn  model.CategorizedTransaction
	}{
		{"amount too different", charge("x-1", "acct", "NETFLX", 90, "49.99")},
		{"too soon after last charge", charge("x-2", "acct", "NETFLX", 65, "15.49")},
		{"other account", charge("x-3", "other", "NETFLX", 90, "15.49")},
		{"name too different", charge("x-4", "acct", "NETGEAR", 90, "15.49")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := seed()
			p, changed := d.Observe(ctx, tt.txn)
			require.True(t, changed)
			assert.NotEqual(t, "NETFLIX", p.Key.Merchant)
			assert.Equal(t, model.StatusCandidate, p.Status)
			assert.Len(t, p.Occurrences, 1)
		})
	}
}

func TestSimilarNames(t *testing.T) {
	tests := []struct {
		a, b     string
		wantDist int
		wantOK   bool
	}{
		{"NETFLIX", "NETFLX", 1, true},
		{"SPOTIFY USA", "SPOTIFY US", 1, true},
		{"HULU", "HUL", 1, false},
		{"NETFLIX", "NETFLIX", 0, false},
		{"AMAZON PRIME", "AMAZON PRIMEVIDEO", 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			dist, ok := similarNames(tt.a, tt.b, 2)
			assert.Equal(t, tt.wantDist, dist)
			assert.Equal(t, tt.wantOK, ok)
		})
	}

	_, ok := similarNames("NETFLIX", "NETFLX", 0)
	assert.False(t, ok, "zero distance disables merging")
}

func TestDetector_Reactivation(t *testing.T) {
	d := newTestDetector(DefaultConfig())
	ctx := context.Background()
	for i := range 3 {
		d.Observe(ctx, charge(fmt.Sprintf("g-%d", i), "acct", "PLANET FITNESS", i*30, "24.99"))
	}
	require.Len(t, d.Sweep(day(200)), 1)

	p, changed := d.Observe(ctx, charge("g-backfill", "acct", "PLANET FITNESS", 15, "24.99"))
	require.True(t, changed)
	assert.Equal(t, model.StatusInactive, p.Status, "backfill does not reactivate")

	p, changed = d.Observe(ctx, charge("g-3", "acct", "PLANET FITNESS", 210, "29.99"))
	require.True(t, changed)
	assert.Equal(t, model.StatusCandidate, p.Status)
	assert.Equal(t, model.PatternNone, p.PatternType)
	assert.Equal(t, day(210), p.ActiveSince)
	assert.Len(t, p.Occurrences, 5)
	assert.Equal(t, "29.99", p.ExpectedAmount.StringFixed(2))

	d.Observe(ctx, charge("g-4", "acct", "PLANET FITNESS", 240, "29.99"))
	p, _ = d.Observe(ctx, charge("g-5", "acct", "PLANET FITNESS", 270, "29.99"))
	assert.Equal(t, model.StatusConfirmed, p.Status)
	assert.Equal(t, model.PatternFixedSubscription, p.PatternType)
	assert.Len(t, p.ActiveOccurrences(), 3)
}

func TestDetector_WindowIsBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 3
	d := newTestDetector(cfg)
	ctx := context.Background()

	for i := range 5 {
		d.Observe(ctx, charge(fmt.Sprintf("w-%d", i), "acct", "DROPBOX", i*30, "11.99"))
	}
	p := d.Snapshot()[0]
	require.Len(t, p.Occurrences, 3)
	assert.Equal(t, "w-2", p.Occurrences[0].TransactionID)
	assert.Equal(t, 5, p.TotalObserved)

	_, changed := d.Observe(ctx, charge("w-0", "acct", "DROPBOX", 0, "11.99"))
	assert.False(t, changed, "evicted history does not re-enter the window")
	assert.Equal(t, 5, d.Snapshot()[0].TotalObserved)
}

func TestDetector_SnapshotRestore(t *testing.T) {
	ctx := context.Background()
	d := newTestDetector(DefaultConfig())
	for i := range 3 {
		d.Observe(ctx, charge(fmt.Sprintf("n-%d", i), "acct", "NETFLIX", i*30, "15.49"))
	}
	d.Observe(ctx, charge("n-3", "acct", "NETFLX", 90, "15.49"))

	restored := newTestDetector(DefaultConfig())
	restored.Restore(d.Snapshot())
	assert.Equal(t, d.Snapshot(), restored.Snapshot())

	p, changed := restored.Observe(ctx, charge("n-4", "acct", "NETFLX", 120, "15.49"))
	require.True(t, changed)
	assert.Equal(t, "NETFLIX", p.Key.Merchant, "aliases survive restore")
	assert.Len(t, p.Occurrences, 5)
}

func TestDetector_ConcurrentObserve(t *testing.T) {
	d := newTestDetector(DefaultConfig())
	merchants := []string{"NETFLIX", "HULU", "SPOTIFY", "DROPBOX", "ICLOUD", "AUDIBLE", "PELOTON", "PATREON"}
	accounts := []string{"checking", "credit"}

	var txns []model.CategorizedTransaction
	for _, account := range accounts {
		for _, merchant := range merchants {
			for i := range 12 {
				txns = append(txns, charge(fmt.Sprintf("%s-%s-%d", account, merchant, i), account, merchant, i*30, "10.00"))
			}
		}
	}
	// replays race with first deliveries
	txns = append(txns, txns[:40]...)
	rand.New(rand.NewSource(7)).Shuffle(len(txns), func(i, j int) { txns[i], txns[j] = txns[j], txns[i] })

	var wg sync.WaitGroup
	ch := make(chan model.CategorizedTransaction)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for txn := range ch {
				d.Observe(context.Background(), txn)
			}
		}()
	}
	for _, txn := range txns {
		ch <- txn
	}
	close(ch)
	wg.Wait()

	snapshot := d.Snapshot()
	require.Len(t, snapshot, len(merchants)*len(accounts))
	for _, p := range snapshot {
		assert.Len(t, p.Occurrences, 12, p.Key.String())
		assert.Equal(t, 12, p.TotalObserved, p.Key.String())
		assert.Equal(t, model.PatternFixedSubscription, p.PatternType, p.Key.String())
		assert.Equal(t, model.StatusConfirmed, p.Status, p.Key.String())
	}
}
