// Package recurring detects subscriptions, bills and annual charges from
// categorized transaction history.
package recurring

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/normalize"
)

const shardCount = 16

// accountBook holds every pattern for one account. Lock order is always
// book.mu before patternState.mu.
type accountBook struct {
	patterns map[string]*patternState
	aliases  map[string]string
	mu       sync.RWMutex
}

type shard struct {
	accounts map[string]*accountBook
	mu       sync.Mutex
}

// Detector maintains per merchant key pattern state. Updates for one key are
// serialized; different keys proceed in parallel.
type Detector struct {
	logger *slog.Logger
	now    func() time.Time
	shards [shardCount]*shard
	cfg    Config
}

// Option customizes a Detector.
type Option func(*Detector)

// WithClock overrides the clock used for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// New creates an empty detector.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Detector {
	d := &Detector{
		cfg:    cfg.withDefaults(),
		logger: common.OrDefault(logger),
		now:    time.Now,
	}
	for i := range d.shards {
		d.shards[i] = &shard{accounts: make(map[string]*accountBook)}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Observe feeds one categorized transaction into its merchant key's pattern.
// It returns the updated pattern and whether the transaction changed it.
// Credits (unless configured), zero amounts, unknown merchants and replays
// of an already-windowed transaction leave state untouched.
func (d *Detector) Observe(ctx context.Context, txn model.CategorizedTransaction) (model.RecurringPattern, bool) {
	if ctx.Err() != nil {
		return model.RecurringPattern{}, false
	}
	if !d.eligible(txn) {
		return model.RecurringPattern{}, false
	}

	occ := model.Occurrence{
		PostedDate:    txn.PostedDate,
		Amount:        txn.Amount.Abs(),
		TransactionID: txn.ID,
		RawMerchant:   txn.RawMerchant,
	}

	book := d.book(txn.AccountID, true)
	state := d.resolve(book, txn, occ)

	state.mu.Lock()
	defer state.mu.Unlock()

	before := state.pattern.Status
	changed := insert(&state.pattern, occ, d.cfg)
	if changed {
		if state.pattern.Category == "" || state.pattern.Category == model.CategoryUncategorized {
			state.pattern.Category = txn.Category
		}
		state.pattern.UpdatedAt = d.now()
		if before != state.pattern.Status {
			d.logger.Debug("recurring pattern transitioned",
				"key", state.pattern.Key.String(),
				"from", before,
				"to", state.pattern.Status,
				"type", state.pattern.PatternType)
		}
	}
	return state.pattern.Clone(), changed
}

func (d *Detector) eligible(txn model.CategorizedTransaction) bool {
	if txn.ID == "" || txn.AccountID == "" || txn.Amount.IsZero() {
		return false
	}
	if txn.NormalizedMerchant == "" || txn.NormalizedMerchant == normalize.Unknown {
		return false
	}
	return d.cfg.IncludeCredits || txn.IsDebit()
}

// resolve finds or creates the pattern state for a transaction's merchant,
// following recorded aliases and fuzzy renames.
func (d *Detector) resolve(book *accountBook, txn model.CategorizedTransaction, occ model.Occurrence) *patternState {
	merchant := txn.NormalizedMerchant

	book.mu.RLock()
	state := book.lookup(merchant)
	book.mu.RUnlock()
	if state != nil {
		return state
	}

	book.mu.Lock()
	defer book.mu.Unlock()

	if state := book.lookup(merchant); state != nil {
		return state
	}

	if similar, name := book.findSimilar(merchant, occ.Amount, occ.PostedDate, d.cfg); similar != nil {
		book.aliases[merchant] = name
		similar.mu.Lock()
		similar.pattern.Aliases = append(similar.pattern.Aliases, merchant)
		similar.mu.Unlock()
		d.logger.Debug("merged renamed merchant",
			"account", txn.AccountID,
			"merchant", merchant,
			"into", name)
		return similar
	}

	state = &patternState{pattern: model.RecurringPattern{
		Key:         model.MerchantKey{AccountID: txn.AccountID, Merchant: merchant},
		Status:      model.StatusCandidate,
		PatternType: model.PatternNone,
		Category:    txn.Category,
	}}
	book.patterns[merchant] = state
	return state
}

// lookup resolves merchant directly or through an alias. The caller holds
// book.mu.
func (b *accountBook) lookup(merchant string) *patternState {
	if state, ok := b.patterns[merchant]; ok {
		return state
	}
	if target, ok := b.aliases[merchant]; ok {
		return b.patterns[target]
	}
	return nil
}

func (d *Detector) book(accountID string, create bool) *accountBook {
	s := d.shards[shardFor(accountID)]
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.accounts[accountID]
	if !ok && create {
		book = &accountBook{
			patterns: make(map[string]*patternState),
			aliases:  make(map[string]string),
		}
		s.accounts[accountID] = book
	}
	return book
}

func shardFor(accountID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(accountID))
	return int(h.Sum32() % shardCount)
}

// Patterns returns the account's patterns as of asOf, demoting confirmed
// patterns whose expected occurrence is overdue. Results are sorted by
// merchant.
func (d *Detector) Patterns(accountID string, asOf time.Time) []model.RecurringPattern {
	book := d.book(accountID, false)
	if book == nil {
		return nil
	}
	out, _ := d.sweepBook(book, asOf)
	return out
}

// Sweep applies inactivation across every account and returns the patterns
// that transitioned.
func (d *Detector) Sweep(asOf time.Time) []model.RecurringPattern {
	var expired []model.RecurringPattern
	for _, book := range d.books() {
		_, changed := d.sweepBook(book, asOf)
		expired = append(expired, changed...)
	}
	sortPatterns(expired)
	return expired
}

func (d *Detector) sweepBook(book *accountBook, asOf time.Time) ([]model.RecurringPattern, []model.RecurringPattern) {
	book.mu.RLock()
	defer book.mu.RUnlock()

	all := make([]model.RecurringPattern, 0, len(book.patterns))
	var expired []model.RecurringPattern
	for _, state := range book.patterns {
		state.mu.Lock()
		if expire(&state.pattern, asOf, d.cfg) {
			state.pattern.UpdatedAt = d.now()
			expired = append(expired, state.pattern.Clone())
			d.logger.Debug("recurring pattern inactive",
				"key", state.pattern.Key.String(),
				"last_seen", state.pattern.LastSeenDate.Format(time.DateOnly))
		}
		all = append(all, state.pattern.Clone())
		state.mu.Unlock()
	}
	sortPatterns(all)
	return all, expired
}

// Snapshot returns a copy of every pattern, sorted by key.
func (d *Detector) Snapshot() []model.RecurringPattern {
	var out []model.RecurringPattern
	for _, book := range d.books() {
		book.mu.RLock()
		for _, state := range book.patterns {
			state.mu.Lock()
			out = append(out, state.pattern.Clone())
			state.mu.Unlock()
		}
		book.mu.RUnlock()
	}
	sortPatterns(out)
	return out
}

// Restore loads previously snapshotted patterns, replacing any existing
// state for the same keys.
func (d *Detector) Restore(patterns []model.RecurringPattern) {
	for _, p := range patterns {
		if p.Key.AccountID == "" || p.Key.Merchant == "" {
			continue
		}
		restored := p.Clone()
		sortOccurrences(restored.Occurrences)

		book := d.book(p.Key.AccountID, true)
		book.mu.Lock()
		book.patterns[p.Key.Merchant] = &patternState{pattern: restored}
		delete(book.aliases, p.Key.Merchant)
		for _, alias := range restored.Aliases {
			book.aliases[alias] = p.Key.Merchant
		}
		book.mu.Unlock()
	}
}

func (d *Detector) books() []*accountBook {
	var out []*accountBook
	for _, s := range d.shards {
		s.mu.Lock()
		for _, book := range s.accounts {
			out = append(out, book)
		}
		s.mu.Unlock()
	}
	return out
}

func sortPatterns(patterns []model.RecurringPattern) {
	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Key.String() < patterns[j].Key.String()
	})
}
