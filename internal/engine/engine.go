// Package engine implements the batch classification pipeline: normalize,
// match rules, consult the shared cache and fallback, then feed recurring
// pattern detection.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/cache"
	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/insight"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/normalize"
	"github.com/Veraticus/the-spice-must-recur/internal/pattern"
	"github.com/Veraticus/the-spice-must-recur/internal/recurring"
	"github.com/Veraticus/the-spice-must-recur/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Fallback classifies merchants that no rule matched.
type Fallback interface {
	Classify(ctx context.Context, merchant string) (model.Category, float64, error)
}

// Config holds configuration options for the classification engine.
type Config struct {
	Workers int `mapstructure:"workers"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Workers: 8}
}

// Deps are the collaborators an Engine orchestrates. Nil fields get
// defaults: the standard normalizer, no rules, a fresh cache, no fallback,
// a default detector and generator.
type Deps struct {
	Normalizer *normalize.Normalizer
	Rules      *pattern.RuleSet
	Cache      *cache.CategoryCache
	Fallback   Fallback
	Detector   *recurring.Detector
	Insights   *insight.Generator
	Recorder   service.ClassificationRecorder
	Logger     *slog.Logger
	Now        func() time.Time
}

// BatchResult holds one categorized transaction per valid input, in input
// order, plus the inputs rejected as malformed.
type BatchResult struct {
	RunID           string
	Categorized     []model.CategorizedTransaction
	Rejected        []model.RejectedTransaction
	PatternsUpdated int
}

// Engine orchestrates transaction classification.
type Engine struct {
	normalizer *normalize.Normalizer
	rules      *pattern.RuleSet
	cache      *cache.CategoryCache
	fallback   Fallback
	detector   *recurring.Detector
	insights   *insight.Generator
	recorder   service.ClassificationRecorder
	logger     *slog.Logger
	validate   *validator.Validate
	now        func() time.Time
	workers    int
}

// New creates an engine with the given dependencies.
func New(deps Deps, cfg Config) *Engine {
	e := &Engine{
		normalizer: deps.Normalizer,
		rules:      deps.Rules,
		cache:      deps.Cache,
		fallback:   deps.Fallback,
		detector:   deps.Detector,
		insights:   deps.Insights,
		recorder:   deps.Recorder,
		logger:     common.OrDefault(deps.Logger),
		validate:   newValidator(),
		now:        deps.Now,
		workers:    cfg.Workers,
	}
	if e.normalizer == nil {
		e.normalizer = normalize.New(normalize.DefaultConfig())
	}
	if e.cache == nil {
		e.cache = cache.New(cache.DefaultOptions())
	}
	if e.detector == nil {
		e.detector = recurring.New(recurring.DefaultConfig(), e.logger)
	}
	if e.insights == nil {
		e.insights = insight.New(insight.DefaultConfig(), e.logger)
	}
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.workers <= 0 {
		e.workers = DefaultConfig().Workers
	}
	return e
}

// Classify categorizes a batch. Malformed transactions are rejected
// individually; fallback failures become uncategorized results with a
// reason code. Only cache corruption or context cancellation fail the
// batch.
func (e *Engine) Classify(ctx context.Context, txns []model.Transaction) (BatchResult, error) {
	result := BatchResult{RunID: uuid.NewString()}

	valid := make([]model.Transaction, 0, len(txns))
	for i, txn := range txns {
		if err := e.validateTransaction(i, txn); err != nil {
			result.Rejected = append(result.Rejected, model.RejectedTransaction{
				Index:       i,
				Transaction: txn,
				Reason:      err.Error(),
				Err:         err,
			})
			e.recorder.RecordRejection("validation")
			e.logger.Warn("rejected malformed transaction",
				"index", i,
				"transaction_id", txn.ID,
				"error", err)
			continue
		}
		valid = append(valid, txn)
	}

	categorized, err := e.classifyAll(ctx, valid)
	if err != nil {
		return BatchResult{}, err
	}

	for i := range categorized {
		categorized[i].RunID = result.RunID
		e.recorder.RecordClassification(categorized[i].Source, categorized[i].Category)
	}
	result.Categorized = categorized

	e.logger.Debug("classified batch",
		"run_id", result.RunID,
		"categorized", len(result.Categorized),
		"rejected", len(result.Rejected))
	return result, nil
}

// classifyAll runs a fixed pool of workers over txns, writing results by
// index so output order matches input order.
func (e *Engine) classifyAll(ctx context.Context, txns []model.Transaction) ([]model.CategorizedTransaction, error) {
	results := make([]model.CategorizedTransaction, len(txns))
	if len(txns) == 0 {
		return results, ctx.Err()
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		fatal     error
		fatalOnce sync.Once
		wg        sync.WaitGroup
	)
	jobs := make(chan int)

	workers := e.workers
	if workers > len(txns) {
		workers = len(txns)
	}
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := e.classifyOne(workCtx, txns[i])
				if err != nil {
					fatalOnce.Do(func() {
						fatal = err
						cancel()
					})
					continue
				}
				results[i] = res
			}
		}()
	}

dispatch:
	for i := range txns {
		select {
		case jobs <- i:
		case <-workCtx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if fatal != nil {
		return nil, fatal
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) classifyOne(ctx context.Context, txn model.Transaction) (model.CategorizedTransaction, error) {
	normalized := e.normalizer.Normalize(txn.RawMerchant)

	if category, confidence, ok := e.rules.Match(normalized); ok {
		return e.stamp(model.CategorizedTransaction{
			Transaction:        txn,
			NormalizedMerchant: normalized,
			Category:           category,
			Confidence:         confidence,
			Source:             model.SourceRule,
		}), nil
	}

	if e.fallback == nil {
		return e.stamp(model.Unclassified(txn, normalized, string(common.ReasonNoFallback))), nil
	}

	lookup, err := e.cache.GetOrCompute(ctx, normalized, func(ctx context.Context) (model.Category, float64, error) {
		return e.fallback.Classify(ctx, normalized)
	})
	if err != nil {
		if errors.Is(err, common.ErrCacheCorruption) {
			e.logger.Error("category cache corrupted", "merchant", normalized, "error", err)
		}
		return model.CategorizedTransaction{}, fmt.Errorf("classify %s: %w", txn.ID, err)
	}

	if lookup.Negative {
		reason := lookup.Reason
		if lookup.Cached {
			reason = common.ReasonNegativeCache
		}
		return e.stamp(model.Unclassified(txn, normalized, string(reason))), nil
	}

	source := model.SourceFallback
	if lookup.Cached {
		source = model.SourceCache
	}
	return e.stamp(model.CategorizedTransaction{
		Transaction:        txn,
		NormalizedMerchant: normalized,
		Category:           lookup.Category,
		Confidence:         lookup.Confidence,
		Source:             source,
	}), nil
}

func (e *Engine) stamp(ct model.CategorizedTransaction) model.CategorizedTransaction {
	ct.ClassifiedAt = e.now()
	return ct
}

// Process classifies a batch and feeds every result into recurring
// pattern detection.
func (e *Engine) Process(ctx context.Context, txns []model.Transaction) (BatchResult, error) {
	result, err := e.Classify(ctx, txns)
	if err != nil {
		return result, err
	}
	for _, ct := range result.Categorized {
		if _, changed := e.detector.Observe(ctx, ct); changed {
			result.PatternsUpdated++
		}
	}
	return result, ctx.Err()
}

// Observe feeds already categorized transactions into pattern detection.
func (e *Engine) Observe(ctx context.Context, categorized []model.CategorizedTransaction) int {
	updated := 0
	for _, ct := range categorized {
		if _, changed := e.detector.Observe(ctx, ct); changed {
			updated++
		}
	}
	return updated
}

// DetectRecurring returns the current pattern state for an account.
func (e *Engine) DetectRecurring(ctx context.Context, accountID string) ([]model.RecurringPattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", common.ErrInvalidInput)
	}
	return e.detector.Patterns(accountID, e.now()), nil
}

// GenerateInsights derives insights from the account's confirmed patterns.
func (e *Engine) GenerateInsights(ctx context.Context, accountID string) ([]model.Insight, error) {
	patterns, err := e.DetectRecurring(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return e.insights.Generate(patterns, e.now()), nil
}

// Detector exposes the engine's pattern detector for snapshot and restore.
func (e *Engine) Detector() *recurring.Detector {
	return e.detector
}

type nopRecorder struct{}

func (nopRecorder) RecordClassification(model.Source, model.Category) {}
func (nopRecorder) RecordRejection(string) {}
