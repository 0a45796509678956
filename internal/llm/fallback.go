package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/service"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Fallback classifies merchants the rule set missed. Every call is bounded by
// the configured timeout and shares one concurrency gate, so outbound cost is
// capped no matter how many transactions are in flight. Failures never
// block: callers get an error carrying a reason code and treat the merchant
// as uncategorized.
type Fallback struct {
	client     Client
	sink       service.EventSink
	logger     *slog.Logger
	sem        *semaphore.Weighted
	limiter    *rate.Limiter
	breaker    *circuitBreaker
	now        func() time.Time
	categories []model.Category
	cfg        Config
}

// FallbackOption customizes a Fallback.
type FallbackOption func(*Fallback)

// WithClock overrides the time source used for latency and the breaker.
func WithClock(now func() time.Time) FallbackOption {
	return func(f *Fallback) {
		f.now = now
		f.breaker.now = now
	}
}

// WithCategories restricts the categories offered to the model.
func WithCategories(categories []model.Category) FallbackOption {
	return func(f *Fallback) {
		f.categories = append([]model.Category(nil), categories...)
	}
}

// NewFallback wraps client with the limits in cfg. A nil sink logs events.
func NewFallback(client Client, cfg Config, sink service.EventSink, logger *slog.Logger, opts ...FallbackOption) *Fallback {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaults.MaxConcurrent
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}

	logger = common.OrDefault(logger)
	if sink == nil {
		sink = NewLogSink(logger)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RateLimit))
	}

	f := &Fallback{
		client:     client,
		cfg:        cfg,
		sink:       sink,
		logger:     logger,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter:    rate.NewLimiter(limit, cfg.MaxConcurrent),
		breaker:    newCircuitBreaker(cfg.BreakerFailures, cfg.BreakerReset, time.Now),
		now:        time.Now,
		categories: model.AllCategories(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Classify asks the provider for merchant's category. Errors are
// *common.ClassificationError values.
func (f *Fallback) Classify(ctx context.Context, merchant string) (model.Category, float64, error) {
	start := f.now()
	event := service.CallEvent{
		StartedAt: start,
		Merchant:  merchant,
		Provider:  f.cfg.Provider,
		Model:     f.cfg.Model,
	}

	category, confidence, err := f.classify(ctx, merchant, &event)

	event.Latency = f.now().Sub(start)
	if err != nil {
		event.Outcome = service.OutcomeFailure
		event.Reason = string(common.ReasonOf(err))
		event.Category = model.CategoryUncategorized
	} else {
		event.Outcome = service.OutcomeSuccess
		event.Category = category
		event.Confidence = confidence
	}
	f.sink.RecordCall(ctx, event)

	if err != nil {
		return model.CategoryUncategorized, 0, err
	}
	return category, confidence, nil
}

func (f *Fallback) classify(ctx context.Context, merchant string, event *service.CallEvent) (model.Category, float64, error) {
	if !f.breaker.allow() {
		return "", 0, common.NewClassificationError(common.ReasonCircuitOpen, nil)
	}

	// Waiting for the gate is bounded by the caller, not the per-call timeout.
	if err := f.sem.Acquire(ctx, 1); err != nil {
		f.breaker.abandon()
		return "", 0, waitError(err)
	}
	defer f.sem.Release(1)

	if err := f.limiter.Wait(ctx); err != nil {
		f.breaker.abandon()
		return "", 0, waitError(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	prompt := buildPrompt(merchant, f.categories)
	var resp ClassificationResponse
	err := common.WithRetry(callCtx, func() error {
		event.Attempts++
		var callErr error
		resp, callErr = f.client.Classify(callCtx, prompt)
		return callErr
	}, service.RetryOptions{
		MaxAttempts:  f.cfg.MaxRetries + 1,
		InitialDelay: f.cfg.RetryDelay,
		MaxDelay:     f.cfg.Timeout / 2,
		Multiplier:   2,
	})

	event.PromptTokens = resp.Usage.PromptTokens
	event.CompletionTokens = resp.Usage.CompletionTokens
	event.CostUSD = f.cost(resp.Usage)

	if err != nil {
		switch {
		case ctx.Err() != nil:
			f.breaker.abandon()
			return "", 0, waitError(ctx.Err())
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			f.breaker.recordFailure()
			return "", 0, common.NewClassificationError(common.ReasonTimeout, err)
		case errors.Is(err, ErrInvalidResponse):
			f.breaker.recordSuccess()
			return "", 0, common.NewClassificationError(common.ReasonInvalidResponse, err)
		default:
			f.breaker.recordFailure()
			return "", 0, common.NewClassificationError(common.ReasonProviderError, err)
		}
	}
	f.breaker.recordSuccess()

	category, err := model.ParseCategory(resp.Category)
	if err != nil {
		return "", 0, common.NewClassificationError(common.ReasonInvalidResponse, err)
	}
	confidence := resp.Confidence
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return "", 0, common.NewClassificationError(common.ReasonInvalidResponse,
			fmt.Errorf("confidence %v outside [0,1]", resp.Confidence))
	}

	return category, confidence, nil
}

// waitError labels a failure that happened before the provider was called.
func waitError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return common.NewClassificationError(common.ReasonCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return common.NewClassificationError(common.ReasonTimeout, err)
	default:
		return common.NewClassificationError(common.ReasonRateLimited, err)
	}
}

func (f *Fallback) cost(u Usage) float64 {
	return float64(u.PromptTokens)/1000*f.cfg.CostPer1KPrompt +
		float64(u.CompletionTokens)/1000*f.cfg.CostPer1KCompletion
}
