package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/cache"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Classifications(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordClassification(model.SourceRule, model.CategoryDining)
	r.RecordClassification(model.SourceRule, model.CategoryDining)
	r.RecordClassification(model.SourceNone, model.CategoryUncategorized)
	r.RecordRejection("validation")

	assert.InDelta(t, 2, testutil.ToFloat64(r.classifications.WithLabelValues("rule", "Dining")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.classifications.WithLabelValues("none", "Uncategorized")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.rejections.WithLabelValues("validation")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(r.classifications))
}

func TestRecorder_RecordCall(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordCall(context.Background(), service.CallEvent{
		Provider:         "openai",
		Model:            "gpt-4o-mini",
		Outcome:          service.OutcomeSuccess,
		Latency:          120 * time.Millisecond,
		CostUSD:          0.002,
		PromptTokens:     80,
		CompletionTokens: 12,
		Attempts:         3,
	})
	r.RecordCall(context.Background(), service.CallEvent{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		Outcome:  service.OutcomeFailure,
		Reason:   "timeout",
		Latency:  3 * time.Second,
		Attempts: 1,
	})

	assert.InDelta(t, 1, testutil.ToFloat64(r.fallbackCalls.WithLabelValues("openai", "success", "")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.fallbackCalls.WithLabelValues("openai", "failure", "timeout")), 0)
	assert.InDelta(t, 0.002, testutil.ToFloat64(r.fallbackCost.WithLabelValues("openai", "gpt-4o-mini")), 1e-12)
	assert.InDelta(t, 80, testutil.ToFloat64(r.fallbackTokens.WithLabelValues("openai", "prompt")), 0)
	assert.InDelta(t, 12, testutil.ToFloat64(r.fallbackTokens.WithLabelValues("openai", "completion")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.fallbackRetries.WithLabelValues("openai")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(r.fallbackLatency))
}

func TestRecorder_Gauges(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.ObserveCache(cache.Stats{Hits: 7, Misses: 3, Computes: 2, Shared: 1, NegativeHits: 4}, 5)
	assert.InDelta(t, 7, testutil.ToFloat64(r.cacheEvents.WithLabelValues("hit")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(r.cacheEvents.WithLabelValues("negative_hit")), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(r.cacheEntries), 0)

	r.ObservePatterns([]model.RecurringPattern{
		{Status: model.StatusConfirmed, PatternType: model.PatternFixedSubscription},
		{Status: model.StatusConfirmed, PatternType: model.PatternFixedSubscription},
		{Status: model.StatusCandidate, PatternType: model.PatternNone},
	})
	assert.InDelta(t, 2, testutil.ToFloat64(r.patterns.WithLabelValues("confirmed", "fixed_subscription")), 0)

	r.ObservePatterns([]model.RecurringPattern{
		{Status: model.StatusInactive, PatternType: model.PatternFixedSubscription},
	})
	assert.Equal(t, 1, testutil.CollectAndCount(r.patterns), "gauges reset between observations")
}

func TestRecorder_TextfileExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	r.RecordClassification(model.SourceCache, model.CategoryGroceries)

	path := filepath.Join(t.TempDir(), "spice.prom")
	require.NoError(t, prometheus.WriteToTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `spice_classifications_total{category="Groceries",source="cache"} 1`))
}
