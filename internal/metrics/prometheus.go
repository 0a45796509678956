// Package metrics exports classification, fallback and pattern activity as
// Prometheus metrics.
package metrics

import (
	"context"

	"github.com/Veraticus/the-spice-must-recur/internal/cache"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "spice"

// Recorder implements service.EventSink and service.ClassificationRecorder.
type Recorder struct {
	classifications *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	fallbackCalls   *prometheus.CounterVec
	fallbackLatency *prometheus.HistogramVec
	fallbackCost    *prometheus.CounterVec
	fallbackTokens  *prometheus.CounterVec
	fallbackRetries *prometheus.CounterVec
	cacheEvents     *prometheus.GaugeVec
	cacheEntries    prometheus.Gauge
	patterns        *prometheus.GaugeVec
}

var (
	_ service.EventSink              = (*Recorder)(nil)
	_ service.ClassificationRecorder = (*Recorder)(nil)
)

// New registers the metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifications_total",
				Help:      "Transactions classified, by source and category",
			},
			[]string{"source", "category"},
		),
		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_transactions_total",
				Help:      "Malformed transactions excluded from a batch",
			},
			[]string{"reason"},
		),
		fallbackCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_calls_total",
				Help:      "Outbound fallback classification calls",
			},
			[]string{"provider", "outcome", "reason"},
		),
		fallbackLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fallback_call_duration_seconds",
				Help:      "Fallback classification call latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8),
			},
			[]string{"provider"},
		),
		fallbackCost: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_cost_usd_total",
				Help:      "Estimated fallback spend in US dollars",
			},
			[]string{"provider", "model"},
		),
		fallbackTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_tokens_total",
				Help:      "Tokens consumed by fallback calls",
			},
			[]string{"provider", "kind"},
		),
		fallbackRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_retries_total",
				Help:      "Retried fallback attempts beyond the first",
			},
			[]string{"provider"},
		),
		cacheEvents: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "category_cache_events",
				Help:      "Category cache lookups since start, by kind",
			},
			[]string{"kind"},
		),
		cacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "category_cache_entries",
				Help:      "Entries currently held by the category cache",
			},
		),
		patterns: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "recurring_patterns",
				Help:      "Recurring patterns by status and type",
			},
			[]string{"status", "type"},
		),
	}
}

// RecordClassification counts one classified transaction.
func (r *Recorder) RecordClassification(source model.Source, category model.Category) {
	r.classifications.WithLabelValues(string(source), string(category)).Inc()
}

// RecordRejection counts one rejected transaction.
func (r *Recorder) RecordRejection(reason string) {
	r.rejections.WithLabelValues(reason).Inc()
}

// RecordCall records one fallback call event.
func (r *Recorder) RecordCall(_ context.Context, event service.CallEvent) {
	r.fallbackCalls.WithLabelValues(event.Provider, string(event.Outcome), event.Reason).Inc()
	r.fallbackLatency.WithLabelValues(event.Provider).Observe(event.Latency.Seconds())
	if event.CostUSD > 0 {
		r.fallbackCost.WithLabelValues(event.Provider, event.Model).Add(event.CostUSD)
	}
	if event.PromptTokens > 0 {
		r.fallbackTokens.WithLabelValues(event.Provider, "prompt").Add(float64(event.PromptTokens))
	}
	if event.CompletionTokens > 0 {
		r.fallbackTokens.WithLabelValues(event.Provider, "completion").Add(float64(event.CompletionTokens))
	}
	if event.Attempts > 1 {
		r.fallbackRetries.WithLabelValues(event.Provider).Add(float64(event.Attempts - 1))
	}
}

// ObserveCache publishes a snapshot of cache statistics.
func (r *Recorder) ObserveCache(stats cache.Stats, entries int) {
	r.cacheEvents.WithLabelValues("hit").Set(float64(stats.Hits))
	r.cacheEvents.WithLabelValues("negative_hit").Set(float64(stats.NegativeHits))
	r.cacheEvents.WithLabelValues("miss").Set(float64(stats.Misses))
	r.cacheEvents.WithLabelValues("compute").Set(float64(stats.Computes))
	r.cacheEvents.WithLabelValues("shared").Set(float64(stats.Shared))
	r.cacheEntries.Set(float64(entries))
}

// ObservePatterns replaces the pattern gauges with counts from patterns.
func (r *Recorder) ObservePatterns(patterns []model.RecurringPattern) {
	r.patterns.Reset()
	for _, p := range patterns {
		r.patterns.WithLabelValues(string(p.Status), string(p.PatternType)).Inc()
	}
}
