package llm

import (
	"context"
	"log/slog"

	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/service"
)

// LogSink writes every fallback call event as a structured log record.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: common.OrDefault(logger)}
}

// RecordCall logs successes at debug and failures at warn.
func (s *LogSink) RecordCall(ctx context.Context, event service.CallEvent) {
	level := slog.LevelDebug
	if event.Outcome != service.OutcomeSuccess {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "Fallback classification call",
		"merchant", event.Merchant,
		"provider", event.Provider,
		"model", event.Model,
		"outcome", event.Outcome,
		"reason", event.Reason,
		"category", event.Category,
		"confidence", event.Confidence,
		"latency_ms", event.Latency.Milliseconds(),
		"attempts", event.Attempts,
		"prompt_tokens", event.PromptTokens,
		"completion_tokens", event.CompletionTokens,
		"cost_usd", event.CostUSD)
}

// MultiSink fans an event out to several sinks.
type MultiSink []service.EventSink

// RecordCall forwards event to every non-nil sink.
func (m MultiSink) RecordCall(ctx context.Context, event service.CallEvent) {
	for _, sink := range m {
		if sink != nil {
			sink.RecordCall(ctx, event)
		}
	}
}
