// Package service defines the boundary interfaces between the classification
// core and its external collaborators.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate    *time.Time
	EndDate      *time.Time
	AccountID    string
	Limit        int
	Unclassified bool
}

// TransactionSource supplies transactions in batches. Ordering within a
// batch is not guaranteed.
type TransactionSource interface {
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
}

// RuleProvider supplies the category rule list for a processing session.
type RuleProvider interface {
	LoadRules(ctx context.Context) ([]model.CategoryRule, error)
}

// PatternStore persists recurring pattern snapshots between sessions.
type PatternStore interface {
	LoadPatterns(ctx context.Context) ([]model.RecurringPattern, error)
	SavePatterns(ctx context.Context, patterns []model.RecurringPattern) error
}

// Outcome is the result class of one fallback call.
type Outcome string

// Fallback call outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// CallEvent describes one outbound fallback classification call.
type CallEvent struct {
	StartedAt        time.Time
	Merchant         string
	Provider         string
	Model            string
	Category         model.Category
	Outcome          Outcome
	Reason           string
	Latency          time.Duration
	CostUSD          float64
	Confidence       float64
	PromptTokens     int
	CompletionTokens int
	Attempts         int
}

// EventSink receives one event per fallback call.
type EventSink interface {
	RecordCall(ctx context.Context, event CallEvent)
}

// ClassificationRecorder observes the source of every classified transaction.
type ClassificationRecorder interface {
	RecordClassification(source model.Source, category model.Category)
	RecordRejection(reason string)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
