package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
)

// MockFallback is a deterministic Fallback for tests. It categorizes by
// merchant keyword and records every call.
type MockFallback struct {
	// Errors forces a failure for the listed normalized merchants.
	Errors map[string]error
	// Delay is slept before answering, honoring ctx.
	Delay time.Duration
	calls []MockFallbackCall
	mu    sync.Mutex
}

// MockFallbackCall records one classification request.
type MockFallbackCall struct {
	Error      error
	Merchant   string
	Category   model.Category
	Confidence float64
}

// NewMockFallback creates a new mock fallback.
func NewMockFallback() *MockFallback {
	return &MockFallback{Errors: make(map[string]error)}
}

// Classify returns a keyword-derived category for merchant.
func (m *MockFallback) Classify(ctx context.Context, merchant string) (model.Category, float64, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return model.CategoryUncategorized, 0, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.Errors[merchant]; ok {
		m.calls = append(m.calls, MockFallbackCall{Merchant: merchant, Category: model.CategoryUncategorized, Error: err})
		return model.CategoryUncategorized, 0, err
	}

	lower := strings.ToLower(merchant)
	var (
		category   model.Category
		confidence float64
	)
	switch {
	case strings.Contains(lower, "coffee") || strings.Contains(lower, "cafe") || strings.Contains(lower, "grill"):
		category, confidence = model.CategoryDining, 0.92
	case strings.Contains(lower, "market") || strings.Contains(lower, "grocery"):
		category, confidence = model.CategoryGroceries, 0.95
	case strings.Contains(lower, "gas") || strings.Contains(lower, "fuel"):
		category, confidence = model.CategoryTransportation, 0.90
	case strings.Contains(lower, "fitness") || strings.Contains(lower, "gym"):
		category, confidence = model.CategoryHealthcare, 0.75
	case strings.Contains(lower, "stream") || strings.Contains(lower, "plus"):
		category, confidence = model.CategorySubscriptions, 0.88
	default:
		category, confidence = model.CategoryShopping, 0.55
	}

	m.calls = append(m.calls, MockFallbackCall{Merchant: merchant, Category: category, Confidence: confidence})
	return category, confidence, nil
}

// Calls returns all recorded calls for verification in tests.
func (m *MockFallback) Calls() []MockFallbackCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]MockFallbackCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns the number of times Classify answered.
func (m *MockFallback) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears all recorded calls.
func (m *MockFallback) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
