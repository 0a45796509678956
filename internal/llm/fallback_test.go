package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Classify(ctx context.Context, prompt string) (ClassificationResponse, error) {
	args := m.Called(ctx, prompt)
	return args.Get(0).(ClassificationResponse), args.Error(1)
}

type recordingSink struct {
	events []service.CallEvent
	mu     sync.Mutex
}

func (s *recordingSink) RecordCall(_ context.Context, event service.CallEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) all() []service.CallEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]service.CallEvent(nil), s.events...)
}

func testConfig() Config {
	return Config{
		Provider:            "openai",
		Model:               "gpt-test",
		Timeout:             200 * time.Millisecond,
		MaxConcurrent:       2,
		MaxRetries:          1,
		RetryDelay:          time.Millisecond,
		BreakerFailures:     3,
		BreakerReset:        time.Minute,
		CostPer1KPrompt:     0.5,
		CostPer1KCompletion: 1.5,
	}
}

func TestFallbackSuccess(t *testing.T) {
	client := &mockClient{}
	client.On("Classify", mock.Anything, mock.AnythingOfType("string")).Return(ClassificationResponse{
		Category:   "dining",
		Confidence: 0.83,
		Usage:      Usage{PromptTokens: 1000, CompletionTokens: 100},
	}, nil).Once()

	sink := &recordingSink{}
	f := NewFallback(client, testConfig(), sink, nil)

	category, confidence, err := f.Classify(context.Background(), "BLUE BOTTLE COFFEE")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryDining, category)
	assert.InDelta(t, 0.83, confidence, 1e-9)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, service.OutcomeSuccess, events[0].Outcome)
	assert.Equal(t, "BLUE BOTTLE COFFEE", events[0].Merchant)
	assert.Equal(t, "gpt-test", events[0].Model)
	assert.Equal(t, 1, events[0].Attempts)
	assert.InDelta(t, 0.65, events[0].CostUSD, 1e-9)
	client.AssertExpectations(t)
}

func TestFallbackFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(c *mockClient)
		reason   common.ReasonCode
		sentinel error
		attempts int
	}{
		{
			name: "timeout",
			setup: func(c *mockClient) {
				c.On("Classify", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
					<-args.Get(0).(context.Context).Done()
				}).Return(ClassificationResponse{}, context.DeadlineExceeded)
			},
			reason:   common.ReasonTimeout,
			sentinel: common.ErrClassificationTimeout,
			attempts: 1,
		},
		{
			name: "provider error retried then surfaced",
			setup: func(c *mockClient) {
				c.On("Classify", mock.Anything, mock.Anything).
					Return(ClassificationResponse{}, &common.RetryableError{Err: errors.New("502"), Retryable: true})
			},
			reason:   common.ReasonProviderError,
			sentinel: common.ErrClassificationProvider,
			attempts: 2,
		},
		{
			name: "non retryable provider error",
			setup: func(c *mockClient) {
				c.On("Classify", mock.Anything, mock.Anything).
					Return(ClassificationResponse{}, &common.RetryableError{Err: errors.New("401"), Retryable: false})
			},
			reason:   common.ReasonProviderError,
			sentinel: common.ErrClassificationProvider,
			attempts: 1,
		},
		{
			name: "category outside taxonomy",
			setup: func(c *mockClient) {
				c.On("Classify", mock.Anything, mock.Anything).
					Return(ClassificationResponse{Category: "Crypto", Confidence: 0.9}, nil)
			},
			reason:   common.ReasonInvalidResponse,
			sentinel: common.ErrClassificationProvider,
			attempts: 1,
		},
		{
			name: "confidence out of range",
			setup: func(c *mockClient) {
				c.On("Classify", mock.Anything, mock.Anything).
					Return(ClassificationResponse{Category: "Dining", Confidence: 4}, nil)
			},
			reason:   common.ReasonInvalidResponse,
			sentinel: common.ErrClassificationProvider,
			attempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{}
			tt.setup(client)
			sink := &recordingSink{}
			f := NewFallback(client, testConfig(), sink, nil)

			category, confidence, err := f.Classify(context.Background(), "ACME")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.reason, common.ReasonOf(err))
			assert.Equal(t, model.CategoryUncategorized, category)
			assert.Zero(t, confidence)

			events := sink.all()
			require.Len(t, events, 1)
			assert.Equal(t, service.OutcomeFailure, events[0].Outcome)
			assert.Equal(t, string(tt.reason), events[0].Reason)
			assert.Equal(t, tt.attempts, events[0].Attempts)
		})
	}
}

func TestFallbackTimeoutBoundsCall(t *testing.T) {
	client := &mockClient{}
	client.On("Classify", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(ClassificationResponse{}, context.DeadlineExceeded)

	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	f := NewFallback(client, cfg, &recordingSink{}, nil)

	start := time.Now()
	_, _, err := f.Classify(context.Background(), "SLOW")
	assert.ErrorIs(t, err, common.ErrClassificationTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFallbackCircuitOpens(t *testing.T) {
	client := &mockClient{}
	client.On("Classify", mock.Anything, mock.Anything).
		Return(ClassificationResponse{}, &common.RetryableError{Err: errors.New("500"), Retryable: false})

	cfg := testConfig()
	cfg.BreakerFailures = 2
	sink := &recordingSink{}
	f := NewFallback(client, cfg, sink, nil)

	for range 2 {
		_, _, err := f.Classify(context.Background(), "ACME")
		assert.ErrorIs(t, err, common.ErrClassificationProvider)
	}

	_, _, err := f.Classify(context.Background(), "ACME")
	assert.ErrorIs(t, err, common.ErrCircuitOpen)
	assert.Equal(t, common.ReasonCircuitOpen, common.ReasonOf(err))
	client.AssertNumberOfCalls(t, "Classify", 2)

	events := sink.all()
	require.Len(t, events, 3)
	assert.Zero(t, events[2].Attempts)
}

type gaugeClient struct {
	current atomic.Int32
	peak    atomic.Int32
}

func (g *gaugeClient) Classify(_ context.Context, _ string) (ClassificationResponse, error) {
	n := g.current.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	g.current.Add(-1)
	return ClassificationResponse{Category: "Shopping", Confidence: 0.5}, nil
}

func TestFallbackConcurrencyCap(t *testing.T) {
	client := &gaugeClient{}
	cfg := testConfig()
	cfg.MaxConcurrent = 3
	cfg.Timeout = 5 * time.Second
	f := NewFallback(client, cfg, &recordingSink{}, nil)

	var wg sync.WaitGroup
	for range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.Classify(context.Background(), "STORE")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, client.peak.Load(), int32(3))
	assert.Positive(t, client.peak.Load())
}

func TestFallbackCategoriesOption(t *testing.T) {
	client := &mockClient{}
	client.On("Classify", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "- Dining\n") && !strings.Contains(p, "- Travel\n")
	})).Return(ClassificationResponse{Category: "Dining", Confidence: 1}, nil)

	f := NewFallback(client, testConfig(), &recordingSink{}, nil,
		WithCategories([]model.Category{model.CategoryDining}))

	_, _, err := f.Classify(context.Background(), "CAFE")
	require.NoError(t, err)
	client.AssertExpectations(t)
}

type slowClient struct {
	delay time.Duration
	calls atomic.Int32
}

func (c *slowClient) Classify(ctx context.Context, _ string) (ClassificationResponse, error) {
	c.calls.Add(1)
	select {
	case <-time.After(c.delay):
		return ClassificationResponse{Category: "Shopping", Confidence: 0.7}, nil
	case <-ctx.Done():
		return ClassificationResponse{}, ctx.Err()
	}
}

func TestFallbackQueueWaitIsNotAFailure(t *testing.T) {
	client := &slowClient{delay: 60 * time.Millisecond}
	cfg := testConfig()
	cfg.Timeout = 100 * time.Millisecond
	cfg.MaxConcurrent = 1
	cfg.BreakerFailures = 2
	sink := &recordingSink{}
	f := NewFallback(client, cfg, sink, nil)

	var wg sync.WaitGroup
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			category, _, err := f.Classify(context.Background(), fmt.Sprintf("STORE %c", 'A'+i))
			assert.NoError(t, err)
			assert.Equal(t, model.CategoryShopping, category)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(6), client.calls.Load())
	assert.Equal(t, breakerClosed, f.breaker.current())
	for _, event := range sink.all() {
		assert.Equal(t, service.OutcomeSuccess, event.Outcome)
		assert.Equal(t, 1, event.Attempts)
	}

	_, _, err := f.Classify(context.Background(), "STORE Z")
	assert.NoError(t, err)
}

func TestFallbackCanceledWhileQueued(t *testing.T) {
	client := &slowClient{delay: time.Second}
	cfg := testConfig()
	cfg.Timeout = 5 * time.Second
	cfg.MaxConcurrent = 1
	cfg.BreakerFailures = 1
	f := NewFallback(client, cfg, &recordingSink{}, nil)

	holderCtx, stopHolder := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = f.Classify(holderCtx, "HOLDER")
	}()
	require.Eventually(t, func() bool { return client.calls.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := f.Classify(ctx, "QUEUED")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, common.ErrClassificationTimeout)
	assert.Equal(t, common.ReasonCanceled, common.ReasonOf(err))

	stopHolder()
	<-done
	assert.Equal(t, breakerClosed, f.breaker.current())
	assert.Equal(t, int32(1), client.calls.Load())
}
