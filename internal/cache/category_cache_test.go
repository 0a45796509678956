package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func constant(category model.Category, confidence float64, calls *atomic.Int32) ComputeFunc {
	return func(context.Context) (model.Category, float64, error) {
		calls.Add(1)
		return category, confidence, nil
	}
}

func TestSingleFlight(t *testing.T) {
	c := New(DefaultOptions())
	defer c.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (model.Category, float64, error) {
		calls.Add(1)
		<-release
		return model.CategorySubscriptions, 0.92, nil
	}

	const callers = 100
	var started, done sync.WaitGroup
	results := make([]Lookup, callers)
	errs := make([]error, callers)

	for i := range callers {
		started.Add(1)
		done.Add(1)
		go func() {
			defer done.Done()
			started.Done()
			results[i], errs[i] = c.GetOrCompute(context.Background(), "NETFLIX", compute)
		}()
	}

	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	done.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, model.CategorySubscriptions, results[i].Category)
		assert.InDelta(t, 0.92, results[i].Confidence, 1e-9)
		assert.False(t, results[i].Negative)
	}
	assert.Equal(t, int64(1), c.Stats().Computes)
}

func TestDistinctKeysComputeIndependently(t *testing.T) {
	c := New(DefaultOptions())
	var calls atomic.Int32

	for _, key := range []string{"A", "B", "C"} {
		_, err := c.GetOrCompute(context.Background(), key, constant(model.CategoryShopping, 0.8, &calls))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, c.Len())
}

func TestCacheHitAndTTL(t *testing.T) {
	clock := newFakeClock()
	c := New(Options{TTL: 24 * time.Hour, NegativeTTL: time.Hour, Now: clock.Now})
	var calls atomic.Int32
	ctx := context.Background()

	first, err := c.GetOrCompute(ctx, "SPOTIFY", constant(model.CategorySubscriptions, 0.9, &calls))
	require.NoError(t, err)
	assert.False(t, first.Cached)

	clock.Advance(23 * time.Hour)
	second, err := c.GetOrCompute(ctx, "SPOTIFY", constant(model.CategorySubscriptions, 0.9, &calls))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Hour)
	third, err := c.GetOrCompute(ctx, "SPOTIFY", constant(model.CategoryEntertainment, 0.7, &calls))
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, model.CategoryEntertainment, third.Category)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNegativeEntries(t *testing.T) {
	clock := newFakeClock()
	c := New(Options{TTL: 24 * time.Hour, NegativeTTL: time.Hour, Now: clock.Now})
	ctx := context.Background()
	var calls atomic.Int32

	failing := func(context.Context) (model.Category, float64, error) {
		calls.Add(1)
		return "", 0, common.NewClassificationError(common.ReasonTimeout, context.DeadlineExceeded)
	}

	first, err := c.GetOrCompute(ctx, "ACME", failing)
	require.NoError(t, err)
	assert.True(t, first.Negative)
	assert.Equal(t, model.CategoryUncategorized, first.Category)
	assert.Zero(t, first.Confidence)
	assert.Equal(t, common.ReasonTimeout, first.Reason)
	assert.ErrorIs(t, first.Err, common.ErrClassificationTimeout)

	clock.Advance(30 * time.Minute)
	second, err := c.GetOrCompute(ctx, "ACME", failing)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.True(t, second.Negative)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), c.Stats().NegativeHits)

	clock.Advance(31 * time.Minute)
	var okCalls atomic.Int32
	third, err := c.GetOrCompute(ctx, "ACME", constant(model.CategoryShopping, 0.2, &okCalls))
	require.NoError(t, err)
	assert.False(t, third.Negative)
	assert.InDelta(t, 0.2, third.Confidence, 1e-9)
	assert.Equal(t, int32(1), okCalls.Load())
}

func TestLowConfidenceIsNotNegative(t *testing.T) {
	c := New(DefaultOptions())
	var calls atomic.Int32

	res, err := c.GetOrCompute(context.Background(), "MYSTERY", constant(model.CategoryUncategorized, 0.05, &calls))
	require.NoError(t, err)
	assert.False(t, res.Negative)
	assert.Empty(t, res.Reason)
	assert.True(t, res.ExpiresAt.After(time.Now().Add(29*24*time.Hour)))
}

func TestCorruptEntryIsFatal(t *testing.T) {
	c := New(DefaultOptions())
	c.entries["TORN"] = Entry{Category: model.CategoryDining}

	var calls atomic.Int32
	_, err := c.GetOrCompute(context.Background(), "TORN", constant(model.CategoryDining, 1, &calls))
	assert.ErrorIs(t, err, common.ErrCacheCorruption)
	assert.Zero(t, calls.Load())
}

func TestWaiterCancellation(t *testing.T) {
	c := New(DefaultOptions())
	release := make(chan struct{})
	var calls atomic.Int32
	slow := func(context.Context) (model.Category, float64, error) {
		calls.Add(1)
		<-release
		return model.CategoryDining, 0.9, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(ctx, "SLOW", slow)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.True(t, errors.Is(<-errCh, context.Canceled))

	// The abandoned flight still publishes for later callers.
	close(release)
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, time.Millisecond)
	res, err := c.GetOrCompute(context.Background(), "SLOW", slow)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPurgeAndInvalidate(t *testing.T) {
	clock := newFakeClock()
	c := New(Options{TTL: time.Hour, NegativeTTL: time.Minute, Now: clock.Now})
	var calls atomic.Int32
	ctx := context.Background()

	_, err := c.GetOrCompute(ctx, "A", constant(model.CategoryDining, 1, &calls))
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, "B", func(context.Context) (model.Category, float64, error) {
		return "", 0, errors.New("boom")
	})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())

	c.Invalidate("A")
	assert.Zero(t, c.Len())
}

func TestCleanupLoopStops(t *testing.T) {
	c := New(Options{CleanupInterval: time.Millisecond})
	c.Close()
	c.Close()
}
