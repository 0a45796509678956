// Package cache provides the shared merchant category cache with
// single-flight computation.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"golang.org/x/sync/singleflight"
)

// Default lifetimes for cache entries.
const (
	DefaultTTL         = 30 * 24 * time.Hour
	DefaultNegativeTTL = time.Hour
)

// ComputeFunc produces the category for a merchant on a cache miss.
type ComputeFunc func(ctx context.Context) (model.Category, float64, error)

// Options configures a CategoryCache.
type Options struct {
	Now             func() time.Time
	TTL             time.Duration `mapstructure:"ttl"`
	NegativeTTL     time.Duration `mapstructure:"negative_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// DefaultOptions returns the documented cache lifetimes.
func DefaultOptions() Options {
	return Options{TTL: DefaultTTL, NegativeTTL: DefaultNegativeTTL}
}

// Entry is one published cache value. Entries are replaced whole, never
// mutated in place.
type Entry struct {
	ExpiresAt  time.Time
	Err        error
	Category   model.Category
	Reason     common.ReasonCode
	Confidence float64
	Negative   bool
}

// Lookup is the result of GetOrCompute.
type Lookup struct {
	Entry
	// Cached is true when the value came from a stored entry.
	Cached bool
	// Shared is true when the caller joined another caller's computation.
	Shared bool
}

// Stats counts cache activity since construction.
type Stats struct {
	Hits         int64
	NegativeHits int64
	Misses       int64
	Computes     int64
	Shared       int64
}

// CategoryCache maps normalized merchants to categories. At most one
// compute runs per key at a time; concurrent callers share its result.
type CategoryCache struct {
	entries map[string]Entry
	now     func() time.Time
	stopCh  chan struct{}
	group   singleflight.Group
	opts    Options
	mu      sync.RWMutex

	hits         atomic.Int64
	negativeHits atomic.Int64
	misses       atomic.Int64
	computes     atomic.Int64
	shared       atomic.Int64
	closeOnce    sync.Once
}

// New creates a cache. A positive CleanupInterval starts a background purge
// loop that Close stops.
func New(opts Options) *CategoryCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.NegativeTTL <= 0 {
		opts.NegativeTTL = DefaultNegativeTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &CategoryCache{
		entries: make(map[string]Entry),
		now:     now,
		opts:    opts,
		stopCh:  make(chan struct{}),
	}

	if opts.CleanupInterval > 0 {
		go c.cleanup(opts.CleanupInterval)
	}

	return c
}

// GetOrCompute returns the cached category for key, computing it at most
// once across concurrent callers. Compute failures are stored as negative
// entries and reported through Lookup.Negative, not as an error. The only
// errors returned are context cancellation and ErrCacheCorruption.
func (c *CategoryCache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (Lookup, error) {
	if entry, ok, err := c.get(key); err != nil {
		return Lookup{}, err
	} else if ok {
		c.recordHit(entry)
		return Lookup{Entry: entry, Cached: true}, nil
	}

	c.misses.Add(1)

	// The flight must outlive any single caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// Another flight may have published while this caller was between
		// its read and joining the group.
		if entry, ok, err := c.get(key); err != nil {
			return nil, err
		} else if ok {
			return Lookup{Entry: entry, Cached: true}, nil
		}

		c.computes.Add(1)
		category, confidence, err := compute(flightCtx)
		entry := c.publish(key, category, confidence, err)
		return Lookup{Entry: entry}, nil
	})

	select {
	case <-ctx.Done():
		return Lookup{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Lookup{}, res.Err
		}
		lookup, ok := res.Val.(Lookup)
		if !ok {
			return Lookup{}, fmt.Errorf("%w: flight for %q returned %T", common.ErrCacheCorruption, key, res.Val)
		}
		if res.Shared {
			lookup.Shared = true
			c.shared.Add(1)
		}
		return lookup, nil
	}
}

func (c *CategoryCache) get(key string) (Entry, bool, error) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return Entry{}, false, nil
	}
	if entry.ExpiresAt.IsZero() {
		return Entry{}, false, fmt.Errorf("%w: entry for %q has no expiry", common.ErrCacheCorruption, key)
	}
	if !c.now().Before(entry.ExpiresAt) {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (c *CategoryCache) publish(key string, category model.Category, confidence float64, err error) Entry {
	now := c.now()
	var entry Entry
	if err != nil {
		entry = Entry{
			Category:  model.CategoryUncategorized,
			Negative:  true,
			Reason:    common.ReasonOf(err),
			Err:       err,
			ExpiresAt: now.Add(c.opts.NegativeTTL),
		}
	} else {
		entry = Entry{
			Category:   category,
			Confidence: confidence,
			ExpiresAt:  now.Add(c.opts.TTL),
		}
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	return entry
}

func (c *CategoryCache) recordHit(entry Entry) {
	if entry.Negative {
		c.negativeHits.Add(1)
		return
	}
	c.hits.Add(1)
}

// Invalidate removes key so the next lookup recomputes it.
func (c *CategoryCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge removes expired entries and returns how many were dropped.
func (c *CategoryCache) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *CategoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the activity counters.
func (c *CategoryCache) Stats() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		NegativeHits: c.negativeHits.Load(),
		Misses:       c.misses.Load(),
		Computes:     c.computes.Load(),
		Shared:       c.shared.Load(),
	}
}

// cleanup periodically removes expired entries.
func (c *CategoryCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Purge()
		}
	}
}

// Close stops the cleanup goroutine.
func (c *CategoryCache) Close() {
	c.closeOnce.Do(func() { close(c.stopCh) })
}
