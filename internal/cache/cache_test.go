package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type payload struct {
	Score float64 `json:"score"`
}

func TestManagerGetSet(t *testing.T) {
	ctx := context.Background()
	m := New()

	var got payload
	assert.False(t, m.Get(ctx, TierAnalysis, "k", &got))

	m.Set(ctx, TierAnalysis, "k", payload{Score: 0.5})
	require.True(t, m.Get(ctx, TierAnalysis, "k", &got))
	assert.Equal(t, 0.5, got.Score)

	stats := m.Stats()[TierAnalysis]
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, "50.0%", stats.HitRateString())
}

func TestManagerTiersAreIndependent(t *testing.T) {
	ctx := context.Background()
	m := New()

	m.Set(ctx, TierPairResult, "k", payload{Score: 1})

	assert.False(t, m.Get(ctx, TierAnalysis, "k", nil))
	assert.True(t, m.Get(ctx, TierPairResult, "k", nil))
	assert.Equal(t, 0, m.Len(TierBatchResult))
}

func TestManagerLazyExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: baseTime}
	m := New(WithClock(clock.Now))

	m.Set(ctx, TierBatchResult, "k", payload{Score: 1})

	clock.Advance(time.Hour - time.Second)
	assert.True(t, m.Get(ctx, TierBatchResult, "k", nil))

	clock.Advance(time.Second)
	assert.False(t, m.Get(ctx, TierBatchResult, "k", nil), "entry must expire exactly at the TTL")
	assert.Equal(t, 1, m.Len(TierBatchResult), "expired entries are not deleted on read")
}

func TestManagerEvictsOldestToSeventyPercent(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: baseTime}
	m := New(WithClock(clock.Now), WithTierConfig(TierPairResult, TierConfig{TTL: time.Hour, MaxSize: 10}))

	for i := 0; i < 10; i++ {
		m.Set(ctx, TierPairResult, fmt.Sprintf("k%d", i), payload{Score: float64(i)})
		clock.Advance(time.Second)
	}
	require.Equal(t, 10, m.Len(TierPairResult))

	m.Set(ctx, TierPairResult, "new", payload{})

	// floor(10*0.7) survivors plus the inserted entry.
	assert.Equal(t, 8, m.Len(TierPairResult))
	for i := 0; i < 3; i++ {
		assert.False(t, m.Get(ctx, TierPairResult, fmt.Sprintf("k%d", i), nil), "k%d should be evicted", i)
	}
	for i := 3; i < 10; i++ {
		assert.True(t, m.Get(ctx, TierPairResult, fmt.Sprintf("k%d", i), nil), "k%d should survive", i)
	}
	assert.True(t, m.Get(ctx, TierPairResult, "new", nil))
}

func TestManagerOverwriteDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	m := New(WithTierConfig(TierBatchResult, TierConfig{TTL: time.Hour, MaxSize: 2}))

	m.Set(ctx, TierBatchResult, "a", payload{})
	m.Set(ctx, TierBatchResult, "b", payload{})
	m.Set(ctx, TierBatchResult, "a", payload{Score: 2})

	assert.Equal(t, 2, m.Len(TierBatchResult))
}

func TestManagerInvalidateByMemberID(t *testing.T) {
	ctx := context.Background()
	m := New()

	m.Set(ctx, TierAnalysis, "ab", payload{}, "a", "b")
	m.Set(ctx, TierPairResult, "ab-similar", payload{}, "a", "b")
	m.Set(ctx, TierPairResult, "bc-similar", payload{}, "b", "c")
	m.Set(ctx, TierBatchResult, "run", payload{}, "a", "b", "c")

	removed := m.Invalidate(ctx, "a")

	assert.Equal(t, 3, removed)
	assert.False(t, m.Get(ctx, TierAnalysis, "ab", nil))
	assert.False(t, m.Get(ctx, TierPairResult, "ab-similar", nil))
	assert.False(t, m.Get(ctx, TierBatchResult, "run", nil))
	assert.True(t, m.Get(ctx, TierPairResult, "bc-similar", nil))

	assert.Equal(t, 0, m.Invalidate(ctx, "a"))
	assert.Equal(t, 1, m.Invalidate(ctx, "c"))
}

func TestManagerEvictionDropsIndex(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: baseTime}
	m := New(WithClock(clock.Now), WithTierConfig(TierBatchResult, TierConfig{TTL: time.Hour, MaxSize: 1}))

	m.Set(ctx, TierBatchResult, "old", payload{}, "a")
	clock.Advance(time.Second)
	m.Set(ctx, TierBatchResult, "new", payload{}, "b")

	assert.Equal(t, 0, m.Invalidate(ctx, "a"))
	assert.Equal(t, 1, m.Invalidate(ctx, "b"))
}

func TestManagerHitRateBeforeAccess(t *testing.T) {
	stats := New().Stats()

	for _, tier := range Tiers {
		assert.Equal(t, "0%", stats[tier].HitRateString())
		assert.Equal(t, float64(0), stats[tier].HitRate)
	}
}

func TestManagerEncodeFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	m := New()

	m.Set(ctx, TierAnalysis, "bad", make(chan int))

	assert.Equal(t, 0, m.Len(TierAnalysis))
}

func TestManagerClear(t *testing.T) {
	ctx := context.Background()
	m := New()
	m.Set(ctx, TierAnalysis, "k", payload{}, "a")
	m.Get(ctx, TierAnalysis, "k", nil)

	m.Clear()

	assert.Equal(t, 0, m.Len(TierAnalysis))
	assert.Equal(t, uint64(0), m.Stats()[TierAnalysis].Hits)
	assert.Equal(t, 0, m.Invalidate(ctx, "a"))
}
