package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestCacheLazyResetIsIdempotent(t *testing.T) {
	clk := newFakeClock()
	cache := NewCache(clk.Now)

	stale := clk.Now().Add(-8 * 24 * time.Hour).Unix()
	cache.Populate([]UsageRecord{{ID: "u1", Count: 5, WeekStart: stale}})

	rec, ok := cache.Get("u1")
	require.True(t, ok)
	assert.Equal(t, 0, rec.Count)
	assert.Equal(t, clk.Now().Unix(), rec.WeekStart)
	assert.True(t, cache.Dirty(), "a fired reset is a state transition")

	// Same instant, same observation.
	again, ok := cache.Get("u1")
	require.True(t, ok)
	assert.Equal(t, rec, again)
}

func TestCacheWeekStartNeverMovesBackward(t *testing.T) {
	clk := newFakeClock()
	cache := NewCache(clk.Now)

	cache.Upsert("u1", func(r *UsageRecord) { r.Count++ })
	first, _ := cache.Get("u1")

	clk.Advance(Window + time.Hour)
	second, _ := cache.Get("u1")
	assert.Greater(t, second.WeekStart, first.WeekStart)

	clk.Advance(time.Hour)
	third, _ := cache.Get("u1")
	assert.GreaterOrEqual(t, third.WeekStart, second.WeekStart)
}

func TestCacheGetUnknown(t *testing.T) {
	cache := NewCache(nil)
	_, ok := cache.Get("nobody")
	assert.False(t, ok)
	assert.False(t, cache.Dirty())
}

func TestCacheUpsertDirtiesOnlyOnChange(t *testing.T) {
	clk := newFakeClock()
	cache := NewCache(clk.Now)

	cache.Upsert("u1", func(r *UsageRecord) { r.Count++ })
	assert.True(t, cache.Dirty())

	_, ok := cache.DrainDirty()
	require.True(t, ok)
	assert.False(t, cache.Dirty())

	// A no-op mutation on an unexpired record must not dirty.
	cache.Upsert("u1", func(r *UsageRecord) {})
	assert.False(t, cache.Dirty())
}

func TestCachePopulateDoesNotDirty(t *testing.T) {
	cache := NewCache(nil)
	cache.Populate([]UsageRecord{{ID: "u1", Count: 2, WeekStart: time.Now().Unix()}})
	assert.False(t, cache.Dirty())
	assert.Equal(t, 1, cache.Len())
}

func TestCacheSnapshotIsSortedCopy(t *testing.T) {
	clk := newFakeClock()
	cache := NewCache(clk.Now)
	cache.Upsert("b", func(r *UsageRecord) { r.Count = 2 })
	cache.Upsert("a", func(r *UsageRecord) { r.Count = 1 })

	snap := cache.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "b", snap[1].ID)

	// Mutating the copy leaves the cache untouched.
	snap[0].Count = 99
	rec, _ := cache.Get("a")
	assert.Equal(t, 1, rec.Count)
}

func TestCacheDrainDirty(t *testing.T) {
	clk := newFakeClock()
	cache := NewCache(clk.Now)

	_, ok := cache.DrainDirty()
	assert.False(t, ok, "clean cache has nothing to drain")

	cache.Upsert("u1", func(r *UsageRecord) { r.Count++ })
	snap, ok := cache.DrainDirty()
	require.True(t, ok)
	require.Len(t, snap, 1)
	assert.False(t, cache.Dirty())

	// Failure recovery path: the flag can be re-armed.
	cache.MarkDirty()
	assert.True(t, cache.Dirty())
}
