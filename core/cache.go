package core

import (
	"sort"
	"sync"
	"time"
)

// Cache is the in-memory source of truth for usage records. Every read
// and write goes through its lock; critical sections are CPU-only. The
// dirty flag records that the cache has diverged from the last snapshot
// successfully published to the remote store.
type Cache struct {
	mu      sync.Mutex
	records map[string]UsageRecord
	dirty   bool
	now     func() time.Time
}

func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		records: make(map[string]UsageRecord),
		now:     now,
	}
}

// Populate replaces the cache contents with records loaded from the
// remote store. It does not mark the cache dirty: the loaded state is,
// by definition, what the store already holds.
func (c *Cache) Populate(records []UsageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[string]UsageRecord, len(records))
	for _, r := range records {
		c.records[r.ID] = r
	}
	c.dirty = false
}

// rollover resets an expired window in place. Returns true if it fired.
// Caller must hold c.mu.
func (c *Cache) rollover(r *UsageRecord, now time.Time) bool {
	if now.Unix() < r.WeekStart+int64(Window/time.Second) {
		return false
	}
	r.Count = 0
	r.WeekStart = now.Unix()
	return true
}

// Get returns a copy of the record for id, applying the lazy window
// reset first. A reset is a real state transition and marks the cache
// dirty. The second return is false when no record exists.
func (c *Cache) Get(id string) (UsageRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.records[id]
	if !ok {
		return UsageRecord{}, false
	}
	if c.rollover(&r, c.now()) {
		c.records[id] = r
		c.dirty = true
	}
	return r, true
}

// Upsert fetches or creates the record for id, applies the lazy window
// reset, applies mutate, and writes the result back, all under the
// lock. The cache is marked dirty only when the stored record actually
// changed. The returned record is the post-mutation copy.
func (c *Cache) Upsert(id string, mutate func(*UsageRecord)) UsageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	r, existed := c.records[id]
	if !existed {
		r = UsageRecord{ID: id, WeekStart: now.Unix()}
	}
	before := r
	c.rollover(&r, now)
	if mutate != nil {
		mutate(&r)
	}
	r.ID = id

	if !existed || r != before {
		c.records[id] = r
		c.dirty = true
	}
	return r
}

// Snapshot returns a value copy of all records, sorted by id so the
// published document is deterministic. The copy is taken under the lock
// and is safe to use while the cache keeps moving.
func (c *Cache) Snapshot() []UsageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Cache) snapshotLocked() []UsageRecord {
	out := make([]UsageRecord, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DrainDirty atomically checks the dirty flag and, if set, clears it
// and returns a snapshot to publish. Returns ok=false when the cache is
// clean. If the subsequent publish fails the caller must re-arm the
// flag with MarkDirty so no update is silently lost.
func (c *Cache) DrainDirty() ([]UsageRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil, false
	}
	c.dirty = false
	return c.snapshotLocked(), true
}

func (c *Cache) MarkDirty() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

func (c *Cache) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}
