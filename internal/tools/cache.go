package tools

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// snapshot is the user-editable tool state: overrides and custom tools, with
// custom argument schemas compiled once per load.
type snapshot struct {
	overrides map[string]Action
	custom    map[string]Entry
	schemas   map[string]*jsonschema.Schema
}

// SnapshotCache holds the latest snapshot with a TTL and stale-while-revalidate.
// Reads are a single atomic load.
type SnapshotCache struct {
	current atomic.Pointer[snapshotEntry]
	ttl     time.Duration

	mu  sync.Mutex
	gen uint64 // bumped by Invalidate; loads started before a bump are discarded
}

type snapshotEntry struct {
	snap       *snapshot
	expiresAt  time.Time
	refreshing atomic.Bool
}

// snapshotGetResult holds the result of a cache lookup.
type snapshotGetResult struct {
	snap         *snapshot
	Hit          bool // true if a value was found (fresh or stale)
	NeedsRefresh bool // true if expired; caller should refresh in background
}

// NewSnapshotCache creates a cache with the given TTL.
func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{ttl: ttl}
}

// get performs a non-blocking lookup. Stale entries are returned with
// NeedsRefresh set for exactly one caller.
func (c *SnapshotCache) get() snapshotGetResult {
	entry := c.current.Load()
	if entry == nil {
		return snapshotGetResult{}
	}
	if time.Now().Before(entry.expiresAt) {
		return snapshotGetResult{snap: entry.snap, Hit: true}
	}
	return snapshotGetResult{
		snap:         entry.snap,
		Hit:          true,
		NeedsRefresh: entry.refreshing.CompareAndSwap(false, true),
	}
}

// generation returns a token to pass to set after loading.
func (c *SnapshotCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// set stores a snapshot with a fresh TTL unless the cache was invalidated
// since gen was taken.
func (c *SnapshotCache) set(s *snapshot, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.current.Store(&snapshotEntry{snap: s, expiresAt: time.Now().Add(c.ttl)})
	return true
}

// refreshFailed hands the refresh back so the next stale read retries it.
// The stale snapshot keeps being served in the meantime.
func (c *SnapshotCache) refreshFailed() {
	if entry := c.current.Load(); entry != nil {
		entry.refreshing.Store(false)
	}
}

// Invalidate drops the cached snapshot so the next read reloads it.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.current.Store(nil)
}
