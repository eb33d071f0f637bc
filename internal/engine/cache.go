package engine

import (
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of cached analyses.
const DefaultCacheSize = 10_000

// ResultCache holds recent analysis results keyed by a hash of the normalized
// text. Entries expire lazily: an entry past its TTL is dropped by the lookup
// that finds it. There is no background sweep; the LRU bound keeps memory
// finite.
type ResultCache struct {
	entries *lru.Cache[uint64, *resultEntry]
	ttl     time.Duration
}

type resultEntry struct {
	text      string // normalized text, guards against hash collisions
	gen       uint64 // rule-set generation the result was computed with
	result    AnalysisResult
	expiresAt time.Time
}

// CacheGetResult holds the result of a cache lookup.
type CacheGetResult struct {
	Result  AnalysisResult
	Hit     bool
	Expired bool // an entry existed but was past its TTL and has been dropped
}

// NewResultCache creates a cache of at most size entries. A non-positive ttl
// disables caching.
func NewResultCache(size int, ttl time.Duration) *ResultCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[uint64, *resultEntry](size)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &ResultCache{entries: c, ttl: ttl}
}

// Normalize lower-cases and trims text for use as a cache key.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func cacheKey(normalized string) uint64 {
	return xxhash.Sum64String(normalized)
}

// Get looks up a normalized text computed under rule-set generation gen.
func (c *ResultCache) Get(normalized string, gen uint64) CacheGetResult {
	if c.ttl <= 0 {
		return CacheGetResult{}
	}
	key := cacheKey(normalized)
	e, ok := c.entries.Get(key)
	if !ok || e.text != normalized || e.gen != gen {
		return CacheGetResult{}
	}
	if !time.Now().Before(e.expiresAt) {
		c.entries.Remove(key)
		return CacheGetResult{Expired: true}
	}
	return CacheGetResult{Result: e.result, Hit: true}
}

// Set stores a result with a fresh TTL.
func (c *ResultCache) Set(normalized string, gen uint64, r AnalysisResult) {
	if c.ttl <= 0 {
		return
	}
	c.entries.Add(cacheKey(normalized), &resultEntry{
		text:      normalized,
		gen:       gen,
		result:    r,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Purge drops every entry.
func (c *ResultCache) Purge() {
	c.entries.Purge()
}

// Len returns the number of entries, expired ones included.
func (c *ResultCache) Len() int {
	return c.entries.Len()
}
