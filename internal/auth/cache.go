package auth

import (
	"crypto/sha256"
	"sync"
	"sync/atomic"
	"time"
)

// staleFactor bounds how long past its TTL an entry may still be served
// while a refresh runs. Older entries are treated as misses, so a key
// revoked during a quiet period is re-checked synchronously.
const staleFactor = 10

// AuthCache holds verified principals keyed by the SHA-256 of the API key,
// so plaintext keys are never retained. An expired entry is still served
// to every caller while exactly one of them refreshes it.
type AuthCache struct {
	entries sync.Map // [sha256.Size]byte -> *cachedPrincipal
	ttl     time.Duration
}

type cachedPrincipal struct {
	principal  *Principal
	verifiedAt time.Time
	refreshing atomic.Bool
}

func NewAuthCache(ttl time.Duration) *AuthCache {
	return &AuthCache{ttl: ttl}
}

// GetResult is the outcome of AuthCache.Get.
type GetResult struct {
	Principal    *Principal
	Hit          bool // a fresh or stale entry was found
	NeedsRefresh bool // stale, and this caller owns the refresh
}

func (c *AuthCache) Get(apiKey string) GetResult {
	v, ok := c.entries.Load(sha256.Sum256([]byte(apiKey)))
	if !ok {
		return GetResult{}
	}
	e := v.(*cachedPrincipal)
	age := time.Since(e.verifiedAt)
	switch {
	case age < c.ttl:
		return GetResult{Principal: e.principal, Hit: true}
	case age < c.ttl*staleFactor:
		return GetResult{
			Principal:    e.principal,
			Hit:          true,
			NeedsRefresh: e.refreshing.CompareAndSwap(false, true),
		}
	default:
		return GetResult{}
	}
}

func (c *AuthCache) Set(apiKey string, p *Principal) {
	c.entries.Store(sha256.Sum256([]byte(apiKey)), &cachedPrincipal{principal: p, verifiedAt: time.Now()})
}

func (c *AuthCache) Delete(apiKey string) {
	c.entries.Delete(sha256.Sum256([]byte(apiKey)))
}
