package streamcipher

import (
	"encoding/hex"
	"sync"
)

// defaultIVCacheCapacity bounds memory use per listener. The reference
// implementation's bounded cache holds about 256 entries; this default
// keeps a larger replay window at a still-fixed memory ceiling, evicting
// oldest-first once full (decided in DESIGN.md).
const defaultIVCacheCapacity = 4096

// IVCache rejects reused IVs within its retention window, closing the
// replay-attack gap a deterministic keystream would otherwise leave open
// (spec §4.G). It is not used for the table family, which has no IV.
type IVCache struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
}

// NewIVCache builds an IVCache with the given capacity. A capacity <= 0
// falls back to defaultIVCacheCapacity.
func NewIVCache(capacity int) *IVCache {
	if capacity <= 0 {
		capacity = defaultIVCacheCapacity
	}
	return &IVCache{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

// CheckAndInsert reports whether iv has been seen before. If not, it
// records iv and returns true (fresh); if iv is a repeat, it returns
// false and the caller must reject the connection (spec §4.G, §8 replay
// invariant).
func (c *IVCache) CheckAndInsert(iv []byte) bool {
	key := hex.EncodeToString(iv)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.seen[key]; dup {
		return false
	}

	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.seen, oldest)
	}
	c.seen[key] = struct{}{}
	c.order = append(c.order, key)
	return true
}

// Len reports the number of IVs currently retained, for tests and
// diagnostics.
func (c *IVCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
