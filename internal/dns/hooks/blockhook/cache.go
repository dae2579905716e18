package blockhook

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// decision is a cached verdict for one canonical name.
type decision struct {
	Blocked bool
	Rule    string
}

// decisionCache is an LRU cache of block decisions with basic metrics.
type decisionCache struct {
	lru       *lru.Cache[string, decision]
	hits      uint64
	misses    uint64
	evictions uint64
}

// newDecisionCache creates a decision cache with the given capacity.
func newDecisionCache(size int) (*decisionCache, error) {
	var dc decisionCache
	// Use NewWithEvict to observe evictions, including Purge-induced ones.
	cache, err := lru.NewWithEvict(size, func(_ string, _ decision) {
		atomic.AddUint64(&dc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return &dc, nil
}

// Get looks up a decision by name. When found, increments hits; otherwise increments misses.
func (c *decisionCache) Get(name string) (decision, bool) {
	if val, ok := c.lru.Get(name); ok {
		atomic.AddUint64(&c.hits, 1)
		return val, true
	}
	atomic.AddUint64(&c.misses, 1)
	return decision{}, false
}

// Put stores a decision by name.
func (c *decisionCache) Put(name string, d decision) {
	c.lru.Add(name, d)
}

// Len returns the number of entries in the cache.
func (c *decisionCache) Len() int { return c.lru.Len() }

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *decisionCache) Purge() { c.lru.Purge() }

// Stats returns cumulative hit/miss/eviction counters.
func (c *decisionCache) Stats() (hits, misses, evictions uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), atomic.LoadUint64(&c.evictions)
}
