package rcache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-proxy/internal/dns/common/clock"
	"github.com/haukened/rr-proxy/internal/dns/services/proxy"
)

// entry is one cached upstream response: the serialized message without
// its transaction identifier, plus an absolute expiry derived from the
// smallest TTL seen in the response.
type entry struct {
	wire      []byte
	expiresAt time.Time
}

// rcache is an in-memory TTL-aware response cache using an LRU strategy.
// Keys are question tuples ("name|type"); values are serialized response
// messages ready to be re-parsed and re-stamped with a client's
// transaction identifier.
type rcache struct {
	lru   *lru.Cache[string, entry]
	clock clock.Clock
}

// New returns an rcache of the given size using an LRU backing store.
func New(size int, clk clock.Clock) (*rcache, error) {
	cache, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &rcache{lru: cache, clock: clk}, nil
}

// Set stores a serialized response under key for ttl. The wire bytes are
// copied so the caller may reuse its buffer. Zero-TTL responses are not
// cached.
func (c *rcache) Set(key string, wire []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	buf := make([]byte, len(wire))
	copy(buf, wire)
	c.lru.Add(key, entry{wire: buf, expiresAt: c.clock.Now().Add(ttl)})
}

// Get retrieves the serialized response for key if present and not
// expired. Expired entries are removed on access.
func (c *rcache) Get(key string) ([]byte, bool) {
	e, found := c.lru.Get(key)
	if !found {
		return nil, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.wire, true
}

// Delete removes the entry for the given key from the cache.
func (c *rcache) Delete(key string) {
	c.lru.Remove(key)
}

// Len returns the number of cache entries currently stored.
func (c *rcache) Len() int {
	return c.lru.Len()
}

// Keys returns a slice of all current cache keys.
func (c *rcache) Keys() []string {
	return c.lru.Keys()
}

var _ proxy.Cache = (*rcache)(nil)
