package huffman

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"
)

// DefaultCacheSize is used when a non-positive size is requested.
const DefaultCacheSize = 64

// Cache memoizes compressed payloads. Login responses such as the feature
// and character list packets are identical for most sessions, so their
// compressed form is computed once. Cached slices are shared and must not
// be modified by callers. A Cache is safe for concurrent use.
type Cache struct {
	mu  sync.Mutex
	lfu *tinylfu.T[string, []byte]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache returns a cache holding up to size compressed payloads.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		lfu: tinylfu.New[string, []byte](size, size*10, xxhash.Sum64String),
	}
}

// Compress returns the compressed form of src and whether it came from the
// cache. A nil Cache compresses without memoizing.
func (c *Cache) Compress(src []byte) ([]byte, bool) {
	if c == nil {
		return Compress(src), false
	}

	key := string(src)

	c.mu.Lock()
	out, ok := c.lfu.Get(key)
	c.mu.Unlock()
	if ok {
		c.hits.Add(1)
		return out, true
	}

	c.misses.Add(1)
	out = Compress(src)

	c.mu.Lock()
	c.lfu.Add(key, out)
	c.mu.Unlock()

	return out, false
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Stats returns the hit and miss counters.
func (c *Cache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
