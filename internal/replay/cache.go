// Package replay implements the bounded (origin, nonce) loop-suppression
// cache. The shape (bounded set, FIFO eviction by insertion order, a
// Contains+Insert pair) follows munonun-Web4's internal/daemon/peer.go
// gossipCache; the backing store here is hashicorp/golang-lru/v2 rather
// than a hand-rolled container/list+map, used in Add/Contains/Peek-only
// mode so that eviction stays FIFO-by-insertion instead of LRU-by-access
// (Get, which would promote entries, is never called).
package replay

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Key identifies one envelope for replay/loop purposes.
type Key struct {
	Origin uint64
	Nonce  [3]byte
}

// Cache is a bounded set of (origin, nonce) pairs seen recently. Safe for
// concurrent use, though only the inbound task ever touches it in this
// engine's task decomposition.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache[Key, struct{}]
}

// New builds a Cache with the given capacity. When full, InsertIfNew
// evicts the oldest-inserted entry (golang-lru/v2's Add eviction policy,
// since entries are never promoted by access).
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = 1
	}
	c, err := lru.New[Key, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Contains reports whether (origin, nonce) has been seen. Does not affect
// eviction order.
func (c *Cache) Contains(origin uint64, nonce [3]byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(Key{Origin: origin, Nonce: nonce})
}

// InsertIfNew records (origin, nonce) as seen and reports whether it was
// newly inserted (true) or already present (false, a replay hit). This is
// the single operation the inbound handler needs: "contains, and if not,
// insert" without a race between the two steps.
func (c *Cache) InsertIfNew(origin uint64, nonce [3]byte) bool {
	key := Key{Origin: origin, Nonce: nonce}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru.Contains(key) {
		return false
	}
	c.lru.Add(key, struct{}{})
	return true
}

// Len reports the current number of entries, for diagnostics/metrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
