package engine

import (
	"context"
	"sync"
	"time"

	"dtnex/internal/router"
)

// neighborCache is the single shared neighbor-list cache: written by
// whichever task first requests it after expiry, read by both the timer
// task and the inbound task's forward step, guarded by one mutex.
type neighborCache struct {
	router router.Adapter
	ttl    time.Duration

	mu        sync.Mutex
	plans     []router.Plan
	fetchedAt time.Time
}

func newNeighborCache(r router.Adapter, ttl time.Duration) *neighborCache {
	if ttl <= 0 {
		ttl = 20 * time.Second
	}
	return &neighborCache{router: r, ttl: ttl}
}

// Snapshot returns the cached neighbor list, refreshing it from the router
// first if the cache has expired or has never been populated.
func (c *neighborCache) Snapshot(ctx context.Context) ([]router.Plan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.fetchedAt) < c.ttl && c.plans != nil {
		return c.plans, nil
	}
	plans, err := c.router.Neighbors(ctx)
	if err != nil {
		return nil, err
	}
	c.plans = plans
	c.fetchedAt = time.Now()
	return plans, nil
}

// ForceRefresh bypasses the TTL and re-fetches immediately, returning
// whether the neighbor set (by node id membership) differs from the
// previous snapshot. Used by the change-detection watcher that triggers an
// out-of-band originate broadcast when the neighbor set changes.
func (c *neighborCache) ForceRefresh(ctx context.Context) (changed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := neighborSet(c.plans)
	plans, err := c.router.Neighbors(ctx)
	if err != nil {
		return false, err
	}
	c.plans = plans
	c.fetchedAt = time.Now()
	return !prev.equal(neighborSet(plans)), nil
}

type nodeSet map[uint64]struct{}

func neighborSet(plans []router.Plan) nodeSet {
	s := make(nodeSet, len(plans))
	for _, p := range plans {
		s[p.Neighbor] = struct{}{}
	}
	return s
}

func (s nodeSet) equal(o nodeSet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if _, ok := o[k]; !ok {
			return false
		}
	}
	return true
}
