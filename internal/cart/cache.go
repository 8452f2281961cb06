package cart

import (
	"context"
	"sync"

	domain "github.com/greenraise/storefront/internal/domain"
)

// SnapshotCache memoises catalog lookups for the lifetime of the process.
// Entries never expire; catalog data moves slowly relative to a session.
// Concurrent resolutions of the same product id are deduplicated so a batch
// resolve never issues redundant network calls for an id already in flight.
type SnapshotCache struct {
	mu      sync.Mutex
	entries map[string]domain.ProductSnapshot
	pending map[string]*pendingFetch
}

type pendingFetch struct {
	done     chan struct{}
	snapshot domain.ProductSnapshot
	err      error
}

// NewSnapshotCache constructs an empty cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{
		entries: make(map[string]domain.ProductSnapshot),
		pending: make(map[string]*pendingFetch),
	}
}

// Get returns the cached snapshot for the product id when present.
func (c *SnapshotCache) Get(productID string) (domain.ProductSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot, ok := c.entries[productID]
	return snapshot, ok
}

// Put stores a snapshot directly, keyed by its product id.
func (c *SnapshotCache) Put(snapshot domain.ProductSnapshot) {
	if snapshot.ProductID == "" {
		return
	}
	c.mu.Lock()
	c.entries[snapshot.ProductID] = snapshot
	c.mu.Unlock()
}

// Len reports the number of cached snapshots.
func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Resolve returns the cached snapshot for the id, or fetches it via fn. When
// a fetch for the same id is already in flight the caller waits for that
// result instead of issuing its own call. Failed fetches are not cached, so a
// later resolve may retry.
func (c *SnapshotCache) Resolve(ctx context.Context, productID string, fn func(context.Context, string) (domain.ProductSnapshot, error)) (domain.ProductSnapshot, error) {
	c.mu.Lock()
	if snapshot, ok := c.entries[productID]; ok {
		c.mu.Unlock()
		return snapshot, nil
	}
	if inflight, ok := c.pending[productID]; ok {
		c.mu.Unlock()
		select {
		case <-inflight.done:
			return inflight.snapshot, inflight.err
		case <-ctx.Done():
			return domain.ProductSnapshot{}, ctx.Err()
		}
	}

	fetch := &pendingFetch{done: make(chan struct{})}
	c.pending[productID] = fetch
	c.mu.Unlock()

	snapshot, err := fn(ctx, productID)

	c.mu.Lock()
	delete(c.pending, productID)
	if err == nil {
		c.entries[productID] = snapshot
	}
	c.mu.Unlock()

	fetch.snapshot = snapshot
	fetch.err = err
	close(fetch.done)
	return snapshot, err
}
