// Package dedup filters re-delivered webhook events before any expensive work
// happens. It is an optimization in front of the durable webhook ledger and
// never the source of truth for idempotency.
package dedup

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTTL        = 15 * time.Minute
	DefaultMaxEntries = 1000
)

// Cache remembers recently processed event ids.
type Cache interface {
	// Prune drops expired entries, then evicts the oldest-inserted entries
	// until the cache is within capacity.
	Prune(ctx context.Context) error
	// Has reports whether id is present after a fresh prune.
	Has(ctx context.Context, id string) (bool, error)
	// Record inserts id with its receipt time. Overwriting an existing id
	// updates the time but not its place in the eviction order.
	Record(ctx context.Context, id string, receivedAt time.Time) error
	// Forget removes id so that a retried delivery is processed again.
	Forget(ctx context.Context, id string) error
}

type memoryEntry struct {
	id         string
	receivedAt time.Time
}

// MemoryCache is a process-local Cache bounded by age and size. Eviction
// follows insertion order, lookups do not refresh an entry.
type MemoryCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List
	Now        func() time.Time
}

// NewMemoryCache returns a cache using DefaultTTL and DefaultMaxEntries for
// non-positive arguments.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		Now:        time.Now,
	}
}

func (c *MemoryCache) Prune(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(c.now())
	return nil
}

func (c *MemoryCache) Has(_ context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(c.now())
	_, ok := c.entries[id]
	return ok, nil
}

func (c *MemoryCache) Record(_ context.Context, id string, receivedAt time.Time) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[id]; ok {
		el.Value.(*memoryEntry).receivedAt = receivedAt
		return nil
	}
	c.entries[id] = c.order.PushBack(&memoryEntry{id: id, receivedAt: receivedAt})
	c.evictOverflowLocked()
	return nil
}

func (c *MemoryCache) Forget(_ context.Context, id string) error {
	id = strings.TrimSpace(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[id]; ok {
		c.order.Remove(el)
		delete(c.entries, id)
	}
	return nil
}

// Len returns the number of entries currently held, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) pruneLocked(now time.Time) {
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		entry := el.Value.(*memoryEntry)
		if now.Sub(entry.receivedAt) > c.ttl {
			c.order.Remove(el)
			delete(c.entries, entry.id)
		}
		el = next
	}
	c.evictOverflowLocked()
}

func (c *MemoryCache) evictOverflowLocked() {
	for len(c.entries) > c.maxEntries {
		oldest := c.order.Front()
		if oldest == nil {
			return
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*memoryEntry).id)
	}
}

func (c *MemoryCache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

var _ Cache = (*MemoryCache)(nil)
