package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	stock   int64
	expires time.Time
}

// MemoryStockCache is an in-process StockCache used when no Redis is
// configured and in tests.
type MemoryStockCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[int64]memoryEntry
	gens    map[int64]int64
}

func NewMemoryStockCache() *MemoryStockCache {
	return &MemoryStockCache{
		now:     time.Now,
		entries: make(map[int64]memoryEntry),
		gens:    make(map[int64]int64),
	}
}

func (c *MemoryStockCache) Get(_ context.Context, productID int64) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[productID]
	if !ok {
		return 0, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, productID)
		return 0, false, nil
	}
	return e.stock, true, nil
}

func (c *MemoryStockCache) Generation(_ context.Context, productID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[productID], nil
}

func (c *MemoryStockCache) Set(_ context.Context, productID int64, gen int64, stockBase int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[productID] != gen {
		return nil
	}
	e := memoryEntry{stock: stockBase}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[productID] = e
	return nil
}

func (c *MemoryStockCache) Invalidate(_ context.Context, productIDs ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range productIDs {
		c.gens[id]++
		delete(c.entries, id)
	}
	return nil
}
