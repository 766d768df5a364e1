package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStockCacheExpiresAndInvalidates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryStockCache()
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, 1, 0, 1500, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Set(ctx, 2, 0, 10, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok, _ := c.Get(ctx, 1); !ok || v != 1500 {
		t.Fatalf("expected cached 1500, got %d %v", v, ok)
	}

	if err := c.Invalidate(ctx, 1); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, 1); ok {
		t.Fatalf("expected miss after invalidate")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, 2); ok {
		t.Fatalf("expected miss after ttl")
	}
}

func TestMemoryStockCacheRejectsSetFromOlderGeneration(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStockCache()

	gen, _ := c.Generation(ctx, 7)
	if err := c.Invalidate(ctx, 7); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := c.Set(ctx, 7, gen, 5, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok, _ := c.Get(ctx, 7); ok {
		t.Fatalf("expected stale set to be dropped, got %d", v)
	}

	current, _ := c.Generation(ctx, 7)
	if current != gen+1 {
		t.Fatalf("expected generation %d, got %d", gen+1, current)
	}
	if err := c.Set(ctx, 7, current, 3, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok, _ := c.Get(ctx, 7); !ok || v != 3 {
		t.Fatalf("expected cached 3, got %d %v", v, ok)
	}
}

func TestNoopStockCacheAlwaysMisses(t *testing.T) {
	var c StockCache = NoopStockCache{}
	_ = c.Set(context.Background(), 1, 0, 5, time.Minute)
	if _, ok, err := c.Get(context.Background(), 1); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}
