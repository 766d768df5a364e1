package cache

import (
	"context"
	"time"
)

// StockCache holds derived per-product balances in base units. Entries are
// a read-through convenience; the ledger stays authoritative.
//
// Every Invalidate bumps the product's generation. A reader takes the
// generation before loading the balance and passes it to Set, which stores
// nothing when an invalidation happened in between.
type StockCache interface {
	Get(ctx context.Context, productID int64) (int64, bool, error)
	Generation(ctx context.Context, productID int64) (int64, error)
	Set(ctx context.Context, productID int64, gen int64, stockBase int64, ttl time.Duration) error
	Invalidate(ctx context.Context, productIDs ...int64) error
}

type NoopStockCache struct{}

func (NoopStockCache) Get(_ context.Context, _ int64) (int64, bool, error) {
	return 0, false, nil
}

func (NoopStockCache) Generation(_ context.Context, _ int64) (int64, error) {
	return 0, nil
}

func (NoopStockCache) Set(_ context.Context, _ int64, _ int64, _ int64, _ time.Duration) error {
	return nil
}

func (NoopStockCache) Invalidate(_ context.Context, _ ...int64) error {
	return nil
}
