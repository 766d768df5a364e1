// Package ledger turns an outgoing quantity for one product into negative
// movements against its batches, soonest expiry first.
package ledger

import (
	"context"
	"fmt"
	"time"

	"magazin/backend/internal/domain"
	"magazin/backend/internal/store"
	"magazin/backend/internal/xid"
)

// Ledger is the part of a transaction the allocator reads and appends to.
type Ledger interface {
	BatchesWithPositiveStock(ctx context.Context, productID int64) ([]domain.BatchStock, error)
	StockWithNoBatch(ctx context.Context, productID int64) (int64, error)
	AppendMovement(ctx context.Context, movement domain.Movement) (domain.Movement, error)
}

// Allocation is a positive quantity taken from one batch, or from the
// no-batch bucket when BatchID is nil.
type Allocation struct {
	BatchID  *int64
	Quantity int64
}

type ShortageError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *ShortageError) Unwrap() error {
	return store.ErrInsufficientStock
}

// Plan walks batches in the order given and then the no-batch bucket. It
// either covers qty completely or returns a *ShortageError.
func Plan(productID int64, batches []domain.BatchStock, noBatch int64, qty int64) ([]Allocation, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: allocation quantity must be positive, got %d", store.ErrInvalidInput, qty)
	}

	remaining := qty
	var available int64
	plan := make([]Allocation, 0, len(batches)+1)
	for _, bs := range batches {
		if bs.Stock <= 0 {
			continue
		}
		available += bs.Stock
		if remaining == 0 {
			continue
		}
		take := min(remaining, bs.Stock)
		batchID := bs.Batch.ID
		plan = append(plan, Allocation{BatchID: &batchID, Quantity: take})
		remaining -= take
	}

	if noBatch > 0 {
		available += noBatch
		if remaining > 0 {
			take := min(remaining, noBatch)
			plan = append(plan, Allocation{Quantity: take})
			remaining -= take
		}
	}

	if remaining > 0 {
		return nil, &ShortageError{ProductID: productID, Requested: qty, Available: available}
	}
	return plan, nil
}

type Request struct {
	ProductID int64
	Quantity  int64
	Reason    domain.Reason
	ReceiptID *int64
	Note      string
	At        time.Time
}

// Allocate plans against the current balances and appends one negative
// movement per allocation. Nothing is appended unless the plan covers the
// whole quantity; callers run it inside the transaction of the operation
// it belongs to so a later failure rolls these movements back too.
func Allocate(ctx context.Context, l Ledger, req Request) ([]domain.Movement, error) {
	batches, err := l.BatchesWithPositiveStock(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	noBatch, err := l.StockWithNoBatch(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	plan, err := Plan(req.ProductID, batches, noBatch, req.Quantity)
	if err != nil {
		return nil, err
	}

	movements := make([]domain.Movement, 0, len(plan))
	for _, a := range plan {
		m, err := l.AppendMovement(ctx, domain.Movement{
			UUID:      xid.New(),
			CreatedAt: req.At,
			ProductID: req.ProductID,
			BatchID:   a.BatchID,
			Quantity:  -a.Quantity,
			Reason:    req.Reason,
			ReceiptID: req.ReceiptID,
			Note:      req.Note,
		})
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, nil
}
