package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"magazin/backend/internal/domain"
	"magazin/backend/internal/ledger"
	"magazin/backend/internal/store"
	"magazin/backend/internal/units"
	"magazin/backend/internal/xid"
)

// StockOf returns the product's balance in base units. It reads through
// the stock cache; a cache failure falls back to the ledger.
func (s *Service) StockOf(ctx context.Context, productID int64) (int64, error) {
	fields := logrus.Fields{"module": "service", "op": "StockOf", "product_id": productID}
	if v, ok, err := s.cache.Get(ctx, productID); err == nil && ok {
		return v, nil
	} else if err != nil {
		s.logger.WithFields(fields).WithError(err).Warn("stock cache read failed")
	}

	// A commit landing after this point bumps the generation, and the
	// balance read below is then not cached.
	gen, genErr := s.cache.Generation(ctx, productID)
	if genErr != nil {
		s.logger.WithFields(fields).WithError(genErr).Warn("stock cache generation read failed")
	}

	var stock int64
	err := s.view(ctx, func(tx store.Tx) error {
		if _, err := tx.GetProduct(ctx, productID); err != nil {
			return err
		}
		var err error
		stock, err = tx.StockOf(ctx, productID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if genErr == nil {
		if err := s.cache.Set(ctx, productID, gen, stock, s.cacheTTL); err != nil {
			s.logger.WithFields(fields).WithError(err).Warn("stock cache write failed")
		}
	}
	return stock, nil
}

func (s *Service) ListStock(ctx context.Context, search string) ([]domain.StockRow, error) {
	var rows []domain.StockRow
	err := s.view(ctx, func(tx store.Tx) error {
		var err error
		rows, err = tx.StockList(ctx, search)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Stock, _ = units.FromBase(rows[i].Unit, rows[i].StockBase)
	}
	return rows, nil
}

// LowStock lists products whose human-unit stock is below threshold. A
// non-positive threshold uses the configured default.
func (s *Service) LowStock(ctx context.Context, threshold float64) ([]domain.StockRow, error) {
	if threshold <= 0 {
		threshold = s.lowStock
	}
	rows, err := s.ListStock(ctx, "")
	if err != nil {
		return nil, err
	}
	low := make([]domain.StockRow, 0, len(rows))
	for _, row := range rows {
		if row.Stock < threshold {
			low = append(low, row)
		}
	}
	sort.SliceStable(low, func(i, j int) bool { return low[i].Stock < low[j].Stock })
	return low, nil
}

func (s *Service) ProductBatches(ctx context.Context, productID int64) (domain.ProductBatches, error) {
	var out domain.ProductBatches
	err := s.view(ctx, func(tx store.Tx) error {
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		stocks, err := tx.BatchStocks(ctx, productID)
		if err != nil {
			return err
		}
		noBatch, err := tx.StockWithNoBatch(ctx, productID)
		if err != nil {
			return err
		}
		out.Product = p
		out.Batches = make([]domain.BatchStockRow, 0, len(stocks))
		for _, bs := range stocks {
			human, _ := units.FromBase(p.Unit, bs.Stock)
			out.Batches = append(out.Batches, domain.BatchStockRow{Batch: bs.Batch, StockBase: bs.Stock, Stock: human})
		}
		out.NoBatchBase = noBatch
		out.NoBatch, _ = units.FromBase(p.Unit, noBatch)
		return nil
	})
	return out, err
}

// ExpiringBatches lists batches with stock whose expiry falls within days
// from today, expired ones included. DaysLeft is negative once expired. A
// non-positive days uses the widest configured alert window.
func (s *Service) ExpiringBatches(ctx context.Context, days int) ([]domain.ExpiringBatch, error) {
	if days <= 0 {
		days = s.expiryDays[0]
		for _, d := range s.expiryDays {
			days = max(days, d)
		}
	}
	today := s.today()
	until := today.AddDate(0, 0, days)

	var rows []store.ExpiringRow
	err := s.view(ctx, func(tx store.Tx) error {
		var err error
		rows, err = tx.ExpiringBatches(ctx, until)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.ExpiringBatch, 0, len(rows))
	for _, row := range rows {
		human, _ := units.FromBase(row.Unit, row.Stock)
		out = append(out, domain.ExpiringBatch{
			Batch:       row.Batch,
			ProductName: row.ProductName,
			Barcode:     row.Barcode,
			Unit:        row.Unit,
			StockBase:   row.Stock,
			Stock:       human,
			DaysLeft:    daysBetween(today, *row.Batch.ExpiryDate),
		})
	}
	return out, nil
}

// ExpiryAlerts counts expiring batches for each configured window.
func (s *Service) ExpiryAlerts(ctx context.Context) ([]domain.ExpiryAlert, error) {
	all, err := s.ExpiringBatches(ctx, 0)
	if err != nil {
		return nil, err
	}
	windows := append([]int(nil), s.expiryDays...)
	sort.Ints(windows)
	alerts := make([]domain.ExpiryAlert, 0, len(windows))
	for _, w := range windows {
		n := 0
		for _, b := range all {
			if b.DaysLeft <= w {
				n++
			}
		}
		alerts = append(alerts, domain.ExpiryAlert{WithinDays: w, Count: n})
	}
	return alerts, nil
}

func daysBetween(from time.Time, to time.Time) int {
	return int(domain.DateUTC(to).Sub(domain.DateUTC(from)) / (24 * time.Hour))
}

func (s *Service) Movements(ctx context.Context, productID int64, limit int) ([]domain.Movement, error) {
	if limit <= 0 {
		limit = 100
	}
	var movements []domain.Movement
	err := s.view(ctx, func(tx store.Tx) error {
		if _, err := tx.GetProduct(ctx, productID); err != nil {
			return err
		}
		var err error
		movements, err = tx.ListMovements(ctx, store.MovementFilter{ProductID: productID, Limit: limit})
		return err
	})
	return movements, err
}

// AdjustStock books a manual correction. Waste always removes and return
// always adds the given amount; adjustment takes the sign as given. A
// removal without a batch is spread over batches in FIFO order.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) ([]domain.Movement, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	if req.Quantity == 0 {
		return nil, fmt.Errorf("%w: adjustment quantity must not be zero", units.ErrInvalidQuantity)
	}
	reason := domain.Reason(req.Reason)
	qty := req.Quantity
	switch reason {
	case domain.ReasonWaste:
		qty = -abs(qty)
	case domain.ReasonReturn:
		qty = abs(qty)
	}

	var movements []domain.Movement
	err := s.inTx(ctx, "AdjustStock", func(sc *scope) error {
		p, err := sc.LockProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if p.Unit == domain.UnitPiece && !units.IsWhole(qty) {
			return fmt.Errorf("%w: %s is sold in whole pieces", units.ErrInvalidQuantity, p.Name)
		}
		base, err := units.ToBase(p.Unit, qty)
		if err != nil {
			return err
		}
		if base == 0 {
			return fmt.Errorf("%w: %v rounds to zero", units.ErrInvalidQuantity, qty)
		}
		now := s.clock()
		sc.touch(p.ID)

		if req.BatchID != nil {
			b, err := sc.GetBatch(ctx, *req.BatchID)
			if err != nil {
				return err
			}
			if b.ProductID != p.ID {
				return invalid("batch %d does not belong to product %d", b.ID, p.ID)
			}
			if base < 0 {
				have, err := sc.StockOfBatch(ctx, p.ID, b.ID)
				if err != nil {
					return err
				}
				if have < -base {
					return &ledger.ShortageError{ProductID: p.ID, Requested: -base, Available: have}
				}
			}
		}

		if base < 0 && req.BatchID == nil {
			movements, err = ledger.Allocate(ctx, sc, ledger.Request{
				ProductID: p.ID, Quantity: -base, Reason: reason, Note: req.Note, At: now,
			})
			return err
		}

		m, err := sc.AppendMovement(ctx, domain.Movement{
			UUID: xid.New(), CreatedAt: now, ProductID: p.ID, BatchID: req.BatchID,
			Quantity: base, Reason: reason, Note: req.Note,
		})
		if err != nil {
			return err
		}
		movements = []domain.Movement{m}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx, "AdjustStock", logrus.Fields{"product_id": req.ProductID, "reason": reason, "movements": len(movements)}).Info("stock adjusted")
	return movements, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ReconcileStock recomputes every product balance from the ledger and
// rewrites the cache with it. Generations are taken from a first listing
// so a product changed during the recompute keeps its invalidated entry.
func (s *Service) ReconcileStock(ctx context.Context) (int, error) {
	listStock := func() ([]domain.StockRow, error) {
		var rows []domain.StockRow
		err := s.view(ctx, func(tx store.Tx) error {
			var err error
			rows, err = tx.StockList(ctx, "")
			return err
		})
		return rows, err
	}

	before, err := listStock()
	if err != nil {
		return 0, err
	}
	gens := make(map[int64]int64, len(before))
	for _, row := range before {
		gen, err := s.cache.Generation(ctx, row.ProductID)
		if err != nil {
			return 0, fmt.Errorf("reconcile product %d: %w", row.ProductID, err)
		}
		gens[row.ProductID] = gen
	}

	rows, err := listStock()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, row := range rows {
		gen, ok := gens[row.ProductID]
		if !ok {
			continue
		}
		if err := s.cache.Set(ctx, row.ProductID, gen, row.StockBase, s.cacheTTL); err != nil {
			return 0, fmt.Errorf("reconcile product %d: %w", row.ProductID, err)
		}
		n++
	}
	s.logger.WithFields(logrus.Fields{"module": "service", "op": "ReconcileStock", "products": n}).Info("stock cache reconciled")
	return n, nil
}
