package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"magazin/backend/internal/barcode"
	"magazin/backend/internal/domain"
	"magazin/backend/internal/sequence"
	"magazin/backend/internal/store"
	"magazin/backend/internal/units"
	"magazin/backend/internal/xid"
)

const summaryTopN = 10

func (s *Service) OpenStockIn(ctx context.Context, req domain.StockInOpenRequest) (domain.StockInSession, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.StockInSession{}, err
	}
	var session domain.StockInSession
	err := s.inTx(ctx, "OpenStockIn", func(sc *scope) error {
		var err error
		session, err = sc.CreateSession(ctx, domain.StockInSession{
			Status:    domain.SessionStatusOpen,
			StartedAt: s.clock(),
			Note:      strings.TrimSpace(req.Note),
		})
		return err
	})
	if err != nil {
		return domain.StockInSession{}, err
	}
	s.log(ctx, "OpenStockIn", logrus.Fields{"session_id": session.ID}).Info("stock-in session opened")
	return session, nil
}

func (s *Service) ListStockInSessions(ctx context.Context, status string, limit int) ([]domain.StockInSession, error) {
	var sessions []domain.StockInSession
	err := s.view(ctx, func(tx store.Tx) error {
		var err error
		sessions, err = tx.ListSessions(ctx, status, limit)
		return err
	})
	return sessions, err
}

func (s *Service) StockInLines(ctx context.Context, sessionID int64) ([]domain.StockInLine, error) {
	var lines []domain.StockInLine
	err := s.view(ctx, func(tx store.Tx) error {
		if _, err := tx.GetSession(ctx, sessionID); err != nil {
			return err
		}
		var err error
		lines, err = tx.ListStockInLines(ctx, sessionID)
		return err
	})
	return lines, err
}

func lockOpenSession(ctx context.Context, sc *scope, sessionID int64) (domain.StockInSession, error) {
	session, err := sc.LockSession(ctx, sessionID)
	if err != nil {
		return domain.StockInSession{}, err
	}
	if session.Status != domain.SessionStatusOpen {
		return domain.StockInSession{}, fmt.Errorf("%w: session %d is %s", store.ErrInvalidSessionState, sessionID, session.Status)
	}
	return session, nil
}

// AddStockInLine stages one intake line. An unknown barcode creates the
// product from the request. The batch is picked by lot code, else by
// expiry within this session, else the line goes to the no-batch bucket.
func (s *Service) AddStockInLine(ctx context.Context, sessionID int64, req domain.StockInLineRequest) (domain.StockInLine, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.StockInLine{}, err
	}
	code, err := barcode.Normalize(req.Barcode)
	if err != nil {
		return domain.StockInLine{}, err
	}
	expiry, err := parseDate(req.ExpiryDate)
	if err != nil {
		return domain.StockInLine{}, err
	}
	lotCode := strings.TrimSpace(req.LotCode)

	var line domain.StockInLine
	err = s.inTx(ctx, "AddStockInLine", func(sc *scope) error {
		if _, err := lockOpenSession(ctx, sc, sessionID); err != nil {
			return err
		}
		product, err := s.productForIntake(ctx, sc, code, req)
		if err != nil {
			return err
		}
		qty, err := units.ToBase(product.Unit, req.Quantity)
		if err != nil {
			return err
		}
		if qty <= 0 {
			return fmt.Errorf("%w: %v %s rounds to zero", units.ErrInvalidQuantity, req.Quantity, product.Unit)
		}

		batchID, err := s.batchForIntake(ctx, sc, sessionID, product.ID, lotCode, expiry, req)
		if err != nil {
			return err
		}

		line, err = sc.InsertStockInLine(ctx, domain.StockInLine{
			SessionID:     sessionID,
			ProductID:     product.ID,
			BatchID:       batchID,
			QuantityBase:  qty,
			UnitCostCents: req.UnitCostCents,
			SupplierName:  strings.TrimSpace(req.SupplierName),
			SupplierDoc:   strings.TrimSpace(req.SupplierDoc),
			CreatedAt:     s.clock(),
		})
		return err
	})
	if err != nil {
		return domain.StockInLine{}, err
	}
	s.log(ctx, "AddStockInLine", logrus.Fields{"session_id": sessionID, "product_id": line.ProductID, "line_id": line.ID}).Debug("stock-in line staged")
	return line, nil
}

func (s *Service) productForIntake(ctx context.Context, sc *scope, code string, req domain.StockInLineRequest) (domain.Product, error) {
	product, err := sc.GetProductByBarcode(ctx, code)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, store.ErrProductNotFound) {
		return domain.Product{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || strings.TrimSpace(req.Unit) == "" {
		return domain.Product{}, fmt.Errorf("%w: barcode %s is unknown; name and unit are required to create it", store.ErrProductNotFound, code)
	}
	unit, err := units.ParseUnit(req.Unit)
	if err != nil {
		return domain.Product{}, err
	}
	vat := s.defaultVAT
	if req.VATRate != nil {
		vat = *req.VATRate
	}
	now := s.clock()
	return sc.CreateProduct(ctx, domain.Product{
		UUID:              xid.New(),
		Barcode:           code,
		Name:              name,
		Unit:              unit,
		PricePerUnitCents: req.PricePerUnitCents,
		VATRate:           vat,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
}

func (s *Service) batchForIntake(ctx context.Context, sc *scope, sessionID int64, productID int64, lotCode string, expiry *time.Time, req domain.StockInLineRequest) (*int64, error) {
	if lotCode == "" && expiry == nil {
		return nil, nil
	}

	var (
		b   domain.Batch
		err error
	)
	if lotCode != "" {
		b, err = sc.FindBatchByLot(ctx, productID, lotCode)
	} else {
		b, err = sc.FindSessionBatchByExpiry(ctx, productID, sessionID, *expiry)
	}
	if err == nil {
		if lotCode != "" && expiry != nil && !sameDay(b.ExpiryDate, expiry) {
			return nil, invalid("lot %s is recorded with a different expiry date", lotCode)
		}
		return &b.ID, nil
	}
	if !errors.Is(err, store.ErrBatchNotFound) {
		return nil, err
	}

	if lotCode == "" {
		if lotCode, err = sequence.NextLotCode(ctx, sc, sessionID, s.clock()); err != nil {
			return nil, err
		}
	}
	origin := sessionID
	b, err = sc.CreateBatch(ctx, domain.Batch{
		UUID:            xid.New(),
		ProductID:       productID,
		LotCode:         lotCode,
		ExpiryDate:      expiry,
		UnitCostCents:   req.UnitCostCents,
		SupplierName:    strings.TrimSpace(req.SupplierName),
		SupplierDoc:     strings.TrimSpace(req.SupplierDoc),
		OriginSessionID: &origin,
		ReceivedAt:      s.clock(),
	})
	if err != nil {
		return nil, err
	}
	return &b.ID, nil
}

func (s *Service) UpdateStockInLine(ctx context.Context, sessionID int64, lineID int64, req domain.StockInLineUpdateRequest) (domain.StockInLine, error) {
	var line domain.StockInLine
	err := s.inTx(ctx, "UpdateStockInLine", func(sc *scope) error {
		if _, err := lockOpenSession(ctx, sc, sessionID); err != nil {
			return err
		}
		current, err := sc.GetStockInLine(ctx, sessionID, lineID)
		if err != nil {
			return err
		}
		next := current
		switch {
		case req.Quantity.IsClear():
			return fmt.Errorf("%w: quantity cannot be cleared", units.ErrInvalidQuantity)
		case req.Quantity.IsSet():
			p, err := sc.GetProduct(ctx, current.ProductID)
			if err != nil {
				return err
			}
			human, _ := req.Quantity.Value()
			if next.QuantityBase, err = units.ToBase(p.Unit, human); err != nil {
				return err
			}
			if next.QuantityBase <= 0 {
				return fmt.Errorf("%w: quantity must be positive", units.ErrInvalidQuantity)
			}
		}
		next.UnitCostCents = domain.ApplyPtr(req.UnitCostCents, current.UnitCostCents)
		if next.UnitCostCents != nil && *next.UnitCostCents < 0 {
			return invalid("unit cost must not be negative")
		}
		next.SupplierName = strings.TrimSpace(req.SupplierName.Apply(current.SupplierName))
		next.SupplierDoc = strings.TrimSpace(req.SupplierDoc.Apply(current.SupplierDoc))

		if err := sc.UpdateStockInLine(ctx, next); err != nil {
			return err
		}
		line = next
		return nil
	})
	return line, err
}

func (s *Service) DeleteStockInLine(ctx context.Context, sessionID int64, lineID int64) error {
	return s.inTx(ctx, "DeleteStockInLine", func(sc *scope) error {
		if _, err := lockOpenSession(ctx, sc, sessionID); err != nil {
			return err
		}
		return sc.DeleteStockInLine(ctx, sessionID, lineID)
	})
}

type intakeGroup struct {
	productID int64
	batchID   *int64
	qty       int64
}

// groupStockInLines sums staged quantities per (product, batch) in the
// order each group first appears.
func groupStockInLines(lines []domain.StockInLine) []intakeGroup {
	type key struct {
		productID int64
		batchID   int64
		hasBatch  bool
	}
	index := make(map[key]int, len(lines))
	groups := make([]intakeGroup, 0, len(lines))
	for _, l := range lines {
		k := key{productID: l.ProductID}
		if l.BatchID != nil {
			k.batchID, k.hasBatch = *l.BatchID, true
		}
		if i, ok := index[k]; ok {
			groups[i].qty += l.QuantityBase
			continue
		}
		index[k] = len(groups)
		groups = append(groups, intakeGroup{productID: l.ProductID, batchID: l.BatchID, qty: l.QuantityBase})
	}
	return groups
}

// CloseStockIn books the staged lines as one stock_in movement per
// (product, batch) group and closes the session. The lines are kept for
// the summary.
func (s *Service) CloseStockIn(ctx context.Context, sessionID int64) (domain.StockInSession, error) {
	release := s.locker.Acquire(ctx, fmt.Sprintf("stock_in:%d", sessionID))
	defer release()

	var (
		session   domain.StockInSession
		movements int
	)
	err := s.inTx(ctx, "CloseStockIn", func(sc *scope) error {
		var err error
		if session, err = lockOpenSession(ctx, sc, sessionID); err != nil {
			return err
		}
		lines, err := sc.ListStockInLines(ctx, sessionID)
		if err != nil {
			return err
		}
		now := s.clock()
		note := fmt.Sprintf("stock_in_session:%d", sessionID)
		groups := groupStockInLines(lines)
		for _, g := range groups {
			if _, err := sc.AppendMovement(ctx, domain.Movement{
				UUID: xid.New(), CreatedAt: now, ProductID: g.productID, BatchID: g.batchID,
				Quantity: g.qty, Reason: domain.ReasonStockIn, Note: note,
			}); err != nil {
				return err
			}
			sc.touch(g.productID)
		}
		movements = len(groups)

		session.Status = domain.SessionStatusClosed
		session.ClosedAt = &now
		return sc.UpdateSession(ctx, session)
	})
	if err != nil {
		return domain.StockInSession{}, err
	}
	s.log(ctx, "CloseStockIn", logrus.Fields{"session_id": sessionID, "movements": movements}).Info("stock-in session closed")
	return session, nil
}

// DiscardStockIn drops the session and its staged lines. A batch the
// session created is removed too unless it has movements or another
// session still stages lines against it. The ledger is untouched.
func (s *Service) DiscardStockIn(ctx context.Context, sessionID int64) error {
	release := s.locker.Acquire(ctx, fmt.Sprintf("stock_in:%d", sessionID))
	defer release()

	removed := 0
	err := s.inTx(ctx, "DiscardStockIn", func(sc *scope) error {
		if _, err := lockOpenSession(ctx, sc, sessionID); err != nil {
			return err
		}
		batches, err := sc.ListSessionBatches(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := sc.DeleteSession(ctx, sessionID); err != nil {
			return err
		}
		for _, b := range batches {
			n, err := sc.CountBatchMovements(ctx, b.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			// Own lines are gone with the session; any left belong to others.
			if n, err = sc.CountBatchStockInLines(ctx, b.ID); err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			if err := sc.DeleteBatch(ctx, b.ID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log(ctx, "DiscardStockIn", logrus.Fields{"session_id": sessionID, "batches_removed": removed}).Info("stock-in session discarded")
	return nil
}

// StockInSummary aggregates the session's lines per product. Cost value
// prices each line at its unit cost per human unit; lines without a cost
// add nothing.
func (s *Service) StockInSummary(ctx context.Context, sessionID int64) (domain.StockInSummary, error) {
	var out domain.StockInSummary
	err := s.view(ctx, func(tx store.Tx) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		lines, err := tx.ListStockInLines(ctx, sessionID)
		if err != nil {
			return err
		}

		index := make(map[int64]int)
		rows := make([]domain.StockInSummaryLine, 0, len(lines))
		for _, l := range lines {
			i, ok := index[l.ProductID]
			if !ok {
				p, err := tx.GetProduct(ctx, l.ProductID)
				if err != nil {
					return err
				}
				i = len(rows)
				index[l.ProductID] = i
				rows = append(rows, domain.StockInSummaryLine{ProductID: p.ID, Name: p.Name, Barcode: p.Barcode, Unit: p.Unit})
			}
			rows[i].QuantityBase += l.QuantityBase
			if l.UnitCostCents != nil {
				v, err := units.Amount(rows[i].Unit, l.QuantityBase, *l.UnitCostCents)
				if err != nil {
					return err
				}
				rows[i].ValueCents += v
			}
		}

		out.Session = session
		for i := range rows {
			rows[i].Quantity, _ = units.FromBase(rows[i].Unit, rows[i].QuantityBase)
			out.TotalQuantity += rows[i].Quantity
			out.TotalValueCents += rows[i].ValueCents
		}
		out.Lines = rows
		out.TotalDistinct = len(rows)

		top := append([]domain.StockInSummaryLine(nil), rows...)
		sort.SliceStable(top, func(i, j int) bool { return top[i].ValueCents > top[j].ValueCents })
		if len(top) > summaryTopN {
			top = top[:summaryTopN]
		}
		out.Top = top
		return nil
	})
	return out, err
}

func sameDay(a *time.Time, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return domain.DateUTC(*a).Equal(domain.DateUTC(*b))
}
