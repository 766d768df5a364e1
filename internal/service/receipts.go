package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"magazin/backend/internal/barcode"
	"magazin/backend/internal/domain"
	"magazin/backend/internal/ledger"
	"magazin/backend/internal/store"
	"magazin/backend/internal/units"
	"magazin/backend/internal/xid"
)

func (s *Service) OpenReceipt(ctx context.Context) (domain.Receipt, error) {
	var receipt domain.Receipt
	err := s.inTx(ctx, "OpenReceipt", func(sc *scope) error {
		var err error
		receipt, err = sc.CreateReceipt(ctx, domain.Receipt{
			UUID:     xid.New(),
			Status:   domain.ReceiptStatusOpen,
			OpenedAt: s.clock(),
		})
		return err
	})
	if err != nil {
		return domain.Receipt{}, err
	}
	s.log(ctx, "OpenReceipt", logrus.Fields{"receipt_id": receipt.ID}).Info("receipt opened")
	return receipt, nil
}

// loadReceipt fills in the lines. An open receipt reports the running sum
// of its lines; closed and void receipts report the cached total.
func loadReceipt(ctx context.Context, tx store.Tx, receipt domain.Receipt) (domain.Receipt, error) {
	lines, err := tx.ListReceiptLines(ctx, receipt.ID)
	if err != nil {
		return domain.Receipt{}, err
	}
	receipt.Lines = lines
	if receipt.Status == domain.ReceiptStatusOpen {
		receipt.TotalCents = sumLines(lines)
	}
	return receipt, nil
}

func sumLines(lines []domain.ReceiptLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.LineTotalCents
	}
	return total
}

func (s *Service) GetReceipt(ctx context.Context, id int64) (domain.Receipt, error) {
	var receipt domain.Receipt
	err := s.view(ctx, func(tx store.Tx) error {
		r, err := tx.GetReceipt(ctx, id)
		if err != nil {
			return err
		}
		receipt, err = loadReceipt(ctx, tx, r)
		return err
	})
	return receipt, err
}

func (s *Service) ListReceipts(ctx context.Context, status string, limit int) ([]domain.Receipt, error) {
	switch status {
	case "", domain.ReceiptStatusOpen, domain.ReceiptStatusClosed, domain.ReceiptStatusVoid:
	default:
		return nil, invalid("unknown receipt status %q", status)
	}
	var receipts []domain.Receipt
	err := s.view(ctx, func(tx store.Tx) error {
		var err error
		receipts, err = tx.ListReceipts(ctx, status, limit)
		return err
	})
	return receipts, err
}

func lockOpenReceipt(ctx context.Context, sc *scope, id int64) (domain.Receipt, error) {
	receipt, err := sc.LockReceipt(ctx, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	if receipt.Status != domain.ReceiptStatusOpen {
		return domain.Receipt{}, fmt.Errorf("%w: receipt %d is %s", store.ErrInvalidReceiptState, id, receipt.Status)
	}
	return receipt, nil
}

// AddReceiptLine scans a product onto an open receipt. A line with the
// same product, prices and VAT rate absorbs the quantity; a price change
// between scans opens a new line.
func (s *Service) AddReceiptLine(ctx context.Context, receiptID int64, req domain.ReceiptLineRequest) (domain.Receipt, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.Receipt{}, err
	}
	code, err := barcode.Normalize(req.Barcode)
	if err != nil {
		return domain.Receipt{}, err
	}

	var receipt domain.Receipt
	err = s.inTx(ctx, "AddReceiptLine", func(sc *scope) error {
		r, err := lockOpenReceipt(ctx, sc, receiptID)
		if err != nil {
			return err
		}
		p, err := sc.GetProductByBarcode(ctx, code)
		if err != nil {
			return err
		}
		if p.Unit == domain.UnitPiece && !units.IsWhole(req.Quantity) {
			return fmt.Errorf("%w: %s is sold in whole pieces", units.ErrInvalidQuantity, p.Name)
		}
		qty, err := units.ToBase(p.Unit, req.Quantity)
		if err != nil {
			return err
		}
		if qty <= 0 {
			return fmt.Errorf("%w: quantity must be positive", units.ErrInvalidQuantity)
		}
		unitPrice, err := units.BaseUnitPrice(p.Unit, p.PricePerUnitCents)
		if err != nil {
			return err
		}

		line, err := sc.FindReceiptLine(ctx, receiptID, store.ReceiptLineKey{
			ProductID:         p.ID,
			UnitPriceCents:    unitPrice,
			PricePerUnitCents: p.PricePerUnitCents,
			VATRate:           p.VATRate,
		})
		switch {
		case err == nil:
			line.QtyBase += qty
			if line.LineTotalCents, err = units.Amount(p.Unit, line.QtyBase, line.PricePerUnitCents); err != nil {
				return err
			}
			if err := sc.UpdateReceiptLine(ctx, line); err != nil {
				return err
			}
		case isNotFound(err):
			total, err := units.Amount(p.Unit, qty, p.PricePerUnitCents)
			if err != nil {
				return err
			}
			if _, err := sc.InsertReceiptLine(ctx, domain.ReceiptLine{
				ReceiptID:         receiptID,
				ProductID:         p.ID,
				QtyBase:           qty,
				UnitPriceCents:    unitPrice,
				PricePerUnitCents: p.PricePerUnitCents,
				VATRate:           p.VATRate,
				LineTotalCents:    total,
			}); err != nil {
				return err
			}
		default:
			return err
		}

		receipt, err = loadReceipt(ctx, sc, r)
		return err
	})
	if err != nil {
		return domain.Receipt{}, err
	}
	return receipt, nil
}

func (s *Service) RemoveReceiptLine(ctx context.Context, receiptID int64, lineID int64) (domain.Receipt, error) {
	var receipt domain.Receipt
	err := s.inTx(ctx, "RemoveReceiptLine", func(sc *scope) error {
		r, err := lockOpenReceipt(ctx, sc, receiptID)
		if err != nil {
			return err
		}
		if err := sc.DeleteReceiptLine(ctx, receiptID, lineID); err != nil {
			return err
		}
		receipt, err = loadReceipt(ctx, sc, r)
		return err
	})
	return receipt, err
}

// FinalizeReceipt allocates every line against stock in one transaction
// and closes the receipt. If any line cannot be covered nothing is
// committed and the receipt stays open.
func (s *Service) FinalizeReceipt(ctx context.Context, receiptID int64) (domain.Receipt, error) {
	release := s.locker.Acquire(ctx, fmt.Sprintf("receipt:%d", receiptID))
	defer release()

	var receipt domain.Receipt
	err := s.inTx(ctx, "FinalizeReceipt", func(sc *scope) error {
		r, err := lockOpenReceipt(ctx, sc, receiptID)
		if err != nil {
			return err
		}
		lines, err := sc.ListReceiptLines(ctx, receiptID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("%w: receipt %d has no lines", store.ErrInvalidReceiptState, receiptID)
		}

		// Lock products in id order so concurrent finalizes cannot deadlock.
		productIDs := make([]int64, 0, len(lines))
		seen := make(map[int64]bool, len(lines))
		for _, l := range lines {
			if !seen[l.ProductID] {
				seen[l.ProductID] = true
				productIDs = append(productIDs, l.ProductID)
			}
		}
		sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })
		for _, id := range productIDs {
			if _, err := sc.LockProduct(ctx, id); err != nil {
				return err
			}
		}

		now := s.clock()
		note := fmt.Sprintf("receipt:%d", receiptID)
		for _, l := range lines {
			if _, err := ledger.Allocate(ctx, sc, ledger.Request{
				ProductID: l.ProductID,
				Quantity:  l.QtyBase,
				Reason:    domain.ReasonSale,
				ReceiptID: &receiptID,
				Note:      note,
				At:        now,
			}); err != nil {
				return err
			}
		}
		sc.touch(productIDs...)

		r.Status = domain.ReceiptStatusClosed
		r.ClosedAt = &now
		r.TotalCents = sumLines(lines)
		if err := sc.UpdateReceipt(ctx, r); err != nil {
			return err
		}
		r.Lines = lines
		receipt = r
		return nil
	})
	if err != nil {
		s.log(ctx, "FinalizeReceipt", logrus.Fields{"receipt_id": receiptID}).WithError(err).Warn("receipt finalize rejected")
		return domain.Receipt{}, err
	}
	s.log(ctx, "FinalizeReceipt", logrus.Fields{"receipt_id": receiptID, "total_cents": receipt.TotalCents}).Info("receipt finalized")
	return receipt, nil
}

// VoidReceipt cancels an open receipt and drops its lines. An open receipt
// has no ledger effect, so nothing is booked.
func (s *Service) VoidReceipt(ctx context.Context, receiptID int64) (domain.Receipt, error) {
	release := s.locker.Acquire(ctx, fmt.Sprintf("receipt:%d", receiptID))
	defer release()

	var receipt domain.Receipt
	err := s.inTx(ctx, "VoidReceipt", func(sc *scope) error {
		r, err := lockOpenReceipt(ctx, sc, receiptID)
		if err != nil {
			return err
		}
		if _, err := sc.DeleteReceiptLines(ctx, receiptID); err != nil {
			return err
		}
		now := s.clock()
		r.Status = domain.ReceiptStatusVoid
		r.ClosedAt = &now
		r.TotalCents = 0
		if err := sc.UpdateReceipt(ctx, r); err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return domain.Receipt{}, err
	}
	s.log(ctx, "VoidReceipt", logrus.Fields{"receipt_id": receiptID}).Info("receipt voided")
	return receipt, nil
}
