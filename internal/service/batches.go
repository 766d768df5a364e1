package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"magazin/backend/internal/domain"
	"magazin/backend/internal/store"
	"magazin/backend/internal/xid"
)

func (s *Service) CreateBatch(ctx context.Context, req domain.BatchCreateRequest) (domain.Batch, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.Batch{}, err
	}
	expiry, err := parseDate(req.ExpiryDate)
	if err != nil {
		return domain.Batch{}, err
	}

	var created domain.Batch
	err = s.inTx(ctx, "CreateBatch", func(sc *scope) error {
		if _, err := sc.GetProduct(ctx, req.ProductID); err != nil {
			return err
		}
		var err error
		created, err = sc.CreateBatch(ctx, domain.Batch{
			UUID:          xid.New(),
			ProductID:     req.ProductID,
			LotCode:       strings.TrimSpace(req.LotCode),
			ExpiryDate:    expiry,
			UnitCostCents: req.UnitCostCents,
			SupplierName:  strings.TrimSpace(req.SupplierName),
			SupplierDoc:   strings.TrimSpace(req.SupplierDoc),
			ReceivedAt:    s.clock(),
		})
		return err
	})
	if err != nil {
		return domain.Batch{}, err
	}

	s.log(ctx, "CreateBatch", logrus.Fields{"product_id": created.ProductID, "batch_id": created.ID}).Info("batch created")
	return created, nil
}

func (s *Service) UpdateBatch(ctx context.Context, id int64, req domain.BatchUpdateRequest) (domain.Batch, error) {
	var saved domain.Batch
	err := s.inTx(ctx, "UpdateBatch", func(sc *scope) error {
		current, err := sc.GetBatch(ctx, id)
		if err != nil {
			return err
		}
		next := current
		next.LotCode = strings.TrimSpace(req.LotCode.Apply(current.LotCode))
		next.SupplierName = strings.TrimSpace(req.SupplierName.Apply(current.SupplierName))
		next.SupplierDoc = strings.TrimSpace(req.SupplierDoc.Apply(current.SupplierDoc))
		next.UnitCostCents = domain.ApplyPtr(req.UnitCostCents, current.UnitCostCents)
		if next.UnitCostCents != nil && *next.UnitCostCents < 0 {
			return invalid("unit cost must not be negative")
		}
		switch {
		case req.ExpiryDate.IsClear():
			next.ExpiryDate = nil
		case req.ExpiryDate.IsSet():
			raw, _ := req.ExpiryDate.Value()
			d, err := parseDate(raw)
			if err != nil {
				return err
			}
			next.ExpiryDate = d
		}

		saved, err = sc.UpdateBatch(ctx, next)
		return err
	})
	if err != nil {
		return domain.Batch{}, err
	}

	s.log(ctx, "UpdateBatch", logrus.Fields{"batch_id": saved.ID, "version": saved.Version}).Info("batch updated")
	return saved, nil
}

// DeleteBatch removes the batch record. Its movements stay in the ledger
// and count towards the product's no-batch bucket from then on.
func (s *Service) DeleteBatch(ctx context.Context, id int64) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	err := s.inTx(ctx, "DeleteBatch", func(sc *scope) error {
		b, err := sc.GetBatch(ctx, id)
		if err != nil {
			return err
		}
		sc.touch(b.ProductID)
		return sc.DeleteBatch(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log(ctx, "DeleteBatch", logrus.Fields{"batch_id": id}).Info("batch deleted")
	return nil
}

func (s *Service) GetBatch(ctx context.Context, id int64) (domain.Batch, error) {
	var b domain.Batch
	err := s.view(ctx, func(tx store.Tx) error {
		var err error
		b, err = tx.GetBatch(ctx, id)
		return err
	})
	return b, err
}
