package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"magazin/backend/internal/barcode"
	"magazin/backend/internal/domain"
	"magazin/backend/internal/sequence"
	"magazin/backend/internal/store"
	"magazin/backend/internal/units"
	"magazin/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context, search string) ([]domain.Product, error) {
	var products []domain.Product
	err := s.view(ctx, func(tx store.Tx) error {
		var err error
		products, err = tx.ListProducts(ctx, search)
		return err
	})
	return products, err
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	var product domain.Product
	err := s.view(ctx, func(tx store.Tx) error {
		var err error
		product, err = tx.GetProduct(ctx, id)
		return err
	})
	return product, err
}

// LookupBarcode validates raw and finds the product carrying it.
func (s *Service) LookupBarcode(ctx context.Context, raw string) (domain.Product, error) {
	code, err := barcode.Normalize(raw)
	if err != nil {
		return domain.Product{}, err
	}
	var product domain.Product
	err = s.view(ctx, func(tx store.Tx) error {
		var err error
		product, err = tx.GetProductByBarcode(ctx, code)
		return err
	})
	return product, err
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.Product{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, invalid("name is required")
	}
	unit, err := units.ParseUnit(req.Unit)
	if err != nil {
		return domain.Product{}, err
	}
	code := ""
	if strings.TrimSpace(req.Barcode) != "" {
		if code, err = barcode.Normalize(req.Barcode); err != nil {
			return domain.Product{}, err
		}
	}
	vat := s.defaultVAT
	if req.VATRate != nil {
		vat = *req.VATRate
	}

	now := s.clock()
	product := domain.Product{
		UUID:              xid.New(),
		Barcode:           code,
		Name:              name,
		Unit:              unit,
		PricePerUnitCents: req.PricePerUnitCents,
		VATRate:           vat,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var created domain.Product
	err = s.inTx(ctx, "CreateProduct", func(sc *scope) error {
		p := product
		if p.Barcode == "" && req.GenerateBarcode {
			ean, err := sequence.NextInternalEAN(ctx, sc, s.eanPrefix)
			if err != nil {
				return err
			}
			p.Barcode = ean
		}
		var err error
		created, err = sc.CreateProduct(ctx, p)
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.log(ctx, "CreateProduct", logrus.Fields{"product_id": created.ID, "barcode": created.Barcode}).Info("product created")
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	var saved domain.Product
	err := s.inTx(ctx, "UpdateProduct", func(sc *scope) error {
		current, err := sc.LockProduct(ctx, id)
		if err != nil {
			return err
		}
		if req.ExpectedVersion != 0 && req.ExpectedVersion != current.Version {
			return store.ErrVersionConflict
		}

		next := current
		if req.Name.IsClear() {
			return invalid("name cannot be cleared")
		}
		next.Name = strings.TrimSpace(req.Name.Apply(current.Name))
		if next.Name == "" {
			return invalid("name is required")
		}

		switch {
		case req.Barcode.IsClear():
			next.Barcode = ""
		case req.Barcode.IsSet():
			raw, _ := req.Barcode.Value()
			code, err := barcode.Normalize(raw)
			if err != nil {
				return err
			}
			next.Barcode = code
		}

		if req.PricePerUnitCents.IsClear() {
			return invalid("price cannot be cleared")
		}
		next.PricePerUnitCents = req.PricePerUnitCents.Apply(current.PricePerUnitCents)
		if next.PricePerUnitCents < 0 {
			return invalid("price must not be negative")
		}

		if req.VATRate.IsClear() {
			next.VATRate = s.defaultVAT
		} else {
			next.VATRate = req.VATRate.Apply(current.VATRate)
		}
		if next.VATRate < 0 || next.VATRate > 100 {
			return invalid("vat rate must be between 0 and 100")
		}

		if req.Active.IsClear() {
			return invalid("active cannot be cleared")
		}
		next.Active = req.Active.Apply(current.Active)
		next.UpdatedAt = s.clock()

		saved, err = sc.UpdateProduct(ctx, next)
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.log(ctx, "UpdateProduct", logrus.Fields{"product_id": saved.ID, "version": saved.Version}).Info("product updated")
	return saved, nil
}

// DeleteProduct removes a product with its batches and movements. Products
// that appear on any receipt line are kept as sale history.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	err := s.inTx(ctx, "DeleteProduct", func(sc *scope) error {
		if _, err := sc.LockProduct(ctx, id); err != nil {
			return err
		}
		n, err := sc.CountReceiptLinesForProduct(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return errProductHasSales
		}
		sc.touch(id)
		return sc.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log(ctx, "DeleteProduct", logrus.Fields{"product_id": id}).Info("product deleted")
	return nil
}

var errProductHasSales = fmt.Errorf("%w: product has sale history", store.ErrConstraintViolation)

// AssignBarcodeIfMissing issues an internal EAN-13 for a product without a
// barcode. Products that already carry one are returned unchanged.
func (s *Service) AssignBarcodeIfMissing(ctx context.Context, id int64) (domain.Product, error) {
	var product domain.Product
	issued := false
	err := s.inTx(ctx, "AssignBarcodeIfMissing", func(sc *scope) error {
		current, err := sc.LockProduct(ctx, id)
		if err != nil {
			return err
		}
		if current.Barcode != "" {
			product = current
			return nil
		}
		ean, err := sequence.NextInternalEAN(ctx, sc, s.eanPrefix)
		if err != nil {
			return err
		}
		current.Barcode = ean
		current.UpdatedAt = s.clock()
		product, err = sc.UpdateProduct(ctx, current)
		issued = err == nil
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}
	if issued {
		s.log(ctx, "AssignBarcodeIfMissing", logrus.Fields{"product_id": id, "barcode": product.Barcode}).Info("internal barcode issued")
	}
	return product, nil
}
