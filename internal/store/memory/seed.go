package memory

import (
	"context"
	"time"

	"magazin/backend/internal/domain"
	"magazin/backend/internal/store"
	"magazin/backend/internal/xid"
)

// NewSeeded returns a store with a small demo catalogue and opening stock.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	soon := domain.DateUTC(now.AddDate(0, 0, 5))
	later := domain.DateUTC(now.AddDate(0, 2, 0))

	seed := []struct {
		product domain.Product
		lots    []domain.Batch
		qty     []int64
	}{
		{
			product: domain.Product{Barcode: "5941234000013", Name: "Lapte 1.5% 1L", Unit: domain.UnitPiece, PricePerUnitCents: 799, VATRate: 9},
			lots:    []domain.Batch{{LotCode: "L-LAPTE-01", ExpiryDate: &soon}, {LotCode: "L-LAPTE-02", ExpiryDate: &later}},
			qty:     []int64{6, 12},
		},
		{
			product: domain.Product{Barcode: "5941234000020", Name: "Mere Golden", Unit: domain.UnitKilogram, PricePerUnitCents: 649, VATRate: 9},
			lots:    []domain.Batch{{LotCode: "L-MERE-01", ExpiryDate: &later}},
			qty:     []int64{25000},
		},
		{
			product: domain.Product{Barcode: "5941234000037", Name: "Ulei floarea soarelui", Unit: domain.UnitLiter, PricePerUnitCents: 1099, VATRate: 9},
			lots:    []domain.Batch{{LotCode: "L-ULEI-01"}},
			qty:     []int64{10000},
		},
	}

	_ = s.InTx(context.Background(), func(tx store.Tx) error {
		ctx := context.Background()
		for _, item := range seed {
			item.product.UUID = xid.New()
			item.product.Active = true
			item.product.CreatedAt = now
			item.product.UpdatedAt = now
			p, err := tx.CreateProduct(ctx, item.product)
			if err != nil {
				return err
			}
			for i, lot := range item.lots {
				lot.UUID = xid.New()
				lot.ProductID = p.ID
				lot.ReceivedAt = now
				b, err := tx.CreateBatch(ctx, lot)
				if err != nil {
					return err
				}
				batchID := b.ID
				if _, err := tx.AppendMovement(ctx, domain.Movement{
					UUID:      xid.New(),
					CreatedAt: now,
					ProductID: p.ID,
					BatchID:   &batchID,
					Quantity:  item.qty[i],
					Reason:    domain.ReasonStockIn,
					Note:      "seed",
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return s
}
