package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"magazin/backend/internal/domain"
	"magazin/backend/internal/store"
)

func mustProduct(t *testing.T, s *Store, barcode string) domain.Product {
	t.Helper()
	var created domain.Product
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		created, err = tx.CreateProduct(context.Background(), domain.Product{
			Barcode: barcode, Name: "Produs " + barcode, Unit: domain.UnitPiece, PricePerUnitCents: 100, VATRate: 9, Active: true,
		})
		return err
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return created
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := New()
	p := mustProduct(t, s, "4006381333931")
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.AppendMovement(ctx, domain.Movement{ProductID: p.ID, Quantity: 5, Reason: domain.ReasonStockIn}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_ = s.View(ctx, func(tx store.Tx) error {
		stock, _ := tx.StockOf(ctx, p.ID)
		if stock != 0 {
			t.Fatalf("expected rolled back stock 0, got %d", stock)
		}
		return nil
	})
}

func TestInTxRollsBackOnPanic(t *testing.T) {
	s := New()
	p := mustProduct(t, s, "4006381333931")
	ctx := context.Background()

	func() {
		defer func() { _ = recover() }()
		_ = s.InTx(ctx, func(tx store.Tx) error {
			_, _ = tx.AppendMovement(ctx, domain.Movement{ProductID: p.ID, Quantity: 5, Reason: domain.ReasonStockIn})
			panic("handler crashed")
		})
	}()

	err := s.View(ctx, func(tx store.Tx) error {
		stock, _ := tx.StockOf(ctx, p.ID)
		if stock != 0 {
			t.Fatalf("expected stock 0 after panic, got %d", stock)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view after panic: %v", err)
	}
}

func TestViewRejectsWrites(t *testing.T) {
	s := New()
	err := s.View(context.Background(), func(tx store.Tx) error {
		_, err := tx.NextSequence(context.Background(), "x")
		return err
	})
	if !errors.Is(err, store.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestBarcodeUniqueness(t *testing.T) {
	s := New()
	mustProduct(t, s, "4006381333931")
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.CreateProduct(context.Background(), domain.Product{Barcode: "4006381333931", Name: "dup", Unit: domain.UnitPiece})
		return err
	})
	if !errors.Is(err, store.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
}

func TestDeleteBatchKeepsMovements(t *testing.T) {
	s := New()
	p := mustProduct(t, s, "4006381333931")
	ctx := context.Background()

	var batchID int64
	err := s.InTx(ctx, func(tx store.Tx) error {
		b, err := tx.CreateBatch(ctx, domain.Batch{ProductID: p.ID, LotCode: "L1"})
		if err != nil {
			return err
		}
		batchID = b.ID
		_, err = tx.AppendMovement(ctx, domain.Movement{ProductID: p.ID, BatchID: &batchID, Quantity: 4, Reason: domain.ReasonStockIn})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := s.InTx(ctx, func(tx store.Tx) error { return tx.DeleteBatch(ctx, batchID) }); err != nil {
		t.Fatalf("delete batch: %v", err)
	}

	_ = s.View(ctx, func(tx store.Tx) error {
		total, _ := tx.StockOf(ctx, p.ID)
		noBatch, _ := tx.StockWithNoBatch(ctx, p.ID)
		if total != 4 || noBatch != 4 {
			t.Fatalf("expected movement to survive as no-batch stock, total=%d noBatch=%d", total, noBatch)
		}
		return nil
	})
}

func TestDeleteProductRestrictedBySaleLines(t *testing.T) {
	s := New()
	p := mustProduct(t, s, "4006381333931")
	ctx := context.Background()

	err := s.InTx(ctx, func(tx store.Tx) error {
		r, err := tx.CreateReceipt(ctx, domain.Receipt{Status: domain.ReceiptStatusOpen, OpenedAt: time.Now()})
		if err != nil {
			return err
		}
		_, err = tx.InsertReceiptLine(ctx, domain.ReceiptLine{ReceiptID: r.ID, ProductID: p.ID, QtyBase: 1, UnitPriceCents: 100})
		return err
	})
	if err != nil {
		t.Fatalf("seed receipt: %v", err)
	}

	err = s.InTx(ctx, func(tx store.Tx) error { return tx.DeleteProduct(ctx, p.ID) })
	if !errors.Is(err, store.ErrConstraintViolation) {
		t.Fatalf("expected restrict violation, got %v", err)
	}
}

func TestBatchesWithPositiveStockOrder(t *testing.T) {
	s := New()
	p := mustProduct(t, s, "4006381333931")
	ctx := context.Background()
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	err := s.InTx(ctx, func(tx store.Tx) error {
		for _, seed := range []struct {
			lot    string
			expiry *time.Time
			qty    int64
		}{{"undated", nil, 5}, {"feb", &feb, 5}, {"jan", &jan, 5}, {"empty", &jan, 0}} {
			b, err := tx.CreateBatch(ctx, domain.Batch{ProductID: p.ID, LotCode: seed.lot, ExpiryDate: seed.expiry})
			if err != nil {
				return err
			}
			if seed.qty == 0 {
				continue
			}
			id := b.ID
			if _, err := tx.AppendMovement(ctx, domain.Movement{ProductID: p.ID, BatchID: &id, Quantity: seed.qty, Reason: domain.ReasonStockIn}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	_ = s.View(ctx, func(tx store.Tx) error {
		batches, _ := tx.BatchesWithPositiveStock(ctx, p.ID)
		got := make([]string, 0, len(batches))
		for _, bs := range batches {
			got = append(got, bs.Batch.LotCode)
		}
		want := []string{"jan", "feb", "undated"}
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, got)
			}
		}
		return nil
	})
}

func TestNextSequenceConcurrent(t *testing.T) {
	s := New()
	ctx := context.Background()
	const callers = 64

	values := make([]int64, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.InTx(ctx, func(tx store.Tx) error {
				v, err := tx.NextSequence(ctx, domain.SequenceInternalEAN)
				values[i] = v
				return err
			})
		}(i)
	}
	wg.Wait()

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for i, v := range values {
		if v != internalEANSeed+int64(i)+1 {
			t.Fatalf("expected consecutive values from %d, got %v", internalEANSeed+1, values)
		}
	}
}

func TestNewSeededHasStock(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	_ = s.View(ctx, func(tx store.Tx) error {
		rows, err := tx.StockList(ctx, "")
		if err != nil {
			t.Fatalf("stock list: %v", err)
		}
		if len(rows) == 0 {
			t.Fatalf("expected seeded catalogue")
		}
		for _, row := range rows {
			if row.StockBase <= 0 {
				t.Fatalf("expected seeded stock for %s", row.Name)
			}
		}
		return nil
	})
}
