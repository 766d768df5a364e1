package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"magazin/backend/internal/barcode"
	"magazin/backend/internal/cache"
	"magazin/backend/internal/domain"
	"magazin/backend/internal/store"
	"magazin/backend/internal/store/memory"
	"magazin/backend/internal/units"
)

var fixedNow = time.Date(2030, 1, 5, 10, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	svc := New(st, Options{Now: func() time.Time { return fixedNow }})
	return svc, st
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func mustCreateProduct(t *testing.T, svc *Service, code string, unit string, price int64) domain.Product {
	t.Helper()
	p, err := svc.CreateProduct(context.Background(), domain.ProductCreateRequest{
		Barcode: code, Name: "Produs " + code, Unit: unit, PricePerUnitCents: price,
	})
	if err != nil {
		t.Fatalf("create product %s: %v", code, err)
	}
	return p
}

func mustStockIn(t *testing.T, svc *Service, lines ...domain.StockInLineRequest) domain.StockInSession {
	t.Helper()
	ctx := context.Background()
	session, err := svc.OpenStockIn(ctx, domain.StockInOpenRequest{})
	if err != nil {
		t.Fatalf("open stock-in: %v", err)
	}
	for _, l := range lines {
		if _, err := svc.AddStockInLine(ctx, session.ID, l); err != nil {
			t.Fatalf("add stock-in line: %v", err)
		}
	}
	closed, err := svc.CloseStockIn(ctx, session.ID)
	if err != nil {
		t.Fatalf("close stock-in: %v", err)
	}
	return closed
}

func countMovements(t *testing.T, st store.Store, productID int64) int {
	t.Helper()
	n := 0
	err := st.View(context.Background(), func(tx store.Tx) error {
		ms, err := tx.ListMovements(context.Background(), store.MovementFilter{ProductID: productID})
		n = len(ms)
		return err
	})
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	return n
}

func ledgerSum(t *testing.T, st store.Store, productID int64) int64 {
	t.Helper()
	var sum int64
	err := st.View(context.Background(), func(tx store.Tx) error {
		ms, err := tx.ListMovements(context.Background(), store.MovementFilter{ProductID: productID})
		for _, m := range ms {
			sum += m.Quantity
		}
		return err
	})
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	return sum
}

func TestCreateProductValidatesBarcodeAndUnit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Barcode: "4006381333932", Name: "X", Unit: "piece"})
	var bErr *barcode.Error
	if !errors.As(err, &bErr) || bErr.Reason != barcode.ReasonChecksum {
		t.Fatalf("expected checksum error, got %v", err)
	}

	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "X", Unit: "dozen"})
	if !errors.Is(err, units.ErrInvalidUnit) {
		t.Fatalf("expected invalid unit, got %v", err)
	}

	p, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Barcode: "036000291452", Name: "Cola", Unit: "buc", PricePerUnitCents: 450})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if p.Barcode != "0036000291452" || p.Unit != domain.UnitPiece || p.VATRate != 9 || p.Version != 1 {
		t.Fatalf("unexpected product: %+v", p)
	}

	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{Barcode: "0036000291452", Name: "Cola 2", Unit: "piece"})
	if !errors.Is(err, store.ErrConstraintViolation) {
		t.Fatalf("expected duplicate barcode to violate constraint, got %v", err)
	}
}

func TestCreateProductIssuesInternalBarcode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Paine", Unit: "piece", PricePerUnitCents: 300, GenerateBarcode: true})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if p.Barcode != "2900001000017" {
		t.Fatalf("expected first internal barcode, got %q", p.Barcode)
	}

	bare, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Covrigi", Unit: "piece", PricePerUnitCents: 150})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if bare.Barcode != "" {
		t.Fatalf("expected no barcode, got %q", bare.Barcode)
	}
	assigned, err := svc.AssignBarcodeIfMissing(ctx, bare.ID)
	if err != nil {
		t.Fatalf("assign barcode: %v", err)
	}
	if assigned.Barcode != "2900001000024" || assigned.Version != 2 {
		t.Fatalf("unexpected assigned product: %+v", assigned)
	}
	again, err := svc.AssignBarcodeIfMissing(ctx, bare.ID)
	if err != nil {
		t.Fatalf("assign barcode again: %v", err)
	}
	if again.Barcode != assigned.Barcode || again.Version != assigned.Version {
		t.Fatalf("expected assignment to be idempotent, got %+v", again)
	}
}

func TestUpdateProductTaggedFieldsAndVersion(t *testing.T) {
	svc, _ := newTestService(t)
	p := mustCreateProduct(t, svc, "4006381333931", "piece", 500)

	if _, err := svc.UpdateProduct(context.Background(), p.ID, domain.ProductUpdateRequest{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden without admin, got %v", err)
	}

	ctx := adminCtx()
	updated, err := svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{
		ExpectedVersion:   1,
		PricePerUnitCents: domain.SetTo[int64](550),
		Barcode:           domain.Clear[string](),
	})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.PricePerUnitCents != 550 || updated.Barcode != "" || updated.Name != p.Name || updated.Version != 2 {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if updated.Unit != domain.UnitPiece {
		t.Fatalf("expected unit to stay piece, got %s", updated.Unit)
	}

	_, err = svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{ExpectedVersion: 1, Name: domain.SetTo("Stale")})
	if !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	_, err = svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{Name: domain.Clear[string]()})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected clearing the name to be invalid, got %v", err)
	}
}

func TestCloseStockInCompactsLinesPerBatch(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := mustCreateProduct(t, svc, "4006381333931", "piece", 500)

	session, err := svc.OpenStockIn(ctx, domain.StockInOpenRequest{Note: "furnizor"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, qty := range []float64{5, 3} {
		if _, err := svc.AddStockInLine(ctx, session.ID, domain.StockInLineRequest{
			Barcode: p.Barcode, Quantity: qty, LotCode: "LOT-A",
		}); err != nil {
			t.Fatalf("add line: %v", err)
		}
	}
	if got := countMovements(t, st, p.ID); got != 0 {
		t.Fatalf("expected staged lines to leave the ledger alone, got %d movements", got)
	}

	closed, err := svc.CloseStockIn(ctx, session.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != domain.SessionStatusClosed || closed.ClosedAt == nil {
		t.Fatalf("unexpected session after close: %+v", closed)
	}

	var movements []domain.Movement
	err = st.View(ctx, func(tx store.Tx) error {
		var err error
		movements, err = tx.ListMovements(ctx, store.MovementFilter{ProductID: p.ID})
		return err
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(movements) != 1 || movements[0].Quantity != 8 || movements[0].Reason != domain.ReasonStockIn || movements[0].BatchID == nil {
		t.Fatalf("expected one +8 stock_in movement on a batch, got %+v", movements)
	}
	stock, err := svc.StockOf(ctx, p.ID)
	if err != nil || stock != 8 {
		t.Fatalf("expected stock 8, got %d (%v)", stock, err)
	}

	if _, err := svc.CloseStockIn(ctx, session.ID); !errors.Is(err, store.ErrInvalidSessionState) {
		t.Fatalf("expected second close to fail, got %v", err)
	}
	_, err = svc.AddStockInLine(ctx, session.ID, domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 1})
	if !errors.Is(err, store.ErrInvalidSessionState) {
		t.Fatalf("expected add after close to fail, got %v", err)
	}
}

func TestAddStockInLineCreatesProductAndLotCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.OpenStockIn(ctx, domain.StockInOpenRequest{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_, err = svc.AddStockInLine(ctx, session.ID, domain.StockInLineRequest{Barcode: "5941234000044", Quantity: 1})
	if !errors.Is(err, store.ErrProductNotFound) {
		t.Fatalf("expected unknown barcode without name to fail, got %v", err)
	}

	line, err := svc.AddStockInLine(ctx, session.ID, domain.StockInLineRequest{
		Barcode: "5941234000044", Name: "Cascaval", Unit: "kg", PricePerUnitCents: 3999,
		Quantity: 1.2345, ExpiryDate: "2030-02-01",
	})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	if line.QuantityBase != 1235 || line.BatchID == nil {
		t.Fatalf("unexpected line: %+v", line)
	}

	second, err := svc.AddStockInLine(ctx, session.ID, domain.StockInLineRequest{
		Barcode: "5941234000044", Quantity: 0.5, ExpiryDate: "2030-02-01",
	})
	if err != nil {
		t.Fatalf("add second line: %v", err)
	}
	if second.BatchID == nil || *second.BatchID != *line.BatchID {
		t.Fatalf("expected same session batch for same expiry, got %v vs %v", second.BatchID, line.BatchID)
	}

	b, err := svc.GetBatch(ctx, *line.BatchID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	want := "S1-20300105-0001"
	if b.LotCode != want {
		t.Fatalf("expected lot code %s, got %s", want, b.LotCode)
	}
	if b.OriginSessionID == nil || *b.OriginSessionID != session.ID {
		t.Fatalf("expected origin session %d, got %v", session.ID, b.OriginSessionID)
	}
}

func TestDiscardStockInLeavesLedgerUnchanged(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := mustCreateProduct(t, svc, "4006381333931", "piece", 500)
	mustStockIn(t, svc, domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 4})

	session, err := svc.OpenStockIn(ctx, domain.StockInOpenRequest{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	line, err := svc.AddStockInLine(ctx, session.ID, domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 10, ExpiryDate: "2030-03-01"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := svc.DiscardStockIn(ctx, session.ID); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if got := ledgerSum(t, st, p.ID); got != 4 {
		t.Fatalf("expected stock 4 after discard, got %d", got)
	}
	if _, err := svc.GetBatch(ctx, *line.BatchID); !errors.Is(err, store.ErrBatchNotFound) {
		t.Fatalf("expected session batch to be removed, got %v", err)
	}
	if _, err := svc.StockInLines(ctx, session.ID); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected session to be gone, got %v", err)
	}
}

func TestDiscardStockInKeepsBatchStagedByAnotherSession(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := mustCreateProduct(t, svc, "4006381333931", "piece", 500)

	first, err := svc.OpenStockIn(ctx, domain.StockInOpenRequest{})
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	line, err := svc.AddStockInLine(ctx, first.ID, domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 2, LotCode: "L42", ExpiryDate: "2030-03-01"})
	if err != nil {
		t.Fatalf("add to first: %v", err)
	}
	second, err := svc.OpenStockIn(ctx, domain.StockInOpenRequest{})
	if err != nil {
		t.Fatalf("open second: %v", err)
	}
	shared, err := svc.AddStockInLine(ctx, second.ID, domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 4, LotCode: "L42"})
	if err != nil {
		t.Fatalf("add to second: %v", err)
	}
	if shared.BatchID == nil || *shared.BatchID != *line.BatchID {
		t.Fatalf("expected both sessions to stage lot L42 on batch %d, got %v", *line.BatchID, shared.BatchID)
	}

	if err := svc.DiscardStockIn(ctx, first.ID); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := svc.GetBatch(ctx, *line.BatchID); err != nil {
		t.Fatalf("expected lot L42 to survive the discard, got %v", err)
	}
	if _, err := svc.CloseStockIn(ctx, second.ID); err != nil {
		t.Fatalf("close second: %v", err)
	}

	pb, err := svc.ProductBatches(ctx, p.ID)
	if err != nil {
		t.Fatalf("product batches: %v", err)
	}
	if len(pb.Batches) != 1 || pb.Batches[0].Batch.LotCode != "L42" || pb.Batches[0].StockBase != 4 || pb.NoBatchBase != 0 {
		t.Fatalf("expected 4 units on lot L42 and none without batch, got %+v", pb)
	}
	if got := ledgerSum(t, st, p.ID); got != 4 {
		t.Fatalf("expected stock 4, got %d", got)
	}
}

func TestAddStockInLineRejectsConflictingExpiryForKnownLot(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := mustCreateProduct(t, svc, "4006381333931", "piece", 500)
	mustStockIn(t, svc, domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 3, LotCode: "L7", ExpiryDate: "2030-03-01"})

	session, err := svc.OpenStockIn(ctx, domain.StockInOpenRequest{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = svc.AddStockInLine(ctx, session.ID, domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 1, LotCode: "L7", ExpiryDate: "2030-04-01"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for a conflicting expiry, got %v", err)
	}
	if _, err := svc.AddStockInLine(ctx, session.ID, domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 1, LotCode: "L7", ExpiryDate: "2030-03-01"}); err != nil {
		t.Fatalf("expected the matching expiry to reuse the lot, got %v", err)
	}
	if _, err := svc.AddStockInLine(ctx, session.ID, domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 1, LotCode: "L7"}); err != nil {
		t.Fatalf("expected a line without expiry to reuse the lot, got %v", err)
	}
}

func TestUpdateAndDeleteStockInLine(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := mustCreateProduct(t, svc, "4006381333931", "kilogram", 1000)

	session, err := svc.OpenStockIn(ctx, domain.StockInOpenRequest{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	line, err := svc.AddStockInLine(ctx, session.ID, domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 2, UnitCostCents: ptr[int64](700)})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	updated, err := svc.UpdateStockInLine(ctx, session.ID, line.ID, domain.StockInLineUpdateRequest{
		Quantity:      domain.SetTo(2.5),
		UnitCostCents: domain.Clear[int64](),
		SupplierName:  domain.SetTo("Agro SRL"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.QuantityBase != 2500 || updated.UnitCostCents != nil || updated.SupplierName != "Agro SRL" {
		t.Fatalf("unexpected updated line: %+v", updated)
	}

	if err := svc.DeleteStockInLine(ctx, session.ID, line.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	lines, err := svc.StockInLines(ctx, session.ID)
	if err != nil || len(lines) != 0 {
		t.Fatalf("expected no lines, got %d (%v)", len(lines), err)
	}
}

func TestStockInSummary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	milk := mustCreateProduct(t, svc, "4006381333931", "piece", 799)
	apples := mustCreateProduct(t, svc, "5941234000051", "kilogram", 649)

	session, err := svc.OpenStockIn(ctx, domain.StockInOpenRequest{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	reqs := []domain.StockInLineRequest{
		{Barcode: milk.Barcode, Quantity: 10, UnitCostCents: ptr[int64](500)},
		{Barcode: apples.Barcode, Quantity: 1.5, UnitCostCents: ptr[int64](400)},
		{Barcode: milk.Barcode, Quantity: 2},
	}
	for _, r := range reqs {
		if _, err := svc.AddStockInLine(ctx, session.ID, r); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	sum, err := svc.StockInSummary(ctx, session.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalDistinct != 2 || len(sum.Lines) != 2 {
		t.Fatalf("expected two products, got %+v", sum)
	}
	if sum.Lines[0].ProductID != milk.ID || sum.Lines[0].QuantityBase != 12 || sum.Lines[0].ValueCents != 5000 {
		t.Fatalf("unexpected milk row: %+v", sum.Lines[0])
	}
	if sum.Lines[1].QuantityBase != 1500 || sum.Lines[1].Quantity != 1.5 || sum.Lines[1].ValueCents != 600 {
		t.Fatalf("unexpected apples row: %+v", sum.Lines[1])
	}
	if sum.TotalValueCents != 5600 || sum.TotalQuantity != 13.5 {
		t.Fatalf("unexpected totals: %+v", sum)
	}
	if sum.Top[0].ProductID != milk.ID {
		t.Fatalf("expected milk on top, got %+v", sum.Top)
	}
}

// seedFIFO stocks three batches of 5: one undated (created first), one
// expiring 2024-01-10 and one expiring 2024-02-01.
func seedFIFO(t *testing.T, svc *Service, code string) (domain.Product, map[string]int64) {
	t.Helper()
	p := mustCreateProduct(t, svc, code, "piece", 250)
	mustStockIn(t, svc,
		domain.StockInLineRequest{Barcode: code, Quantity: 5, LotCode: "B3"},
		domain.StockInLineRequest{Barcode: code, Quantity: 5, LotCode: "B2", ExpiryDate: "2024-02-01"},
		domain.StockInLineRequest{Barcode: code, Quantity: 5, LotCode: "B1", ExpiryDate: "2024-01-10"},
	)
	pb, err := svc.ProductBatches(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("product batches: %v", err)
	}
	ids := make(map[string]int64, 3)
	for _, row := range pb.Batches {
		ids[row.Batch.LotCode] = row.Batch.ID
	}
	return p, ids
}

func TestFinalizeReceiptAllocatesFIFO(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p, ids := seedFIFO(t, svc, "4006381333931")

	r, err := svc.OpenReceipt(ctx)
	if err != nil {
		t.Fatalf("open receipt: %v", err)
	}
	for _, qty := range []float64{4, 3} {
		if r, err = svc.AddReceiptLine(ctx, r.ID, domain.ReceiptLineRequest{Barcode: p.Barcode, Quantity: qty}); err != nil {
			t.Fatalf("add line: %v", err)
		}
	}
	if len(r.Lines) != 1 || r.Lines[0].QtyBase != 7 || r.TotalCents != 1750 {
		t.Fatalf("expected one merged line of 7 totalling 1750, got %+v", r)
	}

	closed, err := svc.FinalizeReceipt(ctx, r.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if closed.Status != domain.ReceiptStatusClosed || closed.ClosedAt == nil || closed.TotalCents != 1750 {
		t.Fatalf("unexpected closed receipt: %+v", closed)
	}

	var sales []domain.Movement
	err = st.View(ctx, func(tx store.Tx) error {
		var err error
		sales, err = tx.ListMovements(ctx, store.MovementFilter{ReceiptID: r.ID})
		return err
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// Most recent first.
	if len(sales) != 2 || *sales[1].BatchID != ids["B1"] || sales[1].Quantity != -5 || *sales[0].BatchID != ids["B2"] || sales[0].Quantity != -2 {
		t.Fatalf("expected -5 on B1 then -2 on B2, got %+v", sales)
	}

	pb, err := svc.ProductBatches(ctx, p.ID)
	if err != nil {
		t.Fatalf("product batches: %v", err)
	}
	want := map[string]int64{"B1": 0, "B2": 3, "B3": 5}
	for _, row := range pb.Batches {
		if row.StockBase != want[row.Batch.LotCode] {
			t.Fatalf("batch %s: expected %d, got %d", row.Batch.LotCode, want[row.Batch.LotCode], row.StockBase)
		}
	}
	if got := ledgerSum(t, st, p.ID); got != 8 {
		t.Fatalf("expected ledger sum 8, got %d", got)
	}

	if _, err := svc.FinalizeReceipt(ctx, r.ID); !errors.Is(err, store.ErrInvalidReceiptState) {
		t.Fatalf("expected second finalize to fail, got %v", err)
	}
	if _, err := svc.AddReceiptLine(ctx, r.ID, domain.ReceiptLineRequest{Barcode: p.Barcode, Quantity: 1}); !errors.Is(err, store.ErrInvalidReceiptState) {
		t.Fatalf("expected add on closed receipt to fail, got %v", err)
	}
}

func TestFinalizeReceiptIsAllOrNothing(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	first, _ := seedFIFO(t, svc, "4006381333931")
	second := mustCreateProduct(t, svc, "5941234000068", "piece", 100)
	mustStockIn(t, svc, domain.StockInLineRequest{Barcode: second.Barcode, Quantity: 1})

	before1 := countMovements(t, st, first.ID)
	before2 := countMovements(t, st, second.ID)

	r, err := svc.OpenReceipt(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.AddReceiptLine(ctx, r.ID, domain.ReceiptLineRequest{Barcode: first.Barcode, Quantity: 7}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.AddReceiptLine(ctx, r.ID, domain.ReceiptLineRequest{Barcode: second.Barcode, Quantity: 2}); err != nil {
		t.Fatalf("add: %v", err)
	}

	_, err = svc.FinalizeReceipt(ctx, r.ID)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if countMovements(t, st, first.ID) != before1 || countMovements(t, st, second.ID) != before2 {
		t.Fatalf("expected no movements committed for either product")
	}
	got, err := svc.GetReceipt(ctx, r.ID)
	if err != nil {
		t.Fatalf("get receipt: %v", err)
	}
	if got.Status != domain.ReceiptStatusOpen || len(got.Lines) != 2 {
		t.Fatalf("expected receipt to stay open with its lines, got %+v", got)
	}
}

func TestVoidReceiptHasNoLedgerEffect(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p, _ := seedFIFO(t, svc, "4006381333931")
	before := countMovements(t, st, p.ID)

	r, err := svc.OpenReceipt(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.AddReceiptLine(ctx, r.ID, domain.ReceiptLineRequest{Barcode: p.Barcode, Quantity: 2}); err != nil {
		t.Fatalf("add: %v", err)
	}
	voided, err := svc.VoidReceipt(ctx, r.ID)
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided.Status != domain.ReceiptStatusVoid {
		t.Fatalf("expected void, got %s", voided.Status)
	}
	got, err := svc.GetReceipt(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Lines) != 0 {
		t.Fatalf("expected lines removed, got %d", len(got.Lines))
	}
	if countMovements(t, st, p.ID) != before {
		t.Fatalf("expected no movements from void")
	}
	if _, err := svc.VoidReceipt(ctx, r.ID); !errors.Is(err, store.ErrInvalidReceiptState) {
		t.Fatalf("expected second void to fail, got %v", err)
	}
}

func TestAddReceiptLineRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	piece := mustCreateProduct(t, svc, "4006381333931", "piece", 799)
	kg := mustCreateProduct(t, svc, "5941234000051", "kilogram", 1999)

	r, err := svc.OpenReceipt(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := svc.AddReceiptLine(ctx, r.ID, domain.ReceiptLineRequest{Barcode: "5941234000068", Quantity: 1}); !errors.Is(err, store.ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
	if _, err := svc.AddReceiptLine(ctx, r.ID, domain.ReceiptLineRequest{Barcode: piece.Barcode, Quantity: 1.5}); !errors.Is(err, units.ErrInvalidQuantity) {
		t.Fatalf("expected fractional pieces to fail, got %v", err)
	}
	if _, err := svc.AddReceiptLine(ctx, r.ID, domain.ReceiptLineRequest{Barcode: piece.Barcode, Quantity: 0}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected zero quantity to fail validation, got %v", err)
	}

	r, err = svc.AddReceiptLine(ctx, r.ID, domain.ReceiptLineRequest{Barcode: kg.Barcode, Quantity: 1.5})
	if err != nil {
		t.Fatalf("add kg line: %v", err)
	}
	line := r.Lines[0]
	if line.QtyBase != 1500 || line.UnitPriceCents != 2 || line.LineTotalCents != 2999 || line.ProductName != kg.Name {
		t.Fatalf("unexpected kg line: %+v", line)
	}

	r, err = svc.RemoveReceiptLine(ctx, r.ID, line.ID)
	if err != nil {
		t.Fatalf("remove line: %v", err)
	}
	if len(r.Lines) != 0 || r.TotalCents != 0 {
		t.Fatalf("expected empty receipt, got %+v", r)
	}
	if _, err := svc.FinalizeReceipt(ctx, r.ID); !errors.Is(err, store.ErrInvalidReceiptState) {
		t.Fatalf("expected empty finalize to fail, got %v", err)
	}
}

func TestAddReceiptLineSplitsOnPriceChange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	kg := mustCreateProduct(t, svc, "5941234000051", "kilogram", 1234)

	r, err := svc.OpenReceipt(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.AddReceiptLine(ctx, r.ID, domain.ReceiptLineRequest{Barcode: kg.Barcode, Quantity: 1}); err != nil {
		t.Fatalf("add first: %v", err)
	}
	if _, err := svc.UpdateProduct(adminCtx(), kg.ID, domain.ProductUpdateRequest{
		ExpectedVersion:   kg.Version,
		PricePerUnitCents: domain.SetTo[int64](1499),
	}); err != nil {
		t.Fatalf("update price: %v", err)
	}
	r, err = svc.AddReceiptLine(ctx, r.ID, domain.ReceiptLineRequest{Barcode: kg.Barcode, Quantity: 1})
	if err != nil {
		t.Fatalf("add second: %v", err)
	}

	if len(r.Lines) != 2 {
		t.Fatalf("expected a new line after the price change, got %+v", r.Lines)
	}
	if r.Lines[0].UnitPriceCents != r.Lines[1].UnitPriceCents {
		t.Fatalf("expected both prices to round to the same per-gram price, got %+v", r.Lines)
	}
	if r.Lines[0].LineTotalCents != 1234 || r.Lines[1].LineTotalCents != 1499 || r.TotalCents != 2733 {
		t.Fatalf("expected each kilogram at its own price, got %+v (total %d)", r.Lines, r.TotalCents)
	}
}

func TestAdjustStock(t *testing.T) {
	svc, st := newTestService(t)
	p, ids := seedFIFO(t, svc, "4006381333931")
	ctx := adminCtx()

	if _, err := svc.AdjustStock(context.Background(), domain.StockAdjustRequest{ProductID: p.ID, Quantity: 1, Reason: "return"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	ms, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{ProductID: p.ID, Quantity: 6, Reason: "waste"})
	if err != nil {
		t.Fatalf("waste: %v", err)
	}
	if len(ms) != 2 || *ms[0].BatchID != ids["B1"] || ms[0].Quantity != -5 || ms[1].Quantity != -1 {
		t.Fatalf("expected waste to follow FIFO, got %+v", ms)
	}

	b3 := ids["B3"]
	if _, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{ProductID: p.ID, BatchID: &b3, Quantity: -6, Reason: "adjustment"}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected batch shortage, got %v", err)
	}

	if _, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{ProductID: p.ID, Quantity: 2, Reason: "return"}); err != nil {
		t.Fatalf("return: %v", err)
	}
	if got := ledgerSum(t, st, p.ID); got != 11 {
		t.Fatalf("expected 15-6+2=11, got %d", got)
	}
	if _, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{ProductID: p.ID, Quantity: 1, Reason: "sale"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected sale reason to be rejected, got %v", err)
	}
}

func TestDeleteProductWithSalesIsRejected(t *testing.T) {
	svc, _ := newTestService(t)
	p, _ := seedFIFO(t, svc, "4006381333931")
	ctx := adminCtx()

	r, err := svc.OpenReceipt(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.AddReceiptLine(ctx, r.ID, domain.ReceiptLineRequest{Barcode: p.Barcode, Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.DeleteProduct(ctx, p.ID); !errors.Is(err, store.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got %v", err)
	}

	other := mustCreateProduct(t, svc, "5941234000068", "piece", 100)
	if err := svc.DeleteProduct(ctx, other.ID); err != nil {
		t.Fatalf("delete unsold product: %v", err)
	}
	if _, err := svc.GetProduct(ctx, other.ID); !errors.Is(err, store.ErrProductNotFound) {
		t.Fatalf("expected product gone, got %v", err)
	}
}

func TestDeleteBatchMovesStockToNoBatch(t *testing.T) {
	svc, _ := newTestService(t)
	p, ids := seedFIFO(t, svc, "4006381333931")
	ctx := adminCtx()

	if err := svc.DeleteBatch(ctx, ids["B3"]); err != nil {
		t.Fatalf("delete batch: %v", err)
	}
	pb, err := svc.ProductBatches(ctx, p.ID)
	if err != nil {
		t.Fatalf("product batches: %v", err)
	}
	if len(pb.Batches) != 2 || pb.NoBatchBase != 5 {
		t.Fatalf("expected two batches and 5 without batch, got %+v", pb)
	}
	stock, err := svc.StockOf(ctx, p.ID)
	if err != nil || stock != 15 {
		t.Fatalf("expected total to stay 15, got %d (%v)", stock, err)
	}
}

func TestExpiringBatchesAndAlerts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := mustCreateProduct(t, svc, "4006381333931", "piece", 100)
	mustStockIn(t, svc,
		domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 1, LotCode: "OLD", ExpiryDate: "2030-01-01"},
		domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 1, LotCode: "SOON", ExpiryDate: "2030-01-10"},
		domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 1, LotCode: "LATER", ExpiryDate: "2030-03-01"},
	)

	rows, err := svc.ExpiringBatches(ctx, 7)
	if err != nil {
		t.Fatalf("expiring: %v", err)
	}
	if len(rows) != 2 || rows[0].Batch.LotCode != "OLD" || rows[0].DaysLeft != -4 || rows[1].DaysLeft != 5 {
		t.Fatalf("unexpected expiring rows: %+v", rows)
	}

	alerts, err := svc.ExpiryAlerts(ctx)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	want := []domain.ExpiryAlert{{WithinDays: 7, Count: 2}, {WithinDays: 14, Count: 2}, {WithinDays: 30, Count: 2}}
	for i, a := range alerts {
		if a != want[i] {
			t.Fatalf("alert %d: expected %+v, got %+v", i, want[i], a)
		}
	}
}

func TestListAndLowStock(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	milk := mustCreateProduct(t, svc, "4006381333931", "piece", 100)
	cheese := mustCreateProduct(t, svc, "5941234000051", "kilogram", 100)
	mustStockIn(t, svc,
		domain.StockInLineRequest{Barcode: milk.Barcode, Quantity: 20},
		domain.StockInLineRequest{Barcode: cheese.Barcode, Quantity: 2.25},
	)

	rows, err := svc.ListStock(ctx, "")
	if err != nil || len(rows) != 2 {
		t.Fatalf("expected two rows, got %d (%v)", len(rows), err)
	}
	low, err := svc.LowStock(ctx, 0)
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(low) != 1 || low[0].ProductID != cheese.ID || low[0].Stock != 2.25 {
		t.Fatalf("unexpected low stock: %+v", low)
	}
}

func TestStockOfUsesCacheAndInvalidatesOnCommit(t *testing.T) {
	st := memory.New()
	c := cache.NewMemoryStockCache()
	svc := New(st, Options{Cache: c, Now: func() time.Time { return fixedNow }})
	ctx := context.Background()
	p := mustCreateProduct(t, svc, "4006381333931", "piece", 100)
	mustStockIn(t, svc, domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 3})

	if v, err := svc.StockOf(ctx, p.ID); err != nil || v != 3 {
		t.Fatalf("expected 3, got %d (%v)", v, err)
	}
	if v, ok, _ := c.Get(ctx, p.ID); !ok || v != 3 {
		t.Fatalf("expected cached 3, got %d %v", v, ok)
	}

	mustStockIn(t, svc, domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 2})
	if _, ok, _ := c.Get(ctx, p.ID); ok {
		t.Fatalf("expected close to invalidate the cache entry")
	}
	if v, err := svc.StockOf(ctx, p.ID); err != nil || v != 5 {
		t.Fatalf("expected 5, got %d (%v)", v, err)
	}

	gen, _ := c.Generation(ctx, p.ID)
	_ = c.Set(ctx, p.ID, gen, 999, time.Minute)
	n, err := svc.ReconcileStock(ctx)
	if err != nil || n != 1 {
		t.Fatalf("reconcile: %d %v", n, err)
	}
	if v, _, _ := c.Get(ctx, p.ID); v != 5 {
		t.Fatalf("expected reconcile to restore 5, got %d", v)
	}
}

// interleavingCache runs beforeSet once, after StockOf has read the ledger
// and before its value reaches the cache.
type interleavingCache struct {
	*cache.MemoryStockCache
	beforeSet func()
}

func (c *interleavingCache) Set(ctx context.Context, productID int64, gen int64, stockBase int64, ttl time.Duration) error {
	if fn := c.beforeSet; fn != nil {
		c.beforeSet = nil
		fn()
	}
	return c.MemoryStockCache.Set(ctx, productID, gen, stockBase, ttl)
}

func TestStockOfDoesNotCacheBalanceOverwrittenByCommit(t *testing.T) {
	st := memory.New()
	c := &interleavingCache{MemoryStockCache: cache.NewMemoryStockCache()}
	svc := New(st, Options{Cache: c, Now: func() time.Time { return fixedNow }})
	ctx := context.Background()
	p := mustCreateProduct(t, svc, "4006381333931", "piece", 100)
	mustStockIn(t, svc, domain.StockInLineRequest{Barcode: p.Barcode, Quantity: 5})

	r, err := svc.OpenReceipt(ctx)
	if err != nil {
		t.Fatalf("open receipt: %v", err)
	}
	if _, err := svc.AddReceiptLine(ctx, r.ID, domain.ReceiptLineRequest{Barcode: p.Barcode, Quantity: 2}); err != nil {
		t.Fatalf("add line: %v", err)
	}
	c.beforeSet = func() {
		if _, err := svc.FinalizeReceipt(ctx, r.ID); err != nil {
			t.Fatalf("finalize: %v", err)
		}
	}

	if v, err := svc.StockOf(ctx, p.ID); err != nil || v != 5 {
		t.Fatalf("expected the read started before the sale to see 5, got %d (%v)", v, err)
	}
	if v, ok, _ := c.Get(ctx, p.ID); ok {
		t.Fatalf("expected no cache entry after a concurrent commit, got %d", v)
	}
	v, err := svc.StockOf(ctx, p.ID)
	if err != nil {
		t.Fatalf("stock of: %v", err)
	}
	if want := ledgerSum(t, st, p.ID); v != want || v != 3 {
		t.Fatalf("expected stock 3 matching the ledger, got %d (ledger %d)", v, want)
	}
}

// flakyStore fails the first write transaction with contention.
type flakyStore struct {
	store.Store
	failures int
	calls    int
}

func (f *flakyStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return store.ErrTransientContention
	}
	return f.Store.InTx(ctx, fn)
}

func TestInTxRetriesOnceOnContention(t *testing.T) {
	flaky := &flakyStore{Store: memory.New(), failures: 1}
	svc := New(flaky, Options{})
	if _, err := svc.OpenReceipt(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if flaky.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", flaky.calls)
	}

	flaky = &flakyStore{Store: memory.New(), failures: 2}
	svc = New(flaky, Options{})
	if _, err := svc.OpenReceipt(context.Background()); !errors.Is(err, store.ErrTransientContention) {
		t.Fatalf("expected contention after one retry, got %v", err)
	}
	if flaky.calls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", flaky.calls)
	}
}

func ptr[T any](v T) *T {
	return &v
}
