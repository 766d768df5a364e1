package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"magazin/backend/internal/domain"
	"magazin/backend/internal/store"
)

// Store keeps all relations in process memory. Write transactions work on
// a private copy of the state that replaces the shared state only when the
// callback succeeds, so an error or panic leaves nothing behind.
type Store struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	products     map[int64]domain.Product
	batches      map[int64]domain.Batch
	movements    []domain.Movement
	receipts     map[int64]domain.Receipt
	receiptLines map[int64]domain.ReceiptLine
	sessions     map[int64]domain.StockInSession
	stockInLines map[int64]domain.StockInLine
	sequences    map[string]int64
	ids          map[string]int64
}

const internalEANSeed = 100000

func New() *Store {
	return &Store{st: &state{
		products:     make(map[int64]domain.Product),
		batches:      make(map[int64]domain.Batch),
		receipts:     make(map[int64]domain.Receipt),
		receiptLines: make(map[int64]domain.ReceiptLine),
		sessions:     make(map[int64]domain.StockInSession),
		stockInLines: make(map[int64]domain.StockInLine),
		sequences:    map[string]int64{domain.SequenceInternalEAN: internalEANSeed},
		ids:          make(map[string]int64),
	}}
}

func (s *state) clone() *state {
	return &state{
		products:     maps.Clone(s.products),
		batches:      maps.Clone(s.batches),
		movements:    slices.Clone(s.movements),
		receipts:     maps.Clone(s.receipts),
		receiptLines: maps.Clone(s.receiptLines),
		sessions:     maps.Clone(s.sessions),
		stockInLines: maps.Clone(s.stockInLines),
		sequences:    maps.Clone(s.sequences),
		ids:          maps.Clone(s.ids),
	}
}

func (s *state) nextID(table string) int64 {
	s.ids[table]++
	return s.ids[table]
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{st: s.st, readOnly: true})
}

func (s *Store) Close() error {
	return nil
}

type tx struct {
	st       *state
	readOnly bool
}

func (t *tx) writable() error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	return nil
}

// Products

func (t *tx) CreateProduct(_ context.Context, product domain.Product) (domain.Product, error) {
	if err := t.writable(); err != nil {
		return domain.Product{}, err
	}
	if product.Barcode != "" && t.barcodeTaken(product.Barcode, 0) {
		return domain.Product{}, store.ErrConstraintViolation
	}
	product.ID = t.st.nextID("products")
	if product.Version == 0 {
		product.Version = 1
	}
	t.st.products[product.ID] = product
	return product, nil
}

func (t *tx) barcodeTaken(barcode string, exceptID int64) bool {
	for id, p := range t.st.products {
		if id != exceptID && p.Barcode == barcode {
			return true
		}
	}
	return false
}

func (t *tx) GetProduct(_ context.Context, id int64) (domain.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return domain.Product{}, store.ErrProductNotFound
	}
	return p, nil
}

func (t *tx) LockProduct(ctx context.Context, id int64) (domain.Product, error) {
	return t.GetProduct(ctx, id)
}

func (t *tx) GetProductByBarcode(_ context.Context, barcode string) (domain.Product, error) {
	if barcode == "" {
		return domain.Product{}, store.ErrProductNotFound
	}
	for _, p := range t.st.products {
		if p.Barcode == barcode {
			return p, nil
		}
	}
	return domain.Product{}, store.ErrProductNotFound
}

func (t *tx) ListProducts(_ context.Context, search string) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(t.st.products))
	for _, p := range t.st.products {
		if matchesSearch(p, search) {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, compareProducts)
	return products, nil
}

func (t *tx) UpdateProduct(_ context.Context, product domain.Product) (domain.Product, error) {
	if err := t.writable(); err != nil {
		return domain.Product{}, err
	}
	existing, ok := t.st.products[product.ID]
	if !ok {
		return domain.Product{}, store.ErrProductNotFound
	}
	if existing.Version != product.Version {
		return domain.Product{}, store.ErrVersionConflict
	}
	if product.Barcode != "" && t.barcodeTaken(product.Barcode, product.ID) {
		return domain.Product{}, store.ErrConstraintViolation
	}
	product.Unit = existing.Unit
	product.UUID = existing.UUID
	product.CreatedAt = existing.CreatedAt
	product.Version = existing.Version + 1
	t.st.products[product.ID] = product
	return product, nil
}

func (t *tx) DeleteProduct(_ context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.products[id]; !ok {
		return store.ErrProductNotFound
	}
	for _, line := range t.st.receiptLines {
		if line.ProductID == id {
			return store.ErrConstraintViolation
		}
	}
	delete(t.st.products, id)
	for batchID, b := range t.st.batches {
		if b.ProductID == id {
			t.clearBatchRefs(batchID)
			delete(t.st.batches, batchID)
		}
	}
	t.st.movements = slices.DeleteFunc(t.st.movements, func(m domain.Movement) bool {
		return m.ProductID == id
	})
	for lineID, line := range t.st.stockInLines {
		if line.ProductID == id {
			delete(t.st.stockInLines, lineID)
		}
	}
	return nil
}

func (t *tx) CountReceiptLinesForProduct(_ context.Context, productID int64) (int, error) {
	n := 0
	for _, line := range t.st.receiptLines {
		if line.ProductID == productID {
			n++
		}
	}
	return n, nil
}

// Batches

func (t *tx) CreateBatch(_ context.Context, batch domain.Batch) (domain.Batch, error) {
	if err := t.writable(); err != nil {
		return domain.Batch{}, err
	}
	if _, ok := t.st.products[batch.ProductID]; !ok {
		return domain.Batch{}, store.ErrConstraintViolation
	}
	if batch.OriginSessionID != nil {
		if _, ok := t.st.sessions[*batch.OriginSessionID]; !ok {
			return domain.Batch{}, store.ErrConstraintViolation
		}
	}
	batch.ID = t.st.nextID("batches")
	if batch.Version == 0 {
		batch.Version = 1
	}
	t.st.batches[batch.ID] = batch
	return batch, nil
}

func (t *tx) GetBatch(_ context.Context, id int64) (domain.Batch, error) {
	b, ok := t.st.batches[id]
	if !ok {
		return domain.Batch{}, store.ErrBatchNotFound
	}
	return b, nil
}

func (t *tx) ListBatches(_ context.Context, productID int64) ([]domain.Batch, error) {
	batches := make([]domain.Batch, 0, 8)
	for _, b := range t.st.batches {
		if b.ProductID == productID {
			batches = append(batches, b)
		}
	}
	slices.SortFunc(batches, domain.CompareFIFO)
	return batches, nil
}

func (t *tx) FindBatchByLot(_ context.Context, productID int64, lotCode string) (domain.Batch, error) {
	var found *domain.Batch
	for _, b := range t.st.batches {
		if b.ProductID == productID && b.LotCode == lotCode {
			if found == nil || b.ID < found.ID {
				found = &b
			}
		}
	}
	if found == nil {
		return domain.Batch{}, store.ErrBatchNotFound
	}
	return *found, nil
}

func (t *tx) FindSessionBatchByExpiry(_ context.Context, productID int64, sessionID int64, expiry time.Time) (domain.Batch, error) {
	var found *domain.Batch
	for _, b := range t.st.batches {
		if b.ProductID != productID || b.OriginSessionID == nil || *b.OriginSessionID != sessionID {
			continue
		}
		if b.ExpiryDate == nil || !b.ExpiryDate.Equal(expiry) {
			continue
		}
		if found == nil || b.ID < found.ID {
			found = &b
		}
	}
	if found == nil {
		return domain.Batch{}, store.ErrBatchNotFound
	}
	return *found, nil
}

func (t *tx) ListSessionBatches(_ context.Context, sessionID int64) ([]domain.Batch, error) {
	batches := make([]domain.Batch, 0, 8)
	for _, b := range t.st.batches {
		if b.OriginSessionID != nil && *b.OriginSessionID == sessionID {
			batches = append(batches, b)
		}
	}
	slices.SortFunc(batches, func(a, b domain.Batch) int { return cmp.Compare(a.ID, b.ID) })
	return batches, nil
}

func (t *tx) UpdateBatch(_ context.Context, batch domain.Batch) (domain.Batch, error) {
	if err := t.writable(); err != nil {
		return domain.Batch{}, err
	}
	existing, ok := t.st.batches[batch.ID]
	if !ok {
		return domain.Batch{}, store.ErrBatchNotFound
	}
	batch.ProductID = existing.ProductID
	batch.UUID = existing.UUID
	batch.OriginSessionID = existing.OriginSessionID
	batch.ReceivedAt = existing.ReceivedAt
	batch.Version = existing.Version + 1
	t.st.batches[batch.ID] = batch
	return batch, nil
}

func (t *tx) DeleteBatch(_ context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.batches[id]; !ok {
		return store.ErrBatchNotFound
	}
	t.clearBatchRefs(id)
	delete(t.st.batches, id)
	return nil
}

// clearBatchRefs detaches movements and staged lines from a batch that is
// about to be removed. Movements stay as historical fact.
func (t *tx) clearBatchRefs(batchID int64) {
	for i, m := range t.st.movements {
		if m.BatchID != nil && *m.BatchID == batchID {
			t.st.movements[i].BatchID = nil
		}
	}
	for id, line := range t.st.stockInLines {
		if line.BatchID != nil && *line.BatchID == batchID {
			line.BatchID = nil
			t.st.stockInLines[id] = line
		}
	}
}

// Ledger

func (t *tx) AppendMovement(_ context.Context, movement domain.Movement) (domain.Movement, error) {
	if err := t.writable(); err != nil {
		return domain.Movement{}, err
	}
	if _, ok := t.st.products[movement.ProductID]; !ok {
		return domain.Movement{}, store.ErrConstraintViolation
	}
	if movement.BatchID != nil {
		b, ok := t.st.batches[*movement.BatchID]
		if !ok || b.ProductID != movement.ProductID {
			return domain.Movement{}, store.ErrConstraintViolation
		}
	}
	if movement.ReceiptID != nil {
		if _, ok := t.st.receipts[*movement.ReceiptID]; !ok {
			return domain.Movement{}, store.ErrConstraintViolation
		}
	}
	if !movement.Reason.Valid() {
		return domain.Movement{}, store.ErrConstraintViolation
	}
	movement.ID = t.st.nextID("movements")
	t.st.movements = append(t.st.movements, movement)
	return movement, nil
}

func (t *tx) StockOf(_ context.Context, productID int64) (int64, error) {
	var sum int64
	for _, m := range t.st.movements {
		if m.ProductID == productID {
			sum += m.Quantity
		}
	}
	return sum, nil
}

func (t *tx) StockOfBatch(_ context.Context, productID int64, batchID int64) (int64, error) {
	var sum int64
	for _, m := range t.st.movements {
		if m.ProductID == productID && m.BatchID != nil && *m.BatchID == batchID {
			sum += m.Quantity
		}
	}
	return sum, nil
}

func (t *tx) StockWithNoBatch(_ context.Context, productID int64) (int64, error) {
	var sum int64
	for _, m := range t.st.movements {
		if m.ProductID == productID && m.BatchID == nil {
			sum += m.Quantity
		}
	}
	return sum, nil
}

func (t *tx) batchSums(productID int64) map[int64]int64 {
	sums := make(map[int64]int64)
	for _, m := range t.st.movements {
		if m.BatchID != nil && (productID == 0 || m.ProductID == productID) {
			sums[*m.BatchID] += m.Quantity
		}
	}
	return sums
}

func (t *tx) BatchesWithPositiveStock(ctx context.Context, productID int64) ([]domain.BatchStock, error) {
	all, err := t.BatchStocks(ctx, productID)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(bs domain.BatchStock) bool { return bs.Stock <= 0 }), nil
}

func (t *tx) BatchStocks(_ context.Context, productID int64) ([]domain.BatchStock, error) {
	sums := t.batchSums(productID)
	result := make([]domain.BatchStock, 0, 8)
	for _, b := range t.st.batches {
		if b.ProductID == productID {
			result = append(result, domain.BatchStock{Batch: b, Stock: sums[b.ID]})
		}
	}
	slices.SortFunc(result, func(a, b domain.BatchStock) int {
		return domain.CompareFIFO(a.Batch, b.Batch)
	})
	return result, nil
}

func (t *tx) StockList(_ context.Context, search string) ([]domain.StockRow, error) {
	sums := make(map[int64]int64, len(t.st.products))
	for _, m := range t.st.movements {
		sums[m.ProductID] += m.Quantity
	}
	products := make([]domain.Product, 0, len(t.st.products))
	for _, p := range t.st.products {
		if matchesSearch(p, search) {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, compareProducts)

	rows := make([]domain.StockRow, 0, len(products))
	for _, p := range products {
		rows = append(rows, domain.StockRow{
			ProductID: p.ID,
			Barcode:   p.Barcode,
			Name:      p.Name,
			Unit:      p.Unit,
			StockBase: sums[p.ID],
		})
	}
	return rows, nil
}

func (t *tx) ExpiringBatches(_ context.Context, until time.Time) ([]store.ExpiringRow, error) {
	sums := t.batchSums(0)
	rows := make([]store.ExpiringRow, 0, 16)
	for _, b := range t.st.batches {
		if b.ExpiryDate == nil || b.ExpiryDate.After(until) || sums[b.ID] <= 0 {
			continue
		}
		p := t.st.products[b.ProductID]
		rows = append(rows, store.ExpiringRow{
			Batch:       b,
			ProductName: p.Name,
			Barcode:     p.Barcode,
			Unit:        p.Unit,
			Stock:       sums[b.ID],
		})
	}
	slices.SortFunc(rows, func(a, b store.ExpiringRow) int {
		return domain.CompareFIFO(a.Batch, b.Batch)
	})
	return rows, nil
}

func (t *tx) ListMovements(_ context.Context, filter store.MovementFilter) ([]domain.Movement, error) {
	result := make([]domain.Movement, 0, 32)
	for i := len(t.st.movements) - 1; i >= 0; i-- {
		m := t.st.movements[i]
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.ReceiptID != 0 && (m.ReceiptID == nil || *m.ReceiptID != filter.ReceiptID) {
			continue
		}
		result = append(result, m)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (t *tx) CountBatchMovements(_ context.Context, batchID int64) (int, error) {
	n := 0
	for _, m := range t.st.movements {
		if m.BatchID != nil && *m.BatchID == batchID {
			n++
		}
	}
	return n, nil
}

// Sequences

func (t *tx) NextSequence(_ context.Context, name string) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	t.st.sequences[name]++
	return t.st.sequences[name], nil
}

// Receipts

func (t *tx) CreateReceipt(_ context.Context, receipt domain.Receipt) (domain.Receipt, error) {
	if err := t.writable(); err != nil {
		return domain.Receipt{}, err
	}
	receipt.ID = t.st.nextID("receipts")
	receipt.Lines = nil
	t.st.receipts[receipt.ID] = receipt
	return receipt, nil
}

func (t *tx) GetReceipt(_ context.Context, id int64) (domain.Receipt, error) {
	r, ok := t.st.receipts[id]
	if !ok {
		return domain.Receipt{}, store.ErrReceiptNotFound
	}
	return r, nil
}

func (t *tx) LockReceipt(ctx context.Context, id int64) (domain.Receipt, error) {
	return t.GetReceipt(ctx, id)
}

func (t *tx) ListReceipts(_ context.Context, status string, limit int) ([]domain.Receipt, error) {
	receipts := make([]domain.Receipt, 0, 16)
	for _, r := range t.st.receipts {
		if status == "" || r.Status == status {
			receipts = append(receipts, r)
		}
	}
	slices.SortFunc(receipts, func(a, b domain.Receipt) int { return cmp.Compare(b.ID, a.ID) })
	if limit > 0 && len(receipts) > limit {
		receipts = receipts[:limit]
	}
	return receipts, nil
}

func (t *tx) UpdateReceipt(_ context.Context, receipt domain.Receipt) error {
	if err := t.writable(); err != nil {
		return err
	}
	existing, ok := t.st.receipts[receipt.ID]
	if !ok {
		return store.ErrReceiptNotFound
	}
	existing.Status = receipt.Status
	existing.ClosedAt = receipt.ClosedAt
	existing.TotalCents = receipt.TotalCents
	t.st.receipts[receipt.ID] = existing
	return nil
}

func (t *tx) ListReceiptLines(_ context.Context, receiptID int64) ([]domain.ReceiptLine, error) {
	lines := make([]domain.ReceiptLine, 0, 8)
	for _, line := range t.st.receiptLines {
		if line.ReceiptID != receiptID {
			continue
		}
		p := t.st.products[line.ProductID]
		line.ProductName = p.Name
		line.Barcode = p.Barcode
		line.Unit = p.Unit
		lines = append(lines, line)
	}
	slices.SortFunc(lines, func(a, b domain.ReceiptLine) int { return cmp.Compare(a.ID, b.ID) })
	return lines, nil
}

func (t *tx) FindReceiptLine(_ context.Context, receiptID int64, key store.ReceiptLineKey) (domain.ReceiptLine, error) {
	var found *domain.ReceiptLine
	for _, line := range t.st.receiptLines {
		if line.ReceiptID == receiptID && line.ProductID == key.ProductID &&
			line.UnitPriceCents == key.UnitPriceCents && line.PricePerUnitCents == key.PricePerUnitCents &&
			line.VATRate == key.VATRate {
			if found == nil || line.ID < found.ID {
				found = &line
			}
		}
	}
	if found == nil {
		return domain.ReceiptLine{}, store.ErrLineNotFound
	}
	return *found, nil
}

func (t *tx) InsertReceiptLine(_ context.Context, line domain.ReceiptLine) (domain.ReceiptLine, error) {
	if err := t.writable(); err != nil {
		return domain.ReceiptLine{}, err
	}
	if _, ok := t.st.receipts[line.ReceiptID]; !ok {
		return domain.ReceiptLine{}, store.ErrConstraintViolation
	}
	if _, ok := t.st.products[line.ProductID]; !ok {
		return domain.ReceiptLine{}, store.ErrConstraintViolation
	}
	line.ID = t.st.nextID("receipt_lines")
	line.ProductName, line.Barcode, line.Unit = "", "", ""
	t.st.receiptLines[line.ID] = line
	return line, nil
}

func (t *tx) UpdateReceiptLine(_ context.Context, line domain.ReceiptLine) error {
	if err := t.writable(); err != nil {
		return err
	}
	existing, ok := t.st.receiptLines[line.ID]
	if !ok || existing.ReceiptID != line.ReceiptID {
		return store.ErrLineNotFound
	}
	existing.QtyBase = line.QtyBase
	existing.LineTotalCents = line.LineTotalCents
	t.st.receiptLines[line.ID] = existing
	return nil
}

func (t *tx) DeleteReceiptLine(_ context.Context, receiptID int64, lineID int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	line, ok := t.st.receiptLines[lineID]
	if !ok || line.ReceiptID != receiptID {
		return store.ErrLineNotFound
	}
	delete(t.st.receiptLines, lineID)
	return nil
}

func (t *tx) DeleteReceiptLines(_ context.Context, receiptID int64) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for id, line := range t.st.receiptLines {
		if line.ReceiptID == receiptID {
			delete(t.st.receiptLines, id)
			n++
		}
	}
	return n, nil
}

// Sessions

func (t *tx) CreateSession(_ context.Context, session domain.StockInSession) (domain.StockInSession, error) {
	if err := t.writable(); err != nil {
		return domain.StockInSession{}, err
	}
	session.ID = t.st.nextID("stock_in_sessions")
	t.st.sessions[session.ID] = session
	return session, nil
}

func (t *tx) GetSession(_ context.Context, id int64) (domain.StockInSession, error) {
	s, ok := t.st.sessions[id]
	if !ok {
		return domain.StockInSession{}, store.ErrSessionNotFound
	}
	return s, nil
}

func (t *tx) LockSession(ctx context.Context, id int64) (domain.StockInSession, error) {
	return t.GetSession(ctx, id)
}

func (t *tx) ListSessions(_ context.Context, status string, limit int) ([]domain.StockInSession, error) {
	sessions := make([]domain.StockInSession, 0, 8)
	for _, s := range t.st.sessions {
		if status == "" || s.Status == status {
			sessions = append(sessions, s)
		}
	}
	slices.SortFunc(sessions, func(a, b domain.StockInSession) int { return cmp.Compare(b.ID, a.ID) })
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (t *tx) UpdateSession(_ context.Context, session domain.StockInSession) error {
	if err := t.writable(); err != nil {
		return err
	}
	existing, ok := t.st.sessions[session.ID]
	if !ok {
		return store.ErrSessionNotFound
	}
	existing.Status = session.Status
	existing.ClosedAt = session.ClosedAt
	existing.Note = session.Note
	t.st.sessions[session.ID] = existing
	return nil
}

func (t *tx) DeleteSession(_ context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.sessions[id]; !ok {
		return store.ErrSessionNotFound
	}
	delete(t.st.sessions, id)
	for lineID, line := range t.st.stockInLines {
		if line.SessionID == id {
			delete(t.st.stockInLines, lineID)
		}
	}
	for batchID, b := range t.st.batches {
		if b.OriginSessionID != nil && *b.OriginSessionID == id {
			b.OriginSessionID = nil
			t.st.batches[batchID] = b
		}
	}
	return nil
}

func (t *tx) InsertStockInLine(_ context.Context, line domain.StockInLine) (domain.StockInLine, error) {
	if err := t.writable(); err != nil {
		return domain.StockInLine{}, err
	}
	if _, ok := t.st.sessions[line.SessionID]; !ok {
		return domain.StockInLine{}, store.ErrConstraintViolation
	}
	if _, ok := t.st.products[line.ProductID]; !ok {
		return domain.StockInLine{}, store.ErrConstraintViolation
	}
	if line.BatchID != nil {
		if _, ok := t.st.batches[*line.BatchID]; !ok {
			return domain.StockInLine{}, store.ErrConstraintViolation
		}
	}
	line.ID = t.st.nextID("stock_in_lines")
	t.st.stockInLines[line.ID] = line
	return line, nil
}

func (t *tx) GetStockInLine(_ context.Context, sessionID int64, lineID int64) (domain.StockInLine, error) {
	line, ok := t.st.stockInLines[lineID]
	if !ok || line.SessionID != sessionID {
		return domain.StockInLine{}, store.ErrLineNotFound
	}
	return line, nil
}

func (t *tx) UpdateStockInLine(_ context.Context, line domain.StockInLine) error {
	if err := t.writable(); err != nil {
		return err
	}
	existing, ok := t.st.stockInLines[line.ID]
	if !ok || existing.SessionID != line.SessionID {
		return store.ErrLineNotFound
	}
	existing.QuantityBase = line.QuantityBase
	existing.UnitCostCents = line.UnitCostCents
	existing.SupplierName = line.SupplierName
	existing.SupplierDoc = line.SupplierDoc
	t.st.stockInLines[line.ID] = existing
	return nil
}

func (t *tx) DeleteStockInLine(_ context.Context, sessionID int64, lineID int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	line, ok := t.st.stockInLines[lineID]
	if !ok || line.SessionID != sessionID {
		return store.ErrLineNotFound
	}
	delete(t.st.stockInLines, lineID)
	return nil
}

func (t *tx) ListStockInLines(_ context.Context, sessionID int64) ([]domain.StockInLine, error) {
	lines := make([]domain.StockInLine, 0, 16)
	for _, line := range t.st.stockInLines {
		if line.SessionID == sessionID {
			lines = append(lines, line)
		}
	}
	slices.SortFunc(lines, func(a, b domain.StockInLine) int { return cmp.Compare(a.ID, b.ID) })
	return lines, nil
}

func (t *tx) CountBatchStockInLines(_ context.Context, batchID int64) (int, error) {
	n := 0
	for _, line := range t.st.stockInLines {
		if line.BatchID != nil && *line.BatchID == batchID {
			n++
		}
	}
	return n, nil
}

func matchesSearch(p domain.Product, search string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), search) || strings.Contains(p.Barcode, search)
}

func compareProducts(a, b domain.Product) int {
	if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
