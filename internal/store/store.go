package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"magazin/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrProductNotFound     = fmt.Errorf("product %w", ErrNotFound)
	ErrBatchNotFound       = fmt.Errorf("batch %w", ErrNotFound)
	ErrReceiptNotFound     = fmt.Errorf("receipt %w", ErrNotFound)
	ErrSessionNotFound     = fmt.Errorf("stock-in session %w", ErrNotFound)
	ErrLineNotFound        = fmt.Errorf("line %w", ErrNotFound)
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidSessionState = errors.New("invalid stock-in session state")
	ErrInvalidReceiptState = errors.New("invalid receipt state")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrTransientContention = errors.New("transient store contention")
	ErrVersionConflict     = errors.New("version conflict")
	ErrReadOnly            = errors.New("read-only transaction")
)

// Store hands out transaction handles. InTx commits when fn returns nil
// and rolls back on error or panic. View runs fn against a consistent
// snapshot and rejects writes with ErrReadOnly.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

type Tx interface {
	Products
	Batches
	Ledger
	Sequences
	Receipts
	Sessions
}

type Products interface {
	CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (domain.Product, error)
	// LockProduct reads the product and holds a row lock until the
	// transaction ends where the backend supports it.
	LockProduct(ctx context.Context, id int64) (domain.Product, error)
	ListProducts(ctx context.Context, search string) ([]domain.Product, error)
	// UpdateProduct persists product when the stored version equals
	// product.Version and bumps the version by one.
	UpdateProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	CountReceiptLinesForProduct(ctx context.Context, productID int64) (int, error)
}

type Batches interface {
	CreateBatch(ctx context.Context, batch domain.Batch) (domain.Batch, error)
	GetBatch(ctx context.Context, id int64) (domain.Batch, error)
	ListBatches(ctx context.Context, productID int64) ([]domain.Batch, error)
	FindBatchByLot(ctx context.Context, productID int64, lotCode string) (domain.Batch, error)
	FindSessionBatchByExpiry(ctx context.Context, productID int64, sessionID int64, expiry time.Time) (domain.Batch, error)
	ListSessionBatches(ctx context.Context, sessionID int64) ([]domain.Batch, error)
	UpdateBatch(ctx context.Context, batch domain.Batch) (domain.Batch, error)
	DeleteBatch(ctx context.Context, id int64) error
}

type MovementFilter struct {
	ProductID int64
	ReceiptID int64
	Limit     int
}

type ExpiringRow struct {
	Batch       domain.Batch
	ProductName string
	Barcode     string
	Unit        domain.Unit
	Stock       int64
}

// Ledger is the append-only movement log and the balances derived from it.
type Ledger interface {
	AppendMovement(ctx context.Context, movement domain.Movement) (domain.Movement, error)
	StockOf(ctx context.Context, productID int64) (int64, error)
	StockOfBatch(ctx context.Context, productID int64, batchID int64) (int64, error)
	StockWithNoBatch(ctx context.Context, productID int64) (int64, error)
	// BatchesWithPositiveStock returns batches in consumption order: dated
	// batches by ascending expiry, undated last, ties by ascending id.
	BatchesWithPositiveStock(ctx context.Context, productID int64) ([]domain.BatchStock, error)
	BatchStocks(ctx context.Context, productID int64) ([]domain.BatchStock, error)
	StockList(ctx context.Context, search string) ([]domain.StockRow, error)
	ExpiringBatches(ctx context.Context, until time.Time) ([]ExpiringRow, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]domain.Movement, error)
	CountBatchMovements(ctx context.Context, batchID int64) (int, error)
}

type Sequences interface {
	// NextSequence increments the named counter, creating it at 1.
	NextSequence(ctx context.Context, name string) (int64, error)
}

// ReceiptLineKey identifies the line a scan merges into. Both prices take
// part because the per base unit price is rounded.
type ReceiptLineKey struct {
	ProductID         int64
	UnitPriceCents    int64
	PricePerUnitCents int64
	VATRate           int
}

type Receipts interface {
	CreateReceipt(ctx context.Context, receipt domain.Receipt) (domain.Receipt, error)
	GetReceipt(ctx context.Context, id int64) (domain.Receipt, error)
	LockReceipt(ctx context.Context, id int64) (domain.Receipt, error)
	ListReceipts(ctx context.Context, status string, limit int) ([]domain.Receipt, error)
	UpdateReceipt(ctx context.Context, receipt domain.Receipt) error
	ListReceiptLines(ctx context.Context, receiptID int64) ([]domain.ReceiptLine, error)
	FindReceiptLine(ctx context.Context, receiptID int64, key ReceiptLineKey) (domain.ReceiptLine, error)
	InsertReceiptLine(ctx context.Context, line domain.ReceiptLine) (domain.ReceiptLine, error)
	UpdateReceiptLine(ctx context.Context, line domain.ReceiptLine) error
	DeleteReceiptLine(ctx context.Context, receiptID int64, lineID int64) error
	DeleteReceiptLines(ctx context.Context, receiptID int64) (int, error)
}

type Sessions interface {
	CreateSession(ctx context.Context, session domain.StockInSession) (domain.StockInSession, error)
	GetSession(ctx context.Context, id int64) (domain.StockInSession, error)
	LockSession(ctx context.Context, id int64) (domain.StockInSession, error)
	ListSessions(ctx context.Context, status string, limit int) ([]domain.StockInSession, error)
	UpdateSession(ctx context.Context, session domain.StockInSession) error
	// DeleteSession removes the session and its staged lines.
	DeleteSession(ctx context.Context, id int64) error
	InsertStockInLine(ctx context.Context, line domain.StockInLine) (domain.StockInLine, error)
	GetStockInLine(ctx context.Context, sessionID int64, lineID int64) (domain.StockInLine, error)
	UpdateStockInLine(ctx context.Context, line domain.StockInLine) error
	DeleteStockInLine(ctx context.Context, sessionID int64, lineID int64) error
	// ListStockInLines returns staged lines in insertion order.
	ListStockInLines(ctx context.Context, sessionID int64) ([]domain.StockInLine, error)
	// CountBatchStockInLines counts staged lines of any session that point
	// at the batch.
	CountBatchStockInLines(ctx context.Context, batchID int64) (int, error)
}
