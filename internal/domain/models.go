package domain

import "time"

type Unit string

const (
	UnitPiece    Unit = "piece"
	UnitKilogram Unit = "kilogram"
	UnitLiter    Unit = "liter"
)

type Reason string

const (
	ReasonStockIn    Reason = "stock_in"
	ReasonSale       Reason = "sale"
	ReasonAdjustment Reason = "adjustment"
	ReasonWaste      Reason = "waste"
	ReasonReturn     Reason = "return"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonStockIn, ReasonSale, ReasonAdjustment, ReasonWaste, ReasonReturn:
		return true
	}
	return false
}

const (
	ReceiptStatusOpen   = "open"
	ReceiptStatusClosed = "closed"
	ReceiptStatusVoid   = "void"
)

const (
	SessionStatusOpen      = "open"
	SessionStatusClosed    = "closed"
	SessionStatusDiscarded = "discarded"
)

// SequenceInternalEAN names the counter behind internally issued EAN-13 bodies.
const SequenceInternalEAN = "ean_internal"

type Product struct {
	ID                int64     `json:"id"`
	UUID              string    `json:"uuid"`
	Barcode           string    `json:"barcode,omitempty"`
	Name              string    `json:"name"`
	Unit              Unit      `json:"unit"`
	PricePerUnitCents int64     `json:"price_per_unit_cents"`
	VATRate           int       `json:"vat_rate"`
	Active            bool      `json:"active"`
	Version           int64     `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Batch struct {
	ID              int64      `json:"id"`
	UUID            string     `json:"uuid"`
	ProductID       int64      `json:"product_id"`
	LotCode         string     `json:"lot_code,omitempty"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
	UnitCostCents   *int64     `json:"unit_cost_cents,omitempty"`
	SupplierName    string     `json:"supplier_name,omitempty"`
	SupplierDoc     string     `json:"supplier_doc,omitempty"`
	OriginSessionID *int64     `json:"origin_session_id,omitempty"`
	ReceivedAt      time.Time  `json:"received_at"`
	Version         int64      `json:"version"`
}

// Movement is one signed change in the ledger. A nil BatchID books the
// quantity against the product's no-batch bucket.
type Movement struct {
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid"`
	CreatedAt time.Time `json:"created_at"`
	ProductID int64     `json:"product_id"`
	BatchID   *int64    `json:"batch_id,omitempty"`
	Quantity  int64     `json:"quantity"`
	Reason    Reason    `json:"reason"`
	ReceiptID *int64    `json:"receipt_id,omitempty"`
	Note      string    `json:"note,omitempty"`
}

type Receipt struct {
	ID         int64         `json:"id"`
	UUID       string        `json:"uuid"`
	Status     string        `json:"status"`
	OpenedAt   time.Time     `json:"opened_at"`
	ClosedAt   *time.Time    `json:"closed_at,omitempty"`
	TotalCents int64         `json:"total_cents"`
	Lines      []ReceiptLine `json:"lines,omitempty"`
}

// ReceiptLine prices its quantity per base unit. PricePerUnitCents keeps
// the product price per human unit at the time the line was added so the
// line total does not accumulate rounding from the per-gram price.
type ReceiptLine struct {
	ID                int64  `json:"id"`
	ReceiptID         int64  `json:"receipt_id"`
	ProductID         int64  `json:"product_id"`
	QtyBase           int64  `json:"qty_base"`
	UnitPriceCents    int64  `json:"unit_price_cents"`
	PricePerUnitCents int64  `json:"price_per_unit_cents"`
	VATRate           int    `json:"vat_rate"`
	LineTotalCents    int64  `json:"line_total_cents"`
	ProductName       string `json:"product_name,omitempty"`
	Barcode           string `json:"barcode,omitempty"`
	Unit              Unit   `json:"unit,omitempty"`
}

type StockInSession struct {
	ID        int64      `json:"id"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Note      string     `json:"note,omitempty"`
}

type StockInLine struct {
	ID            int64     `json:"id"`
	SessionID     int64     `json:"session_id"`
	ProductID     int64     `json:"product_id"`
	BatchID       *int64    `json:"batch_id,omitempty"`
	QuantityBase  int64     `json:"quantity_base"`
	UnitCostCents *int64    `json:"unit_cost_cents,omitempty"`
	SupplierName  string    `json:"supplier_name,omitempty"`
	SupplierDoc   string    `json:"supplier_doc,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Barcode           string `json:"barcode"`
	Name              string `json:"name" validate:"required,max=200"`
	Unit              string `json:"unit" validate:"required"`
	PricePerUnitCents int64  `json:"price_per_unit_cents" validate:"gte=0"`
	VATRate           *int   `json:"vat_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	GenerateBarcode   bool   `json:"generate_barcode"`
}

// ProductUpdateRequest carries one tagged update per field. Unit is absent:
// stored quantities assume the conversion factor chosen at creation.
type ProductUpdateRequest struct {
	ExpectedVersion   int64         `json:"expected_version"`
	Name              Field[string] `json:"name"`
	Barcode           Field[string] `json:"barcode"`
	PricePerUnitCents Field[int64]  `json:"price_per_unit_cents"`
	VATRate           Field[int]    `json:"vat_rate"`
	Active            Field[bool]   `json:"active"`
}

type BatchCreateRequest struct {
	ProductID     int64  `json:"product_id" validate:"required,gt=0"`
	LotCode       string `json:"lot_code" validate:"max=64"`
	ExpiryDate    string `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	UnitCostCents *int64 `json:"unit_cost_cents,omitempty" validate:"omitempty,gte=0"`
	SupplierName  string `json:"supplier_name" validate:"max=200"`
	SupplierDoc   string `json:"supplier_doc" validate:"max=200"`
}

type BatchUpdateRequest struct {
	LotCode       Field[string] `json:"lot_code"`
	ExpiryDate    Field[string] `json:"expiry_date"`
	UnitCostCents Field[int64]  `json:"unit_cost_cents"`
	SupplierName  Field[string] `json:"supplier_name"`
	SupplierDoc   Field[string] `json:"supplier_doc"`
}

type StockAdjustRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	BatchID   *int64  `json:"batch_id,omitempty"`
	Quantity  float64 `json:"quantity"`
	Reason    string  `json:"reason" validate:"required,oneof=adjustment waste return"`
	Note      string  `json:"note" validate:"max=500"`
}

type StockInOpenRequest struct {
	Note string `json:"note" validate:"max=500"`
}

// StockInLineRequest stages one intake line. Name, Unit and price only
// matter when the barcode is not yet known and the product gets created.
type StockInLineRequest struct {
	Barcode           string  `json:"barcode"`
	Name              string  `json:"name" validate:"max=200"`
	Unit              string  `json:"unit"`
	PricePerUnitCents int64   `json:"price_per_unit_cents" validate:"gte=0"`
	VATRate           *int    `json:"vat_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	Quantity          float64 `json:"quantity" validate:"gt=0"`
	LotCode           string  `json:"lot_code" validate:"max=64"`
	ExpiryDate        string  `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	UnitCostCents     *int64  `json:"unit_cost_cents,omitempty" validate:"omitempty,gte=0"`
	SupplierName      string  `json:"supplier_name" validate:"max=200"`
	SupplierDoc       string  `json:"supplier_doc" validate:"max=200"`
}

type StockInLineUpdateRequest struct {
	Quantity      Field[float64] `json:"quantity"`
	UnitCostCents Field[int64]   `json:"unit_cost_cents"`
	SupplierName  Field[string]  `json:"supplier_name"`
	SupplierDoc   Field[string]  `json:"supplier_doc"`
}

type StockInSummaryLine struct {
	ProductID    int64   `json:"product_id"`
	Name         string  `json:"name"`
	Barcode      string  `json:"barcode,omitempty"`
	Unit         Unit    `json:"unit"`
	QuantityBase int64   `json:"quantity_base"`
	Quantity     float64 `json:"quantity"`
	ValueCents   int64   `json:"value_cents"`
}

type StockInSummary struct {
	Session         StockInSession       `json:"session"`
	Lines           []StockInSummaryLine `json:"lines"`
	TotalDistinct   int                  `json:"total_distinct"`
	TotalQuantity   float64              `json:"total_quantity"`
	TotalValueCents int64                `json:"total_value_cents"`
	Top             []StockInSummaryLine `json:"top"`
}

type ReceiptLineRequest struct {
	Barcode  string  `json:"barcode"`
	Quantity float64 `json:"quantity" validate:"gt=0"`
}

type StockRow struct {
	ProductID int64   `json:"product_id"`
	Barcode   string  `json:"barcode,omitempty"`
	Name      string  `json:"name"`
	Unit      Unit    `json:"unit"`
	StockBase int64   `json:"stock_base"`
	Stock     float64 `json:"stock"`
}

type BatchStockRow struct {
	Batch     Batch   `json:"batch"`
	StockBase int64   `json:"stock_base"`
	Stock     float64 `json:"stock"`
}

type ProductBatches struct {
	Product     Product         `json:"product"`
	Batches     []BatchStockRow `json:"batches"`
	NoBatchBase int64           `json:"no_batch_base"`
	NoBatch     float64         `json:"no_batch"`
}

type ExpiringBatch struct {
	Batch       Batch   `json:"batch"`
	ProductName string  `json:"product_name"`
	Barcode     string  `json:"barcode,omitempty"`
	Unit        Unit    `json:"unit"`
	StockBase   int64   `json:"stock_base"`
	Stock       float64 `json:"stock"`
	DaysLeft    int     `json:"days_left"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

// ExpiryAlert counts batches with stock that expire within WithinDays.
type ExpiryAlert struct {
	WithinDays int `json:"within_days"`
	Count      int `json:"count"`
}
