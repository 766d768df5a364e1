package sqlstore

import "strings"

// Types carries the column spellings that differ between backends.
type Types struct {
	Serial     string
	Timestamp  string
	Bool       string
	True       string
	CreateView string
}

// Schema renders the DDL for the given column types. Every statement is
// idempotent so it can run on each start.
func Schema(ty Types) []string {
	r := strings.NewReplacer(
		"{serial}", ty.Serial,
		"{ts}", ty.Timestamp,
		"{bool}", ty.Bool,
		"{true}", ty.True,
		"{view}", ty.CreateView,
	)
	out := make([]string, 0, len(schemaTemplate))
	for _, stmt := range schemaTemplate {
		out = append(out, r.Replace(stmt))
	}
	return out
}

var schemaTemplate = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id {serial},
		uuid TEXT NOT NULL UNIQUE,
		barcode TEXT UNIQUE,
		name TEXT NOT NULL,
		unit TEXT NOT NULL CHECK (unit IN ('piece', 'kilogram', 'liter')),
		price_per_unit_cents BIGINT NOT NULL CHECK (price_per_unit_cents >= 0),
		vat_rate INTEGER NOT NULL DEFAULT 9 CHECK (vat_rate >= 0 AND vat_rate <= 100),
		active {bool} NOT NULL DEFAULT {true},
		version BIGINT NOT NULL DEFAULT 1,
		created_at {ts} NOT NULL,
		updated_at {ts} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stock_in_sessions (
		id {serial},
		status TEXT NOT NULL CHECK (status IN ('open', 'closed', 'discarded')),
		started_at {ts} NOT NULL,
		closed_at {ts},
		note TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS batches (
		id {serial},
		uuid TEXT NOT NULL UNIQUE,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		lot_code TEXT,
		expiry_date DATE,
		unit_cost_cents BIGINT CHECK (unit_cost_cents IS NULL OR unit_cost_cents >= 0),
		supplier_name TEXT,
		supplier_doc TEXT,
		origin_session_id BIGINT REFERENCES stock_in_sessions(id) ON DELETE SET NULL,
		received_at {ts} NOT NULL,
		version BIGINT NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS receipts (
		id {serial},
		uuid TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL CHECK (status IN ('open', 'closed', 'void')),
		opened_at {ts} NOT NULL,
		closed_at {ts},
		total_cached_cents BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS movements (
		id {serial},
		uuid TEXT NOT NULL UNIQUE,
		created_at {ts} NOT NULL,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		batch_id BIGINT REFERENCES batches(id) ON DELETE SET NULL,
		quantity BIGINT NOT NULL CHECK (quantity <> 0),
		reason TEXT NOT NULL CHECK (reason IN ('stock_in', 'sale', 'adjustment', 'waste', 'return')),
		receipt_id BIGINT REFERENCES receipts(id) ON DELETE SET NULL,
		note TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS receipt_lines (
		id {serial},
		receipt_id BIGINT NOT NULL REFERENCES receipts(id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
		qty_base BIGINT NOT NULL CHECK (qty_base > 0),
		unit_price_cents BIGINT NOT NULL,
		price_per_unit_cents BIGINT NOT NULL,
		vat_rate INTEGER NOT NULL,
		line_total_cents BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stock_in_lines (
		id {serial},
		session_id BIGINT NOT NULL REFERENCES stock_in_sessions(id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		batch_id BIGINT REFERENCES batches(id) ON DELETE SET NULL,
		quantity_base BIGINT NOT NULL CHECK (quantity_base > 0),
		unit_cost_cents BIGINT,
		supplier_name TEXT NOT NULL DEFAULT '',
		supplier_doc TEXT NOT NULL DEFAULT '',
		created_at {ts} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sequences (
		name TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`,
	`INSERT INTO sequences (name, value) VALUES ('ean_internal', 100000) ON CONFLICT (name) DO NOTHING`,
	`CREATE INDEX IF NOT EXISTS idx_batches_product ON batches (product_id, expiry_date)`,
	`CREATE INDEX IF NOT EXISTS idx_batches_session ON batches (origin_session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_product ON movements (product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_batch ON movements (batch_id)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_receipt ON movements (receipt_id)`,
	`CREATE INDEX IF NOT EXISTS idx_receipt_lines_receipt ON receipt_lines (receipt_id)`,
	`CREATE INDEX IF NOT EXISTS idx_receipt_lines_product ON receipt_lines (product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_in_lines_session ON stock_in_lines (session_id)`,
	`{view} current_stock_per_product AS
		SELECT p.id AS product_id, p.barcode, p.name, p.unit,
			CAST(COALESCE(SUM(m.quantity), 0) AS BIGINT) AS stock_base
		FROM products p
		LEFT JOIN movements m ON m.product_id = p.id
		GROUP BY p.id, p.barcode, p.name, p.unit`,
	`{view} current_stock_per_batch AS
		SELECT b.id AS batch_id, b.product_id,
			CAST(COALESCE(SUM(m.quantity), 0) AS BIGINT) AS stock_base
		FROM batches b
		LEFT JOIN movements m ON m.batch_id = b.id
		GROUP BY b.id, b.product_id`,
	`{view} expiring_batches AS
		SELECT s.batch_id, s.product_id, b.expiry_date, s.stock_base
		FROM current_stock_per_batch s
		JOIN batches b ON b.id = s.batch_id
		WHERE b.expiry_date IS NOT NULL AND s.stock_base > 0`,
}
