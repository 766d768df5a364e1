package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"magazin/backend/internal/domain"
	"magazin/backend/internal/store"
)

const movementColumns = `id, uuid, created_at, product_id, batch_id, quantity, reason, receipt_id, note`

func (t *Tx) AppendMovement(ctx context.Context, movement domain.Movement) (domain.Movement, error) {
	id, err := t.insertID(ctx, `
		INSERT INTO movements (uuid, created_at, product_id, batch_id, quantity, reason, receipt_id, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, movement.UUID, movement.CreatedAt.UTC(), movement.ProductID, nullInt64(movement.BatchID), movement.Quantity,
		string(movement.Reason), nullInt64(movement.ReceiptID), movement.Note)
	if err != nil {
		return domain.Movement{}, err
	}
	movement.ID = id
	return movement, nil
}

func (t *Tx) StockOf(ctx context.Context, productID int64) (int64, error) {
	return t.sum(ctx, `SELECT CAST(COALESCE(SUM(quantity), 0) AS BIGINT) FROM movements WHERE product_id = $1`, productID)
}

func (t *Tx) StockOfBatch(ctx context.Context, productID int64, batchID int64) (int64, error) {
	return t.sum(ctx, `
		SELECT CAST(COALESCE(SUM(quantity), 0) AS BIGINT)
		FROM movements
		WHERE product_id = $1 AND batch_id = $2
	`, productID, batchID)
}

func (t *Tx) StockWithNoBatch(ctx context.Context, productID int64) (int64, error) {
	return t.sum(ctx, `
		SELECT CAST(COALESCE(SUM(quantity), 0) AS BIGINT)
		FROM movements
		WHERE product_id = $1 AND batch_id IS NULL
	`, productID)
}

func (t *Tx) batchStocks(ctx context.Context, productID int64, positiveOnly bool) ([]domain.BatchStock, error) {
	having := ""
	if positiveOnly {
		having = "HAVING COALESCE(SUM(m.quantity), 0) > 0"
	}
	rows, err := t.query(ctx, `
		SELECT `+batchColumns+`, CAST(COALESCE(SUM(m.quantity), 0) AS BIGINT) AS stock
		FROM batches b
		LEFT JOIN movements m ON m.batch_id = b.id
		WHERE b.product_id = $1
		GROUP BY b.id
		`+having+`
		ORDER BY b.expiry_date ASC NULLS LAST, b.id ASC
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.BatchStock, 0, 8)
	for rows.Next() {
		var stock int64
		b, err := scanBatch(rows, &stock)
		if err != nil {
			return nil, t.d.classify(err)
		}
		result = append(result, domain.BatchStock{Batch: b, Stock: stock})
	}
	if err := rows.Err(); err != nil {
		return nil, t.d.classify(err)
	}
	return result, nil
}

func (t *Tx) BatchesWithPositiveStock(ctx context.Context, productID int64) ([]domain.BatchStock, error) {
	return t.batchStocks(ctx, productID, true)
}

func (t *Tx) BatchStocks(ctx context.Context, productID int64) ([]domain.BatchStock, error) {
	return t.batchStocks(ctx, productID, false)
}

func (t *Tx) StockList(ctx context.Context, search string) ([]domain.StockRow, error) {
	search = strings.ToLower(strings.TrimSpace(search))
	rows, err := t.query(ctx, `
		SELECT product_id, barcode, name, unit, stock_base
		FROM current_stock_per_product
		WHERE $1 = '' OR lower(name) LIKE $2 OR barcode LIKE $2
		ORDER BY lower(name), product_id
	`, search, likePattern(search))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.StockRow, 0, 64)
	for rows.Next() {
		var row domain.StockRow
		var barcode sql.NullString
		var unit string
		if err := rows.Scan(&row.ProductID, &barcode, &row.Name, &unit, &row.StockBase); err != nil {
			return nil, t.d.classify(err)
		}
		row.Barcode = barcode.String
		row.Unit = domain.Unit(unit)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, t.d.classify(err)
	}
	return result, nil
}

func (t *Tx) ExpiringBatches(ctx context.Context, until time.Time) ([]store.ExpiringRow, error) {
	rows, err := t.query(ctx, `
		SELECT `+batchColumns+`, p.name, p.barcode, p.unit, e.stock_base
		FROM expiring_batches e
		JOIN batches b ON b.id = e.batch_id
		JOIN products p ON p.id = b.product_id
		WHERE e.expiry_date <= $1
		ORDER BY b.expiry_date ASC, b.id ASC
	`, nullDate(&until))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]store.ExpiringRow, 0, 16)
	for rows.Next() {
		var row store.ExpiringRow
		var barcode sql.NullString
		var unit string
		b, err := scanBatch(rows, &row.ProductName, &barcode, &unit, &row.Stock)
		if err != nil {
			return nil, t.d.classify(err)
		}
		row.Batch = b
		row.Barcode = barcode.String
		row.Unit = domain.Unit(unit)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, t.d.classify(err)
	}
	return result, nil
}

func (t *Tx) ListMovements(ctx context.Context, filter store.MovementFilter) ([]domain.Movement, error) {
	where := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		where = append(where, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if filter.ReceiptID != 0 {
		args = append(args, filter.ReceiptID)
		where = append(where, fmt.Sprintf("receipt_id = $%d", len(args)))
	}
	query := `SELECT ` + movementColumns + ` FROM movements`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	limit := filter.Limit
	if limit <= 0 {
		limit = 64
	}
	movements := make([]domain.Movement, 0, limit)
	for rows.Next() {
		var m domain.Movement
		var batchID, receiptID sql.NullInt64
		var reason string
		if err := rows.Scan(&m.ID, &m.UUID, &m.CreatedAt, &m.ProductID, &batchID, &m.Quantity, &reason, &receiptID, &m.Note); err != nil {
			return nil, t.d.classify(err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		m.BatchID = int64Ptr(batchID)
		m.ReceiptID = int64Ptr(receiptID)
		m.Reason = domain.Reason(reason)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, t.d.classify(err)
	}
	return movements, nil
}

func (t *Tx) CountBatchMovements(ctx context.Context, batchID int64) (int, error) {
	return t.count(ctx, `SELECT COUNT(*) FROM movements WHERE batch_id = $1`, batchID)
}

func (t *Tx) NextSequence(ctx context.Context, name string) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	var value int64
	err := t.queryRow(ctx, `
		INSERT INTO sequences (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		RETURNING value
	`, name).Scan(&value)
	if err != nil {
		return 0, t.d.classify(err)
	}
	return value, nil
}
