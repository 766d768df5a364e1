package sqlstore

import (
	"context"
	"database/sql"

	"magazin/backend/internal/domain"
	"magazin/backend/internal/store"
)

const receiptColumns = `id, uuid, status, opened_at, closed_at, total_cached_cents`

func scanReceipt(row scanner) (domain.Receipt, error) {
	var r domain.Receipt
	var closedAt sql.NullTime
	if err := row.Scan(&r.ID, &r.UUID, &r.Status, &r.OpenedAt, &closedAt, &r.TotalCents); err != nil {
		return domain.Receipt{}, err
	}
	r.OpenedAt = r.OpenedAt.UTC()
	r.ClosedAt = timePtr(closedAt)
	return r, nil
}

func (t *Tx) CreateReceipt(ctx context.Context, receipt domain.Receipt) (domain.Receipt, error) {
	id, err := t.insertID(ctx, `
		INSERT INTO receipts (uuid, status, opened_at, closed_at, total_cached_cents)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, receipt.UUID, receipt.Status, receipt.OpenedAt.UTC(), nullTime(receipt.ClosedAt), receipt.TotalCents)
	if err != nil {
		return domain.Receipt{}, err
	}
	receipt.ID = id
	receipt.Lines = nil
	return receipt, nil
}

func (t *Tx) GetReceipt(ctx context.Context, id int64) (domain.Receipt, error) {
	r, err := scanReceipt(t.queryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, id))
	if err != nil {
		return domain.Receipt{}, t.scanErr(err, store.ErrReceiptNotFound)
	}
	return r, nil
}

func (t *Tx) LockReceipt(ctx context.Context, id int64) (domain.Receipt, error) {
	r, err := scanReceipt(t.queryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`+t.lockSuffix(), id))
	if err != nil {
		return domain.Receipt{}, t.scanErr(err, store.ErrReceiptNotFound)
	}
	return r, nil
}

func (t *Tx) ListReceipts(ctx context.Context, status string, limit int) ([]domain.Receipt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.query(ctx, `
		SELECT `+receiptColumns+`
		FROM receipts
		WHERE $1 = '' OR status = $1
		ORDER BY id DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := make([]domain.Receipt, 0, limit)
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, t.d.classify(err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, t.d.classify(err)
	}
	return receipts, nil
}

func (t *Tx) UpdateReceipt(ctx context.Context, receipt domain.Receipt) error {
	res, err := t.exec(ctx, `
		UPDATE receipts
		SET status = $1, closed_at = $2, total_cached_cents = $3
		WHERE id = $4
	`, receipt.Status, nullTime(receipt.ClosedAt), receipt.TotalCents, receipt.ID)
	if err != nil {
		return err
	}
	return t.affected(res, store.ErrReceiptNotFound)
}

const receiptLineColumns = `l.id, l.receipt_id, l.product_id, l.qty_base, l.unit_price_cents, l.price_per_unit_cents,
	l.vat_rate, l.line_total_cents`

func scanReceiptLine(row scanner, extra ...any) (domain.ReceiptLine, error) {
	var l domain.ReceiptLine
	dest := append([]any{&l.ID, &l.ReceiptID, &l.ProductID, &l.QtyBase, &l.UnitPriceCents, &l.PricePerUnitCents, &l.VATRate, &l.LineTotalCents}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.ReceiptLine{}, err
	}
	return l, nil
}

func (t *Tx) ListReceiptLines(ctx context.Context, receiptID int64) ([]domain.ReceiptLine, error) {
	rows, err := t.query(ctx, `
		SELECT `+receiptLineColumns+`, p.name, p.barcode, p.unit
		FROM receipt_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.receipt_id = $1
		ORDER BY l.id ASC
	`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.ReceiptLine, 0, 8)
	for rows.Next() {
		var barcode sql.NullString
		var name, unit string
		l, err := scanReceiptLine(rows, &name, &barcode, &unit)
		if err != nil {
			return nil, t.d.classify(err)
		}
		l.ProductName = name
		l.Barcode = barcode.String
		l.Unit = domain.Unit(unit)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, t.d.classify(err)
	}
	return lines, nil
}

func (t *Tx) FindReceiptLine(ctx context.Context, receiptID int64, key store.ReceiptLineKey) (domain.ReceiptLine, error) {
	l, err := scanReceiptLine(t.queryRow(ctx, `
		SELECT `+receiptLineColumns+`
		FROM receipt_lines l
		WHERE l.receipt_id = $1 AND l.product_id = $2 AND l.unit_price_cents = $3
			AND l.price_per_unit_cents = $4 AND l.vat_rate = $5
		ORDER BY l.id ASC
		LIMIT 1
	`, receiptID, key.ProductID, key.UnitPriceCents, key.PricePerUnitCents, key.VATRate))
	if err != nil {
		return domain.ReceiptLine{}, t.scanErr(err, store.ErrLineNotFound)
	}
	return l, nil
}

func (t *Tx) InsertReceiptLine(ctx context.Context, line domain.ReceiptLine) (domain.ReceiptLine, error) {
	id, err := t.insertID(ctx, `
		INSERT INTO receipt_lines (receipt_id, product_id, qty_base, unit_price_cents, price_per_unit_cents, vat_rate, line_total_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, line.ReceiptID, line.ProductID, line.QtyBase, line.UnitPriceCents, line.PricePerUnitCents, line.VATRate, line.LineTotalCents)
	if err != nil {
		return domain.ReceiptLine{}, err
	}
	line.ID = id
	line.ProductName, line.Barcode, line.Unit = "", "", ""
	return line, nil
}

func (t *Tx) UpdateReceiptLine(ctx context.Context, line domain.ReceiptLine) error {
	res, err := t.exec(ctx, `
		UPDATE receipt_lines
		SET qty_base = $1, line_total_cents = $2
		WHERE id = $3 AND receipt_id = $4
	`, line.QtyBase, line.LineTotalCents, line.ID, line.ReceiptID)
	if err != nil {
		return err
	}
	return t.affected(res, store.ErrLineNotFound)
}

func (t *Tx) DeleteReceiptLine(ctx context.Context, receiptID int64, lineID int64) error {
	res, err := t.exec(ctx, `DELETE FROM receipt_lines WHERE id = $1 AND receipt_id = $2`, lineID, receiptID)
	if err != nil {
		return err
	}
	return t.affected(res, store.ErrLineNotFound)
}

func (t *Tx) DeleteReceiptLines(ctx context.Context, receiptID int64) (int, error) {
	res, err := t.exec(ctx, `DELETE FROM receipt_lines WHERE receipt_id = $1`, receiptID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, t.d.classify(err)
	}
	return int(n), nil
}
