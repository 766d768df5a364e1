package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"magazin/backend/internal/domain"
	"magazin/backend/internal/store"
)

const batchColumns = `b.id, b.uuid, b.product_id, b.lot_code, b.expiry_date, b.unit_cost_cents,
	b.supplier_name, b.supplier_doc, b.origin_session_id, b.received_at, b.version`

// scanBatch reads batchColumns followed by any extra destinations.
func scanBatch(row scanner, extra ...any) (domain.Batch, error) {
	var b domain.Batch
	var lot, supplier, doc sql.NullString
	var expiry sql.NullTime
	var cost, origin sql.NullInt64
	dest := append([]any{&b.ID, &b.UUID, &b.ProductID, &lot, &expiry, &cost, &supplier, &doc, &origin, &b.ReceivedAt, &b.Version}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Batch{}, err
	}
	b.LotCode = lot.String
	b.ExpiryDate = datePtr(expiry)
	b.UnitCostCents = int64Ptr(cost)
	b.SupplierName = supplier.String
	b.SupplierDoc = doc.String
	b.OriginSessionID = int64Ptr(origin)
	b.ReceivedAt = b.ReceivedAt.UTC()
	return b, nil
}

func (t *Tx) CreateBatch(ctx context.Context, batch domain.Batch) (domain.Batch, error) {
	if batch.Version == 0 {
		batch.Version = 1
	}
	id, err := t.insertID(ctx, `
		INSERT INTO batches (uuid, product_id, lot_code, expiry_date, unit_cost_cents, supplier_name, supplier_doc,
			origin_session_id, received_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, batch.UUID, batch.ProductID, nullIfEmpty(batch.LotCode), nullDate(batch.ExpiryDate), nullInt64(batch.UnitCostCents),
		nullIfEmpty(batch.SupplierName), nullIfEmpty(batch.SupplierDoc), nullInt64(batch.OriginSessionID),
		batch.ReceivedAt.UTC(), batch.Version)
	if err != nil {
		return domain.Batch{}, err
	}
	batch.ID = id
	return batch, nil
}

func (t *Tx) GetBatch(ctx context.Context, id int64) (domain.Batch, error) {
	b, err := scanBatch(t.queryRow(ctx, `SELECT `+batchColumns+` FROM batches b WHERE b.id = $1`, id))
	if err != nil {
		return domain.Batch{}, t.scanErr(err, store.ErrBatchNotFound)
	}
	return b, nil
}

func (t *Tx) listBatches(ctx context.Context, query string, args ...any) ([]domain.Batch, error) {
	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0, 8)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, t.d.classify(err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, t.d.classify(err)
	}
	return batches, nil
}

func (t *Tx) ListBatches(ctx context.Context, productID int64) ([]domain.Batch, error) {
	return t.listBatches(ctx, `
		SELECT `+batchColumns+`
		FROM batches b
		WHERE b.product_id = $1
		ORDER BY b.expiry_date ASC NULLS LAST, b.id ASC
	`, productID)
}

func (t *Tx) FindBatchByLot(ctx context.Context, productID int64, lotCode string) (domain.Batch, error) {
	b, err := scanBatch(t.queryRow(ctx, `
		SELECT `+batchColumns+`
		FROM batches b
		WHERE b.product_id = $1 AND b.lot_code = $2
		ORDER BY b.id ASC
		LIMIT 1
	`, productID, lotCode))
	if err != nil {
		return domain.Batch{}, t.scanErr(err, store.ErrBatchNotFound)
	}
	return b, nil
}

func (t *Tx) FindSessionBatchByExpiry(ctx context.Context, productID int64, sessionID int64, expiry time.Time) (domain.Batch, error) {
	b, err := scanBatch(t.queryRow(ctx, `
		SELECT `+batchColumns+`
		FROM batches b
		WHERE b.product_id = $1 AND b.origin_session_id = $2 AND b.expiry_date = $3
		ORDER BY b.id ASC
		LIMIT 1
	`, productID, sessionID, nullDate(&expiry)))
	if err != nil {
		return domain.Batch{}, t.scanErr(err, store.ErrBatchNotFound)
	}
	return b, nil
}

func (t *Tx) ListSessionBatches(ctx context.Context, sessionID int64) ([]domain.Batch, error) {
	return t.listBatches(ctx, `
		SELECT `+batchColumns+`
		FROM batches b
		WHERE b.origin_session_id = $1
		ORDER BY b.id ASC
	`, sessionID)
}

func (t *Tx) UpdateBatch(ctx context.Context, batch domain.Batch) (domain.Batch, error) {
	res, err := t.exec(ctx, `
		UPDATE batches
		SET lot_code = $1, expiry_date = $2, unit_cost_cents = $3, supplier_name = $4, supplier_doc = $5,
			version = version + 1
		WHERE id = $6
	`, nullIfEmpty(batch.LotCode), nullDate(batch.ExpiryDate), nullInt64(batch.UnitCostCents),
		nullIfEmpty(batch.SupplierName), nullIfEmpty(batch.SupplierDoc), batch.ID)
	if err != nil {
		return domain.Batch{}, err
	}
	if err := t.affected(res, store.ErrBatchNotFound); err != nil {
		return domain.Batch{}, err
	}
	return t.GetBatch(ctx, batch.ID)
}

func (t *Tx) DeleteBatch(ctx context.Context, id int64) error {
	res, err := t.exec(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return t.affected(res, store.ErrBatchNotFound)
}
