package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"magazin/backend/internal/domain"
	"magazin/backend/internal/store"
)

const productColumns = `id, uuid, barcode, name, unit, price_per_unit_cents, vat_rate, active, version, created_at, updated_at`

func scanProduct(row scanner) (domain.Product, error) {
	var p domain.Product
	var barcode sql.NullString
	var unit string
	err := row.Scan(&p.ID, &p.UUID, &barcode, &p.Name, &unit, &p.PricePerUnitCents, &p.VATRate, &p.Active, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.Barcode = barcode.String
	p.Unit = domain.Unit(unit)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (t *Tx) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if product.Version == 0 {
		product.Version = 1
	}
	id, err := t.insertID(ctx, `
		INSERT INTO products (uuid, barcode, name, unit, price_per_unit_cents, vat_rate, active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, product.UUID, nullIfEmpty(product.Barcode), product.Name, string(product.Unit), product.PricePerUnitCents,
		product.VATRate, product.Active, product.Version, product.CreatedAt.UTC(), product.UpdatedAt.UTC())
	if err != nil {
		return domain.Product{}, err
	}
	product.ID = id
	return product, nil
}

func (t *Tx) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	p, err := scanProduct(t.queryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return domain.Product{}, t.scanErr(err, store.ErrProductNotFound)
	}
	return p, nil
}

func (t *Tx) LockProduct(ctx context.Context, id int64) (domain.Product, error) {
	p, err := scanProduct(t.queryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`+t.lockSuffix(), id))
	if err != nil {
		return domain.Product{}, t.scanErr(err, store.ErrProductNotFound)
	}
	return p, nil
}

func (t *Tx) GetProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	if barcode == "" {
		return domain.Product{}, store.ErrProductNotFound
	}
	p, err := scanProduct(t.queryRow(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = $1`, barcode))
	if err != nil {
		return domain.Product{}, t.scanErr(err, store.ErrProductNotFound)
	}
	return p, nil
}

func (t *Tx) ListProducts(ctx context.Context, search string) ([]domain.Product, error) {
	search = strings.ToLower(strings.TrimSpace(search))
	rows, err := t.query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE $1 = '' OR lower(name) LIKE $2 OR barcode LIKE $2
		ORDER BY lower(name), id
	`, search, likePattern(search))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, t.d.classify(err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, t.d.classify(err)
	}
	return products, nil
}

func (t *Tx) UpdateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err := t.writable(); err != nil {
		return domain.Product{}, err
	}
	updated, err := scanProduct(t.queryRow(ctx, `
		UPDATE products
		SET barcode = $1, name = $2, price_per_unit_cents = $3, vat_rate = $4, active = $5,
			version = version + 1, updated_at = $6
		WHERE id = $7 AND version = $8
		RETURNING `+productColumns,
		nullIfEmpty(product.Barcode), product.Name, product.PricePerUnitCents, product.VATRate, product.Active,
		product.UpdatedAt.UTC(), product.ID, product.Version))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, t.d.classify(err)
	}
	if _, getErr := t.GetProduct(ctx, product.ID); getErr != nil {
		return domain.Product{}, getErr
	}
	return domain.Product{}, store.ErrVersionConflict
}

func (t *Tx) DeleteProduct(ctx context.Context, id int64) error {
	res, err := t.exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return t.affected(res, store.ErrProductNotFound)
}

func (t *Tx) CountReceiptLinesForProduct(ctx context.Context, productID int64) (int, error) {
	return t.count(ctx, `SELECT COUNT(*) FROM receipt_lines WHERE product_id = $1`, productID)
}
