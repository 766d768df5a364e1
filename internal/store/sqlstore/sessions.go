package sqlstore

import (
	"context"
	"database/sql"

	"magazin/backend/internal/domain"
	"magazin/backend/internal/store"
)

const sessionColumns = `id, status, started_at, closed_at, note`

func scanSession(row scanner) (domain.StockInSession, error) {
	var s domain.StockInSession
	var closedAt sql.NullTime
	if err := row.Scan(&s.ID, &s.Status, &s.StartedAt, &closedAt, &s.Note); err != nil {
		return domain.StockInSession{}, err
	}
	s.StartedAt = s.StartedAt.UTC()
	s.ClosedAt = timePtr(closedAt)
	return s, nil
}

func (t *Tx) CreateSession(ctx context.Context, session domain.StockInSession) (domain.StockInSession, error) {
	id, err := t.insertID(ctx, `
		INSERT INTO stock_in_sessions (status, started_at, closed_at, note)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, session.Status, session.StartedAt.UTC(), nullTime(session.ClosedAt), session.Note)
	if err != nil {
		return domain.StockInSession{}, err
	}
	session.ID = id
	return session, nil
}

func (t *Tx) GetSession(ctx context.Context, id int64) (domain.StockInSession, error) {
	s, err := scanSession(t.queryRow(ctx, `SELECT `+sessionColumns+` FROM stock_in_sessions WHERE id = $1`, id))
	if err != nil {
		return domain.StockInSession{}, t.scanErr(err, store.ErrSessionNotFound)
	}
	return s, nil
}

func (t *Tx) LockSession(ctx context.Context, id int64) (domain.StockInSession, error) {
	s, err := scanSession(t.queryRow(ctx, `SELECT `+sessionColumns+` FROM stock_in_sessions WHERE id = $1`+t.lockSuffix(), id))
	if err != nil {
		return domain.StockInSession{}, t.scanErr(err, store.ErrSessionNotFound)
	}
	return s, nil
}

func (t *Tx) ListSessions(ctx context.Context, status string, limit int) ([]domain.StockInSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.query(ctx, `
		SELECT `+sessionColumns+`
		FROM stock_in_sessions
		WHERE $1 = '' OR status = $1
		ORDER BY id DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.StockInSession, 0, limit)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, t.d.classify(err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, t.d.classify(err)
	}
	return sessions, nil
}

func (t *Tx) UpdateSession(ctx context.Context, session domain.StockInSession) error {
	res, err := t.exec(ctx, `
		UPDATE stock_in_sessions
		SET status = $1, closed_at = $2, note = $3
		WHERE id = $4
	`, session.Status, nullTime(session.ClosedAt), session.Note, session.ID)
	if err != nil {
		return err
	}
	return t.affected(res, store.ErrSessionNotFound)
}

func (t *Tx) DeleteSession(ctx context.Context, id int64) error {
	res, err := t.exec(ctx, `DELETE FROM stock_in_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return t.affected(res, store.ErrSessionNotFound)
}

const stockInLineColumns = `id, session_id, product_id, batch_id, quantity_base, unit_cost_cents, supplier_name, supplier_doc, created_at`

func scanStockInLine(row scanner) (domain.StockInLine, error) {
	var l domain.StockInLine
	var batchID, cost sql.NullInt64
	if err := row.Scan(&l.ID, &l.SessionID, &l.ProductID, &batchID, &l.QuantityBase, &cost, &l.SupplierName, &l.SupplierDoc, &l.CreatedAt); err != nil {
		return domain.StockInLine{}, err
	}
	l.BatchID = int64Ptr(batchID)
	l.UnitCostCents = int64Ptr(cost)
	l.CreatedAt = l.CreatedAt.UTC()
	return l, nil
}

func (t *Tx) InsertStockInLine(ctx context.Context, line domain.StockInLine) (domain.StockInLine, error) {
	id, err := t.insertID(ctx, `
		INSERT INTO stock_in_lines (session_id, product_id, batch_id, quantity_base, unit_cost_cents, supplier_name, supplier_doc, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, line.SessionID, line.ProductID, nullInt64(line.BatchID), line.QuantityBase, nullInt64(line.UnitCostCents),
		line.SupplierName, line.SupplierDoc, line.CreatedAt.UTC())
	if err != nil {
		return domain.StockInLine{}, err
	}
	line.ID = id
	return line, nil
}

func (t *Tx) GetStockInLine(ctx context.Context, sessionID int64, lineID int64) (domain.StockInLine, error) {
	l, err := scanStockInLine(t.queryRow(ctx, `
		SELECT `+stockInLineColumns+`
		FROM stock_in_lines
		WHERE id = $1 AND session_id = $2
	`, lineID, sessionID))
	if err != nil {
		return domain.StockInLine{}, t.scanErr(err, store.ErrLineNotFound)
	}
	return l, nil
}

func (t *Tx) UpdateStockInLine(ctx context.Context, line domain.StockInLine) error {
	res, err := t.exec(ctx, `
		UPDATE stock_in_lines
		SET quantity_base = $1, unit_cost_cents = $2, supplier_name = $3, supplier_doc = $4
		WHERE id = $5 AND session_id = $6
	`, line.QuantityBase, nullInt64(line.UnitCostCents), line.SupplierName, line.SupplierDoc, line.ID, line.SessionID)
	if err != nil {
		return err
	}
	return t.affected(res, store.ErrLineNotFound)
}

func (t *Tx) DeleteStockInLine(ctx context.Context, sessionID int64, lineID int64) error {
	res, err := t.exec(ctx, `DELETE FROM stock_in_lines WHERE id = $1 AND session_id = $2`, lineID, sessionID)
	if err != nil {
		return err
	}
	return t.affected(res, store.ErrLineNotFound)
}

func (t *Tx) ListStockInLines(ctx context.Context, sessionID int64) ([]domain.StockInLine, error) {
	rows, err := t.query(ctx, `
		SELECT `+stockInLineColumns+`
		FROM stock_in_lines
		WHERE session_id = $1
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.StockInLine, 0, 16)
	for rows.Next() {
		l, err := scanStockInLine(rows)
		if err != nil {
			return nil, t.d.classify(err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, t.d.classify(err)
	}
	return lines, nil
}

func (t *Tx) CountBatchStockInLines(ctx context.Context, batchID int64) (int, error) {
	return t.count(ctx, `SELECT COUNT(*) FROM stock_in_lines WHERE batch_id = $1`, batchID)
}
