// Package sqlstore implements store.Tx over database/sql. The postgres and
// sqlite packages supply a Dialect and a schema; queries are written once
// with $N placeholders and rebound where the driver wants another form.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"magazin/backend/internal/store"
)

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*Tx)(nil)
)

type Dialect struct {
	Name string
	// ForUpdate is appended to row reads that must hold a lock until the
	// end of a write transaction. Empty when the backend locks the whole
	// database for writers.
	ForUpdate string
	// NumberedParams rewrites $N to ?N.
	NumberedParams bool
	WriteTx        *sql.TxOptions
	ReadTx         *sql.TxOptions
	// Classify maps driver errors onto store sentinels and returns other
	// errors unchanged.
	Classify func(err error) error
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

func (d Dialect) rebind(query string) string {
	if !d.NumberedParams {
		return query
	}
	return placeholderRe.ReplaceAllString(query, "?$1")
}

func (d Dialect) classify(err error) error {
	if err == nil || d.Classify == nil {
		return err
	}
	return d.Classify(err)
}

type Store struct {
	db      *sql.DB
	read    *sql.DB
	dialect Dialect
}

// New wraps db for writes and read for snapshots. read may be nil when a
// single pool serves both.
func New(db *sql.DB, read *sql.DB, dialect Dialect) *Store {
	if read == nil {
		read = db
	}
	return &Store{db: db, read: read, dialect: dialect}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	err := s.db.Close()
	if s.read != s.db {
		if rerr := s.read.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, s.dialect.WriteTx)
	if err != nil {
		return s.dialect.classify(err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&Tx{tx: sqlTx, d: s.dialect}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return s.dialect.classify(err)
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.read.BeginTx(ctx, s.dialect.ReadTx)
	if err != nil {
		return s.dialect.classify(err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&Tx{tx: sqlTx, d: s.dialect, readOnly: true}); err != nil {
		return err
	}
	return s.dialect.classify(sqlTx.Commit())
}

// Migrate runs schema statements in order.
func Migrate(ctx context.Context, db *sql.DB, statements []string) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

type Tx struct {
	tx       *sql.Tx
	d        Dialect
	readOnly bool
}

type scanner interface {
	Scan(dest ...any) error
}

func (t *Tx) writable() error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	return nil
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	res, err := t.tx.ExecContext(ctx, t.d.rebind(query), args...)
	if err != nil {
		return nil, t.d.classify(err)
	}
	return res, nil
}

func (t *Tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, t.d.rebind(query), args...)
	if err != nil {
		return nil, t.d.classify(err)
	}
	return rows, nil
}

func (t *Tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.d.rebind(query), args...)
}

// insertID runs an INSERT ... RETURNING id.
func (t *Tx) insertID(ctx context.Context, query string, args ...any) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	var id int64
	if err := t.queryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, t.d.classify(err)
	}
	return id, nil
}

func (t *Tx) lockSuffix() string {
	if t.readOnly {
		return ""
	}
	return t.d.ForUpdate
}

// scanErr maps a missing row to notFound and classifies everything else.
func (t *Tx) scanErr(err error, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return t.d.classify(err)
}

func (t *Tx) affected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return t.d.classify(err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (t *Tx) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := t.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, t.d.classify(err)
	}
	return n, nil
}

func (t *Tx) sum(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := t.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, t.d.classify(err)
	}
	return n, nil
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	u := val.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func datePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	u := v.Time
	d := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func likePattern(search string) string {
	return "%" + search + "%"
}
