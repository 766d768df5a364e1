// Package sqlite backs the store with an embedded SQLite file. A single
// writer connection takes the write lock at BEGIN; readers use a separate
// pool in WAL mode so snapshots never block the writer.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mattn/go-sqlite3"

	"magazin/backend/internal/store"
	"magazin/backend/internal/store/sqlstore"
)

var Dialect = sqlstore.Dialect{
	Name:           "sqlite",
	NumberedParams: true,
	ReadTx:         &sql.TxOptions{ReadOnly: true},
	Classify:       classify,
}

var Types = sqlstore.Types{
	Serial:     "INTEGER PRIMARY KEY AUTOINCREMENT",
	Timestamp:  "TIMESTAMP",
	Bool:       "BOOLEAN",
	True:       "1",
	CreateView: "CREATE VIEW IF NOT EXISTS",
}

func dsn(path string, txlock string) string {
	q := url.Values{}
	q.Set("_txlock", txlock)
	q.Set("_foreign_keys", "on")
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", "5000")
	return "file:" + path + "?" + q.Encode()
}

func New(ctx context.Context, path string) (*sqlstore.Store, error) {
	writer, err := sql.Open("sqlite3", dsn(path, "immediate"))
	if err != nil {
		return nil, err
	}
	writer.SetMaxOpenConns(1)
	writer.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := writer.PingContext(pingCtx); err != nil {
		_ = writer.Close()
		return nil, err
	}
	if err := sqlstore.Migrate(ctx, writer, sqlstore.Schema(Types)); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	reader, err := sql.Open("sqlite3", dsn(path, "deferred"))
	if err != nil {
		_ = writer.Close()
		return nil, err
	}
	reader.SetMaxOpenConns(4)

	return sqlstore.New(writer, reader, Dialect), nil
}

func classify(err error) error {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return err
	}
	switch sqlErr.Code {
	case sqlite3.ErrConstraint:
		return fmt.Errorf("%w: %s", store.ErrConstraintViolation, sqlErr.Error())
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return fmt.Errorf("%w: %s", store.ErrTransientContention, sqlErr.Error())
	}
	return err
}
