// Package postgres backs the store with PostgreSQL through pgx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"magazin/backend/internal/store"
	"magazin/backend/internal/store/sqlstore"
)

var Dialect = sqlstore.Dialect{
	Name:      "postgres",
	ForUpdate: " FOR UPDATE",
	WriteTx:   &sql.TxOptions{Isolation: sql.LevelSerializable},
	ReadTx:    &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	Classify:  classify,
}

var Types = sqlstore.Types{
	Serial:     "BIGSERIAL PRIMARY KEY",
	Timestamp:  "TIMESTAMPTZ",
	Bool:       "BOOLEAN",
	True:       "TRUE",
	CreateView: "CREATE OR REPLACE VIEW",
}

func New(ctx context.Context, databaseURL string) (*sqlstore.Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := sqlstore.Migrate(ctx, db, sqlstore.Schema(Types)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}

	return sqlstore.New(db, nil, Dialect), nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505", "23503", "23514", "23502":
		return fmt.Errorf("%w: %s", store.ErrConstraintViolation, pgErr.Message)
	case "40001", "40P01", "55P03":
		return fmt.Errorf("%w: %s", store.ErrTransientContention, pgErr.Message)
	}
	return err
}
