// internal/common/database/tx.go

package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Queryer is satisfied by both *sqlx.DB and *sqlx.Tx, so read helpers can run inside
// or outside a transaction.
type Queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
	Rebind(query string) string
	DriverName() string
}

// WithTx runs fn inside a transaction. Any error or panic rolls the whole unit back.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
