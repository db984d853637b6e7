package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// TxRunner scopes a unit of work to one database transaction.
type TxRunner struct {
	db *sql.DB
}

func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db}
}

// RunInTx begins a transaction, hands it to fn and commits when fn
// returns nil. Any error rolls the whole unit back.
func (t *TxRunner) RunInTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
