package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// snapshotRead gives multi-statement reads a single consistent view.
var snapshotRead = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// TxManager manages database transactions
type TxManager struct {
	db *sql.DB
}

// NewTxManager creates a new transaction manager
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// WithTx executes fn within a read-write transaction with default isolation.
func (tm *TxManager) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return tm.WithTxOptions(ctx, nil, fn)
}

// WithTxOptions executes fn within a transaction started with opts.
// If fn returns an error the transaction is rolled back, otherwise committed.
func (tm *TxManager) WithTxOptions(ctx context.Context, opts *sql.TxOptions, fn func(*sql.Tx) error) error {
	tx, err := tm.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %w, rb err: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
