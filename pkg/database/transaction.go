package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

type Tx interface {
	Executor
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx so Commit/Rollback are idempotent and nested
// GetTx calls join the outer transaction instead of opening a second one.
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
}

func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

func (t *Transaction) commit(ctx context.Context) error {
	if t.isClosed {
		return nil // do nothing if already committed
	}

	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction")
	}

	t.isClosed = true
	return nil
}

func (t *Transaction) rollback(ctx context.Context) error {
	if t.isClosed {
		return nil // do nothing if already committed or rolled back
	}

	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction")
	}

	t.isClosed = true
	return nil
}

// txHandle is what callers hold. Only the scope that opened the transaction
// owns it; a joined scope's Commit/Rollback are no-ops so an inner function
// cannot close its caller's transaction.
type txHandle struct {
	*Transaction
	owner bool
}

func (h *txHandle) Commit(ctx context.Context) error {
	if !h.owner {
		return nil
	}
	return h.commit(ctx)
}

func (h *txHandle) Rollback(ctx context.Context) error {
	if !h.owner {
		return nil
	}
	return h.rollback(ctx)
}

// GetTx returns the transaction carried by ctx when one is open, otherwise
// it begins a new one and stores it in the returned context so repository
// calls and nested scopes join it.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if existing, ok := ctx.Value(txKey).(*Transaction); ok && existing != nil && existing.IsOpen() {
		return ctx, &txHandle{Transaction: existing, owner: false}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction")
	}

	newTx := &Transaction{Tx: tx, logger: logger}

	ctx = context.WithValue(ctx, txKey, newTx)
	return ctx, &txHandle{Transaction: newTx, owner: true}, nil
}
