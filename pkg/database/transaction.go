package database

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Tx is the slice of a transaction the repositories use. Commit and Rollback
// take the context so a participant never closes a transaction it joined.
type Tx interface {
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type txCarrierKey struct{}

// txCarrier marks a context whose transaction is owned further up the call
// stack. Anyone who finds it joins the transaction and leaves closing to the
// owner.
type txCarrier struct {
	tx Tx
}

// Transaction wraps sqlx.Tx with open-state tracking so a second Commit or a
// Rollback after Commit is a no-op instead of a driver error.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	closed bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{Tx: tx, logger: logger}
}

// TxFromContext returns the open transaction carried by the context, if any.
// Participants use it to join a caller's transaction without taking over
// commit or rollback.
func TxFromContext(ctx context.Context) (Tx, bool) {
	carrier, ok := ctx.Value(txCarrierKey{}).(*txCarrier)
	if !ok || carrier.tx == nil || !carrier.tx.IsOpen() {
		return nil, false
	}
	return carrier.tx, true
}

// GetTx returns the transaction already carried by the context when one is
// open, otherwise it begins a new transaction and stores it on the returned
// context. Writes that must land atomically (a record row and its outbox
// entry) share the transaction this way.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return ctx, tx, nil
	}

	sqlxTx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to begin transaction")
		return ctx, nil, errors.Wrap(err, "begin transaction")
	}

	tx := NewTx(sqlxTx, logger)
	return context.WithValue(ctx, txCarrierKey{}, &txCarrier{tx: tx}), tx, nil
}

func (t *Transaction) IsOpen() bool {
	return !t.closed
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.closed {
		return nil
	}

	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("Failed to commit transaction")
		return errors.Wrap(err, "commit transaction")
	}

	t.closed = true
	return nil
}

// Rollback rolls the transaction back unless the given context still carries
// it as open, which means a caller further up owns it and this frame is only
// unwinding.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.closed {
		return nil
	}

	if _, ok := TxFromContext(ctx); ok {
		return nil
	}

	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("Failed to roll back transaction")
		return errors.Wrap(err, "rollback transaction")
	}

	t.closed = true
	return nil
}
