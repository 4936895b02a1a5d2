package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const DBTxKey contextKey = "db_tx"

// TxFromContext retrieves the active transaction from context, if any.
// Repositories check this first so that service-level transactions span
// every repository call made inside them.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// beginTx starts a transaction on the tenant connection when one is bound
// to the context, otherwise on the pool.
func beginTx(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions) (pgx.Tx, error) {
	if conn := ConnFromContext(ctx); conn != nil {
		return conn.BeginTx(ctx, opts)
	}
	return pool.BeginTx(ctx, opts)
}

// WithTx runs fn inside a transaction. The transaction is stored in the
// context passed to fn, so repository calls made through that context all
// share it. Nested calls reuse the outer transaction.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := beginTx(ctx, pool, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, DBTxKey, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// serialization failure and deadlock SQLSTATEs; both are safe to retry
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

// IsSerializationFailure reports whether err is a retryable transaction
// conflict (serialization failure or deadlock).
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlstateSerializationFailure || pgErr.Code == sqlstateDeadlockDetected
	}
	return false
}

// ErrTxConflict is returned by WithSerializableTx when a transaction keeps
// conflicting after the configured number of attempts.
var ErrTxConflict = errors.New("transaction conflict: retries exhausted")

// WithSerializableTx runs fn in a SERIALIZABLE transaction, retrying it up
// to maxRetries times on serialization failures. fn must be side-effect
// free outside the transaction because it may run more than once.
func WithSerializableTx(ctx context.Context, pool *pgxpool.Pool, maxRetries int, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := func() error {
			tx, err := beginTx(ctx, pool, pgx.TxOptions{IsoLevel: pgx.Serializable})
			if err != nil {
				return fmt.Errorf("begin serializable transaction: %w", err)
			}
			defer tx.Rollback(ctx)

			if err := fn(context.WithValue(ctx, DBTxKey, tx)); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !IsSerializationFailure(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrTxConflict, lastErr)
}

// Runner binds the pool and retry budget so services can run transactions
// without holding either. Tests substitute a pass-through implementation.
type Runner struct {
	Pool       *pgxpool.Pool
	MaxRetries int
}

func NewRunner(pool *pgxpool.Pool, maxRetries int) *Runner {
	return &Runner{Pool: pool, MaxRetries: maxRetries}
}

func (r *Runner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithTx(ctx, r.Pool, fn)
}

func (r *Runner) WithSerializableTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithSerializableTx(ctx, r.Pool, r.MaxRetries, fn)
}
