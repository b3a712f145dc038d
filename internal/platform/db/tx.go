package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// SQLSTATE codes surfaced as concurrency conflicts.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// RetryObserver is told about every retried conflict.
type RetryObserver interface {
	TxConflictRetry()
}

// TxOptions configures Transactor.
type TxOptions struct {
	// MaxRetries bounds re-execution after a conflict. Zero disables retries.
	MaxRetries int
	// LockTimeout is applied with SET LOCAL when positive.
	LockTimeout time.Duration
	// Backoff is multiplied by the attempt number between retries.
	Backoff  time.Duration
	Observer RetryObserver
	Logger   *slog.Logger
}

// Transactor runs callbacks in RepeatableRead transactions and retries
// serialization and lock conflicts.
type Transactor struct {
	pool *pgxpool.Pool
	opts TxOptions
}

// NewTransactor builds a Transactor.
func NewTransactor(pool *pgxpool.Pool, opts TxOptions) *Transactor {
	if opts.Backoff <= 0 {
		opts.Backoff = 20 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Transactor{pool: pool, opts: opts}
}

// WithTx executes fn within a transaction. Conflicts are retried up to
// MaxRetries times and then returned as *shared.ConcurrencyConflictError.
func (t *Transactor) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = t.once(ctx, fn)
		if err == nil || !shared.IsConflict(err) || attempt >= t.opts.MaxRetries {
			return err
		}
		if t.opts.Observer != nil {
			t.opts.Observer.TxConflictRetry()
		}
		t.opts.Logger.Warn("transaction conflict, retrying", slog.Int("attempt", attempt+1), slog.Any("error", err))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt+1) * t.opts.Backoff):
		}
	}
}

func (t *Transactor) once(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if t.opts.LockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.opts.LockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("platform/db: lock timeout: %w", err)
		}
	}

	if err := fn(ctx, tx); err != nil {
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

// classify maps retryable PostgreSQL failures to the shared conflict error.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return &shared.ConcurrencyConflictError{Cause: err}
		}
	}
	return err
}
