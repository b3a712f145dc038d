package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

func TestClassifyConflicts(t *testing.T) {
	for _, code := range []string{codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable} {
		err := classify(fmt.Errorf("update: %w", &pgconn.PgError{Code: code}))
		var conflict *shared.ConcurrencyConflictError
		require.True(t, errors.As(err, &conflict), code)
		require.Equal(t, shared.KindConcurrencyConflict, shared.KindOf(err))
		require.True(t, shared.IsConflict(err))
	}
}

func TestClassifyPassesOtherErrors(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	require.Same(t, unique, classify(unique))

	plain := errors.New("boom")
	require.Equal(t, plain, classify(plain))
	require.False(t, shared.IsConflict(plain))
}

func TestSchemaEmbedded(t *testing.T) {
	for _, table := range []string{"products", "stock_movements", "stock_reservations", "sales_orders", "invoices", "purchase_returns", "audit_logs", "idempotency_keys"} {
		require.Contains(t, Schema, "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
	// Flagged adjustments may take the balance below zero.
	require.NotContains(t, Schema, "CHECK (current_stock")
	require.Contains(t, Schema, "DROP CONSTRAINT IF EXISTS products_current_stock_check")
}
