package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := New()
	runner := db.StockRunner()

	var productID int64
	require.NoError(t, runner.WithTx(ctx, func(ctx context.Context, st stock.Store) error {
		var err error
		productID, err = st.InsertProduct(ctx, stock.Product{SKU: "SKU-1", Name: "Widget"})
		return err
	}))

	boom := errors.New("boom")
	err := runner.WithTx(ctx, func(ctx context.Context, st stock.Store) error {
		require.NoError(t, st.UpdateProductStock(ctx, productID, 40, time.Now()))
		_, err := st.InsertMovement(ctx, stock.Movement{ProductID: productID, Quantity: 40, Kind: stock.KindStockIn, Reference: "R-1"})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, runner.WithTx(ctx, func(ctx context.Context, st stock.Store) error {
		p, err := st.GetProduct(ctx, productID)
		require.NoError(t, err)
		require.Zero(t, p.CurrentStock)
		sum, err := st.SumMovements(ctx, productID)
		require.NoError(t, err)
		require.Zero(t, sum)
		return nil
	}))
}

func TestDuplicateSKURejected(t *testing.T) {
	ctx := context.Background()
	runner := New().StockRunner()
	err := runner.WithTx(ctx, func(ctx context.Context, st stock.Store) error {
		if _, err := st.InsertProduct(ctx, stock.Product{SKU: "A"}); err != nil {
			return err
		}
		_, err := st.InsertProduct(ctx, stock.Product{SKU: "A"})
		return err
	})
	require.ErrorIs(t, err, stock.ErrDuplicateSKU)
}

func TestMarkReleasedSkipsReleasedRows(t *testing.T) {
	ctx := context.Background()
	runner := New().StockRunner()
	require.NoError(t, runner.WithTx(ctx, func(ctx context.Context, st stock.Store) error {
		pid, err := st.InsertProduct(ctx, stock.Product{SKU: "A"})
		require.NoError(t, err)
		first, err := st.InsertReservation(ctx, stock.Reservation{ProductID: pid, Quantity: 3, Reference: "SO-1"})
		require.NoError(t, err)
		second, err := st.InsertReservation(ctx, stock.Reservation{ProductID: pid, Quantity: 2, Reference: "SO-2"})
		require.NoError(t, err)

		n, err := st.MarkReleased(ctx, []int64{first}, time.Now(), "tester")
		require.NoError(t, err)
		require.Equal(t, 1, n)
		n, err = st.MarkReleased(ctx, []int64{first, second}, time.Now(), "tester")
		require.NoError(t, err)
		require.Equal(t, 1, n)

		sum, err := st.SumActiveReserved(ctx, pid, "")
		require.NoError(t, err)
		require.Zero(t, sum)
		return nil
	}))
}

func TestCancelledContextSkipsWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := New().StockRunner().WithTx(ctx, func(context.Context, stock.Store) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestLockBumpsProductVersion(t *testing.T) {
	ctx := context.Background()
	runner := New().StockRunner()
	require.NoError(t, runner.WithTx(ctx, func(ctx context.Context, st stock.Store) error {
		id, err := st.InsertProduct(ctx, stock.Product{SKU: "V"})
		require.NoError(t, err)
		first, err := st.GetProductForUpdate(ctx, id)
		require.NoError(t, err)
		second, err := st.GetProductForUpdate(ctx, id)
		require.NoError(t, err)
		require.Equal(t, first.Version+1, second.Version)
		plain, err := st.GetProduct(ctx, id)
		require.NoError(t, err)
		require.Equal(t, second.Version, plain.Version)
		return nil
	}))
}
