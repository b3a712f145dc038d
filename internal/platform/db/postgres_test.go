package db_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

// pgStock connects to ODYSSEY_TEST_PG_DSN and returns a stock service on the
// pgx repositories.
func pgStock(t *testing.T) *stock.Service {
	t.Helper()
	dsn := os.Getenv("ODYSSEY_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("ODYSSEY_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.New(ctx, dsn, db.PoolOptions{MaxConns: 16})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))

	tx := db.NewTransactor(pool, db.TxOptions{MaxRetries: 40, LockTimeout: 5 * time.Second, Backoff: 5 * time.Millisecond})
	return stock.NewService(tx.StockRunner(), stock.ServiceDeps{})
}

func pgProduct(t *testing.T, svc *stock.Service, opening int64) stock.Product {
	t.Helper()
	p, err := svc.RegisterProduct(context.Background(), stock.RegisterProductInput{
		SKU:          "PG-" + uuid.NewString(),
		Name:         "Widget",
		OpeningStock: opening,
	})
	require.NoError(t, err)
	return p
}

func requireExpected(t *testing.T, err error) {
	t.Helper()
	var short *shared.InsufficientStockError
	if errors.As(err, &short) || shared.IsConflict(err) {
		return
	}
	t.Errorf("unexpected error: %v", err)
}

func TestPostgresConcurrentReservationsNeverOversell(t *testing.T) {
	svc := pgStock(t)
	ctx := context.Background()
	p := pgProduct(t, svc, 10)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int64
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.ReserveStock(ctx, stock.ReserveInput{
				Reference: fmt.Sprintf("SO-%d-%d", p.ID, i),
				Items:     []stock.Line{{ProductID: p.ID, Quantity: 3}},
			})
			if err != nil {
				requireExpected(t, err)
				return
			}
			mu.Lock()
			accepted++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	level, err := svc.GetStockLevel(ctx, p.ID)
	require.NoError(t, err)
	require.LessOrEqual(t, accepted, int64(3))
	require.Equal(t, accepted*3, level.Reserved)
	require.LessOrEqual(t, level.Reserved, level.OnHand)

	discrepancies, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	for _, d := range discrepancies {
		require.NotEqual(t, p.ID, d.ProductID)
	}
}

func TestPostgresStockOutRespectsConcurrentReservation(t *testing.T) {
	svc := pgStock(t)
	ctx := context.Background()

	for round := 0; round < 5; round++ {
		p := pgProduct(t, svc, 10)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.ReserveStock(ctx, stock.ReserveInput{
				Reference: fmt.Sprintf("SO-%d", p.ID),
				Items:     []stock.Line{{ProductID: p.ID, Quantity: 6}},
			})
			if err != nil {
				requireExpected(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			_, err := svc.ProcessStockMovement(ctx, stock.MovementRequest{
				ProductID: p.ID,
				Quantity:  6,
				Kind:      stock.KindStockOut,
				Reference: fmt.Sprintf("WO-%d", p.ID),
			})
			if err != nil {
				requireExpected(t, err)
			}
		}()
		wg.Wait()

		level, err := svc.GetStockLevel(ctx, p.ID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, level.OnHand, int64(0))
		require.LessOrEqual(t, level.Reserved, level.OnHand, "round %d", round)
	}
}

func TestPostgresFlaggedAdjustmentMayGoNegative(t *testing.T) {
	svc := pgStock(t)
	ctx := context.Background()
	p := pgProduct(t, svc, 10)

	m, err := svc.ProcessStockMovement(ctx, stock.MovementRequest{
		ProductID:     p.ID,
		Quantity:      -15,
		Kind:          stock.KindAdjustment,
		Reference:     "COUNT-1",
		AllowNegative: true,
	})
	require.NoError(t, err)
	require.EqualValues(t, -5, m.BalanceAfter)

	level, err := svc.GetStockLevel(ctx, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, -5, level.OnHand)

	_, err = svc.ProcessStockMovement(ctx, stock.MovementRequest{
		ProductID: p.ID,
		Quantity:  -1,
		Kind:      stock.KindAdjustment,
		Reference: "COUNT-2",
	})
	require.Equal(t, shared.KindInsufficientStock, shared.KindOf(err))
}
