package stock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/memstore"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

type fixture struct {
	svc    *stock.Service
	db     *memstore.DB
	clock  *shared.FixedClock
	audits *auditRecorder
}

type auditRecorder struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *auditRecorder) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func newFixture(t *testing.T, opts ...func(*stock.ServiceDeps)) fixture {
	t.Helper()
	clock := &shared.FixedClock{T: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	audits := &auditRecorder{}
	deps := stock.ServiceDeps{Clock: clock, Audit: audits}
	for _, opt := range opts {
		opt(&deps)
	}
	db := memstore.New()
	return fixture{svc: stock.NewService(db.StockRunner(), deps), db: db, clock: clock, audits: audits}
}

func (f fixture) product(t *testing.T, sku string, opening int64) stock.Product {
	t.Helper()
	p, err := f.svc.RegisterProduct(context.Background(), stock.RegisterProductInput{SKU: sku, Name: sku, OpeningStock: opening, Actor: "tester"})
	require.NoError(t, err)
	return p
}

func TestRegisterProductBooksOpeningBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.product(t, "WIDGET", 40)
	require.EqualValues(t, 40, p.CurrentStock)

	rows, err := f.svc.ListMovements(ctx, stock.MovementFilter{ProductID: p.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, stock.KindStockIn, rows[0].Kind)
	require.Equal(t, "OPENING-WIDGET", rows[0].Reference)
	require.EqualValues(t, 0, rows[0].BalanceBefore)
	require.EqualValues(t, 40, rows[0].BalanceAfter)

	_, err = f.svc.RegisterProduct(ctx, stock.RegisterProductInput{SKU: "WIDGET"})
	require.ErrorIs(t, err, stock.ErrDuplicateSKU)
}

func TestMovementsKeepBalanceAndLedgerInAgreement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", 10)

	steps := []stock.MovementRequest{
		{ProductID: p.ID, Quantity: 5, Kind: stock.KindStockIn, Reference: "PO-1"},
		{ProductID: p.ID, Quantity: 3, Kind: stock.KindStockOut, Reference: "MAN-1"},
		{ProductID: p.ID, Quantity: -2, Kind: stock.KindAdjustment, Reference: "CNT-1"},
		{ProductID: p.ID, Quantity: 1, Kind: stock.KindDamaged, Reference: "DMG-1"},
		{ProductID: p.ID, Quantity: 4, Kind: stock.KindReturn, Reference: "RMA-1"},
	}
	for _, step := range steps {
		_, err := f.svc.ProcessStockMovement(ctx, step)
		require.NoError(t, err)
	}

	rows, err := f.svc.ListMovements(ctx, stock.MovementFilter{ProductID: p.ID})
	require.NoError(t, err)
	require.Len(t, rows, 6)
	var sum int64
	for i, m := range rows {
		sum += m.Quantity
		require.Equal(t, m.BalanceBefore+m.Quantity, m.BalanceAfter)
		if i > 0 {
			require.Equal(t, rows[i-1].BalanceAfter, m.BalanceBefore)
		}
	}
	got, err := f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 13, got.CurrentStock)
	require.Equal(t, sum, got.CurrentStock)

	discrepancies, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Empty(t, discrepancies)
}

func TestMovementRejectsBadQuantities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", 5)

	_, err := f.svc.ProcessStockMovement(ctx, stock.MovementRequest{ProductID: p.ID, Quantity: 0, Kind: stock.KindStockIn, Reference: "X"})
	require.Equal(t, shared.KindInvalidQuantity, shared.KindOf(err))

	_, err = f.svc.ProcessStockMovement(ctx, stock.MovementRequest{ProductID: p.ID, Quantity: -3, Kind: stock.KindReturn, Reference: "X"})
	require.Equal(t, shared.KindInvalidQuantity, shared.KindOf(err))

	_, err = f.svc.ProcessStockMovement(ctx, stock.MovementRequest{ProductID: p.ID, Quantity: 6, Kind: stock.KindStockOut, Reference: "X"})
	var short *shared.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.EqualValues(t, 6, short.Requested)
	require.EqualValues(t, 5, short.Available)

	_, err = f.svc.ProcessStockMovement(ctx, stock.MovementRequest{ProductID: p.ID, Quantity: 2, Kind: stock.KindStockOut, Reference: "X", AllowNegative: true})
	require.ErrorIs(t, err, stock.ErrNegativeOnlyForAdjustment)

	_, err = f.svc.ProcessStockMovement(ctx, stock.MovementRequest{ProductID: p.ID, Quantity: 1, Kind: stock.MovementKind("LOST"), Reference: "X"})
	require.ErrorIs(t, err, stock.ErrUnknownKind)

	got, err := f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 5, got.CurrentStock)
}

func TestAdjustmentMayGoNegativeWhenAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", 2)

	m, err := f.svc.ProcessStockMovement(ctx, stock.MovementRequest{ProductID: p.ID, Quantity: -5, Kind: stock.KindAdjustment, Reference: "CNT", AllowNegative: true})
	require.NoError(t, err)
	require.EqualValues(t, -3, m.BalanceAfter)
}

func TestOutboundMovementRespectsOtherOrdersHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", 10)

	_, err := f.svc.ReserveStock(ctx, stock.ReserveInput{Reference: "SO-1", Items: []stock.Line{{ProductID: p.ID, Quantity: 8}}})
	require.NoError(t, err)

	_, err = f.svc.ProcessStockMovement(ctx, stock.MovementRequest{ProductID: p.ID, Quantity: 3, Kind: stock.KindDamaged, Reference: "DMG-1"})
	var short *shared.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.EqualValues(t, 2, short.Available)

	// The holder itself may consume its own reservation.
	_, err = f.svc.ProcessStockMovement(ctx, stock.MovementRequest{ProductID: p.ID, Quantity: 8, Kind: stock.KindStockOut, Reference: "SO-1"})
	require.NoError(t, err)
}

func TestReserveIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 10)
	b := f.product(t, "B", 3)

	_, err := f.svc.ReserveStock(ctx, stock.ReserveInput{
		Reference: "SO-9",
		Items:     []stock.Line{{ProductID: a.ID, Quantity: 5}, {ProductID: b.ID, Quantity: 1000}},
	})
	var short *shared.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Equal(t, b.ID, short.ProductID)
	require.Equal(t, "B", short.SKU)
	require.EqualValues(t, 1000, short.Requested)
	require.EqualValues(t, 3, short.Available)
	require.Contains(t, err.Error(), "Cannot reserve stock")

	rows, err := f.svc.ListReservations(ctx, stock.ReservationFilter{Reference: "SO-9"})
	require.NoError(t, err)
	require.Empty(t, rows)
	avail, err := f.svc.GetAvailableStock(ctx, a.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, avail)
}

func TestReserveMergesDuplicateLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 10)

	rows, err := f.svc.ReserveStock(ctx, stock.ReserveInput{
		Reference: "SO-1",
		Items:     []stock.Line{{ProductID: a.ID, Quantity: 4}, {ProductID: a.ID, Quantity: 3}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 7, rows[0].Quantity)

	_, err = f.svc.ReserveStock(ctx, stock.ReserveInput{Reference: "SO-2", Items: []stock.Line{{ProductID: a.ID, Quantity: -1}}})
	require.Equal(t, shared.KindInvalidQuantity, shared.KindOf(err))
	_, err = f.svc.ReserveStock(ctx, stock.ReserveInput{Reference: "", Items: []stock.Line{{ProductID: a.ID, Quantity: 1}}})
	require.ErrorIs(t, err, stock.ErrReferenceRequired)
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 10)
	b := f.product(t, "B", 10)

	before, err := f.svc.GetAvailableStock(ctx, a.ID)
	require.NoError(t, err)

	_, err = f.svc.ReserveStock(ctx, stock.ReserveInput{Reference: "SO-1", Items: []stock.Line{{ProductID: a.ID, Quantity: 4}, {ProductID: b.ID, Quantity: 2}}})
	require.NoError(t, err)
	level, err := f.svc.GetStockLevel(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, stock.StockLevel{ProductID: a.ID, SKU: "A", OnHand: 10, Reserved: 4, Available: 6}, level)

	n, err := f.svc.ReleaseStockReservation(ctx, stock.ReleaseInput{Reference: "SO-1", ProductIDs: []int64{a.ID}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	after, err := f.svc.GetAvailableStock(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, before, after)
	availB, err := f.svc.GetAvailableStock(ctx, b.ID)
	require.NoError(t, err)
	require.EqualValues(t, 8, availB)

	// Releasing again is a no-op.
	n, err = f.svc.ReleaseStockReservation(ctx, stock.ReleaseInput{Reference: "SO-1", ProductIDs: []int64{a.ID}})
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = f.svc.ReleaseStockReservation(ctx, stock.ReleaseInput{Reference: "SO-1"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestReleaseReservationByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 10)

	rows, err := f.svc.ReserveStock(ctx, stock.ReserveInput{Reference: "SO-1", Items: []stock.Line{{ProductID: a.ID, Quantity: 4}}})
	require.NoError(t, err)

	released, err := f.svc.ReleaseReservation(ctx, rows[0].ID, "tester")
	require.NoError(t, err)
	require.True(t, released)

	released, err = f.svc.ReleaseReservation(ctx, rows[0].ID, "tester")
	require.NoError(t, err)
	require.False(t, released)

	_, err = f.svc.ReleaseReservation(ctx, 999, "tester")
	var missing *shared.ReservationNotFoundError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, shared.KindReservationNotFound, shared.KindOf(err))
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 10)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.ReserveStock(ctx, stock.ReserveInput{
				Reference: "SO-" + string(rune('A'+i)),
				Items:     []stock.Line{{ProductID: a.ID, Quantity: 3}},
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			var short *shared.InsufficientStockError
			if !errors.As(err, &short) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 3, accepted)
	level, err := f.svc.GetStockLevel(ctx, a.ID)
	require.NoError(t, err)
	require.EqualValues(t, 9, level.Reserved)
	require.GreaterOrEqual(t, level.Available, int64(0))
}

func TestIdempotentMovementKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, func(d *stock.ServiceDeps) {
		d.Idempotency = shared.NewRedisIdempotencyStore(client, time.Hour)
	})
	ctx := context.Background()
	a := f.product(t, "A", 1)

	req := stock.MovementRequest{ProductID: a.ID, Quantity: 5, Kind: stock.KindStockIn, Reference: "PO-1", IdempotencyKey: "abc"}
	_, err := f.svc.ProcessStockMovement(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.ProcessStockMovement(ctx, req)
	require.Equal(t, shared.KindAlreadyProcessed, shared.KindOf(err))

	// A failed attempt frees its key for a retry.
	out := stock.MovementRequest{ProductID: a.ID, Quantity: 50, Kind: stock.KindStockOut, Reference: "MAN-1", IdempotencyKey: "def"}
	_, err = f.svc.ProcessStockMovement(ctx, out)
	require.Equal(t, shared.KindInsufficientStock, shared.KindOf(err))
	out.Quantity = 6
	_, err = f.svc.ProcessStockMovement(ctx, out)
	require.NoError(t, err)

	got, err := f.svc.GetProduct(ctx, a.ID)
	require.NoError(t, err)
	require.Zero(t, got.CurrentStock)
}

func TestAvailabilityCacheInvalidatedOnWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, func(d *stock.ServiceDeps) {
		d.Cache = stock.NewAvailabilityCache(client, time.Minute)
	})
	ctx := context.Background()
	a := f.product(t, "A", 10)

	avail, err := f.svc.GetAvailableStock(ctx, a.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, avail)
	require.True(t, mr.Exists("stock:available:1:v0"))

	_, err = f.svc.ReserveStock(ctx, stock.ReserveInput{Reference: "SO-1", Items: []stock.Line{{ProductID: a.ID, Quantity: 4}}})
	require.NoError(t, err)
	ver, err := mr.Get("stock:available:1:version")
	require.NoError(t, err)
	require.Equal(t, "1", ver)

	avail, err = f.svc.GetAvailableStock(ctx, a.ID)
	require.NoError(t, err)
	require.EqualValues(t, 6, avail)

	_, err = f.svc.ReleaseStockReservation(ctx, stock.ReleaseInput{Reference: "SO-1"})
	require.NoError(t, err)
	avail, err = f.svc.GetAvailableStock(ctx, a.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, avail)
}

func TestInvalidateDuringLoadDiscardsStaleValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := stock.NewAvailabilityCache(client, time.Minute)
	ctx := context.Background()

	// A writer commits and invalidates while the reader is still loading.
	stale, err := cache.Fetch(ctx, 7, func(ctx context.Context) (int64, error) {
		require.NoError(t, cache.Invalidate(ctx, 7))
		return 10, nil
	})
	require.NoError(t, err)
	require.EqualValues(t, 10, stale)

	loads := 0
	fresh, err := cache.Fetch(ctx, 7, func(context.Context) (int64, error) {
		loads++
		return 4, nil
	})
	require.NoError(t, err)
	require.EqualValues(t, 4, fresh)
	require.Equal(t, 1, loads)

	cached, err := cache.Fetch(ctx, 7, func(context.Context) (int64, error) {
		loads++
		return 0, nil
	})
	require.NoError(t, err)
	require.EqualValues(t, 4, cached)
	require.Equal(t, 1, loads)
}

func TestAvailabilityReadSurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, func(d *stock.ServiceDeps) {
		d.Cache = stock.NewAvailabilityCache(client, time.Minute)
	})
	a := f.product(t, "A", 3)
	mr.Close()

	avail, err := f.svc.GetAvailableStock(context.Background(), a.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, avail)
}

func TestHideAndRestoreMovement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 10)
	m, err := f.svc.ProcessStockMovement(ctx, stock.MovementRequest{ProductID: a.ID, Quantity: 2, Kind: stock.KindStockOut, Reference: "MAN-1", Actor: "tester"})
	require.NoError(t, err)

	require.NoError(t, f.svc.HideMovement(ctx, m.ID, "auditor"))
	visible, err := f.svc.ListMovements(ctx, stock.MovementFilter{ProductID: a.ID})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	all, err := f.svc.ListMovements(ctx, stock.MovementFilter{ProductID: a.ID, IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, all, 2)

	// Hiding is presentation only; the ledger still reconciles.
	discrepancies, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Empty(t, discrepancies)

	require.NoError(t, f.svc.RestoreMovement(ctx, m.ID, "auditor"))
	visible, err = f.svc.ListMovements(ctx, stock.MovementFilter{ProductID: a.ID})
	require.NoError(t, err)
	require.Len(t, visible, 2)

	require.ErrorIs(t, f.svc.HideMovement(ctx, 404, "auditor"), shared.ErrNotFound)
}

func TestReconcileReportsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 10)
	f.product(t, "B", 4)

	// Simulate an out-of-band write that bypassed the ledger.
	require.NoError(t, f.db.StockRunner().WithTx(ctx, func(ctx context.Context, st stock.Store) error {
		return st.UpdateProductStock(ctx, a.ID, 7, f.clock.Now())
	}))

	discrepancies, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, discrepancies, 1)
	require.Equal(t, a.ID, discrepancies[0].ProductID)
	require.EqualValues(t, 7, discrepancies[0].CurrentStock)
	require.EqualValues(t, 10, discrepancies[0].LedgerSum)
}

func TestMovementAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 10)
	_, err := f.svc.ProcessStockMovement(ctx, stock.MovementRequest{ProductID: a.ID, Quantity: 2, Kind: stock.KindExpired, Reference: "EXP-1", Actor: "tester"})
	require.NoError(t, err)

	f.audits.mu.Lock()
	defer f.audits.mu.Unlock()
	require.NotEmpty(t, f.audits.logs)
	last := f.audits.logs[len(f.audits.logs)-1]
	require.Equal(t, "stock:expired", last.Action)
	require.Equal(t, "tester", last.Actor)
}
