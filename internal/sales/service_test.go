package sales_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/invoicing"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/memstore"
	"github.com/odyssey-erp/odyssey-stock/internal/sales"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

type fixture struct {
	sales    *sales.Service
	stock    *stock.Service
	invoices *invoicing.Service
	clock    *shared.FixedClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clock := &shared.FixedClock{T: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	db := memstore.New()
	stockSvc := stock.NewService(db.StockRunner(), stock.ServiceDeps{Clock: clock})
	invoiceSvc := invoicing.NewService(db.InvoiceRunner(), invoicing.ServiceDeps{Clock: clock})
	salesSvc := sales.NewService(db.SalesRunner(), sales.ServiceDeps{
		Ledger:       stockSvc.Ledger(),
		Reservations: stockSvc.Reservations(),
		Invoices:     invoiceSvc.Lifecycle(),
		Clock:        clock,
		Notifier:     stockSvc,
	})
	return fixture{sales: salesSvc, stock: stockSvc, invoices: invoiceSvc, clock: clock}
}

func (f fixture) product(t *testing.T, sku string, opening int64) stock.Product {
	t.Helper()
	p, err := f.stock.RegisterProduct(context.Background(), stock.RegisterProductInput{SKU: sku, Name: sku, OpeningStock: opening})
	require.NoError(t, err)
	return p
}

func (f fixture) order(t *testing.T, lines ...sales.ItemInput) sales.Order {
	t.Helper()
	o, err := f.sales.CreateOrder(context.Background(), sales.CreateOrderInput{CustomerID: 42, Items: lines, Actor: "clerk"})
	require.NoError(t, err)
	return o
}

func (f fixture) move(t *testing.T, id int64, to sales.Status) sales.Order {
	t.Helper()
	o, err := f.sales.UpdateStatus(context.Background(), sales.StatusUpdate{OrderID: id, Status: to, Actor: "clerk"})
	require.NoError(t, err)
	return o
}

func (f fixture) available(t *testing.T, productID int64) int64 {
	t.Helper()
	n, err := f.stock.GetAvailableStock(context.Background(), productID)
	require.NoError(t, err)
	return n
}

func (f fixture) onHand(t *testing.T, productID int64) int64 {
	t.Helper()
	p, err := f.stock.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.CurrentStock
}

func line(productID, qty int64, price string) sales.ItemInput {
	return sales.ItemInput{ProductID: productID, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func TestOrderLifecycleMovesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.product(t, "X", 100)
	o := f.order(t, line(x.ID, 30, "10"))
	require.Equal(t, sales.StatusNew, o.Status)
	require.Equal(t, "300.00", o.TotalAmount.StringFixed(2))

	o = f.move(t, o.ID, sales.StatusProcessing)
	require.EqualValues(t, 70, f.available(t, x.ID))
	require.EqualValues(t, 100, f.onHand(t, x.ID))
	inv, err := f.invoices.GetBySalesOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusDraft, inv.Status)
	require.Equal(t, "300.00", inv.TotalAmount.StringFixed(2))

	o = f.move(t, o.ID, sales.StatusShipped)
	require.NotNil(t, o.ShippedDate)
	require.EqualValues(t, 70, f.onHand(t, x.ID))
	require.EqualValues(t, 70, f.available(t, x.ID))
	out, err := f.stock.ListMovements(ctx, stock.MovementFilter{Reference: o.Number})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.EqualValues(t, -30, out[0].Quantity)
	require.Equal(t, stock.KindStockOut, out[0].Kind)
	active, err := f.stock.ListReservations(ctx, stock.ReservationFilter{Reference: o.Number, ActiveOnly: true})
	require.NoError(t, err)
	require.Empty(t, active)

	o = f.move(t, o.ID, sales.StatusReturned)
	require.EqualValues(t, 100, f.onHand(t, x.ID))
	back, err := f.stock.ListMovements(ctx, stock.MovementFilter{Reference: o.Number, Kind: stock.KindReturn})
	require.NoError(t, err)
	require.Len(t, back, 1)
	require.EqualValues(t, 30, back[0].Quantity)

	// A Draft invoice is cancelled when the goods come back unbilled.
	inv, err = f.invoices.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusCancelled, inv.Status)

	discrepancies, err := f.stock.Reconcile(ctx)
	require.NoError(t, err)
	require.Empty(t, discrepancies)
}

func TestCompletedOrderRejectsProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.product(t, "X", 10)
	o := f.order(t, line(x.ID, 4, "5"))
	f.move(t, o.ID, sales.StatusProcessing)
	f.move(t, o.ID, sales.StatusShipped)
	o = f.move(t, o.ID, sales.StatusCompleted)
	require.NotNil(t, o.DeliveredDate)

	inv, err := f.invoices.GetBySalesOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusSent, inv.Status)

	_, err = f.sales.UpdateStatus(ctx, sales.StatusUpdate{OrderID: o.ID, Status: sales.StatusProcessing})
	var bad *shared.InvalidStatusTransitionError
	require.ErrorAs(t, err, &bad)
	require.Equal(t, "COMPLETED", bad.Current)
	require.Equal(t, "PROCESSING", bad.Requested)

	got, err := f.sales.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, sales.StatusCompleted, got.Status)
	rows, err := f.stock.ListReservations(ctx, stock.ReservationFilter{Reference: o.Number, ActiveOnly: true})
	require.NoError(t, err)
	require.Empty(t, rows)
	require.EqualValues(t, 6, f.onHand(t, x.ID))
}

func TestProcessingWithShortStockLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 10)
	b := f.product(t, "B", 10)
	o := f.order(t, line(a.ID, 5, "1"), line(b.ID, 1000, "1"))

	_, err := f.sales.UpdateStatus(ctx, sales.StatusUpdate{OrderID: o.ID, Status: sales.StatusProcessing})
	var short *shared.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Equal(t, b.ID, short.ProductID)

	got, err := f.sales.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, sales.StatusNew, got.Status)
	require.EqualValues(t, 10, f.available(t, a.ID))
	_, err = f.invoices.GetBySalesOrder(ctx, o.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCancelReleasesHoldsAndInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 10)
	o := f.order(t, line(a.ID, 6, "2"))
	f.move(t, o.ID, sales.StatusProcessing)
	require.EqualValues(t, 4, f.available(t, a.ID))

	o, err := f.sales.UpdateStatus(ctx, sales.StatusUpdate{OrderID: o.ID, Status: sales.StatusCancelled, Reason: "customer request"})
	require.NoError(t, err)
	require.Equal(t, sales.StatusCancelled, o.Status)
	require.NotNil(t, o.CancelledAt)
	require.EqualValues(t, 10, f.available(t, a.ID))

	inv, err := f.invoices.GetBySalesOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusCancelled, inv.Status)
}

func TestShipRequiresReservedStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 10)
	o := f.order(t, line(a.ID, 6, "2"))
	o = f.move(t, o.ID, sales.StatusProcessing)

	// Someone released the hold out of band.
	_, err := f.stock.ReleaseStockReservation(ctx, stock.ReleaseInput{Reference: o.Number})
	require.NoError(t, err)

	_, err = f.sales.UpdateStatus(ctx, sales.StatusUpdate{OrderID: o.ID, Status: sales.StatusShipped})
	var short *shared.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.True(t, short.Reserved)
	require.Contains(t, err.Error(), "Cannot ship order: insufficient reserved stock for SKU A")
	require.EqualValues(t, 10, f.onHand(t, a.ID))
}

func TestHoldAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 10)
	o := f.order(t, line(a.ID, 3, "2"))
	f.move(t, o.ID, sales.StatusProcessing)

	held, err := f.sales.Hold(ctx, o.ID, "credit check", "clerk")
	require.NoError(t, err)
	require.Equal(t, sales.StatusOnHold, held.Status)
	require.Equal(t, sales.StatusProcessing, held.HeldFrom)
	require.EqualValues(t, 7, f.available(t, a.ID))

	_, err = f.sales.UpdateStatus(ctx, sales.StatusUpdate{OrderID: o.ID, Status: sales.StatusShipped})
	require.Equal(t, shared.KindInvalidStatusTransition, shared.KindOf(err))

	resumed, err := f.sales.Resume(ctx, o.ID, "clerk")
	require.NoError(t, err)
	require.Equal(t, sales.StatusProcessing, resumed.Status)
	require.Empty(t, resumed.HeldFrom)
	// Resuming must not reserve a second time.
	require.EqualValues(t, 7, f.available(t, a.ID))

	_, err = f.sales.Resume(ctx, o.ID, "clerk")
	require.Equal(t, shared.KindInvalidStatusTransition, shared.KindOf(err))
}

func TestUpdateItemsWhileProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 10)
	b := f.product(t, "B", 5)
	o := f.order(t, line(a.ID, 8, "1"))
	f.move(t, o.ID, sales.StatusProcessing)
	first, err := f.invoices.GetBySalesOrder(ctx, o.ID)
	require.NoError(t, err)

	// The order's own hold of 8 does not count against the new quantity.
	o, err = f.sales.UpdateItems(ctx, o.ID, []sales.ItemInput{line(a.ID, 10, "1"), line(b.ID, 2, "3")}, "clerk")
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	require.Equal(t, "16.00", o.TotalAmount.StringFixed(2))
	require.Zero(t, f.available(t, a.ID))
	require.EqualValues(t, 3, f.available(t, b.ID))

	second, err := f.invoices.GetBySalesOrder(ctx, o.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, "16.00", second.TotalAmount.StringFixed(2))

	_, err = f.sales.UpdateItems(ctx, o.ID, []sales.ItemInput{line(b.ID, 6, "3")}, "clerk")
	require.Equal(t, shared.KindInsufficientStock, shared.KindOf(err))
	require.Zero(t, f.available(t, a.ID))

	f.move(t, o.ID, sales.StatusShipped)
	_, err = f.sales.UpdateItems(ctx, o.ID, []sales.ItemInput{line(a.ID, 1, "1")}, "clerk")
	require.ErrorIs(t, err, sales.ErrNotEditable)
}

func TestReturnAfterPaymentRequestsRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 10)
	o := f.order(t, line(a.ID, 2, "50"))
	f.move(t, o.ID, sales.StatusProcessing)
	f.move(t, o.ID, sales.StatusShipped)
	f.move(t, o.ID, sales.StatusCompleted)

	inv, err := f.invoices.GetBySalesOrder(ctx, o.ID)
	require.NoError(t, err)
	_, err = f.invoices.RecordPayment(ctx, invoicing.PaymentInput{InvoiceID: inv.ID, Amount: decimal.NewFromInt(40)})
	require.NoError(t, err)

	f.move(t, o.ID, sales.StatusReturned)
	inv, err = f.invoices.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusRefundRequested, inv.Status)
	require.Equal(t, "40.00", inv.RefundRequestedAmount.StringFixed(2))
	require.EqualValues(t, 10, f.onHand(t, a.ID))
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 10)
	first := f.order(t, line(a.ID, 1, "1"))
	f.order(t, line(a.ID, 1, "1"))
	f.move(t, first.ID, sales.StatusCancelled)

	all, err := f.sales.List(ctx, sales.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	cancelled, err := f.sales.List(ctx, sales.ListFilter{Status: sales.StatusCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	require.Equal(t, first.ID, cancelled[0].ID)
}
