package invoicing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/invoicing"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/memstore"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

type fixture struct {
	svc   *invoicing.Service
	db    *memstore.DB
	clock *shared.FixedClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clock := &shared.FixedClock{T: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	db := memstore.New()
	return fixture{
		svc:   invoicing.NewService(db.InvoiceRunner(), invoicing.ServiceDeps{Clock: clock, PaymentTermsDays: 14}),
		db:    db,
		clock: clock,
	}
}

// draft issues an invoice worth total for a fresh sales order id.
func (f fixture) draft(t *testing.T, orderID int64, total string) invoicing.Invoice {
	t.Helper()
	var inv invoicing.Invoice
	err := f.db.InvoiceRunner().WithTx(context.Background(), func(ctx context.Context, st invoicing.Store) error {
		var err error
		inv, err = f.svc.Lifecycle().CreateFromOrder(ctx, st, invoicing.OrderSnapshot{
			SalesOrderID: orderID,
			Reference:    "SO-TEST",
			CustomerID:   7,
			Items:        []invoicing.Item{{ProductID: 1, Quantity: 1, UnitPrice: decimal.RequireFromString(total)}},
			Actor:        "tester",
		})
		return err
	})
	require.NoError(t, err)
	return inv
}

func (f fixture) sent(t *testing.T, orderID int64, total string) invoicing.Invoice {
	t.Helper()
	inv := f.draft(t, orderID, total)
	inv, err := f.svc.Send(context.Background(), inv.ID, "tester")
	require.NoError(t, err)
	return inv
}

func pay(f fixture, id int64, amount string) (invoicing.Invoice, error) {
	return f.svc.RecordPayment(context.Background(), invoicing.PaymentInput{InvoiceID: id, Amount: decimal.RequireFromString(amount), Actor: "cashier"})
}

func TestCreateFromOrderDraftsOnce(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(t, 1, "500")
	require.Equal(t, invoicing.StatusDraft, inv.Status)
	require.Equal(t, "500.00", inv.TotalAmount.StringFixed(2))
	require.Equal(t, "500.00", inv.BalanceAmount.StringFixed(2))
	require.Equal(t, f.clock.T.Add(14*24*time.Hour), inv.DueDate)
	require.Regexp(t, `^INV-20260314-[0-9A-F]{6}$`, inv.Number)

	err := f.db.InvoiceRunner().WithTx(context.Background(), func(ctx context.Context, st invoicing.Store) error {
		_, err := f.svc.Lifecycle().CreateFromOrder(ctx, st, invoicing.OrderSnapshot{
			SalesOrderID: 1,
			Items:        []invoicing.Item{{ProductID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(1)}},
		})
		return err
	})
	require.Equal(t, shared.KindAlreadyProcessed, shared.KindOf(err))
}

func TestPaymentsSettleInvoice(t *testing.T) {
	f := newFixture(t)
	inv := f.sent(t, 1, "500")

	inv, err := pay(f, inv.ID, "200")
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusPartiallyPaid, inv.Status)
	require.Equal(t, "300.00", inv.BalanceAmount.StringFixed(2))

	inv, err = pay(f, inv.ID, "300")
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusPaid, inv.Status)
	require.True(t, inv.BalanceAmount.IsZero())
	require.NotNil(t, inv.PaidAt)

	_, err = pay(f, inv.ID, "1")
	require.Equal(t, shared.KindAlreadyProcessed, shared.KindOf(err))

	payments, err := f.svc.ListPayments(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)

	stored, err := f.svc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, "500.00", stored.PaidAmount.StringFixed(2))
}

func TestPaymentGuards(t *testing.T) {
	f := newFixture(t)
	draft := f.draft(t, 1, "500")

	_, err := pay(f, draft.ID, "100")
	require.Equal(t, shared.KindInvalidStatusTransition, shared.KindOf(err))

	sent := f.sent(t, 2, "500")
	_, err = pay(f, sent.ID, "0")
	require.Equal(t, shared.KindInvalidQuantity, shared.KindOf(err))
	_, err = pay(f, sent.ID, "500.01")
	require.Equal(t, shared.KindAlreadyProcessed, shared.KindOf(err))

	unchanged, err := f.svc.Get(context.Background(), sent.ID)
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusSent, unchanged.Status)
	require.True(t, unchanged.PaidAmount.IsZero())
}

func TestCancelOnlyBeforePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := f.draft(t, 1, "100")
	cancelled, err := f.svc.Cancel(ctx, draft.ID, "customer changed mind", "tester")
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusCancelled, cancelled.Status)
	require.Contains(t, cancelled.Notes, "customer changed mind")

	paid := f.sent(t, 2, "100")
	_, err = pay(f, paid.ID, "100")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, paid.ID, "", "tester")
	var bad *shared.InvalidStatusTransitionError
	require.ErrorAs(t, err, &bad)
	require.Equal(t, "PAID", bad.Current)
	require.Equal(t, "CANCELLED", bad.Requested)
}

func TestRefundFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.sent(t, 1, "500")
	_, err := pay(f, inv.ID, "200")
	require.NoError(t, err)

	_, err = f.svc.RequestRefund(ctx, invoicing.RefundRequest{InvoiceID: inv.ID, Amount: decimal.NewFromInt(250)}, "tester")
	require.Equal(t, shared.KindInvalidQuantity, shared.KindOf(err))

	requested, err := f.svc.RequestRefund(ctx, invoicing.RefundRequest{InvoiceID: inv.ID, Reason: "damaged"}, "tester")
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusRefundRequested, requested.Status)
	require.Equal(t, "200.00", requested.RefundRequestedAmount.StringFixed(2))

	_, err = pay(f, inv.ID, "10")
	require.Equal(t, shared.KindInvalidStatusTransition, shared.KindOf(err))

	refunded, err := f.svc.ProcessRefund(ctx, invoicing.ProcessRefundInput{InvoiceID: inv.ID, ActualAmount: decimal.NewFromInt(180)}, "tester")
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusRefunded, refunded.Status)
	require.Equal(t, "180.00", refunded.ActualRefundAmount.StringFixed(2))
	require.NotNil(t, refunded.RefundedDate)

	_, err = f.svc.ProcessRefund(ctx, invoicing.ProcessRefundInput{InvoiceID: inv.ID}, "tester")
	require.Equal(t, shared.KindInvalidStatusTransition, shared.KindOf(err))
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := f.sent(t, 1, "100")
	f.draft(t, 2, "100")

	n, err := f.svc.MarkOverdue(ctx, f.clock.T.Add(24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = f.svc.MarkOverdue(ctx, f.clock.T.Add(15*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, due.ID)
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusOverdue, got.Status)

	got, err = pay(f, due.ID, "100")
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusPaid, got.Status)
}

func TestDraftEditingAndSoftDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.draft(t, 1, "200")

	updated, err := f.svc.UpdateDraft(ctx, invoicing.DraftUpdate{
		InvoiceID: inv.ID,
		Lines:     []invoicing.LineAdjustment{{ItemID: inv.Items[0].ID, DiscountPercent: decimal.NewFromInt(10), TaxPercent: decimal.NewFromInt(5)}},
	})
	require.NoError(t, err)
	require.Equal(t, "189.00", updated.TotalAmount.StringFixed(2))
	require.Equal(t, "189.00", updated.BalanceAmount.StringFixed(2))

	reloaded, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, "189.00", reloaded.Items[0].LineTotal.StringFixed(2))

	require.NoError(t, f.svc.DeleteDraft(ctx, inv.ID, "tester"))
	_, err = f.svc.Get(ctx, inv.ID)
	require.ErrorIs(t, err, invoicing.ErrInvoiceNotFound)
	_, err = f.svc.GetBySalesOrder(ctx, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)

	sent := f.sent(t, 2, "50")
	_, err = f.svc.UpdateDraft(ctx, invoicing.DraftUpdate{InvoiceID: sent.ID, Notes: new(string)})
	require.ErrorIs(t, err, invoicing.ErrNotDraft)
}
