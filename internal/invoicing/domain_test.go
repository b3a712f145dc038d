package invoicing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusDraft, StatusSent},
		{StatusDraft, StatusCancelled},
		{StatusSent, StatusPartiallyPaid},
		{StatusSent, StatusPaid},
		{StatusSent, StatusOverdue},
		{StatusPartiallyPaid, StatusPartiallyPaid},
		{StatusOverdue, StatusPaid},
		{StatusPaid, StatusRefunded},
		{StatusRefundRequested, StatusRefunded},
	}
	for _, tc := range allowed {
		require.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to Status }{
		{StatusDraft, StatusPaid},
		{StatusPaid, StatusCancelled},
		{StatusPaid, StatusSent},
		{StatusCancelled, StatusDraft},
		{StatusRefunded, StatusPaid},
		{StatusPartiallyPaid, StatusCancelled},
	}
	for _, tc := range denied {
		require.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	for _, terminal := range []Status{StatusCancelled, StatusRefunded} {
		for _, to := range Statuses {
			require.False(t, CanTransition(terminal, to), "%s is terminal", terminal)
		}
	}
}

func TestPriceItemsKeepsBalanceInvariant(t *testing.T) {
	inv := Invoice{
		PaidAmount: decimal.NewFromInt(20),
		Items: []Item{
			{Quantity: 3, UnitPrice: decimal.RequireFromString("49.99"), DiscountPercent: decimal.NewFromInt(10), TaxPercent: decimal.NewFromInt(11)},
			{Quantity: 1, UnitPrice: decimal.NewFromInt(100)},
		},
	}
	inv.priceItems()

	require.Equal(t, "249.97", inv.SubTotal.StringFixed(2))
	require.Equal(t, "15.00", inv.DiscountAmount.StringFixed(2))
	require.Equal(t, "14.85", inv.TaxAmount.StringFixed(2))
	require.Equal(t, "249.82", inv.TotalAmount.StringFixed(2))
	require.Equal(t, "149.82", inv.Items[0].LineTotal.StringFixed(2))
	require.True(t, inv.BalanceAmount.Equal(inv.TotalAmount.Sub(inv.PaidAmount)))
}
