package api

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/invoicing"
	"github.com/odyssey-erp/odyssey-stock/internal/purchasing"
	"github.com/odyssey-erp/odyssey-stock/internal/sales"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

func TestParseSalesOrderStatus(t *testing.T) {
	cases := map[string]sales.Status{
		"SHIPPED":    sales.StatusShipped,
		"shipped":    sales.StatusShipped,
		"OnHold":     sales.StatusOnHold,
		"on_hold":    sales.StatusOnHold,
		" On Hold ":  sales.StatusOnHold,
		"0":          sales.StatusNew,
		"3":          sales.StatusCompleted,
		"Processing": sales.StatusProcessing,
	}
	for raw, want := range cases {
		got, err := ParseSalesOrderStatus(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	for _, raw := range []string{"", "   ", "Shipping", "7", "-1"} {
		_, err := ParseSalesOrderStatus(raw)
		require.Error(t, err, raw)
		require.Equal(t, shared.KindValidation, shared.KindOf(err), raw)
	}
}

func TestParseOtherEnums(t *testing.T) {
	inv, err := ParseInvoiceStatus("Partially Paid")
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusPartiallyPaid, inv)

	po, err := ParsePurchaseOrderStatus("partially-received")
	require.NoError(t, err)
	require.Equal(t, purchasing.StatusPartiallyReceived, po)

	ret, err := ParseReturnStatus("1")
	require.NoError(t, err)
	require.Equal(t, purchasing.ReturnApproved, ret)

	kind, err := ParseMovementKind("stockout")
	require.NoError(t, err)
	require.Equal(t, stock.KindStockOut, kind)
}
