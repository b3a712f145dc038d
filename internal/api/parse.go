package api

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-stock/internal/invoicing"
	"github.com/odyssey-erp/odyssey-stock/internal/purchasing"
	"github.com/odyssey-erp/odyssey-stock/internal/sales"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

// Statuses arrive from clients either by name ("Partially Paid",
// "partially_paid", "PARTIALLY_PAID") or by legacy numeric code, which is the
// zero-based position in the canonical order. Parsing happens here once; the
// modules only ever see typed values.

// ParseSalesOrderStatus parses a sales order status.
func ParseSalesOrderStatus(raw string) (sales.Status, error) {
	return parseEnum("sales order status", raw, sales.Statuses)
}

// ParseInvoiceStatus parses an invoice status.
func ParseInvoiceStatus(raw string) (invoicing.Status, error) {
	return parseEnum("invoice status", raw, invoicing.Statuses)
}

// ParsePurchaseOrderStatus parses a purchase order status.
func ParsePurchaseOrderStatus(raw string) (purchasing.Status, error) {
	return parseEnum("purchase order status", raw, purchasing.Statuses)
}

// ParseReturnStatus parses a supplier return status.
func ParseReturnStatus(raw string) (purchasing.ReturnStatus, error) {
	return parseEnum("return status", raw, purchasing.ReturnStatuses)
}

// ParseMovementKind parses a stock movement kind.
func ParseMovementKind(raw string) (stock.MovementKind, error) {
	return parseEnum("movement kind", raw, stock.MovementKinds)
}

func parseEnum[T ~string](what, raw string, values []T) (T, error) {
	var zero T
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return zero, fmt.Errorf("%w: %s required", shared.ErrValidation, what)
	}
	if code, err := strconv.Atoi(trimmed); err == nil {
		if code < 0 || code >= len(values) {
			return zero, fmt.Errorf("%w: unknown %s code %d", shared.ErrValidation, what, code)
		}
		return values[code], nil
	}
	key := normalize(trimmed)
	for _, v := range values {
		if normalize(string(v)) == key {
			return v, nil
		}
	}
	return zero, fmt.Errorf("%w: unknown %s %q", shared.ErrValidation, what, raw)
}

func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', ' ', '-':
			return -1
		}
		return r
	}, strings.ToUpper(s))
}
