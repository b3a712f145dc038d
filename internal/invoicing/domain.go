package invoicing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Status enumerates invoice statuses.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusSent            Status = "SENT"
	StatusPaid            Status = "PAID"
	StatusPartiallyPaid   Status = "PARTIALLY_PAID"
	StatusOverdue         Status = "OVERDUE"
	StatusCancelled       Status = "CANCELLED"
	StatusRefundRequested Status = "REFUND_REQUESTED"
	StatusRefunded        Status = "REFUNDED"
)

// Statuses lists every status in canonical order.
var Statuses = []Status{StatusDraft, StatusSent, StatusPaid, StatusPartiallyPaid, StatusOverdue, StatusCancelled, StatusRefundRequested, StatusRefunded}

var transitions = map[Status][]Status{
	StatusDraft:           {StatusSent, StatusCancelled},
	StatusSent:            {StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled, StatusRefundRequested},
	StatusPartiallyPaid:   {StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusRefundRequested},
	StatusOverdue:         {StatusPartiallyPaid, StatusPaid, StatusCancelled, StatusRefundRequested},
	StatusPaid:            {StatusRefunded},
	StatusRefundRequested: {StatusRefunded},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(inv Invoice, to Status) error {
	if !CanTransition(inv.Status, to) {
		return &shared.InvalidStatusTransitionError{Entity: "invoice " + inv.Number, Current: string(inv.Status), Requested: string(to)}
	}
	return nil
}

// Invoice is a billing document derived from a sales order.
type Invoice struct {
	ID                    int64           `json:"id"`
	Number                string          `json:"number"`
	SalesOrderID          int64           `json:"sales_order_id"`
	OrderReference        string          `json:"order_reference"`
	CustomerID            int64           `json:"customer_id"`
	Status                Status          `json:"status"`
	IssueDate             time.Time       `json:"issue_date"`
	DueDate               time.Time       `json:"due_date"`
	SubTotal              decimal.Decimal `json:"sub_total"`
	TaxAmount             decimal.Decimal `json:"tax_amount"`
	DiscountAmount        decimal.Decimal `json:"discount_amount"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	PaidAmount            decimal.Decimal `json:"paid_amount"`
	BalanceAmount         decimal.Decimal `json:"balance_amount"`
	RefundRequestedAmount decimal.Decimal `json:"refund_requested_amount"`
	RefundReason          string          `json:"refund_reason,omitempty"`
	ActualRefundAmount    decimal.Decimal `json:"actual_refund_amount"`
	RefundRequestedAt     *time.Time      `json:"refund_requested_at,omitempty"`
	RefundedDate          *time.Time      `json:"refunded_date,omitempty"`
	SentAt                *time.Time      `json:"sent_at,omitempty"`
	PaidAt                *time.Time      `json:"paid_at,omitempty"`
	CancelledAt           *time.Time      `json:"cancelled_at,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	IsDeleted             bool            `json:"is_deleted"`
	CreatedBy             string          `json:"created_by"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	Items                 []Item          `json:"items"`
}

// Item is a frozen copy of a sales order line.
type Item struct {
	ID              int64           `json:"id"`
	InvoiceID       int64           `json:"invoice_id"`
	ProductID       int64           `json:"product_id"`
	Description     string          `json:"description"`
	Quantity        int64           `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

// Payment is one receipt against an invoice.
type Payment struct {
	ID         int64           `json:"id"`
	InvoiceID  int64           `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAt     time.Time       `json:"paid_at"`
	Notes      string          `json:"notes,omitempty"`
	RecordedBy string          `json:"recorded_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

// recalculate applies the balance invariant.
func (inv *Invoice) recalculate() {
	inv.BalanceAmount = inv.TotalAmount.Sub(inv.PaidAmount)
}

// priceItems fills line totals and header amounts from the items.
func (inv *Invoice) priceItems() {
	sub, tax, discount := decimal.Zero, decimal.Zero, decimal.Zero
	for i := range inv.Items {
		item := &inv.Items[i]
		amounts := shared.CalculateLineTotals(item.Quantity, item.UnitPrice, item.DiscountPercent, item.TaxPercent)
		item.LineTotal = amounts.Total
		sub = sub.Add(amounts.Gross)
		tax = tax.Add(amounts.Tax)
		discount = discount.Add(amounts.Discount)
	}
	inv.SubTotal = sub
	inv.TaxAmount = tax
	inv.DiscountAmount = discount
	inv.TotalAmount = sub.Add(tax).Sub(discount)
	inv.recalculate()
}

var (
	// ErrInvoiceNotFound indicates a missing invoice.
	ErrInvoiceNotFound = fmt.Errorf("invoicing: invoice %w", shared.ErrNotFound)
	// ErrNotDraft rejects edits once an invoice left Draft.
	ErrNotDraft = fmt.Errorf("%w: invoicing: only draft invoices can be edited or deleted", shared.ErrValidation)
	// ErrNoItems rejects an invoice without lines.
	ErrNoItems = fmt.Errorf("%w: invoicing: invoice requires at least one item", shared.ErrValidation)
)
