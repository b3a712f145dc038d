package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Lifecycle applies invoice transitions inside a caller-provided unit of work.
type Lifecycle struct {
	clock shared.Clock
	terms time.Duration
}

// NewLifecycle builds a Lifecycle. paymentTermsDays sets the due date of new invoices.
func NewLifecycle(clock shared.Clock, paymentTermsDays int) *Lifecycle {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if paymentTermsDays <= 0 {
		paymentTermsDays = 30
	}
	return &Lifecycle{clock: clock, terms: time.Duration(paymentTermsDays) * 24 * time.Hour}
}

// OrderSnapshot is the frozen order content an invoice is built from.
type OrderSnapshot struct {
	SalesOrderID int64
	Reference    string
	CustomerID   int64
	Items        []Item
	Notes        string
	Actor        string
}

// CreateFromOrder creates a Draft invoice. Totals are computed once here.
func (l *Lifecycle) CreateFromOrder(ctx context.Context, st Store, snap OrderSnapshot) (Invoice, error) {
	if len(snap.Items) == 0 {
		return Invoice{}, ErrNoItems
	}
	existing, err := st.FindBySalesOrder(ctx, snap.SalesOrderID)
	switch {
	case err == nil:
		return Invoice{}, &shared.AlreadyProcessedError{Entity: "sales order", ID: snap.Reference, Detail: "invoice " + existing.Number + " already issued"}
	case !errors.Is(err, ErrInvoiceNotFound):
		return Invoice{}, err
	}

	now := l.clock.Now()
	inv := Invoice{
		Number:         shared.NewDocumentNumber("INV", now),
		SalesOrderID:   snap.SalesOrderID,
		OrderReference: snap.Reference,
		CustomerID:     snap.CustomerID,
		Status:         StatusDraft,
		IssueDate:      now,
		DueDate:        now.Add(l.terms),
		PaidAmount:     decimal.Zero,
		Notes:          snap.Notes,
		CreatedBy:      snap.Actor,
		CreatedAt:      now,
		UpdatedAt:      now,
		Items:          append([]Item(nil), snap.Items...),
	}
	inv.priceItems()
	id, err := st.InsertInvoice(ctx, inv)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoicing: insert invoice: %w", err)
	}
	return st.GetInvoice(ctx, id)
}

// Send moves a Draft invoice to Sent.
func (l *Lifecycle) Send(ctx context.Context, st Store, id int64) (Invoice, error) {
	inv, err := st.GetInvoiceForUpdate(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if err := checkTransition(inv, StatusSent); err != nil {
		return Invoice{}, err
	}
	now := l.clock.Now()
	inv.Status = StatusSent
	inv.SentAt = &now
	return l.save(ctx, st, inv, now)
}

// PaymentInput records money received.
type PaymentInput struct {
	InvoiceID int64
	Amount    decimal.Decimal
	PaidAt    time.Time
	Notes     string
	Actor     string
}

// RecordPayment applies a payment and moves the invoice to Paid or PartiallyPaid.
func (l *Lifecycle) RecordPayment(ctx context.Context, st Store, in PaymentInput) (Invoice, Payment, error) {
	if !in.Amount.IsPositive() {
		return Invoice{}, Payment{}, &shared.InvalidQuantityError{Field: "payment amount", Quantity: shared.FormatAmount(in.Amount), Reason: "must be positive"}
	}
	inv, err := st.GetInvoiceForUpdate(ctx, in.InvoiceID)
	if err != nil {
		return Invoice{}, Payment{}, err
	}
	switch inv.Status {
	case StatusPaid, StatusRefunded:
		return Invoice{}, Payment{}, &shared.AlreadyProcessedError{Entity: "invoice", ID: inv.Number, Detail: "invoice is already " + strings.ToLower(string(inv.Status))}
	case StatusDraft, StatusCancelled, StatusRefundRequested:
		return Invoice{}, Payment{}, &shared.InvalidStatusTransitionError{Entity: "invoice " + inv.Number, Current: string(inv.Status), Requested: string(StatusPaid)}
	}
	if !inv.BalanceAmount.IsPositive() {
		return Invoice{}, Payment{}, &shared.AlreadyProcessedError{Entity: "invoice", ID: inv.Number, Detail: "no outstanding balance"}
	}
	if in.Amount.GreaterThan(inv.BalanceAmount) {
		return Invoice{}, Payment{}, &shared.AlreadyProcessedError{
			Entity: "invoice",
			ID:     inv.Number,
			Detail: fmt.Sprintf("payment of %s exceeds outstanding balance %s", shared.FormatAmount(in.Amount), shared.FormatAmount(inv.BalanceAmount)),
		}
	}

	now := l.clock.Now()
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	inv.PaidAmount = inv.PaidAmount.Add(in.Amount)
	inv.recalculate()
	next := StatusPartiallyPaid
	if inv.BalanceAmount.IsZero() {
		next = StatusPaid
	}
	if err := checkTransition(inv, next); err != nil {
		return Invoice{}, Payment{}, err
	}
	inv.Status = next
	if next == StatusPaid {
		inv.PaidAt = &paidAt
	}

	payment := Payment{InvoiceID: inv.ID, Amount: in.Amount, PaidAt: paidAt, Notes: in.Notes, RecordedBy: in.Actor, CreatedAt: now}
	pid, err := st.InsertPayment(ctx, payment)
	if err != nil {
		return Invoice{}, Payment{}, fmt.Errorf("invoicing: insert payment: %w", err)
	}
	payment.ID = pid
	saved, err := l.save(ctx, st, inv, now)
	if err != nil {
		return Invoice{}, Payment{}, err
	}
	return saved, payment, nil
}

// Cancel moves an invoice to Cancelled. Invoices are never deleted by cancellation.
func (l *Lifecycle) Cancel(ctx context.Context, st Store, id int64, reason string) (Invoice, error) {
	inv, err := st.GetInvoiceForUpdate(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if err := checkTransition(inv, StatusCancelled); err != nil {
		return Invoice{}, err
	}
	now := l.clock.Now()
	inv.Status = StatusCancelled
	inv.CancelledAt = &now
	if reason != "" {
		inv.Notes = strings.TrimSpace(inv.Notes + "\nCancelled: " + reason)
	}
	return l.save(ctx, st, inv, now)
}

// RefundRequest asks for money back. A zero Amount requests the full paid amount.
type RefundRequest struct {
	InvoiceID int64
	Amount    decimal.Decimal
	Reason    string
}

// RequestRefund moves Sent, PartiallyPaid or Overdue invoices to RefundRequested.
func (l *Lifecycle) RequestRefund(ctx context.Context, st Store, req RefundRequest) (Invoice, error) {
	if req.Amount.IsNegative() {
		return Invoice{}, &shared.InvalidQuantityError{Field: "refund amount", Quantity: shared.FormatAmount(req.Amount), Reason: "must not be negative"}
	}
	inv, err := st.GetInvoiceForUpdate(ctx, req.InvoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if err := checkTransition(inv, StatusRefundRequested); err != nil {
		return Invoice{}, err
	}
	amount := req.Amount
	if amount.IsZero() {
		amount = inv.PaidAmount
	}
	if amount.GreaterThan(inv.PaidAmount) {
		return Invoice{}, &shared.InvalidQuantityError{
			Field:    "refund amount",
			Quantity: shared.FormatAmount(amount),
			Reason:   "exceeds paid amount " + shared.FormatAmount(inv.PaidAmount),
		}
	}
	now := l.clock.Now()
	inv.Status = StatusRefundRequested
	inv.RefundRequestedAmount = amount
	inv.RefundReason = req.Reason
	inv.RefundRequestedAt = &now
	return l.save(ctx, st, inv, now)
}

// ProcessRefundInput resolves a refund.
type ProcessRefundInput struct {
	InvoiceID    int64
	ActualAmount decimal.Decimal
	RefundedDate time.Time
}

// ProcessRefund records the amount actually refunded. It never moves stock.
func (l *Lifecycle) ProcessRefund(ctx context.Context, st Store, in ProcessRefundInput) (Invoice, error) {
	if in.ActualAmount.IsNegative() {
		return Invoice{}, &shared.InvalidQuantityError{Field: "refund amount", Quantity: shared.FormatAmount(in.ActualAmount), Reason: "must not be negative"}
	}
	inv, err := st.GetInvoiceForUpdate(ctx, in.InvoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if err := checkTransition(inv, StatusRefunded); err != nil {
		return Invoice{}, err
	}
	if in.ActualAmount.GreaterThan(inv.PaidAmount) {
		return Invoice{}, &shared.InvalidQuantityError{
			Field:    "refund amount",
			Quantity: shared.FormatAmount(in.ActualAmount),
			Reason:   "exceeds paid amount " + shared.FormatAmount(inv.PaidAmount),
		}
	}
	now := l.clock.Now()
	refunded := in.RefundedDate
	if refunded.IsZero() {
		refunded = now
	}
	inv.Status = StatusRefunded
	inv.ActualRefundAmount = in.ActualAmount
	inv.RefundedDate = &refunded
	return l.save(ctx, st, inv, now)
}

// OverdueMark is an invoice moved to Overdue and the status it left.
type OverdueMark struct {
	Invoice Invoice
	From    Status
}

// MarkOverdue flags unpaid invoices whose due date passed before asOf.
func (l *Lifecycle) MarkOverdue(ctx context.Context, st Store, asOf time.Time) ([]OverdueMark, error) {
	candidates, err := st.ListOverdueCandidates(ctx, asOf)
	if err != nil {
		return nil, err
	}
	now := l.clock.Now()
	marked := make([]OverdueMark, 0, len(candidates))
	for _, candidate := range candidates {
		inv, err := st.GetInvoiceForUpdate(ctx, candidate.ID)
		if err != nil {
			return nil, err
		}
		if !inv.DueDate.Before(asOf) || !CanTransition(inv.Status, StatusOverdue) {
			continue
		}
		from := inv.Status
		inv.Status = StatusOverdue
		saved, err := l.save(ctx, st, inv, now)
		if err != nil {
			return nil, err
		}
		marked = append(marked, OverdueMark{Invoice: saved, From: from})
	}
	return marked, nil
}

// LineAdjustment changes pricing terms of one Draft line.
type LineAdjustment struct {
	ItemID          int64
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
}

// DraftUpdate edits a Draft invoice.
type DraftUpdate struct {
	InvoiceID int64
	DueDate   *time.Time
	Notes     *string
	Lines     []LineAdjustment
}

// UpdateDraft edits a Draft invoice; totals are recomputed only while Draft.
func (l *Lifecycle) UpdateDraft(ctx context.Context, st Store, in DraftUpdate) (Invoice, error) {
	inv, err := st.GetInvoiceForUpdate(ctx, in.InvoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != StatusDraft {
		return Invoice{}, ErrNotDraft
	}
	if in.DueDate != nil {
		if in.DueDate.Before(inv.IssueDate) {
			return Invoice{}, fmt.Errorf("%w: invoicing: due date before issue date", shared.ErrValidation)
		}
		inv.DueDate = *in.DueDate
	}
	if in.Notes != nil {
		inv.Notes = *in.Notes
	}
	if len(in.Lines) > 0 {
		for _, adj := range in.Lines {
			if adj.DiscountPercent.IsNegative() || adj.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) || adj.TaxPercent.IsNegative() {
				return Invoice{}, fmt.Errorf("%w: invoicing: percentages out of range", shared.ErrValidation)
			}
			found := false
			for i := range inv.Items {
				if inv.Items[i].ID == adj.ItemID {
					inv.Items[i].DiscountPercent = adj.DiscountPercent
					inv.Items[i].TaxPercent = adj.TaxPercent
					found = true
				}
			}
			if !found {
				return Invoice{}, fmt.Errorf("%w: invoicing: item %d not on invoice", shared.ErrValidation, adj.ItemID)
			}
		}
		inv.priceItems()
		if err := st.UpdateItemPricing(ctx, inv.Items); err != nil {
			return Invoice{}, err
		}
	}
	return l.save(ctx, st, inv, l.clock.Now())
}

// DeleteDraft soft-deletes a Draft invoice.
func (l *Lifecycle) DeleteDraft(ctx context.Context, st Store, id int64) error {
	inv, err := st.GetInvoiceForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status != StatusDraft {
		return ErrNotDraft
	}
	inv.IsDeleted = true
	_, err = l.save(ctx, st, inv, l.clock.Now())
	return err
}

// Finalize makes the order's invoice payable by sending a Draft.
func (l *Lifecycle) Finalize(ctx context.Context, st Store, salesOrderID int64) (Invoice, bool, error) {
	inv, err := st.FindBySalesOrder(ctx, salesOrderID)
	if errors.Is(err, ErrInvoiceNotFound) {
		return Invoice{}, false, nil
	}
	if err != nil {
		return Invoice{}, false, err
	}
	if inv.Status != StatusDraft {
		return inv, false, nil
	}
	sent, err := l.Send(ctx, st, inv.ID)
	return sent, err == nil, err
}

// CancelForOrder cancels the order's invoice if one exists.
func (l *Lifecycle) CancelForOrder(ctx context.Context, st Store, salesOrderID int64, reason string) (Invoice, bool, error) {
	inv, err := st.FindBySalesOrder(ctx, salesOrderID)
	if errors.Is(err, ErrInvoiceNotFound) {
		return Invoice{}, false, nil
	}
	if err != nil {
		return Invoice{}, false, err
	}
	if inv.Status == StatusCancelled {
		return inv, false, nil
	}
	cancelled, err := l.Cancel(ctx, st, inv.ID, reason)
	return cancelled, err == nil, err
}

// RefundForReturn reacts to goods coming back: billed invoices request a
// refund of what was paid, a Draft is cancelled, anything else is left alone.
func (l *Lifecycle) RefundForReturn(ctx context.Context, st Store, salesOrderID int64, reason string) (Invoice, bool, error) {
	inv, err := st.FindBySalesOrder(ctx, salesOrderID)
	if errors.Is(err, ErrInvoiceNotFound) {
		return Invoice{}, false, nil
	}
	if err != nil {
		return Invoice{}, false, err
	}
	switch inv.Status {
	case StatusDraft:
		cancelled, err := l.Cancel(ctx, st, inv.ID, reason)
		return cancelled, err == nil, err
	case StatusSent, StatusPartiallyPaid, StatusOverdue:
		requested, err := l.RequestRefund(ctx, st, RefundRequest{InvoiceID: inv.ID, Reason: reason})
		return requested, err == nil, err
	default:
		return inv, false, nil
	}
}

func (l *Lifecycle) save(ctx context.Context, st Store, inv Invoice, now time.Time) (Invoice, error) {
	inv.UpdatedAt = now
	if err := st.UpdateInvoice(ctx, inv); err != nil {
		return Invoice{}, fmt.Errorf("invoicing: update invoice: %w", err)
	}
	return inv, nil
}
