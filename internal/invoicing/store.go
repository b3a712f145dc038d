package invoicing

import (
	"context"
	"time"
)

// Store is the transaction-scoped persistence for invoices. Soft-deleted
// invoices are invisible to every read.
type Store interface {
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	FindBySalesOrder(ctx context.Context, salesOrderID int64) (Invoice, error)
	UpdateInvoice(ctx context.Context, inv Invoice) error
	UpdateItemPricing(ctx context.Context, items []Item) error
	ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]Invoice, error)
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
}

// TxRunner opens one unit of work per call.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
}
