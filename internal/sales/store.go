package sales

import (
	"context"

	"github.com/odyssey-erp/odyssey-stock/internal/invoicing"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

// Store is the transaction-scoped persistence for sales orders.
type Store interface {
	InsertOrder(ctx context.Context, o Order) (int64, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	ReplaceItems(ctx context.Context, orderID int64, items []Item) error
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
}

// UnitOfWork is one transaction spanning orders, stock and invoices.
type UnitOfWork interface {
	Orders() Store
	Stock() stock.Store
	Invoices() invoicing.Store
}

// TxRunner opens one unit of work per call.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, UnitOfWork) error) error
}
