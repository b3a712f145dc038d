package purchasing

import (
	"context"

	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

// Store is the transaction-scoped persistence for purchase orders and returns.
type Store interface {
	InsertOrder(ctx context.Context, o Order) (int64, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	GetItem(ctx context.Context, itemID int64) (Item, error)
	UpdateItemReceived(ctx context.Context, itemID, receivedQuantity int64) error
	InsertReceipt(ctx context.Context, r Receipt) (int64, error)
	ListReceipts(ctx context.Context, orderID int64) ([]Receipt, error)

	InsertReturn(ctx context.Context, r Return) (int64, error)
	GetReturn(ctx context.Context, id int64) (Return, error)
	GetReturnForUpdate(ctx context.Context, id int64) (Return, error)
	UpdateReturn(ctx context.Context, r Return) error
	UpdateReturnItem(ctx context.Context, item ReturnItem) error
	ListReturnLines(ctx context.Context, orderID int64) ([]ReturnLine, error)
}

// UnitOfWork is one transaction spanning purchasing and stock.
type UnitOfWork interface {
	Orders() Store
	Stock() stock.Store
}

// TxRunner opens one unit of work per call.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, UnitOfWork) error) error
}
