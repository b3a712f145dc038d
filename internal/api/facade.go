// Package api is the exposed contract of the stock engine. Every operation
// returns a shared.Result; no error value crosses this boundary.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/invoicing"
	"github.com/odyssey-erp/odyssey-stock/internal/purchasing"
	"github.com/odyssey-erp/odyssey-stock/internal/sales"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

// Facade groups the module services behind the Result contract.
type Facade struct {
	Stock      *stock.Service
	Sales      *sales.Service
	Invoices   *invoicing.Service
	Purchasing *purchasing.Service
	Logger     *slog.Logger
}

// NewFacade builds a Facade.
func NewFacade(stockSvc *stock.Service, salesSvc *sales.Service, invoiceSvc *invoicing.Service, purchasingSvc *purchasing.Service, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		Stock:      stockSvc,
		Sales:      salesSvc,
		Invoices:   invoiceSvc,
		Purchasing: purchasingSvc,
		Logger:     logger.With(slog.String("module", "api")),
	}
}

// ReserveStock holds every line for a sales order reference or nothing.
func (f *Facade) ReserveStock(ctx context.Context, items []stock.Line, salesOrderID int64, reference, actor string) shared.Result[bool] {
	_, err := f.Stock.ReserveStock(ctx, stock.ReserveInput{
		Items:        items,
		SalesOrderID: salesOrderID,
		Reference:    reference,
		Actor:        actor,
	})
	return f.done(ctx, "ReserveStock", err)
}

// ReleaseStockReservation releases the reference's holds on the given
// products, or all of them when items is empty. Releasing twice succeeds.
func (f *Facade) ReleaseStockReservation(ctx context.Context, items []stock.Line, reference, actor string) shared.Result[bool] {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	_, err := f.Stock.ReleaseStockReservation(ctx, stock.ReleaseInput{Reference: reference, ProductIDs: ids, Actor: actor})
	return f.done(ctx, "ReleaseStockReservation", err)
}

// MovementCommand is a stock movement as submitted by a client.
type MovementCommand struct {
	ProductID      int64
	Quantity       int64
	Kind           string
	Reference      string
	Reason         string
	Actor          string
	AllowNegative  bool
	IdempotencyKey string
}

// ProcessStockMovement records one ledger movement.
func (f *Facade) ProcessStockMovement(ctx context.Context, cmd MovementCommand) shared.Result[bool] {
	kind, err := ParseMovementKind(cmd.Kind)
	if err != nil {
		return shared.Fail[bool](err)
	}
	_, err = f.Stock.ProcessStockMovement(ctx, stock.MovementRequest{
		ProductID:      cmd.ProductID,
		Quantity:       cmd.Quantity,
		Kind:           kind,
		Reference:      cmd.Reference,
		Reason:         cmd.Reason,
		Actor:          cmd.Actor,
		AllowNegative:  cmd.AllowNegative,
		IdempotencyKey: cmd.IdempotencyKey,
	})
	return f.done(ctx, "ProcessStockMovement", err)
}

// GetAvailableStock reports on-hand minus active reservations.
func (f *Facade) GetAvailableStock(ctx context.Context, productID int64) shared.Result[int64] {
	available, err := f.Stock.GetAvailableStock(ctx, productID)
	return result(ctx, f.Logger, "GetAvailableStock", available, err)
}

// StatusChange is a requested sales order transition.
type StatusChange struct {
	Status        string
	ShippedDate   *time.Time
	DeliveredDate *time.Time
	Reason        string
	Actor         string
}

// UpdateSalesOrderStatus parses the requested status and runs the transition.
func (f *Facade) UpdateSalesOrderStatus(ctx context.Context, id int64, change StatusChange) shared.Result[sales.Order] {
	status, err := ParseSalesOrderStatus(change.Status)
	if err != nil {
		return shared.Fail[sales.Order](err)
	}
	order, err := f.Sales.UpdateStatus(ctx, sales.StatusUpdate{
		OrderID:       id,
		Status:        status,
		ShippedDate:   change.ShippedDate,
		DeliveredDate: change.DeliveredDate,
		Reason:        change.Reason,
		Actor:         change.Actor,
	})
	return result(ctx, f.Logger, "UpdateSalesOrderStatus", order, err)
}

// RecordPayment applies a payment to an invoice.
func (f *Facade) RecordPayment(ctx context.Context, invoiceID int64, amount decimal.Decimal, paidAt time.Time, notes, actor string) shared.Result[invoicing.Invoice] {
	inv, err := f.Invoices.RecordPayment(ctx, invoicing.PaymentInput{
		InvoiceID: invoiceID,
		Amount:    amount,
		PaidAt:    paidAt,
		Notes:     notes,
		Actor:     actor,
	})
	return result(ctx, f.Logger, "RecordPayment", inv, err)
}

// ReceiveItem books goods received against a purchase order line.
func (f *Facade) ReceiveItem(ctx context.Context, itemID, quantity int64, notes, actor string) shared.Result[bool] {
	_, err := f.Purchasing.ReceiveItem(ctx, purchasing.ReceiveInput{ItemID: itemID, Quantity: quantity, Notes: notes, Actor: actor})
	return f.done(ctx, "ReceiveItem", err)
}

// ProcessReturn ships approved return lines back to the supplier.
func (f *Facade) ProcessReturn(ctx context.Context, returnID int64, itemIDs []int64, actor string) shared.Result[purchasing.Return] {
	ret, err := f.Purchasing.ProcessReturn(ctx, purchasing.ProcessReturnInput{ReturnID: returnID, ItemIDs: itemIDs, Actor: actor})
	return result(ctx, f.Logger, "ProcessReturn", ret, err)
}

func (f *Facade) done(ctx context.Context, op string, err error) shared.Result[bool] {
	return result(ctx, f.Logger, op, err == nil, err)
}

func result[T any](ctx context.Context, logger *slog.Logger, op string, value T, err error) shared.Result[T] {
	res := shared.ResultOf(value, err)
	if err != nil {
		level := slog.LevelInfo
		if res.Error.Kind == shared.KindInternal {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "operation failed",
			slog.String("op", op),
			slog.String("kind", string(res.Error.Kind)),
			slog.Any("error", err))
	}
	return res
}
