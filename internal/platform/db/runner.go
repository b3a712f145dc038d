package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-stock/internal/invoicing"
	"github.com/odyssey-erp/odyssey-stock/internal/purchasing"
	"github.com/odyssey-erp/odyssey-stock/internal/sales"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

// scope exposes every repository bound to one pgx transaction.
type scope struct {
	stock      *stock.TxRepository
	invoices   *invoicing.TxRepository
	sales      *sales.TxRepository
	purchasing *purchasing.TxRepository
}

func newScope(tx pgx.Tx) scope {
	return scope{
		stock:      stock.NewTxRepository(tx),
		invoices:   invoicing.NewTxRepository(tx),
		sales:      sales.NewTxRepository(tx),
		purchasing: purchasing.NewTxRepository(tx),
	}
}

type salesScope struct{ scope }

func (s salesScope) Orders() sales.Store       { return s.sales }
func (s salesScope) Stock() stock.Store        { return s.stock }
func (s salesScope) Invoices() invoicing.Store { return s.invoices }

type purchasingScope struct{ scope }

func (s purchasingScope) Orders() purchasing.Store { return s.purchasing }
func (s purchasingScope) Stock() stock.Store       { return s.stock }

// StockRunner adapts the Transactor to stock.TxRunner.
func (t *Transactor) StockRunner() stock.TxRunner { return stockRunner{t} }

// InvoiceRunner adapts the Transactor to invoicing.TxRunner.
func (t *Transactor) InvoiceRunner() invoicing.TxRunner { return invoiceRunner{t} }

// SalesRunner adapts the Transactor to sales.TxRunner.
func (t *Transactor) SalesRunner() sales.TxRunner { return salesRunner{t} }

// PurchasingRunner adapts the Transactor to purchasing.TxRunner.
func (t *Transactor) PurchasingRunner() purchasing.TxRunner { return purchasingRunner{t} }

type stockRunner struct{ t *Transactor }

func (r stockRunner) WithTx(ctx context.Context, fn func(context.Context, stock.Store) error) error {
	return r.t.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, stock.NewTxRepository(tx))
	})
}

type invoiceRunner struct{ t *Transactor }

func (r invoiceRunner) WithTx(ctx context.Context, fn func(context.Context, invoicing.Store) error) error {
	return r.t.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, invoicing.NewTxRepository(tx))
	})
}

type salesRunner struct{ t *Transactor }

func (r salesRunner) WithTx(ctx context.Context, fn func(context.Context, sales.UnitOfWork) error) error {
	return r.t.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, salesScope{newScope(tx)})
	})
}

type purchasingRunner struct{ t *Transactor }

func (r purchasingRunner) WithTx(ctx context.Context, fn func(context.Context, purchasing.UnitOfWork) error) error {
	return r.t.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, purchasingScope{newScope(tx)})
	})
}
