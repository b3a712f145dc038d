// Package memstore keeps every store in process memory. Each unit of work runs
// against a private copy of the state under one mutex; the copy replaces the
// committed state only when the callback succeeds.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/odyssey-erp/odyssey-stock/internal/invoicing"
	"github.com/odyssey-erp/odyssey-stock/internal/purchasing"
	"github.com/odyssey-erp/odyssey-stock/internal/sales"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

type state struct {
	seq map[string]int64

	products     map[int64]stock.Product
	movements    []stock.Movement
	reservations []stock.Reservation

	salesOrders map[int64]sales.Order
	invoices    map[int64]invoicing.Invoice
	payments    []invoicing.Payment

	purchaseOrders map[int64]purchasing.Order
	receipts       []purchasing.Receipt
	returns        map[int64]purchasing.Return
}

func newState() *state {
	return &state{
		seq:            map[string]int64{},
		products:       map[int64]stock.Product{},
		salesOrders:    map[int64]sales.Order{},
		invoices:       map[int64]invoicing.Invoice{},
		purchaseOrders: map[int64]purchasing.Order{},
		returns:        map[int64]purchasing.Return{},
	}
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *state) clone() *state {
	c := &state{
		seq:            maps.Clone(s.seq),
		products:       maps.Clone(s.products),
		movements:      slices.Clone(s.movements),
		reservations:   slices.Clone(s.reservations),
		salesOrders:    make(map[int64]sales.Order, len(s.salesOrders)),
		invoices:       make(map[int64]invoicing.Invoice, len(s.invoices)),
		payments:       slices.Clone(s.payments),
		purchaseOrders: make(map[int64]purchasing.Order, len(s.purchaseOrders)),
		receipts:       slices.Clone(s.receipts),
		returns:        make(map[int64]purchasing.Return, len(s.returns)),
	}
	for id, o := range s.salesOrders {
		o.Items = slices.Clone(o.Items)
		c.salesOrders[id] = o
	}
	for id, inv := range s.invoices {
		inv.Items = slices.Clone(inv.Items)
		c.invoices[id] = inv
	}
	for id, o := range s.purchaseOrders {
		o.Items = slices.Clone(o.Items)
		c.purchaseOrders[id] = o
	}
	for id, r := range s.returns {
		r.Items = slices.Clone(r.Items)
		c.returns[id] = r
	}
	return c
}

// DB is a serialized in-memory database.
type DB struct {
	mu    sync.Mutex
	state *state
}

// New returns an empty DB.
func New() *DB {
	return &DB{state: newState()}
}

// tx is the view handed to a unit of work.
type tx struct {
	st *state
}

func (t tx) stock() *stockStore           { return &stockStore{st: t.st} }
func (t tx) invoices() *invoiceStore      { return &invoiceStore{st: t.st} }
func (t tx) sales() *salesStore           { return &salesStore{st: t.st} }
func (t tx) purchasing() *purchasingStore { return &purchasingStore{st: t.st} }

// withTx runs fn on a copy of the state and commits it when fn succeeds.
func (db *DB) withTx(ctx context.Context, fn func(context.Context, tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	work := db.state.clone()
	if err := fn(ctx, tx{st: work}); err != nil {
		return err
	}
	db.state = work
	return nil
}

type salesUnit struct{ tx }

func (u salesUnit) Orders() sales.Store       { return u.sales() }
func (u salesUnit) Stock() stock.Store        { return u.stock() }
func (u salesUnit) Invoices() invoicing.Store { return u.invoices() }

type purchasingUnit struct{ tx }

func (u purchasingUnit) Orders() purchasing.Store { return u.purchasing() }
func (u purchasingUnit) Stock() stock.Store       { return u.stock() }

// StockRunner adapts DB to stock.TxRunner.
func (db *DB) StockRunner() stock.TxRunner { return stockRunner{db} }

// InvoiceRunner adapts DB to invoicing.TxRunner.
func (db *DB) InvoiceRunner() invoicing.TxRunner { return invoiceRunner{db} }

// SalesRunner adapts DB to sales.TxRunner.
func (db *DB) SalesRunner() sales.TxRunner { return salesRunner{db} }

// PurchasingRunner adapts DB to purchasing.TxRunner.
func (db *DB) PurchasingRunner() purchasing.TxRunner { return purchasingRunner{db} }

type stockRunner struct{ db *DB }

func (r stockRunner) WithTx(ctx context.Context, fn func(context.Context, stock.Store) error) error {
	return r.db.withTx(ctx, func(ctx context.Context, t tx) error { return fn(ctx, t.stock()) })
}

type invoiceRunner struct{ db *DB }

func (r invoiceRunner) WithTx(ctx context.Context, fn func(context.Context, invoicing.Store) error) error {
	return r.db.withTx(ctx, func(ctx context.Context, t tx) error { return fn(ctx, t.invoices()) })
}

type salesRunner struct{ db *DB }

func (r salesRunner) WithTx(ctx context.Context, fn func(context.Context, sales.UnitOfWork) error) error {
	return r.db.withTx(ctx, func(ctx context.Context, t tx) error { return fn(ctx, salesUnit{t}) })
}

type purchasingRunner struct{ db *DB }

func (r purchasingRunner) WithTx(ctx context.Context, fn func(context.Context, purchasing.UnitOfWork) error) error {
	return r.db.withTx(ctx, func(ctx context.Context, t tx) error { return fn(ctx, purchasingUnit{t}) })
}
