package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/invoicing"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

// Metrics receives counters after commit.
type Metrics interface {
	Transition(entity, from, to string)
	MovementRecorded(kind string)
	ReservationRejected()
}

type noopMetrics struct{}

func (noopMetrics) Transition(string, string, string) {}
func (noopMetrics) MovementRecorded(string)           {}
func (noopMetrics) ReservationRejected()              {}

// StockNotifier is told which products changed after a commit.
type StockNotifier interface {
	Invalidate(ctx context.Context, productIDs ...int64)
}

// ServiceDeps groups collaborators. Ledger, Reservations and Invoices are the
// tx-scoped components shared with the stock and invoicing services.
type ServiceDeps struct {
	Ledger       *stock.Ledger
	Reservations *stock.Reservations
	Invoices     *invoicing.Lifecycle
	Clock        shared.Clock
	Notifier     StockNotifier
	Audit        shared.AuditPort
	Metrics      Metrics
	Logger       *slog.Logger
}

// Service drives the sales order lifecycle.
type Service struct {
	runner       TxRunner
	ledger       *stock.Ledger
	reservations *stock.Reservations
	invoices     *invoicing.Lifecycle
	clock        shared.Clock
	notifier     StockNotifier
	audit        shared.AuditPort
	metrics      Metrics
	logger       *slog.Logger
}

// NewService builds Service.
func NewService(runner TxRunner, deps ServiceDeps) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	ledger := deps.Ledger
	if ledger == nil {
		ledger = stock.NewLedger(clock)
	}
	reservations := deps.Reservations
	if reservations == nil {
		reservations = stock.NewReservations(clock)
	}
	invoices := deps.Invoices
	if invoices == nil {
		invoices = invoicing.NewLifecycle(clock, 0)
	}
	return &Service{
		runner:       runner,
		ledger:       ledger,
		reservations: reservations,
		invoices:     invoices,
		clock:        clock,
		notifier:     deps.Notifier,
		audit:        deps.Audit,
		metrics:      metrics,
		logger:       logger.With(slog.String("module", "sales")),
	}
}

// CreateOrderInput describes a new order.
type CreateOrderInput struct {
	CustomerID int64
	OrderDate  time.Time
	Items      []ItemInput
	Notes      string
	Actor      string
}

// CreateOrder stores a New order with prices frozen from the request.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	if in.CustomerID == 0 {
		return Order{}, ErrCustomerRequired
	}
	items, err := buildItems(in.Items)
	if err != nil {
		return Order{}, err
	}
	now := s.clock.Now()
	order := Order{
		Number:     shared.NewDocumentNumber("SO", now),
		CustomerID: in.CustomerID,
		Status:     StatusNew,
		OrderDate:  in.OrderDate,
		Notes:      strings.TrimSpace(in.Notes),
		CreatedBy:  in.Actor,
		CreatedAt:  now,
		UpdatedAt:  now,
		Items:      items,
	}
	if order.OrderDate.IsZero() {
		order.OrderDate = now
	}
	order.price()

	err = s.runner.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		for _, it := range order.Items {
			if _, err := uow.Stock().GetProduct(ctx, it.ProductID); err != nil {
				return err
			}
		}
		id, err := uow.Orders().InsertOrder(ctx, order)
		if err != nil {
			return fmt.Errorf("sales: insert order: %w", err)
		}
		order, err = uow.Orders().GetOrder(ctx, id)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("sales order created", slog.String("order", order.Number), slog.Int("items", len(order.Items)))
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		Actor: in.Actor, Action: "sales:create", Entity: "sales_order", EntityID: order.Number,
		Meta: map[string]any{"total": order.TotalAmount.StringFixed(2)},
	})
	return order, nil
}

// Get loads an order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	var order Order
	err := s.runner.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		order, err = uow.Orders().GetOrder(ctx, id)
		return err
	})
	return order, err
}

// List lists orders.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	var orders []Order
	err := s.runner.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		orders, err = uow.Orders().ListOrders(ctx, filter)
		return err
	})
	return orders, err
}

// UpdateStatus applies one lifecycle transition and all of its side effects
// in a single unit of work.
func (s *Service) UpdateStatus(ctx context.Context, upd StatusUpdate) (Order, error) {
	var (
		order Order
		from  Status
		fx    effects
	)
	err := s.runner.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		order, err = uow.Orders().GetOrderForUpdate(ctx, upd.OrderID)
		if err != nil {
			return err
		}
		from = order.Status
		fx, err = s.transition(ctx, uow, &order, upd)
		if err != nil {
			return err
		}
		order.UpdatedAt = s.clock.Now()
		return uow.Orders().UpdateOrder(ctx, order)
	})
	if err != nil {
		var short *shared.InsufficientStockError
		if errors.As(err, &short) && upd.Status == StatusProcessing {
			s.metrics.ReservationRejected()
		}
		s.logger.Warn("sales order transition rejected",
			slog.Int64("order_id", upd.OrderID),
			slog.String("requested", string(upd.Status)),
			slog.Any("error", err))
		return Order{}, err
	}
	s.afterCommit(ctx, order, from, upd.Actor, fx)
	return order, nil
}

// Hold parks an order; Resume returns it to where it was.
func (s *Service) Hold(ctx context.Context, id int64, reason, actor string) (Order, error) {
	return s.UpdateStatus(ctx, StatusUpdate{OrderID: id, Status: StatusOnHold, Reason: reason, Actor: actor})
}

// Resume moves an OnHold order back to its prior status.
func (s *Service) Resume(ctx context.Context, id int64, actor string) (Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if order.Status != StatusOnHold {
		return Order{}, &shared.InvalidStatusTransitionError{Entity: "sales order " + order.Number, Current: string(order.Status), Requested: "RESUME"}
	}
	return s.UpdateStatus(ctx, StatusUpdate{OrderID: id, Status: order.HeldFrom, Actor: actor})
}

// UpdateItems replaces an order's lines. Processing orders are revalidated
// against availability that excludes their own holds, then re-reserved and
// re-invoiced in the same unit of work.
func (s *Service) UpdateItems(ctx context.Context, id int64, inputs []ItemInput, actor string) (Order, error) {
	items, err := buildItems(inputs)
	if err != nil {
		return Order{}, err
	}
	var fx effects
	var order Order
	err = s.runner.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		order, err = uow.Orders().GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch order.Status {
		case StatusNew:
			for _, it := range items {
				if _, err := uow.Stock().GetProduct(ctx, it.ProductID); err != nil {
					return err
				}
			}
		case StatusProcessing:
			if err := s.revalidate(ctx, uow, &order, items, actor, &fx); err != nil {
				return err
			}
		default:
			return ErrNotEditable
		}
		order.Items = items
		order.price()
		order.UpdatedAt = s.clock.Now()
		if err := uow.Orders().ReplaceItems(ctx, order.ID, order.Items); err != nil {
			return err
		}
		if err := uow.Orders().UpdateOrder(ctx, order); err != nil {
			return err
		}
		if order.Status == StatusProcessing {
			inv, err := s.invoices.CreateFromOrder(ctx, uow.Invoices(), snapshot(&order, actor))
			if err != nil {
				return err
			}
			fx.invoice = &inv
		}
		order, err = uow.Orders().GetOrder(ctx, order.ID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.notify(ctx, fx.products)
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		Actor: actor, Action: "sales:update_items", Entity: "sales_order", EntityID: order.Number,
		Meta: map[string]any{"items": len(order.Items), "total": order.TotalAmount.StringFixed(2)},
	})
	return order, nil
}

func (s *Service) revalidate(ctx context.Context, uow UnitOfWork, order *Order, items []Item, actor string, fx *effects) error {
	st := uow.Stock()
	lines, err := stock.MergeLines(orderLines(items))
	if err != nil {
		return err
	}
	products, err := stock.LockProducts(ctx, st, productIDs(lines))
	if err != nil {
		return err
	}
	for _, line := range lines {
		available, err := stock.AvailableStockExcluding(ctx, st, line.ProductID, order.Number)
		if err != nil {
			return err
		}
		if available < line.Quantity {
			return &shared.InsufficientStockError{
				ProductID: line.ProductID,
				SKU:       products[line.ProductID].SKU,
				Requested: line.Quantity,
				Available: available,
				Context:   "Cannot update order",
			}
		}
	}
	inv, err := uow.Invoices().FindBySalesOrder(ctx, order.ID)
	switch {
	case err == nil:
		if inv.Status != invoicing.StatusDraft {
			return fmt.Errorf("%w: sales: invoice %s is already %s", ErrNotEditable, inv.Number, strings.ToLower(string(inv.Status)))
		}
		if err := s.invoices.DeleteDraft(ctx, uow.Invoices(), inv.ID); err != nil {
			return err
		}
	case !errors.Is(err, invoicing.ErrInvoiceNotFound):
		return err
	}

	held, err := st.ListReservations(ctx, stock.ReservationFilter{Reference: order.Number, ActiveOnly: true})
	if err != nil {
		return err
	}
	for _, r := range held {
		fx.touch(r.ProductID)
	}
	if _, err := s.reservations.ReleaseAllByReference(ctx, st, order.Number, actor); err != nil {
		return err
	}
	if _, err := s.reservations.Reserve(ctx, st, stock.ReserveInput{
		Items:        lines,
		SalesOrderID: order.ID,
		Reference:    order.Number,
		Actor:        actor,
		Reason:       "sales order " + order.Number + " amended",
	}); err != nil {
		return err
	}
	fx.touch(productIDs(lines)...)
	return nil
}

func (s *Service) afterCommit(ctx context.Context, order Order, from Status, actor string, fx effects) {
	s.notify(ctx, fx.products)
	for _, m := range fx.movements {
		s.metrics.MovementRecorded(string(m.Kind))
	}
	s.metrics.Transition("sales_order", string(from), string(order.Status))
	if fx.invoice != nil {
		s.metrics.Transition("invoice", "", string(fx.invoice.Status))
	}
	s.logger.Info("sales order transitioned",
		slog.String("order", order.Number),
		slog.String("from", string(from)),
		slog.String("to", string(order.Status)),
		slog.Int("movements", len(fx.movements)),
		slog.Int("released", fx.released))
	meta := map[string]any{"from": string(from), "to": string(order.Status), "movements": len(fx.movements), "released": fx.released}
	if fx.invoice != nil {
		meta["invoice"] = fx.invoice.Number
		meta["invoice_status"] = string(fx.invoice.Status)
	}
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		Actor: actor, Action: "sales:status", Entity: "sales_order", EntityID: order.Number, Meta: meta,
	})
}

func (s *Service) notify(ctx context.Context, ids []int64) {
	if s.notifier != nil && len(ids) > 0 {
		s.notifier.Invalidate(ctx, ids...)
	}
}
