package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/invoicing"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

// StatusUpdate requests a transition. Dates default to the clock.
type StatusUpdate struct {
	OrderID       int64
	Status        Status
	ShippedDate   *time.Time
	DeliveredDate *time.Time
	Reason        string
	Actor         string
}

// effects collects what a transition did so the service can report after commit.
type effects struct {
	products  []int64
	movements []stock.Movement
	released  int
	invoice   *invoicing.Invoice
}

func (e *effects) touch(ids ...int64) { e.products = append(e.products, ids...) }

// transition validates and applies one edge inside uow. Nothing is written
// unless every step succeeds, because the caller's unit of work rolls back.
func (s *Service) transition(ctx context.Context, uow UnitOfWork, order *Order, upd StatusUpdate) (effects, error) {
	var fx effects
	to := upd.Status
	if !order.CanTransition(to) {
		return fx, &shared.InvalidStatusTransitionError{Entity: "sales order " + order.Number, Current: string(order.Status), Requested: string(to)}
	}
	now := s.clock.Now()

	if order.Status == StatusOnHold && to == order.HeldFrom {
		order.Status = order.HeldFrom
		order.HeldFrom = ""
		order.StatusReason = upd.Reason
		return fx, nil
	}

	var err error
	switch to {
	case StatusProcessing:
		err = s.reserveAndInvoice(ctx, uow, order, upd.Actor, &fx)
	case StatusShipped:
		err = s.ship(ctx, uow, order, upd.Actor, &fx)
		if err == nil {
			order.ShippedDate = dateOr(upd.ShippedDate, now)
		}
	case StatusCompleted:
		var inv invoicing.Invoice
		var sent bool
		inv, sent, err = s.invoices.Finalize(ctx, uow.Invoices(), order.ID)
		if sent {
			fx.invoice = &inv
		}
		if err == nil {
			order.DeliveredDate = dateOr(upd.DeliveredDate, now)
		}
	case StatusCancelled:
		err = s.cancel(ctx, uow, order, upd, &fx)
		if err == nil {
			order.CancelledAt = &now
		}
	case StatusReturned:
		err = s.restock(ctx, uow, order, upd, &fx)
		if err == nil {
			order.ReturnedAt = &now
		}
	case StatusOnHold:
		order.HeldFrom = order.Status
	}
	if err != nil {
		return effects{}, err
	}
	if to != StatusOnHold {
		order.HeldFrom = ""
	}
	order.Status = to
	order.StatusReason = upd.Reason
	return fx, nil
}

func (s *Service) reserveAndInvoice(ctx context.Context, uow UnitOfWork, order *Order, actor string, fx *effects) error {
	reserved, err := s.reservations.Reserve(ctx, uow.Stock(), stock.ReserveInput{
		Items:        orderLines(order.Items),
		SalesOrderID: order.ID,
		Reference:    order.Number,
		Actor:        actor,
		Reason:       "sales order " + order.Number,
	})
	if err != nil {
		return err
	}
	for _, r := range reserved {
		fx.touch(r.ProductID)
	}
	inv, err := s.invoices.CreateFromOrder(ctx, uow.Invoices(), snapshot(order, actor))
	if err != nil {
		return err
	}
	fx.invoice = &inv
	return nil
}

// ship converts the order's holds into stock-out movements and releases them.
func (s *Service) ship(ctx context.Context, uow UnitOfWork, order *Order, actor string, fx *effects) error {
	st := uow.Stock()
	lines, err := stock.MergeLines(orderLines(order.Items))
	if err != nil {
		return err
	}
	products, err := stock.LockProducts(ctx, st, productIDs(lines))
	if err != nil {
		return err
	}
	reserved, err := stock.ReservedByProduct(ctx, st, order.Number)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if reserved[line.ProductID] < line.Quantity {
			return &shared.InsufficientStockError{
				ProductID: line.ProductID,
				SKU:       products[line.ProductID].SKU,
				Requested: line.Quantity,
				Available: reserved[line.ProductID],
				Context:   "Cannot ship order",
				Reserved:  true,
			}
		}
	}
	for _, line := range lines {
		m, err := s.ledger.RecordMovement(ctx, st, stock.MovementInput{
			ProductID: line.ProductID,
			Quantity:  -reserved[line.ProductID],
			Kind:      stock.KindStockOut,
			Reference: order.Number,
			Reason:    "shipment of sales order " + order.Number,
			Actor:     actor,
		})
		if err != nil {
			return err
		}
		fx.movements = append(fx.movements, m)
		fx.touch(line.ProductID)
	}
	fx.released, err = s.reservations.Release(ctx, st, stock.ReleaseInput{Reference: order.Number, Actor: actor})
	return err
}

func (s *Service) cancel(ctx context.Context, uow UnitOfWork, order *Order, upd StatusUpdate, fx *effects) error {
	st := uow.Stock()
	held, err := st.ListReservations(ctx, stock.ReservationFilter{Reference: order.Number, ActiveOnly: true})
	if err != nil {
		return err
	}
	for _, r := range held {
		fx.touch(r.ProductID)
	}
	fx.released, err = s.reservations.ReleaseAllByReference(ctx, st, order.Number, upd.Actor)
	if err != nil {
		return err
	}
	reason := upd.Reason
	if reason == "" {
		reason = "sales order " + order.Number + " cancelled"
	}
	inv, changed, err := s.invoices.CancelForOrder(ctx, uow.Invoices(), order.ID, reason)
	if err != nil {
		return fmt.Errorf("sales: cancel invoice: %w", err)
	}
	if changed {
		fx.invoice = &inv
	}
	return nil
}

// restock books the shipped quantities back and asks billing for a refund.
func (s *Service) restock(ctx context.Context, uow UnitOfWork, order *Order, upd StatusUpdate, fx *effects) error {
	st := uow.Stock()
	lines, err := stock.MergeLines(orderLines(order.Items))
	if err != nil {
		return err
	}
	if _, err := stock.LockProducts(ctx, st, productIDs(lines)); err != nil {
		return err
	}
	reason := upd.Reason
	if reason == "" {
		reason = "return of sales order " + order.Number
	}
	for _, line := range lines {
		m, err := s.ledger.RecordMovement(ctx, st, stock.MovementInput{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Kind:      stock.KindReturn,
			Reference: order.Number,
			Reason:    reason,
			Actor:     upd.Actor,
		})
		if err != nil {
			return err
		}
		fx.movements = append(fx.movements, m)
		fx.touch(line.ProductID)
	}
	inv, changed, err := s.invoices.RefundForReturn(ctx, uow.Invoices(), order.ID, reason)
	if err != nil {
		return fmt.Errorf("sales: refund invoice: %w", err)
	}
	if changed {
		fx.invoice = &inv
	}
	return nil
}

func snapshot(order *Order, actor string) invoicing.OrderSnapshot {
	items := make([]invoicing.Item, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, invoicing.Item{
			ProductID:       it.ProductID,
			Description:     it.Description,
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice,
			DiscountPercent: it.DiscountPercent,
			TaxPercent:      it.TaxPercent,
		})
	}
	return invoicing.OrderSnapshot{
		SalesOrderID: order.ID,
		Reference:    order.Number,
		CustomerID:   order.CustomerID,
		Items:        items,
		Actor:        actor,
	}
}

func orderLines(items []Item) []stock.Line {
	lines := make([]stock.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, stock.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}

func productIDs(lines []stock.Line) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

func dateOr(t *time.Time, fallback time.Time) *time.Time {
	if t != nil && !t.IsZero() {
		v := *t
		return &v
	}
	return &fallback
}
