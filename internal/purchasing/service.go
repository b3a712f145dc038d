package purchasing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

// Metrics receives counters after commit.
type Metrics interface {
	Transition(entity, from, to string)
	MovementRecorded(kind string)
}

type noopMetrics struct{}

func (noopMetrics) Transition(string, string, string) {}
func (noopMetrics) MovementRecorded(string)           {}

// StockNotifier is told which products changed after a commit.
type StockNotifier interface {
	Invalidate(ctx context.Context, productIDs ...int64)
}

// ServiceDeps groups collaborators.
type ServiceDeps struct {
	Ledger   *stock.Ledger
	Clock    shared.Clock
	Notifier StockNotifier
	Audit    shared.AuditPort
	Metrics  Metrics
	Logger   *slog.Logger
}

// Service coordinates purchase orders, receipts and supplier returns.
type Service struct {
	runner   TxRunner
	ledger   *stock.Ledger
	clock    shared.Clock
	notifier StockNotifier
	audit    shared.AuditPort
	metrics  Metrics
	logger   *slog.Logger
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
	return &Service{
		runner:   runner,
		ledger:   ledger,
		clock:    clock,
		notifier: deps.Notifier,
		audit:    deps.Audit,
		metrics:  metrics,
		logger:   logger.With(slog.String("module", "purchasing")),
	}
}

// ItemInput is a requested purchase line.
type ItemInput struct {
	ProductID   int64
	Description string
	Quantity    int64
	UnitCost    decimal.Decimal
}

// CreateOrderInput describes a new purchase order.
type CreateOrderInput struct {
	SupplierID   int64
	ExpectedDate *time.Time
	Items        []ItemInput
	Notes        string
	Actor        string
}

// CreateOrder stores a Draft purchase order.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	if in.SupplierID == 0 {
		return Order{}, ErrSupplierRequired
	}
	if len(in.Items) == 0 {
		return Order{}, ErrNoItems
	}
	now := s.clock.Now()
	order := Order{
		Number:       shared.NewDocumentNumber("PO", now),
		SupplierID:   in.SupplierID,
		Status:       StatusDraft,
		OrderDate:    now,
		ExpectedDate: in.ExpectedDate,
		Notes:        strings.TrimSpace(in.Notes),
		CreatedBy:    in.Actor,
		CreatedAt:    now,
		UpdatedAt:    now,
		TotalAmount:  decimal.Zero,
	}
	for _, it := range in.Items {
		if it.ProductID == 0 {
			return Order{}, fmt.Errorf("%w: purchasing: product required", shared.ErrValidation)
		}
		if it.Quantity <= 0 {
			return Order{}, shared.NewInvalidQuantity("ordered quantity", it.Quantity, "must be positive")
		}
		if it.UnitCost.IsNegative() {
			return Order{}, fmt.Errorf("%w: purchasing: unit cost must not be negative", shared.ErrValidation)
		}
		line := it.UnitCost.Mul(decimal.NewFromInt(it.Quantity)).Round(2)
		order.Items = append(order.Items, Item{
			ProductID:       it.ProductID,
			Description:     it.Description,
			OrderedQuantity: it.Quantity,
			UnitCost:        it.UnitCost,
			LineTotal:       line,
		})
		order.TotalAmount = order.TotalAmount.Add(line)
	}

	err := s.runner.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		for _, it := range order.Items {
			if _, err := uow.Stock().GetProduct(ctx, it.ProductID); err != nil {
				return err
			}
		}
		id, err := uow.Orders().InsertOrder(ctx, order)
		if err != nil {
			return fmt.Errorf("purchasing: insert order: %w", err)
		}
		order, err = uow.Orders().GetOrder(ctx, id)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, in.Actor, "purchasing:create", order.Number, map[string]any{"total": order.TotalAmount.StringFixed(2)})
	return order, nil
}

// Get loads a purchase order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	var order Order
	err := s.runner.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		order, err = uow.Orders().GetOrder(ctx, id)
		return err
	})
	return order, err
}

// Receipts lists the receipt log of an order.
func (s *Service) Receipts(ctx context.Context, orderID int64) ([]Receipt, error) {
	var receipts []Receipt
	err := s.runner.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		receipts, err = uow.Orders().ListReceipts(ctx, orderID)
		return err
	})
	return receipts, err
}

// Submit sends a Draft order for approval.
func (s *Service) Submit(ctx context.Context, id int64, actor string) (Order, error) {
	return s.move(ctx, id, StatusPending, "", actor, nil)
}

// Approve approves a Pending order.
func (s *Service) Approve(ctx context.Context, id int64, actor string) (Order, error) {
	return s.move(ctx, id, StatusApproved, "", actor, func(o *Order, now time.Time) {
		o.ApprovedBy = actor
		o.ApprovedAt = &now
	})
}

// Reject returns a Pending order to Draft.
func (s *Service) Reject(ctx context.Context, id int64, reason, actor string) (Order, error) {
	return s.move(ctx, id, StatusDraft, reason, actor, nil)
}

// MarkSent records that the order went to the supplier.
func (s *Service) MarkSent(ctx context.Context, id int64, actor string) (Order, error) {
	return s.move(ctx, id, StatusSent, "", actor, func(o *Order, now time.Time) {
		o.SentAt = &now
	})
}

// Cancel cancels an order that has not received anything yet.
func (s *Service) Cancel(ctx context.Context, id int64, reason, actor string) (Order, error) {
	return s.move(ctx, id, StatusCancelled, reason, actor, func(o *Order, now time.Time) {
		o.CancelledAt = &now
	})
}

func (s *Service) move(ctx context.Context, id int64, to Status, reason, actor string, apply func(*Order, time.Time)) (Order, error) {
	var (
		order Order
		from  Status
	)
	err := s.runner.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		order, err = uow.Orders().GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = order.Status
		if err := checkTransition(order, to); err != nil {
			return err
		}
		now := s.clock.Now()
		if apply != nil {
			apply(&order, now)
		}
		order.Status = to
		order.StatusReason = reason
		order.UpdatedAt = now
		return uow.Orders().UpdateOrder(ctx, order)
	})
	if err != nil {
		return Order{}, err
	}
	s.metrics.Transition("purchase_order", string(from), string(to))
	s.recordAudit(ctx, actor, "purchasing:status", order.Number, map[string]any{"from": string(from), "to": string(to), "reason": reason})
	return order, nil
}

// ReceiveInput books goods received against one order line.
type ReceiveInput struct {
	ItemID   int64
	Quantity int64
	Notes    string
	Actor    string
}

// ReceiveItem increments the line's received quantity and books a stock-in
// movement referencing the order number, in one unit of work.
func (s *Service) ReceiveItem(ctx context.Context, in ReceiveInput) (Order, error) {
	if in.Quantity <= 0 {
		return Order{}, shared.NewInvalidQuantity("received quantity", in.Quantity, "must be positive")
	}
	var (
		order    Order
		from     Status
		movement stock.Movement
	)
	err := s.runner.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		item, err := uow.Orders().GetItem(ctx, in.ItemID)
		if err != nil {
			return err
		}
		order, err = uow.Orders().GetOrderForUpdate(ctx, item.OrderID)
		if err != nil {
			return err
		}
		from = order.Status
		if !Receivable(order.Status) {
			return fmt.Errorf("%w (status %s)", ErrNotReceivable, order.Status)
		}
		idx := itemIndex(order.Items, in.ItemID)
		if idx < 0 {
			return ErrItemNotFound
		}
		line := &order.Items[idx]
		if in.Quantity > line.Outstanding() {
			return &shared.InvalidQuantityError{
				Field:    "received quantity",
				Quantity: shared.FormatQuantity(in.Quantity),
				Reason: fmt.Sprintf("exceeds outstanding %s (ordered %s, received %s)",
					shared.FormatQuantity(line.Outstanding()), shared.FormatQuantity(line.OrderedQuantity), shared.FormatQuantity(line.ReceivedQuantity)),
			}
		}

		movement, err = s.ledger.RecordMovement(ctx, uow.Stock(), stock.MovementInput{
			ProductID: line.ProductID,
			Quantity:  in.Quantity,
			Kind:      stock.KindStockIn,
			Reference: order.Number,
			Reason:    defaultString(in.Notes, "goods receipt"),
			Actor:     in.Actor,
		})
		if err != nil {
			return err
		}
		line.ReceivedQuantity += in.Quantity
		if err := uow.Orders().UpdateItemReceived(ctx, line.ID, line.ReceivedQuantity); err != nil {
			return err
		}
		now := s.clock.Now()
		if _, err := uow.Orders().InsertReceipt(ctx, Receipt{
			OrderID:    order.ID,
			ItemID:     line.ID,
			ProductID:  line.ProductID,
			Quantity:   in.Quantity,
			MovementID: movement.ID,
			Notes:      in.Notes,
			ReceivedBy: in.Actor,
			ReceivedAt: now,
		}); err != nil {
			return err
		}

		next := StatusPartiallyReceived
		if allReceived(order.Items) {
			next = StatusReceived
		}
		// Once goods went back, the order keeps its return status.
		if order.Status == StatusPartiallyReturned || order.Status == StatusReturned {
			history, err := uow.Orders().ListReturnLines(ctx, order.ID)
			if err != nil {
				return err
			}
			next = returnStatus(order, history)
		}
		if err := checkTransition(order, next); err != nil {
			return err
		}
		order.Status = next
		if order.ReceivedAt == nil && allReceived(order.Items) {
			order.ReceivedAt = &now
		}
		order.UpdatedAt = now
		return uow.Orders().UpdateOrder(ctx, order)
	})
	if err != nil {
		return Order{}, err
	}
	s.notify(ctx, movement.ProductID)
	s.metrics.MovementRecorded(string(stock.KindStockIn))
	s.metrics.Transition("purchase_order", string(from), string(order.Status))
	s.logger.Info("purchase order item received",
		slog.String("order", order.Number),
		slog.Int64("item_id", in.ItemID),
		slog.Int64("quantity", in.Quantity),
		slog.String("status", string(order.Status)))
	s.recordAudit(ctx, in.Actor, "purchasing:receive", order.Number, map[string]any{
		"item_id": in.ItemID, "quantity": in.Quantity, "movement_id": movement.ID,
	})
	return order, nil
}

func allReceived(items []Item) bool {
	for _, it := range items {
		if it.Outstanding() > 0 {
			return false
		}
	}
	return true
}

func itemIndex(items []Item, id int64) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func (s *Service) notify(ctx context.Context, ids ...int64) {
	if s.notifier != nil && len(ids) > 0 {
		s.notifier.Invalidate(ctx, ids...)
	}
}

func (s *Service) recordAudit(ctx context.Context, actor, action, entityID string, meta map[string]any) {
	entity := "purchase_order"
	if strings.HasPrefix(action, "purchasing:return") {
		entity = "purchase_return"
	}
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		Actor: actor, Action: action, Entity: entity, EntityID: entityID, Meta: meta,
	})
}
