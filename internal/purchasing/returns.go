package purchasing

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

// ReturnItemInput requests a quantity of one order line back to the supplier.
type ReturnItemInput struct {
	OrderItemID int64
	Quantity    int64
}

// CreateReturnInput describes a supplier return.
type CreateReturnInput struct {
	OrderID int64
	Reason  string
	Items   []ReturnItemInput
	Actor   string
}

// Returnable computes, per order line, received minus quantities already
// claimed by non-rejected returns. It is always derived from return history.
func Returnable(order Order, history []ReturnLine) map[int64]int64 {
	out := make(map[int64]int64, len(order.Items))
	for _, it := range order.Items {
		out[it.ID] = it.ReceivedQuantity
	}
	for _, line := range history {
		if line.Status.Counts() {
			out[line.OrderItemID] -= line.Quantity
		}
	}
	return out
}

// CreateReturn records a Pending return after checking eligibility per line.
func (s *Service) CreateReturn(ctx context.Context, in CreateReturnInput) (Return, error) {
	if len(in.Items) == 0 {
		return Return{}, ErrNoItems
	}
	if strings.TrimSpace(in.Reason) == "" {
		return Return{}, fmt.Errorf("%w: purchasing: return reason required", shared.ErrValidation)
	}
	requested := make(map[int64]int64, len(in.Items))
	order := make([]int64, 0, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return Return{}, shared.NewInvalidQuantity("return quantity", it.Quantity, "must be positive")
		}
		if _, seen := requested[it.OrderItemID]; !seen {
			order = append(order, it.OrderItemID)
		}
		requested[it.OrderItemID] += it.Quantity
	}

	var ret Return
	err := s.runner.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		po, err := uow.Orders().GetOrderForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		switch po.Status {
		case StatusPartiallyReceived, StatusReceived, StatusPartiallyReturned:
		default:
			return &shared.InvalidStatusTransitionError{Entity: "purchase order " + po.Number, Current: string(po.Status), Requested: string(StatusPartiallyReturned)}
		}
		history, err := uow.Orders().ListReturnLines(ctx, po.ID)
		if err != nil {
			return err
		}
		eligible := Returnable(po, history)

		now := s.clock.Now()
		ret = Return{
			Number:       shared.NewDocumentNumber("PRN", now),
			OrderID:      po.ID,
			Status:       ReturnPending,
			Reason:       strings.TrimSpace(in.Reason),
			TotalAmount:  decimal.Zero,
			RefundAmount: decimal.Zero,
			CreatedBy:    in.Actor,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		for _, itemID := range order {
			idx := itemIndex(po.Items, itemID)
			if idx < 0 {
				return fmt.Errorf("%w: %d on %s", ErrItemNotFound, itemID, po.Number)
			}
			line := po.Items[idx]
			qty := requested[itemID]
			if qty > eligible[itemID] {
				return &shared.InvalidQuantityError{
					Field:    "return quantity",
					Quantity: shared.FormatQuantity(qty),
					Reason:   fmt.Sprintf("only %s of item %d can still be returned", shared.FormatQuantity(eligible[itemID]), itemID),
				}
			}
			total := line.UnitCost.Mul(decimal.NewFromInt(qty)).Round(2)
			ret.Items = append(ret.Items, ReturnItem{
				OrderItemID: itemID,
				ProductID:   line.ProductID,
				Quantity:    qty,
				UnitCost:    line.UnitCost,
				LineTotal:   total,
			})
			ret.TotalAmount = ret.TotalAmount.Add(total)
		}
		id, err := uow.Orders().InsertReturn(ctx, ret)
		if err != nil {
			return fmt.Errorf("purchasing: insert return: %w", err)
		}
		ret, err = uow.Orders().GetReturn(ctx, id)
		return err
	})
	if err != nil {
		return Return{}, err
	}
	s.recordAudit(ctx, in.Actor, "purchasing:return_create", ret.Number, map[string]any{"order_id": in.OrderID, "total": ret.TotalAmount.StringFixed(2)})
	return ret, nil
}

// GetReturn loads a supplier return.
func (s *Service) GetReturn(ctx context.Context, id int64) (Return, error) {
	var ret Return
	err := s.runner.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		ret, err = uow.Orders().GetReturn(ctx, id)
		return err
	})
	return ret, err
}

// ApproveReturn approves a Pending return. No stock moves yet.
func (s *Service) ApproveReturn(ctx context.Context, id int64, actor string) (Return, error) {
	return s.decideReturn(ctx, id, ReturnApproved, "", actor)
}

// RejectReturn rejects a Pending return, freeing its quantities for later returns.
func (s *Service) RejectReturn(ctx context.Context, id int64, reason, actor string) (Return, error) {
	return s.decideReturn(ctx, id, ReturnRejected, reason, actor)
}

func (s *Service) decideReturn(ctx context.Context, id int64, to ReturnStatus, reason, actor string) (Return, error) {
	var ret Return
	err := s.runner.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		ret, err = uow.Orders().GetReturnForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if ret.Status != ReturnPending {
			return &shared.InvalidStatusTransitionError{Entity: "purchase return " + ret.Number, Current: string(ret.Status), Requested: string(to)}
		}
		now := s.clock.Now()
		ret.Status = to
		if to == ReturnApproved {
			ret.ApprovedBy = actor
			ret.ApprovedAt = &now
		} else {
			ret.RejectedReason = reason
		}
		ret.UpdatedAt = now
		return uow.Orders().UpdateReturn(ctx, ret)
	})
	if err != nil {
		return Return{}, err
	}
	s.metrics.Transition("purchase_return", string(ReturnPending), string(to))
	s.recordAudit(ctx, actor, "purchasing:return_"+strings.ToLower(string(to)), ret.Number, map[string]any{"reason": reason})
	return ret, nil
}

// ProcessReturnInput selects the return lines to ship back. Empty ItemIDs
// processes every remaining line.
type ProcessReturnInput struct {
	ReturnID int64
	ItemIDs  []int64
	Actor    string
}

// ProcessReturn books a stock-out per processed line, flags refundProcessed
// and updates the purchase order's return status, all in one unit of work.
func (s *Service) ProcessReturn(ctx context.Context, in ProcessReturnInput) (Return, error) {
	var (
		ret       Return
		poFrom    Status
		poTo      Status
		movements []stock.Movement
	)
	err := s.runner.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		ret, err = uow.Orders().GetReturnForUpdate(ctx, in.ReturnID)
		if err != nil {
			return err
		}
		switch ret.Status {
		case ReturnApproved:
		case ReturnProcessed:
			return &shared.AlreadyProcessedError{Entity: "purchase return", ID: ret.Number}
		default:
			return &shared.InvalidStatusTransitionError{Entity: "purchase return " + ret.Number, Current: string(ret.Status), Requested: string(ReturnProcessed)}
		}
		po, err := uow.Orders().GetOrderForUpdate(ctx, ret.OrderID)
		if err != nil {
			return err
		}
		poFrom = po.Status

		selected, err := selectReturnItems(ret, in.ItemIDs)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(selected))
		for _, idx := range selected {
			ids = append(ids, ret.Items[idx].ProductID)
		}
		if _, err := stock.LockProducts(ctx, uow.Stock(), ids); err != nil {
			return err
		}

		now := s.clock.Now()
		for _, idx := range selected {
			item := &ret.Items[idx]
			m, err := s.ledger.RecordMovement(ctx, uow.Stock(), stock.MovementInput{
				ProductID: item.ProductID,
				Quantity:  -item.Quantity,
				Kind:      stock.KindStockOut,
				Reference: ret.Number,
				Reason:    "return to supplier: " + ret.Reason,
				Actor:     in.Actor,
			})
			if err != nil {
				return err
			}
			movements = append(movements, m)
			item.RefundProcessed = true
			item.ProcessedAt = &now
			item.MovementID = m.ID
			if err := uow.Orders().UpdateReturnItem(ctx, *item); err != nil {
				return err
			}
			ret.RefundAmount = ret.RefundAmount.Add(item.LineTotal)
		}
		if allProcessed(ret.Items) {
			ret.Status = ReturnProcessed
			ret.ProcessedBy = in.Actor
			ret.ProcessedAt = &now
		}
		ret.UpdatedAt = now
		if err := uow.Orders().UpdateReturn(ctx, ret); err != nil {
			return err
		}

		history, err := uow.Orders().ListReturnLines(ctx, po.ID)
		if err != nil {
			return err
		}
		poTo = returnStatus(po, history)
		if err := checkTransition(po, poTo); err != nil {
			return err
		}
		po.Status = poTo
		po.UpdatedAt = now
		return uow.Orders().UpdateOrder(ctx, po)
	})
	if err != nil {
		return Return{}, err
	}
	touched := make([]int64, 0, len(movements))
	for _, m := range movements {
		touched = append(touched, m.ProductID)
		s.metrics.MovementRecorded(string(m.Kind))
	}
	s.notify(ctx, touched...)
	s.metrics.Transition("purchase_order", string(poFrom), string(poTo))
	if ret.Status == ReturnProcessed {
		s.metrics.Transition("purchase_return", string(ReturnApproved), string(ReturnProcessed))
	}
	s.logger.Info("purchase return processed",
		slog.String("return", ret.Number),
		slog.Int("lines", len(movements)),
		slog.String("status", string(ret.Status)),
		slog.String("order_status", string(poTo)))
	s.recordAudit(ctx, in.Actor, "purchasing:return_process", ret.Number, map[string]any{
		"lines": len(movements), "refund": ret.RefundAmount.StringFixed(2), "order_status": string(poTo),
	})
	return ret, nil
}

func selectReturnItems(ret Return, itemIDs []int64) ([]int, error) {
	var selected []int
	if len(itemIDs) == 0 {
		for i, it := range ret.Items {
			if !it.RefundProcessed {
				selected = append(selected, i)
			}
		}
		return selected, nil
	}
	for _, id := range compact(itemIDs) {
		idx := slices.IndexFunc(ret.Items, func(it ReturnItem) bool { return it.ID == id })
		if idx < 0 {
			return nil, fmt.Errorf("%w: return item %d not on %s", shared.ErrValidation, id, ret.Number)
		}
		if ret.Items[idx].RefundProcessed {
			return nil, &shared.AlreadyProcessedError{Entity: "return item", ID: fmt.Sprintf("%d", id), Detail: "already shipped back on " + ret.Number}
		}
		selected = append(selected, idx)
	}
	return selected, nil
}

func compact(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func allProcessed(items []ReturnItem) bool {
	for _, it := range items {
		if !it.RefundProcessed {
			return false
		}
	}
	return true
}

// returnStatus derives the order status from processed return history.
func returnStatus(po Order, history []ReturnLine) Status {
	var received, returned int64
	for _, it := range po.Items {
		received += it.ReceivedQuantity
	}
	for _, line := range history {
		if line.RefundProcessed {
			returned += line.Quantity
		}
	}
	if received > 0 && returned >= received {
		return StatusReturned
	}
	return StatusPartiallyReturned
}
