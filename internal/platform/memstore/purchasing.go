package memstore

import (
	"context"
	"slices"

	"github.com/odyssey-erp/odyssey-stock/internal/purchasing"
)

type purchasingStore struct {
	st *state
}

var _ purchasing.Store = (*purchasingStore)(nil)

func (s *purchasingStore) InsertOrder(_ context.Context, o purchasing.Order) (int64, error) {
	o.ID = s.st.next("purchase_orders")
	o.Items = slices.Clone(o.Items)
	for i := range o.Items {
		o.Items[i].ID = s.st.next("purchase_order_items")
		o.Items[i].OrderID = o.ID
		o.Items[i].ReceivedQuantity = 0
	}
	s.st.purchaseOrders[o.ID] = o
	return o.ID, nil
}

func (s *purchasingStore) GetOrder(_ context.Context, id int64) (purchasing.Order, error) {
	o, ok := s.st.purchaseOrders[id]
	if !ok {
		return purchasing.Order{}, purchasing.ErrOrderNotFound
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

func (s *purchasingStore) GetOrderForUpdate(ctx context.Context, id int64) (purchasing.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *purchasingStore) UpdateOrder(_ context.Context, o purchasing.Order) error {
	stored, ok := s.st.purchaseOrders[o.ID]
	if !ok {
		return purchasing.ErrOrderNotFound
	}
	stored.Status = o.Status
	stored.StatusReason = o.StatusReason
	stored.ApprovedBy = o.ApprovedBy
	stored.ApprovedAt = o.ApprovedAt
	stored.SentAt = o.SentAt
	stored.ReceivedAt = o.ReceivedAt
	stored.CancelledAt = o.CancelledAt
	stored.UpdatedAt = o.UpdatedAt
	s.st.purchaseOrders[o.ID] = stored
	return nil
}

func (s *purchasingStore) findItem(itemID int64) (purchasing.Order, int, bool) {
	for _, o := range s.st.purchaseOrders {
		if idx := slices.IndexFunc(o.Items, func(it purchasing.Item) bool { return it.ID == itemID }); idx >= 0 {
			return o, idx, true
		}
	}
	return purchasing.Order{}, -1, false
}

func (s *purchasingStore) GetItem(_ context.Context, itemID int64) (purchasing.Item, error) {
	o, idx, ok := s.findItem(itemID)
	if !ok {
		return purchasing.Item{}, purchasing.ErrItemNotFound
	}
	return o.Items[idx], nil
}

func (s *purchasingStore) UpdateItemReceived(_ context.Context, itemID, receivedQuantity int64) error {
	o, idx, ok := s.findItem(itemID)
	if !ok {
		return purchasing.ErrItemNotFound
	}
	o.Items[idx].ReceivedQuantity = receivedQuantity
	s.st.purchaseOrders[o.ID] = o
	return nil
}

func (s *purchasingStore) InsertReceipt(_ context.Context, r purchasing.Receipt) (int64, error) {
	r.ID = s.st.next("purchase_receipts")
	s.st.receipts = append(s.st.receipts, r)
	return r.ID, nil
}

func (s *purchasingStore) ListReceipts(_ context.Context, orderID int64) ([]purchasing.Receipt, error) {
	out := []purchasing.Receipt{}
	for _, r := range s.st.receipts {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *purchasingStore) InsertReturn(_ context.Context, r purchasing.Return) (int64, error) {
	if _, ok := s.st.purchaseOrders[r.OrderID]; !ok {
		return 0, purchasing.ErrOrderNotFound
	}
	r.ID = s.st.next("purchase_returns")
	r.Items = slices.Clone(r.Items)
	for i := range r.Items {
		r.Items[i].ID = s.st.next("purchase_return_items")
		r.Items[i].ReturnID = r.ID
		r.Items[i].RefundProcessed = false
	}
	s.st.returns[r.ID] = r
	return r.ID, nil
}

func (s *purchasingStore) GetReturn(_ context.Context, id int64) (purchasing.Return, error) {
	r, ok := s.st.returns[id]
	if !ok {
		return purchasing.Return{}, purchasing.ErrReturnNotFound
	}
	r.Items = slices.Clone(r.Items)
	return r, nil
}

func (s *purchasingStore) GetReturnForUpdate(ctx context.Context, id int64) (purchasing.Return, error) {
	return s.GetReturn(ctx, id)
}

func (s *purchasingStore) UpdateReturn(_ context.Context, r purchasing.Return) error {
	stored, ok := s.st.returns[r.ID]
	if !ok {
		return purchasing.ErrReturnNotFound
	}
	r.Number = stored.Number
	r.OrderID = stored.OrderID
	r.CreatedAt = stored.CreatedAt
	r.Items = stored.Items
	s.st.returns[r.ID] = r
	return nil
}

func (s *purchasingStore) UpdateReturnItem(_ context.Context, item purchasing.ReturnItem) error {
	r, ok := s.st.returns[item.ReturnID]
	if !ok {
		return purchasing.ErrReturnNotFound
	}
	idx := slices.IndexFunc(r.Items, func(it purchasing.ReturnItem) bool { return it.ID == item.ID })
	if idx < 0 {
		return purchasing.ErrReturnNotFound
	}
	r.Items[idx].RefundProcessed = item.RefundProcessed
	r.Items[idx].ProcessedAt = item.ProcessedAt
	r.Items[idx].MovementID = item.MovementID
	s.st.returns[r.ID] = r
	return nil
}

func (s *purchasingStore) ListReturnLines(_ context.Context, orderID int64) ([]purchasing.ReturnLine, error) {
	ids := make([]int64, 0)
	for id, r := range s.st.returns {
		if r.OrderID == orderID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := []purchasing.ReturnLine{}
	for _, id := range ids {
		r := s.st.returns[id]
		for _, it := range r.Items {
			out = append(out, purchasing.ReturnLine{ReturnItem: it, Status: r.Status})
		}
	}
	return out, nil
}
