package memstore

import (
	"context"
	"slices"

	"github.com/odyssey-erp/odyssey-stock/internal/sales"
)

type salesStore struct {
	st *state
}

var _ sales.Store = (*salesStore)(nil)

func (s *salesStore) InsertOrder(_ context.Context, o sales.Order) (int64, error) {
	o.ID = s.st.next("sales_orders")
	o.Items = s.numberItems(o.ID, o.Items)
	s.st.salesOrders[o.ID] = o
	return o.ID, nil
}

func (s *salesStore) numberItems(orderID int64, items []sales.Item) []sales.Item {
	items = slices.Clone(items)
	for i := range items {
		items[i].ID = s.st.next("sales_order_items")
		items[i].OrderID = orderID
	}
	return items
}

func (s *salesStore) GetOrder(_ context.Context, id int64) (sales.Order, error) {
	o, ok := s.st.salesOrders[id]
	if !ok {
		return sales.Order{}, sales.ErrOrderNotFound
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

func (s *salesStore) GetOrderForUpdate(ctx context.Context, id int64) (sales.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *salesStore) UpdateOrder(_ context.Context, o sales.Order) error {
	stored, ok := s.st.salesOrders[o.ID]
	if !ok {
		return sales.ErrOrderNotFound
	}
	o.Number = stored.Number
	o.CustomerID = stored.CustomerID
	o.CreatedAt = stored.CreatedAt
	o.Items = stored.Items
	s.st.salesOrders[o.ID] = o
	return nil
}

func (s *salesStore) ReplaceItems(_ context.Context, orderID int64, items []sales.Item) error {
	o, ok := s.st.salesOrders[orderID]
	if !ok {
		return sales.ErrOrderNotFound
	}
	o.Items = s.numberItems(orderID, items)
	s.st.salesOrders[orderID] = o
	return nil
}

func (s *salesStore) ListOrders(_ context.Context, filter sales.ListFilter) ([]sales.Order, error) {
	ids := make([]int64, 0, len(s.st.salesOrders))
	for id := range s.st.salesOrders {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	slices.Reverse(ids)

	out := []sales.Order{}
	for _, id := range ids {
		o := s.st.salesOrders[id]
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.CustomerID != 0 && o.CustomerID != filter.CustomerID {
			continue
		}
		o.Items = nil
		out = append(out, o)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
