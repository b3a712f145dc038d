package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

type stockStore struct {
	st *state
}

var _ stock.Store = (*stockStore)(nil)

func (s *stockStore) InsertProduct(_ context.Context, p stock.Product) (int64, error) {
	for _, existing := range s.st.products {
		if existing.SKU == p.SKU {
			return 0, stock.ErrDuplicateSKU
		}
	}
	p.ID = s.st.next("products")
	p.CurrentStock = 0
	p.UpdatedAt = time.Now().UTC()
	s.st.products[p.ID] = p
	return p.ID, nil
}

func (s *stockStore) GetProduct(_ context.Context, id int64) (stock.Product, error) {
	p, ok := s.st.products[id]
	if !ok {
		return stock.Product{}, stock.ErrProductNotFound
	}
	return p, nil
}

func (s *stockStore) GetProductForUpdate(ctx context.Context, id int64) (stock.Product, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return stock.Product{}, err
	}
	p.Version++
	s.st.products[id] = p
	return p, nil
}

func (s *stockStore) UpdateProductStock(_ context.Context, id, currentStock int64, at time.Time) error {
	p, ok := s.st.products[id]
	if !ok {
		return stock.ErrProductNotFound
	}
	p.CurrentStock = currentStock
	p.UpdatedAt = at
	s.st.products[id] = p
	return nil
}

func (s *stockStore) ListProductIDs(context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(s.st.products))
	for id := range s.st.products {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *stockStore) InsertMovement(_ context.Context, m stock.Movement) (int64, error) {
	if _, ok := s.st.products[m.ProductID]; !ok {
		return 0, stock.ErrProductNotFound
	}
	m.ID = s.st.next("stock_movements")
	m.IsDeleted = false
	s.st.movements = append(s.st.movements, m)
	return m.ID, nil
}

func (s *stockStore) movementIndex(id int64) int {
	return slices.IndexFunc(s.st.movements, func(m stock.Movement) bool { return m.ID == id })
}

func (s *stockStore) GetMovement(_ context.Context, id int64) (stock.Movement, error) {
	idx := s.movementIndex(id)
	if idx < 0 {
		return stock.Movement{}, stock.ErrMovementNotFound
	}
	return s.st.movements[idx], nil
}

func (s *stockStore) ListMovements(_ context.Context, filter stock.MovementFilter) ([]stock.Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	out := []stock.Movement{}
	for _, m := range s.st.movements {
		if m.IsDeleted && !filter.IncludeDeleted {
			continue
		}
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.Reference != "" && m.Reference != filter.Reference {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stockStore) SetMovementDeleted(_ context.Context, id int64, deleted bool) error {
	idx := s.movementIndex(id)
	if idx < 0 {
		return stock.ErrMovementNotFound
	}
	s.st.movements[idx].IsDeleted = deleted
	return nil
}

func (s *stockStore) SumMovements(_ context.Context, productID int64) (int64, error) {
	var sum int64
	for _, m := range s.st.movements {
		if m.ProductID == productID {
			sum += m.Quantity
		}
	}
	return sum, nil
}

func (s *stockStore) InsertReservation(_ context.Context, r stock.Reservation) (int64, error) {
	if _, ok := s.st.products[r.ProductID]; !ok {
		return 0, stock.ErrProductNotFound
	}
	r.ID = s.st.next("stock_reservations")
	r.IsReleased = false
	r.ReleasedAt = nil
	r.ReleasedBy = ""
	s.st.reservations = append(s.st.reservations, r)
	return r.ID, nil
}

func (s *stockStore) GetReservation(_ context.Context, id int64) (stock.Reservation, error) {
	for _, r := range s.st.reservations {
		if r.ID == id {
			return r, nil
		}
	}
	return stock.Reservation{}, &shared.ReservationNotFoundError{ReservationID: id}
}

func (s *stockStore) ListReservations(_ context.Context, filter stock.ReservationFilter) ([]stock.Reservation, error) {
	out := []stock.Reservation{}
	for _, r := range s.st.reservations {
		if filter.ProductID != 0 && r.ProductID != filter.ProductID {
			continue
		}
		if filter.Reference != "" && r.Reference != filter.Reference {
			continue
		}
		if filter.ActiveOnly && r.IsReleased {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *stockStore) SumActiveReserved(_ context.Context, productID int64, excludeRef string) (int64, error) {
	var sum int64
	for _, r := range s.st.reservations {
		if r.ProductID != productID || r.IsReleased {
			continue
		}
		if excludeRef != "" && r.Reference == excludeRef {
			continue
		}
		sum += r.Quantity
	}
	return sum, nil
}

func (s *stockStore) MarkReleased(_ context.Context, ids []int64, at time.Time, actor string) (int, error) {
	released := 0
	for i := range s.st.reservations {
		r := &s.st.reservations[i]
		if r.IsReleased || !slices.Contains(ids, r.ID) {
			continue
		}
		r.IsReleased = true
		r.ReleasedAt = &at
		r.ReleasedBy = actor
		released++
	}
	return released, nil
}
