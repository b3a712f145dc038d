package stock

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// ReserveInput describes an all-or-nothing reservation request.
type ReserveInput struct {
	Items        []Line
	SalesOrderID int64
	Reference    string
	Actor        string
	Reason       string
}

// ReleaseInput selects reservations to release. Empty ProductIDs means every
// active reservation under Reference.
type ReleaseInput struct {
	Reference  string
	ProductIDs []int64
	Actor      string
}

// Reservations creates and releases holds inside a caller-provided unit of work.
type Reservations struct {
	clock shared.Clock
}

// NewReservations builds the manager.
func NewReservations(clock shared.Clock) *Reservations {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Reservations{clock: clock}
}

// Reserve validates every line against availability before inserting any row.
// The first failing product, in request order, is reported.
func (m *Reservations) Reserve(ctx context.Context, st Store, in ReserveInput) ([]Reservation, error) {
	reference := strings.TrimSpace(in.Reference)
	if reference == "" {
		return nil, ErrReferenceRequired
	}
	lines, err := MergeLines(in.Items)
	if err != nil {
		return nil, err
	}

	products, err := LockProducts(ctx, st, lineProductIDs(lines))
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		product := products[line.ProductID]
		available, err := availableFor(ctx, st, product, "")
		if err != nil {
			return nil, err
		}
		if available < line.Quantity {
			return nil, &shared.InsufficientStockError{
				ProductID: product.ID,
				SKU:       product.SKU,
				Requested: line.Quantity,
				Available: available,
				Context:   "Cannot reserve stock",
			}
		}
	}

	now := m.clock.Now()
	created := make([]Reservation, 0, len(lines))
	for _, line := range lines {
		res := Reservation{
			ProductID:    line.ProductID,
			SalesOrderID: in.SalesOrderID,
			Quantity:     line.Quantity,
			Reference:    reference,
			Reason:       in.Reason,
			ReservedBy:   in.Actor,
			ReservedAt:   now,
		}
		id, err := st.InsertReservation(ctx, res)
		if err != nil {
			return nil, fmt.Errorf("stock: insert reservation: %w", err)
		}
		res.ID = id
		created = append(created, res)
	}
	return created, nil
}

// Release marks matching active reservations released. Releasing nothing is not an error.
func (m *Reservations) Release(ctx context.Context, st Store, in ReleaseInput) (int, error) {
	reference := strings.TrimSpace(in.Reference)
	if reference == "" {
		return 0, ErrReferenceRequired
	}
	active, err := st.ListReservations(ctx, ReservationFilter{Reference: reference, ActiveOnly: true})
	if err != nil {
		return 0, err
	}
	ids := make([]int64, 0, len(active))
	for _, res := range active {
		if len(in.ProductIDs) > 0 && !slices.Contains(in.ProductIDs, res.ProductID) {
			continue
		}
		ids = append(ids, res.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return st.MarkReleased(ctx, ids, m.clock.Now(), in.Actor)
}

// ReleaseAllByReference releases every active hold of an order regardless of its current items.
func (m *Reservations) ReleaseAllByReference(ctx context.Context, st Store, reference, actor string) (int, error) {
	return m.Release(ctx, st, ReleaseInput{Reference: reference, Actor: actor})
}

// ReleaseByID releases a single reservation. Unknown ids fail; released ones are a no-op.
func (m *Reservations) ReleaseByID(ctx context.Context, st Store, id int64, actor string) (bool, error) {
	res, err := st.GetReservation(ctx, id)
	if err != nil {
		return false, err
	}
	if res.IsReleased {
		return false, nil
	}
	n, err := st.MarkReleased(ctx, []int64{id}, m.clock.Now(), actor)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReservedByProduct sums active reservations of reference per product.
func ReservedByProduct(ctx context.Context, st Store, reference string) (map[int64]int64, error) {
	active, err := st.ListReservations(ctx, ReservationFilter{Reference: reference, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	totals := make(map[int64]int64, len(active))
	for _, res := range active {
		totals[res.ProductID] += res.Quantity
	}
	return totals, nil
}

// MergeLines validates quantities and folds duplicate products, keeping first-seen order.
func MergeLines(items []Line) ([]Line, error) {
	if len(items) == 0 {
		return nil, ErrNoLines
	}
	index := make(map[int64]int, len(items))
	merged := make([]Line, 0, len(items))
	for _, item := range items {
		if item.ProductID == 0 {
			return nil, ErrProductRequired
		}
		if item.Quantity <= 0 {
			return nil, shared.NewInvalidQuantity("quantity", item.Quantity, "must be positive")
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// LockProducts takes row locks in ascending id order so concurrent units of
// work touching overlapping products cannot deadlock.
func LockProducts(ctx context.Context, st Store, ids []int64) (map[int64]Product, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	products := make(map[int64]Product, len(sorted))
	for _, id := range sorted {
		product, err := st.GetProductForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		products[id] = product
	}
	return products, nil
}

func lineProductIDs(lines []Line) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}
