package stock

import (
	"context"
	"time"
)

// Store is the transaction-scoped persistence the stock components need.
// Implementations must hold row locks taken by GetProductForUpdate until the
// enclosing unit of work ends, and a unit of work that waited on such a lock
// must either see the holder's writes or fail with a retryable conflict.
type Store interface {
	InsertProduct(ctx context.Context, p Product) (int64, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	UpdateProductStock(ctx context.Context, id, currentStock int64, at time.Time) error
	ListProductIDs(ctx context.Context) ([]int64, error)

	InsertMovement(ctx context.Context, m Movement) (int64, error)
	GetMovement(ctx context.Context, id int64) (Movement, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	SetMovementDeleted(ctx context.Context, id int64, deleted bool) error
	SumMovements(ctx context.Context, productID int64) (int64, error)

	InsertReservation(ctx context.Context, r Reservation) (int64, error)
	GetReservation(ctx context.Context, id int64) (Reservation, error)
	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
	// SumActiveReserved totals unreleased reservations, skipping excludeRef when set.
	SumActiveReserved(ctx context.Context, productID int64, excludeRef string) (int64, error)
	// MarkReleased flags the given reservations released; already released rows are left alone.
	MarkReleased(ctx context.Context, ids []int64, at time.Time, actor string) (int, error)
}

// TxRunner opens one unit of work per call.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
}
