package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// TxRepository implements Store on top of a pgx transaction.
type TxRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps tx.
func NewTxRepository(tx pgx.Tx) *TxRepository {
	return &TxRepository{tx: tx}
}

var _ Store = (*TxRepository)(nil)

const productColumns = `id, sku, name, current_stock, version, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.CurrentStock, &p.Version, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *TxRepository) InsertProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO products (sku, name, current_stock, updated_at)
VALUES ($1, $2, 0, NOW()) RETURNING id`, p.SKU, p.Name).Scan(&id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return 0, ErrDuplicateSKU
	}
	return id, err
}

func (r *TxRepository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

// GetProductForUpdate locks the row by writing it, so a RepeatableRead waiter
// fails with 40001 once the holder commits.
func (r *TxRepository) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `UPDATE products SET version = version + 1 WHERE id=$1 RETURNING `+productColumns, id))
}

func (r *TxRepository) UpdateProductStock(ctx context.Context, id, currentStock int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET current_stock=$2, updated_at=$3 WHERE id=$1`, id, currentStock, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *TxRepository) ListProductIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT id FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

const movementColumns = `id, product_id, quantity, kind, balance_before, balance_after, reference, reason, actor, created_at, is_deleted`

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.ProductID, &m.Quantity, &m.Kind, &m.BalanceBefore, &m.BalanceAfter,
		&m.Reference, &m.Reason, &m.Actor, &m.CreatedAt, &m.IsDeleted)
	return m, err
}

func (r *TxRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements
(product_id, quantity, kind, balance_before, balance_after, reference, reason, actor, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		m.ProductID, m.Quantity, m.Kind, m.BalanceBefore, m.BalanceAfter, m.Reference, m.Reason, m.Actor, m.CreatedAt).Scan(&id)
	return id, err
}

func (r *TxRepository) GetMovement(ctx context.Context, id int64) (Movement, error) {
	m, err := scanMovement(r.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, ErrMovementNotFound
	}
	return m, err
}

func (r *TxRepository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !filter.IncludeDeleted {
		where = append(where, "is_deleted = FALSE")
	}
	if filter.ProductID != 0 {
		add("product_id = $%d", filter.ProductID)
	}
	if filter.Reference != "" {
		add("reference = $%d", filter.Reference)
	}
	if filter.Kind != "" {
		add("kind = $%d", filter.Kind)
	}
	query := `SELECT ` + movementColumns + ` FROM stock_movements`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d", len(args))

	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *TxRepository) SetMovementDeleted(ctx context.Context, id int64, deleted bool) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_movements SET is_deleted=$2 WHERE id=$1`, id, deleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMovementNotFound
	}
	return nil
}

func (r *TxRepository) SumMovements(ctx context.Context, productID int64) (int64, error) {
	var sum int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM stock_movements WHERE product_id=$1`, productID).Scan(&sum)
	return sum, err
}

const reservationColumns = `id, product_id, COALESCE(sales_order_id, 0), quantity, reference, reason, reserved_by, reserved_at, is_released, released_at, released_by`

func scanReservation(row pgx.Row) (Reservation, error) {
	var res Reservation
	err := row.Scan(&res.ID, &res.ProductID, &res.SalesOrderID, &res.Quantity, &res.Reference, &res.Reason,
		&res.ReservedBy, &res.ReservedAt, &res.IsReleased, &res.ReleasedAt, &res.ReleasedBy)
	return res, err
}

func (r *TxRepository) InsertReservation(ctx context.Context, res Reservation) (int64, error) {
	var orderID *int64
	if res.SalesOrderID != 0 {
		orderID = &res.SalesOrderID
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_reservations
(product_id, sales_order_id, quantity, reference, reason, reserved_by, reserved_at, is_released, released_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, '') RETURNING id`,
		res.ProductID, orderID, res.Quantity, res.Reference, res.Reason, res.ReservedBy, res.ReservedAt).Scan(&id)
	return id, err
}

func (r *TxRepository) GetReservation(ctx context.Context, id int64) (Reservation, error) {
	res, err := scanReservation(r.tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM stock_reservations WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, &shared.ReservationNotFoundError{ReservationID: id}
	}
	return res, err
}

func (r *TxRepository) ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+reservationColumns+` FROM stock_reservations
WHERE ($1 = 0 OR product_id = $1)
  AND ($2 = '' OR reference = $2)
  AND (NOT $3 OR is_released = FALSE)
ORDER BY id ASC`, filter.ProductID, filter.Reference, filter.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *TxRepository) SumActiveReserved(ctx context.Context, productID int64, excludeRef string) (int64, error) {
	var sum int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM stock_reservations
WHERE product_id=$1 AND is_released = FALSE AND ($2 = '' OR reference <> $2)`, productID, excludeRef).Scan(&sum)
	return sum, err
}

func (r *TxRepository) MarkReleased(ctx context.Context, ids []int64, at time.Time, actor string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.tx.Exec(ctx, `UPDATE stock_reservations SET is_released = TRUE, released_at=$2, released_by=$3
WHERE id = ANY($1) AND is_released = FALSE`, ids, at, actor)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
