package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
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

const orderColumns = `id, number, customer_id, status, held_from, order_date, shipped_date, delivered_date,
cancelled_at, returned_at, sub_total, tax_amount, discount_amount, total_amount, notes, status_reason,
created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.CustomerID, &o.Status, &o.HeldFrom, &o.OrderDate, &o.ShippedDate,
		&o.DeliveredDate, &o.CancelledAt, &o.ReturnedAt, &o.SubTotal, &o.TaxAmount, &o.DiscountAmount,
		&o.TotalAmount, &o.Notes, &o.StatusReason, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func (r *TxRepository) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_orders
(number, customer_id, status, held_from, order_date, sub_total, tax_amount, discount_amount, total_amount,
 notes, status_reason, created_by, created_at, updated_at, is_deleted)
VALUES ($1,$2,$3,'',$4,$5,$6,$7,$8,$9,'',$10,$11,$11,FALSE) RETURNING id`,
		o.Number, o.CustomerID, o.Status, o.OrderDate, o.SubTotal, o.TaxAmount, o.DiscountAmount, o.TotalAmount,
		o.Notes, o.CreatedBy, o.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	if err := r.insertItems(ctx, id, o.Items); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *TxRepository) load(ctx context.Context, query string, id int64) (Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, query, id))
	if err != nil {
		return Order{}, err
	}
	o.Items, err = r.listItems(ctx, o.ID)
	return o, err
}

func (r *TxRepository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id=$1 AND is_deleted = FALSE`, id)
}

func (r *TxRepository) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id=$1 AND is_deleted = FALSE FOR UPDATE`, id)
}

func (r *TxRepository) UpdateOrder(ctx context.Context, o Order) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sales_orders SET
status=$2, held_from=$3, shipped_date=$4, delivered_date=$5, cancelled_at=$6, returned_at=$7,
sub_total=$8, tax_amount=$9, discount_amount=$10, total_amount=$11, notes=$12, status_reason=$13, updated_at=$14
WHERE id=$1`,
		o.ID, o.Status, o.HeldFrom, o.ShippedDate, o.DeliveredDate, o.CancelledAt, o.ReturnedAt,
		o.SubTotal, o.TaxAmount, o.DiscountAmount, o.TotalAmount, o.Notes, o.StatusReason, o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *TxRepository) ReplaceItems(ctx context.Context, orderID int64, items []Item) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM sales_order_items WHERE order_id=$1`, orderID); err != nil {
		return err
	}
	return r.insertItems(ctx, orderID, items)
}

func (r *TxRepository) insertItems(ctx context.Context, orderID int64, items []Item) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO sales_order_items
(order_id, product_id, description, quantity, unit_price, discount_percent, tax_percent, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			orderID, it.ProductID, it.Description, it.Quantity, it.UnitPrice, it.DiscountPercent, it.TaxPercent, it.LineTotal)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *TxRepository) listItems(ctx context.Context, orderID int64) ([]Item, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, order_id, product_id, description, quantity, unit_price, discount_percent, tax_percent, line_total
FROM sales_order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Description, &it.Quantity, &it.UnitPrice,
			&it.DiscountPercent, &it.TaxPercent, &it.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *TxRepository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+orderColumns+` FROM sales_orders
WHERE is_deleted = FALSE AND ($1 = '' OR status = $1) AND ($2 = 0 OR customer_id = $2)
ORDER BY id DESC LIMIT $3`, string(filter.Status), filter.CustomerID, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
