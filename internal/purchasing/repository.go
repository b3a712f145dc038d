package purchasing

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

const orderColumns = `id, number, supplier_id, status, order_date, expected_date, total_amount, notes, status_reason,
created_by, approved_by, approved_at, sent_at, received_at, cancelled_at, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.SupplierID, &o.Status, &o.OrderDate, &o.ExpectedDate, &o.TotalAmount,
		&o.Notes, &o.StatusReason, &o.CreatedBy, &o.ApprovedBy, &o.ApprovedAt, &o.SentAt, &o.ReceivedAt,
		&o.CancelledAt, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func (r *TxRepository) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders
(number, supplier_id, status, order_date, expected_date, total_amount, notes, status_reason, created_by, approved_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,'',$8,'',$9,$9) RETURNING id`,
		o.Number, o.SupplierID, o.Status, o.OrderDate, o.ExpectedDate, o.TotalAmount, o.Notes, o.CreatedBy, o.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	batch := &pgx.Batch{}
	for _, it := range o.Items {
		batch.Queue(`INSERT INTO purchase_order_items
(order_id, product_id, description, ordered_quantity, received_quantity, unit_cost, line_total)
VALUES ($1,$2,$3,$4,0,$5,$6)`, id, it.ProductID, it.Description, it.OrderedQuantity, it.UnitCost, it.LineTotal)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *TxRepository) load(ctx context.Context, query string, id int64) (Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, query, id))
	if err != nil {
		return Order{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT `+itemColumns+` FROM purchase_order_items WHERE order_id=$1 ORDER BY id`, o.ID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	o.Items = []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func (r *TxRepository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1`, id)
}

func (r *TxRepository) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id)
}

func (r *TxRepository) UpdateOrder(ctx context.Context, o Order) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET
status=$2, status_reason=$3, approved_by=$4, approved_at=$5, sent_at=$6, received_at=$7, cancelled_at=$8, updated_at=$9
WHERE id=$1`,
		o.ID, o.Status, o.StatusReason, o.ApprovedBy, o.ApprovedAt, o.SentAt, o.ReceivedAt, o.CancelledAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

const itemColumns = `id, order_id, product_id, description, ordered_quantity, received_quantity, unit_cost, line_total`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Description, &it.OrderedQuantity,
		&it.ReceivedQuantity, &it.UnitCost, &it.LineTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return it, err
}

func (r *TxRepository) GetItem(ctx context.Context, itemID int64) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM purchase_order_items WHERE id=$1`, itemID))
}

func (r *TxRepository) UpdateItemReceived(ctx context.Context, itemID, receivedQuantity int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_order_items SET received_quantity=$2 WHERE id=$1`, itemID, receivedQuantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *TxRepository) InsertReceipt(ctx context.Context, rc Receipt) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_receipts
(order_id, item_id, product_id, quantity, movement_id, notes, received_by, received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		rc.OrderID, rc.ItemID, rc.ProductID, rc.Quantity, rc.MovementID, rc.Notes, rc.ReceivedBy, rc.ReceivedAt).Scan(&id)
	return id, err
}

func (r *TxRepository) ListReceipts(ctx context.Context, orderID int64) ([]Receipt, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, order_id, item_id, product_id, quantity, movement_id, notes, received_by, received_at
FROM purchase_receipts WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Receipt{}
	for rows.Next() {
		var rc Receipt
		if err := rows.Scan(&rc.ID, &rc.OrderID, &rc.ItemID, &rc.ProductID, &rc.Quantity, &rc.MovementID,
			&rc.Notes, &rc.ReceivedBy, &rc.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

const returnColumns = `id, number, order_id, status, reason, total_amount, refund_amount, rejected_reason,
created_by, approved_by, approved_at, processed_by, processed_at, created_at, updated_at`

func scanReturn(row pgx.Row) (Return, error) {
	var rt Return
	err := row.Scan(&rt.ID, &rt.Number, &rt.OrderID, &rt.Status, &rt.Reason, &rt.TotalAmount, &rt.RefundAmount,
		&rt.RejectedReason, &rt.CreatedBy, &rt.ApprovedBy, &rt.ApprovedAt, &rt.ProcessedBy, &rt.ProcessedAt,
		&rt.CreatedAt, &rt.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Return{}, ErrReturnNotFound
	}
	return rt, err
}

func (r *TxRepository) InsertReturn(ctx context.Context, rt Return) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_returns
(number, order_id, status, reason, total_amount, refund_amount, rejected_reason, created_by, approved_by, processed_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,'',$7,'','',$8,$8) RETURNING id`,
		rt.Number, rt.OrderID, rt.Status, rt.Reason, rt.TotalAmount, rt.RefundAmount, rt.CreatedBy, rt.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	batch := &pgx.Batch{}
	for _, it := range rt.Items {
		batch.Queue(`INSERT INTO purchase_return_items
(return_id, order_item_id, product_id, quantity, unit_cost, line_total, refund_processed)
VALUES ($1,$2,$3,$4,$5,$6,FALSE)`, id, it.OrderItemID, it.ProductID, it.Quantity, it.UnitCost, it.LineTotal)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, err
	}
	return id, nil
}

const returnItemColumns = `id, return_id, order_item_id, product_id, quantity, unit_cost, line_total,
refund_processed, processed_at, COALESCE(movement_id, 0)`

func scanReturnItem(row pgx.Row, it *ReturnItem, extra ...any) error {
	dest := []any{&it.ID, &it.ReturnID, &it.OrderItemID, &it.ProductID, &it.Quantity, &it.UnitCost,
		&it.LineTotal, &it.RefundProcessed, &it.ProcessedAt, &it.MovementID}
	return row.Scan(append(dest, extra...)...)
}

func (r *TxRepository) loadReturn(ctx context.Context, query string, id int64) (Return, error) {
	rt, err := scanReturn(r.tx.QueryRow(ctx, query, id))
	if err != nil {
		return Return{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT `+returnItemColumns+` FROM purchase_return_items WHERE return_id=$1 ORDER BY id`, rt.ID)
	if err != nil {
		return Return{}, err
	}
	defer rows.Close()
	rt.Items = []ReturnItem{}
	for rows.Next() {
		var it ReturnItem
		if err := scanReturnItem(rows, &it); err != nil {
			return Return{}, err
		}
		rt.Items = append(rt.Items, it)
	}
	return rt, rows.Err()
}

func (r *TxRepository) GetReturn(ctx context.Context, id int64) (Return, error) {
	return r.loadReturn(ctx, `SELECT `+returnColumns+` FROM purchase_returns WHERE id=$1`, id)
}

func (r *TxRepository) GetReturnForUpdate(ctx context.Context, id int64) (Return, error) {
	return r.loadReturn(ctx, `SELECT `+returnColumns+` FROM purchase_returns WHERE id=$1 FOR UPDATE`, id)
}

func (r *TxRepository) UpdateReturn(ctx context.Context, rt Return) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_returns SET
status=$2, refund_amount=$3, rejected_reason=$4, approved_by=$5, approved_at=$6, processed_by=$7, processed_at=$8, updated_at=$9
WHERE id=$1`,
		rt.ID, rt.Status, rt.RefundAmount, rt.RejectedReason, rt.ApprovedBy, rt.ApprovedAt, rt.ProcessedBy, rt.ProcessedAt, rt.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReturnNotFound
	}
	return nil
}

func (r *TxRepository) UpdateReturnItem(ctx context.Context, it ReturnItem) error {
	var movementID *int64
	if it.MovementID != 0 {
		movementID = &it.MovementID
	}
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_return_items SET refund_processed=$2, processed_at=$3, movement_id=$4 WHERE id=$1`,
		it.ID, it.RefundProcessed, it.ProcessedAt, movementID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReturnNotFound
	}
	return nil
}

func (r *TxRepository) ListReturnLines(ctx context.Context, orderID int64) ([]ReturnLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT i.id, i.return_id, i.order_item_id, i.product_id, i.quantity, i.unit_cost, i.line_total,
i.refund_processed, i.processed_at, COALESCE(i.movement_id, 0), r.status
FROM purchase_return_items i JOIN purchase_returns r ON r.id = i.return_id
WHERE r.order_id=$1 ORDER BY i.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ReturnLine{}
	for rows.Next() {
		var line ReturnLine
		if err := scanReturnItem(rows, &line.ReturnItem, &line.Status); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}
