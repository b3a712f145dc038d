package invoicing

import (
	"context"
	"errors"
	"time"

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

const invoiceColumns = `id, number, sales_order_id, order_reference, customer_id, status, issue_date, due_date,
sub_total, tax_amount, discount_amount, total_amount, paid_amount, balance_amount,
refund_requested_amount, refund_reason, actual_refund_amount, refund_requested_at, refunded_date,
sent_at, paid_at, cancelled_at, notes, is_deleted, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.SalesOrderID, &inv.OrderReference, &inv.CustomerID, &inv.Status,
		&inv.IssueDate, &inv.DueDate, &inv.SubTotal, &inv.TaxAmount, &inv.DiscountAmount, &inv.TotalAmount,
		&inv.PaidAmount, &inv.BalanceAmount, &inv.RefundRequestedAmount, &inv.RefundReason, &inv.ActualRefundAmount,
		&inv.RefundRequestedAt, &inv.RefundedDate, &inv.SentAt, &inv.PaidAt, &inv.CancelledAt, &inv.Notes,
		&inv.IsDeleted, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, err
}

func (r *TxRepository) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices
(number, sales_order_id, order_reference, customer_id, status, issue_date, due_date,
 sub_total, tax_amount, discount_amount, total_amount, paid_amount, balance_amount,
 refund_requested_amount, refund_reason, actual_refund_amount, notes, is_deleted, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,0,'',0,$14,FALSE,$15,$16,$16)
RETURNING id`,
		inv.Number, inv.SalesOrderID, inv.OrderReference, inv.CustomerID, inv.Status, inv.IssueDate, inv.DueDate,
		inv.SubTotal, inv.TaxAmount, inv.DiscountAmount, inv.TotalAmount, inv.PaidAmount, inv.BalanceAmount,
		inv.Notes, inv.CreatedBy, inv.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	if err := r.insertItems(ctx, id, inv.Items); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *TxRepository) get(ctx context.Context, query string, args ...any) (Invoice, error) {
	inv, err := scanInvoice(r.tx.QueryRow(ctx, query, args...))
	if err != nil {
		return Invoice{}, err
	}
	inv.Items, err = r.listItems(ctx, inv.ID)
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (r *TxRepository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 AND is_deleted = FALSE`, id)
}

func (r *TxRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 AND is_deleted = FALSE FOR UPDATE`, id)
}

func (r *TxRepository) FindBySalesOrder(ctx context.Context, salesOrderID int64) (Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE sales_order_id=$1 AND is_deleted = FALSE
ORDER BY id DESC LIMIT 1`, salesOrderID)
}

func (r *TxRepository) UpdateInvoice(ctx context.Context, inv Invoice) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET
status=$2, due_date=$3, sub_total=$4, tax_amount=$5, discount_amount=$6, total_amount=$7,
paid_amount=$8, balance_amount=$9, refund_requested_amount=$10, refund_reason=$11, actual_refund_amount=$12,
refund_requested_at=$13, refunded_date=$14, sent_at=$15, paid_at=$16, cancelled_at=$17, notes=$18,
is_deleted=$19, updated_at=$20
WHERE id=$1`,
		inv.ID, inv.Status, inv.DueDate, inv.SubTotal, inv.TaxAmount, inv.DiscountAmount, inv.TotalAmount,
		inv.PaidAmount, inv.BalanceAmount, inv.RefundRequestedAmount, inv.RefundReason, inv.ActualRefundAmount,
		inv.RefundRequestedAt, inv.RefundedDate, inv.SentAt, inv.PaidAt, inv.CancelledAt, inv.Notes,
		inv.IsDeleted, inv.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *TxRepository) insertItems(ctx context.Context, invoiceID int64, items []Item) error {
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`INSERT INTO invoice_items
(invoice_id, product_id, description, quantity, unit_price, discount_percent, tax_percent, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			invoiceID, item.ProductID, item.Description, item.Quantity, item.UnitPrice, item.DiscountPercent, item.TaxPercent, item.LineTotal)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *TxRepository) UpdateItemPricing(ctx context.Context, items []Item) error {
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`UPDATE invoice_items SET discount_percent=$2, tax_percent=$3, line_total=$4 WHERE id=$1`,
			item.ID, item.DiscountPercent, item.TaxPercent, item.LineTotal)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *TxRepository) listItems(ctx context.Context, invoiceID int64) ([]Item, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, invoice_id, product_id, description, quantity, unit_price, discount_percent, tax_percent, line_total
FROM invoice_items WHERE invoice_id=$1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.ProductID, &it.Description, &it.Quantity, &it.UnitPrice,
			&it.DiscountPercent, &it.TaxPercent, &it.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *TxRepository) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]Invoice, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE is_deleted = FALSE AND status IN ('SENT', 'PARTIALLY_PAID') AND due_date < $1
ORDER BY due_date, id`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *TxRepository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoice_payments (invoice_id, amount, paid_at, notes, recorded_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, p.InvoiceID, p.Amount, p.PaidAt, p.Notes, p.RecordedBy, p.CreatedAt).Scan(&id)
	return id, err
}

func (r *TxRepository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, invoice_id, amount, paid_at, notes, recorded_by, created_at
FROM invoice_payments WHERE invoice_id=$1 ORDER BY paid_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Payment{}
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.PaidAt, &p.Notes, &p.RecordedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
