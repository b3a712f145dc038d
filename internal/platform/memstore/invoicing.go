package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/invoicing"
)

type invoiceStore struct {
	st *state
}

var _ invoicing.Store = (*invoiceStore)(nil)

func (s *invoiceStore) InsertInvoice(_ context.Context, inv invoicing.Invoice) (int64, error) {
	inv.ID = s.st.next("invoices")
	inv.IsDeleted = false
	inv.Items = slices.Clone(inv.Items)
	for i := range inv.Items {
		inv.Items[i].ID = s.st.next("invoice_items")
		inv.Items[i].InvoiceID = inv.ID
	}
	s.st.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (s *invoiceStore) GetInvoice(_ context.Context, id int64) (invoicing.Invoice, error) {
	inv, ok := s.st.invoices[id]
	if !ok || inv.IsDeleted {
		return invoicing.Invoice{}, invoicing.ErrInvoiceNotFound
	}
	inv.Items = slices.Clone(inv.Items)
	return inv, nil
}

func (s *invoiceStore) GetInvoiceForUpdate(ctx context.Context, id int64) (invoicing.Invoice, error) {
	return s.GetInvoice(ctx, id)
}

func (s *invoiceStore) FindBySalesOrder(ctx context.Context, salesOrderID int64) (invoicing.Invoice, error) {
	var latest int64
	for id, inv := range s.st.invoices {
		if inv.SalesOrderID == salesOrderID && !inv.IsDeleted && id > latest {
			latest = id
		}
	}
	if latest == 0 {
		return invoicing.Invoice{}, invoicing.ErrInvoiceNotFound
	}
	return s.GetInvoice(ctx, latest)
}

func (s *invoiceStore) UpdateInvoice(_ context.Context, inv invoicing.Invoice) error {
	stored, ok := s.st.invoices[inv.ID]
	if !ok {
		return invoicing.ErrInvoiceNotFound
	}
	inv.Number = stored.Number
	inv.SalesOrderID = stored.SalesOrderID
	inv.CreatedAt = stored.CreatedAt
	inv.Items = stored.Items
	s.st.invoices[inv.ID] = inv
	return nil
}

func (s *invoiceStore) UpdateItemPricing(_ context.Context, items []invoicing.Item) error {
	for _, item := range items {
		for id, inv := range s.st.invoices {
			idx := slices.IndexFunc(inv.Items, func(it invoicing.Item) bool { return it.ID == item.ID })
			if idx < 0 {
				continue
			}
			inv.Items[idx].DiscountPercent = item.DiscountPercent
			inv.Items[idx].TaxPercent = item.TaxPercent
			inv.Items[idx].LineTotal = item.LineTotal
			s.st.invoices[id] = inv
		}
	}
	return nil
}

func (s *invoiceStore) ListOverdueCandidates(_ context.Context, asOf time.Time) ([]invoicing.Invoice, error) {
	out := []invoicing.Invoice{}
	for _, inv := range s.st.invoices {
		if inv.IsDeleted || !inv.DueDate.Before(asOf) {
			continue
		}
		if inv.Status != invoicing.StatusSent && inv.Status != invoicing.StatusPartiallyPaid {
			continue
		}
		inv.Items = slices.Clone(inv.Items)
		out = append(out, inv)
	}
	slices.SortFunc(out, func(a, b invoicing.Invoice) int {
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	return out, nil
}

func (s *invoiceStore) InsertPayment(_ context.Context, p invoicing.Payment) (int64, error) {
	if _, ok := s.st.invoices[p.InvoiceID]; !ok {
		return 0, invoicing.ErrInvoiceNotFound
	}
	p.ID = s.st.next("invoice_payments")
	s.st.payments = append(s.st.payments, p)
	return p.ID, nil
}

func (s *invoiceStore) ListPayments(_ context.Context, invoiceID int64) ([]invoicing.Payment, error) {
	out := []invoicing.Payment{}
	for _, p := range s.st.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b invoicing.Payment) int { return a.PaidAt.Compare(b.PaidAt) })
	return out, nil
}
