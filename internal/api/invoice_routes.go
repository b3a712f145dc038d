package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-stock/internal/invoicing"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
)

func (h *Handler) mountInvoices(r chi.Router) {
	r.Get("/by-order/{orderID}", h.invoiceByOrder)
	r.Get("/{id}", h.getInvoice)
	r.Patch("/{id}", h.updateDraftInvoice)
	r.Delete("/{id}", h.deleteDraftInvoice)
	r.Post("/{id}/send", h.sendInvoice)
	r.Post("/{id}/cancel", h.cancelInvoice)
	r.Get("/{id}/payments", h.listPayments)
	r.Post("/{id}/payments", h.recordPayment)
	r.Post("/{id}/refund-request", h.requestRefund)
	r.Post("/{id}/refund", h.processRefund)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.facade.Invoices.Get(r.Context(), id)
	render(w, http.StatusOK, inv, err)
}

func (h *Handler) invoiceByOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	inv, err := h.facade.Invoices.GetBySalesOrder(r.Context(), id)
	render(w, http.StatusOK, inv, err)
}

func (h *Handler) updateDraftInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req draftUpdateRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	inv, err := h.facade.Invoices.UpdateDraft(r.Context(), req.toUpdate(id))
	render(w, http.StatusOK, inv, err)
}

func (h *Handler) deleteDraftInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	err := h.facade.Invoices.DeleteDraft(r.Context(), id, actorID(r))
	render(w, http.StatusOK, err == nil, err)
}

func (h *Handler) sendInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.facade.Invoices.Send(r.Context(), id, actorID(r))
	render(w, http.StatusOK, inv, err)
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	inv, err := h.facade.Invoices.Cancel(r.Context(), id, req.Reason, actorID(r))
	render(w, http.StatusOK, inv, err)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	payments, err := h.facade.Invoices.ListPayments(r.Context(), id)
	if payments == nil && err == nil {
		payments = []invoicing.Payment{}
	}
	render(w, http.StatusOK, payments, err)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req paymentRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	var paidAt time.Time
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC()
	}
	httpx.Render(w, http.StatusOK, h.facade.RecordPayment(r.Context(), id, req.Amount, paidAt, req.Notes, actorID(r)))
}

func (h *Handler) requestRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req refundRequestDTO
	if !bind(w, r, h.validator, &req) {
		return
	}
	inv, err := h.facade.Invoices.RequestRefund(r.Context(), invoicing.RefundRequest{InvoiceID: id, Amount: req.Amount, Reason: req.Reason}, actorID(r))
	render(w, http.StatusOK, inv, err)
}

func (h *Handler) processRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req processRefundRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	in := invoicing.ProcessRefundInput{InvoiceID: id, ActualAmount: req.ActualAmount}
	if req.RefundedDate != nil {
		in.RefundedDate = req.RefundedDate.UTC()
	}
	inv, err := h.facade.Invoices.ProcessRefund(r.Context(), in, actorID(r))
	render(w, http.StatusOK, inv, err)
}
