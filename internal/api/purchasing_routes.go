package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/purchasing"
)

func (h *Handler) mountPurchaseOrders(r chi.Router) {
	r.Post("/", h.createPurchaseOrder)
	r.Get("/{id}", h.getPurchaseOrder)
	r.Get("/{id}/receipts", h.listReceipts)
	r.Post("/{id}/submit", h.purchaseMove(func(h *Handler, r *http.Request, id int64, _ string) (purchasing.Order, error) {
		return h.facade.Purchasing.Submit(r.Context(), id, actorID(r))
	}))
	r.Post("/{id}/approve", h.purchaseMove(func(h *Handler, r *http.Request, id int64, _ string) (purchasing.Order, error) {
		return h.facade.Purchasing.Approve(r.Context(), id, actorID(r))
	}))
	r.Post("/{id}/reject", h.purchaseMove(func(h *Handler, r *http.Request, id int64, reason string) (purchasing.Order, error) {
		return h.facade.Purchasing.Reject(r.Context(), id, reason, actorID(r))
	}))
	r.Post("/{id}/send", h.purchaseMove(func(h *Handler, r *http.Request, id int64, _ string) (purchasing.Order, error) {
		return h.facade.Purchasing.MarkSent(r.Context(), id, actorID(r))
	}))
	r.Post("/{id}/cancel", h.purchaseMove(func(h *Handler, r *http.Request, id int64, reason string) (purchasing.Order, error) {
		return h.facade.Purchasing.Cancel(r.Context(), id, reason, actorID(r))
	}))
	r.Post("/items/{itemID}/receive", h.receiveItem)
	r.Post("/{id}/returns", h.createReturn)
}

func (h *Handler) mountPurchaseReturns(r chi.Router) {
	r.Get("/{id}", h.getReturn)
	r.With(RequirePermission(PermReturnApprove)).Post("/{id}/approve", h.approveReturn)
	r.With(RequirePermission(PermReturnApprove)).Post("/{id}/reject", h.rejectReturn)
	r.With(RequirePermission(PermReturnProcess)).Post("/{id}/process", h.processReturn)
}

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req createPurchaseOrderRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	order, err := h.facade.Purchasing.CreateOrder(r.Context(), req.toInput(actorID(r)))
	render(w, http.StatusCreated, order, err)
}

func (h *Handler) getPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	order, err := h.facade.Purchasing.Get(r.Context(), id)
	render(w, http.StatusOK, order, err)
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	receipts, err := h.facade.Purchasing.Receipts(r.Context(), id)
	if receipts == nil && err == nil {
		receipts = []purchasing.Receipt{}
	}
	render(w, http.StatusOK, receipts, err)
}

type purchaseMoveFunc func(h *Handler, r *http.Request, id int64, reason string) (purchasing.Order, error)

func (h *Handler) purchaseMove(fn purchaseMoveFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req reasonRequest
		if !bind(w, r, h.validator, &req) {
			return
		}
		order, err := fn(h, r, id, req.Reason)
		render(w, http.StatusOK, order, err)
	}
}

func (h *Handler) receiveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req receiveRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	httpx.Render(w, http.StatusOK, h.facade.ReceiveItem(r.Context(), id, req.Quantity, req.Notes, actorID(r)))
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req createReturnRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	ret, err := h.facade.Purchasing.CreateReturn(r.Context(), req.toInput(id, actorID(r)))
	render(w, http.StatusCreated, ret, err)
}

func (h *Handler) getReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ret, err := h.facade.Purchasing.GetReturn(r.Context(), id)
	render(w, http.StatusOK, ret, err)
}

func (h *Handler) approveReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ret, err := h.facade.Purchasing.ApproveReturn(r.Context(), id, actorID(r))
	render(w, http.StatusOK, ret, err)
}

func (h *Handler) rejectReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req requiredReasonRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	ret, err := h.facade.Purchasing.RejectReturn(r.Context(), id, req.Reason, actorID(r))
	render(w, http.StatusOK, ret, err)
}

func (h *Handler) processReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req processReturnRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	httpx.Render(w, http.StatusOK, h.facade.ProcessReturn(r.Context(), id, req.ItemIDs, actorID(r)))
}
