package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/sales"
)

func (h *Handler) mountSales(r chi.Router) {
	r.Get("/", h.listSalesOrders)
	r.Post("/", h.createSalesOrder)
	r.Get("/{id}", h.getSalesOrder)
	r.Put("/{id}/items", h.updateSalesItems)
	r.Post("/{id}/status", h.updateSalesStatus)
	r.Post("/{id}/hold", h.holdSalesOrder)
	r.Post("/{id}/resume", h.resumeSalesOrder)
}

func (h *Handler) listSalesOrders(w http.ResponseWriter, r *http.Request) {
	filter := sales.ListFilter{CustomerID: queryInt(r, "customer_id"), Limit: int(queryInt(r, "limit"))}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := ParseSalesOrderStatus(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Status = status
	}
	orders, err := h.facade.Sales.List(r.Context(), filter)
	if orders == nil && err == nil {
		orders = []sales.Order{}
	}
	render(w, http.StatusOK, orders, err)
}

func (h *Handler) createSalesOrder(w http.ResponseWriter, r *http.Request) {
	var req createSalesOrderRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	in := sales.CreateOrderInput{CustomerID: req.CustomerID, Notes: req.Notes, Items: toSalesItems(req.Items), Actor: actorID(r)}
	if req.OrderDate != nil {
		in.OrderDate = *req.OrderDate
	}
	order, err := h.facade.Sales.CreateOrder(r.Context(), in)
	render(w, http.StatusCreated, order, err)
}

func (h *Handler) getSalesOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	order, err := h.facade.Sales.Get(r.Context(), id)
	render(w, http.StatusOK, order, err)
}

func (h *Handler) updateSalesItems(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateItemsRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	order, err := h.facade.Sales.UpdateItems(r.Context(), id, toSalesItems(req.Items), actorID(r))
	render(w, http.StatusOK, order, err)
}

func (h *Handler) updateSalesStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	httpx.Render(w, http.StatusOK, h.facade.UpdateSalesOrderStatus(r.Context(), id, StatusChange{
		Status:        req.Status,
		ShippedDate:   utc(req.ShippedDate),
		DeliveredDate: utc(req.DeliveredDate),
		Reason:        req.Reason,
		Actor:         actorID(r),
	}))
}

func (h *Handler) holdSalesOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	order, err := h.facade.Sales.Hold(r.Context(), id, req.Reason, actorID(r))
	render(w, http.StatusOK, order, err)
}

func (h *Handler) resumeSalesOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	order, err := h.facade.Sales.Resume(r.Context(), id, actorID(r))
	render(w, http.StatusOK, order, err)
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
