package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

func (h *Handler) mountStock(r chi.Router) {
	r.Post("/products", h.registerProduct)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/products/{id}/available", h.availableStock)
	r.Get("/products/{id}/level", h.stockLevel)
	r.Get("/movements", h.listMovements)
	r.Post("/movements", h.processMovement)
	r.Delete("/movements/{id}", h.hideMovement)
	r.Post("/movements/{id}/restore", h.restoreMovement)
	r.Get("/reservations", h.listReservations)
	r.Post("/reservations", h.reserve)
	r.Post("/reservations/release", h.release)
	r.Delete("/reservations/{id}", h.releaseOne)
	r.Get("/reconcile", h.reconcile)
}

func (h *Handler) registerProduct(w http.ResponseWriter, r *http.Request) {
	var req registerProductRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	p, err := h.facade.Stock.RegisterProduct(r.Context(), stock.RegisterProductInput{
		SKU: req.SKU, Name: req.Name, OpeningStock: req.OpeningStock, Actor: actorID(r),
	})
	render(w, http.StatusCreated, p, err)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.facade.Stock.GetProduct(r.Context(), id)
	render(w, http.StatusOK, p, err)
}

func (h *Handler) availableStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	httpx.Render(w, http.StatusOK, h.facade.GetAvailableStock(r.Context(), id))
}

func (h *Handler) stockLevel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	level, err := h.facade.Stock.GetStockLevel(r.Context(), id)
	render(w, http.StatusOK, level, err)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := stock.MovementFilter{
		ProductID:      queryInt(r, "product_id"),
		Reference:      q.Get("reference"),
		IncludeDeleted: q.Get("include_deleted") == "true",
		Limit:          int(queryInt(r, "limit")),
	}
	if raw := q.Get("kind"); raw != "" {
		kind, err := ParseMovementKind(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Kind = kind
	}
	rows, err := h.facade.Stock.ListMovements(r.Context(), filter)
	render(w, http.StatusOK, rows, err)
}

func (h *Handler) processMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	res := h.facade.ProcessStockMovement(r.Context(), MovementCommand{
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		Kind:           req.Kind,
		Reference:      req.Reference,
		Reason:         req.Reason,
		Actor:          actorID(r),
		AllowNegative:  req.AllowNegative,
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
	})
	httpx.Render(w, http.StatusCreated, res)
}

func (h *Handler) hideMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	err := h.facade.Stock.HideMovement(r.Context(), id, actorID(r))
	render(w, http.StatusOK, err == nil, err)
}

func (h *Handler) restoreMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	err := h.facade.Stock.RestoreMovement(r.Context(), id, actorID(r))
	render(w, http.StatusOK, err == nil, err)
}

func (h *Handler) listReservations(w http.ResponseWriter, r *http.Request) {
	rows, err := h.facade.Stock.ListReservations(r.Context(), stock.ReservationFilter{
		ProductID:  queryInt(r, "product_id"),
		Reference:  r.URL.Query().Get("reference"),
		ActiveOnly: r.URL.Query().Get("active") == "true",
	})
	render(w, http.StatusOK, rows, err)
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	httpx.Render(w, http.StatusCreated, h.facade.ReserveStock(r.Context(), toLines(req.Items), req.SalesOrderID, req.Reference, actorID(r)))
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	httpx.Render(w, http.StatusOK, h.facade.ReleaseStockReservation(r.Context(), toLines(req.Items), req.Reference, actorID(r)))
}

func (h *Handler) releaseOne(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	released, err := h.facade.Stock.ReleaseReservation(r.Context(), id, actorID(r))
	render(w, http.StatusOK, released, err)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	rows, err := h.facade.Stock.Reconcile(r.Context())
	if rows == nil && err == nil {
		rows = []stock.Discrepancy{}
	}
	httpx.Render(w, http.StatusOK, shared.ResultOf(rows, err))
}
