package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

const (
	headerActorID          = "X-Actor-ID"
	headerActorPermissions = "X-Actor-Permissions"
	headerIdempotencyKey   = "Idempotency-Key"

	// PermReturnApprove guards approving and rejecting supplier returns.
	PermReturnApprove = "purchasing.return.approve"
	// PermReturnProcess guards shipping returns back to the supplier.
	PermReturnProcess = "purchasing.return.process"
)

// Handler wires the HTTP surface onto the Facade.
type Handler struct {
	facade    *Facade
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(facade *Facade, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{facade: facade, logger: logger, validator: validator.New()}
}

// MountRoutes registers the v1 routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(ActorMiddleware)
	r.Route("/stock", h.mountStock)
	r.Route("/sales-orders", h.mountSales)
	r.Route("/invoices", h.mountInvoices)
	r.Route("/purchase-orders", h.mountPurchaseOrders)
	r.Route("/purchase-returns", h.mountPurchaseReturns)
}

// ActorMiddleware reads the caller asserted by the identity gateway. Reads are
// open; writes without an actor are refused.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerActorID))
		if id == "" {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
			default:
				httpx.RespondError(w, shared.ErrForbidden)
			}
			return
		}
		actor := shared.Actor{ID: id}
		for _, p := range strings.Split(r.Header.Get(headerActorPermissions), ",") {
			if p = strings.TrimSpace(p); p != "" {
				actor.Permissions = append(actor.Permissions, p)
			}
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequirePermission rejects callers lacking perm.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok || !actor.Can(perm) {
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actorID(r *http.Request) string {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor.ID
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}

func render[T any](w http.ResponseWriter, status int, value T, err error) {
	httpx.Render(w, status, shared.ResultOf(value, err))
}
