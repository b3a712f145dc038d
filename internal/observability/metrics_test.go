package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/invoicing"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/purchasing"
	"github.com/odyssey-erp/odyssey-stock/internal/sales"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

var (
	_ stock.Metrics      = (*Metrics)(nil)
	_ sales.Metrics      = (*Metrics)(nil)
	_ invoicing.Metrics  = (*Metrics)(nil)
	_ purchasing.Metrics = (*Metrics)(nil)
	_ db.RetryObserver   = (*Metrics)(nil)
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `odyssey_http_request_duration_seconds_bucket{route="/test"`)
}

func TestDomainCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.MovementRecorded("STOCK_OUT")
	metrics.MovementRecorded("STOCK_OUT")
	metrics.ReservationRejected()
	metrics.Transition("sales_order", "NEW", "PROCESSING")
	metrics.TxConflictRetry()
	metrics.LedgerDiscrepancies(3)

	body := scrape(t, metrics)
	for _, want := range []string{
		`odyssey_stock_movements_total{kind="STOCK_OUT"} 2`,
		`odyssey_stock_reservation_rejections_total 1`,
		`odyssey_status_transitions_total{entity="sales_order",from="NEW",to="PROCESSING"} 1`,
		`odyssey_tx_conflict_retries_total 1`,
		`odyssey_ledger_discrepancies 3`,
	} {
		require.True(t, strings.Contains(body, want), want)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var metrics *Metrics
	metrics.MovementRecorded("STOCK_IN")
	metrics.Transition("invoice", "SENT", "PAID")
	metrics.TxConflictRetry()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
