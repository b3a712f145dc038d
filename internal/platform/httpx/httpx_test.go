package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := map[shared.ErrorKind]int{
		shared.KindInsufficientStock:       http.StatusConflict,
		shared.KindInvalidStatusTransition: http.StatusConflict,
		shared.KindConcurrencyConflict:     http.StatusConflict,
		shared.KindAlreadyProcessed:        http.StatusConflict,
		shared.KindReservationNotFound:     http.StatusNotFound,
		shared.KindNotFound:                http.StatusNotFound,
		shared.KindInvalidQuantity:         http.StatusUnprocessableEntity,
		shared.KindValidation:              http.StatusUnprocessableEntity,
		shared.KindForbidden:               http.StatusForbidden,
		shared.KindInternal:                http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equal(t, want, StatusFor(kind), kind)
	}
}

func TestRenderFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	Render(rr, http.StatusOK, shared.Fail[int](&shared.InsufficientStockError{SKU: "A", Requested: 5, Available: 2}))
	require.Equal(t, http.StatusConflict, rr.Code)

	var body shared.Result[int]
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.False(t, body.Success)
	require.Equal(t, shared.KindInsufficientStock, body.Error.Kind)
}

func TestRenderSuccessKeepsStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	Render(rr, http.StatusCreated, shared.ResultOf(7, nil))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.JSONEq(t, `{"success":true,"data":7}`, rr.Body.String())
}
