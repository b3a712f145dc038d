// Package httpx provides HTTP response utilities.
package httpx

import (
	"net/http"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// StatusFor maps an error kind to its HTTP status code.
func StatusFor(kind shared.ErrorKind) int {
	switch kind {
	case "":
		return http.StatusOK
	case shared.KindInsufficientStock, shared.KindInvalidStatusTransition,
		shared.KindConcurrencyConflict, shared.KindAlreadyProcessed:
		return http.StatusConflict
	case shared.KindReservationNotFound, shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindInvalidQuantity, shared.KindValidation:
		return http.StatusUnprocessableEntity
	case shared.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Render writes a Result with the status code derived from its error kind.
func Render[T any](w http.ResponseWriter, status int, res shared.Result[T]) {
	if !res.Success && res.Error != nil {
		status = StatusFor(res.Error.Kind)
	}
	JSON(w, status, res)
}

// RespondError renders err as a failed Result.
func RespondError(w http.ResponseWriter, err error) {
	Render(w, http.StatusOK, shared.Fail[struct{}](err))
}
