package shared

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable classification carried across the API boundary.
type ErrorKind string

const (
	KindInsufficientStock       ErrorKind = "INSUFFICIENT_STOCK"
	KindInvalidStatusTransition ErrorKind = "INVALID_STATUS_TRANSITION"
	KindReservationNotFound     ErrorKind = "RESERVATION_NOT_FOUND"
	KindConcurrencyConflict     ErrorKind = "CONCURRENCY_CONFLICT"
	KindInvalidQuantity         ErrorKind = "INVALID_QUANTITY"
	KindAlreadyProcessed        ErrorKind = "ALREADY_PROCESSED"
	KindNotFound                ErrorKind = "NOT_FOUND"
	KindValidation              ErrorKind = "VALIDATION"
	KindForbidden               ErrorKind = "FORBIDDEN"
	KindInternal                ErrorKind = "INTERNAL"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input detected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden marks a missing permission.
	ErrForbidden = errors.New("forbidden")
)

// InsufficientStockError reports a request that exceeds what a product can supply.
type InsufficientStockError struct {
	ProductID int64
	SKU       string
	Requested int64
	Available int64
	// Context prefixes the message, e.g. "Cannot ship order".
	Context string
	// Reserved marks shortfalls measured against reserved rather than available stock.
	Reserved bool
}

func (e *InsufficientStockError) Error() string {
	what := "stock"
	if e.Reserved {
		what = "reserved stock"
	}
	msg := fmt.Sprintf("insufficient %s for SKU %s: requested %s, available %s (short by %s)",
		what, e.label(), FormatQuantity(e.Requested), FormatQuantity(e.Available), FormatQuantity(e.Shortfall()))
	if e.Context != "" {
		return e.Context + ": " + msg
	}
	return msg
}

// Shortfall is the missing quantity.
func (e *InsufficientStockError) Shortfall() int64 {
	if e.Requested <= e.Available {
		return 0
	}
	return e.Requested - e.Available
}

func (e *InsufficientStockError) label() string {
	if e.SKU != "" {
		return e.SKU
	}
	return fmt.Sprintf("#%d", e.ProductID)
}

// Kind implements Kinded.
func (e *InsufficientStockError) Kind() ErrorKind { return KindInsufficientStock }

// InvalidStatusTransitionError reports a status pair outside the allowed edge set.
type InvalidStatusTransitionError struct {
	Entity    string
	Current   string
	Requested string
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("cannot move %s from %s to %s", e.Entity, e.Current, e.Requested)
}

// Kind implements Kinded.
func (e *InvalidStatusTransitionError) Kind() ErrorKind { return KindInvalidStatusTransition }

// ReservationNotFoundError reports an unknown reservation.
type ReservationNotFoundError struct {
	ReservationID int64
	Reference     string
}

func (e *ReservationNotFoundError) Error() string {
	if e.Reference != "" {
		return fmt.Sprintf("no reservation found for reference %s", e.Reference)
	}
	return fmt.Sprintf("reservation %d not found", e.ReservationID)
}

// Kind implements Kinded.
func (e *ReservationNotFoundError) Kind() ErrorKind { return KindReservationNotFound }

// ConcurrencyConflictError marks lock or serialization contention. Safe to retry.
type ConcurrencyConflictError struct {
	Cause error
}

func (e *ConcurrencyConflictError) Error() string {
	if e.Cause == nil {
		return "concurrent update detected, please retry"
	}
	return "concurrent update detected, please retry: " + e.Cause.Error()
}

func (e *ConcurrencyConflictError) Unwrap() error { return e.Cause }

// Kind implements Kinded.
func (e *ConcurrencyConflictError) Kind() ErrorKind { return KindConcurrencyConflict }

// InvalidQuantityError reports negative, zero or over-cap quantities.
type InvalidQuantityError struct {
	Field    string
	Quantity string
	Reason   string
}

func (e *InvalidQuantityError) Error() string {
	field := e.Field
	if field == "" {
		field = "quantity"
	}
	return fmt.Sprintf("invalid %s %s: %s", field, e.Quantity, e.Reason)
}

// Kind implements Kinded.
func (e *InvalidQuantityError) Kind() ErrorKind { return KindInvalidQuantity }

// AlreadyProcessedError reports a repeated operation such as a payment beyond balance.
type AlreadyProcessedError struct {
	Entity string
	ID     string
	Detail string
}

func (e *AlreadyProcessedError) Error() string {
	msg := fmt.Sprintf("%s %s already processed", e.Entity, e.ID)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Kind implements Kinded.
func (e *AlreadyProcessedError) Kind() ErrorKind { return KindAlreadyProcessed }

// NewInvalidQuantity builds an InvalidQuantityError for integer quantities.
func NewInvalidQuantity(field string, qty int64, reason string) *InvalidQuantityError {
	return &InvalidQuantityError{Field: field, Quantity: FormatQuantity(qty), Reason: reason}
}

// Kinded is implemented by every domain error.
type Kinded interface {
	Kind() ErrorKind
}

// KindOf classifies err for the API boundary.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var kinded Kinded
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	default:
		return KindInternal
	}
}

// IsConflict reports whether err is a retryable concurrency conflict.
func IsConflict(err error) bool {
	var conflict *ConcurrencyConflictError
	return errors.As(err, &conflict)
}
