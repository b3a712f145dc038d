package stock

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// MovementKind classifies a ledger row.
type MovementKind string

const (
	KindStockIn    MovementKind = "STOCK_IN"
	KindStockOut   MovementKind = "STOCK_OUT"
	KindAdjustment MovementKind = "ADJUSTMENT"
	KindTransfer   MovementKind = "TRANSFER"
	KindDamaged    MovementKind = "DAMAGED"
	KindExpired    MovementKind = "EXPIRED"
	KindReturn     MovementKind = "RETURN"
)

// MovementKinds lists every kind in canonical order.
var MovementKinds = []MovementKind{KindStockIn, KindStockOut, KindAdjustment, KindTransfer, KindDamaged, KindExpired, KindReturn}

type direction int

const (
	either direction = iota
	inbound
	outbound
)

func (k MovementKind) direction() direction {
	switch k {
	case KindStockIn, KindReturn:
		return inbound
	case KindStockOut, KindDamaged, KindExpired:
		return outbound
	default:
		return either
	}
}

// Valid reports whether k is a known kind.
func (k MovementKind) Valid() bool {
	for _, known := range MovementKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Signed applies the kind's sign to a magnitude. Signed input is returned unchanged.
func (k MovementKind) Signed(qty int64) int64 {
	if k.direction() == outbound && qty > 0 {
		return -qty
	}
	return qty
}

// CheckQuantity enforces the sign convention for k.
func (k MovementKind) CheckQuantity(qty int64) error {
	if qty == 0 {
		return shared.NewInvalidQuantity("quantity", qty, "must not be zero")
	}
	switch k.direction() {
	case inbound:
		if qty < 0 {
			return shared.NewInvalidQuantity("quantity", qty, fmt.Sprintf("%s movements must be positive", k))
		}
	case outbound:
		if qty > 0 {
			return shared.NewInvalidQuantity("quantity", qty, fmt.Sprintf("%s movements must be negative", k))
		}
	}
	return nil
}

// Product is the balance domain for movements and reservations.
type Product struct {
	ID           int64     `json:"id"`
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	CurrentStock int64     `json:"current_stock"`
	Version      int64     `json:"version"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Movement is an immutable ledger row.
type Movement struct {
	ID            int64        `json:"id"`
	ProductID     int64        `json:"product_id"`
	Quantity      int64        `json:"quantity"`
	Kind          MovementKind `json:"kind"`
	BalanceBefore int64        `json:"balance_before"`
	BalanceAfter  int64        `json:"balance_after"`
	Reference     string       `json:"reference"`
	Reason        string       `json:"reason,omitempty"`
	Actor         string       `json:"actor"`
	CreatedAt     time.Time    `json:"created_at"`
	IsDeleted     bool         `json:"is_deleted"`
}

// Reservation is a hold against future consumption.
type Reservation struct {
	ID           int64      `json:"id"`
	ProductID    int64      `json:"product_id"`
	SalesOrderID int64      `json:"sales_order_id"`
	Quantity     int64      `json:"quantity"`
	Reference    string     `json:"reference"`
	Reason       string     `json:"reason,omitempty"`
	ReservedBy   string     `json:"reserved_by"`
	ReservedAt   time.Time  `json:"reserved_at"`
	IsReleased   bool       `json:"is_released"`
	ReleasedAt   *time.Time `json:"released_at,omitempty"`
	ReleasedBy   string     `json:"released_by,omitempty"`
}

// Line is a (product, quantity) pair.
type Line struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// MovementInput feeds Ledger.RecordMovement. Quantity is signed.
type MovementInput struct {
	ProductID int64
	Quantity  int64
	Kind      MovementKind
	Reference string
	Reason    string
	Actor     string
	// AllowNegative lets an ADJUSTMENT take the balance below zero.
	AllowNegative bool
}

// MovementFilter narrows ListMovements.
type MovementFilter struct {
	ProductID      int64
	Reference      string
	Kind           MovementKind
	IncludeDeleted bool
	Limit          int
}

// ReservationFilter narrows ListReservations.
type ReservationFilter struct {
	ProductID  int64
	Reference  string
	ActiveOnly bool
}

// StockLevel summarises a product's position.
type StockLevel struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	OnHand    int64  `json:"on_hand"`
	Reserved  int64  `json:"reserved"`
	Available int64  `json:"available"`
}

// Discrepancy is a product whose balance disagrees with its ledger or reservations.
type Discrepancy struct {
	ProductID    int64  `json:"product_id"`
	SKU          string `json:"sku"`
	CurrentStock int64  `json:"current_stock"`
	LedgerSum    int64  `json:"ledger_sum"`
	Reserved     int64  `json:"reserved"`
}

// Oversold reports reservations exceeding on-hand stock.
func (d Discrepancy) Oversold() bool { return d.Reserved > d.CurrentStock }

var (
	// ErrProductNotFound indicates a missing product.
	ErrProductNotFound = fmt.Errorf("stock: product %w", shared.ErrNotFound)
	// ErrMovementNotFound indicates a missing ledger row.
	ErrMovementNotFound = fmt.Errorf("stock: movement %w", shared.ErrNotFound)
	// ErrReferenceRequired guards reservations without an order reference.
	ErrReferenceRequired = fmt.Errorf("%w: stock: reference required", shared.ErrValidation)
	// ErrProductRequired guards movements without a product.
	ErrProductRequired = fmt.Errorf("%w: stock: product required", shared.ErrValidation)
	// ErrNegativeOnlyForAdjustment rejects AllowNegative on other kinds.
	ErrNegativeOnlyForAdjustment = fmt.Errorf("%w: stock: only adjustments may go negative", shared.ErrValidation)
	// ErrUnknownKind rejects unknown movement kinds.
	ErrUnknownKind = fmt.Errorf("%w: stock: unknown movement kind", shared.ErrValidation)
	// ErrNoLines rejects an empty reservation request.
	ErrNoLines = fmt.Errorf("%w: stock: at least one line required", shared.ErrValidation)
	// ErrDuplicateSKU rejects a second product with the same SKU.
	ErrDuplicateSKU = fmt.Errorf("%w: stock: sku already registered", shared.ErrValidation)
)
