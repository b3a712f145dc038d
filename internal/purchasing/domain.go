package purchasing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Status enumerates purchase order statuses.
type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusPending           Status = "PENDING"
	StatusApproved          Status = "APPROVED"
	StatusSent              Status = "SENT"
	StatusPartiallyReceived Status = "PARTIALLY_RECEIVED"
	StatusReceived          Status = "RECEIVED"
	StatusCancelled         Status = "CANCELLED"
	StatusPartiallyReturned Status = "PARTIALLY_RETURNED"
	StatusReturned          Status = "RETURNED"
)

// Statuses lists every status in canonical order.
var Statuses = []Status{StatusDraft, StatusPending, StatusApproved, StatusSent, StatusPartiallyReceived, StatusReceived, StatusCancelled, StatusPartiallyReturned, StatusReturned}

var transitions = map[Status][]Status{
	StatusDraft:             {StatusPending, StatusCancelled},
	StatusPending:           {StatusApproved, StatusDraft, StatusCancelled},
	StatusApproved:          {StatusSent, StatusCancelled},
	StatusSent:              {StatusPartiallyReceived, StatusReceived, StatusCancelled},
	StatusPartiallyReceived: {StatusPartiallyReceived, StatusReceived, StatusPartiallyReturned, StatusReturned, StatusCancelled},
	StatusReceived:          {StatusPartiallyReturned, StatusReturned, StatusCancelled},
	StatusPartiallyReturned: {StatusPartiallyReturned, StatusReturned},
	StatusReturned:          {StatusPartiallyReturned},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Receivable reports whether goods can still be booked against an order in status s.
func Receivable(s Status) bool {
	switch s {
	case StatusSent, StatusPartiallyReceived, StatusPartiallyReturned, StatusReturned:
		return true
	}
	return false
}

func checkTransition(o Order, to Status) error {
	if !CanTransition(o.Status, to) {
		return &shared.InvalidStatusTransitionError{Entity: "purchase order " + o.Number, Current: string(o.Status), Requested: string(to)}
	}
	return nil
}

// ReturnStatus enumerates supplier return statuses.
type ReturnStatus string

const (
	ReturnPending   ReturnStatus = "PENDING"
	ReturnApproved  ReturnStatus = "APPROVED"
	ReturnRejected  ReturnStatus = "REJECTED"
	ReturnProcessed ReturnStatus = "PROCESSED"
)

// ReturnStatuses lists every return status in canonical order.
var ReturnStatuses = []ReturnStatus{ReturnPending, ReturnApproved, ReturnRejected, ReturnProcessed}

// Counts reports whether a return still claims received quantity.
func (s ReturnStatus) Counts() bool { return s != ReturnRejected }

// Order is a supplier purchase order.
type Order struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	SupplierID   int64           `json:"supplier_id"`
	Status       Status          `json:"status"`
	OrderDate    time.Time       `json:"order_date"`
	ExpectedDate *time.Time      `json:"expected_date,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Notes        string          `json:"notes,omitempty"`
	StatusReason string          `json:"status_reason,omitempty"`
	CreatedBy    string          `json:"created_by"`
	ApprovedBy   string          `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
	ReceivedAt   *time.Time      `json:"received_at,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Items        []Item          `json:"items"`
}

// Item is an ordered line with its received quantity.
type Item struct {
	ID               int64           `json:"id"`
	OrderID          int64           `json:"order_id"`
	ProductID        int64           `json:"product_id"`
	Description      string          `json:"description"`
	OrderedQuantity  int64           `json:"ordered_quantity"`
	ReceivedQuantity int64           `json:"received_quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	LineTotal        decimal.Decimal `json:"line_total"`
}

// Outstanding is the quantity still expected from the supplier.
func (it Item) Outstanding() int64 { return it.OrderedQuantity - it.ReceivedQuantity }

// Receipt logs one ReceiveItem call.
type Receipt struct {
	ID         int64     `json:"id"`
	OrderID    int64     `json:"order_id"`
	ItemID     int64     `json:"item_id"`
	ProductID  int64     `json:"product_id"`
	Quantity   int64     `json:"quantity"`
	MovementID int64     `json:"movement_id"`
	Notes      string    `json:"notes,omitempty"`
	ReceivedBy string    `json:"received_by"`
	ReceivedAt time.Time `json:"received_at"`
}

// Return is a return-to-supplier document.
type Return struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	OrderID        int64           `json:"order_id"`
	Status         ReturnStatus    `json:"status"`
	Reason         string          `json:"reason"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	RefundAmount   decimal.Decimal `json:"refund_amount"`
	RejectedReason string          `json:"rejected_reason,omitempty"`
	CreatedBy      string          `json:"created_by"`
	ApprovedBy     string          `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	ProcessedBy    string          `json:"processed_by,omitempty"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Items          []ReturnItem    `json:"items"`
}

// ReturnItem references the purchase order line being sent back.
type ReturnItem struct {
	ID              int64           `json:"id"`
	ReturnID        int64           `json:"return_id"`
	OrderItemID     int64           `json:"order_item_id"`
	ProductID       int64           `json:"product_id"`
	Quantity        int64           `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	LineTotal       decimal.Decimal `json:"line_total"`
	RefundProcessed bool            `json:"refund_processed"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
	MovementID      int64           `json:"movement_id,omitempty"`
}

// ReturnLine is a return item joined with its document status, used to
// recompute eligibility from history.
type ReturnLine struct {
	ReturnItem
	Status ReturnStatus
}

var (
	// ErrOrderNotFound indicates a missing purchase order.
	ErrOrderNotFound = fmt.Errorf("purchasing: order %w", shared.ErrNotFound)
	// ErrItemNotFound indicates a missing purchase order line.
	ErrItemNotFound = fmt.Errorf("purchasing: order item %w", shared.ErrNotFound)
	// ErrReturnNotFound indicates a missing supplier return.
	ErrReturnNotFound = fmt.Errorf("purchasing: return %w", shared.ErrNotFound)
	// ErrNoItems rejects documents without lines.
	ErrNoItems = fmt.Errorf("%w: purchasing: at least one item required", shared.ErrValidation)
	// ErrSupplierRequired rejects orders without supplier.
	ErrSupplierRequired = fmt.Errorf("%w: purchasing: supplier required", shared.ErrValidation)
	// ErrNotReceivable rejects receipts on orders that are not open or returning.
	ErrNotReceivable = fmt.Errorf("%w: purchasing: order is not open for receiving", shared.ErrValidation)
)
