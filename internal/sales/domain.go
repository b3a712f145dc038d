package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Status enumerates sales order statuses.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusReturned   Status = "RETURNED"
	StatusOnHold     Status = "ON_HOLD"
)

// Statuses lists every status in canonical order.
var Statuses = []Status{StatusNew, StatusProcessing, StatusShipped, StatusCompleted, StatusCancelled, StatusReturned, StatusOnHold}

var transitions = map[Status][]Status{
	StatusNew:        {StatusProcessing, StatusCancelled, StatusOnHold},
	StatusProcessing: {StatusShipped, StatusCancelled, StatusOnHold},
	StatusShipped:    {StatusCompleted, StatusReturned, StatusOnHold},
	StatusCompleted:  {StatusReturned, StatusOnHold},
}

// CanTransition reports whether the order may move to status to.
func (o Order) CanTransition(to Status) bool {
	if o.Status == StatusOnHold {
		if to == o.HeldFrom {
			return true
		}
		return to == StatusCancelled && (o.HeldFrom == StatusNew || o.HeldFrom == StatusProcessing)
	}
	for _, next := range transitions[o.Status] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition exists.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusReturned
}

// Order is a sales order header with its lines.
type Order struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	CustomerID     int64           `json:"customer_id"`
	Status         Status          `json:"status"`
	HeldFrom       Status          `json:"held_from,omitempty"`
	OrderDate      time.Time       `json:"order_date"`
	ShippedDate    *time.Time      `json:"shipped_date,omitempty"`
	DeliveredDate  *time.Time      `json:"delivered_date,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	ReturnedAt     *time.Time      `json:"returned_at,omitempty"`
	SubTotal       decimal.Decimal `json:"sub_total"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Notes          string          `json:"notes,omitempty"`
	StatusReason   string          `json:"status_reason,omitempty"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Items          []Item          `json:"items"`
}

// Item is an order line; the unit price is frozen when the order is taken.
type Item struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductID       int64           `json:"product_id"`
	Description     string          `json:"description"`
	Quantity        int64           `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

// ItemInput is a requested order line.
type ItemInput struct {
	ProductID       int64
	Description     string
	Quantity        int64
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
}

// ListFilter narrows List.
type ListFilter struct {
	Status     Status
	CustomerID int64
	Limit      int
}

func buildItems(inputs []ItemInput) ([]Item, error) {
	if len(inputs) == 0 {
		return nil, ErrNoItems
	}
	items := make([]Item, 0, len(inputs))
	for _, in := range inputs {
		if in.ProductID == 0 {
			return nil, fmt.Errorf("%w: sales: product required", shared.ErrValidation)
		}
		if in.Quantity <= 0 {
			return nil, shared.NewInvalidQuantity("quantity", in.Quantity, "must be positive")
		}
		if in.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: sales: unit price must not be negative", shared.ErrValidation)
		}
		if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) || in.TaxPercent.IsNegative() {
			return nil, fmt.Errorf("%w: sales: percentages out of range", shared.ErrValidation)
		}
		items = append(items, Item{
			ProductID:       in.ProductID,
			Description:     in.Description,
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			DiscountPercent: in.DiscountPercent,
			TaxPercent:      in.TaxPercent,
		})
	}
	return items, nil
}

// price fills line totals and header totals.
func (o *Order) price() {
	sub, tax, discount := decimal.Zero, decimal.Zero, decimal.Zero
	for i := range o.Items {
		item := &o.Items[i]
		amounts := shared.CalculateLineTotals(item.Quantity, item.UnitPrice, item.DiscountPercent, item.TaxPercent)
		item.LineTotal = amounts.Total
		sub = sub.Add(amounts.Gross)
		tax = tax.Add(amounts.Tax)
		discount = discount.Add(amounts.Discount)
	}
	o.SubTotal = sub
	o.TaxAmount = tax
	o.DiscountAmount = discount
	o.TotalAmount = sub.Add(tax).Sub(discount)
}

var (
	// ErrOrderNotFound indicates a missing order.
	ErrOrderNotFound = fmt.Errorf("sales: order %w", shared.ErrNotFound)
	// ErrNoItems rejects orders without lines.
	ErrNoItems = fmt.Errorf("%w: sales: order requires at least one item", shared.ErrValidation)
	// ErrNotEditable rejects item edits outside New and Processing.
	ErrNotEditable = fmt.Errorf("%w: sales: order items can only change while new or processing", shared.ErrValidation)
	// ErrCustomerRequired rejects orders without customer.
	ErrCustomerRequired = fmt.Errorf("%w: sales: customer required", shared.ErrValidation)
)
