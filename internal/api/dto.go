package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/invoicing"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/purchasing"
	"github.com/odyssey-erp/odyssey-stock/internal/sales"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

type lineDTO struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required"`
}

func toLines(in []lineDTO) []stock.Line {
	out := make([]stock.Line, 0, len(in))
	for _, l := range in {
		out = append(out, stock.Line{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}

type registerProductRequest struct {
	SKU          string `json:"sku" validate:"required,max=64"`
	Name         string `json:"name" validate:"required,max=200"`
	OpeningStock int64  `json:"opening_stock" validate:"gte=0"`
}

type movementRequest struct {
	ProductID     int64  `json:"product_id" validate:"required,gt=0"`
	Quantity      int64  `json:"quantity" validate:"required"`
	Kind          string `json:"kind" validate:"required"`
	Reference     string `json:"reference" validate:"required,max=100"`
	Reason        string `json:"reason" validate:"max=500"`
	AllowNegative bool   `json:"allow_negative"`
}

type reserveRequest struct {
	SalesOrderID int64     `json:"sales_order_id"`
	Reference    string    `json:"reference" validate:"required,max=100"`
	Items        []lineDTO `json:"items" validate:"required,min=1,dive"`
}

type releaseRequest struct {
	Reference string    `json:"reference" validate:"required,max=100"`
	Items     []lineDTO `json:"items" validate:"dive"`
}

type orderItemDTO struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	Description     string          `json:"description" validate:"max=500"`
	Quantity        int64           `json:"quantity" validate:"required"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
}

func toSalesItems(in []orderItemDTO) []sales.ItemInput {
	out := make([]sales.ItemInput, 0, len(in))
	for _, it := range in {
		out = append(out, sales.ItemInput{
			ProductID:       it.ProductID,
			Description:     it.Description,
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice,
			DiscountPercent: it.DiscountPercent,
			TaxPercent:      it.TaxPercent,
		})
	}
	return out
}

type createSalesOrderRequest struct {
	CustomerID int64          `json:"customer_id" validate:"required,gt=0"`
	OrderDate  *time.Time     `json:"order_date"`
	Notes      string         `json:"notes" validate:"max=1000"`
	Items      []orderItemDTO `json:"items" validate:"required,min=1,dive"`
}

type updateItemsRequest struct {
	Items []orderItemDTO `json:"items" validate:"required,min=1,dive"`
}

type statusRequest struct {
	Status        string     `json:"status" validate:"required"`
	ShippedDate   *time.Time `json:"shipped_date"`
	DeliveredDate *time.Time `json:"delivered_date"`
	Reason        string     `json:"reason" validate:"max=500"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type requiredReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	PaidAt *time.Time      `json:"paid_at"`
	Notes  string          `json:"notes" validate:"max=500"`
}

type refundRequestDTO struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

type processRefundRequest struct {
	ActualAmount decimal.Decimal `json:"actual_amount"`
	RefundedDate *time.Time      `json:"refunded_date"`
}

type lineAdjustmentDTO struct {
	ItemID          int64           `json:"item_id" validate:"required,gt=0"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
}

type draftUpdateRequest struct {
	DueDate *time.Time          `json:"due_date"`
	Notes   *string             `json:"notes" validate:"omitempty,max=1000"`
	Lines   []lineAdjustmentDTO `json:"lines" validate:"dive"`
}

func (r draftUpdateRequest) toUpdate(id int64) invoicing.DraftUpdate {
	upd := invoicing.DraftUpdate{InvoiceID: id, DueDate: r.DueDate, Notes: r.Notes}
	for _, l := range r.Lines {
		upd.Lines = append(upd.Lines, invoicing.LineAdjustment{ItemID: l.ItemID, DiscountPercent: l.DiscountPercent, TaxPercent: l.TaxPercent})
	}
	return upd
}

type purchaseItemDTO struct {
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	Description string          `json:"description" validate:"max=500"`
	Quantity    int64           `json:"quantity" validate:"required"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

type createPurchaseOrderRequest struct {
	SupplierID   int64             `json:"supplier_id" validate:"required,gt=0"`
	ExpectedDate *time.Time        `json:"expected_date"`
	Notes        string            `json:"notes" validate:"max=1000"`
	Items        []purchaseItemDTO `json:"items" validate:"required,min=1,dive"`
}

func (r createPurchaseOrderRequest) toInput(actor string) purchasing.CreateOrderInput {
	in := purchasing.CreateOrderInput{SupplierID: r.SupplierID, ExpectedDate: r.ExpectedDate, Notes: r.Notes, Actor: actor}
	for _, it := range r.Items {
		in.Items = append(in.Items, purchasing.ItemInput{ProductID: it.ProductID, Description: it.Description, Quantity: it.Quantity, UnitCost: it.UnitCost})
	}
	return in
}

type receiveRequest struct {
	Quantity int64  `json:"quantity" validate:"required"`
	Notes    string `json:"notes" validate:"max=500"`
}

type returnItemDTO struct {
	OrderItemID int64 `json:"order_item_id" validate:"required,gt=0"`
	Quantity    int64 `json:"quantity" validate:"required"`
}

type createReturnRequest struct {
	Reason string          `json:"reason" validate:"required,max=500"`
	Items  []returnItemDTO `json:"items" validate:"required,min=1,dive"`
}

func (r createReturnRequest) toInput(orderID int64, actor string) purchasing.CreateReturnInput {
	in := purchasing.CreateReturnInput{OrderID: orderID, Reason: r.Reason, Actor: actor}
	for _, it := range r.Items {
		in.Items = append(in.Items, purchasing.ReturnItemInput{OrderItemID: it.OrderItemID, Quantity: it.Quantity})
	}
	return in
}

type processReturnRequest struct {
	ItemIDs []int64 `json:"item_ids" validate:"dive,gt=0"`
}

// bind decodes and validates a request body. Failures are rendered and
// reported as false.
func bind(w http.ResponseWriter, r *http.Request, v *validator.Validate, target any) bool {
	if r.ContentLength == 0 {
		return validate(w, v, target)
	}
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return false
	}
	return validate(w, v, target)
}

func validate(w http.ResponseWriter, v *validator.Validate, target any) bool {
	err := v.Struct(target)
	if err == nil {
		return true
	}
	var msgs []string
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	} else {
		msgs = append(msgs, err.Error())
	}
	httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(msgs, "; ")))
	return false
}
