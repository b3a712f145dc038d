package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineAmounts is the priced breakdown of one order line.
type LineAmounts struct {
	Gross    decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// CalculateLineTotals prices a line: discount applies to gross, tax to the discounted net.
func CalculateLineTotals(quantity int64, unitPrice, discountPercent, taxPercent decimal.Decimal) LineAmounts {
	gross := unitPrice.Mul(decimal.NewFromInt(quantity))
	discount := gross.Mul(discountPercent).Div(hundred).Round(2)
	net := gross.Sub(discount)
	tax := net.Mul(taxPercent).Div(hundred).Round(2)
	return LineAmounts{
		Gross:    gross.Round(2),
		Discount: discount,
		Tax:      tax,
		Total:    net.Add(tax).Round(2),
	}
}

// NewDocumentNumber builds a human-readable, collision-resistant document number.
func NewDocumentNumber(prefix string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), suffix)
}
