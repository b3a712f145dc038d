package shared

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatQuantity renders a quantity with digit grouping for user-visible messages.
func FormatQuantity(qty int64) string {
	return printer.Sprintf("%d", qty)
}

// FormatAmount renders a money amount with two decimals and digit grouping.
func FormatAmount(amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	return printer.Sprintf("%.2f", f)
}
