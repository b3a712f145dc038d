package shared

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCalculateLineTotals(t *testing.T) {
	amounts := CalculateLineTotals(3, decimal.RequireFromString("49.99"), decimal.NewFromInt(10), decimal.NewFromInt(11))

	require.Equal(t, "149.97", amounts.Gross.StringFixed(2))
	require.Equal(t, "15.00", amounts.Discount.StringFixed(2))
	require.Equal(t, "14.85", amounts.Tax.StringFixed(2))
	require.Equal(t, "149.82", amounts.Total.StringFixed(2))
}

func TestNewDocumentNumber(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	a := NewDocumentNumber("SO", at)
	b := NewDocumentNumber("SO", at)
	require.Regexp(t, `^SO-20260314-[0-9A-F]{6}$`, a)
	require.NotEqual(t, a, b)
}
