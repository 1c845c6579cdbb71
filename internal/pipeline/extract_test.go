package pipeline

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/recibo/internal/normalize"
	"github.com/MeKo-Tech/recibo/internal/receipt"
)

func TestExtractTotals(t *testing.T) {
	text := `CORNER CAFE
2x Coffee 3.50 7.00
Burger 12.50
SUBTOTAL 19.50
GST 1.95
Service 2.00
TOTAL 23.45`

	totals := ExtractTotals(normalize.Lines(text))

	require.NotNil(t, totals.Subtotal)
	assert.True(t, totals.Subtotal.Equal(decimal.RequireFromString("19.50")))
	require.NotNil(t, totals.Tax)
	assert.True(t, totals.Tax.Equal(decimal.RequireFromString("1.95")))
	require.NotNil(t, totals.ServiceCharge)
	assert.True(t, totals.ServiceCharge.Equal(decimal.RequireFromString("2.00")))
	require.NotNil(t, totals.Total)
	assert.True(t, totals.Total.Equal(decimal.RequireFromString("23.45")))
}

func TestExtractTotals_LastTotalWins(t *testing.T) {
	text := "TOTAL 10.00\nTOTAL 12.00"
	totals := ExtractTotals(normalize.Lines(text))
	require.NotNil(t, totals.Total)
	assert.True(t, totals.Total.Equal(decimal.RequireFromString("12.00")))
}

func TestExtractTotals_SubtotalNotMistakenForTotal(t *testing.T) {
	text := "SUB-TOTAL 19.50"
	totals := ExtractTotals(normalize.Lines(text))
	require.NotNil(t, totals.Subtotal)
	assert.Nil(t, totals.Total)
}

func TestExtractTotals_MissingAmountsStayNil(t *testing.T) {
	totals := ExtractTotals(normalize.Lines("Coffee 3.50\nThank you"))
	assert.Nil(t, totals.Subtotal)
	assert.Nil(t, totals.Tax)
	assert.Nil(t, totals.Total)
}

func TestExtractMerchant(t *testing.T) {
	text := "CORNER CAFE\n123 Main St\n2x Coffee 3.50 7.00"
	assert.Equal(t, "CORNER CAFE", ExtractMerchant(normalize.Lines(text)))
}

func TestExtractMerchant_SkipsDigitLines(t *testing.T) {
	text := "04/07/2025 10:31\nHARBOUR KITCHEN\nCoffee 3.50"
	assert.Equal(t, "HARBOUR KITCHEN", ExtractMerchant(normalize.Lines(text)))
}

func TestExtractMerchant_NotBelowTopLines(t *testing.T) {
	text := "1\n2\n3\n4\n5\nDEEP MERCHANT"
	assert.Empty(t, ExtractMerchant(normalize.Lines(text)))
}

func TestExtractDate(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"CAFE\n2025-07-04 10:31\nCoffee 3.50", "2025-07-04"},
		{"CAFE\n04/07/2025\nCoffee 3.50", "04/07/2025"},
		{"CAFE\n4.7.25\nCoffee 3.50", "4.7.25"},
		{"CAFE\nCoffee 3.50", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractDate(normalize.Lines(tt.text)))
	}
}

func TestAggregate(t *testing.T) {
	total := decimal.RequireFromString("19.50")
	items := []receipt.LineItem{
		{ID: "item-1", LineTotal: decimal.RequireFromString("7.00"), Confidence: 0.8},
		{ID: "item-2", LineTotal: decimal.RequireFromString("12.50"), Confidence: 0.8},
	}

	conf, manual := Aggregate(items, &total)
	assert.False(t, manual)
	// 0.5*0.8 + 0.2 + 0.15 + 0.15: items reconcile with the printed total.
	assert.InDelta(t, 0.9, conf, 0.001)
}

func TestAggregate_NoItems(t *testing.T) {
	conf, manual := Aggregate(nil, nil)
	assert.True(t, manual)
	assert.Zero(t, conf)
}

func TestAggregate_TotalMismatchDropsReconcileWeight(t *testing.T) {
	total := decimal.RequireFromString("99.00")
	items := []receipt.LineItem{
		{ID: "item-1", LineTotal: decimal.RequireFromString("7.00"), Confidence: 0.8},
	}
	conf, _ := Aggregate(items, &total)
	assert.InDelta(t, 0.75, conf, 0.001)
}
