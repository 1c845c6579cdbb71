package reconstruct

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/recibo/internal/normalize"
	"github.com/MeKo-Tech/recibo/internal/receipt"
)

func reconstructLine(t *testing.T, raw string) *receipt.LineItem {
	t.Helper()
	return Reconstruct(normalize.Normalize(raw))
}

func TestReconstruct_QuantityUnitTotal(t *testing.T) {
	item := reconstructLine(t, "2x Coffee 3.50 7.00")
	require.NotNil(t, item)

	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, "Coffee", item.Name)
	require.NotNil(t, item.UnitPrice)
	assert.True(t, item.UnitPrice.Equal(decimal.RequireFromString("3.50")))
	assert.True(t, item.LineTotal.Equal(decimal.RequireFromString("7.00")))
	assert.False(t, item.NeedsReview)
	assert.Empty(t, item.ReviewReasons)
	assert.InDelta(t, 0.8, item.Confidence, 0.001)
}

func TestReconstruct_MultibyteNames(t *testing.T) {
	item := reconstructLine(t, "Crème Brûlée 12.00")
	require.NotNil(t, item)
	assert.Equal(t, "Crème Brûlée", item.Name)
	assert.True(t, item.LineTotal.Equal(decimal.RequireFromString("12.00")))

	// 60 runes but 120 bytes: the name bounds count runes.
	long := strings.Repeat("é", 60)
	item = reconstructLine(t, long+" 12.00")
	require.NotNil(t, item)
	assert.Equal(t, long, item.Name)

	tooLong := strings.Repeat("é", 120)
	assert.Nil(t, reconstructLine(t, tooLong+" 12.00"))
}

func TestReconstruct_SingleAmount(t *testing.T) {
	item := reconstructLine(t, "Burger 12.50")
	require.NotNil(t, item)

	assert.Equal(t, 1, item.Quantity)
	assert.Equal(t, "Burger", item.Name)
	assert.Nil(t, item.UnitPrice)
	assert.True(t, item.LineTotal.Equal(decimal.RequireFromString("12.50")))
}

func TestReconstruct_SingleAmountWithQuantity(t *testing.T) {
	item := reconstructLine(t, "2x Muffin 8.00")
	require.NotNil(t, item)

	assert.Equal(t, 2, item.Quantity)
	assert.True(t, item.LineTotal.Equal(decimal.RequireFromString("8.00")))
	require.NotNil(t, item.UnitPrice, "unit price derived from total and quantity")
	assert.True(t, item.UnitPrice.Equal(decimal.RequireFromString("4.00")))
}

func TestReconstruct_ArithmeticMismatchFlaggedNotRepaired(t *testing.T) {
	item := reconstructLine(t, "3x Soda 2.00 5.00")
	require.NotNil(t, item)

	// Values stay as read; the disagreement is flagged, never repaired.
	require.NotNil(t, item.UnitPrice)
	assert.True(t, item.UnitPrice.Equal(decimal.RequireFromString("2.00")))
	assert.True(t, item.LineTotal.Equal(decimal.RequireFromString("5.00")))

	require.True(t, item.HasReason(receipt.ReasonArithmeticMismatch))
	assert.LessOrEqual(t, item.Confidence, 0.6)

	var rendered string
	for _, r := range item.ReviewReasons {
		if r.Code == receipt.ReasonArithmeticMismatch {
			rendered = r.Render()
		}
	}
	assert.Contains(t, rendered, "mismatch")
}

func TestReconstruct_ToleranceAllowsRoundingResidual(t *testing.T) {
	// 3 * 3.33 = 9.99, printed total 10.00: inside the 0.02 tolerance.
	item := reconstructLine(t, "3x Dumplings 3.33 10.00")
	require.NotNil(t, item)
	assert.False(t, item.HasReason(receipt.ReasonArithmeticMismatch))
}

func TestReconstruct_RejectsNonItemLines(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"subtotal line", "SUBTOTAL 45.00"},
		{"total line", "TOTAL 49.50"},
		{"tax line", "GST 4.50"},
		{"tip line", "Tip 5.00"},
		{"eftpos line", "EFTPOS 49.50"},
		{"change line", "CHANGE 0.50"},
		{"separator", "----------------"},
		{"too short", "ab"},
		{"no money token", "Thank you for visiting"},
		{"amount due", "AMOUNT DUE 49.50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, reconstructLine(t, tt.line))
		})
	}
}

func TestReconstruct_SuspiciousQuantity(t *testing.T) {
	item := reconstructLine(t, "12x Napkin 0.50 6.00")
	require.NotNil(t, item)

	assert.Equal(t, 12, item.Quantity)
	assert.True(t, item.HasReason(receipt.ReasonQuantitySuspicious))
	assert.LessOrEqual(t, item.Confidence, 0.5)
}

func TestReconstruct_QuantityOnlyAtLineStart(t *testing.T) {
	item := reconstructLine(t, "Milk 2L 4.50")
	require.NotNil(t, item)
	assert.Equal(t, 1, item.Quantity, "mid-line digit+letter is part of the name")
}

func TestReconstruct_NameFallbacks(t *testing.T) {
	// Name made of punctuation collapses; letters-only prefix is the fallback.
	item := reconstructLine(t, "Pad Thai ** 15.90")
	require.NotNil(t, item)
	assert.Equal(t, "Pad Thai", item.Name)
}

func TestLines_PositionalIDs(t *testing.T) {
	text := "CORNER CAFE\n2x Coffee 3.50 7.00\nTOTAL 19.50\nBurger 12.50"
	items := Lines(normalize.Lines(text))

	require.Len(t, items, 2)
	assert.Equal(t, "item-1", items[0].ID)
	assert.Equal(t, "Coffee", items[0].Name)
	assert.Equal(t, "item-2", items[1].ID)
	assert.Equal(t, "Burger", items[1].Name)
}

func TestLines_Deterministic(t *testing.T) {
	text := "2x Coffee 3.50 7.00\nBurger 12.50\n3x Soda 2.00 5.00"
	first := Lines(normalize.Lines(text))
	second := Lines(normalize.Lines(text))
	assert.Equal(t, first, second)
}

func TestReconstruct_OriginalLinePreserved(t *testing.T) {
	item := reconstructLine(t, "Zx Burger 12-50")
	require.NotNil(t, item)
	assert.Equal(t, "Zx Burger 12-50", item.OriginalLine)
	assert.Equal(t, 2, item.Quantity)
	assert.True(t, item.LineTotal.Equal(decimal.RequireFromString("12.50")))
}
