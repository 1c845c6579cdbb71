package sanity

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/recibo/internal/receipt"
)

func item(id, name string, total string, conf float64) receipt.LineItem {
	return receipt.LineItem{
		ID:         id,
		Name:       name,
		Quantity:   1,
		LineTotal:  decimal.RequireFromString(total),
		Confidence: conf,
	}
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCheck_CleanItemKeepsConfidence(t *testing.T) {
	items := []receipt.LineItem{
		item("item-1", "Coffee", "4.50", 0.8),
		item("item-2", "Burger", "12.50", 0.8),
		item("item-3", "Salad", "9.90", 0.8),
	}
	ctx := NewContext(items, dec("26.90"), nil)

	res := Check(items[0], ctx)
	assert.InDelta(t, 0.8, res.Confidence, 0.001)
	assert.False(t, res.NeedsReview)
	assert.Empty(t, res.ReviewReasons)
}

func TestCheck_MagnitudeOutlier(t *testing.T) {
	items := []receipt.LineItem{
		item("item-1", "Noodles", "8.00", 0.8),
		item("item-2", "Rice", "9.50", 0.8),
		item("item-3", "Curry", "11.00", 0.8),
		item("item-4", "Dumplings", "95.00", 0.8),
	}
	ctx := NewContext(items, nil, nil)

	res := Check(items[3], ctx)
	require.True(t, res.NeedsReview)
	assert.LessOrEqual(t, res.Confidence, 0.4)

	var hasOutlier bool
	for _, r := range res.ReviewReasons {
		if r.Code == receipt.ReasonMagnitudeOutlier {
			hasOutlier = true
		}
	}
	assert.True(t, hasOutlier)

	// 95.00 against siblings around 10: dropping the leading digit lands on
	// 5.00, dividing by 10 lands on 9.50. Both are proposed, extra digit first.
	require.NotEmpty(t, res.SuggestedCorrections)
	first := res.SuggestedCorrections[0]
	assert.Equal(t, receipt.CorrectionExtraDigit, first.Type)
	assert.True(t, first.SuggestedValue.Equal(decimal.RequireFromString("5.00")))
	for i := 1; i < len(res.SuggestedCorrections); i++ {
		assert.LessOrEqual(t,
			res.SuggestedCorrections[i].Confidence,
			res.SuggestedCorrections[i-1].Confidence,
			"proposals ordered by confidence")
	}
}

func TestCheck_ExceedsReceiptTotal(t *testing.T) {
	items := []receipt.LineItem{
		item("item-1", "Coffee", "45.00", 0.8),
		item("item-2", "Muffin", "4.00", 0.8),
	}
	ctx := NewContext(items, dec("20.00"), nil)

	res := Check(items[0], ctx)
	require.True(t, res.NeedsReview)
	assert.LessOrEqual(t, res.Confidence, 0.3)
}

func TestCheck_WithinTotalMarginNotFlagged(t *testing.T) {
	items := []receipt.LineItem{item("item-1", "Coffee", "20.50", 0.8)}
	ctx := NewContext(items, dec("20.00"), nil)

	// 10% headroom absorbs rounding and OCR slack on the total line.
	res := Check(items[0], ctx)
	assert.Empty(t, res.ReviewReasons)
}

func TestCheck_LowFoodUnitPrice(t *testing.T) {
	unit := decimal.RequireFromString("0.95")
	suspect := receipt.LineItem{
		ID:         "item-1",
		Name:       "Chicken Burger",
		Quantity:   1,
		UnitPrice:  &unit,
		LineTotal:  decimal.RequireFromString("0.95"),
		Confidence: 0.8,
	}
	items := []receipt.LineItem{
		suspect,
		item("item-2", "Pizza", "18.00", 0.8),
		item("item-3", "Pasta", "21.00", 0.8),
	}
	ctx := NewContext(items, nil, nil)

	res := Check(suspect, ctx)
	require.True(t, res.NeedsReview)
	assert.LessOrEqual(t, res.Confidence, 0.5)

	// Siblings sit in the 10-50 band, so a prefixed-digit repair is offered.
	var hasUnitProposal bool
	for _, p := range res.SuggestedCorrections {
		if p.Field == "unitPrice" {
			hasUnitProposal = true
			assert.True(t, p.SuggestedValue.Equal(decimal.RequireFromString("20.95")))
		}
	}
	assert.True(t, hasUnitProposal)
}

func TestCheck_UncommonCents(t *testing.T) {
	items := []receipt.LineItem{
		item("item-1", "Coffee", "4.50", 0.8),
		item("item-2", "Muffin", "5.95", 0.8),
		item("item-3", "Juice", "6.00", 0.8),
		item("item-4", "Scone", "4.37", 0.8),
	}
	ctx := NewContext(items, nil, nil)

	res := Check(items[3], ctx)
	var hasCents bool
	for _, r := range res.ReviewReasons {
		if r.Code == receipt.ReasonUncommonCents {
			hasCents = true
		}
	}
	assert.True(t, hasCents)
	assert.LessOrEqual(t, res.Confidence, 0.7)
}

func TestCheck_HighQuantity(t *testing.T) {
	it := item("item-1", "Coffee", "31.50", 0.8)
	it.Quantity = 7
	ctx := NewContext([]receipt.LineItem{it}, nil, nil)

	res := Check(it, ctx)
	require.True(t, res.NeedsReview)
	assert.LessOrEqual(t, res.Confidence, 0.5)
}

func TestApply(t *testing.T) {
	it := item("item-1", "Coffee", "4.50", 0.8)
	res := Result{
		Confidence:    0.4,
		NeedsReview:   true,
		ReviewReasons: []receipt.ReviewReason{receipt.NewReason(receipt.ReasonMagnitudeOutlier)},
	}
	Apply(&it, res)

	assert.InDelta(t, 0.4, it.Confidence, 0.001)
	assert.True(t, it.NeedsReview)
	assert.True(t, it.HasReason(receipt.ReasonMagnitudeOutlier))
}

func TestAutoCorrectAmount_OnlyStrictImprovements(t *testing.T) {
	items := []receipt.LineItem{
		item("item-1", "Coffee", "8.00", 0.8),
		item("item-2", "Tea", "9.00", 0.8),
		item("item-3", "Cake", "10.00", 0.8),
	}
	ctx := NewContext(items, nil, nil)

	// 9.00 is already at the sibling median; nothing to improve.
	proposals := AutoCorrectAmount(items[1], ctx)
	assert.Empty(t, proposals)
}

func TestAutoCorrectAmount_MissingDecimal(t *testing.T) {
	items := []receipt.LineItem{
		item("item-1", "Coffee", "450.00", 0.8),
		item("item-2", "Tea", "4.00", 0.8),
		item("item-3", "Cake", "5.00", 0.8),
	}
	ctx := NewContext(items, nil, nil)

	proposals := AutoCorrectAmount(items[0], ctx)
	require.NotEmpty(t, proposals)

	var hasMissingDecimal bool
	for _, p := range proposals {
		if p.Type == receipt.CorrectionMissingDecimal {
			hasMissingDecimal = true
			assert.True(t, p.SuggestedValue.Equal(decimal.RequireFromString("4.50")))
		}
	}
	assert.True(t, hasMissingDecimal)
}

func TestCheck_ConfidenceNeverRises(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genAmount := gen.Float64Range(0.01, 500).Map(func(f float64) string {
		return decimal.NewFromFloat(f).Round(2).StringFixed(2)
	})

	properties.Property("check only lowers confidence", prop.ForAll(
		func(conf float64, a, b, c string) bool {
			items := []receipt.LineItem{
				item("item-1", "Coffee", a, conf),
				item("item-2", "Burger", b, 0.8),
				item("item-3", "Salad", c, 0.8),
			}
			ctx := NewContext(items, nil, nil)
			res := Check(items[0], ctx)
			return res.Confidence <= conf
		},
		gen.Float64Range(0, 1),
		genAmount, genAmount, genAmount,
	))

	properties.TestingRun(t)
}
