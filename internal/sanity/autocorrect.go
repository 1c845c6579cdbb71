package sanity

import (
	"strings"

	"github.com/MeKo-Tech/recibo/internal/receipt"
	"github.com/shopspring/decimal"
)

// Fixed confidence bands per correction strategy.
const (
	extraDigitConfidence     = 0.7
	missingDecimalConfidence = 0.6
	shiftedDecimalConfidence = 0.5
)

// AutoCorrectAmount proposes corrections for a suspicious line total using
// three independently-scored strategies: an extra leading digit, a missing
// decimal point, and a shifted decimal point. A candidate is returned only
// when it strictly reduces the distance to the sibling median versus the
// uncorrected value. Proposals are advisory; this package never applies one.
func AutoCorrectAmount(item receipt.LineItem, ctx *Context) []receipt.CorrectionProposal {
	if !item.LineTotal.IsPositive() {
		return nil
	}
	stats := ctx.siblings(item.ID)
	if stats.count == 0 {
		return nil
	}

	original := item.LineTotal
	baseline := original.Sub(stats.median).Abs()

	var proposals []receipt.CorrectionProposal
	add := func(candidate decimal.Decimal, kind receipt.CorrectionType, conf float64) {
		if !candidate.IsPositive() || candidate.Equal(original) {
			return
		}
		if candidate.Sub(stats.median).Abs().GreaterThanOrEqual(baseline) {
			return
		}
		proposals = append(proposals, receipt.CorrectionProposal{
			Field:          "totalPrice",
			OriginalValue:  original,
			SuggestedValue: candidate,
			Type:           kind,
			Confidence:     conf,
		})
	}

	// Highest-confidence strategy first; the order is part of the contract.
	if c, ok := dropLeadingDigit(original); ok {
		add(c, receipt.CorrectionExtraDigit, extraDigitConfidence)
	}
	add(original.Div(decimal.NewFromInt(100)), receipt.CorrectionMissingDecimal, missingDecimalConfidence)
	add(original.Div(decimal.NewFromInt(10)), receipt.CorrectionShiftedDecimal, shiftedDecimalConfidence)

	return proposals
}

// dropLeadingDigit removes the first digit of the integer part: 95.00 becomes
// 5.00. Amounts with a single-digit integer part have nothing to drop.
func dropLeadingDigit(d decimal.Decimal) (decimal.Decimal, bool) {
	s := d.StringFixed(2)
	dot := strings.IndexByte(s, '.')
	if dot <= 1 {
		return decimal.Zero, false
	}
	out, err := decimal.NewFromString(s[1:])
	if err != nil {
		return decimal.Zero, false
	}
	return out, true
}
