package pipeline

import (
	"github.com/MeKo-Tech/recibo/internal/receipt"
	"github.com/shopspring/decimal"
)

// reconcileTolerance is the absolute allowance when comparing the sum of
// item totals against the extracted receipt total.
var reconcileTolerance = decimal.NewFromInt(2)

// Aggregate combines per-item confidences with coarse receipt-level signals
// into one overall confidence:
//
//	0.5*(mean item confidence) + 0.2*(any items) + 0.15*(total extracted) +
//	0.15*(items reconcile with total)
//
// needsManualEntry is raised when zero items were reconstructed; the caller
// additionally raises it when the scorer flagged the selected OCR result as
// low confidence.
func Aggregate(items []receipt.LineItem, total *decimal.Decimal) (float64, bool) {
	var confidence float64

	if len(items) > 0 {
		var mean float64
		for _, it := range items {
			mean += it.Confidence
		}
		mean /= float64(len(items))
		confidence += 0.5 * mean
		confidence += 0.2
	}

	if total != nil {
		confidence += 0.15
		if len(items) > 0 && sumReconciles(items, *total) {
			confidence += 0.15
		}
	}

	return confidence, len(items) == 0
}

func sumReconciles(items []receipt.LineItem, total decimal.Decimal) bool {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.LineTotal)
	}
	return sum.Sub(total).Abs().LessThanOrEqual(reconcileTolerance)
}
