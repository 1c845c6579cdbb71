package sanity

import (
	"strconv"
	"strings"

	"github.com/MeKo-Tech/recibo/internal/receipt"
	"github.com/shopspring/decimal"
)

// reviewThreshold: items below this confidence always need review, even when
// no individual rule fired.
const reviewThreshold = 0.7

// foodKeywords mark item names where a sub-unit price is implausible.
var foodKeywords = []string{
	"burger", "pizza", "pasta", "salad", "steak", "chicken", "fish",
	"coffee", "latte", "tea", "juice", "beer", "wine", "soda",
	"sandwich", "wrap", "roll", "soup", "rice", "noodle", "curry",
	"cake", "dessert", "fries", "meal",
}

// Result is the sanity verdict for one item. Confidence is never higher than
// the item's incoming confidence; every rule lowers it via min.
type Result struct {
	Confidence           float64
	NeedsReview          bool
	ReviewReasons        []receipt.ReviewReason
	SuggestedCorrections []receipt.CorrectionProposal
}

// Check evaluates one item against the receipt context. Rules are
// independent; each only lowers confidence.
func Check(item receipt.LineItem, ctx *Context) Result {
	res := Result{Confidence: item.Confidence}
	stats := ctx.siblings(item.ID)

	checkLowUnitPrice(&res, item, stats)
	checkAgainstReceiptTotal(&res, item, ctx)
	checkUncommonCents(&res, item, ctx)
	checkHighQuantity(&res, item)
	checkMagnitude(&res, item, stats)
	checkProductResidual(&res, item)

	if len(res.ReviewReasons) > 0 {
		res.NeedsReview = true
	}
	if res.Confidence < reviewThreshold {
		res.NeedsReview = true
	}

	// Corrections are attempted only for items the rules found suspicious.
	if len(res.ReviewReasons) > 0 && item.LineTotal.IsPositive() {
		res.SuggestedCorrections = AutoCorrectAmount(item, ctx)
	}

	return res
}

// Apply folds a sanity result back into the item.
func Apply(item *receipt.LineItem, res Result) {
	item.Confidence = res.Confidence
	for _, r := range res.ReviewReasons {
		item.AddReason(r)
	}
	if res.NeedsReview {
		item.NeedsReview = true
	}
}

func lower(res *Result, ceiling float64) {
	if res.Confidence > ceiling {
		res.Confidence = ceiling
	}
}

// checkLowUnitPrice flags food items priced under a major unit: almost always
// a missing leading digit. When the rest of the receipt sits in the 10-50
// range, a prefixed-digit suggestion is added.
func checkLowUnitPrice(res *Result, item receipt.LineItem, stats siblingStats) {
	if item.UnitPrice == nil || !containsFoodKeyword(item.Name) {
		return
	}
	if item.UnitPrice.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return
	}
	res.ReviewReasons = append(res.ReviewReasons, receipt.NewReason(receipt.ReasonUnitPriceLow,
		"unitPrice", item.UnitPrice.StringFixed(2)))
	lower(res, 0.5)

	if stats.count > 0 &&
		stats.mean.GreaterThanOrEqual(decimal.NewFromInt(10)) &&
		stats.mean.LessThanOrEqual(decimal.NewFromInt(50)) {
		suggested, err := decimal.NewFromString("2" + item.UnitPrice.StringFixed(2))
		if err == nil {
			res.SuggestedCorrections = append(res.SuggestedCorrections, receipt.CorrectionProposal{
				Field:          "unitPrice",
				OriginalValue:  *item.UnitPrice,
				SuggestedValue: suggested,
				Type:           receipt.CorrectionExtraDigit,
				Confidence:     0.6,
			})
		}
	}
}

// checkAgainstReceiptTotal flags a line total exceeding the extracted receipt
// total by more than 10%.
func checkAgainstReceiptTotal(res *Result, item receipt.LineItem, ctx *Context) {
	if ctx.ReceiptTotal == nil || !ctx.ReceiptTotal.IsPositive() {
		return
	}
	limit := ctx.ReceiptTotal.Mul(decimal.NewFromFloat(1.10))
	if item.LineTotal.GreaterThan(limit) {
		res.ReviewReasons = append(res.ReviewReasons, receipt.NewReason(receipt.ReasonExceedsTotal,
			"lineTotal", item.LineTotal.StringFixed(2),
			"receiptTotal", ctx.ReceiptTotal.StringFixed(2)))
		lower(res, 0.3)
	}
}

// checkUncommonCents is a weak OCR-garbled-decimal signal: the item's cents
// suffix is rare while sibling items mostly use the common endings.
func checkUncommonCents(res *Result, item receipt.LineItem, ctx *Context) {
	if isCommonCents(item.LineTotal) {
		return
	}
	if ctx.commonCentsShare(item.ID) < 0.5 {
		return
	}
	cents := item.LineTotal.Mod(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	res.ReviewReasons = append(res.ReviewReasons, receipt.NewReason(receipt.ReasonUncommonCents,
		"cents", "."+pad2(int(cents))))
	lower(res, 0.7)
}

func checkHighQuantity(res *Result, item receipt.LineItem) {
	if item.Quantity > 6 {
		res.ReviewReasons = append(res.ReviewReasons, receipt.NewReason(receipt.ReasonQuantityHigh,
			"quantity", strconv.Itoa(item.Quantity)))
		lower(res, 0.5)
	}
}

// checkMagnitude is the order-of-magnitude detector: a line total more than
// twice the sibling maximum, or five times the sibling mean, is suspect.
func checkMagnitude(res *Result, item receipt.LineItem, stats siblingStats) {
	if stats.count == 0 {
		return
	}
	if item.LineTotal.GreaterThan(stats.max.Mul(decimal.NewFromInt(2))) {
		res.ReviewReasons = append(res.ReviewReasons, receipt.NewReason(receipt.ReasonMagnitudeOutlier,
			"lineTotal", item.LineTotal.StringFixed(2)))
		lower(res, 0.4)
		return
	}
	if stats.mean.IsPositive() && item.LineTotal.GreaterThan(stats.mean.Mul(decimal.NewFromInt(5))) {
		res.ReviewReasons = append(res.ReviewReasons, receipt.NewReason(receipt.ReasonMagnitudeOutlier,
			"lineTotal", item.LineTotal.StringFixed(2)))
		lower(res, 0.5)
	}
}

// checkProductResidual re-verifies quantity*unit against the total with the
// full receipt in view. The reconstructor already checked this per-line; a
// locally-plausible assignment can still be globally implausible, so the
// signal is intentionally re-applied here.
func checkProductResidual(res *Result, item receipt.LineItem) {
	if item.Quantity <= 1 || item.UnitPrice == nil {
		return
	}
	expected := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
	if expected.Sub(item.LineTotal).Abs().GreaterThan(decimal.NewFromFloat(0.02)) {
		res.ReviewReasons = append(res.ReviewReasons, receipt.NewReason(receipt.ReasonContextMismatch,
			"expected", expected.StringFixed(2),
			"actual", item.LineTotal.StringFixed(2)))
		lower(res, 0.6)
	}
}

func containsFoodKeyword(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range foodKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
