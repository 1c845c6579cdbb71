// Package sanity re-evaluates every reconstructed item against whole-receipt
// statistics: the other items' magnitudes, the extracted receipt total, and
// common cent patterns. Rules only ever lower confidence, and corrections are
// always surfaced as advisory proposals, never applied here.
package sanity

import (
	"sort"

	"github.com/MeKo-Tech/recibo/internal/receipt"
	"github.com/shopspring/decimal"
)

// Context is the read-only whole-receipt view every rule consults. It is
// built once per receipt and rebuilt if items are re-parsed.
type Context struct {
	Items        []receipt.LineItem
	ReceiptTotal *decimal.Decimal
	Subtotal     *decimal.Decimal
}

// NewContext builds a Context over the full item set.
func NewContext(items []receipt.LineItem, total, subtotal *decimal.Decimal) *Context {
	return &Context{Items: items, ReceiptTotal: total, Subtotal: subtotal}
}

// siblingStats summarizes the line totals of every item except the one under
// evaluation.
type siblingStats struct {
	count  int
	mean   decimal.Decimal
	median decimal.Decimal
	max    decimal.Decimal
	totals []decimal.Decimal
}

// siblings computes statistics over all items other than the item with the
// given ID.
func (c *Context) siblings(excludeID string) siblingStats {
	var totals []decimal.Decimal
	for _, it := range c.Items {
		if it.ID == excludeID {
			continue
		}
		totals = append(totals, it.LineTotal)
	}
	stats := siblingStats{count: len(totals), totals: totals}
	if len(totals) == 0 {
		return stats
	}

	sum := decimal.Zero
	stats.max = totals[0]
	for _, t := range totals {
		sum = sum.Add(t)
		if t.GreaterThan(stats.max) {
			stats.max = t
		}
	}
	stats.mean = sum.Div(decimal.NewFromInt(int64(len(totals))))

	sorted := make([]decimal.Decimal, len(totals))
	copy(sorted, totals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		stats.median = sorted[mid]
	} else {
		stats.median = sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
	}
	return stats
}

// commonCentsShare returns the fraction of sibling items whose cents suffix
// is one of the common receipt endings.
func (c *Context) commonCentsShare(excludeID string) float64 {
	var total, common int
	for _, it := range c.Items {
		if it.ID == excludeID {
			continue
		}
		total++
		if isCommonCents(it.LineTotal) {
			common++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(common) / float64(total)
}

// commonCents are the cent endings receipts overwhelmingly use.
var commonCents = map[int]bool{95: true, 90: true, 50: true, 99: true, 0: true}

func isCommonCents(d decimal.Decimal) bool {
	cents := d.Mod(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return commonCents[int(cents)]
}
