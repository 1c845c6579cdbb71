// Package reconstruct parses a normalized receipt line into quantity, item
// name, unit price and line total using column-position rules. Arithmetic
// mismatches are flagged for review, never silently repaired: when the first
// and last money tokens disagree with quantity*unit, the item keeps the
// as-read values and carries a mismatch reason instead of swapping columns.
package reconstruct

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/MeKo-Tech/recibo/internal/normalize"
	"github.com/MeKo-Tech/recibo/internal/receipt"
	"github.com/shopspring/decimal"
)

// baseConfidence is the starting confidence for a reconstructed item. This
// stage only ever lowers it; later stages may raise it again after an
// explicit user edit or a confident applied correction.
const baseConfidence = 0.8

// arithmeticTolerance is the allowed quantity*unit vs total residual, in
// major units (2 minor currency units).
var arithmeticTolerance = decimal.NewFromFloat(0.02)

var (
	quantityPrefixRe = regexp.MustCompile(`^\s*(\d+)\s*[xX]\s+`)
	moneyTokenRe     = regexp.MustCompile(`\d{1,3}[.,]\d{2}`)
	separatorLineRe  = regexp.MustCompile(`^[\s\-=_*.]{3,}$`)
	totalsKeywordRe  = regexp.MustCompile(`(?i)\b(sub\s?-?total|total|tax|gst|vat|tip|gratuity|service|balance|change|cash|card|eftpos|amount\s+due)\b`)

	lettersPrefixRe  = regexp.MustCompile(`^[^\d]*`)
	shortSuffixRe    = regexp.MustCompile(`\s+[A-Za-z]{1,2}$`)
	trailingTaxRe    = regexp.MustCompile(`\s+A$`)
	nonNameCharsRe   = regexp.MustCompile(`[^\pL\pN&' \-]+`)
	collapseSpacesRe = regexp.MustCompile(`\s{2,}`)
)

// Reconstruct parses one normalized line. A nil result means "not an item
// line": too short, a separator, a totals/tax/tip keyword line, or a line
// with no money-shaped token.
func Reconstruct(line normalize.Line) *receipt.LineItem {
	text := strings.TrimSpace(line.Normalized)
	if len(text) < 3 {
		return nil
	}
	if separatorLineRe.MatchString(text) {
		return nil
	}
	if totalsKeywordRe.MatchString(text) {
		return nil
	}

	tokens := moneyTokenRe.FindAllString(text, -1)
	if len(tokens) == 0 {
		return nil
	}

	item := &receipt.LineItem{
		Quantity:     1,
		Confidence:   baseConfidence,
		OriginalLine: line.Original,
	}

	// Quantity only matches at line start; anywhere else a digit+x is part
	// of the item name (e.g. "2L milk" never matches).
	if m := quantityPrefixRe.FindStringSubmatch(text); m != nil {
		qty, _ := strconv.Atoi(m[1])
		if qty >= 1 {
			item.Quantity = qty
		}
	}

	name, ok := extractName(text, tokens)
	if !ok {
		return nil
	}
	item.Name = name

	if !assignPrices(item, tokens) {
		return nil
	}

	// Quantities over 10 are accepted but suspicious on a receipt line.
	if item.Quantity > 10 {
		item.AddReason(receipt.NewReason(receipt.ReasonQuantitySuspicious,
			"quantity", strconv.Itoa(item.Quantity)))
		item.Confidence = minFloat(item.Confidence, 0.5)
	}

	return item
}

// Lines reconstructs every normalized line, dropping non-item lines and
// assigning stable positional IDs.
func Lines(lines []normalize.Line) []receipt.LineItem {
	items := make([]receipt.LineItem, 0, len(lines))
	for _, l := range lines {
		if it := Reconstruct(l); it != nil {
			it.ID = "item-" + strconv.Itoa(len(items)+1)
			items = append(items, *it)
		}
	}
	return items
}

// extractName derives the item name by stripping the quantity prefix and
// every money token, then canonicalizing. Falls back to a letters-only
// prefix, then to a minimally-stripped raw line, before rejecting.
func extractName(text string, tokens []string) (string, bool) {
	stripped := quantityPrefixRe.ReplaceAllString(text, "")
	for _, tok := range tokens {
		stripped = strings.Replace(stripped, tok, " ", 1)
	}
	name := canonicalizeName(stripped)

	if utf8.RuneCountInString(name) < 3 {
		// Letters-only prefix before the first digit.
		prefix := lettersPrefixRe.FindString(quantityPrefixRe.ReplaceAllString(text, ""))
		name = canonicalizeName(prefix)
	}
	if utf8.RuneCountInString(name) < 3 {
		// Last resort: only strip the quantity prefix and a trailing short
		// letter suffix from the raw line.
		raw := quantityPrefixRe.ReplaceAllString(text, "")
		raw = shortSuffixRe.ReplaceAllString(raw, "")
		name = strings.TrimSpace(raw)
	}

	// Bounds are in runes, not bytes, so accented names measure correctly.
	if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
		return "", false
	}
	return name, true
}

// canonicalizeName trims OCR residue from a candidate name: trailing tax
// codes, 1-2 letter garbage suffixes, stray punctuation, doubled spaces.
func canonicalizeName(s string) string {
	s = nonNameCharsRe.ReplaceAllString(s, " ")
	s = collapseSpacesRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = trailingTaxRe.ReplaceAllString(s, "")
	s = shortSuffixRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// assignPrices applies the column logic for unit price and line total.
func assignPrices(item *receipt.LineItem, tokens []string) bool {
	amounts := make([]decimal.Decimal, 0, len(tokens))
	for _, tok := range tokens {
		amounts = append(amounts, parseMoney(tok))
	}

	qty := decimal.NewFromInt(int64(item.Quantity))
	switch {
	case len(amounts) == 1:
		item.LineTotal = amounts[0]
		if item.Quantity > 1 {
			// Derived for display, not independently asserted.
			u := amounts[0].Div(qty).Round(2)
			item.UnitPrice = &u
		}

	case item.Quantity > 1:
		// First column is the unit price, last column the line total.
		unit := amounts[0]
		item.UnitPrice = &unit
		item.LineTotal = amounts[len(amounts)-1]

		expected := unit.Mul(qty)
		if expected.Sub(item.LineTotal).Abs().GreaterThan(arithmeticTolerance) {
			item.AddReason(receipt.NewReason(receipt.ReasonArithmeticMismatch,
				"expected", expected.StringFixed(2),
				"actual", item.LineTotal.StringFixed(2)))
			item.Confidence = minFloat(item.Confidence, 0.6)
		}

	default:
		// Receipts commonly print unit price then total even without an
		// explicit multiplier; the last token is the total.
		unit := amounts[0]
		item.UnitPrice = &unit
		item.LineTotal = amounts[len(amounts)-1]
	}

	if !item.LineTotal.IsPositive() {
		return false
	}
	if item.UnitPrice != nil && !item.UnitPrice.IsPositive() {
		return false
	}
	return true
}

func parseMoney(tok string) decimal.Decimal {
	tok = strings.ReplaceAll(tok, ",", ".")
	d, err := decimal.NewFromString(tok)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
