package pipeline

import (
	"regexp"
	"strings"

	"github.com/MeKo-Tech/recibo/internal/normalize"
	"github.com/shopspring/decimal"
)

// Totals carries the best-effort receipt-level amounts pulled from the OCR
// text. Any field may be nil when the receipt does not print it or OCR lost
// it; items remain authoritative either way.
type Totals struct {
	Subtotal      *decimal.Decimal
	Tax           *decimal.Decimal
	ServiceCharge *decimal.Decimal
	Total         *decimal.Decimal
}

var (
	moneyTailRe = regexp.MustCompile(`(\d{1,4}[.,]\d{2})\s*$`)

	subtotalRe = regexp.MustCompile(`(?i)\bsub\s?-?total\b`)
	taxRe      = regexp.MustCompile(`(?i)\b(tax|gst|vat)\b`)
	serviceRe  = regexp.MustCompile(`(?i)\b(service|gratuity|tip)\b`)
	totalRe    = regexp.MustCompile(`(?i)\b(total|amount\s+due|balance\s+due)\b`)

	dateRe = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}[/.]\d{1,2}[/.]\d{2,4})\b`)

	digitRe = regexp.MustCompile(`\d`)
)

// ExtractTotals scans normalized lines for subtotal, tax, service charge and
// total amounts. Subtotal is matched before total since every subtotal line
// also contains the word "total"; the last matching line wins for the grand
// total, which receipts print beneath any intermediate totals.
func ExtractTotals(lines []normalize.Line) Totals {
	var t Totals
	for _, line := range lines {
		m := moneyTailRe.FindStringSubmatch(line.Normalized)
		if m == nil {
			continue
		}
		amount := parseAmount(m[1])
		if amount == nil {
			continue
		}

		switch {
		case subtotalRe.MatchString(line.Normalized):
			if t.Subtotal == nil {
				t.Subtotal = amount
			}
		case serviceRe.MatchString(line.Normalized):
			if t.ServiceCharge == nil {
				t.ServiceCharge = amount
			}
		case taxRe.MatchString(line.Normalized):
			if t.Tax == nil {
				t.Tax = amount
			}
		case totalRe.MatchString(line.Normalized):
			t.Total = amount
		}
	}
	return t
}

// ExtractMerchant guesses the merchant from the top of the receipt: the
// first sufficiently wordy line without digits among the first few lines.
func ExtractMerchant(lines []normalize.Line) string {
	limit := len(lines)
	if limit > 5 {
		limit = 5
	}
	for _, line := range lines[:limit] {
		candidate := strings.TrimSpace(line.Normalized)
		if len(candidate) < 3 || len(candidate) > 60 {
			continue
		}
		if digitRe.MatchString(candidate) {
			continue
		}
		return candidate
	}
	return ""
}

// ExtractDate returns the first date-shaped token in the text, verbatim.
// It scans the original lines: the hyphen-as-decimal repair would otherwise
// turn the day part of an ISO date into a money token. Interpretation
// (day-first vs month-first) is left to the caller's locale.
func ExtractDate(lines []normalize.Line) string {
	for _, line := range lines {
		if m := dateRe.FindString(line.Original); m != "" {
			return m
		}
	}
	return ""
}

func parseAmount(tok string) *decimal.Decimal {
	tok = strings.ReplaceAll(tok, ",", ".")
	d, err := decimal.NewFromString(tok)
	if err != nil || !d.IsPositive() {
		return nil
	}
	return &d
}
