// Package score ranks raw OCR outputs using receipt-shaped-text heuristics
// and selects the best candidate. Scoring is deterministic and does no I/O;
// the rule order is fixed for reproducibility and not tunable at runtime.
package score

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/MeKo-Tech/recibo/internal/ocr"
)

// LowConfidenceThreshold is the absolute score below which a result routes
// the caller to the manual-entry path.
const LowConfidenceThreshold = 50.0

// minTextLength is the recognized-text length under which the garbage
// penalty applies.
const minTextLength = 30

var (
	leadingQuantityRe = regexp.MustCompile(`^\s*\d+\s*[xX]\s+`)
	trailingMoneyRe   = regexp.MustCompile(`\d{1,3}[.,]\d{2}\s*$`)
	dotMoneyRe        = regexp.MustCompile(`\d{1,3}\.\d{2}`)
	commaMoneyRe      = regexp.MustCompile(`\d{1,3},\d{2}`)
)

// receiptKeywords are merchant-ish and totals-ish words whose presence marks
// receipt text. Each contributes once, capping the keyword bonus at the set
// size.
var receiptKeywords = []string{
	"total", "subtotal", "sub-total", "tax", "gst", "vat",
	"balance", "change", "cash", "card", "eftpos", "receipt", "invoice",
}

// Scored pairs an OCR pass with its heuristic score.
type Scored struct {
	Result ocr.PassResult
	Score  float64
	// SourceOrder is the result's index in the input slice, used as the
	// final tie-break so ranking stays deterministic.
	SourceOrder int
}

// LowConfidence reports whether the candidate should trigger manual entry.
func (s Scored) LowConfidence() bool { return s.Score < LowConfidenceThreshold }

// Rank scores every result and returns them best-first. Ties break by
// engine-reported confidence, then by source order.
func Rank(results []ocr.PassResult) []Scored {
	scored := make([]Scored, len(results))
	for i, r := range results {
		scored[i] = Scored{Result: r, Score: Score(r), SourceOrder: i}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Result.Confidence != scored[j].Result.Confidence {
			return scored[i].Result.Confidence > scored[j].Result.Confidence
		}
		return scored[i].SourceOrder < scored[j].SourceOrder
	})
	return scored
}

// Best returns the winning candidate, or false when there are no candidates.
func Best(results []ocr.PassResult) (Scored, bool) {
	ranked := Rank(results)
	if len(ranked) == 0 {
		return Scored{}, false
	}
	return ranked[0], true
}

// Score computes the additive heuristic for one OCR pass. The terms are
// applied in a fixed order; the floor is clamped to 0.
func Score(r ocr.PassResult) float64 {
	lines := nonEmptyLines(r.Text)
	var score float64

	// Item-shaped lines: both signals beat one signal.
	for _, line := range lines {
		hasQty := leadingQuantityRe.MatchString(line)
		hasMoney := trailingMoneyRe.MatchString(line)
		switch {
		case hasQty && hasMoney:
			score += 20
		case hasQty || hasMoney:
			score += 10
		}
	}

	// Keyword presence, each keyword at most once.
	lower := strings.ToLower(r.Text)
	for _, kw := range receiptKeywords {
		if strings.Contains(lower, kw) {
			score += 10
		}
	}

	// General text-quality signal.
	for _, line := range lines {
		if hasLetterAndDigit(line) {
			score += 5
		}
	}

	// Structure bonus scaled by line count, capped at 40.
	structureLines := len(lines)
	if structureLines > 20 {
		structureLines = 20
	}
	score += 40 * float64(structureLines) / 20

	// Consistent money-token formatting across lines.
	if moneyFormattedLines(lines) >= 3 {
		score += 10
	}

	// Engine's own confidence.
	score += r.Confidence * 10

	// Penalties.
	if len(strings.TrimSpace(r.Text)) < minTextLength {
		score -= 20
	}
	if noiseDominated(r.Text) {
		score -= 30
	}

	if score < 0 {
		score = 0
	}
	return score
}

func nonEmptyLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func hasLetterAndDigit(line string) bool {
	var letter, digit bool
	for _, r := range line {
		if unicode.IsLetter(r) {
			letter = true
		}
		if unicode.IsDigit(r) {
			digit = true
		}
		if letter && digit {
			return true
		}
	}
	return false
}

// moneyFormattedLines counts the lines sharing the receipt's dominant money
// separator style. Lines mixing dot and comma tokens count toward neither,
// so a receipt with inconsistent decimal marks earns no consistency bonus.
func moneyFormattedLines(lines []string) int {
	var dot, comma int
	for _, l := range lines {
		hasDot := dotMoneyRe.MatchString(l)
		hasComma := commaMoneyRe.MatchString(l)
		switch {
		case hasDot && !hasComma:
			dot++
		case hasComma && !hasDot:
			comma++
		}
	}
	if dot >= comma {
		return dot
	}
	return comma
}

// noiseDominated reports whether over half of the non-whitespace characters
// are non-alphanumeric.
func noiseDominated(text string) bool {
	var total, noise int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			noise++
		}
	}
	return total > 0 && noise*2 > total
}
