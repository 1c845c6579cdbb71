// Package normalize repairs known OCR character-confusion and garbage-token
// patterns in receipt lines before structural parsing. Rules are ordered and
// idempotent: later rules assume earlier garbage has been removed, and
// re-normalizing an already-normalized line produces no further changes. The
// package has no knowledge of prices' semantic validity.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

// Line is the result of normalizing one raw OCR line. Original is preserved
// verbatim for audit and debugging; Changes is a human-readable log of which
// repair rules fired and is never used for logic.
type Line struct {
	Normalized string   `json:"normalized"`
	Original   string   `json:"original"`
	Changes    []string `json:"changes,omitempty"`
}

var (
	// Quantity-token confusions at line start: I/l read for 1, Z read for 2.
	confusedQuantityRe = regexp.MustCompile(`^(\s*)([IlZ])\s*[xX]\s+`)

	// Hyphen read for a decimal point, only with plausible digit counts:
	// at most 3 before, exactly 2 after.
	hyphenDecimalRe = regexp.MustCompile(`\b(\d{1,3})-(\d{2})\b`)

	// Quoted codes anywhere in the line, e.g. "AB123".
	quotedCodeRe = regexp.MustCompile(`"[A-Za-z0-9]{2,}"`)

	// Trailing letter+digit codes, e.g. SKU fragments like B1234. Codes
	// stack, so the whole run strips in one match.
	trailingCodeRe = regexp.MustCompile(`(\s+[A-Za-z]{1,2}\d{2,6})+\s*$`)

	// Trailing one- or two-letter garbage after a money token, including
	// runs of it.
	trailingGarbageRe = regexp.MustCompile(`(\d{1,3}[.,]\d{2})(\s+[A-Za-z]{1,2})+\s*$`)

	// Trailing tax-code letters.
	trailingTaxCodeRe = regexp.MustCompile(`(\s+A)+\s*$`)

	// Currency tokens: AU$, (AUD), bare USD/AUD/NZD.
	currencyTokenRe = regexp.MustCompile(`(AU\$|NZ\$|US\$|\((?:AUD|USD|NZD)\)|\b(?:AUD|USD|NZD)\b)`)

	multiSpaceRe = regexp.MustCompile(`\s{2,}`)

	bareMoneyRe = regexp.MustCompile(`^\d{1,3}[.,]\d{2}$`)
)

// Duplicate price detection needs a backreference-free formulation since Go
// regexp has no backreferences; see stripDuplicatePrice.

// maxNormalizePasses bounds the fixpoint loop; every rule only shortens or
// stabilizes the line, so real input converges in one or two passes.
const maxNormalizePasses = 6

// Normalize applies the ordered repair rules to one raw OCR line. Stripping
// one garbage token can expose another rule's pattern (a tax code behind a
// currency marker, an SKU fragment behind a tax code), so the chain reruns
// until the line stops changing and the output is a fixpoint of every rule.
func Normalize(raw string) Line {
	line := Line{Original: raw, Normalized: raw}

	for range maxNormalizePasses {
		before := line.Normalized
		line.apply(repairQuantityToken, "repaired quantity token")
		line.apply(repairHyphenDecimal, "repaired hyphen-as-decimal")
		line.apply(stripQuotedCode, "removed quoted code")
		line.apply(stripTrailingCode, "removed trailing letter+digit code")
		line.apply(stripTrailingGarbage, "removed trailing letter garbage")
		line.apply(stripDuplicatePrice, "removed duplicated price fragment")
		line.apply(stripTrailingTaxCode, "removed trailing tax code")
		line.apply(stripCurrencyTokens, "removed currency token")
		line.apply(collapseQuotesAndWhitespace, "collapsed quotes and whitespace")
		if line.Normalized == before {
			break
		}
	}

	return line
}

// apply runs one rule and logs it when the line changed.
func (l *Line) apply(rule func(string) string, description string) {
	out := rule(l.Normalized)
	if out != l.Normalized {
		l.Changes = append(l.Changes, fmt.Sprintf("%s: %q -> %q", description, l.Normalized, out))
		l.Normalized = out
	}
}

func repairQuantityToken(s string) string {
	return confusedQuantityRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := confusedQuantityRe.FindStringSubmatch(m)
		digit := "1"
		if sub[2] == "Z" {
			digit = "2"
		}
		return sub[1] + digit + "x "
	})
}

func repairHyphenDecimal(s string) string {
	return hyphenDecimalRe.ReplaceAllString(s, "$1.$2")
}

func stripQuotedCode(s string) string {
	return quotedCodeRe.ReplaceAllString(s, "")
}

func stripTrailingCode(s string) string {
	return trailingCodeRe.ReplaceAllString(s, "")
}

func stripTrailingGarbage(s string) string {
	return trailingGarbageRe.ReplaceAllString(s, "$1")
}

// stripDuplicatePrice removes immediate repetitions of the same money token.
func stripDuplicatePrice(s string) string {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return s
	}
	out := fields[:1]
	for _, f := range fields[1:] {
		prev := out[len(out)-1]
		if bareMoneyRe.MatchString(f) && f == prev {
			continue
		}
		out = append(out, f)
	}
	if len(out) == len(fields) {
		return s
	}
	return strings.Join(out, " ")
}

func stripTrailingTaxCode(s string) string {
	return trailingTaxCodeRe.ReplaceAllString(s, "")
}

func stripCurrencyTokens(s string) string {
	return currencyTokenRe.ReplaceAllString(s, "")
}

func collapseQuotesAndWhitespace(s string) string {
	s = strings.ReplaceAll(s, `"`, "")
	s = strings.ReplaceAll(s, "'", "")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Lines normalizes every line of an OCR text block, preserving order.
func Lines(text string) []Line {
	raw := strings.Split(text, "\n")
	out := make([]Line, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		out = append(out, Normalize(r))
	}
	return out
}
