package receipt

import (
	"encoding/json"
	"fmt"
)

// ReasonCode identifies why an item was flagged for review. Codes are stable
// identifiers for tests and clients; human-readable text is rendered only at
// the presentation boundary.
type ReasonCode string

const (
	ReasonQuantitySuspicious ReasonCode = "quantity_suspicious"
	ReasonQuantityHigh       ReasonCode = "quantity_high"
	ReasonArithmeticMismatch ReasonCode = "arithmetic_mismatch"
	ReasonUnitPriceLow       ReasonCode = "unit_price_low"
	ReasonExceedsTotal       ReasonCode = "exceeds_receipt_total"
	ReasonUncommonCents      ReasonCode = "uncommon_cents"
	ReasonMagnitudeOutlier   ReasonCode = "magnitude_outlier"
	ReasonContextMismatch    ReasonCode = "context_arithmetic_mismatch"
	ReasonLowConfidence      ReasonCode = "low_confidence"
)

// ReviewReason is a structured review flag: a stable code plus the parameters
// needed to render it. Params never drive pipeline logic.
type ReviewReason struct {
	Code   ReasonCode        `json:"code"`
	Params map[string]string `json:"params,omitempty"`
}

// NewReason builds a ReviewReason from a code and alternating key/value params.
func NewReason(code ReasonCode, kv ...string) ReviewReason {
	r := ReviewReason{Code: code}
	if len(kv) > 0 {
		r.Params = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			r.Params[kv[i]] = kv[i+1]
		}
	}
	return r
}

// Render produces the human-readable sentence for the reason.
func (r ReviewReason) Render() string {
	p := func(k string) string { return r.Params[k] }
	switch r.Code {
	case ReasonQuantitySuspicious:
		return fmt.Sprintf("quantity %s is unusually high for a single line", p("quantity"))
	case ReasonQuantityHigh:
		return fmt.Sprintf("quantity %s is higher than typical for this receipt", p("quantity"))
	case ReasonArithmeticMismatch:
		return fmt.Sprintf("quantity/price mismatch: expected %s but line total is %s", p("expected"), p("actual"))
	case ReasonUnitPriceLow:
		return fmt.Sprintf("unit price %s looks too low, possibly missing a leading digit", p("unitPrice"))
	case ReasonExceedsTotal:
		return fmt.Sprintf("line total %s exceeds the receipt total %s", p("lineTotal"), p("receiptTotal"))
	case ReasonUncommonCents:
		return fmt.Sprintf("cents suffix %s is uncommon on this receipt, decimal may be garbled", p("cents"))
	case ReasonMagnitudeOutlier:
		return fmt.Sprintf("line total %s is an order of magnitude above other items", p("lineTotal"))
	case ReasonContextMismatch:
		return fmt.Sprintf("quantity/price mismatch against receipt context: expected %s but line total is %s", p("expected"), p("actual"))
	case ReasonLowConfidence:
		return "confidence below review threshold"
	default:
		return string(r.Code)
	}
}

// MarshalJSON emits the code, params, and the rendered message so clients can
// display text without knowing the code table.
func (r ReviewReason) MarshalJSON() ([]byte, error) {
	type alias struct {
		Code    ReasonCode        `json:"code"`
		Params  map[string]string `json:"params,omitempty"`
		Message string            `json:"message"`
	}
	return json.Marshal(alias{Code: r.Code, Params: r.Params, Message: r.Render()})
}
