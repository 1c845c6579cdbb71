// Package receipt defines the shared data model for the receipt recognition
// pipeline: input images, reconstructed line items, correction proposals and
// the final parsed receipt handed to callers.
package receipt

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// Image is a raw uploaded receipt image: the original byte buffer plus the
// MIME type the client declared. It is immutable once ingested.
type Image struct {
	Data []byte
	MIME string
}

// SupportedMIMETypes lists the accepted upload content types.
var SupportedMIMETypes = []string{"image/jpeg", "image/png", "image/webp"}

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
)

// SniffFormat inspects the leading magic bytes of data and returns the
// detected format ("jpeg", "png" or "webp"), or an empty string when the
// buffer does not start with a recognized image signature.
func SniffFormat(data []byte) string {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], jpegMagic):
		return "jpeg"
	case len(data) >= 4 && bytes.Equal(data[:4], pngMagic):
		return "png"
	case len(data) >= 12 && bytes.Equal(data[:4], riffMagic) && bytes.Equal(data[8:12], webpMagic):
		return "webp"
	default:
		return ""
	}
}

// Validate checks the structural invariants of an ingested image: non-empty
// buffer starting with a recognized magic-byte signature.
func (img Image) Validate() error {
	if len(img.Data) == 0 {
		return NewInvalidInput("ingest", fmt.Errorf("empty image buffer"))
	}
	if SniffFormat(img.Data) == "" {
		return NewInvalidInput("ingest", fmt.Errorf("buffer does not start with a recognized image signature"))
	}
	return nil
}

// LineItem is one reconstructed receipt line: quantity, item name, optional
// unit price, line total and the review bookkeeping accumulated through the
// pipeline. OriginalLine is always the verbatim OCR line for audit purposes.
type LineItem struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Quantity   int              `json:"quantity"`
	UnitPrice  *decimal.Decimal `json:"unitPrice"`
	LineTotal  decimal.Decimal  `json:"totalPrice"`
	Confidence float64          `json:"confidence"`

	NeedsReview   bool           `json:"needsReview"`
	ReviewReasons []ReviewReason `json:"reviewReasons,omitempty"`

	OriginalLine       string              `json:"rawText"`
	CorrectionMetadata *CorrectionMetadata `json:"correctionMetadata,omitempty"`
}

// HasReason reports whether any accumulated review reason carries the code.
func (it *LineItem) HasReason(code ReasonCode) bool {
	for _, r := range it.ReviewReasons {
		if r.Code == code {
			return true
		}
	}
	return false
}

// AddReason appends a review reason and marks the item for review.
func (it *LineItem) AddReason(r ReviewReason) {
	it.ReviewReasons = append(it.ReviewReasons, r)
	it.NeedsReview = true
}

// CorrectionType classifies how a suggested amount was derived.
type CorrectionType string

const (
	CorrectionExtraDigit     CorrectionType = "extra_digit"
	CorrectionMissingDecimal CorrectionType = "missing_decimal"
	CorrectionShiftedDecimal CorrectionType = "shifted_decimal"
	CorrectionNone           CorrectionType = "none"
)

// CorrectionProposal is an advisory suggestion to change a single field.
// Proposals are never applied by the pipeline itself; accepting one is a
// caller decision and must be recorded via CorrectionMetadata.
type CorrectionProposal struct {
	Field          string          `json:"field"`
	OriginalValue  decimal.Decimal `json:"originalValue"`
	SuggestedValue decimal.Decimal `json:"suggestedValue"`
	Type           CorrectionType  `json:"correctionType"`
	Confidence     float64         `json:"confidence"`
}

// CorrectionMetadata records an applied correction so the before/after values
// and rationale remain visible to the UI and audit trail.
type CorrectionMetadata struct {
	Field         string          `json:"field"`
	OriginalValue decimal.Decimal `json:"originalValue"`
	AppliedValue  decimal.Decimal `json:"appliedValue"`
	Type          CorrectionType  `json:"correctionType"`
	Confidence    float64         `json:"confidence"`
}

// ApplyCorrection applies an advisory proposal to the item's line total,
// recording the original value in CorrectionMetadata. It is the only
// sanctioned way to act on a proposal; silent mutation is not supported.
func ApplyCorrection(it *LineItem, p CorrectionProposal) {
	if p.Type == CorrectionNone {
		return
	}
	it.CorrectionMetadata = &CorrectionMetadata{
		Field:         p.Field,
		OriginalValue: it.LineTotal,
		AppliedValue:  p.SuggestedValue,
		Type:          p.Type,
		Confidence:    p.Confidence,
	}
	it.LineTotal = p.SuggestedValue
	if it.Quantity > 1 {
		u := p.SuggestedValue.Div(decimal.NewFromInt(int64(it.Quantity))).Round(2)
		it.UnitPrice = &u
	}
}

// ParsedReceipt is the final pipeline output for one uploaded image. The raw
// OCR text is always retained so a manual-entry UI can fall back to it.
type ParsedReceipt struct {
	Merchant string `json:"merchant,omitempty"`
	Date     string `json:"date,omitempty"`

	Items []LineItem `json:"items"`

	Subtotal      *decimal.Decimal `json:"subtotal,omitempty"`
	Tax           *decimal.Decimal `json:"tax,omitempty"`
	ServiceCharge *decimal.Decimal `json:"serviceCharge,omitempty"`
	Total         *decimal.Decimal `json:"total,omitempty"`

	Confidence       float64 `json:"confidence"`
	NeedsManualEntry bool    `json:"needsManualEntry"`
	RawText          string  `json:"rawText"`
}
