package ocr

import (
	"context"
	"fmt"

	"github.com/MeKo-Tech/recibo/internal/preprocess"
	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine runs passes through a local Tesseract installation via
// gosseract. A fresh client is created per pass; gosseract clients are not
// safe for concurrent reuse and per-pass state (image, PSM) would leak
// between invocations otherwise.
type TesseractEngine struct {
	language       string
	tessdataPrefix string
}

// TesseractOption configures a TesseractEngine.
type TesseractOption func(*TesseractEngine)

// WithLanguage sets the recognition language (default "eng").
func WithLanguage(lang string) TesseractOption {
	return func(e *TesseractEngine) {
		if lang != "" {
			e.language = lang
		}
	}
}

// WithTessdataPrefix overrides the tessdata directory.
func WithTessdataPrefix(prefix string) TesseractOption {
	return func(e *TesseractEngine) { e.tessdataPrefix = prefix }
}

// NewTesseractEngine creates the default Tesseract-backed engine.
func NewTesseractEngine(opts ...TesseractOption) *TesseractEngine {
	e := &TesseractEngine{language: "eng"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func segModeToPSM(mode SegMode) gosseract.PageSegMode {
	switch mode {
	case SegSparseText:
		return gosseract.PSM_SPARSE_TEXT
	default:
		return gosseract.PSM_SINGLE_BLOCK
	}
}

// Recognize implements Engine.
func (e *TesseractEngine) Recognize(ctx context.Context, variant preprocess.Variant, mode SegMode) (PassResult, error) {
	if err := ctx.Err(); err != nil {
		return PassResult{}, err
	}
	if len(variant.Data) == 0 {
		return PassResult{}, fmt.Errorf("variant %s carries no encoded data", variant.Strategy)
	}

	client := gosseract.NewClient()
	defer func() { _ = client.Close() }()

	if e.tessdataPrefix != "" {
		client.SetTessdataPrefix(e.tessdataPrefix)
	}
	if err := client.SetLanguage(e.language); err != nil {
		return PassResult{}, fmt.Errorf("set language: %w", err)
	}
	if err := client.SetPageSegMode(segModeToPSM(mode)); err != nil {
		return PassResult{}, fmt.Errorf("set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(variant.Data); err != nil {
		return PassResult{}, fmt.Errorf("set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return PassResult{}, fmt.Errorf("recognize: %w", err)
	}

	conf := e.wordConfidence(client)
	return PassResult{
		Text:       text,
		Confidence: conf,
		Variant:    variant.Strategy,
		SegMode:    mode,
	}, nil
}

// wordConfidence averages per-word confidences into a 0-1 score. When
// bounding boxes are unavailable the pass keeps a neutral 0 so scoring falls
// back to the text-shape heuristics alone.
func (e *TesseractEngine) wordConfidence(client *gosseract.Client) float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var total float64
	for _, box := range boxes {
		total += box.Confidence
	}
	return total / float64(len(boxes)) / 100.0
}

// Close implements Engine. Clients are per-pass, so there is nothing to release.
func (e *TesseractEngine) Close() error { return nil }
