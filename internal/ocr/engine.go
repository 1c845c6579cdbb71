// Package ocr orchestrates the text-recognition engine: an ordered set of
// page-segmentation strategies is tried sequentially per image variant, with
// per-pass and overall wall-clock timeouts, stopping early once a pass is
// confident enough. The engine itself is a replaceable capability; its
// absence degrades to an empty low-confidence result, never a crash.
package ocr

import (
	"context"

	"github.com/MeKo-Tech/recibo/internal/preprocess"
)

// SegMode is a page-segmentation strategy, tried in declaration order.
type SegMode string

const (
	SegUniformBlock SegMode = "uniform_block"
	SegSparseText   SegMode = "sparse_text"
)

// DefaultSegModes is the ordered strategy set for receipt text.
var DefaultSegModes = []SegMode{SegUniformBlock, SegSparseText}

// PassResult is one engine invocation's output.
type PassResult struct {
	Text       string
	Confidence float64 // engine-reported, 0-1
	Variant    preprocess.Strategy
	SegMode    SegMode
}

// Engine is the pluggable text-recognition backend. Implementations are
// synchronous; the orchestrator races them against its timeouts.
type Engine interface {
	Recognize(ctx context.Context, variant preprocess.Variant, mode SegMode) (PassResult, error)
	Close() error
}
