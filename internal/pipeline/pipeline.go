// Package pipeline composes the receipt recognition stages: preprocessing,
// document cropping, multi-pass OCR, result scoring, line normalization,
// line reconstruction, receipt-level sanity checking and aggregation. One
// Pipeline serves every call site (HTTP handler, CLI, websocket), so the
// stage wiring cannot drift between entry points.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/recibo/internal/cropper"
	"github.com/MeKo-Tech/recibo/internal/normalize"
	"github.com/MeKo-Tech/recibo/internal/ocr"
	"github.com/MeKo-Tech/recibo/internal/preprocess"
	"github.com/MeKo-Tech/recibo/internal/receipt"
	"github.com/MeKo-Tech/recibo/internal/reconstruct"
	"github.com/MeKo-Tech/recibo/internal/sanity"
	"github.com/MeKo-Tech/recibo/internal/score"
)

// Stage names reported through the progress callback.
const (
	StagePreprocess  = "preprocess"
	StageCrop        = "crop"
	StageOCR         = "ocr"
	StageScore       = "score"
	StageReconstruct = "reconstruct"
	StageSanity      = "sanity"
	StageAggregate   = "aggregate"
)

// ProgressFunc is invoked as each stage begins. Callbacks run inline on the
// request goroutine and must return quickly.
type ProgressFunc func(stage string)

// Config holds configuration for the pipeline and its components.
type Config struct {
	Preprocess preprocess.Config
	Cropper    cropper.Config
	OCR        ocr.Config

	// RequestTimeout bounds one whole pipeline invocation.
	RequestTimeout time.Duration

	// AutoApplyCorrections applies sanity-check proposals at or above
	// AutoApplyThreshold. Every application is recorded in the item's
	// CorrectionMetadata; nothing is corrected silently.
	AutoApplyCorrections bool
	AutoApplyThreshold   float64
}

// DefaultConfig returns a pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		Preprocess:         preprocess.DefaultConfig(),
		Cropper:            cropper.DefaultConfig(),
		OCR:                ocr.DefaultConfig(),
		RequestTimeout:     60 * time.Second,
		AutoApplyThreshold: 0.6,
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg      Config
	engine   ocr.Engine
	enhancer preprocess.Enhancer
	detector cropper.Detector
	progress ProgressFunc
}

// NewBuilder creates a builder with defaults. Projection-based document
// detection is on by default; WithDetector(nil) turns detection off and
// leaves only the margin-based smart crop.
func NewBuilder() *Builder {
	return &Builder{cfg: DefaultConfig(), detector: cropper.NewProjectionDetector()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithEngine sets the OCR backend. A nil engine routes every request to
// manual entry instead of failing.
func (b *Builder) WithEngine(engine ocr.Engine) *Builder {
	b.engine = engine
	return b
}

// WithEnhancer sets the optional external image-enhancement backend.
func (b *Builder) WithEnhancer(enhancer preprocess.Enhancer) *Builder {
	b.enhancer = enhancer
	return b
}

// WithDetector sets (or disables, with nil) the document detector.
func (b *Builder) WithDetector(detector cropper.Detector) *Builder {
	b.detector = detector
	return b
}

// WithRequestTimeout bounds one whole pipeline invocation.
func (b *Builder) WithRequestTimeout(d time.Duration) *Builder {
	if d > 0 {
		b.cfg.RequestTimeout = d
	}
	return b
}

// WithAutoApplyCorrections opts this call site into applying confident
// correction proposals.
func (b *Builder) WithAutoApplyCorrections(enabled bool) *Builder {
	b.cfg.AutoApplyCorrections = enabled
	return b
}

// WithProgress sets the per-stage progress callback.
func (b *Builder) WithProgress(fn ProgressFunc) *Builder {
	b.progress = fn
	return b
}

// Build initializes the pipeline components.
func (b *Builder) Build() *Pipeline {
	if b.cfg.AutoApplyThreshold <= 0 {
		b.cfg.AutoApplyThreshold = DefaultConfig().AutoApplyThreshold
	}
	return &Pipeline{
		cfg:      b.cfg,
		pre:      preprocess.New(b.cfg.Preprocess, b.enhancer),
		crop:     cropper.New(b.cfg.Cropper, b.detector),
		orch:     ocr.NewOrchestrator(b.cfg.OCR, b.engine),
		progress: b.progress,
	}
}

// Pipeline wires the stages together. It holds no per-request state; one
// Pipeline serves concurrent invocations without locking.
type Pipeline struct {
	cfg      Config
	pre      *preprocess.Preprocessor
	crop     *cropper.Cropper
	orch     *ocr.Orchestrator
	progress ProgressFunc
}

// Process runs the full pipeline for one uploaded image. It always returns a
// ParsedReceipt shape: on fatal errors the receipt is empty with
// NeedsManualEntry set, and the typed error is returned alongside so the
// transport layer can choose a status code.
func (p *Pipeline) Process(ctx context.Context, img receipt.Image) (*receipt.ParsedReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	manual := &receipt.ParsedReceipt{Items: []receipt.LineItem{}, NeedsManualEntry: true}

	p.step(StagePreprocess)
	variants, err := p.pre.Process(ctx, img)
	if err != nil {
		return manual, err
	}

	p.step(StageCrop)
	variants, cropConf := p.cropVariants(ctx, variants)
	if cropConf < 0.3 {
		// Lowest detection band: the receipt could not be isolated and OCR
		// runs over the full frame.
		slog.Warn("document not isolated, scanning full frame", "crop_confidence", cropConf)
	}

	p.step(StageOCR)
	passes, err := p.orch.Run(ctx, variants)
	if err != nil {
		// Only caller cancellation surfaces here; per-pass timeouts were
		// absorbed inside the orchestrator.
		manual.RawText = bestRawText(passes)
		return manual, err
	}

	p.step(StageScore)
	best, ok := score.Best(passes)
	if !ok {
		slog.Debug("no usable OCR output, routing to manual entry")
		return manual, nil
	}
	manual.RawText = best.Result.Text

	p.step(StageReconstruct)
	lines := normalize.Lines(best.Result.Text)
	items := reconstruct.Lines(lines)
	totals := ExtractTotals(lines)

	p.step(StageSanity)
	sctx := sanity.NewContext(items, totals.Total, totals.Subtotal)
	for i := range items {
		res := sanity.Check(items[i], sctx)
		sanity.Apply(&items[i], res)
		p.maybeApplyCorrection(&items[i], res)
	}

	p.step(StageAggregate)
	confidence, noItems := Aggregate(items, totals.Total)

	return &receipt.ParsedReceipt{
		Merchant:         ExtractMerchant(lines),
		Date:             ExtractDate(lines),
		Items:            items,
		Subtotal:         totals.Subtotal,
		Tax:              totals.Tax,
		ServiceCharge:    totals.ServiceCharge,
		Total:            totals.Total,
		Confidence:       confidence,
		NeedsManualEntry: noItems || best.LowConfidence(),
		RawText:          best.Result.Text,
	}, nil
}

// cropVariants crops each decodable variant to the detected document and
// re-encodes it for the OCR engine. The byte-only fallback variant passes
// through untouched. The second return is the crop confidence of the primary
// variant, surfaced as a warning when the document was not isolated.
func (p *Pipeline) cropVariants(ctx context.Context, variants []preprocess.Variant) ([]preprocess.Variant, float64) {
	cropConf := 0.0
	for i := range variants {
		if variants[i].Image == nil {
			continue
		}
		det := p.crop.DetectAndCrop(ctx, variants[i].Image)
		if det.Image == nil {
			continue
		}
		data, err := preprocess.EncodeJPEG(det.Image, p.cfg.Preprocess.JPEGQuality)
		if err != nil || len(data) > p.cfg.Preprocess.MaxVariantBytes {
			slog.Debug("keeping uncropped variant",
				"variant", string(variants[i].Strategy), "error", err)
			continue
		}
		b := det.Image.Bounds()
		variants[i].Image = det.Image
		variants[i].Data = data
		variants[i].Width = b.Dx()
		variants[i].Height = b.Dy()
		if i == 0 {
			cropConf = det.Confidence
		}
	}
	return variants, cropConf
}

// maybeApplyCorrection is the single sanctioned auto-apply call site.
// Applications go through receipt.ApplyCorrection, which records the
// before and after values, and each one is logged.
func (p *Pipeline) maybeApplyCorrection(item *receipt.LineItem, res sanity.Result) {
	if !p.cfg.AutoApplyCorrections {
		return
	}
	for _, proposal := range res.SuggestedCorrections {
		if proposal.Field != "totalPrice" || proposal.Confidence < p.cfg.AutoApplyThreshold {
			continue
		}
		receipt.ApplyCorrection(item, proposal)
		slog.Info("applied amount correction",
			"item", item.ID,
			"type", string(proposal.Type),
			"original", proposal.OriginalValue.StringFixed(2),
			"applied", proposal.SuggestedValue.StringFixed(2),
			"confidence", proposal.Confidence)
		return
	}
}

// bestRawText preserves whatever text the completed passes produced so a
// timed-out request still hands the user something to transcribe from.
func bestRawText(passes []ocr.PassResult) string {
	if best, ok := score.Best(passes); ok {
		return best.Result.Text
	}
	return ""
}

func (p *Pipeline) step(stage string) {
	if p.progress != nil {
		p.progress(stage)
	}
}
