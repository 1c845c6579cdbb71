package ocr

import (
	"context"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/recibo/internal/preprocess"
	"github.com/MeKo-Tech/recibo/internal/receipt"
)

// Config bounds the multi-pass attempt.
type Config struct {
	// PassTimeout is the wall-clock budget for a single engine invocation.
	PassTimeout time.Duration

	// OverallTimeout bounds the whole multi-pass attempt.
	OverallTimeout time.Duration

	// EarlyExitConfidence stops further strategies once a pass exceeds it.
	EarlyExitConfidence float64

	// MinTextChars marks a pass with fewer recognized characters as a
	// non-candidate rather than an error.
	MinTextChars int

	// SegModes is the ordered strategy set; defaults to DefaultSegModes.
	SegModes []SegMode
}

// DefaultConfig returns the default orchestration bounds.
func DefaultConfig() Config {
	return Config{
		PassTimeout:         10 * time.Second,
		OverallTimeout:      30 * time.Second,
		EarlyExitConfidence: 0.8,
		MinTextChars:        20,
		SegModes:            DefaultSegModes,
	}
}

// Orchestrator runs the engine across variants and segmentation strategies.
type Orchestrator struct {
	cfg    Config
	engine Engine
}

// NewOrchestrator creates an Orchestrator. engine may be nil, in which case
// every run yields no candidates and the pipeline routes to manual entry.
func NewOrchestrator(cfg Config, engine Engine) *Orchestrator {
	def := DefaultConfig()
	if cfg.PassTimeout <= 0 {
		cfg.PassTimeout = def.PassTimeout
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = def.OverallTimeout
	}
	if cfg.EarlyExitConfidence <= 0 {
		cfg.EarlyExitConfidence = def.EarlyExitConfidence
	}
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = def.MinTextChars
	}
	if len(cfg.SegModes) == 0 {
		cfg.SegModes = def.SegModes
	}
	return &Orchestrator{cfg: cfg, engine: engine}
}

// Run executes passes sequentially, never in parallel, to bound peak memory:
// each variant may hold a full-resolution pixel buffer. Timed-out or failed
// passes are abandoned and the next strategy attempted; if every pass fails,
// Run returns an empty candidate set rather than an error so the caller can
// route to manual entry.
func (o *Orchestrator) Run(ctx context.Context, variants []preprocess.Variant) ([]PassResult, error) {
	if o.engine == nil {
		slog.Debug("ocr: no engine configured, returning empty result set")
		return nil, nil
	}

	overall, cancel := context.WithTimeout(ctx, o.cfg.OverallTimeout)
	defer cancel()

	var results []PassResult
	for _, variant := range variants {
		for _, mode := range o.cfg.SegModes {
			if err := overall.Err(); err != nil {
				// Caller cancellation is fatal; our own overall deadline just
				// ends the attempt with whatever was gathered.
				if ctx.Err() != nil {
					return results, receipt.NewTimeout("ocr", ctx.Err())
				}
				slog.Debug("ocr: overall budget exhausted", "passes", len(results))
				return results, nil
			}

			res, err := o.runPass(overall, variant, mode)
			if err != nil {
				slog.Debug("ocr: pass failed",
					"variant", variant.Strategy, "seg_mode", mode, "error", err)
				continue
			}
			if len(res.Text) < o.cfg.MinTextChars {
				slog.Debug("ocr: pass below minimum text length",
					"variant", variant.Strategy, "seg_mode", mode, "chars", len(res.Text))
				continue
			}
			results = append(results, res)

			if res.Confidence > o.cfg.EarlyExitConfidence {
				slog.Debug("ocr: early exit on confident pass",
					"variant", variant.Strategy, "seg_mode", mode, "confidence", res.Confidence)
				return results, nil
			}
		}
	}
	return results, nil
}

// runPass races one engine invocation against the per-pass timer. The engine
// call itself cannot be interrupted mid-flight, so a timed-out pass is
// abandoned: the goroutine finishes into a buffered channel and its result
// is discarded.
func (o *Orchestrator) runPass(ctx context.Context, variant preprocess.Variant, mode SegMode) (PassResult, error) {
	passCtx, cancel := context.WithTimeout(ctx, o.cfg.PassTimeout)
	defer cancel()

	type outcome struct {
		res PassResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := o.engine.Recognize(passCtx, variant, mode)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-passCtx.Done():
		return PassResult{}, receipt.NewTimeout("ocr", passCtx.Err())
	}
}
