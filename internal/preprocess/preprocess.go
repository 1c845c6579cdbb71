// Package preprocess turns a raw receipt image into one or more enhanced
// variants suited for OCR. The "light" grayscale variant is the reliable
// default and must always succeed; further variants are best-effort and are
// logged and skipped when their construction fails.
package preprocess

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"

	"github.com/MeKo-Tech/recibo/internal/receipt"
	"github.com/disintegration/imaging"
)

// Strategy names a preprocessing variant.
type Strategy string

const (
	StrategyPreserveColor Strategy = "preserve_color"
	StrategyLight         Strategy = "light"
	StrategyBalanced      Strategy = "balanced"
	StrategyThermalCrop   Strategy = "thermal_crop"
	StrategyFallback      Strategy = "fallback"
)

// Variant is one image derivative handed to the OCR engine. Data holds the
// encoded form the engine consumes; a variant is owned by the pipeline run
// that created it and discarded after OCR consumes it.
type Variant struct {
	Strategy Strategy
	Image    image.Image
	Data     []byte
	Width    int
	Height   int
}

// Enhancer is an optional external image-enhancement backend. Its absence
// degrades gracefully to the built-in imaging operations.
type Enhancer interface {
	Enhance(ctx context.Context, img image.Image) (image.Image, error)
}

// Config bounds the preprocessor's working set.
type Config struct {
	// MaxSide caps the working dimensions before per-pixel work. Images are
	// only downscaled to fit, never upscaled.
	MaxSide int

	// MaxVariantBytes is the hard post-processing byte-size ceiling for a
	// single encoded variant.
	MaxVariantBytes int

	// JPEGQuality used when encoding variants for the OCR engine.
	JPEGQuality int
}

// DefaultConfig returns the default preprocessing bounds.
func DefaultConfig() Config {
	return Config{
		MaxSide:         2000,
		MaxVariantBytes: 2 * 1024 * 1024,
		JPEGQuality:     90,
	}
}

// Preprocessor builds OCR-ready variants from raw image bytes.
type Preprocessor struct {
	cfg      Config
	enhancer Enhancer
}

// New creates a Preprocessor. enhancer may be nil.
func New(cfg Config, enhancer Enhancer) *Preprocessor {
	if cfg.MaxSide <= 0 {
		cfg.MaxSide = DefaultConfig().MaxSide
	}
	if cfg.MaxVariantBytes <= 0 {
		cfg.MaxVariantBytes = DefaultConfig().MaxVariantBytes
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = DefaultConfig().JPEGQuality
	}
	return &Preprocessor{cfg: cfg, enhancer: enhancer}
}

// Process produces 1-3 variants for a structurally valid image. The light
// variant must succeed or Process fails; preserve_color and thermal_crop are
// best-effort. If decoding itself is impossible but the bytes carry a valid
// image signature, the original bytes are returned as a fallback variant so
// the OCR engine can still attempt a pass.
func (p *Preprocessor) Process(ctx context.Context, img receipt.Image) ([]Variant, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, receipt.NewTimeout("preprocess", err)
	}

	decoded, err := Decode(img.Data)
	if err != nil {
		// Magic bytes were valid but the decoder rejected the stream. Hand
		// the original bytes through so OCR can still try.
		slog.Debug("preprocess: decode failed, falling back to original bytes", "error", err)
		return p.fallbackVariant(img)
	}

	bounds := decoded.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, receipt.NewInvalidInput("preprocess", fmt.Errorf("image has zero dimensions"))
	}

	working := p.capDimensions(decoded)

	light, err := p.buildLight(working)
	if err != nil {
		return nil, err
	}
	variants := []Variant{light}

	if err := ctx.Err(); err != nil {
		return nil, receipt.NewTimeout("preprocess", err)
	}
	if v, err := p.buildPreserveColor(ctx, working); err != nil {
		slog.Debug("preprocess: preserve_color variant skipped", "error", err)
	} else {
		variants = append(variants, v)
	}

	if err := ctx.Err(); err != nil {
		return nil, receipt.NewTimeout("preprocess", err)
	}
	if v, err := p.buildThermal(working); err != nil {
		slog.Debug("preprocess: thermal_crop variant skipped", "error", err)
	} else {
		variants = append(variants, v)
	}

	return variants, nil
}

// capDimensions downscales the image to fit within MaxSide per side. It never
// upscales.
func (p *Preprocessor) capDimensions(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= p.cfg.MaxSide && b.Dy() <= p.cfg.MaxSide {
		return img
	}
	return imaging.Fit(img, p.cfg.MaxSide, p.cfg.MaxSide, imaging.Lanczos)
}

// buildLight constructs the mandatory grayscale, mild-contrast variant.
func (p *Preprocessor) buildLight(img image.Image) (Variant, error) {
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 15)
	out = imaging.Sharpen(out, 0.7)
	return p.finishVariant(StrategyLight, out)
}

// buildPreserveColor constructs the color-preserving contrast variant, using
// the external enhancer when one is configured.
func (p *Preprocessor) buildPreserveColor(ctx context.Context, img image.Image) (Variant, error) {
	base := img
	if p.enhancer != nil {
		enhanced, err := p.enhancer.Enhance(ctx, img)
		if err != nil {
			return Variant{}, receipt.NewBackendUnavailable("preprocess", err)
		}
		base = enhanced
	}
	out := imaging.AdjustContrast(base, 25)
	out = imaging.AdjustBrightness(out, 5)
	out = imaging.Sharpen(out, 1.0)
	return p.finishVariant(StrategyPreserveColor, out)
}

// buildThermal constructs the denoise + adaptive-threshold variant aimed at
// narrow thermal receipts.
func (p *Preprocessor) buildThermal(img image.Image) (Variant, error) {
	gray := imaging.Grayscale(img)
	gray = imaging.Blur(gray, 0.6)
	bin := adaptiveThreshold(gray, 16, 6)
	return p.finishVariant(StrategyThermalCrop, bin)
}

// finishVariant encodes a variant and enforces the byte-size ceiling. The
// caller decides whether a failure aborts the step (light) or skips the
// variant (best-effort strategies).
func (p *Preprocessor) finishVariant(strategy Strategy, img image.Image) (Variant, error) {
	data, err := EncodeJPEG(img, p.cfg.JPEGQuality)
	if err != nil {
		return Variant{}, receipt.NewInvalidInput("preprocess", fmt.Errorf("encode %s variant: %w", strategy, err))
	}
	if len(data) > p.cfg.MaxVariantBytes {
		return Variant{}, receipt.NewInvalidInput("preprocess",
			fmt.Errorf("IMAGE_TOO_LARGE: %s variant is %d bytes, ceiling %d", strategy, len(data), p.cfg.MaxVariantBytes))
	}
	b := img.Bounds()
	return Variant{Strategy: strategy, Image: img, Data: data, Width: b.Dx(), Height: b.Dy()}, nil
}

// fallbackVariant returns the original bytes unmodified with magic-byte
// validation only. Used when no variant can be constructed at all.
func (p *Preprocessor) fallbackVariant(img receipt.Image) ([]Variant, error) {
	if len(img.Data) > p.cfg.MaxVariantBytes {
		return nil, receipt.NewInvalidInput("preprocess",
			fmt.Errorf("IMAGE_TOO_LARGE: original is %d bytes, ceiling %d", len(img.Data), p.cfg.MaxVariantBytes))
	}
	return []Variant{{Strategy: StrategyFallback, Data: img.Data}}, nil
}

// EncodeJPEG encodes an image with the given JPEG quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
