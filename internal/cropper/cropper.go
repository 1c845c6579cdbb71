// Package cropper isolates the receipt within a photo. A pluggable
// edge/contour detector may provide true document detection; when it is
// absent or fails, a content-aware center crop takes over, and any internal
// failure degrades to returning the original image resized to the target
// width. The cropper never propagates an error for a structurally valid image.
package cropper

import (
	"context"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
)

// Strategy names the crop approach that produced a result.
type Strategy string

const (
	StrategyDetected  Strategy = "detected"
	StrategySmartCrop Strategy = "smart_crop"
	StrategyFallback  Strategy = "fallback"
)

// Rect is a crop rectangle in source-image coordinates.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// DetectionResult is the outcome of document cropping. Confidence is a
// heuristic estimate, not a calibrated probability; the bands are ordinal so
// downstream consumers can warn only on the lowest band.
type DetectionResult struct {
	Image            image.Image
	DocumentDetected bool
	Strategy         Strategy
	Confidence       float64
	CropRect         *Rect
}

// Detector is the pluggable true-detection strategy. It may be absent; the
// cropper functions fully without it.
type Detector interface {
	DetectBounds(ctx context.Context, img image.Image) (Rect, float64, error)
}

// Config holds cropper tuning.
type Config struct {
	// TargetWidth is the fixed output width; aspect ratio is preserved and
	// upscaling is permitted since receipts are often small in frame.
	TargetWidth int

	// WidthMargin and HeightMargin are the fractions removed per edge by the
	// smart crop. The dominant non-text axis of a narrow thermal receipt is
	// width, so its margin is larger.
	WidthMargin  float64
	HeightMargin float64

	// MinAreaRatio clamps the crop to a minimum share of the original area.
	MinAreaRatio float64
}

// DefaultConfig returns the default cropper tuning.
func DefaultConfig() Config {
	return Config{
		TargetWidth:  1000,
		WidthMargin:  0.25,
		HeightMargin: 0.15,
		MinAreaRatio: 0.45,
	}
}

// Cropper detects and crops the receipt region. detector may be nil.
type Cropper struct {
	cfg      Config
	detector Detector
}

// New creates a Cropper with the given config and optional detector.
func New(cfg Config, detector Detector) *Cropper {
	if cfg.TargetWidth <= 0 {
		cfg.TargetWidth = DefaultConfig().TargetWidth
	}
	if cfg.WidthMargin <= 0 || cfg.WidthMargin >= 0.5 {
		cfg.WidthMargin = DefaultConfig().WidthMargin
	}
	if cfg.HeightMargin <= 0 || cfg.HeightMargin >= 0.5 {
		cfg.HeightMargin = DefaultConfig().HeightMargin
	}
	if cfg.MinAreaRatio <= 0 || cfg.MinAreaRatio > 1 {
		cfg.MinAreaRatio = DefaultConfig().MinAreaRatio
	}
	return &Cropper{cfg: cfg, detector: detector}
}

// DetectAndCrop always returns a usable result. Confidence bands:
// true detection 0.6-0.9, smart crop 0.3-0.7, fallback 0-0.3.
func (c *Cropper) DetectAndCrop(ctx context.Context, img image.Image) DetectionResult {
	if img == nil || img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return DetectionResult{Image: img, Strategy: StrategyFallback, Confidence: 0}
	}

	if c.detector != nil {
		if res, ok := c.tryDetector(ctx, img); ok {
			return res
		}
	}

	return c.smartCrop(img)
}

// tryDetector runs the pluggable detector, clamping its confidence to the
// detection band. Any failure falls through to the smart crop.
func (c *Cropper) tryDetector(ctx context.Context, img image.Image) (DetectionResult, bool) {
	rect, conf, err := c.detector.DetectBounds(ctx, img)
	if err != nil {
		slog.Debug("cropper: detector failed, using smart crop", "error", err)
		return DetectionResult{}, false
	}
	b := img.Bounds()
	if rect.W <= 0 || rect.H <= 0 || rect.W > b.Dx() || rect.H > b.Dy() {
		return DetectionResult{}, false
	}
	// Reject degenerate detections that keep almost nothing.
	if float64(rect.W*rect.H) < 0.10*float64(b.Dx()*b.Dy()) {
		return DetectionResult{}, false
	}
	cropped := imaging.Crop(img, image.Rect(rect.X, rect.Y, rect.X+rect.W, rect.Y+rect.H))
	conf = clamp(conf, 0.6, 0.9)
	return DetectionResult{
		Image:            c.resizeToTarget(cropped),
		DocumentDetected: true,
		Strategy:         StrategyDetected,
		Confidence:       conf,
		CropRect:         &rect,
	}, true
}

// smartCrop removes a content-aware margin from each edge, clamps to the
// minimum crop area, and resizes to the target width.
func (c *Cropper) smartCrop(img image.Image) DetectionResult {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	mw := int(float64(w) * c.cfg.WidthMargin)
	mh := int(float64(h) * c.cfg.HeightMargin)
	cw, ch := w-2*mw, h-2*mh

	// Clamp to the minimum crop area by shrinking the margins symmetrically.
	if float64(cw*ch) < c.cfg.MinAreaRatio*float64(w*h) {
		for float64(cw*ch) < c.cfg.MinAreaRatio*float64(w*h) && (mw > 0 || mh > 0) {
			if mw > 0 {
				mw--
			}
			if mh > 0 {
				mh--
			}
			cw, ch = w-2*mw, h-2*mh
		}
	}
	if cw <= 0 || ch <= 0 {
		return DetectionResult{
			Image:      c.resizeToTarget(img),
			Strategy:   StrategyFallback,
			Confidence: 0,
		}
	}

	rect := Rect{X: b.Min.X + mw, Y: b.Min.Y + mh, W: cw, H: ch}
	cropped := imaging.Crop(img, image.Rect(rect.X, rect.Y, rect.X+rect.W, rect.Y+rect.H))

	// Narrow thermal receipts crop more confidently than square photos.
	conf := 0.5
	if float64(h) > 1.5*float64(w) {
		conf = 0.6
	}
	return DetectionResult{
		Image:      c.resizeToTarget(cropped),
		Strategy:   StrategySmartCrop,
		Confidence: conf,
		CropRect:   &rect,
	}
}

// resizeToTarget scales to the fixed target width preserving aspect ratio.
// Upscaling is permitted.
func (c *Cropper) resizeToTarget(img image.Image) image.Image {
	if img.Bounds().Dx() == c.cfg.TargetWidth {
		return img
	}
	return imaging.Resize(img, c.cfg.TargetWidth, 0, imaging.Lanczos)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
