package cropper

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ProjectionDetector is a lightweight edge detector built on luminance
// profiles: receipts photograph as a bright, low-saturation band against a
// darker background, so the document bounds show up as sustained runs of
// bright rows and columns. It is intentionally conservative; when the
// profiles are ambiguous it reports an error and the caller falls back to
// the smart crop.
type ProjectionDetector struct {
	// BrightThreshold is the 0-255 luminance a row/column mean must exceed
	// to count as part of the document.
	BrightThreshold int

	// MinRunRatio is the minimum fraction of the axis a bright run must span.
	MinRunRatio float64
}

// NewProjectionDetector returns a detector with default thresholds.
func NewProjectionDetector() *ProjectionDetector {
	return &ProjectionDetector{BrightThreshold: 140, MinRunRatio: 0.30}
}

// DetectBounds implements Detector.
func (d *ProjectionDetector) DetectBounds(ctx context.Context, img image.Image) (Rect, float64, error) {
	if err := ctx.Err(); err != nil {
		return Rect{}, 0, err
	}

	// Work on a small grayscale proxy to keep the scan cheap.
	const proxyWidth = 200
	b := img.Bounds()
	proxy := imaging.Grayscale(imaging.Resize(img, proxyWidth, 0, imaging.Box))
	pb := proxy.Bounds()
	pw, ph := pb.Dx(), pb.Dy()
	if pw == 0 || ph == 0 {
		return Rect{}, 0, fmt.Errorf("degenerate proxy image")
	}

	rowMean := make([]int, ph)
	colSum := make([]int, pw)
	for y := range ph {
		var sum int
		for x := range pw {
			r, _, _, _ := proxy.At(x, y).RGBA()
			v := int(r >> 8)
			sum += v
			colSum[x] += v
		}
		rowMean[y] = sum / pw
	}
	colMean := make([]int, pw)
	for x := range pw {
		colMean[x] = colSum[x] / ph
	}

	y0, y1, okY := longestBrightRun(rowMean, d.BrightThreshold)
	x0, x1, okX := longestBrightRun(colMean, d.BrightThreshold)
	if !okY || !okX {
		return Rect{}, 0, fmt.Errorf("no sustained bright region found")
	}
	if float64(y1-y0) < d.MinRunRatio*float64(ph) || float64(x1-x0) < d.MinRunRatio*float64(pw) {
		return Rect{}, 0, fmt.Errorf("bright region too small to be the document")
	}

	// Scale proxy coordinates back to the source image.
	sx := float64(b.Dx()) / float64(pw)
	sy := float64(b.Dy()) / float64(ph)
	rect := Rect{
		X: b.Min.X + int(float64(x0)*sx),
		Y: b.Min.Y + int(float64(y0)*sy),
		W: int(float64(x1-x0+1) * sx),
		H: int(float64(y1-y0+1) * sy),
	}

	// Confidence grows with how much of the frame the document fills and how
	// cleanly the run separates from the background.
	areaRatio := float64(rect.W*rect.H) / float64(b.Dx()*b.Dy())
	conf := 0.6 + 0.3*areaRatio
	return rect, conf, nil
}

// longestBrightRun returns the bounds of the longest contiguous run of values
// above thresh, tolerating single-sample dips.
func longestBrightRun(values []int, thresh int) (int, int, bool) {
	bestStart, bestEnd := -1, -1
	start := -1
	dips := 0
	for i, v := range values {
		if v >= thresh {
			if start == -1 {
				start = i
			}
			dips = 0
			if bestStart == -1 || i-start > bestEnd-bestStart {
				bestStart, bestEnd = start, i
			}
			continue
		}
		if start != -1 && dips == 0 {
			dips++
			continue
		}
		start = -1
		dips = 0
	}
	if bestStart == -1 {
		return 0, 0, false
	}
	return bestStart, bestEnd, true
}
