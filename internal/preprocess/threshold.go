package preprocess

import (
	"image"
	"image/color"
)

// adaptiveThreshold binarizes a grayscale image using a local mean over a
// window x window neighborhood, offset by c. Pixels darker than the local
// mean minus c become black, everything else white. Window sums are computed
// with an integral image so the pass stays linear in pixel count.
func adaptiveThreshold(img image.Image, window, c int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return img
	}
	if window < 3 {
		window = 3
	}

	lum := make([]int, w*h)
	for y := range h {
		for x := range w {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// ITU-R BT.601 luma from 16-bit channels.
			lum[y*w+x] = int((299*(r>>8) + 587*(g>>8) + 114*(bl>>8)) / 1000)
		}
	}

	// Integral image with an extra top row and left column of zeros.
	integral := make([]int64, (w+1)*(h+1))
	for y := 1; y <= h; y++ {
		var rowSum int64
		for x := 1; x <= w; x++ {
			rowSum += int64(lum[(y-1)*w+(x-1)])
			integral[y*(w+1)+x] = integral[(y-1)*(w+1)+x] + rowSum
		}
	}

	half := window / 2
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			x0, y0 := max(x-half, 0), max(y-half, 0)
			x1, y1 := min(x+half+1, w), min(y+half+1, h)
			count := int64((x1 - x0) * (y1 - y0))
			sum := integral[y1*(w+1)+x1] - integral[y0*(w+1)+x1] -
				integral[y1*(w+1)+x0] + integral[y0*(w+1)+x0]
			mean := sum / count
			if int64(lum[y*w+x]) < mean-int64(c) {
				out.SetGray(x, y, color.Gray{Y: 0})
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}
