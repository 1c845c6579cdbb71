// Package testutil provides synthetic receipt images for tests. No fixture
// files: every helper draws its image from scratch so tests stay hermetic.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// ReceiptImage draws a receipt-like scene: a bright paper strip centered on a
// dark background, with dark horizontal runs standing in for printed lines.
func ReceiptImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	dark := color.RGBA{40, 35, 30, 255}
	paper := color.RGBA{245, 243, 238, 255}
	ink := color.RGBA{25, 25, 25, 255}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, dark)
		}
	}

	// Paper strip occupies the middle 60% horizontally, 80% vertically.
	left, right := width*2/10, width*8/10
	top, bottom := height/10, height*9/10
	for y := top; y < bottom; y++ {
		for x := left; x < right; x++ {
			img.Set(x, y, paper)
		}
	}

	// Text rows every 12 pixels inside the strip.
	for y := top + 8; y < bottom-8; y += 12 {
		for x := left + 6; x < right-6; x++ {
			if (x/3)%2 == 0 {
				img.Set(x, y, ink)
				img.Set(x, y+1, ink)
			}
		}
	}

	return img
}

// FlatImage returns a uniformly colored image, useful as a no-document input.
func FlatImage(width, height int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// EncodeJPEG encodes an image to JPEG bytes, failing the test on error.
func EncodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// EncodePNG encodes an image to PNG bytes, failing the test on error.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// ReceiptJPEG returns a receipt-like test image already encoded as JPEG.
func ReceiptJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	return EncodeJPEG(t, ReceiptImage(width, height))
}
