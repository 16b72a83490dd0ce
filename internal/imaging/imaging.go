package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"net/http"

	"golang.org/x/image/draw"
)

// MaxDimension is the maximum width or height of an encoded chart.
const MaxDimension = 2048

// PNGMIME is the content type of everything this package encodes.
const PNGMIME = "image/png"

var encoder = png.Encoder{CompressionLevel: png.BestCompression}

// Fit resizes img so it fits inside a w×h box, preserving aspect ratio.
// Uses high-quality Catmull-Rom interpolation.
// Returns the original image if already within bounds.
func Fit(img image.Image, w, h int) image.Image {
	if w > MaxDimension {
		w = MaxDimension
	}
	if h > MaxDimension {
		h = MaxDimension
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW <= w && srcH <= h {
		return img
	}

	// Scale by whichever side overflows more.
	newW, newH := w, int(float64(srcH)*float64(w)/float64(srcW))
	if newH > h {
		newW, newH = int(float64(srcW)*float64(h)/float64(srcH)), h
	}

	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// EncodePNG encodes img as a compressed PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// IsPNG reports whether data looks like a PNG by sniffing its bytes.
func IsPNG(data []byte) bool {
	return http.DetectContentType(data) == PNGMIME
}
