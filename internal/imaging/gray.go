package imaging

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/effect"
)

// RegionOutOfBoundsError reports a sampling region that does not lie fully
// inside the buffer. Region sampling never partially reads: a box hanging
// off the edge of the sheet means the geometry (or an applied shift) is
// wrong, and the caller must flag the owning field rather than average
// whatever pixels happen to exist.
type RegionOutOfBoundsError struct {
	X, Y          int // Region top-left corner
	Width, Height int // Region dimensions
	BufW, BufH    int // Buffer dimensions
}

func (e *RegionOutOfBoundsError) Error() string {
	return fmt.Sprintf("region %dx%d at (%d,%d) outside %dx%d buffer",
		e.Width, e.Height, e.X, e.Y, e.BufW, e.BufH)
}

// Buffer is a grayscale luminance view of one scanned sheet. It is built
// once per sheet and read many times: the baseline detection pass and any
// shift-validation pass sample from the same buffer.
type Buffer struct {
	width  int
	height int
	pix    []uint8 // row-major, one byte per pixel
}

// NewBuffer converts an image to a luminance buffer.
//
// Grayscale sources (*image.Gray) are copied directly. Everything else is
// converted through bild's grayscale filter, which applies standard
// luminance coefficients, so color scans and pre-converted scans produce
// the same sample values.
func NewBuffer(img image.Image) *Buffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	buf := &Buffer{width: w, height: h, pix: make([]uint8, w*h)}

	if gray, ok := img.(*image.Gray); ok {
		for y := 0; y < h; y++ {
			src := gray.Pix[y*gray.Stride : y*gray.Stride+w]
			copy(buf.pix[y*w:(y+1)*w], src)
		}
		return buf
	}

	rgba := effect.Grayscale(img)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// R == G == B after grayscale conversion.
			buf.pix[y*w+x] = rgba.Pix[y*rgba.Stride+x*4]
		}
	}
	return buf
}

// Width returns the buffer width in pixels.
func (b *Buffer) Width() int { return b.width }

// Height returns the buffer height in pixels.
func (b *Buffer) Height() int { return b.height }

// At returns the luminance at (x, y). The caller is responsible for bounds.
func (b *Buffer) At(x, y int) uint8 {
	return b.pix[y*b.width+x]
}

// Contains reports whether the given region lies fully inside the buffer.
func (b *Buffer) Contains(x, y, w, h int) bool {
	return x >= 0 && y >= 0 && w > 0 && h > 0 && x+w <= b.width && y+h <= b.height
}

// MeanIntensity computes the arithmetic mean luminance over a region.
//
// Returns a *RegionOutOfBoundsError if the region is not fully inside the
// buffer.
func (b *Buffer) MeanIntensity(x, y, w, h int) (float64, error) {
	if !b.Contains(x, y, w, h) {
		return 0, &RegionOutOfBoundsError{X: x, Y: y, Width: w, Height: h, BufW: b.width, BufH: b.height}
	}

	var sum uint64
	for row := y; row < y+h; row++ {
		base := row * b.width
		for col := x; col < x+w; col++ {
			sum += uint64(b.pix[base+col])
		}
	}
	return float64(sum) / float64(w*h), nil
}

// ToGray returns the buffer as a standard *image.Gray, primarily for the
// OCR reader which needs an image.Image to hand to Tesseract.
func (b *Buffer) ToGray() *image.Gray {
	gray := image.NewGray(image.Rect(0, 0, b.width, b.height))
	for y := 0; y < b.height; y++ {
		copy(gray.Pix[y*gray.Stride:y*gray.Stride+b.width], b.pix[y*b.width:(y+1)*b.width])
	}
	return gray
}
