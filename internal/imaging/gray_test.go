package imaging

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

// grayImage builds an *image.Gray filled with a single luminance value.
func grayImage(w, h int, lum uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = lum
	}
	return img
}

func TestNewBuffer_FromGray(t *testing.T) {
	buf := NewBuffer(grayImage(10, 8, 200))

	if buf.Width() != 10 || buf.Height() != 8 {
		t.Fatalf("dimensions: got %dx%d, want 10x8", buf.Width(), buf.Height())
	}
	if got := buf.At(5, 4); got != 200 {
		t.Errorf("At(5,4): got %d, want 200", got)
	}
}

func TestNewBuffer_FromColor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}

	buf := NewBuffer(img)
	if got := buf.At(0, 0); got < 250 {
		t.Errorf("white pixel luminance: got %d, want ~255", got)
	}
}

func TestMeanIntensity(t *testing.T) {
	// Left half dark (50), right half light (250).
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if x < 5 {
				img.SetGray(x, y, color.Gray{Y: 50})
			} else {
				img.SetGray(x, y, color.Gray{Y: 250})
			}
		}
	}
	buf := NewBuffer(img)

	tests := []struct {
		name       string
		x, y, w, h int
		want       float64
	}{
		{"dark half", 0, 0, 5, 10, 50},
		{"light half", 5, 0, 5, 10, 250},
		{"straddling", 0, 0, 10, 10, 150},
		{"single pixel", 7, 3, 1, 1, 250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buf.MeanIntensity(tt.x, tt.y, tt.w, tt.h)
			if err != nil {
				t.Fatalf("MeanIntensity failed: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("mean: got %.2f, want %.2f", got, tt.want)
			}
		})
	}
}

func TestMeanIntensity_OutOfBounds(t *testing.T) {
	buf := NewBuffer(grayImage(10, 10, 128))

	tests := []struct {
		name       string
		x, y, w, h int
	}{
		{"negative origin", -1, 0, 5, 5},
		{"past right edge", 8, 0, 5, 5},
		{"past bottom edge", 0, 8, 5, 5},
		{"zero width", 0, 0, 0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buf.MeanIntensity(tt.x, tt.y, tt.w, tt.h)
			if err == nil {
				t.Fatal("expected error")
			}
			var oob *RegionOutOfBoundsError
			if !errors.As(err, &oob) {
				t.Errorf("expected RegionOutOfBoundsError, got %T", err)
			}
		})
	}
}

func TestToGray_RoundTrip(t *testing.T) {
	src := grayImage(6, 6, 77)
	buf := NewBuffer(src)
	out := buf.ToGray()

	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			if out.GrayAt(x, y).Y != 77 {
				t.Fatalf("pixel (%d,%d): got %d, want 77", x, y, out.GrayAt(x, y).Y)
			}
		}
	}
}
