package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/sheetkit/omr-engine/internal/detection"
	"github.com/sheetkit/omr-engine/internal/template"
)

// outlineWidth is the thickness in pixels of each scan box outline.
const outlineWidth = 2

var (
	unmarkedColor   = color.RGBA{128, 128, 128, 255}
	unreadableColor = color.RGBA{40, 90, 220, 255}
)

// ConfidenceColor maps a confidence in [0,1] onto a red-to-green ramp.
// Low confidence is red (hue 0), high confidence green (hue 120).
func ConfidenceColor(confidence float64) color.RGBA {
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	c := colorful.Hsv(120*confidence, 0.9, 0.9)
	r, g, b := c.RGB255()
	return color.RGBA{r, g, b, 255}
}

// Overlay draws scan box outlines over the sheet image.
//
// Box geometry comes from the template; the interpreted state of each box
// comes from the matching field interpretation, aligned with the field's
// boxes by position. Fields without an interpretation are skipped, as are
// OCR fields.
func Overlay(img image.Image, tmpl *template.Template, fields []detection.FieldInterpretation, offsets map[string]detection.Offset) *image.RGBA {
	bounds := img.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	byID := make(map[string]*detection.FieldInterpretation, len(fields))
	for i := range fields {
		byID[fields[i].FieldID] = &fields[i]
	}

	for _, bf := range tmpl.BubbleFields() {
		fi, ok := byID[bf.Field.ID]
		if !ok {
			continue
		}
		off := offsets[bf.BlockName]
		for i, box := range bf.Field.Boxes {
			rect := image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height).
				Add(image.Pt(int(off.DX), int(off.DY)))
			drawOutline(result, rect, boxColor(fi, i))
		}
	}
	return result
}

// boxColor picks the outline color for the i-th scan box of a field.
func boxColor(fi *detection.FieldInterpretation, i int) color.RGBA {
	if fi.Unreadable || i >= len(fi.Bubbles) {
		return unreadableColor
	}
	if fi.Bubbles[i].IsMarked {
		return ConfidenceColor(fi.Confidence)
	}
	return unmarkedColor
}

// drawOutline draws a rectangle outline clipped to the image bounds.
func drawOutline(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	clipped := rect.Intersect(img.Bounds())
	if clipped.Empty() {
		return
	}
	for w := 0; w < outlineWidth; w++ {
		for x := clipped.Min.X; x < clipped.Max.X; x++ {
			setInBounds(img, x, rect.Min.Y+w, c)
			setInBounds(img, x, rect.Max.Y-1-w, c)
		}
		for y := clipped.Min.Y; y < clipped.Max.Y; y++ {
			setInBounds(img, rect.Min.X+w, y, c)
			setInBounds(img, rect.Max.X-1-w, y, c)
		}
	}
}

func setInBounds(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// Save writes an overlay image to disk, with the format inferred from the
// file extension.
func Save(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save overlay %s: %w", path, err)
	}
	return nil
}
