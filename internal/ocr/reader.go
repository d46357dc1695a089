package ocr

import (
	"fmt"
	"image"
	"image/png"
	"math"
	"os"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/sheetkit/omr-engine/internal/detection"
	"github.com/sheetkit/omr-engine/internal/pipeline"
	"github.com/sheetkit/omr-engine/internal/template"
)

// regionPadding is added on each side of a field's crop so Tesseract sees
// a little whitespace around the text, which improves segmentation.
const regionPadding = 4

// Reader runs Tesseract over the OCR fields of a sheet. It satisfies
// pipeline.TextReader.
type Reader struct {
	// Language is the Tesseract language code. Empty means "eng".
	Language string

	// Whitelist restricts recognition to the given characters when
	// non-empty, e.g. "0123456789" for numeric fields.
	Whitelist string
}

var _ pipeline.TextReader = (*Reader)(nil)

// ReadField recognizes text inside one field's scan boxes.
//
// The crop covers the union of the field's boxes, expanded by a small
// padding and translated by the validated block shift. Regions falling
// partly outside the image are clamped to the image bounds; a region
// fully outside returns an error.
func (r *Reader) ReadField(img image.Image, blockName string, f *template.Field, off detection.Offset) (pipeline.FieldText, error) {
	ft := pipeline.FieldText{FieldID: f.ID, Label: f.Label, BlockName: blockName}

	region, err := fieldRegion(f, off)
	if err != nil {
		return ft, err
	}
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return ft, fmt.Errorf("field %s: region outside image bounds", f.ID)
	}

	cropped := imaging.Crop(img, region)

	// Tesseract wants a file path.
	tmpFile, err := os.CreateTemp("", "ocr-field-*.png")
	if err != nil {
		return ft, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if err := png.Encode(tmpFile, cropped); err != nil {
		tmpFile.Close()
		return ft, fmt.Errorf("failed to encode temp image: %w", err)
	}
	tmpFile.Close()

	text, confidence, err := r.recognize(tmpPath)
	if err != nil {
		return ft, fmt.Errorf("field %s: %w", f.ID, err)
	}

	ft.Text = text
	ft.Confidence = confidence
	return ft, nil
}

// ReadSheet recognizes every OCR field of the template. Fields that fail
// are returned with empty text rather than aborting the sheet; the first
// error encountered is returned alongside the partial results.
func (r *Reader) ReadSheet(img image.Image, tmpl *template.Template, offsets map[string]detection.Offset) ([]pipeline.FieldText, error) {
	fields := tmpl.OCRFields()
	if len(fields) == 0 {
		return nil, nil
	}

	var firstErr error
	results := make([]pipeline.FieldText, 0, len(fields))
	for _, bf := range fields {
		ft, err := r.ReadField(img, bf.BlockName, bf.Field, offsets[bf.BlockName])
		if err != nil && firstErr == nil {
			firstErr = err
		}
		results = append(results, ft)
	}
	return results, firstErr
}

func (r *Reader) recognize(imagePath string) (string, float64, error) {
	client := gosseract.NewClient()
	defer client.Close()

	language := r.Language
	if language == "" {
		language = "eng"
	}
	if err := client.SetLanguage(language); err != nil {
		return "", 0, fmt.Errorf("failed to set language: %w", err)
	}
	if r.Whitelist != "" {
		if err := client.SetWhitelist(r.Whitelist); err != nil {
			return "", 0, fmt.Errorf("failed to set whitelist: %w", err)
		}
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", 0, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", 0, fmt.Errorf("OCR failed: %w", err)
	}

	// Word confidences are best-effort: some Tesseract configurations
	// cannot produce bounding boxes, and the text alone is still useful.
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return text, 0, nil
	}

	var sum float64
	var n int
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		sum += float64(box.Confidence) / 100.0
		n++
	}
	if n == 0 {
		return text, 0, nil
	}
	return text, sum / float64(n), nil
}

// fieldRegion computes the padded union of a field's scan boxes, shifted
// by the validated block offset.
func fieldRegion(f *template.Field, off detection.Offset) (image.Rectangle, error) {
	if len(f.Boxes) == 0 {
		return image.Rectangle{}, fmt.Errorf("field %s: no scan boxes", f.ID)
	}

	dx := int(math.Round(off.DX))
	dy := int(math.Round(off.DY))

	first := f.Boxes[0]
	region := image.Rect(first.X, first.Y, first.X+first.Width, first.Y+first.Height)
	for _, box := range f.Boxes[1:] {
		region = region.Union(image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height))
	}
	region = region.Add(image.Pt(dx, dy))
	return region.Inset(-regionPadding), nil
}
