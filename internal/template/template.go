// Package template defines the sheet layout model: field blocks, fields,
// and the scan boxes (mark regions) the detection pipeline samples.
//
// A layout is loaded once from a JSON file and treated as immutable for the
// lifetime of a batch. Positional corrections ("shifts") are never written
// back into the layout; they are carried separately and applied at sampling
// time so that concurrent sheet runs can share one Template safely.
package template

import (
	"encoding/json"
	"fmt"
	"os"
)

// FieldType identifies how a field's value is detected.
type FieldType string

const (
	// FieldTypeBubble is a field answered by filling one of several marks.
	FieldTypeBubble FieldType = "bubble"

	// FieldTypeOCR is a field containing printed text read via OCR.
	FieldTypeOCR FieldType = "ocr"
)

// ScanBox is a single mark region: the rectangle expected to contain one
// filled or empty bubble, plus the answer value that bubble represents.
type ScanBox struct {
	Value  string `json:"value"`  // Answer value contributed when marked (e.g., "A")
	X      int    `json:"x"`      // Left edge in pixels, before any shift
	Y      int    `json:"y"`      // Top edge in pixels, before any shift
	Width  int    `json:"width"`  // Box width in pixels
	Height int    `json:"height"` // Box height in pixels
}

// Field is one answerable item: a labeled, ordered group of scan boxes.
type Field struct {
	ID         string    `json:"id"`                    // Unique field identifier
	Label      string    `json:"label"`                 // Human-readable label (e.g., "Q12")
	Type       FieldType `json:"type"`                  // Detection type; empty means bubble
	EmptyValue string    `json:"empty_value,omitempty"` // Value reported for an unanswered field
	Boxes      []ScanBox `json:"boxes"`                 // Mark regions in answer order
}

// DetectionType returns the field's type, defaulting to bubble when the
// layout file omits it.
func (f *Field) DetectionType() FieldType {
	if f.Type == "" {
		return FieldTypeBubble
	}
	return f.Type
}

// Block is a named group of fields sharing one physical region of the
// sheet. Blocks are the unit that positional corrections key on: an
// externally detected shift moves every scan box in the block together.
type Block struct {
	Name string `json:"name"` // Block name, referenced by shift records

	// MaxShiftPixels bounds the magnitude of an acceptable positional
	// correction for this block. Zero means the global limit applies.
	MaxShiftPixels float64 `json:"max_shift_pixels,omitempty"`

	Fields []Field `json:"fields"` // Fields belonging to this block
}

// Page declares the expected pixel dimensions of the processed sheet image.
type Page struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Template is the complete layout for one kind of answer sheet.
type Template struct {
	Page   Page    `json:"page"`
	Blocks []Block `json:"blocks"`
}

// Load reads and validates a layout file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	var tmpl Template
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, fmt.Errorf("invalid template %s: %w", path, err)
	}
	return &tmpl, nil
}

// Validate checks structural integrity: non-empty page, unique block names
// and field IDs, and at least one scan box per bubble field.
func (t *Template) Validate() error {
	if t.Page.Width <= 0 || t.Page.Height <= 0 {
		return fmt.Errorf("page dimensions must be positive, got %dx%d", t.Page.Width, t.Page.Height)
	}
	blockNames := make(map[string]bool)
	fieldIDs := make(map[string]bool)
	for bi := range t.Blocks {
		block := &t.Blocks[bi]
		if block.Name == "" {
			return fmt.Errorf("block %d has no name", bi)
		}
		if blockNames[block.Name] {
			return fmt.Errorf("duplicate block name %q", block.Name)
		}
		blockNames[block.Name] = true
		if block.MaxShiftPixels < 0 {
			return fmt.Errorf("block %q: max_shift_pixels must be non-negative", block.Name)
		}
		for fi := range block.Fields {
			field := &block.Fields[fi]
			if field.ID == "" {
				return fmt.Errorf("block %q: field %d has no id", block.Name, fi)
			}
			if fieldIDs[field.ID] {
				return fmt.Errorf("duplicate field id %q", field.ID)
			}
			fieldIDs[field.ID] = true
			if field.DetectionType() == FieldTypeBubble && len(field.Boxes) == 0 {
				return fmt.Errorf("bubble field %q has no scan boxes", field.ID)
			}
			for bx, box := range field.Boxes {
				if box.Width <= 0 || box.Height <= 0 {
					return fmt.Errorf("field %q box %d: dimensions must be positive", field.ID, bx)
				}
			}
		}
	}
	return nil
}

// Block returns the named block, or nil if the template has none.
func (t *Template) Block(name string) *Block {
	for i := range t.Blocks {
		if t.Blocks[i].Name == name {
			return &t.Blocks[i]
		}
	}
	return nil
}

// FieldCount returns the total number of fields across all blocks.
func (t *Template) FieldCount() int {
	n := 0
	for i := range t.Blocks {
		n += len(t.Blocks[i].Fields)
	}
	return n
}

// BubbleFields returns all bubble-type fields in block order, paired with
// the name of the block that owns them.
func (t *Template) BubbleFields() []BlockField {
	return t.fieldsOfType(FieldTypeBubble)
}

// OCRFields returns all OCR-type fields in block order.
func (t *Template) OCRFields() []BlockField {
	return t.fieldsOfType(FieldTypeOCR)
}

// BlockField pairs a field with its owning block's name.
type BlockField struct {
	BlockName string
	Field     *Field
}

func (t *Template) fieldsOfType(ft FieldType) []BlockField {
	var out []BlockField
	for bi := range t.Blocks {
		block := &t.Blocks[bi]
		for fi := range block.Fields {
			field := &block.Fields[fi]
			if field.DetectionType() == ft {
				out = append(out, BlockField{BlockName: block.Name, Field: field})
			}
		}
	}
	return out
}
