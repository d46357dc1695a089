package detection

import (
	"math"

	"github.com/sheetkit/omr-engine/internal/imaging"
	"github.com/sheetkit/omr-engine/internal/template"
)

// Offset is a positional correction applied to a block's geometry before
// sampling, in signed pixel units. The zero Offset samples the template
// geometry unchanged.
type Offset struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// IsZero reports whether the offset moves nothing.
func (o Offset) IsZero() bool { return o.DX == 0 && o.DY == 0 }

// Sampler reduces mark regions of a sheet to mean-intensity samples. It
// holds only the luminance buffer, so one Sampler serves both the baseline
// and the shifted detection pass over the same sheet.
type Sampler struct {
	buf *imaging.Buffer
}

// NewSampler creates a sampler over a sheet's luminance buffer.
func NewSampler(buf *imaging.Buffer) *Sampler {
	return &Sampler{buf: buf}
}

// SampleField produces the FieldResult for one bubble field, applying the
// block's offset to every scan box.
//
// A scan box outside the buffer does not fail the sheet: the field comes
// back with Unreadable set and the cause in Err, and the caller propagates
// it as a flagged result.
func (s *Sampler) SampleField(blockName string, field *template.Field, off Offset) *FieldResult {
	result := &FieldResult{
		FieldID:   field.ID,
		Label:     field.Label,
		BlockName: blockName,
		Samples:   make([]Sample, 0, len(field.Boxes)),
	}

	dx := int(math.Round(off.DX))
	dy := int(math.Round(off.DY))

	for _, box := range field.Boxes {
		x, y := box.X+dx, box.Y+dy
		mean, err := s.buf.MeanIntensity(x, y, box.Width, box.Height)
		if err != nil {
			result.Unreadable = true
			result.Err = err
			result.Samples = nil
			return result
		}
		result.Samples = append(result.Samples, Sample{
			Value:    mean,
			X:        x,
			Y:        y,
			BoxValue: box.Value,
		})
	}
	return result
}

// SampleSheet runs detection for every bubble field in the template and
// fills the aggregate. offsets maps block names to validated positional
// corrections; blocks without an entry sample unshifted.
func (s *Sampler) SampleSheet(tmpl *template.Template, offsets map[string]Offset, agg *SheetAggregate) error {
	for _, bf := range tmpl.BubbleFields() {
		result := s.SampleField(bf.BlockName, bf.Field, offsets[bf.BlockName])
		if err := agg.SaveFieldResult(result); err != nil {
			return err
		}
	}
	return nil
}
