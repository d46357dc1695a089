// Package shift validates externally supplied positional corrections for
// mark-region blocks and measures how much applying them changes detection
// outcomes.
//
// Corrections come from an external ML positional detector and are never
// trusted blindly: each is checked against a configured pixel margin, and
// accepted corrections still have to survive a comparison between a
// shifted and an unshifted detection run. Disagreement between the two
// runs translates into a confidence reduction on the shifted results.
package shift

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/sheetkit/omr-engine/internal/detection"
	"github.com/sheetkit/omr-engine/internal/template"
)

// Record is one externally detected positional correction for a block,
// in signed pixel units.
type Record struct {
	BlockName string  `json:"block_name"`
	DX        float64 `json:"dx"`
	DY        float64 `json:"dy"`
}

// Magnitude returns the Euclidean length of the correction vector.
func (r Record) Magnitude() float64 {
	return math.Hypot(r.DX, r.DY)
}

// ValidationResult records the accept/reject decision for one Record.
type ValidationResult struct {
	Record    Record  `json:"record"`
	Accepted  bool    `json:"accepted"`
	Magnitude float64 `json:"magnitude"`
	Margin    float64 `json:"margin"`
	Reason    string  `json:"reason,omitempty"`
}

// Validator checks shift records against configured margins.
//
// The margin for a block resolves in order: per-block configuration,
// the block's own max_shift_pixels from the template, then the global
// margin. A rejected shift is logged and the block samples unshifted with
// no confidence penalty.
type Validator struct {
	GlobalMaxShiftPixels   float64
	PerBlockMaxShiftPixels map[string]float64
	Template               *template.Template
	Log                    zerolog.Logger
}

// MarginFor resolves the acceptance margin for a block.
func (v *Validator) MarginFor(blockName string) float64 {
	if m, ok := v.PerBlockMaxShiftPixels[blockName]; ok {
		return m
	}
	if v.Template != nil {
		if block := v.Template.Block(blockName); block != nil && block.MaxShiftPixels > 0 {
			return block.MaxShiftPixels
		}
	}
	return v.GlobalMaxShiftPixels
}

// Validate checks every record and returns the per-record decisions plus
// the offsets to apply, keyed by block name. Records for blocks the
// template does not know are rejected.
func (v *Validator) Validate(records []Record) ([]ValidationResult, map[string]detection.Offset) {
	results := make([]ValidationResult, 0, len(records))
	offsets := make(map[string]detection.Offset)

	for _, rec := range records {
		res := ValidationResult{
			Record:    rec,
			Magnitude: rec.Magnitude(),
			Margin:    v.MarginFor(rec.BlockName),
		}

		switch {
		case v.Template != nil && v.Template.Block(rec.BlockName) == nil:
			res.Reason = fmt.Sprintf("unknown block %q", rec.BlockName)
		case res.Magnitude > res.Margin:
			res.Reason = fmt.Sprintf("magnitude %.1fpx exceeds margin %.1fpx", res.Magnitude, res.Margin)
		default:
			res.Accepted = true
		}

		if res.Accepted {
			offsets[rec.BlockName] = detection.Offset{DX: rec.DX, DY: rec.DY}
			v.Log.Debug().
				Str("block", rec.BlockName).
				Float64("dx", rec.DX).
				Float64("dy", rec.DY).
				Msg("shift accepted")
		} else {
			v.Log.Warn().
				Str("block", rec.BlockName).
				Float64("magnitude", res.Magnitude).
				Float64("margin", res.Margin).
				Msg("shift rejected")
		}
		results = append(results, res)
	}
	return results, offsets
}
