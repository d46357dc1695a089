package pipeline

import (
	"context"
	"fmt"
	"image"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sheetkit/omr-engine/internal/config"
	"github.com/sheetkit/omr-engine/internal/detection"
	"github.com/sheetkit/omr-engine/internal/imaging"
	"github.com/sheetkit/omr-engine/internal/shift"
	"github.com/sheetkit/omr-engine/internal/template"
)

// FieldText is the text read from one OCR-type template field.
type FieldText struct {
	// FieldID identifies the template field this text belongs to.
	FieldID string `json:"field_id"`

	// Label is the field's human-readable label.
	Label string `json:"label"`

	// BlockName is the template block the field belongs to.
	BlockName string `json:"block_name"`

	// Text is the recognized text.
	Text string `json:"text"`

	// Confidence is the mean word confidence (0.0 to 1.0). Zero when
	// recognition produced nothing.
	Confidence float64 `json:"confidence"`
}

// TextReader recognizes text in a sheet's OCR-declared fields. The ocr
// package provides the Tesseract-backed implementation; keeping the
// dependency behind this interface means the pipeline itself builds
// without cgo.
type TextReader interface {
	ReadSheet(img image.Image, tmpl *template.Template, offsets map[string]detection.Offset) ([]FieldText, error)
}

// Engine classifies sheets against one template with one configuration.
// It is safe for concurrent use: per-sheet state lives in the run, not
// the engine.
type Engine struct {
	Config   config.Config
	Template *template.Template

	// OCR reads text fields when non-nil. Templates without OCR fields
	// never touch it.
	OCR TextReader

	Log zerolog.Logger
}

// SheetResult is the complete outcome of classifying one sheet.
type SheetResult struct {
	// SheetRef identifies the sheet, normally its image path.
	SheetRef string `json:"sheet_ref"`

	// RunID uniquely identifies this classification run.
	RunID string `json:"run_id"`

	// Fields holds one interpretation per bubble field, in template order.
	Fields []detection.FieldInterpretation `json:"fields"`

	// OCRFields holds text read from OCR-type fields, if any.
	OCRFields []FieldText `json:"ocr_fields,omitempty"`

	// GlobalThreshold is the sheet-wide threshold the adaptive strategy
	// composed against.
	GlobalThreshold detection.ThresholdResult `json:"global_threshold"`

	// OutlierDeviationThreshold is the sheet-wide bound on per-field
	// sample dispersion, derived from the deviation distribution.
	OutlierDeviationThreshold float64 `json:"outlier_deviation_threshold"`

	// ShiftApplied reports whether at least one validated positional
	// correction influenced the final field positions.
	ShiftApplied bool `json:"shift_applied,omitempty"`

	// ShiftValidation carries the per-block accept/reject decisions when
	// corrections were supplied.
	ShiftValidation []shift.ValidationResult `json:"shift_validation,omitempty"`

	// Offsets holds the accepted per-block offsets detection sampled at.
	// Empty when no shift was applied.
	Offsets map[string]detection.Offset `json:"offsets,omitempty"`

	// ShiftComparison summarizes the divergence between the shifted and
	// unshifted detection runs. Nil when no dual run happened.
	ShiftComparison *shift.ComparisonResult `json:"shift_comparison,omitempty"`

	// ConfidenceReduction is the factor applied to fields the shift
	// changed, zero when divergence stayed within tolerance. It is
	// applied multiplicatively (confidence × (1 − reduction)), which
	// yields slightly higher post-reduction confidences than a flat
	// subtraction would.
	ConfidenceReduction float64 `json:"confidence_reduction,omitempty"`

	// Image is the decoded sheet, kept for overlay rendering.
	Image image.Image `json:"-"`
}

// ProcessSheet classifies one sheet image.
//
// shifts carries externally measured positional corrections per block and
// may be nil. Corrections are only honored when shift detection is enabled
// in the configuration; each is validated against its block's margin
// before use.
func (e *Engine) ProcessSheet(ctx context.Context, path string, shifts []shift.Record) (*SheetResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &SheetResult{
		SheetRef: path,
		RunID:    uuid.NewString(),
	}
	log := e.Log.With().Str("sheet", path).Str("run_id", result.RunID).Logger()

	img, err := imaging.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", path, err)
	}
	result.Image = img
	if info, infoErr := imaging.ReadImageInfo(img, path); infoErr == nil {
		if info.Width != e.Template.Page.Width || info.Height != e.Template.Page.Height {
			log.Warn().
				Int("width", info.Width).
				Int("height", info.Height).
				Int("page_width", e.Template.Page.Width).
				Int("page_height", e.Template.Page.Height).
				Msg("sheet dimensions differ from template page")
		}
	}
	buf := imaging.NewBuffer(img)

	useShift := e.Config.ShiftDetection.Enabled && len(shifts) > 0
	var offsets map[string]detection.Offset
	if useShift {
		validator := &shift.Validator{
			GlobalMaxShiftPixels:   e.Config.ShiftDetection.GlobalMaxShiftPixels,
			PerBlockMaxShiftPixels: e.Config.ShiftDetection.PerBlockMaxShiftPixels,
			Template:               e.Template,
			Log:                    log,
		}
		result.ShiftValidation, offsets = validator.Validate(shifts)
		result.Offsets = offsets
	}

	fields, global, outlier, err := e.classify(path, buf, offsets)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", path, err)
	}
	result.Fields = fields
	result.GlobalThreshold = global
	result.OutlierDeviationThreshold = outlier

	if useShift && len(offsets) > 0 {
		result.ShiftApplied = true
		if err := e.compareAgainstBaseline(buf, result, log); err != nil {
			return nil, fmt.Errorf("sheet %s: %w", path, err)
		}
	}

	if e.OCR != nil {
		texts, err := e.OCR.ReadSheet(img, e.Template, offsets)
		if err != nil {
			// Partial OCR is still worth reporting; bubbles are the
			// primary payload.
			log.Warn().Err(err).Msg("ocr incomplete")
		}
		result.OCRFields = texts
	}

	log.Info().
		Int("fields", len(result.Fields)).
		Float64("global_threshold", global.ThresholdValue).
		Str("method", string(global.Method)).
		Bool("shift_applied", result.ShiftApplied).
		Msg("sheet classified")
	return result, nil
}

// classify runs one full detection pass at the given offsets.
func (e *Engine) classify(sheetRef string, buf *imaging.Buffer, offsets map[string]detection.Offset) ([]detection.FieldInterpretation, detection.ThresholdResult, float64, error) {
	agg := detection.NewSheetAggregate(sheetRef)
	sampler := detection.NewSampler(buf)
	if err := sampler.SampleSheet(e.Template, offsets, agg); err != nil {
		return nil, detection.ThresholdResult{}, 0, err
	}
	// The aggregate stays open until the last query; Finalize closes it
	// for good.
	defer agg.Finalize()

	values, err := agg.AllSampleValues()
	if err != nil {
		return nil, detection.ThresholdResult{}, 0, err
	}
	deviations, err := agg.AllFieldStdDeviations()
	if err != nil {
		return nil, detection.ThresholdResult{}, 0, err
	}

	outlier := detection.GlobalStrategy{}.
		CalculateThreshold(deviations, e.Config.OutlierConfig())
	tcfg := e.Config.ThresholdConfig(outlier.ThresholdValue)
	global := detection.GlobalStrategy{}.CalculateThreshold(values, tcfg)
	adaptive := detection.AdaptiveStrategy{GlobalResult: global}

	results, err := agg.FieldResults()
	if err != nil {
		return nil, detection.ThresholdResult{}, 0, err
	}

	fields := make([]detection.FieldInterpretation, 0, len(results))
	for _, fr := range results {
		tr := adaptive.CalculateThreshold(fr.Values(), tcfg)
		fi := detection.InterpretField(fr, tr, e.Config.QualityBands,
			e.emptyValueFor(fr.FieldID), outlier.ThresholdValue)
		fields = append(fields, *fi)
	}
	return fields, global, outlier.ThresholdValue, nil
}

// compareAgainstBaseline reruns detection at the template positions and
// penalizes fields the shift changed when the divergence exceeds the
// configured tolerance. The penalty scales each mismatched field's
// confidence by (1 − reduction), keeping it in [0,1] without reclamping.
func (e *Engine) compareAgainstBaseline(buf *imaging.Buffer, result *SheetResult, log zerolog.Logger) error {
	baseline, _, _, err := e.classify(result.SheetRef, buf, nil)
	if err != nil {
		return err
	}

	shifted := make([]shift.FieldOutcome, len(result.Fields))
	for i := range result.Fields {
		shifted[i] = shift.Outcome(&result.Fields[i])
	}
	base := make([]shift.FieldOutcome, len(baseline))
	for i := range baseline {
		base[i] = shift.Outcome(&baseline[i])
	}

	cmp := shift.Compare(shifted, base)
	result.ShiftComparison = &cmp

	sd := e.Config.ShiftDetection
	if !cmp.ExceedsTolerance(sd.BubbleMismatchThreshold, sd.FieldMismatchThreshold) {
		return nil
	}

	reduction := shift.ConfidenceReduction(cmp.Severity, sd.ConfidenceReductionMin, sd.ConfidenceReductionMax)
	result.ConfidenceReduction = reduction

	mismatched := make(map[string]bool, len(cmp.MismatchedFields))
	for _, id := range cmp.MismatchedFields {
		mismatched[id] = true
	}
	for i := range result.Fields {
		if mismatched[result.Fields[i].FieldID] {
			result.Fields[i].Confidence *= 1 - reduction
		}
	}

	log.Warn().
		Int("bubble_diffs", cmp.BubbleDiffs).
		Int("field_diffs", cmp.FieldDiffs).
		Float64("severity", cmp.Severity).
		Float64("reduction", reduction).
		Msg("shift divergence exceeded tolerance")
	return nil
}

// emptyValueFor resolves the empty marker for a field: the field's own
// declared value, else the configured default.
func (e *Engine) emptyValueFor(fieldID string) string {
	for _, bf := range e.Template.BubbleFields() {
		if bf.Field.ID == fieldID {
			if bf.Field.EmptyValue != "" {
				return bf.Field.EmptyValue
			}
			break
		}
	}
	return e.Config.Outputs.EmptyValue
}
