package shift

import "github.com/sheetkit/omr-engine/internal/detection"

// ComparisonResult quantifies the disagreement between a shifted and an
// unshifted detection run over one sheet.
type ComparisonResult struct {
	// BubbleDiffs counts samples whose marked/unmarked classification
	// differs between the two runs.
	BubbleDiffs int `json:"bubble_diffs"`

	// FieldDiffs counts fields whose resolved answer string differs.
	FieldDiffs int `json:"field_diffs"`

	// TotalBubbles is the number of samples compared.
	TotalBubbles int `json:"total_bubbles"`

	// Severity is BubbleDiffs / TotalBubbles, in [0,1].
	Severity float64 `json:"severity"`

	// MismatchedFields lists the IDs of fields with any bubble- or
	// answer-level difference; the confidence reduction applies to these.
	MismatchedFields []string `json:"mismatched_fields,omitempty"`
}

// ExceedsTolerance reports whether the disagreement crosses the configured
// mismatch thresholds and should be surfaced as a significant event.
func (c ComparisonResult) ExceedsTolerance(bubbleMismatchThreshold, fieldMismatchThreshold int) bool {
	return (bubbleMismatchThreshold > 0 && c.BubbleDiffs >= bubbleMismatchThreshold) ||
		(fieldMismatchThreshold > 0 && c.FieldDiffs >= fieldMismatchThreshold)
}

// FieldOutcome is one field's classification outcome in a detection run,
// reduced to what run comparison cares about.
type FieldOutcome struct {
	FieldID string `json:"field_id"`
	Answer  string `json:"answer"`
	Marked  []bool `json:"marked"`
}

// Outcome reduces a field interpretation to its comparable surface.
func Outcome(fi *detection.FieldInterpretation) FieldOutcome {
	marked := make([]bool, len(fi.Bubbles))
	for i, b := range fi.Bubbles {
		marked[i] = b.IsMarked
	}
	return FieldOutcome{FieldID: fi.FieldID, Answer: fi.Answer, Marked: marked}
}

// Compare diffs two runs field by field. Runs are matched by field ID;
// fields present in only one run are ignored (they cannot disagree).
// Sample counts are taken from the shifted run.
func Compare(shifted, baseline []FieldOutcome) ComparisonResult {
	baseByID := make(map[string]FieldOutcome, len(baseline))
	for _, f := range baseline {
		baseByID[f.FieldID] = f
	}

	var result ComparisonResult
	for _, s := range shifted {
		result.TotalBubbles += len(s.Marked)

		b, ok := baseByID[s.FieldID]
		if !ok {
			continue
		}

		bubbleDiffs := 0
		for i := range s.Marked {
			if i >= len(b.Marked) {
				break
			}
			if s.Marked[i] != b.Marked[i] {
				bubbleDiffs++
			}
		}
		result.BubbleDiffs += bubbleDiffs

		fieldDiff := s.Answer != b.Answer
		if fieldDiff {
			result.FieldDiffs++
		}
		if bubbleDiffs > 0 || fieldDiff {
			result.MismatchedFields = append(result.MismatchedFields, s.FieldID)
		}
	}

	if result.TotalBubbles > 0 {
		result.Severity = float64(result.BubbleDiffs) / float64(result.TotalBubbles)
	}
	return result
}

// ConfidenceReduction interpolates linearly between the configured minimum
// and maximum reduction according to severity. Severity 0 still yields the
// minimum: any disagreement at all costs something.
func ConfidenceReduction(severity, min, max float64) float64 {
	if severity < 0 {
		severity = 0
	}
	if severity > 1 {
		severity = 1
	}
	return min + severity*(max-min)
}
