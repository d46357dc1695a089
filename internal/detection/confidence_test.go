package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateConfidence_Range(t *testing.T) {
	bands := DefaultQualityBands()

	cases := []struct {
		name   string
		tr     ThresholdResult
		fr     *FieldResult
		multi  bool
	}{
		{"clean field", ThresholdResult{ThresholdValue: 150, Confidence: 0.9}, fieldResult("q", 80, 82, 220, 222), false},
		{"zero threshold confidence", ThresholdResult{ThresholdValue: 150, Confidence: 0}, fieldResult("q", 140, 145, 150), false},
		{"multi marked", ThresholdResult{ThresholdValue: 150, Confidence: 0.5}, fieldResult("q", 80, 90, 220), true},
		{"disparity", ThresholdResult{ThresholdValue: 150, Confidence: 0.5, Disparity: true}, fieldResult("q", 80, 220), false},
		{"empty field", ThresholdResult{ThresholdValue: 150, Confidence: 1}, fieldResult("q"), false},
		{"everything against it", ThresholdResult{ThresholdValue: 150, Disparity: true}, fieldResult("q", 149, 150, 151), true},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateConfidence(tt.tr, tt.fr, bands, tt.multi)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestEvaluateConfidence_PenaltiesReduceScore(t *testing.T) {
	bands := DefaultQualityBands()
	fr := fieldResult("q", 80, 82, 220, 222)
	tr := ThresholdResult{ThresholdValue: 150, Confidence: 0.9}

	base := EvaluateConfidence(tr, fr, bands, false)
	multi := EvaluateConfidence(tr, fr, bands, true)
	assert.InDelta(t, multiMarkPenalty, base-multi, 1e-9)

	disparate := tr
	disparate.Disparity = true
	assert.InDelta(t, disparityPenalty, base-EvaluateConfidence(disparate, fr, bands, false), 1e-9)
}

func TestEvaluateConfidence_ScanQualityContribution(t *testing.T) {
	tr := ThresholdResult{ThresholdValue: 150, Confidence: 0.5}
	// Well-separated samples: std dev ~69, excellent under default bands.
	separated := fieldResult("q", 80, 81, 220, 221)
	// Clustered samples: std dev ~1, poor under default bands.
	clustered := fieldResult("q", 148, 149, 150, 151)

	bands := DefaultQualityBands()
	assert.Greater(t,
		EvaluateConfidence(tr, separated, bands, false),
		EvaluateConfidence(tr, clustered, bands, false))
}

func TestMarginConfidence(t *testing.T) {
	// Samples on top of the threshold score near zero margin.
	assert.InDelta(t, 0, marginConfidence([]float64{150, 150}, 150), 1e-9)
	// Degenerate range.
	assert.Zero(t, marginConfidence([]float64{100, 100}, 150))
	assert.Zero(t, marginConfidence(nil, 150))

	far := marginConfidence([]float64{80, 220}, 150)
	near := marginConfidence([]float64{100, 140, 160, 200}, 150)
	assert.Greater(t, far, near)
}

func TestQualityConfidenceMonotonic(t *testing.T) {
	assert.Greater(t, qualityConfidence(QualityExcellent), qualityConfidence(QualityGood))
	assert.Greater(t, qualityConfidence(QualityGood), qualityConfidence(QualityAcceptable))
	assert.Greater(t, qualityConfidence(QualityAcceptable), qualityConfidence(QualityPoor))
}
