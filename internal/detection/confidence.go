package detection

import "math"

// Confidence weighting. The three positive signals sum to 0.80; a clean
// field with an excellent scan and a decisive jump lands near that, and
// the remaining headroom keeps even perfect fields from reading as
// certainty. Penalties subtract from the weighted sum before clamping.
const (
	thresholdWeight   = 0.35
	marginWeight      = 0.25
	scanQualityWeight = 0.20

	multiMarkPenalty = 0.20
	disparityPenalty = 0.15
)

// qualityConfidence maps a scan quality category onto [0,1].
func qualityConfidence(q ScanQuality) float64 {
	switch q {
	case QualityExcellent:
		return 1.0
	case QualityGood:
		return 0.75
	case QualityAcceptable:
		return 0.5
	default:
		return 0.25
	}
}

// marginConfidence scores how far samples sit from the threshold,
// normalized by the sample range. Samples hugging the threshold mean the
// classification could flip with slight scan noise; samples far from it
// mean the two populations are well clear of the cut.
func marginConfidence(values []float64, threshold float64) float64 {
	if len(values) == 0 {
		return 0
	}
	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	valueRange := max - min
	if valueRange <= 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += math.Abs(v - threshold)
	}
	return clamp01(sum / float64(len(values)) / valueRange)
}

// EvaluateConfidence combines threshold quality, sample dispersion, and
// multi-mark/disparity signals into the single normalized score downstream
// scoring uses to decide whether a field's classification is trustworthy
// without external fallback.
//
// The score is a weighted sum — threshold confidence x 0.35, margin
// confidence x 0.25, scan-quality confidence x 0.20 — minus a multi-mark
// penalty and a disparity penalty, clamped to [0,1].
func EvaluateConfidence(tr ThresholdResult, fr *FieldResult, bands QualityBands, multiMarked bool) float64 {
	score := tr.Confidence*thresholdWeight +
		marginConfidence(fr.Values(), tr.ThresholdValue)*marginWeight +
		qualityConfidence(fr.Quality(bands))*scanQualityWeight

	if multiMarked {
		score -= multiMarkPenalty
	}
	if tr.Disparity {
		score -= disparityPenalty
	}
	return clamp01(score)
}
