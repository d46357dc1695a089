package detection

// BubbleInterpretation is the classification of one sample against a
// resolved threshold. One is created per sample and consumed by scoring;
// re-interpretation with identical inputs is idempotent.
type BubbleInterpretation struct {
	Sample        Sample  `json:"sample"`
	Threshold     float64 `json:"threshold"`
	IsMarked      bool    `json:"is_marked"`
	IsMultiMarked bool    `json:"is_multi_marked,omitempty"`
}

// FieldInterpretation is the terminal, field-level answer: the resolved
// value string, the confidence score, and the per-bubble classifications.
type FieldInterpretation struct {
	FieldID   string `json:"field_id"`
	Label     string `json:"label"`
	BlockName string `json:"block_name"`

	// Answer is the field's final value: the single marked bubble's value,
	// or the field's empty marker when zero or multiple bubbles are marked.
	Answer string `json:"answer"`

	// Confidence in [0,1]; the sole downstream trust signal.
	Confidence float64 `json:"confidence"`

	IsMultiMarked bool `json:"is_multi_marked,omitempty"`
	Unreadable    bool `json:"unreadable,omitempty"`

	// OutlierDeviation flags a field whose sample dispersion exceeded the
	// sheet-wide outlier-deviation threshold.
	OutlierDeviation bool `json:"outlier_deviation,omitempty"`

	Threshold    ThresholdResult        `json:"threshold"`
	Quality      ScanQuality            `json:"quality"`
	StdDeviation float64                `json:"std_deviation"`
	Bubbles      []BubbleInterpretation `json:"bubbles,omitempty"`
}

// MarkedValues returns the values of all marked bubbles in sample order.
func (fi *FieldInterpretation) MarkedValues() []string {
	var out []string
	for _, b := range fi.Bubbles {
		if b.IsMarked {
			out = append(out, b.Sample.BoxValue)
		}
	}
	return out
}

// InterpretField classifies every sample of a field against the resolved
// threshold and assembles the field-level answer.
//
// Classification is value < threshold = marked. When more than one sample
// is marked, every marked bubble carries IsMultiMarked and the field's
// answer is the empty marker; a field where ALL bubbles read as marked is
// treated as unanswered too, since that is a scanning artifact rather
// than a response. Unreadable fields produce an empty answer with zero
// confidence and the Unreadable flag set — never a silent drop.
func InterpretField(fr *FieldResult, tr ThresholdResult, bands QualityBands, emptyValue string, outlierDeviationThreshold float64) *FieldInterpretation {
	fi := &FieldInterpretation{
		FieldID:   fr.FieldID,
		Label:     fr.Label,
		BlockName: fr.BlockName,
		Answer:    emptyValue,
		Threshold: tr,
	}

	if fr.Unreadable {
		fi.Unreadable = true
		fi.Quality = QualityPoor
		return fi
	}

	fi.StdDeviation = fr.StdDeviation()
	fi.Quality = fr.Quality(bands)
	fi.OutlierDeviation = outlierDeviationThreshold > 0 && fi.StdDeviation > outlierDeviationThreshold

	markedCount := 0
	fi.Bubbles = make([]BubbleInterpretation, len(fr.Samples))
	for i, s := range fr.Samples {
		marked := s.Value < tr.ThresholdValue
		if marked {
			markedCount++
		}
		fi.Bubbles[i] = BubbleInterpretation{
			Sample:    s,
			Threshold: tr.ThresholdValue,
			IsMarked:  marked,
		}
	}

	fi.IsMultiMarked = markedCount > 1
	if fi.IsMultiMarked {
		for i := range fi.Bubbles {
			if fi.Bubbles[i].IsMarked {
				fi.Bubbles[i].IsMultiMarked = true
			}
		}
	}

	// All bubbles reading marked on a multi-bubble field is a scanning
	// artifact; a single-box field legitimately has all boxes marked.
	allMarked := len(fr.Samples) > 1 && markedCount == len(fr.Samples)
	if markedCount == 1 && !allMarked {
		fi.Answer = fi.MarkedValues()[0]
	}

	fi.Confidence = EvaluateConfidence(tr, fr, bands, fi.IsMultiMarked)
	return fi
}
