package detection

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Sample is one mark region reduced to a single mean-intensity value.
// Lower values are darker, i.e. more likely marked. Samples are immutable
// once produced and owned by the field they belong to for the duration of
// one sheet's processing.
type Sample struct {
	// Value is the mean pixel intensity of the region (0-255).
	Value float64 `json:"value"`

	// X, Y is the region's top-left corner after any applied shift.
	X int `json:"x"`
	Y int `json:"y"`

	// BoxValue is the answer value the region contributes when marked.
	BoxValue string `json:"box_value"`
}

// ScanQuality is a categorical assessment of how cleanly a field's marked
// and unmarked samples separate, derived from their standard deviation.
type ScanQuality string

const (
	QualityExcellent  ScanQuality = "excellent"
	QualityGood       ScanQuality = "good"
	QualityAcceptable ScanQuality = "acceptable"
	QualityPoor       ScanQuality = "poor"
)

// QualityBands maps standard deviation to ScanQuality categories. A field
// whose sample std deviation exceeds Excellent is excellent, and so on
// down; at or below Acceptable is poor. The boundaries are configuration,
// not constants: different scanner fleets separate populations differently.
type QualityBands struct {
	Excellent  float64 `json:"excellent"`
	Good       float64 `json:"good"`
	Acceptable float64 `json:"acceptable"`
}

// DefaultQualityBands matches the bands the system has historically used.
func DefaultQualityBands() QualityBands {
	return QualityBands{Excellent: 50, Good: 30, Acceptable: 15}
}

// Classify maps a standard deviation to its quality category.
func (b QualityBands) Classify(stdDev float64) ScanQuality {
	switch {
	case stdDev > b.Excellent:
		return QualityExcellent
	case stdDev > b.Good:
		return QualityGood
	case stdDev > b.Acceptable:
		return QualityAcceptable
	default:
		return QualityPoor
	}
}

// Jump is the gap between two consecutive values in a sorted sample
// sequence. Large jumps indicate separation between the marked and
// unmarked populations.
type Jump struct {
	Size  float64 // Gap magnitude (high - low)
	Index int     // Index of the lower value in the sorted sequence
	Low   float64 // Value below the gap
	High  float64 // Value above the gap
}

// Midpoint returns the center of the gap, the natural threshold candidate.
func (j Jump) Midpoint() float64 {
	return j.Low + j.Size/2
}

// FieldResult holds the intensity samples detected for one field on one
// sheet. It is created once by the Sampler, is immutable afterwards, and
// is discarded when the sheet finishes processing.
//
// An unreadable field (a scan box outside the image) still produces a
// FieldResult, with Unreadable set and Err recording the cause, so that
// downstream stages report it instead of silently dropping it.
type FieldResult struct {
	FieldID    string   `json:"field_id"`
	Label      string   `json:"label"`
	BlockName  string   `json:"block_name"`
	Samples    []Sample `json:"samples"`
	Unreadable bool     `json:"unreadable,omitempty"`
	Err        error    `json:"-"`
}

// Values returns the raw sample values in scan-box order.
func (r *FieldResult) Values() []float64 {
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Value
	}
	return out
}

// SortedValues returns the sample values sorted ascending.
func (r *FieldResult) SortedValues() []float64 {
	out := r.Values()
	sort.Float64s(out)
	return out
}

// StdDeviation returns the population standard deviation of the sample
// values, or 0 for fields with no samples.
func (r *FieldResult) StdDeviation() float64 {
	if len(r.Samples) == 0 {
		return 0
	}
	return stat.PopStdDev(r.Values(), nil)
}

// Quality classifies the field's scan quality against the given bands.
func (r *FieldResult) Quality(bands QualityBands) ScanQuality {
	return bands.Classify(r.StdDeviation())
}

// Jumps returns the consecutive-gap sequence over the sorted samples.
// Fields with fewer than two samples have no jumps.
func (r *FieldResult) Jumps() []Jump {
	sorted := r.SortedValues()
	if len(sorted) < 2 {
		return nil
	}
	jumps := make([]Jump, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		jumps = append(jumps, Jump{
			Size:  sorted[i] - sorted[i-1],
			Index: i - 1,
			Low:   sorted[i-1],
			High:  sorted[i],
		})
	}
	return jumps
}

// MaxJump returns the largest gap between consecutive sorted samples, or a
// zero Jump when the field has fewer than two samples.
func (r *FieldResult) MaxJump() Jump {
	var max Jump
	for _, j := range r.Jumps() {
		if j.Size > max.Size {
			max = j
		}
	}
	return max
}

func (r *FieldResult) String() string {
	return fmt.Sprintf("FieldResult(%s: %d samples, std=%.1f)", r.Label, len(r.Samples), r.StdDeviation())
}
