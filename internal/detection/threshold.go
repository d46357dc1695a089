package detection

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Method identifies which strategy produced a threshold.
type Method string

const (
	// MethodGlobal means the threshold came from the sheet-wide jump.
	MethodGlobal Method = "global"

	// MethodLocal means the threshold came from the field's own jump.
	MethodLocal Method = "local"

	// MethodAdaptive means the adaptive strategy overrode a local result
	// with the global one because the two disagreed.
	MethodAdaptive Method = "adaptive"

	// MethodFallback means the strategy could not trust its own jump and
	// returned a fallback value (the global threshold, or the configured
	// default when even that was unavailable).
	MethodFallback Method = "fallback"
)

// ThresholdConfig carries the tuning knobs for threshold calculation.
// See config.Defaults for the values the system ships with.
type ThresholdConfig struct {
	// MinJump is the minimum gap size a strategy will trust.
	MinJump float64

	// JumpDelta is the tie-break slack: gaps within JumpDelta of the
	// largest compete on their midpoint's distance to the sample median.
	JumpDelta float64

	// MinGapTwoBubbles is the minimum separation assumed meaningful for a
	// two-sample field.
	MinGapTwoBubbles float64

	// MinJumpSurplusForGlobalFallback: a local jump trailing the global
	// jump by more than this discards the local result.
	MinJumpSurplusForGlobalFallback float64

	// ConfidentJumpSurplusForDisparity: local and global thresholds
	// further apart than this trigger the adaptive disparity override.
	ConfidentJumpSurplusForDisparity float64

	// GlobalThresholdMargin is subtracted-side slack applied when
	// comparing samples against the global threshold in disparity checks.
	GlobalThresholdMargin float64

	// OutlierDeviationThreshold flags fields whose sample std deviation
	// exceeds the sheet-wide outlier threshold.
	OutlierDeviationThreshold float64

	// DefaultThreshold is the terminal fallback when no statistics exist.
	DefaultThreshold float64
}

// ThresholdResult is the outcome of one threshold calculation. Results are
// produced fresh per field (local/adaptive) or once per sheet (global) and
// never mutated after creation.
type ThresholdResult struct {
	// ThresholdValue separates marked (below) from unmarked (at/above).
	ThresholdValue float64 `json:"threshold_value"`

	// Confidence in [0,1] scores how cleanly the jump separated the
	// populations.
	Confidence float64 `json:"confidence"`

	// Method records which strategy variant produced the value.
	Method Method `json:"method"`

	// MaxJump is the largest gap found in the inspected sample set.
	MaxJump float64 `json:"max_jump"`

	// FallbackUsed is true when the strategy abandoned its own statistics.
	FallbackUsed bool `json:"fallback_used,omitempty"`

	// Disparity is set by the adaptive strategy when local and global
	// results disagreed; the confidence evaluator applies a penalty.
	Disparity bool `json:"disparity,omitempty"`
}

// Strategy computes a separating threshold from a sequence of intensity
// samples. Implementations are stateless with respect to sheets; anything
// sheet-scoped (like a global fallback) is injected at construction.
type Strategy interface {
	CalculateThreshold(values []float64, cfg ThresholdConfig) ThresholdResult
}

// findMaxJump locates the largest gap between consecutive sorted values.
// Gaps within jumpDelta of the largest are tie-broken toward the gap whose
// midpoint lies closest to the sample median, which reduces bias toward
// extreme-value artifacts at the ends of the range.
func findMaxJump(sorted []float64, jumpDelta float64) Jump {
	if len(sorted) < 2 {
		return Jump{}
	}

	var max Jump
	for i := 1; i < len(sorted); i++ {
		size := sorted[i] - sorted[i-1]
		if size > max.Size {
			max = Jump{Size: size, Index: i - 1, Low: sorted[i-1], High: sorted[i]}
		}
	}

	if jumpDelta <= 0 {
		return max
	}

	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	best := max
	bestDist := math.Abs(max.Midpoint() - median)
	for i := 1; i < len(sorted); i++ {
		size := sorted[i] - sorted[i-1]
		if size < max.Size-jumpDelta {
			continue
		}
		j := Jump{Size: size, Index: i - 1, Low: sorted[i-1], High: sorted[i]}
		if dist := math.Abs(j.Midpoint() - median); dist < bestDist {
			best = j
			bestDist = dist
		}
	}
	return best
}

// jumpConfidence scores a jump against the range it was found in.
func jumpConfidence(jump, valueRange float64) float64 {
	if valueRange <= 0 {
		return 0
	}
	return clamp01(jump / valueRange)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// GlobalStrategy computes the sheet-wide threshold from the flattened set
// of all sample values (or, for the outlier-deviation variant, from the
// set of all per-field standard deviations).
type GlobalStrategy struct{}

// CalculateThreshold sorts the values, finds the largest gap, and returns
// its midpoint when the gap clears MinJump. Otherwise it falls back to
// DefaultThreshold with low confidence.
func (GlobalStrategy) CalculateThreshold(values []float64, cfg ThresholdConfig) ThresholdResult {
	if len(values) < 2 {
		return ThresholdResult{
			ThresholdValue: cfg.DefaultThreshold,
			Confidence:     0,
			Method:         MethodFallback,
			FallbackUsed:   true,
		}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	max := findMaxJump(sorted, cfg.JumpDelta)
	valueRange := sorted[len(sorted)-1] - sorted[0]

	if max.Size <= cfg.MinJump {
		// No trustworthy separation on this sheet. A fully blank (or fully
		// xeroxed) page lands here.
		return ThresholdResult{
			ThresholdValue: cfg.DefaultThreshold,
			Confidence:     clamp01(max.Size / (cfg.MinJump * 3)),
			Method:         MethodFallback,
			MaxJump:        max.Size,
			FallbackUsed:   true,
		}
	}

	return ThresholdResult{
		ThresholdValue: max.Midpoint(),
		Confidence:     jumpConfidence(max.Size, valueRange),
		Method:         MethodGlobal,
		MaxJump:        max.Size,
	}
}

// LocalStrategy computes a threshold from one field's samples only, with a
// sheet-level fallback for fields whose own statistics are too weak. Small
// fields (a two-option field has exactly two samples) frequently lack a
// reliable local gap, which is why the fallback exists.
type LocalStrategy struct {
	// GlobalFallback is the sheet's global threshold result. Nil is
	// tolerated and degrades the fallback to DefaultThreshold.
	GlobalFallback *ThresholdResult
}

// CalculateThreshold resolves the field threshold, preferring the field's
// own largest jump and falling back to the global threshold when the local
// jump is below MinJump or trails the global jump by more than
// MinJumpSurplusForGlobalFallback.
func (s LocalStrategy) CalculateThreshold(values []float64, cfg ThresholdConfig) ThresholdResult {
	fallbackValue := cfg.DefaultThreshold
	globalJump := 0.0
	if s.GlobalFallback != nil {
		fallbackValue = s.GlobalFallback.ThresholdValue
		globalJump = s.GlobalFallback.MaxJump
	}

	if len(values) < 2 {
		return ThresholdResult{
			ThresholdValue: fallbackValue,
			Confidence:     0,
			Method:         MethodFallback,
			FallbackUsed:   true,
		}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	// Two-sample fields get a dedicated gate: either the gap is physically
	// plausible and the midpoint separates the pair, or nothing does.
	if len(sorted) == 2 {
		gap := sorted[1] - sorted[0]
		if gap < cfg.MinGapTwoBubbles {
			return ThresholdResult{
				ThresholdValue: fallbackValue,
				Confidence:     0.3,
				Method:         MethodFallback,
				MaxJump:        gap,
				FallbackUsed:   true,
			}
		}
		return ThresholdResult{
			ThresholdValue: (sorted[0] + sorted[1]) / 2,
			Confidence:     0.7,
			Method:         MethodLocal,
			MaxJump:        gap,
		}
	}

	max := findMaxJump(sorted, cfg.JumpDelta)
	valueRange := sorted[len(sorted)-1] - sorted[0]

	weakJump := max.Size < cfg.MinJump
	trailsGlobal := globalJump-max.Size > cfg.MinJumpSurplusForGlobalFallback
	if weakJump || trailsGlobal {
		return ThresholdResult{
			ThresholdValue: fallbackValue,
			Confidence:     0.4,
			Method:         MethodFallback,
			MaxJump:        max.Size,
			FallbackUsed:   true,
		}
	}

	return ThresholdResult{
		ThresholdValue: max.Midpoint(),
		Confidence:     jumpConfidence(max.Size, valueRange),
		Method:         MethodLocal,
		MaxJump:        max.Size,
	}
}

// AdaptiveStrategy composes the local and global strategies explicitly:
// it runs the local strategy and keeps its result unless local and global
// disagree by more than ConfidentJumpSurplusForDisparity, in which case
// the global result wins and the disparity is flagged for the confidence
// evaluator to penalize.
type AdaptiveStrategy struct {
	// GlobalResult is the sheet-wide threshold computed once per sheet.
	GlobalResult ThresholdResult
}

// CalculateThreshold resolves the field threshold adaptively.
func (s AdaptiveStrategy) CalculateThreshold(values []float64, cfg ThresholdConfig) ThresholdResult {
	local := LocalStrategy{GlobalFallback: &s.GlobalResult}.CalculateThreshold(values, cfg)

	if local.FallbackUsed {
		return local
	}

	if math.Abs(local.ThresholdValue-s.GlobalResult.ThresholdValue) > cfg.ConfidentJumpSurplusForDisparity {
		out := s.GlobalResult
		out.Method = MethodAdaptive
		out.Disparity = true
		return out
	}
	return local
}
