// Package config holds the tuning configuration for the detection engine.
//
// Configuration is a JSON file overlaid onto compiled defaults: any key
// absent from the file keeps its default, so deployments only write the
// knobs they actually tune. The thresholding key names are upper-case by
// convention carried over from the system this engine replaces, and are
// kept so existing tuning files remain valid.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sheetkit/omr-engine/internal/detection"
)

// Thresholding tunes the jump-detection threshold strategies.
type Thresholding struct {
	MinJump                          float64 `json:"MIN_JUMP"`
	JumpDelta                        float64 `json:"JUMP_DELTA"`
	MinGapTwoBubbles                 float64 `json:"MIN_GAP_TWO_BUBBLES"`
	MinJumpSurplusForGlobalFallback  float64 `json:"MIN_JUMP_SURPLUS_FOR_GLOBAL_FALLBACK"`
	ConfidentJumpSurplusForDisparity float64 `json:"CONFIDENT_JUMP_SURPLUS_FOR_DISPARITY"`
	GlobalThresholdMargin            float64 `json:"GLOBAL_THRESHOLD_MARGIN"`

	// GlobalPageThreshold is the terminal fallback threshold when a sheet
	// yields no usable jump statistics at all.
	GlobalPageThreshold float64 `json:"GLOBAL_PAGE_THRESHOLD"`

	// MinJumpStd and GlobalPageThresholdStd are the MIN_JUMP and default
	// for the outlier-deviation variant, which runs the global strategy
	// over per-field standard deviations instead of sample values.
	MinJumpStd             float64 `json:"MIN_JUMP_STD"`
	GlobalPageThresholdStd float64 `json:"GLOBAL_PAGE_THRESHOLD_STD"`
}

// ShiftDetection tunes validation of external positional corrections.
type ShiftDetection struct {
	Enabled                 bool               `json:"enabled"`
	GlobalMaxShiftPixels    float64            `json:"global_max_shift_pixels"`
	PerBlockMaxShiftPixels  map[string]float64 `json:"per_block_max_shift_pixels,omitempty"`
	ConfidenceReductionMin  float64            `json:"confidence_reduction_min"`
	ConfidenceReductionMax  float64            `json:"confidence_reduction_max"`
	BubbleMismatchThreshold int                `json:"bubble_mismatch_threshold"`
	FieldMismatchThreshold  int                `json:"field_mismatch_threshold"`
}

// Processing tunes the batch runner.
type Processing struct {
	// MaxParallelWorkers is the worker count for batch processing.
	// 1 means strictly sequential.
	MaxParallelWorkers int `json:"max_parallel_workers"`
}

// Outputs tunes what the engine emits alongside classifications.
type Outputs struct {
	// EmptyValue is the marker reported for unanswered or ambiguous
	// fields, unless the field declares its own.
	EmptyValue string `json:"empty_value"`

	// SaveOverlays enables writing review overlay images per sheet.
	SaveOverlays bool `json:"save_overlays"`
}

// Config is the root configuration.
type Config struct {
	Thresholding   Thresholding           `json:"thresholding"`
	ShiftDetection ShiftDetection         `json:"shift_detection"`
	Processing     Processing             `json:"processing"`
	Outputs        Outputs                `json:"outputs"`
	QualityBands   detection.QualityBands `json:"quality_bands"`
}

// Defaults returns the configuration the engine ships with.
func Defaults() Config {
	return Config{
		Thresholding: Thresholding{
			MinJump:                          25,
			JumpDelta:                        30,
			MinGapTwoBubbles:                 30,
			MinJumpSurplusForGlobalFallback:  5,
			ConfidentJumpSurplusForDisparity: 25,
			GlobalThresholdMargin:            10,
			GlobalPageThreshold:              200,
			MinJumpStd:                       15,
			GlobalPageThresholdStd:           10,
		},
		ShiftDetection: ShiftDetection{
			Enabled:                 false,
			GlobalMaxShiftPixels:    50,
			ConfidenceReductionMin:  0.1,
			ConfidenceReductionMax:  0.5,
			BubbleMismatchThreshold: 3,
			FieldMismatchThreshold:  1,
		},
		Processing:   Processing{MaxParallelWorkers: 1},
		Outputs:      Outputs{EmptyValue: ""},
		QualityBands: detection.DefaultQualityBands(),
	}
}

// Load reads a JSON config file and overlays it onto the defaults.
// A missing path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("config file not found: %s", path)
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	t := c.Thresholding
	if t.MinJump <= 0 {
		return errors.New("thresholding.MIN_JUMP must be positive")
	}
	if t.GlobalPageThreshold <= 0 || t.GlobalPageThreshold > 255 {
		return errors.New("thresholding.GLOBAL_PAGE_THRESHOLD must be in (0,255]")
	}

	s := c.ShiftDetection
	if s.GlobalMaxShiftPixels < 0 {
		return errors.New("shift_detection.global_max_shift_pixels must be non-negative")
	}
	if s.ConfidenceReductionMin < 0 || s.ConfidenceReductionMax > 1 ||
		s.ConfidenceReductionMin > s.ConfidenceReductionMax {
		return errors.New("shift_detection confidence reductions must satisfy 0 <= min <= max <= 1")
	}

	if c.Processing.MaxParallelWorkers < 1 {
		return errors.New("processing.max_parallel_workers must be at least 1")
	}

	b := c.QualityBands
	if b.Excellent < b.Good || b.Good < b.Acceptable || b.Acceptable < 0 {
		return errors.New("quality_bands must be ordered excellent >= good >= acceptable >= 0")
	}
	return nil
}

// ThresholdConfig builds the detection-level threshold configuration,
// with the sheet's computed outlier-deviation threshold filled in.
func (c *Config) ThresholdConfig(outlierDeviationThreshold float64) detection.ThresholdConfig {
	t := c.Thresholding
	return detection.ThresholdConfig{
		MinJump:                          t.MinJump,
		JumpDelta:                        t.JumpDelta,
		MinGapTwoBubbles:                 t.MinGapTwoBubbles,
		MinJumpSurplusForGlobalFallback:  t.MinJumpSurplusForGlobalFallback,
		ConfidentJumpSurplusForDisparity: t.ConfidentJumpSurplusForDisparity,
		GlobalThresholdMargin:            t.GlobalThresholdMargin,
		OutlierDeviationThreshold:        outlierDeviationThreshold,
		DefaultThreshold:                 t.GlobalPageThreshold,
	}
}

// OutlierConfig builds the threshold configuration for the global strategy
// run over per-field standard deviations.
func (c *Config) OutlierConfig() detection.ThresholdConfig {
	t := c.Thresholding
	return detection.ThresholdConfig{
		MinJump:          t.MinJumpStd,
		JumpDelta:        t.JumpDelta,
		DefaultThreshold: t.GlobalPageThresholdStd,
	}
}
