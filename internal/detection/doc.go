// Package detection classifies answer-sheet marks as filled or empty using
// per-sheet statistical analysis instead of fixed thresholds.
//
// The central difficulty is that "filled" and "empty" are two populations
// of mean-intensity samples whose separation varies per sheet with scan
// quality, lighting, pen pressure, and printing tolerance, and no ground
// truth exists at runtime. The package separates those populations by gap
// ("jump") detection over each sheet's own samples.
//
// # Pipeline
//
// Processing one sheet is strictly sequential and two-phased:
//
//  1. Detection: a Sampler reduces every scan box to one mean-intensity
//     Sample, producing a FieldResult per field, collected into a
//     SheetAggregate. Nothing is classified yet.
//  2. Interpretation: once the aggregate holds every field, the sheet-wide
//     global threshold and outlier-deviation threshold are computed, then
//     each field is classified against a per-field threshold resolved by
//     the local/adaptive strategies, with confidence scoring.
//
// The two-phase split exists because local and adaptive strategies depend
// on sheet-wide aggregates that must be fully populated first.
//
// # Threshold Strategies
//
// Three strategies share the Strategy interface:
//
//   - GlobalStrategy: largest jump across all samples on the sheet
//   - LocalStrategy: largest jump within one field, falling back to the
//     global threshold when the field's jump is statistically weak
//   - AdaptiveStrategy: composes the two and prefers local unless the
//     results disagree enough to signal a disparity penalty
//
// # Ownership
//
// A SheetAggregate belongs to exactly one sheet's processing run and is
// never shared across sheets or goroutines. Finalize releases it; any
// access afterwards fails with ErrAggregateClosed.
package detection
