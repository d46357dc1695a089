// Package pipeline orchestrates classification of scanned answer sheets:
// load and grayscale the image, sample every bubble field, derive the
// sheet's global and outlier thresholds, resolve each field adaptively,
// and interpret the results into answers with confidence scores.
//
// When shift detection is enabled and positional corrections are supplied
// for a sheet, the pipeline runs detection twice, once at the template
// positions and once at the shifted positions, compares the outcomes, and
// reduces confidence on fields the shift changed when the divergence
// exceeds the configured tolerance.
//
// The batch runner fans sheets out over a bounded worker pool and
// aggregates per-run statistics; one sheet failing never aborts the batch.
package pipeline
