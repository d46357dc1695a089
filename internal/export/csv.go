// Package export writes classification results to CSV for downstream
// grading systems. Output is long-format: one row per field per sheet, so
// templates of any shape produce the same column set.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/sheetkit/omr-engine/internal/detection"
)

// header is the fixed column set, written once per file.
var header = []string{
	"sheet_ref",
	"run_id",
	"block",
	"field_id",
	"label",
	"answer",
	"confidence",
	"multi_marked",
	"unreadable",
	"outlier_deviation",
	"scan_quality",
	"threshold",
	"threshold_method",
	"shift_applied",
}

// Row is one field's classification as it appears in the CSV.
type Row struct {
	SheetRef         string
	RunID            string
	Block            string
	FieldID          string
	Label            string
	Answer           string
	Confidence       float64
	MultiMarked      bool
	Unreadable       bool
	OutlierDeviation bool
	ScanQuality      detection.ScanQuality
	Threshold        float64
	ThresholdMethod  detection.Method
	ShiftApplied     bool
}

// FromInterpretation builds a Row from a field interpretation plus the
// sheet-level metadata the interpretation does not carry.
func FromInterpretation(sheetRef, runID string, fi *detection.FieldInterpretation, shiftApplied bool) Row {
	return Row{
		SheetRef:         sheetRef,
		RunID:            runID,
		Block:            fi.BlockName,
		FieldID:          fi.FieldID,
		Label:            fi.Label,
		Answer:           fi.Answer,
		Confidence:       fi.Confidence,
		MultiMarked:      fi.IsMultiMarked,
		Unreadable:       fi.Unreadable,
		OutlierDeviation: fi.OutlierDeviation,
		ScanQuality:      fi.Quality,
		Threshold:        fi.Threshold.ThresholdValue,
		ThresholdMethod:  fi.Threshold.Method,
		ShiftApplied:     shiftApplied,
	}
}

// Writer streams result rows as CSV. It is not safe for concurrent use;
// the batch runner serializes writes through its result sink.
type Writer struct {
	cw          *csv.Writer
	wroteHeader bool
}

// NewWriter wraps w in a CSV result writer. Nothing is written until the
// first row.
func NewWriter(w io.Writer) *Writer {
	return &Writer{cw: csv.NewWriter(w)}
}

// WriteRow appends one field result, emitting the header first if needed.
func (w *Writer) WriteRow(r Row) error {
	if !w.wroteHeader {
		if err := w.cw.Write(header); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
		w.wroteHeader = true
	}

	record := []string{
		r.SheetRef,
		r.RunID,
		r.Block,
		r.FieldID,
		r.Label,
		r.Answer,
		strconv.FormatFloat(r.Confidence, 'f', 4, 64),
		strconv.FormatBool(r.MultiMarked),
		strconv.FormatBool(r.Unreadable),
		strconv.FormatBool(r.OutlierDeviation),
		string(r.ScanQuality),
		strconv.FormatFloat(r.Threshold, 'f', 2, 64),
		string(r.ThresholdMethod),
		strconv.FormatBool(r.ShiftApplied),
	}
	if err := w.cw.Write(record); err != nil {
		return fmt.Errorf("failed to write CSV row for %s/%s: %w", r.SheetRef, r.FieldID, err)
	}
	return nil
}

// WriteSheet appends one row per interpretation for a sheet.
func (w *Writer) WriteSheet(sheetRef, runID string, fields []detection.FieldInterpretation, shiftApplied bool) error {
	for i := range fields {
		if err := w.WriteRow(FromInterpretation(sheetRef, runID, &fields[i], shiftApplied)); err != nil {
			return err
		}
	}
	return nil
}

// Flush forces buffered rows to the underlying writer and reports any
// write error the csv package swallowed along the way.
func (w *Writer) Flush() error {
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV output: %w", err)
	}
	return nil
}
