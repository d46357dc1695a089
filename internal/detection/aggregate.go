package detection

import (
	"errors"
	"fmt"
)

// ErrAggregateClosed is returned by every SheetAggregate operation invoked
// after Finalize. Hitting it is a programming error in the caller: the
// aggregate's lifetime is the sheet's processing run, nothing more.
var ErrAggregateClosed = errors.New("detection aggregate is closed")

// NotFoundError reports a lookup for a field the aggregate never saw.
type NotFoundError struct {
	FieldID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no detection result for field %q", e.FieldID)
}

// SheetAggregate collects the per-field detection results for exactly one
// sheet and answers the sheet-wide queries the threshold strategies need:
// the flattened set of all sample values (global threshold) and the set of
// per-field standard deviations (outlier-deviation threshold).
//
// A SheetAggregate is owned by a single sheet's processing run. It is not
// safe for concurrent use and must never be shared across sheets; batch
// parallelism happens one aggregate per worker.
type SheetAggregate struct {
	sheetRef string
	fields   map[string]*FieldResult
	order    []string
	closed   bool
}

// NewSheetAggregate initializes an empty aggregate for one sheet.
// sheetRef identifies the sheet in errors and logs, typically a file path.
func NewSheetAggregate(sheetRef string) *SheetAggregate {
	return &SheetAggregate{
		sheetRef: sheetRef,
		fields:   make(map[string]*FieldResult),
	}
}

// SheetRef returns the sheet identifier the aggregate was initialized with.
func (a *SheetAggregate) SheetRef() string { return a.sheetRef }

// SaveFieldResult stores the detection result for one field. Saving the
// same field twice replaces the earlier result but keeps its position.
func (a *SheetAggregate) SaveFieldResult(result *FieldResult) error {
	if a.closed {
		return ErrAggregateClosed
	}
	if result == nil || result.FieldID == "" {
		return errors.New("field result must have a field id")
	}
	if _, exists := a.fields[result.FieldID]; !exists {
		a.order = append(a.order, result.FieldID)
	}
	a.fields[result.FieldID] = result
	return nil
}

// FieldResult returns the stored result for a field.
func (a *SheetAggregate) FieldResult(fieldID string) (*FieldResult, error) {
	if a.closed {
		return nil, ErrAggregateClosed
	}
	result, ok := a.fields[fieldID]
	if !ok {
		return nil, &NotFoundError{FieldID: fieldID}
	}
	return result, nil
}

// FieldResults returns all stored results in insertion order.
func (a *SheetAggregate) FieldResults() ([]*FieldResult, error) {
	if a.closed {
		return nil, ErrAggregateClosed
	}
	out := make([]*FieldResult, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.fields[id])
	}
	return out, nil
}

// AllSampleValues returns every sample value across all readable fields,
// flattened in field insertion order. This is the population the global
// threshold strategy operates on.
func (a *SheetAggregate) AllSampleValues() ([]float64, error) {
	if a.closed {
		return nil, ErrAggregateClosed
	}
	var out []float64
	for _, id := range a.order {
		result := a.fields[id]
		if result.Unreadable {
			continue
		}
		for _, s := range result.Samples {
			out = append(out, s.Value)
		}
	}
	return out, nil
}

// AllFieldStdDeviations returns the standard deviation of every readable
// field's samples, used to compute the sheet-wide outlier-deviation
// threshold.
func (a *SheetAggregate) AllFieldStdDeviations() ([]float64, error) {
	if a.closed {
		return nil, ErrAggregateClosed
	}
	var out []float64
	for _, id := range a.order {
		result := a.fields[id]
		if result.Unreadable {
			continue
		}
		out = append(out, result.StdDeviation())
	}
	return out, nil
}

// FieldCount returns the number of stored field results.
func (a *SheetAggregate) FieldCount() int {
	return len(a.order)
}

// Finalize releases the aggregate's sheet-scoped state. All subsequent
// operations fail with ErrAggregateClosed.
func (a *SheetAggregate) Finalize() {
	a.closed = true
	a.fields = nil
	a.order = nil
}
