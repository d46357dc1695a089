package pipeline

import (
	"context"
	"sync"

	"github.com/sheetkit/omr-engine/internal/shift"
)

// SheetError pairs a failed sheet with its error.
type SheetError struct {
	SheetRef string `json:"sheet_ref"`
	Err      error  `json:"-"`
	Message  string `json:"error"`
}

// Stats aggregates counters over a batch run.
type Stats struct {
	SheetsProcessed int `json:"sheets_processed"`
	SheetsFailed    int `json:"sheets_failed"`
	FieldsTotal     int `json:"fields_total"`
	MultiMarked     int `json:"multi_marked"`
	Unreadable      int `json:"unreadable"`
	OutlierFields   int `json:"outlier_fields"`
	ShiftedSheets   int `json:"shifted_sheets"`

	// MeanConfidence averages field confidence over all processed sheets.
	// Zero when no fields were classified.
	MeanConfidence float64 `json:"mean_confidence"`
}

// BatchResult is the outcome of a batch run. Sheets holds one entry per
// input path in input order; failed sheets leave a nil entry and appear
// in Errors instead.
type BatchResult struct {
	Sheets []*SheetResult `json:"sheets"`
	Errors []SheetError   `json:"errors,omitempty"`
	Stats  Stats          `json:"stats"`
}

// ProcessBatch classifies the given sheets with up to MaxParallelWorkers
// concurrent workers. A failing sheet is recorded and skipped; the batch
// continues. Cancellation of ctx stops dispatching new sheets.
func (e *Engine) ProcessBatch(ctx context.Context, paths []string, shifts map[string][]shift.Record) *BatchResult {
	out := &BatchResult{Sheets: make([]*SheetResult, len(paths))}

	workers := e.Config.Processing.MaxParallelWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	jobs := make(chan int)
	var mu sync.Mutex
	var wg sync.WaitGroup

	var confidenceSum float64
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				path := paths[i]
				result, err := e.ProcessSheet(ctx, path, shifts[path])

				mu.Lock()
				if err != nil {
					out.Stats.SheetsFailed++
					out.Errors = append(out.Errors, SheetError{
						SheetRef: path,
						Err:      err,
						Message:  err.Error(),
					})
					mu.Unlock()
					continue
				}
				out.Sheets[i] = result
				out.Stats.SheetsProcessed++
				if result.ShiftApplied {
					out.Stats.ShiftedSheets++
				}
				for j := range result.Fields {
					f := &result.Fields[j]
					out.Stats.FieldsTotal++
					confidenceSum += f.Confidence
					if f.IsMultiMarked {
						out.Stats.MultiMarked++
					}
					if f.Unreadable {
						out.Stats.Unreadable++
					}
					if f.OutlierDeviation {
						out.Stats.OutlierFields++
					}
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for i := range paths {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if out.Stats.FieldsTotal > 0 {
		out.Stats.MeanConfidence = confidenceSum / float64(out.Stats.FieldsTotal)
	}

	e.Log.Info().
		Int("processed", out.Stats.SheetsProcessed).
		Int("failed", out.Stats.SheetsFailed).
		Int("fields", out.Stats.FieldsTotal).
		Float64("mean_confidence", out.Stats.MeanConfidence).
		Msg("batch complete")
	return out
}
