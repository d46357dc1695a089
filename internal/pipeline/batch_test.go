package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessBatchPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	// q1 answered A on the first sheet, C on the second.
	first := writeSheet(t, dir, "first.png", []mark{{20, 30, 20, 20}})
	second := writeSheet(t, dir, "second.png", []mark{{100, 30, 20, 20}})

	e := newTestEngine()
	e.Config.Processing.MaxParallelWorkers = 4

	result := e.ProcessBatch(context.Background(), []string{first, second}, nil)

	require.Len(t, result.Sheets, 2)
	require.NotNil(t, result.Sheets[0])
	require.NotNil(t, result.Sheets[1])
	assert.Equal(t, first, result.Sheets[0].SheetRef)
	assert.Equal(t, second, result.Sheets[1].SheetRef)
	assert.Equal(t, "A", result.Sheets[0].Fields[0].Answer)
	assert.Equal(t, "C", result.Sheets[1].Fields[0].Answer)

	assert.Equal(t, 2, result.Stats.SheetsProcessed)
	assert.Equal(t, 0, result.Stats.SheetsFailed)
	assert.Equal(t, 4, result.Stats.FieldsTotal)
	assert.Empty(t, result.Errors)
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	good := writeSheet(t, dir, "good.png", []mark{{60, 30, 20, 20}})
	missing := filepath.Join(dir, "missing.png")

	e := newTestEngine()
	result := e.ProcessBatch(context.Background(), []string{good, missing}, nil)

	require.Len(t, result.Sheets, 2)
	assert.NotNil(t, result.Sheets[0])
	assert.Nil(t, result.Sheets[1])

	assert.Equal(t, 1, result.Stats.SheetsProcessed)
	assert.Equal(t, 1, result.Stats.SheetsFailed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, missing, result.Errors[0].SheetRef)
	assert.NotEmpty(t, result.Errors[0].Message)
}

func TestProcessBatchStats(t *testing.T) {
	dir := t.TempDir()
	// q1 answered, q2 marked twice.
	path := writeSheet(t, dir, "sheet.png", []mark{
		{60, 30, 20, 20},
		{20, 80, 20, 20},
		{100, 80, 20, 20},
	})

	e := newTestEngine()
	result := e.ProcessBatch(context.Background(), []string{path}, nil)

	assert.Equal(t, 1, result.Stats.SheetsProcessed)
	assert.Equal(t, 2, result.Stats.FieldsTotal)
	assert.Equal(t, 1, result.Stats.MultiMarked)
	assert.Equal(t, 0, result.Stats.Unreadable)
	assert.Greater(t, result.Stats.MeanConfidence, 0.0)
}

func TestProcessBatchEmptyInput(t *testing.T) {
	e := newTestEngine()
	result := e.ProcessBatch(context.Background(), nil, nil)

	assert.Empty(t, result.Sheets)
	assert.Equal(t, 0, result.Stats.SheetsProcessed)
	assert.Equal(t, 0.0, result.Stats.MeanConfidence)
}

func TestProcessBatchCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	path := writeSheet(t, dir, "sheet.png", nil)

	e := newTestEngine()
	result := e.ProcessBatch(ctx, []string{path, path, path}, nil)

	// Nothing is dispatched after cancellation; sheets either failed with
	// the context error or were never started.
	assert.Equal(t, 0, result.Stats.SheetsProcessed)
}
