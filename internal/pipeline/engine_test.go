package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetkit/omr-engine/internal/config"
	"github.com/sheetkit/omr-engine/internal/detection"
	"github.com/sheetkit/omr-engine/internal/shift"
	"github.com/sheetkit/omr-engine/internal/template"
)

// testTemplate lays out two four-option questions in one block.
func testTemplate() *template.Template {
	boxes := func(y int) []template.ScanBox {
		return []template.ScanBox{
			{Value: "A", X: 20, Y: y, Width: 20, Height: 20},
			{Value: "B", X: 60, Y: y, Width: 20, Height: 20},
			{Value: "C", X: 100, Y: y, Width: 20, Height: 20},
			{Value: "D", X: 140, Y: y, Width: 20, Height: 20},
		}
	}
	return &template.Template{
		Page: template.Page{Width: 300, Height: 200},
		Blocks: []template.Block{{
			Name: "answers",
			Fields: []template.Field{
				{ID: "q1", Label: "Question 1", Boxes: boxes(30)},
				{ID: "q2", Label: "Question 2", Boxes: boxes(80)},
			},
		}},
	}
}

type mark struct {
	x, y, w, h int
}

// writeSheet renders a white page with the given regions darkened and
// saves it as a PNG under dir.
func writeSheet(t *testing.T, dir, name string, marks []mark) string {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, 300, 200))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for _, m := range marks {
		for y := m.y; y < m.y+m.h; y++ {
			for x := m.x; x < m.x+m.w; x++ {
				img.SetGray(x, y, color.Gray{Y: 60})
			}
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func newTestEngine() *Engine {
	return &Engine{
		Config:   config.Defaults(),
		Template: testTemplate(),
		Log:      zerolog.Nop(),
	}
}

func TestProcessSheetClassifiesAnswers(t *testing.T) {
	dir := t.TempDir()
	// q1 marked B, q2 marked D.
	path := writeSheet(t, dir, "sheet.png", []mark{
		{60, 30, 20, 20},
		{140, 80, 20, 20},
	})

	e := newTestEngine()
	result, err := e.ProcessSheet(context.Background(), path, nil)
	require.NoError(t, err)

	assert.Equal(t, path, result.SheetRef)
	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Fields, 2)

	q1, q2 := result.Fields[0], result.Fields[1]
	assert.Equal(t, "q1", q1.FieldID)
	assert.Equal(t, "B", q1.Answer)
	assert.Equal(t, "D", q2.Answer)
	assert.False(t, q1.IsMultiMarked)
	assert.Greater(t, q1.Confidence, 0.0)

	// The global threshold must separate the two populations.
	assert.Greater(t, result.GlobalThreshold.ThresholdValue, 60.0)
	assert.Less(t, result.GlobalThreshold.ThresholdValue, 255.0)
	assert.False(t, result.ShiftApplied)
	assert.NotNil(t, result.Image)
}

func TestProcessSheetEmptyAndMultiMarked(t *testing.T) {
	dir := t.TempDir()
	// q1 unanswered, q2 marked both A and C.
	path := writeSheet(t, dir, "sheet.png", []mark{
		{20, 80, 20, 20},
		{100, 80, 20, 20},
	})

	e := newTestEngine()
	result, err := e.ProcessSheet(context.Background(), path, nil)
	require.NoError(t, err)
	require.Len(t, result.Fields, 2)

	assert.Equal(t, "", result.Fields[0].Answer)
	assert.False(t, result.Fields[0].IsMultiMarked)

	assert.Equal(t, "", result.Fields[1].Answer)
	assert.True(t, result.Fields[1].IsMultiMarked)
}

func TestProcessSheetMissingFile(t *testing.T) {
	e := newTestEngine()
	_, err := e.ProcessSheet(context.Background(), filepath.Join(t.TempDir(), "absent.png"), nil)
	assert.Error(t, err)
}

func TestProcessSheetCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine()
	_, err := e.ProcessSheet(ctx, "whatever.png", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessSheetAppliesValidatedShift(t *testing.T) {
	dir := t.TempDir()
	// Marks drawn 25px below the template positions: q1 B, q2 D. The
	// vertical offset keeps the marks clear of every unshifted scan box,
	// so the baseline run reads a blank sheet.
	path := writeSheet(t, dir, "sheet.png", []mark{
		{60, 55, 20, 20},
		{140, 105, 20, 20},
	})

	e := newTestEngine()
	e.Config.ShiftDetection.Enabled = true

	records := []shift.Record{{BlockName: "answers", DX: 0, DY: 25}}
	result, err := e.ProcessSheet(context.Background(), path, records)
	require.NoError(t, err)

	assert.True(t, result.ShiftApplied)
	require.Len(t, result.ShiftValidation, 1)
	assert.True(t, result.ShiftValidation[0].Accepted)

	require.Len(t, result.Fields, 2)
	assert.Equal(t, "B", result.Fields[0].Answer)
	assert.Equal(t, "D", result.Fields[1].Answer)

	// The unshifted baseline sees blank fields, so the dual run diverges
	// on both fields and the mismatch penalty kicks in: 2 bubble diffs
	// over 8 bubbles is severity 0.25, reduction 0.1 + 0.25*0.4 = 0.2.
	require.NotNil(t, result.ShiftComparison)
	assert.Equal(t, 2, result.ShiftComparison.BubbleDiffs)
	assert.Equal(t, 2, result.ShiftComparison.FieldDiffs)
	assert.InDelta(t, 0.2, result.ConfidenceReduction, 1e-9)
}

func TestProcessSheetRejectsOversizedShift(t *testing.T) {
	dir := t.TempDir()
	path := writeSheet(t, dir, "sheet.png", []mark{{60, 30, 20, 20}})

	e := newTestEngine()
	e.Config.ShiftDetection.Enabled = true

	// Magnitude 60.8 exceeds the default 50px margin.
	records := []shift.Record{{BlockName: "answers", DX: 43, DY: 43}}
	result, err := e.ProcessSheet(context.Background(), path, records)
	require.NoError(t, err)

	assert.False(t, result.ShiftApplied)
	require.Len(t, result.ShiftValidation, 1)
	assert.False(t, result.ShiftValidation[0].Accepted)
	assert.Nil(t, result.ShiftComparison)

	// Detection ran at the template positions.
	assert.Equal(t, "B", result.Fields[0].Answer)
}

func TestProcessSheetIgnoresShiftsWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	path := writeSheet(t, dir, "sheet.png", []mark{{60, 30, 20, 20}})

	e := newTestEngine()
	records := []shift.Record{{BlockName: "answers", DX: 10, DY: 0}}
	result, err := e.ProcessSheet(context.Background(), path, records)
	require.NoError(t, err)

	assert.False(t, result.ShiftApplied)
	assert.Empty(t, result.ShiftValidation)
}

func TestProcessSheetAggregatePerRun(t *testing.T) {
	dir := t.TempDir()
	path := writeSheet(t, dir, "sheet.png", []mark{{60, 30, 20, 20}})

	// Each run owns a fresh aggregate that must answer every sheet-wide
	// query (flattened samples, per-field deviations, field results)
	// before it is released, so repeated runs on one engine all succeed.
	e := newTestEngine()
	for i := 0; i < 3; i++ {
		result, err := e.ProcessSheet(context.Background(), path, nil)
		require.NoError(t, err)
		require.Len(t, result.Fields, 2)
		assert.Equal(t, "B", result.Fields[0].Answer)
		assert.NotZero(t, result.GlobalThreshold.ThresholdValue)
	}
}

// stubTextReader returns canned text for every OCR field.
type stubTextReader struct {
	texts []FieldText
	err   error
}

func (s *stubTextReader) ReadSheet(img image.Image, tmpl *template.Template, offsets map[string]detection.Offset) ([]FieldText, error) {
	return s.texts, s.err
}

func TestProcessSheetCollectsOCRFields(t *testing.T) {
	dir := t.TempDir()
	path := writeSheet(t, dir, "sheet.png", []mark{{60, 30, 20, 20}})

	e := newTestEngine()
	e.OCR = &stubTextReader{texts: []FieldText{
		{FieldID: "roll", Text: "1042", Confidence: 0.9},
	}}

	result, err := e.ProcessSheet(context.Background(), path, nil)
	require.NoError(t, err)

	require.Len(t, result.OCRFields, 1)
	assert.Equal(t, "1042", result.OCRFields[0].Text)

	// Bubble classification is unaffected by the text pass.
	assert.Equal(t, "B", result.Fields[0].Answer)
}

func TestFieldEmptyValueOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeSheet(t, dir, "sheet.png", nil)

	e := newTestEngine()
	e.Config.Outputs.EmptyValue = "blank"
	e.Template.Blocks[0].Fields[1].EmptyValue = "skip"

	result, err := e.ProcessSheet(context.Background(), path, nil)
	require.NoError(t, err)
	require.Len(t, result.Fields, 2)

	assert.Equal(t, "blank", result.Fields[0].Answer)
	assert.Equal(t, "skip", result.Fields[1].Answer)
}
