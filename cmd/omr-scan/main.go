// Command omr-scan classifies scanned answer sheets against a template.
//
// It loads a sheet template and optional tuning configuration, runs the
// detection pipeline over every input image, and writes one CSV row per
// field. Review overlays and OCR text extraction are enabled by flags.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/sheetkit/omr-engine/internal/config"
	"github.com/sheetkit/omr-engine/internal/export"
	"github.com/sheetkit/omr-engine/internal/ocr"
	"github.com/sheetkit/omr-engine/internal/pipeline"
	"github.com/sheetkit/omr-engine/internal/render"
	"github.com/sheetkit/omr-engine/internal/shift"
	"github.com/sheetkit/omr-engine/internal/template"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	templatePath := flag.String("template", "", "path to the sheet template JSON (required)")
	configPath := flag.String("config", "", "path to the tuning configuration JSON")
	outPath := flag.String("out", "results.csv", "path of the CSV results file")
	overlayDir := flag.String("overlay-dir", "", "directory for review overlay images (enables overlays)")
	shiftsPath := flag.String("shifts", "", "path to a JSON file of per-sheet block shifts")
	workers := flag.Int("workers", 0, "override max parallel workers (0 uses the configured value)")
	ocrLang := flag.String("ocr-lang", "", "Tesseract language for OCR fields (enables OCR, e.g. \"eng\")")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("omr-scan %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	}

	log := newLogger(*logLevel)

	if *templatePath == "" {
		log.Error().Msg("-template is required")
		flag.Usage()
		os.Exit(2)
	}
	if flag.NArg() == 0 {
		log.Error().Msg("no sheet images given")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(log, *templatePath, *configPath, *outPath, *overlayDir, *shiftsPath, *ocrLang, *workers, flag.Args()); err != nil {
		log.Error().Err(err).Msg("scan failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "omr-scan - classify scanned answer sheets against a template")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Usage: omr-scan -template template.json [options] sheet.png [sheet.png ...]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Options:")
	flag.PrintDefaults()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}

func run(log zerolog.Logger, templatePath, configPath, outPath, overlayDir, shiftsPath, ocrLang string, workers int, sheets []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tmpl, err := template.Load(templatePath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Processing.MaxParallelWorkers = workers
	}

	shifts, err := loadShifts(shiftsPath)
	if err != nil {
		return err
	}
	if len(shifts) > 0 && !cfg.ShiftDetection.Enabled {
		log.Warn().Msg("shifts file given but shift detection is disabled in the configuration")
	}

	engine := &pipeline.Engine{
		Config:   cfg,
		Template: tmpl,
		Log:      log,
	}
	if ocrLang != "" {
		engine.OCR = &ocr.Reader{Language: ocrLang}
	}

	if overlayDir != "" {
		if err := os.MkdirAll(overlayDir, 0o755); err != nil {
			return fmt.Errorf("failed to create overlay directory: %w", err)
		}
	}

	batch := engine.ProcessBatch(ctx, sheets, shifts)
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := writeResults(outPath, batch); err != nil {
		return err
	}
	log.Info().Str("out", outPath).Msg("results written")

	if overlayDir != "" || cfg.Outputs.SaveOverlays {
		if overlayDir == "" {
			overlayDir = "."
		}
		if err := writeOverlays(log, overlayDir, tmpl, batch); err != nil {
			return err
		}
	}

	if batch.Stats.SheetsFailed > 0 {
		return fmt.Errorf("%d of %d sheets failed", batch.Stats.SheetsFailed, len(sheets))
	}
	return nil
}

// loadShifts reads a JSON object mapping sheet paths to block shift lists.
func loadShifts(path string) (map[string][]shift.Record, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shifts file: %w", err)
	}
	shifts := make(map[string][]shift.Record)
	if err := json.Unmarshal(data, &shifts); err != nil {
		return nil, fmt.Errorf("failed to parse shifts file %s: %w", path, err)
	}
	return shifts, nil
}

func writeResults(path string, batch *pipeline.BatchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	defer f.Close()

	w := export.NewWriter(f)
	for _, sheet := range batch.Sheets {
		if sheet == nil {
			continue
		}
		if err := w.WriteSheet(sheet.SheetRef, sheet.RunID, sheet.Fields, sheet.ShiftApplied); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func writeOverlays(log zerolog.Logger, dir string, tmpl *template.Template, batch *pipeline.BatchResult) error {
	for _, sheet := range batch.Sheets {
		if sheet == nil || sheet.Image == nil {
			continue
		}
		base := strings.TrimSuffix(filepath.Base(sheet.SheetRef), filepath.Ext(sheet.SheetRef))
		path := filepath.Join(dir, base+"-overlay.png")

		img := render.Overlay(sheet.Image, tmpl, sheet.Fields, sheet.Offsets)
		if err := render.Save(img, path); err != nil {
			return err
		}
		log.Debug().Str("overlay", path).Msg("overlay written")
	}
	return nil
}
