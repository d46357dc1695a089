// Package ocr reads handwritten or printed text from template fields that
// are declared with the "ocr" detection type, using the Tesseract engine
// via gosseract/v2.
//
// # Prerequisites
//
// Tesseract must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// Additional languages use their Tesseract codes ("deu", "fra", "spa", ...)
// and need the matching language data package installed.
//
// # Field Reading
//
// A Reader crops the union of a field's scan boxes from the sheet image,
// applies any validated block shift, and runs Tesseract on the crop. The
// result carries the recognized text and the mean word confidence, so the
// caller can treat low-confidence reads the same way it treats ambiguous
// bubbles.
//
// OCR is CPU-intensive compared to intensity sampling. Sheets whose
// templates declare no OCR fields skip this package entirely.
package ocr
