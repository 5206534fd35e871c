// Package ocr defines the text recognition contract used by the bill
// pipeline and its Tesseract-backed default implementation.
package ocr

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Input encapsulates a single normalized page image submitted for
// recognition.
type Input struct {
	// Image is the encoded image payload, typically the PNG produced by
	// page normalization.
	Image []byte
	// PageIndex links the input back to the 1-based bill page it came
	// from.
	PageIndex int
	// DPI carries the effective dots-per-inch hint. Zero means unknown.
	DPI int
	// Languages lists trained-data hints such as "eng". Empty means the
	// engine default.
	Languages []string
}

// Result is the recognized text of one page.
type Result struct {
	PageIndex int
	Text      string
}

// Engine is the recognition provider contract: one page image in, one
// text result out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// CleanText normalizes raw engine output for downstream extraction:
// Unicode NFC, collapsed intra-line whitespace, trimmed lines and no
// runs of blank lines.
func CleanText(raw string) string {
	normalized := norm.NFC.String(raw)

	lines := strings.Split(normalized, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, unicode.IsSpace), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
