package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/billscan/internal/billing"
	"github.com/MeKo-Tech/billscan/internal/document"
	"github.com/MeKo-Tech/billscan/internal/extract"
	"github.com/MeKo-Tech/billscan/internal/fraud"
	"github.com/MeKo-Tech/billscan/internal/ocr"
	"github.com/MeKo-Tech/billscan/internal/preprocess"
	"github.com/MeKo-Tech/billscan/internal/rasterize"
	"github.com/MeKo-Tech/billscan/internal/timing"
)

// PageError records a page that failed one of the processing stages.
// Failed pages do not abort the document.
type PageError struct {
	Page  int    `json:"page"`
	Stage string `json:"stage"`
	Err   error  `json:"-"`
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d failed in %s: %v", e.Page, e.Stage, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Result is the outcome of processing one bill document.
type Result struct {
	Extraction *billing.ExtractionResult
	Usage      extract.Usage
	PageCount  int
	PageErrors []*PageError
	Duration   time.Duration
}

// Process runs the full flow over raw document bytes: classification,
// rasterization, then per-page normalization, fraud heuristics, OCR and
// model extraction, followed by reconciliation of all pages. Individual
// page failures are recorded and skipped.
func (p *Pipeline) Process(ctx context.Context, data []byte) (*Result, error) {
	return p.ProcessWithProgress(ctx, data, p.cfg.Progress)
}

// ProcessWithProgress behaves like Process with a per-call progress
// callback instead of the configured one.
func (p *Pipeline) ProcessWithProgress(ctx context.Context, data []byte, progress ProgressCallback) (*Result, error) {
	start := time.Now()

	doc, err := document.New(data)
	if err != nil {
		return nil, err
	}

	pages, err := rasterize.Rasterize(doc, p.cfg.DPI)
	if err != nil {
		return nil, err
	}

	slog.Info("processing bill document",
		"kind", doc.Kind.String(),
		"pages", len(pages),
		"dpi", p.cfg.DPI)

	result := p.processPages(ctx, pages, progress)
	result.Duration = time.Since(start)

	slog.Info("bill document processed",
		"pages", result.PageCount,
		"failed_pages", len(result.PageErrors),
		"items", result.Extraction.TotalItemCount,
		"grand_total", billing.GrandTotal(result.Extraction.PagewiseLineItems),
		"total_tokens", result.Usage.TotalTokens,
		"duration", result.Duration)
	return result, nil
}

// processPage runs the per-page stages and returns the extracted page
// result.
func (p *Pipeline) processPage(ctx context.Context, page rasterize.PageImage) (billing.PageResult, extract.Usage, *PageError) {
	var usage extract.Usage
	clock := timing.NewStageClock()
	defer func() {
		slog.Debug("page stage timings", append([]any{"page", page.Index}, clock.Attrs()...)...)
	}()

	stop := clock.Track("preprocess")
	norm, err := preprocess.Normalize(page.Img)
	stop()
	if err != nil {
		return billing.PageResult{}, usage, &PageError{Page: page.Index, Stage: "preprocess", Err: err}
	}

	// Heuristics run on the original scan, normalization would wash out
	// the color signal.
	var report *fraud.Report
	clock.Measure("fraud", func() { report = p.detector.Inspect(page.Img) })
	if report.Suspicious() {
		slog.Warn("tamper heuristics fired",
			"page", page.Index,
			"flags", report.Flags,
			"white_patch_ratio", report.WhitePatchRatio,
			"contour_count", report.ContourCount)
	}

	stop = clock.Track("ocr")
	ocrRes, err := p.engine.Recognize(ctx, ocr.Input{
		Image:     norm.Data,
		PageIndex: page.Index,
		DPI:       page.DPI,
		Languages: p.cfg.Languages,
	})
	stop()
	if err != nil {
		return billing.PageResult{}, usage, &PageError{Page: page.Index, Stage: "ocr", Err: err}
	}

	stop = clock.Track("extract")
	pageResult, pageUsage, err := p.extractor.ExtractPage(ctx, extract.PageInput{
		PageNumber: page.Index,
		Text:       ocrRes.Text,
	})
	stop()
	usage.Add(pageUsage)
	if err != nil {
		return billing.PageResult{}, usage, &PageError{Page: page.Index, Stage: "extract", Err: err}
	}

	pageResult.FraudFlags = report.Flags
	return pageResult, usage, nil
}
