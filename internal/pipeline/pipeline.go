// Package pipeline wires document classification, rasterization, page
// normalization, fraud heuristics, OCR and model extraction into the
// end-to-end bill processing flow.
package pipeline

import (
	"errors"
	"runtime"

	"github.com/MeKo-Tech/billscan/internal/billing"
	"github.com/MeKo-Tech/billscan/internal/extract"
	"github.com/MeKo-Tech/billscan/internal/fraud"
	"github.com/MeKo-Tech/billscan/internal/ocr"
)

// Config holds configuration for the bill pipeline and its components.
type Config struct {
	DPI              int
	AmountTolerance  float64
	WhitePatchRatio  float64
	ContourThreshold int
	Languages        []string
	PSM              int

	// MaxWorkers caps the page worker pool. Zero means runtime.NumCPU().
	MaxWorkers int

	// Progress receives page-level progress events. Nil disables
	// reporting.
	Progress ProgressCallback
}

// DefaultConfig returns a default pipeline config with component
// defaults.
func DefaultConfig() Config {
	return Config{
		DPI:              300,
		AmountTolerance:  billing.DefaultAmountTolerance,
		WhitePatchRatio:  fraud.DefaultWhitePatchRatio,
		ContourThreshold: fraud.DefaultContourThreshold,
		Languages:        []string{"eng"},
		PSM:              ocr.DefaultPSM,
		MaxWorkers:       runtime.NumCPU(),
	}
}

// Pipeline executes the full extraction flow over one bill document.
type Pipeline struct {
	cfg        Config
	engine     ocr.Engine
	extractor  extract.Extractor
	detector   *fraud.Detector
	reconciler *billing.Reconciler
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg       Config
	engine    ocr.Engine
	extractor extract.Extractor
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole pipeline config.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithDPI sets the rasterization resolution.
func (b *Builder) WithDPI(dpi int) *Builder {
	if dpi > 0 {
		b.cfg.DPI = dpi
	}
	return b
}

// WithAmountTolerance sets the reconciliation arithmetic tolerance.
func (b *Builder) WithAmountTolerance(tol float64) *Builder {
	if tol > 0 {
		b.cfg.AmountTolerance = tol
	}
	return b
}

// WithFraudThresholds sets the tamper heuristic thresholds.
func (b *Builder) WithFraudThresholds(whitePatchRatio float64, contourThreshold int) *Builder {
	if whitePatchRatio > 0 {
		b.cfg.WhitePatchRatio = whitePatchRatio
	}
	if contourThreshold > 0 {
		b.cfg.ContourThreshold = contourThreshold
	}
	return b
}

// WithLanguages sets the OCR language hints.
func (b *Builder) WithLanguages(langs []string) *Builder {
	if len(langs) > 0 {
		b.cfg.Languages = langs
	}
	return b
}

// WithMaxWorkers caps the page worker pool.
func (b *Builder) WithMaxWorkers(n int) *Builder {
	if n > 0 {
		b.cfg.MaxWorkers = n
	}
	return b
}

// WithProgress sets the progress reporter.
func (b *Builder) WithProgress(cb ProgressCallback) *Builder {
	b.cfg.Progress = cb
	return b
}

// WithOCREngine overrides the recognition engine. The default is the
// Tesseract engine.
func (b *Builder) WithOCREngine(engine ocr.Engine) *Builder {
	b.engine = engine
	return b
}

// WithExtractor sets the line-item extractor. Build fails without one.
func (b *Builder) WithExtractor(extractor extract.Extractor) *Builder {
	b.extractor = extractor
	return b
}

// Build assembles the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if b.extractor == nil {
		return nil, errors.New("pipeline requires an extractor")
	}
	engine := b.engine
	if engine == nil {
		engine = ocr.NewTesseractEngine(b.cfg.PSM)
	}
	cfg := b.cfg
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	return &Pipeline{
		cfg:        cfg,
		engine:     engine,
		extractor:  b.extractor,
		detector:   fraud.NewDetector(cfg.WhitePatchRatio, cfg.ContourThreshold),
		reconciler: billing.NewReconciler(cfg.AmountTolerance),
	}, nil
}
