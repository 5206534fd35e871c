package ocr

import (
	"context"
	"fmt"
	"strconv"

	"github.com/otiai10/gosseract/v2"
)

// DefaultPSM is the page segmentation mode used for bill pages. Mode 6
// assumes a single uniform block of text, which fits tabular bills
// better than full automatic segmentation.
const DefaultPSM = 6

// TesseractEngine implements Engine on top of the gosseract client.
type TesseractEngine struct {
	clientFactory func() *gosseract.Client

	// PSM is the page segmentation mode passed to every recognition.
	PSM int
}

// NewTesseractEngine constructs a Tesseract-backed recognition engine.
// A psm of zero or less selects DefaultPSM.
func NewTesseractEngine(psm int) *TesseractEngine {
	if psm <= 0 {
		psm = DefaultPSM
	}
	return &TesseractEngine{clientFactory: gosseract.NewClient, PSM: psm}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize performs OCR on a single page image. The returned text is
// already passed through CleanText.
func (e *TesseractEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(in.Image); err != nil {
		return Result{}, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(e.PSM)); err != nil {
		return Result{}, fmt.Errorf("set page segmentation mode: %w", err)
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(in.DPI)); err != nil {
			return Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return Result{}, fmt.Errorf("recognize text: %w", err)
	}
	return Result{PageIndex: in.PageIndex, Text: CleanText(text)}, nil
}
