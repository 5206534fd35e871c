// Package rasterize converts classified bill documents into ordered page
// images. PDF page decoding is delegated to pdfcpu; raster inputs pass
// through as a single page.
package rasterize

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/billscan/internal/document"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// DefaultDPI is the default rasterization resolution.
const DefaultDPI = 300

// PageImage is one rasterized page of a bill document. Index is 1-based
// and preserves the original page order.
type PageImage struct {
	Index  int
	Img    image.Image
	Width  int
	Height int
	Data   []byte // original encoded bytes for the page
	DPI    int
}

// RasterizationError indicates the input could not be decoded into page
// images.
type RasterizationError struct {
	Err error
}

func (e *RasterizationError) Error() string {
	return fmt.Sprintf("rasterization failed: %v", e.Err)
}

func (e *RasterizationError) Unwrap() error { return e.Err }

// Rasterize converts a classified document into its ordered page images.
// PDFs produce one image per page; a raster image document produces a
// single passthrough page wrapping the original bytes. A dpi of zero or
// less falls back to DefaultDPI.
func Rasterize(doc *document.Document, dpi int) ([]PageImage, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	switch doc.Kind {
	case document.KindPDF:
		return rasterizePDF(doc.Data, dpi)
	case document.KindImage:
		page, err := passthroughPage(doc.Data, dpi)
		if err != nil {
			return nil, err
		}
		return []PageImage{page}, nil
	default:
		return nil, &RasterizationError{Err: fmt.Errorf("unhandled document kind %v", doc.Kind)}
	}
}

func passthroughPage(data []byte, dpi int) (PageImage, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return PageImage{}, &RasterizationError{Err: fmt.Errorf("decoding image: %w", err)}
	}
	b := img.Bounds()
	return PageImage{
		Index:  1,
		Img:    img,
		Width:  b.Dx(),
		Height: b.Dy(),
		Data:   data,
		DPI:    dpi,
	}, nil
}

func rasterizePDF(data []byte, dpi int) ([]PageImage, error) {
	tempDir, err := os.MkdirTemp("", "billscan-raster-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	pdfPath := filepath.Join(tempDir, "input.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF: %w", err)
	}

	pageCount, err := api.PageCountFile(pdfPath)
	if err != nil {
		return nil, &RasterizationError{Err: fmt.Errorf("reading page count: %w", err)}
	}
	if pageCount == 0 {
		return nil, &RasterizationError{Err: fmt.Errorf("PDF has no pages")}
	}

	outDir := filepath.Join(tempDir, "pages")
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create extraction directory: %w", err)
	}
	if err := api.ExtractImagesFile(pdfPath, outDir, nil, nil); err != nil {
		return nil, &RasterizationError{Err: fmt.Errorf("extracting page images: %w", err)}
	}

	byPage, err := collectPageImages(outDir)
	if err != nil {
		return nil, &RasterizationError{Err: err}
	}
	if len(byPage) == 0 {
		return nil, &RasterizationError{Err: fmt.Errorf("PDF contains no page images")}
	}

	pages := make([]PageImage, 0, pageCount)
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		entry, ok := byPage[pageNum]
		if !ok {
			// Vector-only pages carry no scan to process
			slog.Warn("PDF page has no raster content, skipping", "page", pageNum)
			continue
		}
		b := entry.img.Bounds()
		pages = append(pages, PageImage{
			Index:  pageNum,
			Img:    entry.img,
			Width:  b.Dx(),
			Height: b.Dy(),
			Data:   entry.data,
			DPI:    dpi,
		})
	}
	return pages, nil
}

type extractedImage struct {
	img  image.Image
	data []byte
}

// collectPageImages walks the extraction directory and keeps the first
// image of each page. pdfcpu names files page_<num>_<resource>.<ext>.
func collectPageImages(dir string) (map[int]extractedImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading extraction directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	result := make(map[int]extractedImage)
	for _, name := range names {
		pageNum, err := parsePageFromFilename(name)
		if err != nil {
			continue
		}
		if _, seen := result[pageNum]; seen {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // path comes from our own temp dir
		if err != nil {
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			continue
		}
		result[pageNum] = extractedImage{img: img, data: data}
	}
	return result, nil
}

// parsePageFromFilename extracts the page number from a pdfcpu extracted
// filename such as page_1_Im0.png.
func parsePageFromFilename(filename string) (int, error) {
	if !strings.HasPrefix(filename, "page_") {
		return 0, fmt.Errorf("not a page file: %s", filename)
	}
	parts := strings.Split(filename, "_")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid filename format: %s", filename)
	}
	pageNum, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid page number in %s", filename)
	}
	return pageNum, nil
}
