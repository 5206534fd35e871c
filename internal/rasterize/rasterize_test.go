package rasterize

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/MeKo-Tech/billscan/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRasterizeImagePassthrough(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 120, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 120; x++ {
			img.Set(x, y, color.White)
		}
	}
	data := encodePNG(t, img)

	doc, err := document.New(data)
	require.NoError(t, err)

	pages, err := Rasterize(doc, 0)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	assert.Equal(t, 1, pages[0].Index)
	assert.Equal(t, 120, pages[0].Width)
	assert.Equal(t, 80, pages[0].Height)
	assert.Equal(t, DefaultDPI, pages[0].DPI)
	assert.Equal(t, data, pages[0].Data)
}

func TestRasterizeCorruptPDF(t *testing.T) {
	doc := &document.Document{
		Data: []byte("%PDF-1.7 not really a pdf"),
		Kind: document.KindPDF,
	}

	_, err := Rasterize(doc, 300)
	require.Error(t, err)

	var rerr *RasterizationError
	assert.ErrorAs(t, err, &rerr)
}

func TestParsePageFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     int
		wantErr  bool
	}{
		{"first page", "page_1_Im0.png", 1, false},
		{"double digit", "page_12_Im3.jpg", 12, false},
		{"no prefix", "image_1.png", 0, true},
		{"bad number", "page_x_Im0.png", 0, true},
		{"bare prefix", "page_", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePageFromFilename(tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
