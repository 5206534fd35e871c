// Package document handles raw bill documents: byte-signature
// classification and download from remote URLs.
package document

import (
	"bytes"
	"fmt"
)

// Kind identifies the container format of an ingested document.
type Kind int

const (
	// KindPDF marks a paginated PDF document.
	KindPDF Kind = iota
	// KindImage marks a single raster image.
	KindImage
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// Document is an ingested byte buffer with its classified kind.
// It is immutable once classified and discarded after rasterization.
type Document struct {
	Data []byte
	Kind Kind
}

// UnsupportedFormatError indicates the input bytes match no known signature.
type UnsupportedFormatError struct {
	Prefix []byte
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported document format (leading bytes %x)", e.Prefix)
}

var pdfSignature = []byte("%PDF")

// imageSignatures lists magic-byte prefixes of the supported raster formats.
var imageSignatures = [][]byte{
	{0xFF, 0xD8, 0xFF},                             // JPEG
	{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, // PNG
	[]byte("GIF87a"),                               // GIF
	[]byte("GIF89a"),                               // GIF
	{0x49, 0x49, 0x2A, 0x00},                       // TIFF little-endian
	{0x4D, 0x4D, 0x00, 0x2A},                       // TIFF big-endian
}

// Classify inspects the leading bytes of data and returns the document kind.
// It is deterministic, side-effect free, and O(1) in the input size.
func Classify(data []byte) (Kind, error) {
	if bytes.HasPrefix(data, pdfSignature) {
		return KindPDF, nil
	}
	for _, sig := range imageSignatures {
		if bytes.HasPrefix(data, sig) {
			return KindImage, nil
		}
	}
	n := len(data)
	if n > 8 {
		n = 8
	}
	return 0, &UnsupportedFormatError{Prefix: append([]byte(nil), data[:n]...)}
}

// New classifies data and wraps it in a Document.
func New(data []byte) (*Document, error) {
	kind, err := Classify(data)
	if err != nil {
		return nil, err
	}
	return &Document{Data: data, Kind: kind}, nil
}
