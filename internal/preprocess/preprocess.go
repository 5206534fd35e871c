// Package preprocess normalizes scanned bill pages for OCR. The stages are
// grayscale conversion, denoising, adaptive mean thresholding and deskew.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/MeKo-Tech/billscan/internal/geometry"
	"github.com/disintegration/imaging"
)

const (
	// thresholdBlockSize is the side length of the local neighborhood
	// used by adaptive thresholding. Must be odd.
	thresholdBlockSize = 11

	// thresholdConstant is subtracted from the local mean before
	// comparing a pixel against it.
	thresholdConstant = 2

	// deskewSkipDegrees is the band of detected skew angles treated as
	// already aligned. Rotating inside this band costs quality for no
	// readability gain.
	deskewSkipDegrees = 0.5
)

// ProcessingError represents a failure in one normalization stage.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("preprocessing failed in %s: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Result carries a normalized page image together with the skew that was
// measured and whether a rotation was applied.
type Result struct {
	Img          *image.Gray
	Data         []byte // PNG-encoded normalized image
	SkewDegrees  float64
	Deskewed     bool
	ForegroundPx int
}

// Normalize runs the full normalization chain over a page image and
// returns the binarized, deskewed result. A blank page (no foreground
// after thresholding) skips deskew and is returned as is.
func Normalize(img image.Image) (*Result, error) {
	if img == nil {
		return nil, &ProcessingError{Stage: "grayscale", Err: errors.New("input image is nil")}
	}

	gray := toGray(imaging.Grayscale(img))
	denoised := meanFilter(gray)
	binary := adaptiveThreshold(denoised, thresholdBlockSize, thresholdConstant)

	angle, fg := estimateSkew(binary)
	result := &Result{Img: binary, SkewDegrees: angle, ForegroundPx: fg}

	if fg > 0 && math.Abs(angle) > deskewSkipDegrees {
		// Rotation expands the canvas to the rotated bounding box;
		// crop back around the center so the page keeps its
		// original dimensions.
		b := binary.Bounds()
		rotated := imaging.Rotate(binary, -angle, color.White)
		result.Img = toGray(imaging.CropCenter(rotated, b.Dx(), b.Dy()))
		result.Deskewed = true
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, result.Img); err != nil {
		return nil, &ProcessingError{Stage: "encode", Err: err}
	}
	result.Data = buf.Bytes()
	return result, nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x-b.Min.X, y-b.Min.Y, img.At(x, y))
		}
	}
	return out
}

// meanFilter applies a 3x3 box blur to suppress scan speckle before
// thresholding.
func meanFilter(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum, count int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					sum += int(src.GrayAt(nx, ny).Y)
					count++
				}
			}
			out.SetGray(x, y, color.Gray{Y: uint8(sum / count)}) //nolint:gosec // mean of uint8 values fits
		}
	}
	return out
}

// adaptiveThreshold binarizes using a local mean computed over a
// blockSize neighborhood via an integral image. Pixels darker than the
// local mean minus c become foreground (black), the rest background
// (white).
func adaptiveThreshold(src *image.Gray, blockSize, c int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)

	// integral[y][x] holds the sum of all pixels above and left of (x, y)
	integral := make([][]int64, h+1)
	for i := range integral {
		integral[i] = make([]int64, w+1)
	}
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(src.GrayAt(x, y).Y)
			integral[y+1][x+1] = integral[y][x+1] + rowSum
		}
	}

	half := blockSize / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0 := max(0, x-half)
			y0 := max(0, y-half)
			x1 := min(w-1, x+half)
			y1 := min(h-1, y+half)

			area := int64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := integral[y1+1][x1+1] - integral[y0][x1+1] - integral[y1+1][x0] + integral[y0][x0]
			mean := sum / area

			if int64(src.GrayAt(x, y).Y) <= mean-int64(c) {
				out.SetGray(x, y, color.Gray{Y: 0})
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// estimateSkew fits a minimum-area rectangle around the foreground pixels
// and converts its orientation into a rotation correction in degrees.
// Returns the angle and the foreground pixel count.
func estimateSkew(binary *image.Gray) (float64, int) {
	b := binary.Bounds()
	pts := make([]geometry.Point, 0, 1024)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if binary.GrayAt(x, y).Y == 0 {
				pts = append(pts, geometry.Point{X: float64(x), Y: float64(y)})
			}
		}
	}
	if len(pts) == 0 {
		return 0, 0
	}

	rect, ok := geometry.MinAreaRect(pts)
	if !ok {
		return 0, len(pts)
	}

	angle := rect.Angle
	if angle < -45 {
		angle = -(90 + angle)
	} else {
		angle = -angle
	}
	return angle, len(pts)
}
