// Package fraud runs visual tamper heuristics over bill page images.
// The checks are advisory. They annotate a page with flags and never
// block the pipeline.
package fraud

import (
	"image"
	"math"
)

const (
	// Flag strings emitted on the page result. Downstream consumers
	// match on these exact values.
	FlagWhitePatches      = "Excessive white patches detected"
	FlagFontInconsistency = "Potential font inconsistency"

	// whiteSaturationMax and whiteValueMin bound the HSV region counted
	// as a white patch (8-bit channel scale).
	whiteSaturationMax = 30
	whiteValueMin      = 200

	// DefaultWhitePatchRatio is the fraction of white-patch pixels above
	// which a page is flagged.
	DefaultWhitePatchRatio = 0.15

	// DefaultContourThreshold is the edge component count above which a
	// page is flagged for font inconsistency.
	DefaultContourThreshold = 1000

	// Hysteresis bounds for edge detection, matching the classic
	// low/high gradient magnitude cutoffs.
	edgeLowThreshold  = 50
	edgeHighThreshold = 150
)

// Detector holds the tuning knobs for the heuristics.
type Detector struct {
	WhitePatchRatio  float64
	ContourThreshold int
}

// NewDetector returns a detector with the given thresholds. Zero values
// fall back to the defaults.
func NewDetector(whitePatchRatio float64, contourThreshold int) *Detector {
	d := &Detector{WhitePatchRatio: whitePatchRatio, ContourThreshold: contourThreshold}
	if d.WhitePatchRatio <= 0 {
		d.WhitePatchRatio = DefaultWhitePatchRatio
	}
	if d.ContourThreshold <= 0 {
		d.ContourThreshold = DefaultContourThreshold
	}
	return d
}

// Report is the outcome of running all heuristics over one page.
type Report struct {
	Flags           []string
	WhitePatchRatio float64
	ContourCount    int
}

// Suspicious reports whether any heuristic fired.
func (r *Report) Suspicious() bool { return len(r.Flags) > 0 }

// Inspect runs every heuristic over the page image and collects the
// triggered flags.
func (d *Detector) Inspect(img image.Image) *Report {
	report := &Report{}
	if img == nil {
		return report
	}

	report.WhitePatchRatio = whitePatchRatio(img)
	if report.WhitePatchRatio > d.WhitePatchRatio {
		report.Flags = append(report.Flags, FlagWhitePatches)
	}

	report.ContourCount = countEdgeComponents(img)
	if report.ContourCount > d.ContourThreshold {
		report.Flags = append(report.Flags, FlagFontInconsistency)
	}
	return report
}

// whitePatchRatio returns the fraction of pixels that are bright and
// desaturated. Genuine scans have such regions too, so only an excess
// beyond the threshold is meaningful.
func whitePatchRatio(img image.Image) float64 {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}

	var white int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			s, v := saturationValue(uint8(r>>8), uint8(g>>8), uint8(bl>>8)) //nolint:gosec // 16-bit to 8-bit narrowing
			if s <= whiteSaturationMax && v >= whiteValueMin {
				white++
			}
		}
	}
	return float64(white) / float64(total)
}

// saturationValue computes the S and V channels of the HSV model on the
// 0..255 scale.
func saturationValue(r, g, b uint8) (int, int) {
	maxC := int(r)
	if int(g) > maxC {
		maxC = int(g)
	}
	if int(b) > maxC {
		maxC = int(b)
	}
	minC := int(r)
	if int(g) < minC {
		minC = int(g)
	}
	if int(b) < minC {
		minC = int(b)
	}

	v := maxC
	if maxC == 0 {
		return 0, 0
	}
	s := 255 * (maxC - minC) / maxC
	return s, v
}

// countEdgeComponents builds a gradient edge mask with hysteresis and
// counts its 8-connected components. Pasted or re-rendered text tends to
// fragment into many more components than a clean print.
func countEdgeComponents(img image.Image) int {
	gray := grayscale(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}
	mask := edgeMask(gray)
	return connectedComponents(mask, w, h)
}

func grayscale(img image.Image) *image.Gray {
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

// edgeMask marks pixels whose Sobel gradient magnitude clears the high
// threshold, plus weak pixels adjacent to a strong one.
func edgeMask(gray *image.Gray) []bool {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	mag := make([]float64, w*h)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -int(gray.GrayAt(x-1, y-1).Y) + int(gray.GrayAt(x+1, y-1).Y) +
				-2*int(gray.GrayAt(x-1, y).Y) + 2*int(gray.GrayAt(x+1, y).Y) +
				-int(gray.GrayAt(x-1, y+1).Y) + int(gray.GrayAt(x+1, y+1).Y)
			gy := -int(gray.GrayAt(x-1, y-1).Y) - 2*int(gray.GrayAt(x, y-1).Y) - int(gray.GrayAt(x+1, y-1).Y) +
				int(gray.GrayAt(x-1, y+1).Y) + 2*int(gray.GrayAt(x, y+1).Y) + int(gray.GrayAt(x+1, y+1).Y)
			mag[y*w+x] = math.Hypot(float64(gx), float64(gy))
		}
	}

	mask := make([]bool, w*h)
	for i, m := range mag {
		if m >= edgeHighThreshold {
			mask[i] = true
		}
	}
	// hysteresis: promote weak edges touching a strong edge
	changed := true
	for changed {
		changed = false
		for y := 1; y < h-1; y++ {
			for x := 1; x < w-1; x++ {
				i := y*w + x
				if mask[i] || mag[i] < edgeLowThreshold {
					continue
				}
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if mask[(y+dy)*w+(x+dx)] {
							mask[i] = true
							changed = true
						}
					}
				}
			}
		}
	}
	return mask
}

// connectedComponents counts 8-connected regions in the mask using an
// iterative flood fill.
func connectedComponents(mask []bool, w, h int) int {
	visited := make([]bool, len(mask))
	stack := make([]int, 0, 256)
	count := 0

	for start, on := range mask {
		if !on || visited[start] {
			continue
		}
		count++
		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					ni := ny*w + nx
					if mask[ni] && !visited[ni] {
						visited[ni] = true
						stack = append(stack, ni)
					}
				}
			}
		}
	}
	return count
}
