// Package geometry provides the planar primitives used by the deskew
// stage: convex hulls and minimum-area enclosing rectangles over
// foreground pixel coordinates.
package geometry

import (
	"math"
	"sort"
)

// Point is a 2D point in pixel coordinates.
type Point struct {
	X, Y float64
}

// Rect describes an oriented rectangle. Angle is the rotation of the
// rectangle in degrees, reported in [-90, 0) following the minAreaRect
// convention, so an axis-aligned rectangle yields -90.
type Rect struct {
	Center Point
	Width  float64
	Height float64
	Angle  float64
}

// ConvexHull computes the convex hull of a set of points using the
// monotone chain algorithm. Returns the hull in CCW order without
// duplicating the first point at the end.
func ConvexHull(pts []Point) []Point {
	n := len(pts)
	if n <= 1 {
		return append([]Point(nil), pts...)
	}
	p := make([]Point, n)
	copy(p, pts)
	sort.Slice(p, func(i, j int) bool {
		if p[i].X != p[j].X {
			return p[i].X < p[j].X
		}
		return p[i].Y < p[j].Y
	})
	p = dedupPoints(p)
	n = len(p)
	if n <= 2 {
		return append([]Point(nil), p...)
	}

	lower := make([]Point, 0, n)
	for _, pt := range p {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], pt) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, pt)
	}
	upper := make([]Point, 0, n)
	for i := n - 1; i >= 0; i-- {
		pt := p[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], pt) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, pt)
	}

	hull := make([]Point, 0, len(lower)+len(upper)-2)
	hull = append(hull, lower[:len(lower)-1]...)
	hull = append(hull, upper[:len(upper)-1]...)
	return hull
}

func dedupPoints(p []Point) []Point {
	q := p[:0]
	var last Point
	hasLast := false
	for _, pt := range p {
		if !hasLast || pt.X != last.X || pt.Y != last.Y {
			q = append(q, pt)
			last = pt
			hasLast = true
		}
	}
	return q
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// MinAreaRect computes the minimum-area enclosing rectangle of the given
// points using rotating calipers over the convex hull. The second return
// value is false when the point set is empty.
func MinAreaRect(pts []Point) (Rect, bool) {
	if len(pts) == 0 {
		return Rect{}, false
	}
	hull := ConvexHull(pts)
	if len(hull) == 0 {
		return Rect{}, false
	}
	if len(hull) == 1 {
		return Rect{Center: hull[0], Angle: -90}, true
	}
	if len(hull) == 2 {
		return rectFromSegment(hull[0], hull[1]), true
	}

	bestArea := math.Inf(1)
	var best Rect
	for i := range hull {
		a := hull[i]
		b := hull[(i+1)%len(hull)]
		dx := b.X - a.X
		dy := b.Y - a.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		ux, uy := dx/l, dy/l
		vx, vy := -uy, ux

		minS, maxS := math.Inf(1), math.Inf(-1)
		minT, maxT := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			s := p.X*ux + p.Y*uy
			t := p.X*vx + p.Y*vy
			minS = math.Min(minS, s)
			maxS = math.Max(maxS, s)
			minT = math.Min(minT, t)
			maxT = math.Max(maxT, t)
		}
		w := maxS - minS
		h := maxT - minT
		area := w * h
		if area < bestArea {
			bestArea = area
			cs := (minS + maxS) / 2
			ct := (minT + maxT) / 2
			best = Rect{
				Center: Point{X: ux*cs + vx*ct, Y: uy*cs + vy*ct},
				Width:  w,
				Height: h,
				Angle:  edgeAngle(ux, uy),
			}
		}
	}
	return best, true
}

func rectFromSegment(a, b Point) Rect {
	dx := b.X - a.X
	dy := b.Y - a.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return Rect{Center: a, Angle: -90}
	}
	return Rect{
		Center: Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2},
		Width:  l,
		Angle:  edgeAngle(dx/l, dy/l),
	}
}

// edgeAngle maps an edge direction onto the [-90, 0) angle convention.
func edgeAngle(ux, uy float64) float64 {
	deg := math.Atan2(uy, ux) * 180 / math.Pi
	deg = math.Mod(deg, 90)
	if deg < 0 {
		deg += 90
	}
	// deg is now in [0, 90); shift into [-90, 0)
	return deg - 90
}
