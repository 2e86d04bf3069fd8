// Package geometry holds the normalized page-space primitives shared by the
// drawing, annotation and workspace packages.
package geometry

import "math"

// MinBoundsExtent is the smallest width or height BoundsOf will report.
const MinBoundsExtent = 0.005

// Point is a 2D point. Inside the engine points are normalized to [0,1]
// relative to the rendered page, except while a stroke is in progress.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle anchored at its top-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Size is a rendered pixel size.
type Size struct {
	W float64
	H float64
}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool { return s.W > 0 && s.H > 0 }

// Center returns the midpoint of r.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// RectFromCorners builds the absolute rectangle spanned by two corners given
// in any order.
func RectFromCorners(a, b Point) Rect {
	x0, x1 := math.Min(a.X, b.X), math.Max(a.X, b.X)
	y0, y1 := math.Min(a.Y, b.Y), math.Max(a.Y, b.Y)
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// BoundsOf returns the normalized bounding rectangle of pts, widened to at
// least MinBoundsExtent and clamped into the unit square. The second result
// is false for an empty slice.
func BoundsOf(pts []Point) (Rect, bool) {
	if len(pts) == 0 {
		return Rect{}, false
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	w := math.Max(maxX-minX, MinBoundsExtent)
	h := math.Max(maxY-minY, MinBoundsExtent)
	x := Clamp(minX, 0, 1-w)
	y := Clamp(minY, 0, 1-h)
	return Rect{X: x, Y: y, Width: math.Min(w, 1), Height: math.Min(h, 1)}, true
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampPoint clamps both coordinates of p to [lo, hi].
func ClampPoint(p Point, lo, hi float64) Point {
	return Point{X: Clamp(p.X, lo, hi), Y: Clamp(p.Y, lo, hi)}
}

// Bounds is the live on-screen rectangle of a pane (document viewer,
// workspace canvas or the deck containing both), in CSS pixels.
type Bounds struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ToScreen maps a point normalized to b into screen coordinates.
func (b Bounds) ToScreen(p Point) Point {
	return Point{X: b.Left + p.X*b.Width, Y: b.Top + p.Y*b.Height}
}

// Relative expresses a screen point relative to b's top-left corner.
func (b Bounds) Relative(p Point) Point {
	return Point{X: p.X - b.Left, Y: p.Y - b.Top}
}
