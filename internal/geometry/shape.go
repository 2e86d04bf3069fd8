package geometry

import (
	"errors"
	"fmt"
)

// Kind discriminates the Shape variants.
type Kind string

const (
	KindRect     Kind = "rect"
	KindFreehand Kind = "freehand"
)

// Shape is a geometric primitive in normalized page space. Exactly one of
// Rect (KindRect) or Points (KindFreehand) is populated.
type Shape struct {
	Kind   Kind    `json:"kind"`
	Rect   *Rect   `json:"rect,omitempty"`
	Points []Point `json:"points,omitempty"`
}

// NewRect returns a rect shape.
func NewRect(r Rect) Shape {
	return Shape{Kind: KindRect, Rect: &r}
}

// NewFreehand returns a freehand shape owning a copy of pts.
func NewFreehand(pts []Point) Shape {
	return Shape{Kind: KindFreehand, Points: append([]Point(nil), pts...)}
}

// Validate checks that the payload matches the kind.
func (s Shape) Validate() error {
	switch s.Kind {
	case KindRect:
		if s.Rect == nil {
			return errors.New("rect shape without rectangle")
		}
	case KindFreehand:
		if len(s.Points) == 0 {
			return errors.New("freehand shape without points")
		}
	default:
		return fmt.Errorf("unknown shape kind %q", s.Kind)
	}
	return nil
}

// Bounds returns the bounding rectangle of the shape.
func (s Shape) Bounds() (Rect, bool) {
	switch s.Kind {
	case KindRect:
		if s.Rect == nil {
			return Rect{}, false
		}
		return *s.Rect, true
	case KindFreehand:
		return BoundsOf(s.Points)
	default:
		return Rect{}, false
	}
}

// Clone returns a deep copy of s.
func (s Shape) Clone() Shape {
	out := Shape{Kind: s.Kind}
	if s.Rect != nil {
		r := *s.Rect
		out.Rect = &r
	}
	if s.Points != nil {
		out.Points = append([]Point(nil), s.Points...)
	}
	return out
}

// Normalize divides every coordinate and size of s by the container
// dimensions. A non-positive dimension returns s unchanged.
func Normalize(s Shape, containerWidth, containerHeight float64) Shape {
	if containerWidth <= 0 || containerHeight <= 0 {
		return s
	}
	return s.mapCoords(func(v, d float64) float64 { return v / d }, containerWidth, containerHeight)
}

// Denormalize is the inverse of Normalize.
func Denormalize(s Shape, containerWidth, containerHeight float64) Shape {
	if containerWidth <= 0 || containerHeight <= 0 {
		return s
	}
	return s.mapCoords(func(v, d float64) float64 { return v * d }, containerWidth, containerHeight)
}

func (s Shape) mapCoords(f func(v, d float64) float64, w, h float64) Shape {
	switch s.Kind {
	case KindRect:
		if s.Rect == nil {
			return s
		}
		return NewRect(Rect{
			X:      f(s.Rect.X, w),
			Y:      f(s.Rect.Y, h),
			Width:  f(s.Rect.Width, w),
			Height: f(s.Rect.Height, h),
		})
	case KindFreehand:
		pts := make([]Point, len(s.Points))
		for i, p := range s.Points {
			pts[i] = Point{X: f(p.X, w), Y: f(p.Y, h)}
		}
		return Shape{Kind: KindFreehand, Points: pts}
	default:
		return s
	}
}
