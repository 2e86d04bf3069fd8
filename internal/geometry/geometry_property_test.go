package geometry

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genPoint() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(0, 5000),
		gen.Float64Range(0, 5000),
	).Map(func(vals []interface{}) Point {
		return Point{X: vals[0].(float64), Y: vals[1].(float64)}
	})
}

func genRectShape() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(0, 5000),
		gen.Float64Range(0, 5000),
		gen.Float64Range(0, 5000),
		gen.Float64Range(0, 5000),
	).Map(func(vals []interface{}) Shape {
		return NewRect(Rect{
			X: vals[0].(float64), Y: vals[1].(float64),
			Width: vals[2].(float64), Height: vals[3].(float64),
		})
	})
}

func genFreehandShape() gopter.Gen {
	return gen.SliceOfN(12, genPoint()).Map(func(pts []Point) Shape {
		return NewFreehand(pts)
	})
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b))
}

func shapesClose(a, b Shape) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindRect:
		return closeTo(a.Rect.X, b.Rect.X) && closeTo(a.Rect.Y, b.Rect.Y) &&
			closeTo(a.Rect.Width, b.Rect.Width) && closeTo(a.Rect.Height, b.Rect.Height)
	case KindFreehand:
		if len(a.Points) != len(b.Points) {
			return false
		}
		for i := range a.Points {
			if !closeTo(a.Points[i].X, b.Points[i].X) || !closeTo(a.Points[i].Y, b.Points[i].Y) {
				return false
			}
		}
		return true
	}
	return false
}

// TestNormalize_RoundTrip verifies denormalize(normalize(s)) == s for positive containers.
func TestNormalize_RoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("rect round trip", prop.ForAll(
		func(s Shape, w, h float64) bool {
			return shapesClose(Denormalize(Normalize(s, w, h), w, h), s)
		},
		genRectShape(),
		gen.Float64Range(1, 4000),
		gen.Float64Range(1, 4000),
	))

	properties.Property("freehand round trip", prop.ForAll(
		func(s Shape, w, h float64) bool {
			return shapesClose(Denormalize(Normalize(s, w, h), w, h), s)
		},
		genFreehandShape(),
		gen.Float64Range(1, 4000),
		gen.Float64Range(1, 4000),
	))

	properties.TestingRun(t)
}

// TestNormalize_IdentityAtUnitContainer verifies a 1x1 container is a no-op.
func TestNormalize_IdentityAtUnitContainer(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("unit container leaves shapes unchanged", prop.ForAll(
		func(s Shape) bool {
			return shapesClose(Normalize(s, 1, 1), s)
		},
		genRectShape(),
	))

	properties.TestingRun(t)
}

// TestBoundsOf_StaysInUnitSquare verifies freehand bounds never leave the page.
func TestBoundsOf_StaysInUnitSquare(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("bounds inside unit square", prop.ForAll(
		func(pts []Point) bool {
			norm := make([]Point, len(pts))
			for i, p := range pts {
				norm[i] = Point{X: p.X / 5000, Y: p.Y / 5000}
			}
			r, ok := BoundsOf(norm)
			if !ok {
				return len(norm) == 0
			}
			return r.X >= 0 && r.Y >= 0 && r.X+r.Width <= 1+1e-9 && r.Y+r.Height <= 1+1e-9 &&
				r.Width >= MinBoundsExtent && r.Height >= MinBoundsExtent
		},
		gen.SliceOfN(6, genPoint()),
	))

	properties.TestingRun(t)
}
