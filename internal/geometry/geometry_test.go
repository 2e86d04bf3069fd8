package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRect(t *testing.T) {
	s := NewRect(Rect{X: 100, Y: 50, Width: 200, Height: 100})
	n := Normalize(s, 1000, 500)

	require.Equal(t, KindRect, n.Kind)
	require.NotNil(t, n.Rect)
	assert.InDelta(t, 0.1, n.Rect.X, 1e-9)
	assert.InDelta(t, 0.1, n.Rect.Y, 1e-9)
	assert.InDelta(t, 0.2, n.Rect.Width, 1e-9)
	assert.InDelta(t, 0.2, n.Rect.Height, 1e-9)

	// input untouched
	assert.InDelta(t, 100, s.Rect.X, 1e-9)
}

func TestNormalizeFreehandPreservesOrder(t *testing.T) {
	pts := []Point{{10, 10}, {30, 20}, {20, 40}}
	n := Normalize(NewFreehand(pts), 100, 200)

	require.Len(t, n.Points, 3)
	want := []Point{{0.1, 0.05}, {0.3, 0.1}, {0.2, 0.2}}
	for i, p := range want {
		assert.InDelta(t, p.X, n.Points[i].X, 1e-12)
		assert.InDelta(t, p.Y, n.Points[i].Y, 1e-12)
	}
}

func TestNormalizeZeroContainer(t *testing.T) {
	tests := []struct {
		name string
		w, h float64
	}{
		{"zero width", 0, 100},
		{"zero height", 100, 0},
		{"both zero", 0, 0},
		{"negative", -10, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRect(Rect{X: 5, Y: 6, Width: 7, Height: 8})
			assert.Equal(t, s, Normalize(s, tt.w, tt.h))
			assert.Equal(t, s, Denormalize(s, tt.w, tt.h))
		})
	}
}

func TestDenormalizeRoundTrip(t *testing.T) {
	s := NewFreehand([]Point{{0.25, 0.5}, {0.75, 0.125}})
	back := Normalize(Denormalize(s, 640, 480), 640, 480)
	require.Len(t, back.Points, 2)
	for i := range s.Points {
		assert.InDelta(t, s.Points[i].X, back.Points[i].X, 1e-12)
		assert.InDelta(t, s.Points[i].Y, back.Points[i].Y, 1e-12)
	}
}

func TestRectFromCorners(t *testing.T) {
	r := RectFromCorners(Point{0.3, 0.2}, Point{0.1, 0.1})
	assert.InDelta(t, 0.1, r.X, 1e-12)
	assert.InDelta(t, 0.1, r.Y, 1e-12)
	assert.InDelta(t, 0.2, r.Width, 1e-12)
	assert.InDelta(t, 0.1, r.Height, 1e-12)
}

func TestBoundsOf(t *testing.T) {
	_, ok := BoundsOf(nil)
	assert.False(t, ok)

	r, ok := BoundsOf([]Point{{0.5, 0.5}})
	require.True(t, ok)
	assert.Equal(t, MinBoundsExtent, r.Width)
	assert.Equal(t, MinBoundsExtent, r.Height)

	r, ok = BoundsOf([]Point{{0.2, 0.4}, {0.6, 0.1}, {0.3, 0.3}})
	require.True(t, ok)
	assert.InDelta(t, 0.2, r.X, 1e-12)
	assert.InDelta(t, 0.1, r.Y, 1e-12)
	assert.InDelta(t, 0.4, r.Width, 1e-12)
	assert.InDelta(t, 0.3, r.Height, 1e-12)

	r, ok = BoundsOf([]Point{{1, 1}})
	require.True(t, ok)
	assert.InDelta(t, 1-MinBoundsExtent, r.X, 1e-12)
}

func TestShapeValidate(t *testing.T) {
	assert.NoError(t, NewRect(Rect{}).Validate())
	assert.NoError(t, NewFreehand([]Point{{0, 0}}).Validate())
	assert.Error(t, Shape{Kind: KindRect}.Validate())
	assert.Error(t, Shape{Kind: KindFreehand}.Validate())
	assert.Error(t, Shape{Kind: "circle"}.Validate())
}

func TestShapeCloneIsDeep(t *testing.T) {
	s := NewFreehand([]Point{{0.1, 0.1}})
	c := s.Clone()
	c.Points[0].X = 0.9
	assert.InDelta(t, 0.1, s.Points[0].X, 1e-12)

	r := NewRect(Rect{X: 0.1})
	rc := r.Clone()
	rc.Rect.X = 0.5
	assert.InDelta(t, 0.1, r.Rect.X, 1e-12)
}

func TestBoundsToScreen(t *testing.T) {
	b := Bounds{Left: 100, Top: 50, Width: 400, Height: 200}
	p := b.ToScreen(Point{0.5, 0.5})
	assert.Equal(t, Point{X: 300, Y: 150}, p)
	assert.Equal(t, Point{X: 200, Y: 100}, b.Relative(p))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.02, Clamp(-1, 0.02, 0.98))
	assert.Equal(t, 0.98, Clamp(3, 0.02, 0.98))
	assert.Equal(t, 0.5, Clamp(0.5, 0.02, 0.98))
	assert.Equal(t, Point{X: 0.05, Y: 0.95}, ClampPoint(Point{0, 1}, 0.05, 0.95))
}
