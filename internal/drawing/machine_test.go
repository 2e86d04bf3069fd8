package drawing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

var overlay = geometry.Bounds{Left: 50, Top: 20, Width: 1000, Height: 1000}

func at(x, y float64) PointerEvent {
	return PointerEvent{PointerID: 1, X: overlay.Left + x*overlay.Width, Y: overlay.Top + y*overlay.Height, OnBackground: true}
}

func TestMachineRectHighlight(t *testing.T) {
	m := NewMachine(0)
	require.True(t, m.Down(ToolRectHighlight, 3, overlay, at(0.3, 0.2), DefaultStrokeOptions()))
	assert.Equal(t, State{Drawing: true, Tool: ToolRectHighlight, Page: 3}, m.State())

	m.Move(at(0.2, 0.15))
	s, ok := m.Up(at(0.1, 0.1), true)
	require.True(t, ok)
	assert.False(t, m.State().Drawing)

	assert.Equal(t, 3, s.Page)
	require.Equal(t, geometry.KindRect, s.Shape.Kind)
	assert.InDelta(t, 0.1, s.Shape.Rect.X, 1e-9)
	assert.InDelta(t, 0.1, s.Shape.Rect.Y, 1e-9)
	assert.InDelta(t, 0.2, s.Shape.Rect.Width, 1e-9)
	assert.InDelta(t, 0.1, s.Shape.Rect.Height, 1e-9)
}

func TestMachineDiscardsTinyDrags(t *testing.T) {
	tests := []struct {
		name   string
		tool   Tool
		dx, dy float64
	}{
		{"narrow highlight", ToolRectHighlight, 0.005, 0.3},
		{"flat highlight", ToolRectHighlight, 0.3, 0.009},
		{"tiny clip", ToolClipArea, 0.001, 0.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(0)
			require.True(t, m.Down(tt.tool, 1, overlay, at(0.4, 0.4), DefaultStrokeOptions()))
			_, ok := m.Up(at(0.4+tt.dx, 0.4+tt.dy), true)
			assert.False(t, ok)
			assert.False(t, m.State().Drawing)
		})
	}
}

func TestMachineEntryConditions(t *testing.T) {
	m := NewMachine(0)
	assert.False(t, m.Down(ToolSelect, 1, overlay, at(0.1, 0.1), DefaultStrokeOptions()))
	assert.False(t, m.Down(ToolComment, 1, overlay, at(0.1, 0.1), DefaultStrokeOptions()))

	onShape := at(0.1, 0.1)
	onShape.OnBackground = false
	assert.False(t, m.Down(ToolRectHighlight, 1, overlay, onShape, DefaultStrokeOptions()))

	assert.False(t, m.Down(ToolRectHighlight, 1, geometry.Bounds{}, at(0.1, 0.1), DefaultStrokeOptions()))
	assert.False(t, m.State().Drawing)
}

func TestMachineReleaseOutsideOverlayCancels(t *testing.T) {
	m := NewMachine(0)
	require.True(t, m.Down(ToolRectHighlight, 1, overlay, at(0.1, 0.1), DefaultStrokeOptions()))
	_, ok := m.Up(at(0.5, 0.5), false)
	assert.False(t, ok)
	assert.False(t, m.State().Drawing)
}

func TestMachineFreehandContinuous(t *testing.T) {
	m := NewMachine(0)
	opts := DefaultStrokeOptions()
	opts.Mode = ModeContinuous
	opts.PressureEnabled = false
	require.True(t, m.Down(ToolFreehand, 2, overlay, at(0.1, 0.1), opts))
	m.Move(at(0.2, 0.2))
	m.Move(at(0.3, 0.25))

	s, ok := m.Up(at(0.4, 0.3), true)
	require.True(t, ok)
	require.Equal(t, geometry.KindFreehand, s.Shape.Kind)
	require.Len(t, s.Shape.Points, 4)
	assert.InDelta(t, 0.1, s.Shape.Points[0].X, 1e-9)
	assert.InDelta(t, 0.4, s.Shape.Points[3].X, 1e-9)
	assert.Equal(t, DefaultBrushSize, s.StrokeWidth)
	assert.Equal(t, ModeContinuous, s.Mode)
}

func TestMachineFreehandStraightKeepsTwoPoints(t *testing.T) {
	m := NewMachine(0)
	require.True(t, m.Down(ToolFreehand, 1, overlay, at(0.1, 0.1), DefaultStrokeOptions()))
	m.Move(at(0.5, 0.9))
	m.Move(at(0.7, 0.2))

	preview, ok := m.Preview()
	require.True(t, ok)
	assert.Len(t, preview.Points, 2)

	s, ok := m.Up(at(0.6, 0.6), true)
	require.True(t, ok)
	require.Len(t, s.Shape.Points, 2)
	assert.InDelta(t, 0.1, s.Shape.Points[0].X, 1e-9)
	assert.InDelta(t, 0.6, s.Shape.Points[1].X, 1e-9)
}

func TestMachinePressureScalesWidth(t *testing.T) {
	m := NewMachine(0)
	opts := StrokeOptions{BaseBrushSize: 10, PressureEnabled: true, Mode: ModeStraight}
	ev := at(0.1, 0.1)
	ev.Pressure = 0.1
	require.True(t, m.Down(ToolFreehand, 1, overlay, ev, opts))

	w, ok := m.LiveStrokeWidth()
	require.True(t, ok)
	assert.InDelta(t, 2.5, w, 1e-9)

	mv := at(0.3, 0.3)
	mv.Pressure = 2
	m.Move(mv)
	s, ok := m.Up(at(0.3, 0.3), true)
	require.True(t, ok)
	assert.InDelta(t, 13.5, s.StrokeWidth, 1e-9)
	assert.InDelta(t, MaxPressure, s.Pressure, 1e-9)
}

func TestMachineIgnoresOtherPointers(t *testing.T) {
	m := NewMachine(0)
	require.True(t, m.Down(ToolRectHighlight, 1, overlay, at(0.1, 0.1), DefaultStrokeOptions()))
	other := at(0.9, 0.9)
	other.PointerID = 7
	m.Move(other)
	_, ok := m.Up(other, true)
	assert.False(t, ok)
	assert.True(t, m.State().Drawing)

	m.Cancel()
	assert.False(t, m.State().Drawing)
}

func TestResolvePressure(t *testing.T) {
	assert.Equal(t, 1.0, ResolvePressure(0.5, false))
	assert.Equal(t, 1.0, ResolvePressure(0, true))
	assert.Equal(t, MinPressure, ResolvePressure(0.1, true))
	assert.Equal(t, MaxPressure, ResolvePressure(4, true))
	assert.Equal(t, 0.8, ResolvePressure(0.8, true))
}

func TestParseTool(t *testing.T) {
	tool, ok := ParseTool("clipArea")
	assert.True(t, ok)
	assert.Equal(t, ToolClipArea, tool)
	_, ok = ParseTool("lasso")
	assert.False(t, ok)
}
