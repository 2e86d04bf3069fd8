package drawing

import (
	"math"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

// PointerEvent is a pointer sample in screen coordinates.
type PointerEvent struct {
	PointerID int
	X, Y      float64
	// Pressure as reported by the device, 0 when unsupported.
	Pressure float64
	// OnBackground is true when the target is the page canvas rather than
	// an existing shape.
	OnBackground bool
}

// State is the externally visible machine state.
type State struct {
	Drawing bool
	Tool    Tool
	Page    int
}

// Stroke is a finalized shape in normalized page space.
type Stroke struct {
	Tool        Tool
	Page        int
	Shape       geometry.Shape
	StrokeWidth float64
	Pressure    float64
	Mode        FreehandMode
	Opacity     float64
}

type stroke struct {
	tool      Tool
	page      int
	pointerID int
	overlay   geometry.Bounds
	opts      StrokeOptions
	start     geometry.Point
	last      geometry.Point
	points    []geometry.Point
	pressure  float64
}

// Machine is the idle/drawing state machine. Coordinates are kept relative
// to the overlay in pixels while drawing and normalized on release.
type Machine struct {
	minSize float64
	active  *stroke
}

// NewMachine creates an idle machine. A non-positive minSize selects
// DefaultMinShapeSize.
func NewMachine(minSize float64) *Machine {
	if minSize <= 0 {
		minSize = DefaultMinShapeSize
	}
	return &Machine{minSize: minSize}
}

// State returns the current state.
func (m *Machine) State() State {
	if m.active == nil {
		return State{}
	}
	return State{Drawing: true, Tool: m.active.tool, Page: m.active.page}
}

// Down enters the drawing state for drawing tools pressed on the page
// background. It reports whether a stroke was started.
func (m *Machine) Down(tool Tool, page int, overlay geometry.Bounds, ev PointerEvent, opts StrokeOptions) bool {
	if !tool.Draws() || !ev.OnBackground {
		return false
	}
	if overlay.Width <= 0 || overlay.Height <= 0 {
		return false
	}
	if opts.BaseBrushSize <= 0 {
		opts.BaseBrushSize = DefaultBrushSize
	}
	if opts.Mode == "" {
		opts.Mode = ModeStraight
	}

	p := overlay.Relative(geometry.Point{X: ev.X, Y: ev.Y})
	s := &stroke{
		tool:      tool,
		page:      page,
		pointerID: ev.PointerID,
		overlay:   overlay,
		opts:      opts,
		start:     p,
		last:      p,
		pressure:  ResolvePressure(ev.Pressure, opts.PressureEnabled),
	}
	if tool == ToolFreehand {
		if opts.Mode == ModeStraight {
			s.points = []geometry.Point{p, p}
		} else {
			s.points = []geometry.Point{p}
		}
	}
	m.active = s
	return true
}

// Move feeds a sample to the active stroke. Samples from other pointers
// are ignored.
func (m *Machine) Move(ev PointerEvent) {
	s := m.active
	if s == nil || ev.PointerID != s.pointerID {
		return
	}
	p := s.overlay.Relative(geometry.Point{X: ev.X, Y: ev.Y})
	s.last = p
	if s.tool != ToolFreehand {
		return
	}
	s.pressure = ResolvePressure(ev.Pressure, s.opts.PressureEnabled)
	if s.opts.Mode == ModeStraight {
		s.points = []geometry.Point{s.points[0], p}
		return
	}
	s.points = append(s.points, p)
}

// Up finalizes the stroke. inOverlay reports whether the release happened
// over a tracked overlay; releases elsewhere cancel. The machine is idle
// afterwards in every case.
func (m *Machine) Up(ev PointerEvent, inOverlay bool) (Stroke, bool) {
	s := m.active
	if s == nil || ev.PointerID != s.pointerID {
		return Stroke{}, false
	}
	m.active = nil
	if !inOverlay {
		return Stroke{}, false
	}

	end := s.overlay.Relative(geometry.Point{X: ev.X, Y: ev.Y})
	w, h := s.overlay.Width, s.overlay.Height
	out := Stroke{Tool: s.tool, Page: s.page}

	switch s.tool {
	case ToolRectHighlight, ToolClipArea:
		r := geometry.Normalize(geometry.NewRect(geometry.RectFromCorners(s.start, end)), w, h)
		if math.Abs(r.Rect.Width) < m.minSize || math.Abs(r.Rect.Height) < m.minSize {
			return Stroke{}, false
		}
		out.Shape = r
	case ToolFreehand:
		var pts []geometry.Point
		if s.opts.Mode == ModeStraight {
			pts = []geometry.Point{s.points[0], end}
		} else {
			pts = append(append([]geometry.Point(nil), s.points...), end)
		}
		if len(pts) < 2 {
			return Stroke{}, false
		}
		out.Shape = geometry.Normalize(geometry.NewFreehand(pts), w, h)
		out.Pressure = s.pressure
		out.StrokeWidth = s.opts.BaseBrushSize * s.pressure
		out.Mode = s.opts.Mode
		out.Opacity = s.opts.Opacity
	default:
		return Stroke{}, false
	}
	return out, true
}

// Cancel discards any in-progress stroke.
func (m *Machine) Cancel() {
	m.active = nil
}

// Preview returns the normalized in-progress shape for live rendering.
func (m *Machine) Preview() (geometry.Shape, bool) {
	s := m.active
	if s == nil {
		return geometry.Shape{}, false
	}
	w, h := s.overlay.Width, s.overlay.Height
	if s.tool == ToolFreehand {
		return geometry.Normalize(geometry.NewFreehand(s.points), w, h), true
	}
	return geometry.Normalize(geometry.NewRect(geometry.RectFromCorners(s.start, s.last)), w, h), true
}

// LiveStrokeWidth is the width of the in-progress freehand stroke.
func (m *Machine) LiveStrokeWidth() (float64, bool) {
	s := m.active
	if s == nil || s.tool != ToolFreehand {
		return 0, false
	}
	return s.opts.BaseBrushSize * s.pressure, true
}
