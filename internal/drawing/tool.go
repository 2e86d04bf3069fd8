// Package drawing tracks in-progress pointer strokes and drag sessions.
package drawing

import "github.com/MeKo-Tech/marginalia/internal/geometry"

// Tool identifies the active editing tool.
type Tool string

const (
	ToolSelect        Tool = "select"
	ToolRectHighlight Tool = "rectHighlight"
	ToolFreehand      Tool = "freehand"
	ToolClipArea      Tool = "clipArea"
	ToolComment       Tool = "comment"
	ToolBookmark      Tool = "bookmark"
)

// Draws reports whether the tool starts a stroke on pointer-down.
func (t Tool) Draws() bool {
	switch t {
	case ToolRectHighlight, ToolFreehand, ToolClipArea:
		return true
	default:
		return false
	}
}

// ParseTool validates a tool name.
func ParseTool(s string) (Tool, bool) {
	switch t := Tool(s); t {
	case ToolSelect, ToolRectHighlight, ToolFreehand, ToolClipArea, ToolComment, ToolBookmark:
		return t, true
	}
	return "", false
}

// FreehandMode selects how freehand samples are kept.
type FreehandMode string

const (
	// ModeContinuous keeps every move sample.
	ModeContinuous FreehandMode = "continuous"
	// ModeStraight keeps only the anchor and the current point.
	ModeStraight FreehandMode = "straight"
)

const (
	DefaultMinShapeSize = 0.01
	MinPressure         = 0.25
	MaxPressure         = 1.35
	DefaultBrushSize    = 25.6
	DefaultOpacity      = 1.0
)

// BrushSizes are the selectable base brush widths, hairline to marker.
var BrushSizes = []float64{5.2, 5.8, 25.6, 35.6, 45.8}

// StrokeOptions are captured at pointer-down for the lifetime of a stroke.
type StrokeOptions struct {
	BaseBrushSize   float64
	PressureEnabled bool
	Mode            FreehandMode
	Opacity         float64
}

// DefaultStrokeOptions returns the medium brush in straight mode with pressure on.
func DefaultStrokeOptions() StrokeOptions {
	return StrokeOptions{
		BaseBrushSize:   DefaultBrushSize,
		PressureEnabled: true,
		Mode:            ModeStraight,
		Opacity:         DefaultOpacity,
	}
}

// ResolvePressure converts a raw device pressure into a stroke-width factor.
// Devices reporting no pressure (zero) count as 1.
func ResolvePressure(raw float64, enabled bool) float64 {
	if !enabled || raw <= 0 {
		return 1
	}
	return geometry.Clamp(raw, MinPressure, MaxPressure)
}
