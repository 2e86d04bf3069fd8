// Package annotation owns committed annotations, pending highlights and the
// comment lifecycle for each page of a document.
package annotation

import (
	"time"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

// Type is the annotation type.
type Type string

const (
	TypeHighlight Type = "highlight"
	TypeUnderline Type = "underline"
	TypeStrike    Type = "strike"
	TypeFreehand  Type = "freehand"
	TypeComment   Type = "comment"
	TypeGroup     Type = "group"
)

// Types lists every annotation type in display order.
var Types = []Type{TypeHighlight, TypeUnderline, TypeStrike, TypeFreehand, TypeComment, TypeGroup}

// Highlight subtypes.
const (
	SubtypeArea = "area"
	SubtypeText = "text"
)

// DefaultColor is the first entry of ColorOptions.
const DefaultColor = "#fbbf24"

// ColorOptions are the selectable highlight colors.
var ColorOptions = []string{"#fbbf24", "#f97316", "#a855f7", "#22c55e", "#3b82f6", "#ef4444"}

// Highlight is a drawn shape. It is the element type of pending lists and
// of group annotations.
type Highlight struct {
	ID          string         `json:"id,omitempty"`
	Shape       geometry.Shape `json:"shape"`
	Color       string         `json:"color,omitempty"`
	StrokeWidth float64        `json:"strokeWidth,omitempty"`
	Opacity     float64        `json:"opacity,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Comment is one entry of an annotation's comment thread.
type Comment struct {
	ID        string    `json:"id,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Line is a horizontal underline or strike segment in normalized space.
type Line struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Annotation is a committed mark on a page. Which geometry fields are set
// depends on Type:
//
//	highlight  Shape (area) or Rects (text)
//	underline  Lines
//	strike     Lines
//	freehand   Shape, StrokeWidth, Opacity, Mode
//	comment    Position, Content, LinkedText
//	group      Highlights (never empty)
type Annotation struct {
	ID         string    `json:"id"`
	PageNumber int       `json:"pageNumber"`
	Type       Type      `json:"type"`
	Subtype    string    `json:"subtype,omitempty"`
	Color      string    `json:"color,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`

	Shape      *geometry.Shape `json:"shape,omitempty"`
	Rects      []geometry.Rect `json:"rects,omitempty"`
	Lines      []Line          `json:"lines,omitempty"`
	Text       string          `json:"text,omitempty"`
	Highlights []Highlight     `json:"highlights,omitempty"`
	Position   *geometry.Point `json:"position,omitempty"`
	Content    string          `json:"content,omitempty"`
	LinkedText string          `json:"linkedText,omitempty"`

	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	Mode        string  `json:"mode,omitempty"`

	Comments []Comment `json:"comments,omitempty"`
}

// Clone returns a deep copy.
func (a Annotation) Clone() Annotation {
	out := a
	if a.Shape != nil {
		s := a.Shape.Clone()
		out.Shape = &s
	}
	if a.Position != nil {
		p := *a.Position
		out.Position = &p
	}
	out.Rects = append([]geometry.Rect(nil), a.Rects...)
	out.Lines = append([]Line(nil), a.Lines...)
	out.Comments = append([]Comment(nil), a.Comments...)
	if a.Highlights != nil {
		out.Highlights = make([]Highlight, len(a.Highlights))
		for i, h := range a.Highlights {
			h.Shape = h.Shape.Clone()
			out.Highlights[i] = h
		}
	}
	return out
}

// AreaHighlight builds a rectangular highlight annotation.
func AreaHighlight(page int, r geometry.Rect, color string) Annotation {
	s := geometry.NewRect(r)
	return Annotation{PageNumber: page, Type: TypeHighlight, Subtype: SubtypeArea, Color: color, Shape: &s}
}

// FreehandStroke builds a freehand annotation.
func FreehandStroke(page int, h Highlight, mode string) Annotation {
	s := h.Shape.Clone()
	return Annotation{
		PageNumber:  page,
		Type:        TypeFreehand,
		Color:       h.Color,
		Shape:       &s,
		StrokeWidth: h.StrokeWidth,
		Opacity:     h.Opacity,
		Mode:        mode,
	}
}

// TextHighlight builds a highlight over selected text lines.
func TextHighlight(page int, rects []geometry.Rect, text, color string) Annotation {
	return Annotation{
		PageNumber: page,
		Type:       TypeHighlight,
		Subtype:    SubtypeText,
		Color:      color,
		Rects:      append([]geometry.Rect(nil), rects...),
		Text:       text,
	}
}

// TextLines builds an underline or strike annotation from selection rects.
// Underlines sit at 90% of each rect's height, strikes at 50%.
func TextLines(t Type, page int, rects []geometry.Rect, text, color string) Annotation {
	frac := 0.5
	if t == TypeUnderline {
		frac = 0.9
	}
	lines := make([]Line, 0, len(rects))
	for _, r := range rects {
		y := r.Y + r.Height*frac
		lines = append(lines, Line{X1: r.X, Y1: y, X2: r.X + r.Width, Y2: y})
	}
	return Annotation{PageNumber: page, Type: t, Color: color, Lines: lines, Text: text}
}

// Note builds a sticky-note comment annotation. The position is clamped to
// keep the note on the page.
func Note(page int, pos geometry.Point, content, linkedText, color string) Annotation {
	p := geometry.ClampPoint(pos, 0.05, 0.95)
	return Annotation{
		PageNumber: page,
		Type:       TypeComment,
		Color:      color,
		Position:   &p,
		Content:    content,
		LinkedText: linkedText,
	}
}

// Filter selects which annotation types are visible.
type Filter map[Type]bool

// AllVisible returns a filter showing every type.
func AllVisible() Filter {
	f := make(Filter, len(Types))
	for _, t := range Types {
		f[t] = true
	}
	return f
}

// Toggle flips the visibility of t.
func (f Filter) Toggle(t Type) {
	f[t] = !f[t]
}

// Apply returns the visible annotations in order.
func (f Filter) Apply(anns []Annotation) []Annotation {
	out := make([]Annotation, 0, len(anns))
	for _, a := range anns {
		if f[a.Type] {
			out = append(out, a)
		}
	}
	return out
}
