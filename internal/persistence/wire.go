package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/marginalia/internal/annotation"
	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

// defaultRemoteStrokeWidth applies when the service omits both width keys.
const defaultRemoteStrokeWidth = 2

// wireShape is a shape as stored by the annotation service. Freehand
// shapes carry points, everything else is rect-like.
type wireShape struct {
	ID          string           `json:"id,omitempty"`
	Type        string           `json:"type"`
	Points      []geometry.Point `json:"points,omitempty"`
	X           float64          `json:"x"`
	Y           float64          `json:"y"`
	Width       float64          `json:"width"`
	Height      float64          `json:"height"`
	Color       string           `json:"color,omitempty"`
	StrokeWidth float64          `json:"stroke_width"`
}

// inboundShape accepts both width spellings the service has used.
type inboundShape struct {
	ID               flexString       `json:"id"`
	Type             string           `json:"type"`
	Points           []geometry.Point `json:"points"`
	X                float64          `json:"x"`
	Y                float64          `json:"y"`
	Width            float64          `json:"width"`
	Height           float64          `json:"height"`
	Color            string           `json:"color"`
	StrokeWidth      *float64         `json:"stroke_width"`
	StrokeWidthCamel *float64         `json:"strokeWidth"`
}

type inboundComment struct {
	Text       *string    `json:"text"`
	Comment    *string    `json:"comment"`
	CreatedAt  flexTime   `json:"created_at"`
	CreatedAtC flexTime   `json:"createdAt"`
	ID         flexString `json:"id"`
	CommentID  flexString `json:"comment_id"`
}

type inboundPage struct {
	PageNumber   int              `json:"page_number"`
	Shapes       []inboundShape   `json:"shapes"`
	Comments     []inboundComment `json:"comments"`
	CommentsList []inboundComment `json:"comments_list"`
}

type fetchResponse struct {
	Data struct {
		Annotations []inboundPage `json:"annotations"`
	} `json:"data"`
}

type wireComment struct {
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// Payload is the body stored for one page.
type Payload struct {
	PDFID      string        `json:"pdf_id"`
	PageNumber int           `json:"page_number"`
	Shapes     []wireShape   `json:"shapes"`
	Comments   []wireComment `json:"comments"`
}

// flexString decodes JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexTime decodes RFC 3339 strings and epoch milliseconds.
type flexTime struct {
	time.Time
	set bool
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				f.Time, f.set = t, true
				return nil
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			f.Time, f.set = time.UnixMilli(ms).UTC(), true
		}
		return nil
	}
	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", b, err)
	}
	f.Time, f.set = time.UnixMilli(int64(ms)).UTC(), true
	return nil
}

// canonical converts a service shape into a highlight.
func (s inboundShape) canonical() annotation.Highlight {
	width := float64(defaultRemoteStrokeWidth)
	switch {
	case s.StrokeWidth != nil:
		width = *s.StrokeWidth
	case s.StrokeWidthCamel != nil:
		width = *s.StrokeWidthCamel
	}

	var shape geometry.Shape
	if s.Type == string(annotation.TypeFreehand) || (s.Type == "" && len(s.Points) > 0) {
		shape = geometry.NewFreehand(s.Points)
	} else {
		shape = geometry.NewRect(geometry.Rect{X: s.X, Y: s.Y, Width: s.Width, Height: s.Height})
	}
	return annotation.Highlight{
		ID:          string(s.ID),
		Shape:       shape,
		Color:       s.Color,
		StrokeWidth: width,
	}
}

func (c inboundComment) canonical(now time.Time) annotation.Comment {
	var text string
	switch {
	case c.Text != nil:
		text = *c.Text
	case c.Comment != nil:
		text = *c.Comment
	}
	created := now
	switch {
	case c.CreatedAt.set:
		created = c.CreatedAt.Time
	case c.CreatedAtC.set:
		created = c.CreatedAtC.Time
	}
	id := string(c.ID)
	if id == "" {
		id = string(c.CommentID)
	}
	return annotation.Comment{ID: id, Text: text, CreatedAt: created}
}

func toWire(h annotation.Highlight) wireShape {
	w := wireShape{ID: h.ID, Color: h.Color, StrokeWidth: h.StrokeWidth}
	switch h.Shape.Kind {
	case geometry.KindFreehand:
		w.Type = string(annotation.TypeFreehand)
		w.Points = append([]geometry.Point(nil), h.Shape.Points...)
	case geometry.KindRect:
		w.Type = string(geometry.KindRect)
		if r := h.Shape.Rect; r != nil {
			w.X, w.Y, w.Width, w.Height = r.X, r.Y, r.Width, r.Height
		}
	}
	return w
}

// Fingerprint identifies a shape without an id by kind, geometry, color
// and stroke width.
func Fingerprint(h annotation.Highlight) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	switch h.Shape.Kind {
	case geometry.KindFreehand:
		pts := make([]string, len(h.Shape.Points))
		for i, p := range h.Shape.Points {
			pts[i] = f(p.X) + "," + f(p.Y)
		}
		return "fh:" + strings.Join(pts, ",") + ":" + h.Color + ":" + f(h.StrokeWidth)
	case geometry.KindRect:
		var r geometry.Rect
		if h.Shape.Rect != nil {
			r = *h.Shape.Rect
		}
		return "rect:" + f(r.X) + ":" + f(r.Y) + ":" + f(r.Width) + ":" + f(r.Height) + ":" + h.Color + ":" + f(h.StrokeWidth)
	}
	return "unknown:" + h.Color
}

// highlightsOf flattens an annotation into the shapes the service stores.
func highlightsOf(a annotation.Annotation) []annotation.Highlight {
	switch a.Type {
	case annotation.TypeGroup:
		return a.Highlights
	case annotation.TypeComment:
		return nil
	}

	var out []annotation.Highlight
	if a.Shape != nil {
		out = append(out, annotation.Highlight{
			ID: a.ID, Shape: a.Shape.Clone(), Color: a.Color,
			StrokeWidth: a.StrokeWidth, Opacity: a.Opacity, CreatedAt: a.CreatedAt,
		})
	}
	for i, r := range a.Rects {
		out = append(out, annotation.Highlight{
			ID: fmt.Sprintf("%s-%d", a.ID, i), Shape: geometry.NewRect(r), Color: a.Color, CreatedAt: a.CreatedAt,
		})
	}
	for i, l := range a.Lines {
		r := geometry.Rect{X: l.X1, Y: l.Y1, Width: l.X2 - l.X1, Height: l.Y2 - l.Y1}
		out = append(out, annotation.Highlight{
			ID: fmt.Sprintf("%s-line-%d", a.ID, i), Shape: geometry.NewRect(r), Color: a.Color, CreatedAt: a.CreatedAt,
		})
	}
	return out
}

// commentsOf returns the comment texts the service stores for an annotation.
// Sticky notes contribute their content.
func commentsOf(a annotation.Annotation) []annotation.Comment {
	out := append([]annotation.Comment(nil), a.Comments...)
	if a.Type == annotation.TypeComment && strings.TrimSpace(a.Content) != "" {
		out = append(out, annotation.Comment{Text: a.Content, CreatedAt: a.CreatedAt})
	}
	return out
}
