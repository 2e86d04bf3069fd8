// Package workspace places clippings and comments on the auxiliary canvas
// and computes the connectors that link each item back to its source
// location in the document.
package workspace

import (
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

// Source is where a clipping's text came from.
type Source string

const (
	SourcePDF Source = "PDF"
	SourceOCR Source = "OCR"
)

// ItemType discriminates workspace items.
type ItemType string

const (
	ItemClip    ItemType = "clip"
	ItemComment ItemType = "comment"
)

// CommentSource is how a workspace comment was anchored.
type CommentSource string

const (
	CommentFromText     CommentSource = "text"
	CommentFromFreehand CommentSource = "freehand"
)

// Segment is one original clipping inside a combined clipping. It keeps the
// original's id for traceability.
type Segment struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Content    string         `json:"content"`
	SourcePage string         `json:"sourcePage"`
	SourceRect *geometry.Rect `json:"sourceRect"`
}

// Clipping is a unit of extracted text.
type Clipping struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	CreatedAt  time.Time      `json:"createdAt"`
	SourcePage string         `json:"sourcePage"`
	SourceRect *geometry.Rect `json:"sourceRect"`
	Source     Source         `json:"source,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Segments   []Segment      `json:"segments,omitempty"`
}

// Combined reports whether c aggregates other clippings.
func (c Clipping) Combined() bool { return len(c.Segments) > 0 }

// Comment is a note anchored to a document location but shown only on the
// workspace.
type Comment struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	QuoteText  string         `json:"quoteText"`
	PageNumber int            `json:"pageNumber"`
	SourceRect *geometry.Rect `json:"sourceRect"`
	SourceType CommentSource  `json:"sourceType"`
	Color      string         `json:"color"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Item is a draggable proxy for a clipping or comment. X and Y are
// normalized to the workspace canvas.
type Item struct {
	ID        string    `json:"id"`
	Type      ItemType  `json:"type"`
	SourceID  string    `json:"sourceId"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	CreatedAt time.Time `json:"createdAt"`
}

// Position returns the item's canvas position.
func (it Item) Position() geometry.Point { return geometry.Point{X: it.X, Y: it.Y} }

// State is the serializable content of a workspace.
type State struct {
	Clippings []Clipping `json:"clippings"`
	Comments  []Comment  `json:"comments"`
	Items     []Item     `json:"items"`
}

// PageLabel formats a single page as a clipping source page.
func PageLabel(page int) string { return strconv.Itoa(page) }

// PrimaryPage returns the first page of a source page label such as "3, 5".
// Unparseable labels resolve to page 1.
func PrimaryPage(label string) int {
	first, _, _ := strings.Cut(label, ",")
	page, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 1
	}
	return page
}
