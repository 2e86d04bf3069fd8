package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

// ErrBookmarkNotFound is returned for unknown bookmark ids.
var ErrBookmarkNotFound = errors.New("bookmark not found")

// Bookmark placement bounds. Creation keeps flags away from the top and
// bottom page edges; drags only from the side edges.
const (
	bookmarkMinX     = 0.05
	bookmarkMaxX     = 0.95
	bookmarkMinY     = 0.1
	bookmarkMaxY     = 0.9
	bookmarkDragMinY = 0.05
	bookmarkDragMaxY = 0.95
)

// DefaultBookmarkPosition is where a toggled page bookmark is placed.
var DefaultBookmarkPosition = geometry.Point{X: 0.9, Y: 0.1}

// Bookmark marks a page with an optional note.
type Bookmark struct {
	ID         string         `json:"id"`
	PageNumber int            `json:"pageNumber"`
	Position   geometry.Point `json:"position"`
	Color      string         `json:"color,omitempty"`
	Note       string         `json:"note,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// BookmarkPersister stores the full bookmark list.
type BookmarkPersister interface {
	SaveBookmarks([]Bookmark) error
}

// Bookmarks is the bookmark list of one document. It is independent of the
// annotation model and not safe for concurrent use.
type Bookmarks struct {
	items     []Bookmark
	persister BookmarkPersister
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
}

// NewBookmarks creates a bookmark list seeded with previously stored entries.
func NewBookmarks(initial []Bookmark, persister BookmarkPersister, logger *slog.Logger) *Bookmarks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bookmarks{
		items:     slices.Clone(initial),
		persister: persister,
		logger:    logger,
		newID:     func() string { return uuid.New().String() },
		now:       time.Now,
	}
}

func (b *Bookmarks) persist() {
	if b.persister == nil {
		return
	}
	if err := b.persister.SaveBookmarks(b.List()); err != nil {
		b.logger.Warn("failed to persist bookmarks", "error", err)
	}
}

// Add places a bookmark on a page. The position is clamped so the flag
// stays on the page.
func (b *Bookmarks) Add(page int, pos geometry.Point, color, note string) Bookmark {
	bm := Bookmark{
		ID:         b.newID(),
		PageNumber: page,
		Position: geometry.Point{
			X: geometry.Clamp(pos.X, bookmarkMinX, bookmarkMaxX),
			Y: geometry.Clamp(pos.Y, bookmarkMinY, bookmarkMaxY),
		},
		Color:     color,
		Note:      strings.TrimSpace(note),
		CreatedAt: b.now(),
	}
	b.items = append(b.items, bm)
	b.persist()
	return bm
}

// Toggle removes every bookmark of a page, or adds one at the default
// position when the page has none. It reports whether the page is
// bookmarked afterwards.
func (b *Bookmarks) Toggle(page int) bool {
	before := len(b.items)
	b.items = slices.DeleteFunc(b.items, func(bm Bookmark) bool { return bm.PageNumber == page })
	if len(b.items) != before {
		b.persist()
		return false
	}
	b.Add(page, DefaultBookmarkPosition, "", "")
	return true
}

// SetNote replaces a bookmark's note. Blank notes clear it.
func (b *Bookmarks) SetNote(id, note string) error {
	i := b.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrBookmarkNotFound, id)
	}
	b.items[i].Note = strings.TrimSpace(note)
	b.persist()
	return nil
}

// Move repositions a bookmark.
func (b *Bookmarks) Move(id string, pos geometry.Point) (Bookmark, error) {
	i := b.index(id)
	if i < 0 {
		return Bookmark{}, fmt.Errorf("%w: %s", ErrBookmarkNotFound, id)
	}
	b.items[i].Position = geometry.Point{
		X: geometry.Clamp(pos.X, bookmarkMinX, bookmarkMaxX),
		Y: geometry.Clamp(pos.Y, bookmarkDragMinY, bookmarkDragMaxY),
	}
	b.persist()
	return b.items[i], nil
}

// Remove deletes a bookmark.
func (b *Bookmarks) Remove(id string) error {
	i := b.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrBookmarkNotFound, id)
	}
	b.items = slices.Delete(b.items, i, i+1)
	b.persist()
	return nil
}

// Get looks up a bookmark.
func (b *Bookmarks) Get(id string) (Bookmark, bool) {
	i := b.index(id)
	if i < 0 {
		return Bookmark{}, false
	}
	return b.items[i], true
}

// List returns all bookmarks in creation order.
func (b *Bookmarks) List() []Bookmark { return slices.Clone(b.items) }

// OnPage returns the bookmarks of one page.
func (b *Bookmarks) OnPage(page int) []Bookmark {
	var out []Bookmark
	for _, bm := range b.items {
		if bm.PageNumber == page {
			out = append(out, bm)
		}
	}
	return out
}

// Pages returns the bookmarked page numbers in ascending order.
func (b *Bookmarks) Pages() []int {
	seen := make(map[int]bool)
	var pages []int
	for _, bm := range b.items {
		if !seen[bm.PageNumber] {
			seen[bm.PageNumber] = true
			pages = append(pages, bm.PageNumber)
		}
	}
	sort.Ints(pages)
	return pages
}

func (b *Bookmarks) index(id string) int {
	return slices.IndexFunc(b.items, func(bm Bookmark) bool { return bm.ID == id })
}
