package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

var (
	// ErrNotFound is returned for unknown clipping, comment or item ids.
	ErrNotFound = errors.New("workspace: not found")
	// ErrUnknownSource is returned when placing an item whose source does not exist.
	ErrUnknownSource = errors.New("workspace: unknown item source")
	// ErrEmptyClipping is returned for blank clipping text.
	ErrEmptyClipping = errors.New("workspace: empty clipping")
	// ErrEmptyComment is returned for blank comment text.
	ErrEmptyComment = errors.New("workspace: empty comment")
	// ErrNoSourceRect is returned when a comment has no anchor rectangle.
	ErrNoSourceRect = errors.New("workspace: comment has no source location")
	// ErrTooFewClippings is returned when fewer than two clippings are combined.
	ErrTooFewClippings = errors.New("workspace: combining needs at least two clippings")
)

// Canvas margins.
const (
	ItemMin = 0.02
	ItemMax = 0.98

	commentItemMin  = 0.05
	commentItemMaxX = 0.95
	commentItemMaxY = 0.92
)

// Persister stores the workspace after every mutation.
type Persister interface {
	SaveWorkspace(State) error
}

// Workspace owns the clipping list, workspace comments and canvas items of
// one document. It is not safe for concurrent use.
type Workspace struct {
	clippings []Clipping
	comments  []Comment
	items     []Item
	selected  []string

	persister Persister
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
	random    func() float64
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithPersister saves the workspace through p after every mutation.
func WithPersister(p Persister) Option {
	return func(w *Workspace) { w.persister = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) { w.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Workspace) { w.now = now }
}

// WithIDGenerator overrides uuid ids.
func WithIDGenerator(gen func() string) Option {
	return func(w *Workspace) { w.newID = gen }
}

// WithRandom overrides the jitter source used to place new comment items.
func WithRandom(r func() float64) Option {
	return func(w *Workspace) { w.random = r }
}

// New creates an empty workspace.
func New(opts ...Option) *Workspace {
	w := &Workspace{
		logger: slog.Default(),
		newID:  func() string { return uuid.New().String() },
		now:    time.Now,
		random: rand.Float64,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Restore replaces the workspace content without persisting it. Orphaned
// items in the restored state are dropped.
func (w *Workspace) Restore(st State) {
	w.clippings = slices.Clone(st.Clippings)
	w.comments = slices.Clone(st.Comments)
	w.items = slices.Clone(st.Items)
	w.selected = nil
	w.PruneOrphans()
}

// State returns a copy of the workspace content.
func (w *Workspace) State() State {
	return State{
		Clippings: w.Clippings(),
		Comments:  w.Comments(),
		Items:     w.Items(),
	}
}

func (w *Workspace) persist() {
	if w.persister == nil {
		return
	}
	if err := w.persister.SaveWorkspace(w.State()); err != nil {
		w.logger.Warn("failed to persist workspace", "error", err)
	}
}

// Clippings returns the clipping list, newest first.
func (w *Workspace) Clippings() []Clipping { return slices.Clone(w.clippings) }

// Comments returns the workspace comments, newest first.
func (w *Workspace) Comments() []Comment { return slices.Clone(w.comments) }

// Items returns the canvas items, newest first.
func (w *Workspace) Items() []Item { return slices.Clone(w.items) }

// NewClipping describes a clipping to add.
type NewClipping struct {
	Content    string
	Page       int
	Rect       *geometry.Rect
	Source     Source
	Confidence float64
}

// AddClipping prepends a clipping and clears the combine selection.
func (w *Workspace) AddClipping(in NewClipping) (Clipping, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return Clipping{}, ErrEmptyClipping
	}
	source := in.Source
	if source == "" {
		source = SourcePDF
	}
	c := Clipping{
		ID:         w.newID(),
		Content:    content,
		CreatedAt:  w.now(),
		SourcePage: PageLabel(in.Page),
		SourceRect: cloneRect(in.Rect),
		Source:     source,
		Confidence: in.Confidence,
	}
	w.clippings = slices.Insert(w.clippings, 0, c)
	w.selected = nil
	w.PruneOrphans()
	w.persist()
	return c, nil
}

// Clipping looks up a clipping by id.
func (w *Workspace) Clipping(id string) (Clipping, bool) {
	i := w.clippingIndex(id)
	if i < 0 {
		return Clipping{}, false
	}
	return w.clippings[i], true
}

func (w *Workspace) clippingIndex(id string) int {
	return slices.IndexFunc(w.clippings, func(c Clipping) bool { return c.ID == id })
}

// RemoveClipping deletes a clipping together with the items placed for it.
func (w *Workspace) RemoveClipping(id string) error {
	i := w.clippingIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: clipping %s", ErrNotFound, id)
	}
	w.clippings = slices.Delete(w.clippings, i, i+1)
	w.selected = slices.DeleteFunc(w.selected, func(s string) bool { return s == id })
	w.PruneOrphans()
	w.persist()
	return nil
}

// ReorderClipping swaps a clipping with its neighbour in direction dir
// (-1 up, +1 down). Moving past either end is a no-op.
func (w *Workspace) ReorderClipping(id string, dir int) error {
	i := w.clippingIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: clipping %s", ErrNotFound, id)
	}
	j := min(max(i+dir, 0), len(w.clippings)-1)
	if i == j {
		return nil
	}
	w.clippings[i], w.clippings[j] = w.clippings[j], w.clippings[i]
	w.persist()
	return nil
}

// ToggleSelection adds or removes a clipping from the combine selection.
func (w *Workspace) ToggleSelection(id string) error {
	if w.clippingIndex(id) < 0 {
		return fmt.Errorf("%w: clipping %s", ErrNotFound, id)
	}
	if i := slices.Index(w.selected, id); i >= 0 {
		w.selected = slices.Delete(w.selected, i, i+1)
		return nil
	}
	w.selected = append(w.selected, id)
	return nil
}

// Selection returns the ids selected for combining, in selection order.
func (w *Workspace) Selection() []string { return slices.Clone(w.selected) }

// CombineSelection combines the selected clippings and clears the selection.
func (w *Workspace) CombineSelection() (Clipping, error) {
	c, err := w.CombineClippings(w.selected)
	if err != nil {
		return Clipping{}, err
	}
	w.selected = nil
	return c, nil
}

// CombineClippings replaces the given clippings with one combined clipping
// whose segments follow the clipping list order. The originals and their
// items are removed; their ids survive inside the segments.
func (w *Workspace) CombineClippings(ids []string) (Clipping, error) {
	var picked []Clipping
	for _, c := range w.clippings {
		if slices.Contains(ids, c.ID) {
			picked = append(picked, c)
		}
	}
	if len(picked) < 2 {
		return Clipping{}, ErrTooFewClippings
	}

	segments := make([]Segment, len(picked))
	contents := make([]string, len(picked))
	pages := make([]string, len(picked))
	for i, c := range picked {
		segments[i] = Segment{
			ID:         c.ID,
			Label:      fmt.Sprintf("Segment %d", i+1),
			Content:    c.Content,
			SourcePage: c.SourcePage,
			SourceRect: cloneRect(c.SourceRect),
		}
		contents[i] = segments[i].Label + ": " + c.Content
		pages[i] = c.SourcePage
	}

	combined := Clipping{
		ID:         w.newID(),
		Content:    strings.Join(contents, "\n"),
		CreatedAt:  w.now(),
		SourcePage: strings.Join(pages, ", "),
		SourceRect: cloneRect(segments[0].SourceRect),
		Segments:   segments,
	}

	w.clippings = slices.DeleteFunc(w.clippings, func(c Clipping) bool { return slices.Contains(ids, c.ID) })
	w.clippings = slices.Insert(w.clippings, 0, combined)
	w.selected = slices.DeleteFunc(w.selected, func(s string) bool { return slices.Contains(ids, s) })
	w.PruneOrphans()
	w.persist()
	return combined, nil
}

// NewComment describes a workspace comment to add.
type NewComment struct {
	Content    string
	QuoteText  string
	PageNumber int
	SourceRect *geometry.Rect
	SourceType CommentSource
	Color      string
}

// AddComment prepends a workspace comment and places its item on the right
// side of the canvas, stacked by the number of existing comment items.
func (w *Workspace) AddComment(in NewComment) (Comment, Item, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return Comment{}, Item{}, ErrEmptyComment
	}
	if in.SourceRect == nil {
		return Comment{}, Item{}, ErrNoSourceRect
	}
	sourceType := in.SourceType
	if sourceType == "" {
		sourceType = CommentFromText
	}

	now := w.now()
	c := Comment{
		ID:         w.newID(),
		Content:    content,
		QuoteText:  in.QuoteText,
		PageNumber: in.PageNumber,
		SourceRect: cloneRect(in.SourceRect),
		SourceType: sourceType,
		Color:      in.Color,
		CreatedAt:  now,
	}
	w.comments = slices.Insert(w.comments, 0, c)

	n := 0
	for _, it := range w.items {
		if it.Type == ItemComment {
			n++
		}
	}
	it := Item{
		ID:        w.newID(),
		Type:      ItemComment,
		SourceID:  c.ID,
		X:         geometry.Clamp(0.72+w.random()*0.08, commentItemMin, commentItemMaxX),
		Y:         geometry.Clamp(0.18+math.Mod(float64(n)*0.14, 0.6), commentItemMin, commentItemMaxY),
		CreatedAt: now,
	}
	w.items = slices.Insert(w.items, 0, it)

	w.PruneOrphans()
	w.persist()
	return c, it, nil
}

// Comment looks up a workspace comment by id.
func (w *Workspace) Comment(id string) (Comment, bool) {
	i := slices.IndexFunc(w.comments, func(c Comment) bool { return c.ID == id })
	if i < 0 {
		return Comment{}, false
	}
	return w.comments[i], true
}

// DeleteComment removes a workspace comment and its items.
func (w *Workspace) DeleteComment(id string) error {
	i := slices.IndexFunc(w.comments, func(c Comment) bool { return c.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: comment %s", ErrNotFound, id)
	}
	w.comments = slices.Delete(w.comments, i, i+1)
	w.PruneOrphans()
	w.persist()
	return nil
}

// PlaceItem drops a new item for an existing source at a canvas position.
func (w *Workspace) PlaceItem(t ItemType, sourceID string, pos geometry.Point) (Item, error) {
	if !w.resolves(t, sourceID) {
		return Item{}, fmt.Errorf("%w: %s %s", ErrUnknownSource, t, sourceID)
	}
	pos = geometry.ClampPoint(pos, ItemMin, ItemMax)
	it := Item{
		ID:        w.newID(),
		Type:      t,
		SourceID:  sourceID,
		X:         pos.X,
		Y:         pos.Y,
		CreatedAt: w.now(),
	}
	w.items = slices.Insert(w.items, 0, it)
	w.persist()
	return it, nil
}

// Item looks up a canvas item by id.
func (w *Workspace) Item(id string) (Item, bool) {
	i := w.itemIndex(id)
	if i < 0 {
		return Item{}, false
	}
	return w.items[i], true
}

func (w *Workspace) itemIndex(id string) int {
	return slices.IndexFunc(w.items, func(it Item) bool { return it.ID == id })
}

// MoveItem repositions an item, keeping it inside the canvas margins.
func (w *Workspace) MoveItem(id string, pos geometry.Point) (Item, error) {
	i := w.itemIndex(id)
	if i < 0 {
		return Item{}, fmt.Errorf("%w: item %s", ErrNotFound, id)
	}
	pos = geometry.ClampPoint(pos, ItemMin, ItemMax)
	w.items[i].X, w.items[i].Y = pos.X, pos.Y
	w.persist()
	return w.items[i], nil
}

// RemoveItem deletes a canvas item, leaving its source in place.
func (w *Workspace) RemoveItem(id string) error {
	i := w.itemIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: item %s", ErrNotFound, id)
	}
	w.items = slices.Delete(w.items, i, i+1)
	w.persist()
	return nil
}

// PruneOrphans drops items whose source no longer resolves and returns how
// many were removed.
func (w *Workspace) PruneOrphans() int {
	before := len(w.items)
	w.items = slices.DeleteFunc(w.items, func(it Item) bool { return !w.resolves(it.Type, it.SourceID) })
	return before - len(w.items)
}

func (w *Workspace) resolves(t ItemType, sourceID string) bool {
	switch t {
	case ItemClip:
		return w.clippingIndex(sourceID) >= 0
	case ItemComment:
		_, ok := w.Comment(sourceID)
		return ok
	}
	return false
}

// Resolved is an item together with its source.
type Resolved struct {
	Item     Item
	Clipping *Clipping
	Comment  *Comment
}

// Resolve returns the source of an item.
func (w *Workspace) Resolve(it Item) (Resolved, bool) {
	switch it.Type {
	case ItemClip:
		if c, ok := w.Clipping(it.SourceID); ok {
			return Resolved{Item: it, Clipping: &c}, true
		}
	case ItemComment:
		if c, ok := w.Comment(it.SourceID); ok {
			return Resolved{Item: it, Comment: &c}, true
		}
	}
	return Resolved{}, false
}

// Flash colors used to pulse the source of a located item.
const (
	ClipFlashColor    = "#ffe58a"
	CommentFlashColor = "#bef264"
)

// Target is where the document should jump when an item is activated.
type Target struct {
	Page  int            `json:"page"`
	Rect  *geometry.Rect `json:"rect,omitempty"`
	Color string         `json:"color"`
}

// Locate resolves the jump target of an item. Combined clippings prefer the
// segment on the current page, falling back to their first segment.
func (w *Workspace) Locate(itemID string, currentPage int) (Target, error) {
	it, ok := w.Item(itemID)
	if !ok {
		return Target{}, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	res, ok := w.Resolve(it)
	if !ok {
		return Target{}, fmt.Errorf("%w: %s %s", ErrUnknownSource, it.Type, it.SourceID)
	}

	if res.Comment != nil {
		return Target{Page: res.Comment.PageNumber, Rect: cloneRect(res.Comment.SourceRect), Color: CommentFlashColor}, nil
	}

	clip := res.Clipping
	if !clip.Combined() {
		return Target{Page: PrimaryPage(clip.SourcePage), Rect: cloneRect(clip.SourceRect), Color: ClipFlashColor}, nil
	}
	seg := clip.Segments[0]
	for _, s := range clip.Segments {
		if PrimaryPage(s.SourcePage) == currentPage {
			seg = s
			break
		}
	}
	rect := seg.SourceRect
	if rect == nil {
		rect = clip.SourceRect
	}
	return Target{Page: PrimaryPage(seg.SourcePage), Rect: cloneRect(rect), Color: ClipFlashColor}, nil
}

// DropTarget is the page to show after dropping a clipping on the canvas.
func (c Clipping) DropTarget() int {
	if c.Combined() {
		return PrimaryPage(c.Segments[0].SourcePage)
	}
	return PrimaryPage(c.SourcePage)
}

func cloneRect(r *geometry.Rect) *geometry.Rect {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}
