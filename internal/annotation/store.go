package annotation

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

var (
	// ErrNotFound is returned when an annotation id does not resolve.
	ErrNotFound = errors.New("annotation not found")
	// ErrIndexOutOfRange is returned for a bad comment or highlight index.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrNotANote is returned when moving an annotation that is not a sticky note.
	ErrNotANote = errors.New("annotation is not a note")
)

// Note drags are clamped tighter than note creation so the handle stays grabbable.
const (
	noteDragMin = 0.02
	noteDragMax = 0.92
)

// PagePersister stores one page's committed and pending lists.
type PagePersister interface {
	SavePage(page int, annotations []Annotation, pending []Highlight) error
}

type pageState struct {
	annotations []Annotation
	pending     []Highlight
}

// Store holds the annotations of one document. It is not safe for
// concurrent use; callers serialize events.
type Store struct {
	pages     map[int]*pageState
	selection *Selection
	detach    []func()

	listeners ListenerRegistry
	persister PagePersister
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPersister saves every mutated page through p.
func WithPersister(p PagePersister) Option {
	return func(s *Store) { s.persister = p }
}

// WithListeners attaches outside-click dismissal of the active selection to r.
func WithListeners(r ListenerRegistry) Option {
	return func(s *Store) { s.listeners = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides uuid ids.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		pages:  make(map[int]*pageState),
		logger: slog.Default(),
		newID:  func() string { return uuid.New().String() },
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) page(n int) *pageState {
	p, ok := s.pages[n]
	if !ok {
		p = &pageState{}
		s.pages[n] = p
	}
	return p
}

// Restore replaces a page's lists with previously persisted data without
// writing it back.
func (s *Store) Restore(page int, annotations []Annotation, pending []Highlight) {
	p := s.page(page)
	p.annotations = append([]Annotation(nil), annotations...)
	for i := range p.annotations {
		p.annotations[i].PageNumber = page
	}
	p.pending = append([]Highlight(nil), pending...)
}

// Loaded reports whether the page has been restored or mutated.
func (s *Store) Loaded(page int) bool {
	_, ok := s.pages[page]
	return ok
}

func (s *Store) persist(page int) {
	if s.persister == nil {
		return
	}
	p := s.page(page)
	if err := s.persister.SavePage(page, p.annotations, p.pending); err != nil {
		s.logger.Warn("Failed to persist annotations", "page", page, "error", err)
	}
}

// Add commits an annotation immediately. Missing ids and timestamps are
// filled in.
func (s *Store) Add(a Annotation) Annotation {
	if a.ID == "" {
		a.ID = s.newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	p := s.page(a.PageNumber)
	p.annotations = append(p.annotations, a)
	s.persist(a.PageNumber)
	return a.Clone()
}

// AddPending stages a highlight on page and opens the comment editor for
// the pending set.
func (s *Store) AddPending(page int, h Highlight) Highlight {
	if h.ID == "" {
		h.ID = s.newID()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = s.now()
	}
	p := s.page(page)
	p.pending = append(p.pending, h)
	s.persist(page)
	s.Select(Selection{Kind: SelectPending, Page: page, Editing: true})
	return h
}

// DiscardPending drops the page's pending list.
func (s *Store) DiscardPending(page int) {
	p := s.page(page)
	if len(p.pending) == 0 {
		return
	}
	p.pending = nil
	s.closePendingSelection(page)
	s.persist(page)
}

// CommitPendingWithComment turns the whole pending list of page into one
// group annotation carrying text as its first comment. It is a no-op when
// nothing is pending.
func (s *Store) CommitPendingWithComment(page int, text string) (Annotation, bool) {
	p := s.page(page)
	if len(p.pending) == 0 {
		return Annotation{}, false
	}
	now := s.now()
	group := Annotation{
		ID:         s.newID(),
		PageNumber: page,
		Type:       TypeGroup,
		Color:      p.pending[0].Color,
		CreatedAt:  now,
		Highlights: p.pending,
		Comments:   []Comment{{ID: s.newID(), Text: text, CreatedAt: now}},
	}
	p.annotations = append(p.annotations, group)
	p.pending = nil
	s.closePendingSelection(page)
	s.persist(page)
	return group.Clone(), true
}

func (s *Store) locate(id string) (*pageState, int, error) {
	for _, p := range s.pages {
		for i := range p.annotations {
			if p.annotations[i].ID == id {
				return p, i, nil
			}
		}
	}
	return nil, -1, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Find returns a copy of the annotation with id.
func (s *Store) Find(id string) (Annotation, bool) {
	p, i, err := s.locate(id)
	if err != nil {
		return Annotation{}, false
	}
	return p.annotations[i].Clone(), true
}

// EditComment replaces the text of one comment.
func (s *Store) EditComment(id string, index int, text string) error {
	p, i, err := s.locate(id)
	if err != nil {
		return err
	}
	a := &p.annotations[i]
	if index < 0 || index >= len(a.Comments) {
		return fmt.Errorf("comment %d of %s: %w", index, id, ErrIndexOutOfRange)
	}
	a.Comments[index].Text = text
	s.persist(a.PageNumber)
	return nil
}

// AddComment appends a comment to an annotation's thread.
func (s *Store) AddComment(id, text string) (Comment, error) {
	p, i, err := s.locate(id)
	if err != nil {
		return Comment{}, err
	}
	a := &p.annotations[i]
	c := Comment{ID: s.newID(), Text: text, CreatedAt: s.now()}
	a.Comments = append(a.Comments, c)
	s.persist(a.PageNumber)
	return c, nil
}

// DeleteComment removes one comment from an annotation's thread.
func (s *Store) DeleteComment(id string, index int) error {
	p, i, err := s.locate(id)
	if err != nil {
		return err
	}
	a := &p.annotations[i]
	if index < 0 || index >= len(a.Comments) {
		return fmt.Errorf("comment %d of %s: %w", index, id, ErrIndexOutOfRange)
	}
	a.Comments = slices.Delete(a.Comments, index, index+1)
	s.persist(a.PageNumber)
	return nil
}

// DeleteAnnotation removes an annotation. It reports whether id existed.
func (s *Store) DeleteAnnotation(id string) bool {
	p, i, err := s.locate(id)
	if err != nil {
		return false
	}
	page := p.annotations[i].PageNumber
	p.annotations = slices.Delete(p.annotations, i, i+1)
	if s.selection != nil && s.selection.Kind == SelectAnnotation && s.selection.AnnotationID == id {
		s.Deselect()
	}
	s.persist(page)
	return true
}

// EraseHighlight removes one highlight of a group when index is given,
// deleting the group once it is empty. Without an index, or for a
// non-group annotation, the whole annotation is deleted.
func (s *Store) EraseHighlight(id string, index *int) error {
	p, i, err := s.locate(id)
	if err != nil {
		return err
	}
	a := &p.annotations[i]
	if index == nil || a.Type != TypeGroup {
		s.DeleteAnnotation(id)
		return nil
	}
	if *index < 0 || *index >= len(a.Highlights) {
		return fmt.Errorf("highlight %d of %s: %w", *index, id, ErrIndexOutOfRange)
	}
	a.Highlights = slices.Delete(a.Highlights, *index, *index+1)
	if len(a.Highlights) == 0 {
		s.DeleteAnnotation(id)
		return nil
	}
	s.persist(a.PageNumber)
	return nil
}

// MoveNote repositions a sticky note.
func (s *Store) MoveNote(id string, pos geometry.Point) error {
	p, i, err := s.locate(id)
	if err != nil {
		return err
	}
	a := &p.annotations[i]
	if a.Type != TypeComment {
		return fmt.Errorf("%s: %w", id, ErrNotANote)
	}
	clamped := geometry.ClampPoint(pos, noteDragMin, noteDragMax)
	a.Position = &clamped
	s.persist(a.PageNumber)
	return nil
}

// Annotations returns a copy of a page's committed annotations.
func (s *Store) Annotations(page int) []Annotation {
	p, ok := s.pages[page]
	if !ok {
		return nil
	}
	out := make([]Annotation, len(p.annotations))
	for i, a := range p.annotations {
		out[i] = a.Clone()
	}
	return out
}

// Pending returns a copy of a page's pending highlights.
func (s *Store) Pending(page int) []Highlight {
	p, ok := s.pages[page]
	if !ok {
		return nil
	}
	return append([]Highlight(nil), p.pending...)
}

// Pages returns every page holding annotations or pending highlights, ascending.
func (s *Store) Pages() []int {
	pages := make([]int, 0, len(s.pages))
	for n, p := range s.pages {
		if len(p.annotations) > 0 || len(p.pending) > 0 {
			pages = append(pages, n)
		}
	}
	sort.Ints(pages)
	return pages
}

// All returns every committed annotation ordered by page.
func (s *Store) All() []Annotation {
	var out []Annotation
	for _, n := range s.Pages() {
		out = append(out, s.Annotations(n)...)
	}
	return out
}

// Close releases the active selection and its listeners.
func (s *Store) Close() {
	s.Deselect()
}
