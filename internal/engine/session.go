// Package engine wires the drawing machine, annotation store, OCR pipeline
// and workspace of one open document into a single event-driven session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/marginalia/internal/annotation"
	"github.com/MeKo-Tech/marginalia/internal/drawing"
	"github.com/MeKo-Tech/marginalia/internal/geometry"
	"github.com/MeKo-Tech/marginalia/internal/ocr"
	"github.com/MeKo-Tech/marginalia/internal/persistence"
	"github.com/MeKo-Tech/marginalia/internal/search"
	"github.com/MeKo-Tech/marginalia/internal/workspace"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("engine: session closed")

// ErrEmptyComment is returned when committing pending highlights without text.
var ErrEmptyComment = errors.New("engine: comment text is empty")

// OCR is the recognition pipeline a session drives.
type OCR interface {
	RunPage(ctx context.Context, page int) (ocr.Result, error)
	EnsurePage(ctx context.Context, page int) (ocr.Result, error)
	RunAll(ctx context.Context, total int) (int, error)
	ExtractArea(ctx context.Context, page int, r geometry.Rect) (*ocr.Result, error)
	Result(page int) (ocr.Result, bool)
	Results() map[int]ocr.Result
	Progress() map[string]ocr.Progress
	IsRunning() bool
	Close() error
}

var _ OCR = (*ocr.Pipeline)(nil)

// Config holds session behavior settings.
type Config struct {
	// MinShapeSize is the normalized drag threshold below which strokes are dropped.
	MinShapeSize float64
	// AutoOCR recognizes uncached pages on navigation when the pipeline is idle.
	AutoOCR bool
	// Tools is the initial tool state.
	Tools ToolState
}

// DefaultConfig returns the standard session settings.
func DefaultConfig() Config {
	return Config{
		MinShapeSize: drawing.DefaultMinShapeSize,
		AutoOCR:      true,
		Tools:        DefaultToolState(),
	}
}

// ClipHandler observes asynchronous clip extractions. Exactly one of clip
// and err is set; both are zero when the area held no text.
type ClipHandler func(clip *workspace.Clipping, err error)

// Session is one open document. All methods are safe for concurrent use;
// state changes are serialized by a single lock.
type Session struct {
	mu sync.Mutex

	document   string
	totalPages int
	cfg        Config
	tools      ToolState
	page       int
	overlays   map[int]geometry.Bounds
	filter     annotation.Filter
	flash      *workspace.Target

	store     *annotation.Store
	workspace *workspace.Workspace
	bookmarks *persistence.Bookmarks
	machine   *drawing.Machine
	drags     drawing.DragTracker
	listeners *annotation.Listeners
	layout    *workspace.Layout
	pipeline  OCR
	text      search.TextSource

	onClip ClipHandler
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// Option configures a Session.
type Option func(*Session)

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithStore uses an existing annotation store. The store must have been
// created with the session's listener registry to get outside-click
// dismissal; see Listeners.
func WithStore(st *annotation.Store) Option {
	return func(s *Session) { s.store = st }
}

// WithWorkspace uses an existing workspace.
func WithWorkspace(w *workspace.Workspace) Option {
	return func(s *Session) { s.workspace = w }
}

// WithBookmarks uses an existing bookmark list.
func WithBookmarks(b *persistence.Bookmarks) Option {
	return func(s *Session) { s.bookmarks = b }
}

// WithListeners uses an existing listener registry.
func WithListeners(l *annotation.Listeners) Option {
	return func(s *Session) { s.listeners = l }
}

// WithOCR attaches a recognition pipeline.
func WithOCR(p OCR) Option {
	return func(s *Session) { s.pipeline = p }
}

// WithTextSource attaches the document text layer used by search.
func WithTextSource(t search.TextSource) Option {
	return func(s *Session) { s.text = t }
}

// WithClipHandler observes asynchronous clip extractions.
func WithClipHandler(h ClipHandler) Option {
	return func(s *Session) { s.onClip = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a session for a document with totalPages pages, showing
// page 1.
func New(document string, totalPages int, opts ...Option) *Session {
	s := &Session{
		document:   document,
		totalPages: totalPages,
		cfg:        DefaultConfig(),
		page:       1,
		overlays:   make(map[int]geometry.Bounds),
		filter:     annotation.AllVisible(),
		layout:     workspace.NewLayout(),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.listeners == nil {
		s.listeners = annotation.NewListeners()
	}
	if s.store == nil {
		s.store = annotation.NewStore(annotation.WithListeners(s.listeners), annotation.WithLogger(s.logger))
	}
	if s.workspace == nil {
		s.workspace = workspace.New(workspace.WithLogger(s.logger))
	}
	if s.bookmarks == nil {
		s.bookmarks = persistence.NewBookmarks(nil, nil, s.logger)
	}
	s.tools = s.cfg.Tools
	s.machine = drawing.NewMachine(s.cfg.MinShapeSize)
	s.layout.SetPage(s.page)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Document returns the document id.
func (s *Session) Document() string { return s.document }

// TotalPages returns the page count.
func (s *Session) TotalPages() int { return s.totalPages }

// Listeners returns the registry document-level events are dispatched to.
func (s *Session) Listeners() *annotation.Listeners { return s.listeners }

// CurrentPage returns the displayed page.
func (s *Session) CurrentPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// WithAnnotations runs fn against the annotation store under the session lock.
func (s *Session) WithAnnotations(fn func(*annotation.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return fn(s.store)
}

// WithWorkspace runs fn against the workspace under the session lock.
// Cached connectors are recomputed afterwards.
func (s *Session) WithWorkspace(fn func(*workspace.Workspace) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	defer s.layout.Invalidate()
	return fn(s.workspace)
}

// WithBookmarks runs fn against the bookmark list under the session lock.
func (s *Session) WithBookmarks(fn func(*persistence.Bookmarks) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return fn(s.bookmarks)
}

// Filter returns a copy of the visible annotation types.
func (s *Session) Filter() annotation.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(annotation.Filter, len(s.filter))
	for k, v := range s.filter {
		out[k] = v
	}
	return out
}

// ToggleFilter flips the visibility of an annotation type.
func (s *Session) ToggleFilter(t annotation.Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter.Toggle(t)
}

// Visible returns the page's annotations that pass the filter.
func (s *Session) Visible(page int) []annotation.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.Apply(s.store.Annotations(page))
}

// CommitPending groups the page's pending highlights under a first
// comment. Blank text is rejected so no group is created without a note.
func (s *Session) CommitPending(page int, text string) (annotation.Annotation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return annotation.Annotation{}, false, ErrClosed
	}
	if isBlank(text) {
		return annotation.Annotation{}, false, ErrEmptyComment
	}
	a, ok := s.store.CommitPendingWithComment(page, text)
	return a, ok, nil
}

// Dispatch forwards a document-level event (pointerdown, touchstart) that
// targeted the element with id target.
func (s *Session) Dispatch(event, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners.Dispatch(event, target)
}

// Wait blocks until background clip extractions and automatic OCR runs
// have settled.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close stops background work, terminates the OCR worker and releases the
// active selection and its listeners.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	s.machine.Cancel()
	s.drags.End()
	s.store.Close()
	s.mu.Unlock()

	s.wg.Wait()
	if s.pipeline != nil {
		if err := s.pipeline.Close(); err != nil {
			return fmt.Errorf("closing session %s: %w", s.document, err)
		}
	}
	return nil
}

func (s *Session) goBackground(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}
