package engine

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/marginalia/internal/annotation"
	"github.com/MeKo-Tech/marginalia/internal/drawing"
	"github.com/MeKo-Tech/marginalia/internal/geometry"
	"github.com/MeKo-Tech/marginalia/internal/workspace"
)

// ErrNoOverlay is returned when a page has no measured overlay.
var ErrNoOverlay = errors.New("engine: page overlay not measured")

// PointerEvent is a pointer sample in screen coordinates.
type PointerEvent struct {
	drawing.PointerEvent
	// Page is the page whose overlay the pointer is over, 0 for none.
	Page int
	// Target is the id of the element under the pointer.
	Target string
}

// Outcome is what a pointer release produced. At most one of Annotation
// and Pending is set.
type Outcome struct {
	Annotation *annotation.Annotation
	Pending    *annotation.Highlight
	// CommentPrompt asks the caller to open the comment editor for the
	// page's pending highlights.
	CommentPrompt bool
	// Clip is the area handed to OCR extraction; the clipping arrives
	// through the ClipHandler.
	Clip             *geometry.Rect
	WorkspaceComment *workspace.Comment
	Drag             *drawing.DragSession
}

// SetOverlay records the on-screen rectangle of a page's drawing overlay.
func (s *Session) SetOverlay(page int, b geometry.Bounds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlays[page] = b
}

// RemoveOverlay forgets a page overlay once it is no longer rendered.
func (s *Session) RemoveOverlay(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overlays, page)
}

func contains(b geometry.Bounds, x, y float64) bool {
	return b.Width > 0 && b.Height > 0 &&
		x >= b.Left && x <= b.Left+b.Width && y >= b.Top && y <= b.Top+b.Height
}

func normalizedIn(b geometry.Bounds, x, y float64) (geometry.Point, bool) {
	if b.Width <= 0 || b.Height <= 0 {
		return geometry.Point{}, false
	}
	rel := b.Relative(geometry.Point{X: x, Y: y})
	return geometry.Point{X: rel.X / b.Width, Y: rel.Y / b.Height}, true
}

// PointerDown dispatches the outside-click event and starts a stroke, a
// bookmark or a sticky note depending on the tool. It reports whether the
// press was consumed.
func (s *Session) PointerDown(ev PointerEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.listeners.Dispatch(annotation.EventPointerDown, ev.Target)

	overlay, ok := s.overlays[ev.Page]
	if !ok || !ev.OnBackground {
		return false
	}

	switch s.tools.Tool {
	case drawing.ToolBookmark:
		p, ok := normalizedIn(overlay, ev.X, ev.Y)
		if !ok {
			return false
		}
		s.bookmarks.Add(ev.Page, p, s.tools.Color, "")
		return true
	case drawing.ToolComment:
		p, ok := normalizedIn(overlay, ev.X, ev.Y)
		if !ok {
			return false
		}
		note := s.store.Add(annotation.Note(ev.Page, p, "", "", s.tools.Color))
		s.store.Select(annotation.Selection{Kind: annotation.SelectAnnotation, Page: ev.Page, AnnotationID: note.ID, Editing: true})
		return true
	}
	return s.machine.Down(s.tools.Tool, ev.Page, overlay, ev.PointerEvent, s.tools.Stroke)
}

// BeginDrag starts repositioning a note, bookmark or workspace item. grab
// is the pointer position normalized to the element's container: the page
// for notes and bookmarks, the workspace canvas for items.
func (s *Session) BeginDrag(kind drawing.DragKind, id string, pointerID int, grab geometry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var pos geometry.Point
	page := 0
	switch kind {
	case drawing.DragAnnotation:
		a, ok := s.store.Find(id)
		if !ok {
			return fmt.Errorf("%w: %s", annotation.ErrNotFound, id)
		}
		if a.Type != annotation.TypeComment || a.Position == nil {
			return fmt.Errorf("%s: %w", id, annotation.ErrNotANote)
		}
		pos, page = *a.Position, a.PageNumber
	case drawing.DragBookmark:
		bm, ok := s.bookmarks.Get(id)
		if !ok {
			return fmt.Errorf("bookmark %s: not found", id)
		}
		pos, page = bm.Position, bm.PageNumber
	case drawing.DragWorkspaceItem:
		it, ok := s.workspace.Item(id)
		if !ok {
			return fmt.Errorf("%w: item %s", workspace.ErrNotFound, id)
		}
		pos = it.Position()
	default:
		return fmt.Errorf("unknown drag kind %q", kind)
	}

	s.machine.Cancel()
	s.drags.Begin(drawing.DragSession{
		ID:        id,
		Kind:      kind,
		PointerID: pointerID,
		Offset:    geometry.Point{X: grab.X - pos.X, Y: grab.Y - pos.Y},
		Page:      page,
	})
	return nil
}

// PointerMove moves the dragged element or extends the active stroke.
func (s *Session) PointerMove(ev PointerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if sess, ok := s.drags.Move(ev.PointerID); ok {
		s.applyDrag(sess, ev)
		return
	}
	s.machine.Move(ev.PointerEvent)
}

func (s *Session) applyDrag(sess drawing.DragSession, ev PointerEvent) {
	var container geometry.Bounds
	if sess.Kind == drawing.DragWorkspaceItem {
		container = s.layout.View().Workspace
	} else {
		container = s.overlays[sess.Page]
	}
	p, ok := normalizedIn(container, ev.X, ev.Y)
	if !ok {
		return
	}
	target := sess.Target(p)

	var err error
	switch sess.Kind {
	case drawing.DragAnnotation:
		err = s.store.MoveNote(sess.ID, target)
	case drawing.DragBookmark:
		_, err = s.bookmarks.Move(sess.ID, target)
	case drawing.DragWorkspaceItem:
		_, err = s.workspace.MoveItem(sess.ID, target)
		s.layout.Invalidate()
	}
	if err != nil {
		s.logger.Warn("drag target vanished", "kind", string(sess.Kind), "id", sess.ID, "error", err)
	}
}

// PointerUp ends a drag or finalizes the active stroke.
func (s *Session) PointerUp(ev PointerEvent) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Outcome{}, ErrClosed
	}

	if sess, ok := s.drags.Move(ev.PointerID); ok {
		s.applyDrag(sess, ev)
		s.drags.End()
		return Outcome{Drag: &sess}, nil
	}

	state := s.machine.State()
	if !state.Drawing {
		return Outcome{}, nil
	}
	inOverlay := contains(s.overlays[state.Page], ev.X, ev.Y)
	stroke, ok := s.machine.Up(ev.PointerEvent, inOverlay)
	if !ok {
		return Outcome{}, nil
	}
	return s.finishStroke(stroke)
}

// PointerCancel aborts the drag or stroke of a pointer.
func (s *Session) PointerCancel(pointerID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.drags.Active(); ok && sess.PointerID == pointerID {
		s.drags.End()
	}
	s.machine.Cancel()
}

// Preview returns the in-progress shape for live rendering.
func (s *Session) Preview() (drawing.State, geometry.Shape, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shape, ok := s.machine.Preview()
	return s.machine.State(), shape, ok
}

func (s *Session) finishStroke(st drawing.Stroke) (Outcome, error) {
	switch st.Tool {
	case drawing.ToolClipArea:
		r := *st.Shape.Rect
		if err := s.requestClip(st.Page, r); err != nil {
			return Outcome{}, err
		}
		return Outcome{Clip: &r}, nil

	case drawing.ToolRectHighlight:
		h := annotation.Highlight{Shape: st.Shape, Color: s.tools.Color}
		if s.tools.CommitMode == CommitPending {
			p := s.store.AddPending(st.Page, h)
			return Outcome{Pending: &p, CommentPrompt: true}, nil
		}
		a := s.store.Add(annotation.AreaHighlight(st.Page, *st.Shape.Rect, s.tools.Color))
		return Outcome{Annotation: &a}, nil

	case drawing.ToolFreehand:
		h := annotation.Highlight{Shape: st.Shape, Color: s.tools.Color, StrokeWidth: st.StrokeWidth, Opacity: st.Opacity}
		var out Outcome
		if s.tools.CommitMode == CommitPending {
			p := s.store.AddPending(st.Page, h)
			out.Pending, out.CommentPrompt = &p, true
		} else {
			a := s.store.Add(annotation.FreehandStroke(st.Page, h, string(st.Mode)))
			out.Annotation = &a
		}
		if s.tools.FreehandComments {
			c, err := s.freehandComment(st)
			if err != nil {
				return out, err
			}
			out.WorkspaceComment = c
		}
		return out, nil
	}
	return Outcome{}, nil
}

func (s *Session) freehandComment(st drawing.Stroke) (*workspace.Comment, error) {
	bounds, ok := st.Shape.Bounds()
	if !ok {
		return nil, nil
	}
	content := s.tools.FreehandCommentText
	if isBlank(content) {
		content = FreehandCommentQuote
	}
	c, _, err := s.workspace.AddComment(workspace.NewComment{
		Content:    content,
		QuoteText:  FreehandCommentQuote,
		PageNumber: st.Page,
		SourceRect: &bounds,
		SourceType: workspace.CommentFromFreehand,
		Color:      s.tools.Color,
	})
	if err != nil {
		return nil, err
	}
	s.layout.Invalidate()
	return &c, nil
}
