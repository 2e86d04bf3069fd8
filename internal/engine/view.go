package engine

import (
	"github.com/MeKo-Tech/marginalia/internal/annotation"
	"github.com/MeKo-Tech/marginalia/internal/geometry"
	"github.com/MeKo-Tech/marginalia/internal/workspace"
)

// Linked sticky notes are kept inside this band of the page.
const (
	linkedNoteMin = 0.05
	linkedNoteMax = 0.95
)

// UpdateView records a resize, scroll or zoom of the panes. The session's
// current page always wins over v.CurrentPage.
func (s *Session) UpdateView(v workspace.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.CurrentPage = s.page
	s.layout.Update(v)
}

// Connectors returns the connectors for the current view.
func (s *Session) Connectors() []workspace.Connector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout.Connectors(s.workspace)
}

// Locate jumps to the source of a workspace item and flashes it.
func (s *Session) Locate(itemID string) (workspace.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return workspace.Target{}, ErrClosed
	}
	t, err := s.workspace.Locate(itemID, s.page)
	if err != nil {
		return workspace.Target{}, err
	}
	if err := s.navigateLocked(t.Page); err != nil {
		return workspace.Target{}, err
	}
	s.flash = &t
	return t, nil
}

// TakeFlash returns and clears the pending flash highlight.
func (s *Session) TakeFlash() (workspace.Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flash == nil {
		return workspace.Target{}, false
	}
	t := *s.flash
	s.flash = nil
	return t, true
}

// DropClipping places a clipping on the workspace canvas and shows its
// source page.
func (s *Session) DropClipping(clipID string, pos geometry.Point) (workspace.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return workspace.Item{}, ErrClosed
	}
	clip, ok := s.workspace.Clipping(clipID)
	if !ok {
		return workspace.Item{}, workspace.ErrUnknownSource
	}
	it, err := s.workspace.PlaceItem(workspace.ItemClip, clipID, pos)
	if err != nil {
		return workspace.Item{}, err
	}
	s.layout.Invalidate()
	if err := s.navigateLocked(clip.DropTarget()); err != nil {
		s.logger.Debug("drop target outside document", "clip", clipID, "error", err)
	}
	return it, nil
}

// AddWorkspaceComment creates a workspace comment and its canvas item.
// With linkNote, a sticky note carrying the same text is also placed at
// the center of the source rectangle.
func (s *Session) AddWorkspaceComment(in workspace.NewComment, linkNote bool) (workspace.Comment, workspace.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return workspace.Comment{}, workspace.Item{}, ErrClosed
	}
	if in.Color == "" {
		in.Color = s.tools.Color
	}
	c, it, err := s.workspace.AddComment(in)
	if err != nil {
		return workspace.Comment{}, workspace.Item{}, err
	}
	s.layout.Invalidate()

	if linkNote {
		r := in.SourceRect
		center := geometry.Point{
			X: geometry.Clamp(r.X+r.Width/2, linkedNoteMin, linkedNoteMax),
			Y: geometry.Clamp(r.Y+r.Height/2, linkedNoteMin, linkedNoteMax),
		}
		s.store.Add(annotation.Note(in.PageNumber, center, c.Content, c.QuoteText, c.Color))
	}
	return c, it, nil
}
