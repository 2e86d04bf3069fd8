package drawing

import "github.com/MeKo-Tech/marginalia/internal/geometry"

// DragKind identifies what a drag session repositions.
type DragKind string

const (
	DragAnnotation    DragKind = "annotation"
	DragBookmark      DragKind = "bookmark"
	DragWorkspaceItem DragKind = "workspaceItem"
)

// DragSession is a pointer-captured reposition of one element. Offset is
// the grab point minus the element position, in the element's normalized
// space.
type DragSession struct {
	ID        string
	Kind      DragKind
	PointerID int
	Offset    geometry.Point
	Page      int
}

// Target returns the element position for a pointer at p.
func (d DragSession) Target(p geometry.Point) geometry.Point {
	return geometry.Point{X: p.X - d.Offset.X, Y: p.Y - d.Offset.Y}
}

// DragTracker holds at most one live drag session.
type DragTracker struct {
	active *DragSession
}

// Begin starts a session, replacing any previous one.
func (t *DragTracker) Begin(s DragSession) {
	t.active = &s
}

// Active returns the live session.
func (t *DragTracker) Active() (DragSession, bool) {
	if t.active == nil {
		return DragSession{}, false
	}
	return *t.active, true
}

// Move returns the session captured by pointerID. The pointer is captured
// so the session is reported regardless of which element is under it.
func (t *DragTracker) Move(pointerID int) (DragSession, bool) {
	if t.active == nil || t.active.PointerID != pointerID {
		return DragSession{}, false
	}
	return *t.active, true
}

// End clears the session on release or pointer-cancel. It returns the
// session that was active, if any.
func (t *DragTracker) End() (DragSession, bool) {
	s, ok := t.Active()
	t.active = nil
	return s, ok
}
