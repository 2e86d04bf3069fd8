package workspace

import "github.com/MeKo-Tech/marginalia/internal/geometry"

// View is the live layout of the document pane and the workspace canvas.
// All bounds are screen rectangles; connectors are expressed relative to
// the deck that contains both panes.
type View struct {
	CurrentPage int             `json:"currentPage"`
	Deck        geometry.Bounds `json:"deck"`
	Viewer      geometry.Bounds `json:"viewer"`
	Workspace   geometry.Bounds `json:"workspace"`
}

// Ready reports whether all three panes have been measured.
func (v View) Ready() bool {
	return v.Viewer.Width > 0 && v.Viewer.Height > 0 &&
		v.Workspace.Width > 0 && v.Workspace.Height > 0
}

// Connector is the anchor pair linking an item to one source rectangle.
type Connector struct {
	ItemID    string         `json:"itemId"`
	SegmentID string         `json:"segmentId,omitempty"`
	From      geometry.Point `json:"from"`
	To        geometry.Point `json:"to"`
}

// Connectors computes the connectors of one resolved item. Comments and
// plain clippings yield at most one connector, only when their page is
// displayed; combined clippings yield one per segment on the current page.
func Connectors(res Resolved, v View) []Connector {
	if !v.Ready() {
		return nil
	}
	to := v.Deck.Relative(v.Workspace.ToScreen(res.Item.Position()))

	build := func(segmentID string, rect *geometry.Rect) (Connector, bool) {
		if rect == nil {
			return Connector{}, false
		}
		from := v.Deck.Relative(v.Viewer.ToScreen(rect.Center()))
		return Connector{ItemID: res.Item.ID, SegmentID: segmentID, From: from, To: to}, true
	}

	var out []Connector
	switch {
	case res.Comment != nil:
		if res.Comment.PageNumber != v.CurrentPage {
			return nil
		}
		if c, ok := build("", res.Comment.SourceRect); ok {
			out = append(out, c)
		}
	case res.Clipping != nil && res.Clipping.Combined():
		for _, seg := range res.Clipping.Segments {
			if PrimaryPage(seg.SourcePage) != v.CurrentPage {
				continue
			}
			if c, ok := build(seg.ID, seg.SourceRect); ok {
				out = append(out, c)
			}
		}
	case res.Clipping != nil:
		if PrimaryPage(res.Clipping.SourcePage) != v.CurrentPage {
			return nil
		}
		if c, ok := build("", res.Clipping.SourceRect); ok {
			out = append(out, c)
		}
	}
	return out
}

// AllConnectors computes the connectors of every item that resolves.
func (w *Workspace) AllConnectors(v View) []Connector {
	var out []Connector
	for _, it := range w.items {
		res, ok := w.Resolve(it)
		if !ok {
			continue
		}
		out = append(out, Connectors(res, v)...)
	}
	return out
}

// Layout caches the connectors for the last known view. Any page, zoom,
// scroll or resize change must go through Update; any workspace mutation
// through Invalidate.
type Layout struct {
	view       View
	connectors []Connector
	dirty      bool
}

// NewLayout returns a layout that computes on first use.
func NewLayout() *Layout { return &Layout{dirty: true} }

// Update records a new view and marks the cache stale.
func (l *Layout) Update(v View) {
	l.view = v
	l.dirty = true
}

// SetPage changes the displayed page.
func (l *Layout) SetPage(page int) {
	l.view.CurrentPage = page
	l.dirty = true
}

// View returns the last recorded view.
func (l *Layout) View() View { return l.view }

// Invalidate marks the cache stale after a workspace mutation.
func (l *Layout) Invalidate() { l.dirty = true }

// Connectors returns the cached connectors, recomputing them when stale.
func (l *Layout) Connectors(w *Workspace) []Connector {
	if l.dirty {
		l.connectors = w.AllConnectors(l.view)
		l.dirty = false
	}
	return append([]Connector(nil), l.connectors...)
}
