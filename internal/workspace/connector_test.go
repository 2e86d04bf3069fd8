package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

func testView(page int) View {
	return View{
		CurrentPage: page,
		Deck:        geometry.Bounds{Left: 10, Top: 20, Width: 2000, Height: 1000},
		Viewer:      geometry.Bounds{Left: 10, Top: 20, Width: 800, Height: 1000},
		Workspace:   geometry.Bounds{Left: 1010, Top: 20, Width: 1000, Height: 500},
	}
}

func TestConnectorsPlainClip(t *testing.T) {
	w := newTestWorkspace()
	clip := mustClip(t, w, "x", 3, rectPtr(0.1, 0.2, 0.2, 0.2))
	it, err := w.PlaceItem(ItemClip, clip.ID, geometry.Point{X: 0.5, Y: 0.5})
	require.NoError(t, err)
	res, ok := w.Resolve(it)
	require.True(t, ok)

	conns := Connectors(res, testView(3))
	require.Len(t, conns, 1)
	// center (0.2, 0.3) in an 800x1000 viewer at the deck origin
	assert.InDelta(t, 160, conns[0].From.X, 1e-9)
	assert.InDelta(t, 300, conns[0].From.Y, 1e-9)
	// item (0.5, 0.5) in a 1000x500 workspace starting 1000px right of the deck
	assert.InDelta(t, 1500, conns[0].To.X, 1e-9)
	assert.InDelta(t, 250, conns[0].To.Y, 1e-9)
	assert.Equal(t, it.ID, conns[0].ItemID)

	assert.Empty(t, Connectors(res, testView(4)), "other pages draw nothing")
}

func TestConnectorsClipWithoutRect(t *testing.T) {
	w := newTestWorkspace()
	clip := mustClip(t, w, "x", 3, nil)
	it, err := w.PlaceItem(ItemClip, clip.ID, geometry.Point{X: 0.5, Y: 0.5})
	require.NoError(t, err)
	res, _ := w.Resolve(it)
	assert.Empty(t, Connectors(res, testView(3)))
}

func TestConnectorsCombinedClip(t *testing.T) {
	w := newTestWorkspace()
	a := mustClip(t, w, "a", 2, rectPtr(0.1, 0.1, 0.2, 0.2))
	b := mustClip(t, w, "b", 5, rectPtr(0.5, 0.5, 0.2, 0.2))
	c := mustClip(t, w, "c", 2, rectPtr(0.6, 0.1, 0.2, 0.2))
	combined, err := w.CombineClippings([]string{a.ID, b.ID, c.ID})
	require.NoError(t, err)
	it, err := w.PlaceItem(ItemClip, combined.ID, geometry.Point{X: 0.3, Y: 0.3})
	require.NoError(t, err)
	res, _ := w.Resolve(it)

	onTwo := Connectors(res, testView(2))
	require.Len(t, onTwo, 2)
	assert.ElementsMatch(t, []string{a.ID, c.ID}, []string{onTwo[0].SegmentID, onTwo[1].SegmentID})
	assert.Equal(t, onTwo[0].To, onTwo[1].To)

	onFive := Connectors(res, testView(5))
	require.Len(t, onFive, 1)
	assert.Equal(t, b.ID, onFive[0].SegmentID)

	assert.Empty(t, Connectors(res, testView(1)))
}

func TestConnectorsComment(t *testing.T) {
	w := newTestWorkspace()
	_, it, err := w.AddComment(NewComment{Content: "n", PageNumber: 4, SourceRect: rectPtr(0, 0, 0.5, 0.5)})
	require.NoError(t, err)
	res, _ := w.Resolve(it)

	conns := Connectors(res, testView(4))
	require.Len(t, conns, 1)
	assert.InDelta(t, 200, conns[0].From.X, 1e-9)
	assert.Empty(t, Connectors(res, testView(3)))
}

func TestConnectorsUnmeasuredView(t *testing.T) {
	w := newTestWorkspace()
	clip := mustClip(t, w, "x", 1, rectPtr(0.1, 0.1, 0.1, 0.1))
	_, err := w.PlaceItem(ItemClip, clip.ID, geometry.Point{X: 0.5, Y: 0.5})
	require.NoError(t, err)
	assert.Empty(t, w.AllConnectors(View{CurrentPage: 1}))
}

func TestLayoutRecomputesOnViewChanges(t *testing.T) {
	w := newTestWorkspace()
	clip := mustClip(t, w, "x", 1, rectPtr(0.1, 0.1, 0.2, 0.2))
	_, err := w.PlaceItem(ItemClip, clip.ID, geometry.Point{X: 0.5, Y: 0.5})
	require.NoError(t, err)

	l := NewLayout()
	l.Update(testView(1))
	first := l.Connectors(w)
	require.Len(t, first, 1)

	// scroll the viewer by 100px
	v := testView(1)
	v.Viewer.Top -= 100
	l.Update(v)
	scrolled := l.Connectors(w)
	require.Len(t, scrolled, 1)
	assert.InDelta(t, first[0].From.Y-100, scrolled[0].From.Y, 1e-9)
	assert.Equal(t, first[0].To, scrolled[0].To)

	l.SetPage(2)
	assert.Empty(t, l.Connectors(w))
	assert.Equal(t, 2, l.View().CurrentPage)

	l.SetPage(1)
	require.Len(t, l.Connectors(w), 1)
	require.NoError(t, w.RemoveClipping(clip.ID))
	assert.Len(t, l.Connectors(w), 1, "cache is stale until invalidated")
	l.Invalidate()
	assert.Empty(t, l.Connectors(w))
}
