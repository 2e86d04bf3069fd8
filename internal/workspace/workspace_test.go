package workspace

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

type recordingPersister struct {
	saved []State
	err   error
}

func (p *recordingPersister) SaveWorkspace(st State) error {
	p.saved = append(p.saved, st)
	return p.err
}

func newTestWorkspace(opts ...Option) *Workspace {
	n := 0
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	defaults := []Option{
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
		WithClock(func() time.Time { return base }),
		WithRandom(func() float64 { return 0.5 }),
	}
	return New(append(defaults, opts...)...)
}

func rectPtr(x, y, w, h float64) *geometry.Rect {
	return &geometry.Rect{X: x, Y: y, Width: w, Height: h}
}

func mustClip(t *testing.T, w *Workspace, content string, page int, r *geometry.Rect) Clipping {
	t.Helper()
	c, err := w.AddClipping(NewClipping{Content: content, Page: page, Rect: r})
	require.NoError(t, err)
	return c
}

func TestAddClipping(t *testing.T) {
	w := newTestWorkspace()
	first := mustClip(t, w, "  alpha ", 2, rectPtr(0.1, 0.1, 0.2, 0.1))
	second, err := w.AddClipping(NewClipping{Content: "beta", Page: 4, Source: SourceOCR, Confidence: 87})
	require.NoError(t, err)

	assert.Equal(t, "alpha", first.Content)
	assert.Equal(t, SourcePDF, first.Source)
	assert.Equal(t, "2", first.SourcePage)
	assert.Equal(t, SourceOCR, second.Source)
	assert.Nil(t, second.SourceRect)

	clips := w.Clippings()
	require.Len(t, clips, 2)
	assert.Equal(t, second.ID, clips[0].ID, "newest first")

	_, err = w.AddClipping(NewClipping{Content: "   "})
	require.ErrorIs(t, err, ErrEmptyClipping)
}

func TestReorderClipping(t *testing.T) {
	w := newTestWorkspace()
	a := mustClip(t, w, "a", 1, nil)
	b := mustClip(t, w, "b", 1, nil)
	c := mustClip(t, w, "c", 1, nil)
	// list is c, b, a

	require.NoError(t, w.ReorderClipping(c.ID, -1))
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, clippingIDs(w), "moving the first up is a no-op")

	require.NoError(t, w.ReorderClipping(c.ID, 1))
	assert.Equal(t, []string{b.ID, c.ID, a.ID}, clippingIDs(w))

	require.NoError(t, w.ReorderClipping(a.ID, 1))
	assert.Equal(t, []string{b.ID, c.ID, a.ID}, clippingIDs(w))

	require.ErrorIs(t, w.ReorderClipping("missing", 1), ErrNotFound)
}

func clippingIDs(w *Workspace) []string {
	var ids []string
	for _, c := range w.Clippings() {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestCombineClippings(t *testing.T) {
	w := newTestWorkspace()
	a := mustClip(t, w, "first", 2, rectPtr(0.1, 0.1, 0.2, 0.1))
	b := mustClip(t, w, "second", 5, rectPtr(0.5, 0.5, 0.1, 0.1))
	other := mustClip(t, w, "untouched", 1, nil)
	itemA, err := w.PlaceItem(ItemClip, a.ID, geometry.Point{X: 0.3, Y: 0.3})
	require.NoError(t, err)

	combined, err := w.CombineClippings([]string{a.ID, b.ID})
	require.NoError(t, err)

	// list order was other, b, a
	require.Len(t, combined.Segments, 2)
	assert.Equal(t, b.ID, combined.Segments[0].ID)
	assert.Equal(t, "Segment 1", combined.Segments[0].Label)
	assert.Equal(t, "5", combined.Segments[0].SourcePage)
	assert.Equal(t, b.SourceRect, combined.Segments[0].SourceRect)
	assert.Equal(t, a.ID, combined.Segments[1].ID)
	assert.Equal(t, a.SourceRect, combined.Segments[1].SourceRect)
	assert.Equal(t, "Segment 1: second\nSegment 2: first", combined.Content)
	assert.Equal(t, "5, 2", combined.SourcePage)
	assert.Equal(t, b.SourceRect, combined.SourceRect)

	assert.Equal(t, []string{combined.ID, other.ID}, clippingIDs(w))
	_, ok := w.Item(itemA.ID)
	assert.False(t, ok, "items of combined originals are pruned")

	_, err = w.CombineClippings([]string{other.ID, "missing"})
	require.ErrorIs(t, err, ErrTooFewClippings)
}

func TestCombineSelection(t *testing.T) {
	w := newTestWorkspace()
	a := mustClip(t, w, "a", 1, nil)
	b := mustClip(t, w, "b", 2, nil)

	require.NoError(t, w.ToggleSelection(a.ID))
	_, err := w.CombineSelection()
	require.ErrorIs(t, err, ErrTooFewClippings)

	require.NoError(t, w.ToggleSelection(b.ID))
	require.NoError(t, w.ToggleSelection(b.ID))
	assert.Equal(t, []string{a.ID}, w.Selection())
	require.NoError(t, w.ToggleSelection(b.ID))

	combined, err := w.CombineSelection()
	require.NoError(t, err)
	assert.Len(t, combined.Segments, 2)
	assert.Empty(t, w.Selection())
	require.ErrorIs(t, w.ToggleSelection("missing"), ErrNotFound)
}

func TestRemoveClippingPrunesItems(t *testing.T) {
	w := newTestWorkspace()
	clip := mustClip(t, w, "text", 1, rectPtr(0.1, 0.1, 0.1, 0.1))
	c, commentItem, err := w.AddComment(NewComment{Content: "note", PageNumber: 1, SourceRect: rectPtr(0, 0, 0.1, 0.1)})
	require.NoError(t, err)

	i1, err := w.PlaceItem(ItemClip, clip.ID, geometry.Point{X: 0.2, Y: 0.2})
	require.NoError(t, err)
	i2, err := w.PlaceItem(ItemClip, clip.ID, geometry.Point{X: 0.6, Y: 0.6})
	require.NoError(t, err)
	require.NoError(t, w.ToggleSelection(clip.ID))

	require.NoError(t, w.RemoveClipping(clip.ID))

	_, ok := w.Item(i1.ID)
	assert.False(t, ok)
	_, ok = w.Item(i2.ID)
	assert.False(t, ok)
	kept, ok := w.Item(commentItem.ID)
	require.True(t, ok, "comment items survive clipping deletion")
	assert.Equal(t, c.ID, kept.SourceID)
	assert.Empty(t, w.Selection())

	require.ErrorIs(t, w.RemoveClipping(clip.ID), ErrNotFound)
}

func TestAddComment(t *testing.T) {
	w := newTestWorkspace()

	_, _, err := w.AddComment(NewComment{Content: "  ", SourceRect: rectPtr(0, 0, 1, 1)})
	require.ErrorIs(t, err, ErrEmptyComment)
	_, _, err = w.AddComment(NewComment{Content: "x"})
	require.ErrorIs(t, err, ErrNoSourceRect)

	var ys []float64
	for i := range 6 {
		c, it, err := w.AddComment(NewComment{
			Content:    fmt.Sprintf(" comment %d ", i),
			PageNumber: 3,
			SourceRect: rectPtr(0.1, 0.1, 0.1, 0.1),
			Color:      "#22c55e",
		})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("comment %d", i), c.Content)
		assert.Equal(t, CommentFromText, c.SourceType)
		assert.Equal(t, ItemComment, it.Type)
		assert.Equal(t, c.ID, it.SourceID)
		assert.InDelta(t, 0.76, it.X, 1e-9)
		ys = append(ys, it.Y)
	}
	want := []float64{0.18, 0.32, 0.46, 0.60, 0.74, 0.28}
	for i := range want {
		assert.InDelta(t, want[i], ys[i], 1e-9, "comment %d", i)
	}
	assert.Len(t, w.Comments(), 6)
}

func TestAddCommentJitterIsClamped(t *testing.T) {
	w := newTestWorkspace(WithRandom(func() float64 { return 10 }))
	_, it, err := w.AddComment(NewComment{Content: "x", SourceRect: rectPtr(0, 0, 0.1, 0.1)})
	require.NoError(t, err)
	assert.InDelta(t, 0.95, it.X, 1e-9)
}

func TestDeleteComment(t *testing.T) {
	w := newTestWorkspace()
	c, it, err := w.AddComment(NewComment{Content: "x", SourceRect: rectPtr(0, 0, 0.1, 0.1)})
	require.NoError(t, err)

	require.NoError(t, w.DeleteComment(c.ID))
	_, ok := w.Item(it.ID)
	assert.False(t, ok)
	require.ErrorIs(t, w.DeleteComment(c.ID), ErrNotFound)
}

func TestPlaceAndMoveItem(t *testing.T) {
	w := newTestWorkspace()
	clip := mustClip(t, w, "x", 1, nil)

	it, err := w.PlaceItem(ItemClip, clip.ID, geometry.Point{X: -1, Y: 1.5})
	require.NoError(t, err)
	assert.InDelta(t, ItemMin, it.X, 1e-9)
	assert.InDelta(t, ItemMax, it.Y, 1e-9)

	moved, err := w.MoveItem(it.ID, geometry.Point{X: 0.5, Y: 0.99})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, moved.X, 1e-9)
	assert.InDelta(t, ItemMax, moved.Y, 1e-9)

	_, err = w.PlaceItem(ItemClip, "missing", geometry.Point{})
	require.ErrorIs(t, err, ErrUnknownSource)
	_, err = w.PlaceItem(ItemComment, clip.ID, geometry.Point{})
	require.ErrorIs(t, err, ErrUnknownSource)
	_, err = w.MoveItem("missing", geometry.Point{})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, w.RemoveItem(it.ID))
	assert.Empty(t, w.Items())
	_, ok := w.Clipping(clip.ID)
	assert.True(t, ok)
	require.ErrorIs(t, w.RemoveItem(it.ID), ErrNotFound)
}

func TestRestorePrunesOrphans(t *testing.T) {
	w := newTestWorkspace()
	w.Restore(State{
		Clippings: []Clipping{{ID: "c1", Content: "x", SourcePage: "1"}},
		Items: []Item{
			{ID: "i1", Type: ItemClip, SourceID: "c1"},
			{ID: "i2", Type: ItemClip, SourceID: "gone"},
			{ID: "i3", Type: ItemComment, SourceID: "gone"},
			{ID: "i4", Type: "unknown", SourceID: "c1"},
		},
	})
	items := w.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "i1", items[0].ID)
}

func TestLocate(t *testing.T) {
	w := newTestWorkspace()
	a := mustClip(t, w, "a", 2, rectPtr(0.1, 0.1, 0.2, 0.2))
	b := mustClip(t, w, "b", 5, rectPtr(0.5, 0.5, 0.2, 0.2))
	plain := mustClip(t, w, "plain", 7, rectPtr(0.3, 0.3, 0.1, 0.1))
	combined, err := w.CombineClippings([]string{a.ID, b.ID})
	require.NoError(t, err)

	combinedItem, err := w.PlaceItem(ItemClip, combined.ID, geometry.Point{X: 0.5, Y: 0.5})
	require.NoError(t, err)
	plainItem, err := w.PlaceItem(ItemClip, plain.ID, geometry.Point{X: 0.5, Y: 0.5})
	require.NoError(t, err)
	c, commentItem, err := w.AddComment(NewComment{Content: "n", PageNumber: 9, SourceRect: rectPtr(0.2, 0.2, 0.1, 0.1)})
	require.NoError(t, err)

	target, err := w.Locate(combinedItem.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, target.Page, "segment on the current page wins")
	assert.Equal(t, a.SourceRect, target.Rect)

	target, err = w.Locate(combinedItem.ID, 8)
	require.NoError(t, err)
	assert.Equal(t, 5, target.Page, "falls back to the first segment")
	assert.Equal(t, ClipFlashColor, target.Color)

	target, err = w.Locate(plainItem.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, target.Page)

	target, err = w.Locate(commentItem.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, c.PageNumber, target.Page)
	assert.Equal(t, CommentFlashColor, target.Color)

	_, err = w.Locate("missing", 1)
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 5, combined.DropTarget())
	assert.Equal(t, 7, plain.DropTarget())
}

func TestPersistence(t *testing.T) {
	p := &recordingPersister{}
	w := newTestWorkspace(WithPersister(p))
	clip := mustClip(t, w, "x", 1, nil)
	_, err := w.PlaceItem(ItemClip, clip.ID, geometry.Point{X: 0.5, Y: 0.5})
	require.NoError(t, err)

	require.Len(t, p.saved, 2)
	assert.Len(t, p.saved[1].Items, 1)

	p.err = errors.New("disk full")
	require.NoError(t, w.RemoveClipping(clip.ID), "persist failures are logged, not returned")
	assert.Empty(t, p.saved[2].Clippings)
	assert.Empty(t, p.saved[2].Items)
}

func TestPrimaryPage(t *testing.T) {
	tests := map[string]int{
		"3":       3,
		"5, 2":    5,
		" 7 ,1":   7,
		"":        1,
		"abc":     1,
		"12,x, 4": 12,
	}
	for in, want := range tests {
		assert.Equal(t, want, PrimaryPage(in), in)
	}
}
