package annotation

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
	saves map[int]int
	fail  bool
}

func (r *recordingPersister) SavePage(page int, _ []Annotation, _ []Highlight) error {
	if r.saves == nil {
		r.saves = make(map[int]int)
	}
	r.saves[page]++
	if r.fail {
		return errors.New("disk full")
	}
	return nil
}

func newTestStore(opts ...Option) *Store {
	n := 0
	base := []Option{
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }),
	}
	return NewStore(append(base, opts...)...)
}

func freehand(pts ...geometry.Point) Highlight {
	return Highlight{Shape: geometry.NewFreehand(pts), Color: "#1d4ed8", StrokeWidth: 4}
}

func TestCommitPendingWithCommentGroupsAll(t *testing.T) {
	s := newTestStore()
	s.AddPending(2, freehand(geometry.Point{X: 0.1, Y: 0.1}, geometry.Point{X: 0.2, Y: 0.2}))
	s.AddPending(2, freehand(geometry.Point{X: 0.3, Y: 0.3}, geometry.Point{X: 0.4, Y: 0.4}))
	require.Len(t, s.Pending(2), 2)

	sel, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, SelectPending, sel.Kind)

	g, ok := s.CommitPendingWithComment(2, "note")
	require.True(t, ok)
	assert.Equal(t, TypeGroup, g.Type)
	assert.Len(t, g.Highlights, 2)
	require.Len(t, g.Comments, 1)
	assert.Equal(t, "note", g.Comments[0].Text)

	assert.Empty(t, s.Pending(2))
	assert.Len(t, s.Annotations(2), 1)
	_, ok = s.Active()
	assert.False(t, ok, "committing closes the pending editor")
}

func TestCommitPendingWithCommentEmptyIsNoop(t *testing.T) {
	s := newTestStore()
	_, ok := s.CommitPendingWithComment(1, "orphan")
	assert.False(t, ok)
	assert.Empty(t, s.Annotations(1))
	assert.Empty(t, s.Pages())
}

func TestPendingIsPerPage(t *testing.T) {
	s := newTestStore()
	s.AddPending(1, freehand(geometry.Point{}, geometry.Point{X: 1}))
	s.AddPending(4, freehand(geometry.Point{}, geometry.Point{X: 1}))

	_, ok := s.CommitPendingWithComment(1, "x")
	require.True(t, ok)
	assert.Len(t, s.Pending(4), 1)
	assert.Equal(t, []int{1, 4}, s.Pages())
}

func TestEraseHighlight(t *testing.T) {
	t.Run("one of several keeps the group", func(t *testing.T) {
		s := newTestStore()
		s.AddPending(1, freehand(geometry.Point{X: 0.1}))
		s.AddPending(1, freehand(geometry.Point{X: 0.2}))
		s.AddPending(1, freehand(geometry.Point{X: 0.3}))
		g, _ := s.CommitPendingWithComment(1, "c")

		idx := 1
		require.NoError(t, s.EraseHighlight(g.ID, &idx))
		got, ok := s.Find(g.ID)
		require.True(t, ok)
		require.Len(t, got.Highlights, 2)
		assert.InDelta(t, 0.1, got.Highlights[0].Shape.Points[0].X, 1e-12)
		assert.InDelta(t, 0.3, got.Highlights[1].Shape.Points[0].X, 1e-12)
	})

	t.Run("last highlight deletes the group", func(t *testing.T) {
		s := newTestStore()
		s.AddPending(1, freehand(geometry.Point{X: 0.1}))
		g, _ := s.CommitPendingWithComment(1, "c")

		idx := 0
		require.NoError(t, s.EraseHighlight(g.ID, &idx))
		_, ok := s.Find(g.ID)
		assert.False(t, ok)
		assert.Empty(t, s.Annotations(1))
	})

	t.Run("no index deletes the whole item", func(t *testing.T) {
		s := newTestStore()
		a := s.Add(AreaHighlight(1, geometry.Rect{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.1}, DefaultColor))
		require.NoError(t, s.EraseHighlight(a.ID, nil))
		assert.Empty(t, s.Annotations(1))
	})

	t.Run("bad index", func(t *testing.T) {
		s := newTestStore()
		s.AddPending(1, freehand(geometry.Point{X: 0.1}))
		g, _ := s.CommitPendingWithComment(1, "c")
		idx := 5
		assert.ErrorIs(t, s.EraseHighlight(g.ID, &idx), ErrIndexOutOfRange)
	})

	t.Run("unknown id", func(t *testing.T) {
		s := newTestStore()
		assert.ErrorIs(t, s.EraseHighlight("nope", nil), ErrNotFound)
	})
}

func TestCommentLifecycle(t *testing.T) {
	s := newTestStore()
	s.AddPending(3, freehand(geometry.Point{X: 0.1}))
	g, _ := s.CommitPendingWithComment(3, "first")

	c, err := s.AddComment(g.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, "second", c.Text)

	require.NoError(t, s.EditComment(g.ID, 0, "first, edited"))
	got, _ := s.Find(g.ID)
	require.Len(t, got.Comments, 2)
	assert.Equal(t, "first, edited", got.Comments[0].Text)

	require.NoError(t, s.DeleteComment(g.ID, 0))
	got, _ = s.Find(g.ID)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "second", got.Comments[0].Text)

	assert.ErrorIs(t, s.EditComment(g.ID, 3, "x"), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.DeleteComment(g.ID, -1), ErrIndexOutOfRange)
	_, err = s.AddComment("missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReturnedAnnotationsAreCopies(t *testing.T) {
	s := newTestStore()
	s.AddPending(1, freehand(geometry.Point{X: 0.1}))
	g, _ := s.CommitPendingWithComment(1, "c")
	g.Comments[0].Text = "mutated"
	g.Highlights[0].Shape.Points[0].X = 0.9

	got, _ := s.Find(g.ID)
	assert.Equal(t, "c", got.Comments[0].Text)
	assert.InDelta(t, 0.1, got.Highlights[0].Shape.Points[0].X, 1e-12)
}

func TestMoveNoteClamps(t *testing.T) {
	s := newTestStore()
	n := s.Add(Note(1, geometry.Point{X: 0.5, Y: 0.5}, "hello", "", DefaultColor))
	require.NoError(t, s.MoveNote(n.ID, geometry.Point{X: 1.5, Y: -1}))
	got, _ := s.Find(n.ID)
	assert.Equal(t, geometry.Point{X: 0.92, Y: 0.02}, *got.Position)

	h := s.Add(AreaHighlight(1, geometry.Rect{Width: 0.1, Height: 0.1}, DefaultColor))
	assert.ErrorIs(t, s.MoveNote(h.ID, geometry.Point{}), ErrNotANote)
}

func TestDeleteAnnotationClosesSelection(t *testing.T) {
	s := newTestStore()
	a := s.Add(AreaHighlight(1, geometry.Rect{Width: 0.1, Height: 0.1}, DefaultColor))
	s.Select(Selection{Kind: SelectAnnotation, AnnotationID: a.ID})
	_, ok := s.Active()
	require.True(t, ok)

	assert.True(t, s.DeleteAnnotation(a.ID))
	_, ok = s.Active()
	assert.False(t, ok)
	assert.False(t, s.DeleteAnnotation(a.ID))
}

func TestPersisterCalledPerMutation(t *testing.T) {
	p := &recordingPersister{}
	s := newTestStore(WithPersister(p))
	s.AddPending(2, freehand(geometry.Point{X: 0.1}))
	s.CommitPendingWithComment(2, "c")
	assert.Equal(t, 2, p.saves[2])

	p.fail = true
	a := s.Add(AreaHighlight(5, geometry.Rect{Width: 0.1, Height: 0.1}, DefaultColor))
	assert.NotEmpty(t, a.ID, "persistence failures are not fatal")
	assert.Len(t, s.Annotations(5), 1)
}

func TestRestoreAndAll(t *testing.T) {
	s := newTestStore()
	s.Restore(7, []Annotation{{ID: "a", Type: TypeHighlight}}, []Highlight{{ID: "p"}})
	s.Restore(2, []Annotation{{ID: "b", Type: TypeStrike}}, nil)
	assert.True(t, s.Loaded(7))
	assert.False(t, s.Loaded(3))

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, 7, all[1].PageNumber)
	assert.Len(t, s.Pending(7), 1)
}

func TestTextLines(t *testing.T) {
	rects := []geometry.Rect{{X: 0.1, Y: 0.2, Width: 0.5, Height: 0.1}}
	u := TextLines(TypeUnderline, 1, rects, "txt", DefaultColor)
	require.Len(t, u.Lines, 1)
	assert.InDelta(t, 0.29, u.Lines[0].Y1, 1e-12)
	assert.InDelta(t, 0.6, u.Lines[0].X2, 1e-12)

	st := TextLines(TypeStrike, 1, rects, "txt", DefaultColor)
	assert.InDelta(t, 0.25, st.Lines[0].Y1, 1e-12)
}

func TestFilter(t *testing.T) {
	f := AllVisible()
	anns := []Annotation{{Type: TypeHighlight}, {Type: TypeComment}, {Type: TypeGroup}}
	assert.Len(t, f.Apply(anns), 3)
	f.Toggle(TypeComment)
	got := f.Apply(anns)
	require.Len(t, got, 2)
	assert.Equal(t, TypeGroup, got[1].Type)
}
