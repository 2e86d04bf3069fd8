package support

import (
	"fmt"
	"math"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/marginalia/internal/annotation"
	"github.com/MeKo-Tech/marginalia/internal/drawing"
	"github.com/MeKo-Tech/marginalia/internal/engine"
)

const tolerance = 1e-9

func (testCtx *TestContext) aDocumentWithPages(pages int) error {
	return testCtx.StartSession(pages)
}

func (testCtx *TestContext) theToolInMode(tool, mode string) error {
	t, ok := drawing.ParseTool(tool)
	if !ok {
		return fmt.Errorf("unknown tool %q", tool)
	}
	m, err := engine.ParseCommitMode(mode)
	if err != nil {
		return err
	}
	ts := testCtx.Session.Tools()
	ts.Tool, ts.CommitMode = t, m
	return testCtx.Session.SetTools(ts)
}

func (testCtx *TestContext) iDragOnPage(x1, y1, x2, y2 float64, page int) error {
	from, to := toScreen(x1, y1), toScreen(x2, y2)
	ev := func(x, y float64) engine.PointerEvent {
		return engine.PointerEvent{
			PointerEvent: drawing.PointerEvent{PointerID: 1, X: x, Y: y, OnBackground: true},
			Page:         page,
			Target:       "overlay",
		}
	}
	if !testCtx.Session.PointerDown(ev(from.X, from.Y)) {
		return fmt.Errorf("pointer-down on page %d did not start a stroke", page)
	}
	testCtx.Session.PointerMove(ev(to.X, to.Y))
	testCtx.LastOutcome, testCtx.LastError = testCtx.Session.PointerUp(ev(to.X, to.Y))
	return testCtx.LastError
}

func (testCtx *TestContext) annotations(page int) (anns []annotation.Annotation, pending []annotation.Highlight) {
	_ = testCtx.Session.WithAnnotations(func(st *annotation.Store) error {
		anns, pending = st.Annotations(page), st.Pending(page)
		return nil
	})
	return anns, pending
}

func (testCtx *TestContext) pageHasAnnotations(page, n int) error {
	anns, _ := testCtx.annotations(page)
	if len(anns) != n {
		return fmt.Errorf("page %d has %d annotations, want %d", page, len(anns), n)
	}
	return nil
}

func (testCtx *TestContext) pageHasPendingHighlights(page, n int) error {
	_, pending := testCtx.annotations(page)
	if len(pending) != n {
		return fmt.Errorf("page %d has %d pending highlights, want %d", page, len(pending), n)
	}
	return nil
}

func (testCtx *TestContext) pageHasAnnotationAt(page int, typ string, x, y, w, h float64) error {
	anns, _ := testCtx.annotations(page)
	for _, a := range anns {
		if string(a.Type) != typ || a.Shape == nil || a.Shape.Rect == nil {
			continue
		}
		r := a.Shape.Rect
		if math.Abs(r.X-x) < tolerance && math.Abs(r.Y-y) < tolerance &&
			math.Abs(r.Width-w) < tolerance && math.Abs(r.Height-h) < tolerance {
			return nil
		}
	}
	return fmt.Errorf("no %s annotation at (%g, %g) sized %g by %g on page %d: %+v", typ, x, y, w, h, page, anns)
}

func (testCtx *TestContext) aCommentPromptIsRequested() error {
	if !testCtx.LastOutcome.CommentPrompt {
		return fmt.Errorf("expected the comment prompt to open")
	}
	return nil
}

func (testCtx *TestContext) iCommentOnPending(text string, page int) error {
	_, _, err := testCtx.Session.CommitPending(page, text)
	return err
}

func (testCtx *TestContext) group(page int) (annotation.Annotation, error) {
	anns, _ := testCtx.annotations(page)
	for _, a := range anns {
		if a.Type == annotation.TypeGroup {
			return a, nil
		}
	}
	return annotation.Annotation{}, fmt.Errorf("no group annotation on page %d", page)
}

func (testCtx *TestContext) pageHasGroup(page, highlights int, comment string) error {
	g, err := testCtx.group(page)
	if err != nil {
		return err
	}
	if len(g.Highlights) != highlights {
		return fmt.Errorf("group has %d highlights, want %d", len(g.Highlights), highlights)
	}
	if len(g.Comments) != 1 || g.Comments[0].Text != comment {
		return fmt.Errorf("group comments are %+v, want [%q]", g.Comments, comment)
	}
	return nil
}

func (testCtx *TestContext) iEraseHighlightOfGroup(index, page int) error {
	g, err := testCtx.group(page)
	if err != nil {
		return err
	}
	idx := index - 1
	return testCtx.Session.WithAnnotations(func(st *annotation.Store) error {
		return st.EraseHighlight(g.ID, &idx)
	})
}

func (testCtx *TestContext) pageHasNoGroup(page int) error {
	if _, err := testCtx.group(page); err == nil {
		return fmt.Errorf("page %d still has a group annotation", page)
	}
	return nil
}

// RegisterAnnotationSteps registers drawing and annotation steps.
func (testCtx *TestContext) RegisterAnnotationSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a document with (\d+) pages$`, testCtx.aDocumentWithPages)
	sc.Step(`^the "([^"]*)" tool in (immediate|pending) mode$`, testCtx.theToolInMode)
	sc.Step(`^I drag from \(([\d.]+), ([\d.]+)\) to \(([\d.]+), ([\d.]+)\) on page (\d+)$`, testCtx.iDragOnPage)
	sc.Step(`^page (\d+) has (\d+) annotations?$`, testCtx.pageHasAnnotations)
	sc.Step(`^page (\d+) has (\d+) pending highlights?$`, testCtx.pageHasPendingHighlights)
	sc.Step(`^page (\d+) has a "([^"]*)" annotation at \(([\d.]+), ([\d.]+)\) sized ([\d.]+) by ([\d.]+)$`,
		testCtx.pageHasAnnotationAt)
	sc.Step(`^a comment prompt is requested$`, testCtx.aCommentPromptIsRequested)
	sc.Step(`^I comment "([^"]*)" on the pending highlights of page (\d+)$`, testCtx.iCommentOnPending)
	sc.Step(`^page (\d+) has a group with (\d+) highlights and comment "([^"]*)"$`, testCtx.pageHasGroup)
	sc.Step(`^I erase highlight (\d+) of the group on page (\d+)$`, testCtx.iEraseHighlightOfGroup)
	sc.Step(`^page (\d+) has no group$`, testCtx.pageHasNoGroup)
}
