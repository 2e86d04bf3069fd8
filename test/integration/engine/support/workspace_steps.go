package support

import (
	"fmt"
	"slices"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
	"github.com/MeKo-Tech/marginalia/internal/workspace"
)

func clipRect(page int) *geometry.Rect {
	return &geometry.Rect{X: 0.1 * float64(page), Y: 0.2, Width: 0.3, Height: 0.05}
}

func (testCtx *TestContext) aClippingFromPage(label string, page int) error {
	return testCtx.Session.WithWorkspace(func(w *workspace.Workspace) error {
		c, err := w.AddClipping(workspace.NewClipping{Content: label + " text", Page: page, Rect: clipRect(page)})
		if err != nil {
			return err
		}
		testCtx.Clippings[label] = c.ID
		return nil
	})
}

func (testCtx *TestContext) iPlaceClippingTimes(label string, times int) error {
	id, ok := testCtx.Clippings[label]
	if !ok {
		return fmt.Errorf("unknown clipping %q", label)
	}
	for i := 0; i < times; i++ {
		it, err := testCtx.Session.DropClipping(id, geometry.Point{X: 0.3, Y: 0.2 + 0.2*float64(i)})
		if err != nil {
			return err
		}
		testCtx.Items[label] = append(testCtx.Items[label], it.ID)
	}
	return nil
}

func (testCtx *TestContext) aWorkspaceCommentOnPage(content string, page int) error {
	_, it, err := testCtx.Session.AddWorkspaceComment(workspace.NewComment{
		Content:    content,
		PageNumber: page,
		SourceRect: &geometry.Rect{X: 0.4, Y: 0.4, Width: 0.1, Height: 0.1},
	}, false)
	if err != nil {
		return err
	}
	testCtx.Items[content] = append(testCtx.Items[content], it.ID)
	return nil
}

func (testCtx *TestContext) iDeleteClipping(label string) error {
	return testCtx.Session.WithWorkspace(func(w *workspace.Workspace) error {
		return w.RemoveClipping(testCtx.Clippings[label])
	})
}

func (testCtx *TestContext) state() workspace.State {
	var st workspace.State
	_ = testCtx.Session.WithWorkspace(func(w *workspace.Workspace) error {
		st = w.State()
		return nil
	})
	return st
}

func (testCtx *TestContext) theWorkspaceHasItems(n int) error {
	if got := len(testCtx.state().Items); got != n {
		return fmt.Errorf("workspace has %d items, want %d", got, n)
	}
	return nil
}

func (testCtx *TestContext) theItemsOfAreGone(label string) error {
	st := testCtx.state()
	for _, id := range testCtx.Items[label] {
		if slices.ContainsFunc(st.Items, func(it workspace.Item) bool { return it.ID == id }) {
			return fmt.Errorf("item %s of %q is still placed", id, label)
		}
	}
	return nil
}

func (testCtx *TestContext) theItemOfRemains(label string) error {
	st := testCtx.state()
	for _, id := range testCtx.Items[label] {
		if !slices.ContainsFunc(st.Items, func(it workspace.Item) bool { return it.ID == id }) {
			return fmt.Errorf("item %s of %q was pruned", id, label)
		}
	}
	return nil
}

func (testCtx *TestContext) iCombineClippings(a, b string) error {
	return testCtx.Session.WithWorkspace(func(w *workspace.Workspace) error {
		c, err := w.CombineClippings([]string{testCtx.Clippings[a], testCtx.Clippings[b]})
		if err != nil {
			return err
		}
		testCtx.Combined = c.ID
		return nil
	})
}

func (testCtx *TestContext) theCombinedClippingPreserves(a string, pageA int, b string, pageB int) error {
	var combined workspace.Clipping
	found := false
	for _, c := range testCtx.state().Clippings {
		if c.ID == testCtx.Combined {
			combined, found = c, true
		}
	}
	if !found {
		return fmt.Errorf("combined clipping %s not in the list", testCtx.Combined)
	}
	want := []struct {
		label string
		page  int
	}{{a, pageA}, {b, pageB}}
	if len(combined.Segments) != len(want) {
		return fmt.Errorf("combined clipping has %d segments, want %d", len(combined.Segments), len(want))
	}
	for i, w := range want {
		seg := combined.Segments[i]
		if seg.ID != testCtx.Clippings[w.label] {
			return fmt.Errorf("segment %d id is %s, want %s", i, seg.ID, testCtx.Clippings[w.label])
		}
		if seg.SourcePage != workspace.PageLabel(w.page) {
			return fmt.Errorf("segment %d page is %s, want %d", i, seg.SourcePage, w.page)
		}
		if seg.SourceRect == nil || *seg.SourceRect != *clipRect(w.page) {
			return fmt.Errorf("segment %d rect is %+v, want %+v", i, seg.SourceRect, clipRect(w.page))
		}
	}
	return nil
}

func (testCtx *TestContext) theClippingListHasEntries(n int) error {
	if got := len(testCtx.state().Clippings); got != n {
		return fmt.Errorf("clipping list has %d entries, want %d", got, n)
	}
	return nil
}

func (testCtx *TestContext) showingPageDrawsConnectors(page, n int) error {
	if err := testCtx.Session.NavigateTo(page); err != nil {
		return err
	}
	testCtx.Session.UpdateView(workspace.View{
		Deck:      geometry.Bounds{Width: 1800, Height: 1040},
		Viewer:    Overlay,
		Workspace: geometry.Bounds{Left: 880, Top: 20, Width: 900, Height: 1000},
	})
	if got := len(testCtx.Session.Connectors()); got != n {
		return fmt.Errorf("page %d draws %d connectors, want %d", page, got, n)
	}
	return nil
}

// RegisterWorkspaceSteps registers clipping, comment and connector steps.
func (testCtx *TestContext) RegisterWorkspaceSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a clipping "([^"]*)" from page (\d+)$`, testCtx.aClippingFromPage)
	sc.Step(`^I place clipping "([^"]*)" on the workspace (\d+) times?$`, testCtx.iPlaceClippingTimes)
	sc.Step(`^a workspace comment "([^"]*)" on page (\d+)$`, testCtx.aWorkspaceCommentOnPage)
	sc.Step(`^I delete clipping "([^"]*)"$`, testCtx.iDeleteClipping)
	sc.Step(`^the workspace has (\d+) items?$`, testCtx.theWorkspaceHasItems)
	sc.Step(`^the items of "([^"]*)" are gone$`, testCtx.theItemsOfAreGone)
	sc.Step(`^the item of "([^"]*)" remains$`, testCtx.theItemOfRemains)
	sc.Step(`^I combine clippings "([^"]*)" and "([^"]*)"$`, testCtx.iCombineClippings)
	sc.Step(`^the combined clipping keeps "([^"]*)" from page (\d+) and "([^"]*)" from page (\d+)$`,
		testCtx.theCombinedClippingPreserves)
	sc.Step(`^the clipping list has (\d+) entr(?:y|ies)$`, testCtx.theClippingListHasEntries)
	sc.Step(`^showing page (\d+) draws (\d+) connectors?$`, testCtx.showingPageDrawsConnectors)
}
