package server

import (
	"net/http"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
	"github.com/MeKo-Tech/marginalia/internal/persistence"
	"github.com/MeKo-Tech/marginalia/internal/workspace"
)

// WorkspaceResponse is the workspace of a document with its connectors for
// the current view.
type WorkspaceResponse struct {
	CurrentPage int                   `json:"currentPage"`
	State       workspace.State       `json:"state"`
	Connectors  []workspace.Connector `json:"connectors"`
}

// AddClippingRequest adds a text selection as a clipping.
type AddClippingRequest struct {
	Content string         `json:"content"`
	Page    int            `json:"page"`
	Rect    *geometry.Rect `json:"rect,omitempty"`
}

// CombineRequest names the clippings to merge, in list order.
type CombineRequest struct {
	IDs []string `json:"ids"`
}

// PlaceItemRequest drops a clipping or comment on the canvas.
type PlaceItemRequest struct {
	Type     workspace.ItemType `json:"type"`
	SourceID string             `json:"sourceId"`
	X        float64            `json:"x"`
	Y        float64            `json:"y"`
}

// WorkspaceCommentRequest anchors a workspace comment to a page region.
type WorkspaceCommentRequest struct {
	Content    string                  `json:"content"`
	QuoteText  string                  `json:"quoteText,omitempty"`
	Page       int                     `json:"page"`
	Rect       *geometry.Rect          `json:"rect"`
	SourceType workspace.CommentSource `json:"sourceType,omitempty"`
	Color      string                  `json:"color,omitempty"`
	// LinkNote also places a sticky note on the page.
	LinkNote bool `json:"linkNote,omitempty"`
}

// WorkspaceCommentResponse is a created comment and its canvas item.
type WorkspaceCommentResponse struct {
	Comment workspace.Comment `json:"comment"`
	Item    workspace.Item    `json:"item"`
}

// BookmarkToggleResponse reports the bookmark state of a page after a toggle.
type BookmarkToggleResponse struct {
	Page       int  `json:"page"`
	Bookmarked bool `json:"bookmarked"`
}

// workspaceHandler returns the clippings, comments and items of a document.
func (s *Server) workspaceHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	resp := WorkspaceResponse{CurrentPage: sess.CurrentPage()}
	if err := sess.WithWorkspace(func(ws *workspace.Workspace) error {
		resp.State = ws.State()
		return nil
	}); err != nil {
		s.writeError(w, err)
		return
	}
	resp.Connectors = sess.Connectors()
	if resp.Connectors == nil {
		resp.Connectors = []workspace.Connector{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// addClippingHandler adds a clipping taken from the PDF text layer.
func (s *Server) addClippingHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	var req AddClippingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Page < 1 || req.Page > sess.TotalPages() {
		s.writeErrorResponse(w, "clipping page out of range", http.StatusBadRequest)
		return
	}
	var clip workspace.Clipping
	if err := sess.WithWorkspace(func(ws *workspace.Workspace) error {
		var err error
		clip, err = ws.AddClipping(workspace.NewClipping{
			Content: req.Content,
			Page:    req.Page,
			Rect:    req.Rect,
			Source:  workspace.SourcePDF,
		})
		return err
	}); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, clip)
}

// removeClippingHandler deletes a clipping and the items showing it.
func (s *Server) removeClippingHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	if err := sess.WithWorkspace(func(ws *workspace.Workspace) error {
		return ws.RemoveClipping(r.PathValue("id"))
	}); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// combineClippingsHandler merges clippings into one combined clipping.
func (s *Server) combineClippingsHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	var req CombineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	var combined workspace.Clipping
	if err := sess.WithWorkspace(func(ws *workspace.Workspace) error {
		var err error
		combined, err = ws.CombineClippings(req.IDs)
		return err
	}); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, combined)
}

// placeItemHandler drops a source on the canvas. Dropping a clipping also
// navigates to its page.
func (s *Server) placeItemHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	var req PlaceItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	pos := geometry.Point{X: req.X, Y: req.Y}

	var it workspace.Item
	var err error
	switch req.Type {
	case workspace.ItemClip, "":
		it, err = sess.DropClipping(req.SourceID, pos)
	case workspace.ItemComment:
		err = sess.WithWorkspace(func(ws *workspace.Workspace) error {
			var perr error
			it, perr = ws.PlaceItem(workspace.ItemComment, req.SourceID, pos)
			return perr
		})
	default:
		s.writeErrorResponse(w, "unknown item type", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, it)
}

// moveItemHandler repositions a canvas item.
func (s *Server) moveItemHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	var pos geometry.Point
	if err := decodeJSON(w, r, &pos); err != nil {
		s.writeError(w, err)
		return
	}
	var it workspace.Item
	if err := sess.WithWorkspace(func(ws *workspace.Workspace) error {
		var err error
		it, err = ws.MoveItem(r.PathValue("id"), pos)
		return err
	}); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, it)
}

// removeItemHandler deletes a canvas item, keeping its source.
func (s *Server) removeItemHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	if err := sess.WithWorkspace(func(ws *workspace.Workspace) error {
		return ws.RemoveItem(r.PathValue("id"))
	}); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// locateItemHandler navigates to the source of an item.
func (s *Server) locateItemHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	t, err := sess.Locate(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

// addWorkspaceCommentHandler creates a workspace comment and its item.
func (s *Server) addWorkspaceCommentHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	var req WorkspaceCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Page < 1 || req.Page > sess.TotalPages() {
		s.writeErrorResponse(w, "comment page out of range", http.StatusBadRequest)
		return
	}
	source := req.SourceType
	if source == "" {
		source = workspace.CommentFromText
	}
	c, it, err := sess.AddWorkspaceComment(workspace.NewComment{
		Content:    req.Content,
		QuoteText:  req.QuoteText,
		PageNumber: req.Page,
		SourceRect: req.Rect,
		SourceType: source,
		Color:      req.Color,
	}, req.LinkNote)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, WorkspaceCommentResponse{Comment: c, Item: it})
}

// listBookmarksHandler returns every bookmark of a document.
func (s *Server) listBookmarksHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	var list []persistence.Bookmark
	if err := sess.WithBookmarks(func(b *persistence.Bookmarks) error {
		list = b.List()
		return nil
	}); err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []persistence.Bookmark{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

// toggleBookmarkHandler adds or removes the bookmark of a page.
func (s *Server) toggleBookmarkHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	page, err := pageParam(r, sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var on bool
	if err := sess.WithBookmarks(func(b *persistence.Bookmarks) error {
		on = b.Toggle(page)
		return nil
	}); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, BookmarkToggleResponse{Page: page, Bookmarked: on})
}
