package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/marginalia/internal/annotation"
	"github.com/MeKo-Tech/marginalia/internal/drawing"
	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

// CreateAnnotationRequest describes an annotation created over HTTP.
// Geometry is normalized to the page.
type CreateAnnotationRequest struct {
	Type        annotation.Type  `json:"type"`
	Color       string           `json:"color,omitempty"`
	Rect        *geometry.Rect   `json:"rect,omitempty"`
	Rects       []geometry.Rect  `json:"rects,omitempty"`
	Points      []geometry.Point `json:"points,omitempty"`
	Text        string           `json:"text,omitempty"`
	StrokeWidth float64          `json:"strokeWidth,omitempty"`
	Opacity     float64          `json:"opacity,omitempty"`
	Mode        string           `json:"mode,omitempty"`
	Position    *geometry.Point  `json:"position,omitempty"`
	Content     string           `json:"content,omitempty"`
	LinkedText  string           `json:"linkedText,omitempty"`
	// Pending stages an area or freehand highlight instead of committing it.
	Pending bool `json:"pending,omitempty"`
}

// AnnotationsResponse lists a page's annotations.
type AnnotationsResponse struct {
	Page        int                     `json:"page"`
	Annotations []annotation.Annotation `json:"annotations"`
	Pending     []annotation.Highlight  `json:"pending"`
}

// CommentRequest carries comment text.
type CommentRequest struct {
	Text string `json:"text"`
}

// listAnnotationsHandler returns the visible annotations and pending
// highlights of a page. ?all=1 bypasses the type filter.
func (s *Server) listAnnotationsHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	page, err := pageParam(r, sess)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := AnnotationsResponse{Page: page}
	all := r.URL.Query().Get("all") == "1"
	if !all {
		resp.Annotations = sess.Visible(page)
	}
	if err := sess.WithAnnotations(func(st *annotation.Store) error {
		if all {
			resp.Annotations = st.Annotations(page)
		}
		resp.Pending = st.Pending(page)
		return nil
	}); err != nil {
		s.writeError(w, err)
		return
	}
	if resp.Annotations == nil {
		resp.Annotations = []annotation.Annotation{}
	}
	if resp.Pending == nil {
		resp.Pending = []annotation.Highlight{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// buildAnnotation turns a create request into an annotation of page.
func buildAnnotation(page int, req CreateAnnotationRequest) (annotation.Annotation, error) {
	switch req.Type {
	case annotation.TypeHighlight:
		if len(req.Rects) > 0 {
			return annotation.TextHighlight(page, req.Rects, req.Text, req.Color), nil
		}
		if req.Rect == nil {
			return annotation.Annotation{}, &badRequestError{msg: "highlight needs rect or rects"}
		}
		return annotation.AreaHighlight(page, *req.Rect, req.Color), nil
	case annotation.TypeUnderline, annotation.TypeStrike:
		if len(req.Rects) == 0 {
			return annotation.Annotation{}, &badRequestError{msg: fmt.Sprintf("%s needs rects", req.Type)}
		}
		return annotation.TextLines(req.Type, page, req.Rects, req.Text, req.Color), nil
	case annotation.TypeFreehand:
		h, err := pendingHighlight(req)
		if err != nil {
			return annotation.Annotation{}, err
		}
		mode := req.Mode
		if mode == "" {
			mode = string(drawing.ModeStraight)
		}
		return annotation.FreehandStroke(page, h, mode), nil
	case annotation.TypeComment:
		if strings.TrimSpace(req.Content) == "" {
			return annotation.Annotation{}, &badRequestError{msg: "note content is empty"}
		}
		if req.Position == nil {
			return annotation.Annotation{}, &badRequestError{msg: "note needs a position"}
		}
		return annotation.Note(page, *req.Position, req.Content, req.LinkedText, req.Color), nil
	default:
		return annotation.Annotation{}, &badRequestError{msg: fmt.Sprintf("unsupported annotation type %q", req.Type)}
	}
}

// pendingHighlight builds the highlight of an area or freehand request.
func pendingHighlight(req CreateAnnotationRequest) (annotation.Highlight, error) {
	h := annotation.Highlight{Color: req.Color, StrokeWidth: req.StrokeWidth, Opacity: req.Opacity}
	switch {
	case len(req.Points) > 0:
		h.Shape = geometry.NewFreehand(req.Points)
		if h.Opacity == 0 {
			h.Opacity = drawing.DefaultOpacity
		}
	case req.Rect != nil && req.Type != annotation.TypeFreehand:
		h.Shape = geometry.NewRect(*req.Rect)
	default:
		return annotation.Highlight{}, &badRequestError{msg: fmt.Sprintf("%s needs geometry", req.Type)}
	}
	return h, nil
}

// createAnnotationHandler commits an annotation or stages a pending highlight.
func (s *Server) createAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	page, err := pageParam(r, sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req CreateAnnotationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Color == "" {
		req.Color = sess.Tools().Color
	}

	if req.Pending {
		if req.Type != annotation.TypeHighlight && req.Type != annotation.TypeFreehand {
			s.writeErrorResponse(w, "only highlights and freehand strokes can be pending", http.StatusBadRequest)
			return
		}
		h, err := pendingHighlight(req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		var staged annotation.Highlight
		if err := sess.WithAnnotations(func(st *annotation.Store) error {
			staged = st.AddPending(page, h)
			return nil
		}); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, staged)
		return
	}

	a, err := buildAnnotation(page, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var created annotation.Annotation
	if err := sess.WithAnnotations(func(st *annotation.Store) error {
		created = st.Add(a)
		return nil
	}); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

// commitPendingHandler groups the pending highlights of a page under one comment.
func (s *Server) commitPendingHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	page, err := pageParam(r, sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req CommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	group, committed, err := sess.CommitPending(page, req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !committed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusCreated, group)
}

// discardPendingHandler drops the pending highlights of a page.
func (s *Server) discardPendingHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	page, err := pageParam(r, sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := sess.WithAnnotations(func(st *annotation.Store) error {
		st.DiscardPending(page)
		return nil
	}); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteAnnotationHandler deletes an annotation, or with ?highlight=N one
// highlight of a group.
func (s *Server) deleteAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	var index *int
	if raw := r.URL.Query().Get("highlight"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeErrorResponse(w, fmt.Sprintf("invalid highlight index %q", raw), http.StatusBadRequest)
			return
		}
		index = &n
	}
	if err := sess.WithAnnotations(func(st *annotation.Store) error {
		return st.EraseHighlight(id, index)
	}); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// moveNoteHandler repositions a sticky note.
func (s *Server) moveNoteHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	var pos geometry.Point
	if err := decodeJSON(w, r, &pos); err != nil {
		s.writeError(w, err)
		return
	}
	id := r.PathValue("id")
	var moved annotation.Annotation
	if err := sess.WithAnnotations(func(st *annotation.Store) error {
		if err := st.MoveNote(id, pos); err != nil {
			return err
		}
		moved, _ = st.Find(id)
		return nil
	}); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, moved)
}

// addCommentHandler appends a comment to an annotation's thread.
func (s *Server) addCommentHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	var req CommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeErrorResponse(w, "comment text is empty", http.StatusBadRequest)
		return
	}
	var c annotation.Comment
	if err := sess.WithAnnotations(func(st *annotation.Store) error {
		var err error
		c, err = st.AddComment(r.PathValue("id"), req.Text)
		return err
	}); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, c)
}

// editCommentHandler replaces the text of one comment.
func (s *Server) editCommentHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("invalid comment index %q", r.PathValue("index")), http.StatusBadRequest)
		return
	}
	var req CommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := sess.WithAnnotations(func(st *annotation.Store) error {
		return st.EditComment(r.PathValue("id"), index, req.Text)
	}); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteCommentHandler removes one comment from a thread.
func (s *Server) deleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("invalid comment index %q", r.PathValue("index")), http.StatusBadRequest)
		return
	}
	if err := sess.WithAnnotations(func(st *annotation.Store) error {
		return st.DeleteComment(r.PathValue("id"), index)
	}); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
