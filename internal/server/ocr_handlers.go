package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
	"github.com/MeKo-Tech/marginalia/internal/ocr"
	"github.com/MeKo-Tech/marginalia/internal/search"
)

// RunAllResponse acknowledges a background document run.
type RunAllResponse struct {
	Document string `json:"document"`
	Pages    int    `json:"pages"`
	Status   string `json:"status"`
}

// SearchResponse lists the pages matching a term.
type SearchResponse struct {
	Query string       `json:"query"`
	Hits  []search.Hit `json:"hits"`
	Count int          `json:"count"`
}

func ocrStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// runPageOCRHandler recognizes one page, replacing its cached text.
func (s *Server) runPageOCRHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	page, err := pageParam(r, sess)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := sess.RunOCR(r.Context(), page)
	ocrRequestsTotal.WithLabelValues("page", ocrStatus(err)).Inc()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, OCRPageResponse{Page: page, Text: res.Text, Confidence: res.Confidence})
}

// runAllOCRHandler starts recognizing every page in the background.
// Progress is visible through GET /documents/{doc}/ocr and /ws/ocr.
func (s *Server) runAllOCRHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	if sess.OCRRunning() {
		ocrRequestsTotal.WithLabelValues("document", "busy").Inc()
		s.writeError(w, ocr.ErrBusy)
		return
	}

	s.jobs.Add(1)
	go func(ctx context.Context) {
		defer s.jobs.Done()
		n, err := sess.RunAllOCR(ctx)
		ocrRequestsTotal.WithLabelValues("document", ocrStatus(err)).Inc()
		switch {
		case err == nil:
			s.logger.Info("Document OCR finished", "document", sess.Document(), "pages", n)
		case errors.Is(err, context.Canceled):
			s.logger.Debug("Document OCR cancelled", "document", sess.Document())
		default:
			s.logger.Warn("Document OCR failed", "document", sess.Document(), "error", err)
		}
	}(s.ctx)

	s.writeJSON(w, http.StatusAccepted, RunAllResponse{
		Document: sess.Document(),
		Pages:    sess.TotalPages(),
		Status:   "started",
	})
}

// ocrStatusHandler reports cached results and live progress.
func (s *Server) ocrStatusHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, OCRStatusResponse{
		Running:  sess.OCRRunning(),
		Progress: sess.OCRProgress(),
		Results:  sess.OCRResults(),
	})
}

// clipAreaHandler recognizes a normalized rectangle of a page and adds the
// text to the workspace as a clipping. An area without text yields 204.
func (s *Server) clipAreaHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	page, err := pageParam(r, sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var rect geometry.Rect
	if err := decodeJSON(w, r, &rect); err != nil {
		s.writeError(w, err)
		return
	}

	clip, err := sess.ExtractClip(r.Context(), page, rect)
	ocrRequestsTotal.WithLabelValues("clip", ocrStatus(err)).Inc()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if clip == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusCreated, clip)
}

// searchHandler finds the first match of ?q= on every page.
func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requestSession(w, r)
	if !ok {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.writeErrorResponse(w, "missing query parameter q", http.StatusBadRequest)
		return
	}
	hits, err := sess.Search(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if hits == nil {
		hits = []search.Hit{}
	}
	s.writeJSON(w, http.StatusOK, SearchResponse{Query: q, Hits: hits, Count: len(hits)})
}
