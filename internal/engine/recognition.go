package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
	"github.com/MeKo-Tech/marginalia/internal/ocr"
	"github.com/MeKo-Tech/marginalia/internal/search"
	"github.com/MeKo-Tech/marginalia/internal/workspace"
)

// ErrNoOCR is returned when the session has no recognition pipeline.
var ErrNoOCR = errors.New("engine: no OCR pipeline configured")

// ErrPageOutOfRange is returned for pages outside the document.
var ErrPageOutOfRange = errors.New("engine: page out of range")

func (s *Session) checkPage(page int) error {
	if page < 1 || (s.totalPages > 0 && page > s.totalPages) {
		return fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, page, s.totalPages)
	}
	return nil
}

// NavigateTo shows page. With AutoOCR, a page without cached text is
// recognized in the background unless a job is already running.
func (s *Session) NavigateTo(page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.navigateLocked(page)
}

func (s *Session) navigateLocked(page int) error {
	if err := s.checkPage(page); err != nil {
		return err
	}
	s.page = page
	s.layout.SetPage(page)
	s.autoRecognize(page)
	return nil
}

func (s *Session) autoRecognize(page int) {
	p := s.pipeline
	if !s.cfg.AutoOCR || p == nil || p.IsRunning() {
		return
	}
	if _, ok := p.Result(page); ok {
		return
	}
	s.goBackground(func(ctx context.Context) {
		if _, err := p.EnsurePage(ctx, page); err != nil && !errors.Is(err, ocr.ErrBusy) {
			s.logger.Warn("automatic OCR failed", "document", s.document, "page", page, "error", err)
		}
	})
}

// RunOCR recognizes a page, replacing any cached result. It fails with
// ocr.ErrBusy while another job runs.
func (s *Session) RunOCR(ctx context.Context, page int) (ocr.Result, error) {
	if s.pipeline == nil {
		return ocr.Result{}, ErrNoOCR
	}
	if err := s.checkPage(page); err != nil {
		return ocr.Result{}, err
	}
	return s.pipeline.RunPage(ctx, page)
}

// RunAllOCR recognizes every page in order and returns how many were attempted.
func (s *Session) RunAllOCR(ctx context.Context) (int, error) {
	if s.pipeline == nil {
		return 0, ErrNoOCR
	}
	return s.pipeline.RunAll(ctx, s.totalPages)
}

// OCRResults returns the cached page recognitions.
func (s *Session) OCRResults() map[int]ocr.Result {
	if s.pipeline == nil {
		return map[int]ocr.Result{}
	}
	return s.pipeline.Results()
}

// OCRProgress returns the live progress entries.
func (s *Session) OCRProgress() map[string]ocr.Progress {
	if s.pipeline == nil {
		return map[string]ocr.Progress{}
	}
	return s.pipeline.Progress()
}

// OCRRunning reports whether a recognition job is in flight.
func (s *Session) OCRRunning() bool {
	return s.pipeline != nil && s.pipeline.IsRunning()
}

// ExtractClip recognizes the text inside a normalized rectangle of page
// and adds it to the workspace as an OCR clipping. It returns nil when the
// area held no text.
func (s *Session) ExtractClip(ctx context.Context, page int, r geometry.Rect) (*workspace.Clipping, error) {
	if s.pipeline == nil {
		return nil, ErrNoOCR
	}
	if err := s.checkPage(page); err != nil {
		return nil, err
	}
	res, err := s.pipeline.ExtractArea(ctx, page, r)
	if err != nil || res == nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	clip, err := s.workspace.AddClipping(workspace.NewClipping{
		Content:    res.Text,
		Page:       page,
		Rect:       &r,
		Source:     workspace.SourceOCR,
		Confidence: res.Confidence,
	})
	if err != nil {
		return nil, err
	}
	s.layout.Invalidate()
	return &clip, nil
}

// requestClip runs ExtractClip in the background and reports to the
// ClipHandler. Callers hold the session lock.
func (s *Session) requestClip(page int, r geometry.Rect) error {
	if s.pipeline == nil {
		return ErrNoOCR
	}
	s.goBackground(func(ctx context.Context) {
		clip, err := s.ExtractClip(ctx, page, r)
		if err != nil {
			s.logger.Warn("clip extraction failed", "document", s.document, "page", page, "error", err)
		}
		if s.onClip != nil {
			s.onClip(clip, err)
		}
	})
	return nil
}

// Search finds term across the document, recognizing pages without text
// when the pipeline is idle.
func (s *Session) Search(ctx context.Context, term string) ([]search.Hit, error) {
	var rec search.Recognizer
	if s.pipeline != nil {
		rec = s.pipeline
	}
	return search.New(s.text, rec, search.WithLogger(s.logger)).Search(ctx, term, s.totalPages)
}
