// Package search finds a term across the pages of a document, reading the
// embedded text layer first and falling back to recognized text.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/MeKo-Tech/marginalia/internal/ocr"
)

// snippetContext is the number of runes kept on each side of a match.
const snippetContext = 40

// Source tells where the matched text came from.
type Source string

const (
	SourcePDF Source = "PDF"
	SourceOCR Source = "OCR"
)

// TextSource returns the embedded text of a page.
type TextSource interface {
	PageText(page int) (string, error)
}

// Recognizer is the part of the OCR pipeline search relies on.
type Recognizer interface {
	Result(page int) (ocr.Result, bool)
	EnsurePage(ctx context.Context, page int) (ocr.Result, error)
}

// Hit is the first match on a page.
type Hit struct {
	ID         string `json:"id"`
	PageNumber int    `json:"pageNumber"`
	Snippet    string `json:"snippet"`
	Source     Source `json:"source"`
}

// Searcher searches one document.
type Searcher struct {
	text   TextSource
	ocr    Recognizer
	auto   bool
	logger *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Searcher) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithoutAutoOCR disables recognizing pages that have no text yet.
func WithoutAutoOCR() Option {
	return func(s *Searcher) { s.auto = false }
}

// New creates a Searcher. Either source may be nil.
func New(text TextSource, rec Recognizer, opts ...Option) *Searcher {
	s := &Searcher{
		text:   text,
		ocr:    rec,
		auto:   true,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns at most one hit per page, in page order. Matching is
// case-insensitive and compares NFKC-normalized text. Pages without any
// text are recognized on demand unless a job is already running.
func (s *Searcher) Search(ctx context.Context, term string, totalPages int) ([]Hit, error) {
	fold := cases.Fold()
	needle := foldRunes(fold, norm.NFKC.String(strings.TrimSpace(term)))
	if len(needle) == 0 || totalPages < 1 {
		return nil, nil
	}

	auto := s.auto && s.ocr != nil
	var hits []Hit
	for page := 1; page <= totalPages; page++ {
		if err := ctx.Err(); err != nil {
			return hits, err
		}

		text, src, err := s.pageText(ctx, page, auto)
		if errors.Is(err, ocr.ErrWorkerUnavailable) || errors.Is(err, ocr.ErrClosed) {
			auto = false
		}
		if text == "" {
			continue
		}
		if hit, ok := match(fold, page, text, needle, src); ok {
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

func (s *Searcher) pageText(ctx context.Context, page int, auto bool) (string, Source, error) {
	if s.text != nil {
		text, err := s.text.PageText(page)
		if err != nil {
			s.logger.Debug("text layer unavailable", "page", page, "error", err)
		} else if strings.TrimSpace(text) != "" {
			return text, SourcePDF, nil
		}
	}
	if s.ocr == nil {
		return "", SourcePDF, nil
	}
	if res, ok := s.ocr.Result(page); ok {
		return res.Text, SourceOCR, nil
	}
	if !auto {
		return "", SourceOCR, nil
	}

	res, err := s.ocr.EnsurePage(ctx, page)
	switch {
	case errors.Is(err, ocr.ErrBusy):
		s.logger.Debug("skipping page recognition, OCR busy", "page", page)
		return "", SourceOCR, nil
	case err != nil:
		s.logger.Warn("page recognition for search failed", "page", page, "error", err)
		return "", SourceOCR, err
	}
	return res.Text, SourceOCR, nil
}

type foldedRune struct {
	r   rune
	src int
}

// foldRunes case-folds text rune by rune, remembering the source rune index
// of every folded rune.
func foldRunes(fold cases.Caser, text string) []foldedRune {
	out := make([]foldedRune, 0, len(text))
	i := 0
	for _, r := range text {
		for _, f := range fold.String(string(r)) {
			out = append(out, foldedRune{r: f, src: i})
		}
		i++
	}
	return out
}

func match(fold cases.Caser, page int, text string, needle []foldedRune, src Source) (Hit, bool) {
	normalized := norm.NFKC.String(text)
	hay := foldRunes(fold, normalized)
	pos := indexFolded(hay, needle)
	if pos < 0 {
		return Hit{}, false
	}

	runes := []rune(normalized)
	start := hay[pos].src
	end := hay[pos+len(needle)-1].src + 1
	return Hit{
		ID:         fmt.Sprintf("%d-%d", page, start),
		PageNumber: page,
		Snippet:    string(runes[max(start-snippetContext, 0):min(end+snippetContext, len(runes))]),
		Source:     src,
	}, true
}

func indexFolded(hay, needle []foldedRune) int {
outer:
	for i := 0; i+len(needle) <= len(hay); i++ {
		for j := range needle {
			if hay[i+j].r != needle[j].r {
				continue outer
			}
		}
		return i
	}
	return -1
}
