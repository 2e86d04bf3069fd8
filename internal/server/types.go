package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/MeKo-Tech/marginalia/internal/engine"
	"github.com/MeKo-Tech/marginalia/internal/ocr"
)

var (
	// ErrInvalidDocument is returned for document ids that are not a plain file name.
	ErrInvalidDocument = errors.New("server: invalid document id")
	// ErrServerClosed is returned once Close has been called.
	ErrServerClosed = errors.New("server: closed")
)

// SessionOpener opens the editing session of a document.
type SessionOpener func(ctx context.Context, document string) (*engine.Session, error)

// Server holds the HTTP server state and dependencies.
type Server struct {
	opener           SessionOpener
	corsOrigin       string
	timeoutSec       int
	limiter          *RateLimiter
	progressInterval time.Duration
	logger           *slog.Logger

	mu       sync.Mutex
	sessions map[string]*engine.Session
	closed   bool

	// Background OCR runs outlive their request.
	ctx    context.Context
	cancel context.CancelFunc
	jobs   sync.WaitGroup
}

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	CORSOrigin   string
	TimeoutSec   int
	OCRRateLimit float64
	OCRBurst     int
	// ProgressInterval is how often the progress stream polls a session.
	ProgressInterval time.Duration
	Opener           SessionOpener
	Logger           *slog.Logger
}

// Response types for API endpoints.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Time     string `json:"time"`
	Sessions int    `json:"sessions"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type OCRPageResponse struct {
	Page       int     `json:"page"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type OCRStatusResponse struct {
	Running  bool                    `json:"running"`
	Progress map[string]ocr.Progress `json:"progress"`
	Results  map[int]ocr.Result      `json:"results"`
}

// NewServer creates a new annotation server.
func NewServer(config Config) (*Server, error) {
	if config.Opener == nil {
		return nil, errors.New("server: no session opener configured")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := config.ProgressInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opener:           config.Opener,
		corsOrigin:       config.CORSOrigin,
		timeoutSec:       config.TimeoutSec,
		progressInterval: interval,
		logger:           logger,
		sessions:         make(map[string]*engine.Session),
		ctx:              ctx,
		cancel:           cancel,
	}
	if config.OCRRateLimit > 0 {
		s.limiter = NewRateLimiter(rate.Limit(config.OCRRateLimit), config.OCRBurst)
	}
	return s, nil
}

// Close stops background OCR runs and closes every open session.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[string]*engine.Session)
	s.mu.Unlock()

	s.cancel()
	s.jobs.Wait()

	var errs []error
	for doc, sess := range sessions {
		if err := sess.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", doc, err))
		}
	}
	return errors.Join(errs...)
}

// validDocumentID accepts plain file names only.
func validDocumentID(doc string) bool {
	if doc == "" || doc == "." || doc == ".." {
		return false
	}
	return path.Base(doc) == doc && !strings.ContainsAny(doc, `/\`)
}

// session returns the open session of doc, opening it on first use.
func (s *Server) session(ctx context.Context, doc string) (*engine.Session, error) {
	if !validDocumentID(doc) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDocument, doc)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServerClosed
	}
	if sess, ok := s.sessions[doc]; ok {
		return sess, nil
	}
	sess, err := s.opener(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", doc, err)
	}
	s.sessions[doc] = sess
	s.logger.Info("Opened document session", "document", doc, "pages", sess.TotalPages())
	return sess, nil
}

// openSessions returns the number of open sessions.
func (s *Server) openSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("OPTIONS /", s.corsMiddleware(func(http.ResponseWriter, *http.Request) {}))
	mux.HandleFunc("GET /health", s.corsMiddleware(s.healthHandler))
	mux.Handle("GET /metrics", promhttp.Handler())

	// Annotations
	mux.HandleFunc("GET /documents/{doc}/pages/{page}/annotations", s.corsMiddleware(s.listAnnotationsHandler))
	mux.HandleFunc("POST /documents/{doc}/pages/{page}/annotations", s.corsMiddleware(s.createAnnotationHandler))
	mux.HandleFunc("POST /documents/{doc}/pages/{page}/pending/commit", s.corsMiddleware(s.commitPendingHandler))
	mux.HandleFunc("DELETE /documents/{doc}/pages/{page}/pending", s.corsMiddleware(s.discardPendingHandler))
	mux.HandleFunc("DELETE /documents/{doc}/annotations/{id}", s.corsMiddleware(s.deleteAnnotationHandler))
	mux.HandleFunc("PUT /documents/{doc}/annotations/{id}/position", s.corsMiddleware(s.moveNoteHandler))
	mux.HandleFunc("POST /documents/{doc}/annotations/{id}/comments", s.corsMiddleware(s.addCommentHandler))
	mux.HandleFunc("PUT /documents/{doc}/annotations/{id}/comments/{index}", s.corsMiddleware(s.editCommentHandler))
	mux.HandleFunc("DELETE /documents/{doc}/annotations/{id}/comments/{index}", s.corsMiddleware(s.deleteCommentHandler))

	// Recognition and search
	mux.HandleFunc("POST /documents/{doc}/pages/{page}/ocr", s.corsMiddleware(s.rateLimitMiddleware(s.runPageOCRHandler)))
	mux.HandleFunc("POST /documents/{doc}/ocr", s.corsMiddleware(s.rateLimitMiddleware(s.runAllOCRHandler)))
	mux.HandleFunc("GET /documents/{doc}/ocr", s.corsMiddleware(s.ocrStatusHandler))
	mux.HandleFunc("POST /documents/{doc}/pages/{page}/clip", s.corsMiddleware(s.rateLimitMiddleware(s.clipAreaHandler)))
	mux.HandleFunc("GET /documents/{doc}/search", s.corsMiddleware(s.searchHandler))
	mux.HandleFunc("GET /ws/ocr", s.ocrWebSocketHandler)

	// Workspace
	mux.HandleFunc("GET /documents/{doc}/workspace", s.corsMiddleware(s.workspaceHandler))
	mux.HandleFunc("POST /documents/{doc}/workspace/clippings", s.corsMiddleware(s.addClippingHandler))
	mux.HandleFunc("DELETE /documents/{doc}/workspace/clippings/{id}", s.corsMiddleware(s.removeClippingHandler))
	mux.HandleFunc("POST /documents/{doc}/workspace/clippings/combine", s.corsMiddleware(s.combineClippingsHandler))
	mux.HandleFunc("POST /documents/{doc}/workspace/items", s.corsMiddleware(s.placeItemHandler))
	mux.HandleFunc("PUT /documents/{doc}/workspace/items/{id}", s.corsMiddleware(s.moveItemHandler))
	mux.HandleFunc("DELETE /documents/{doc}/workspace/items/{id}", s.corsMiddleware(s.removeItemHandler))
	mux.HandleFunc("GET /documents/{doc}/workspace/items/{id}/source", s.corsMiddleware(s.locateItemHandler))
	mux.HandleFunc("POST /documents/{doc}/workspace/comments", s.corsMiddleware(s.addWorkspaceCommentHandler))

	// Bookmarks
	mux.HandleFunc("GET /documents/{doc}/bookmarks", s.corsMiddleware(s.listBookmarksHandler))
	mux.HandleFunc("POST /documents/{doc}/pages/{page}/bookmark", s.corsMiddleware(s.toggleBookmarkHandler))
}
