package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/marginalia/internal/annotation"
	"github.com/MeKo-Tech/marginalia/internal/engine"
	"github.com/MeKo-Tech/marginalia/internal/ocr"
	"github.com/MeKo-Tech/marginalia/internal/persistence"
	"github.com/MeKo-Tech/marginalia/internal/version"
	"github.com/MeKo-Tech/marginalia/internal/workspace"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ver, _, _ := version.Info()
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Version:  ver,
		Time:     time.Now().UTC().Format(time.RFC3339),
		Sessions: s.openSessions(),
	})
}

// requestSession resolves the {doc} path value to an open session and
// writes the error response when that fails.
func (s *Server) requestSession(w http.ResponseWriter, r *http.Request) (*engine.Session, bool) {
	sess, err := s.session(r.Context(), r.PathValue("doc"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return sess, true
}

// pageParam parses the {page} path value and checks it against the document.
func pageParam(r *http.Request, sess *engine.Session) (int, error) {
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || page < 1 || page > sess.TotalPages() {
		return 0, fmt.Errorf("%w: %q", engine.ErrPageOutOfRange, r.PathValue("page"))
	}
	return page, nil
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &badRequestError{msg: "request body is empty"}
		}
		return &badRequestError{msg: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}

// badRequestError marks client input errors.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var bad *badRequestError
	var job *ocr.JobError
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidDocument),
		errors.Is(err, engine.ErrPageOutOfRange),
		errors.Is(err, engine.ErrEmptyComment),
		errors.Is(err, ocr.ErrInvalidPage),
		errors.Is(err, ocr.ErrEmptyArea),
		errors.Is(err, annotation.ErrIndexOutOfRange),
		errors.Is(err, annotation.ErrNotANote),
		errors.Is(err, workspace.ErrUnknownSource),
		errors.Is(err, workspace.ErrEmptyClipping),
		errors.Is(err, workspace.ErrEmptyComment),
		errors.Is(err, workspace.ErrNoSourceRect),
		errors.Is(err, workspace.ErrTooFewClippings):
		return http.StatusBadRequest
	case errors.Is(err, annotation.ErrNotFound),
		errors.Is(err, workspace.ErrNotFound),
		errors.Is(err, persistence.ErrBookmarkNotFound),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, ocr.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ocr.ErrWorkerUnavailable),
		errors.Is(err, engine.ErrNoOCR),
		errors.Is(err, ErrServerClosed),
		errors.Is(err, engine.ErrClosed),
		errors.Is(err, ocr.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &job):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "status", status, "error", err)
	}
	s.writeErrorResponse(w, err.Error(), status)
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}

// writeJSON writes v with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Log error, but can't send another response
		s.logger.Error("Error encoding response", "error", err)
	}
}
