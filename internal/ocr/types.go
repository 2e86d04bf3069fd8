// Package ocr serializes page rasterization and text recognition for a
// document session and owns the per-page result cache and progress map.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
)

var (
	// ErrBusy is returned when a recognition job is already in flight.
	// Requests are rejected, not queued.
	ErrBusy = errors.New("ocr: a recognition job is already running")
	// ErrWorkerUnavailable is returned once worker initialization has failed.
	ErrWorkerUnavailable = errors.New("ocr: recognition worker unavailable")
	// ErrInvalidPage is returned for page numbers below 1.
	ErrInvalidPage = errors.New("ocr: invalid page number")
	// ErrEmptyArea is returned when a clip rectangle covers no pixels.
	ErrEmptyArea = errors.New("ocr: clip area is empty")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("ocr: pipeline closed")
)

// Rasterizer renders document pages to images.
type Rasterizer interface {
	// RenderPage renders page at the given supersampling scale.
	RenderPage(ctx context.Context, page int, scale float64) (image.Image, error)
}

// Recognition is the raw output of a recognizer.
type Recognition struct {
	Text string
	// Confidence on a 0-100 scale.
	Confidence float64
}

// Recognizer is a long-lived recognition worker.
type Recognizer interface {
	Recognize(ctx context.Context, png []byte) (Recognition, error)
	Terminate() error
}

// WorkerFactory creates the recognition worker.
type WorkerFactory func(ctx context.Context) (Recognizer, error)

// Result is a cached page recognition.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Progress is a transient progress entry.
type Progress struct {
	Progress int    `json:"progress"`
	Status   string `json:"status"`
}

// Progress statuses.
const (
	StatusInitializing = "Initializing..."
	StatusRendering    = "Rendering page..."
	StatusRunning      = "Running OCR..."
	StatusRecognizing  = "Recognizing text..."
	StatusComplete     = "Complete"
	StatusExtracting   = "Extracting text..."
)

// ErrorStatus formats the terminal status of a failed job.
func ErrorStatus(err error) string {
	return "Error: " + err.Error()
}

// PageKey is the progress key of a full-page job.
func PageKey(page int) string {
	return strconv.Itoa(page)
}

// AreaKey is the progress key of an area extraction on page.
func AreaKey(page int) string {
	return "clip-" + strconv.Itoa(page)
}

// Stage names the step a job failed in.
type Stage string

const (
	StageInit      Stage = "init"
	StageRender    Stage = "render"
	StageEncode    Stage = "encode"
	StageRecognize Stage = "recognize"
)

// JobError describes a failed recognition job.
type JobError struct {
	Key   string
	Stage Stage
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("ocr %s failed during %s: %v", e.Key, e.Stage, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}
