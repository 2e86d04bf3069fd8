package support

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/MeKo-Tech/marginalia/internal/engine"
	"github.com/MeKo-Tech/marginalia/internal/geometry"
	"github.com/MeKo-Tech/marginalia/internal/ocr"
)

// Overlay is the on-screen rectangle every page overlay is measured at.
var Overlay = geometry.Bounds{Left: 40, Top: 20, Width: 800, Height: 1000}

// ExpiryDelay is how long finished OCR progress entries stay visible.
const ExpiryDelay = 250 * time.Millisecond

// TestContext holds the state of one scenario.
type TestContext struct {
	Session    *engine.Session
	Recognizer *ScriptedRecognizer

	LastOutcome engine.Outcome
	LastError   error

	// Clippings and items by scenario label.
	Clippings map[string]string
	Items     map[string][]string
	Combined  string

	inflight chan error
}

// NewTestContext creates an empty scenario context.
func NewTestContext() *TestContext {
	return &TestContext{
		Clippings: make(map[string]string),
		Items:     make(map[string][]string),
	}
}

// Cleanup releases the session.
func (testCtx *TestContext) Cleanup() error {
	if testCtx.Recognizer != nil {
		testCtx.Recognizer.Release()
	}
	if testCtx.inflight != nil {
		<-testCtx.inflight
		testCtx.inflight = nil
	}
	if testCtx.Session == nil {
		return nil
	}
	err := testCtx.Session.Close()
	testCtx.Session = nil
	return err
}

// toScreen converts a normalized page point to overlay screen coordinates.
func toScreen(x, y float64) geometry.Point {
	return Overlay.ToScreen(geometry.Point{X: x, Y: y})
}

type blankRasterizer struct{}

func (blankRasterizer) RenderPage(_ context.Context, _ int, scale float64) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, int(100*scale), int(130*scale))), nil
}

// ScriptedRecognizer returns a fixed text or error and can hold a job
// in flight until released.
type ScriptedRecognizer struct {
	mu      sync.Mutex
	text    string
	err     error
	gate    chan struct{}
	started chan struct{}
}

// NewScriptedRecognizer returns a recognizer answering text.
func NewScriptedRecognizer(text string) *ScriptedRecognizer {
	return &ScriptedRecognizer{text: text}
}

// FailWith makes every later recognition fail.
func (r *ScriptedRecognizer) FailWith(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = errors.New(msg)
}

// Hold makes the next recognition block until Release. The returned
// channel is closed once that recognition has started.
func (r *ScriptedRecognizer) Hold() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
	r.started = make(chan struct{})
	return r.started
}

// Release unblocks a held recognition.
func (r *ScriptedRecognizer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gate != nil {
		close(r.gate)
		r.gate = nil
	}
}

// Recognize implements ocr.Recognizer.
func (r *ScriptedRecognizer) Recognize(ctx context.Context, _ []byte) (ocr.Recognition, error) {
	r.mu.Lock()
	gate, started := r.gate, r.started
	r.started = nil
	text, err := r.text, r.err
	r.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ocr.Recognition{}, ctx.Err()
		}
	}
	if err != nil {
		return ocr.Recognition{}, err
	}
	return ocr.Recognition{Text: text, Confidence: 91}, nil
}

// Terminate implements ocr.Recognizer.
func (r *ScriptedRecognizer) Terminate() error { return nil }

// StartSession opens a document of pages pages with a scripted recognizer.
func (testCtx *TestContext) StartSession(pages int) error {
	if pages < 1 {
		return fmt.Errorf("invalid page count %d", pages)
	}
	testCtx.Recognizer = NewScriptedRecognizer("recognized text")
	pipeline := ocr.New(blankRasterizer{},
		func(context.Context) (ocr.Recognizer, error) { return testCtx.Recognizer, nil },
		ocr.WithConfig(ocr.Config{
			EstimatedDuration: 100 * time.Millisecond,
			TickInterval:      10 * time.Millisecond,
			ExpiryDelay:       ExpiryDelay,
		}))

	cfg := engine.DefaultConfig()
	cfg.AutoOCR = false
	testCtx.Session = engine.New("scenario.pdf", pages, engine.WithConfig(cfg), engine.WithOCR(pipeline))
	for page := 1; page <= pages; page++ {
		testCtx.Session.SetOverlay(page, Overlay)
	}
	return nil
}
