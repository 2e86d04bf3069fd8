package ocr

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCallback struct {
	mu       sync.Mutex
	starts   []string
	progress map[string][]Progress
	complete []string
	errors   []string
}

func (r *recordingCallback) OnStart(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, key)
}

func (r *recordingCallback) OnProgress(key string, p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress == nil {
		r.progress = make(map[string][]Progress)
	}
	r.progress[key] = append(r.progress[key], p)
}

func (r *recordingCallback) OnComplete(key string, _ Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete = append(r.complete, key)
}

func (r *recordingCallback) OnError(key string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, key)
}

func (r *recordingCallback) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

func (r *recordingCallback) progressFor(key string) []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Progress(nil), r.progress[key]...)
}

func TestNoOpProgressCallback(t *testing.T) {
	callback := NoOpProgressCallback{}
	callback.OnStart("1")
	callback.OnProgress("1", Progress{Progress: 50})
	callback.OnComplete("1", Result{})
	callback.OnError("1", assert.AnError)
}

func TestConsoleProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	callback := NewConsoleProgressCallback(&buf, "OCR ").WithWidth(10).WithUpdateInterval(time.Millisecond)

	callback.OnStart("3")
	assert.Contains(t, buf.String(), "OCR 3: started")

	buf.Reset()
	callback.OnProgress("3", Progress{Progress: 50, Status: StatusRecognizing})
	out := buf.String()
	assert.Contains(t, out, "█████░░░░░")
	assert.Contains(t, out, " 50% Recognizing text...")

	buf.Reset()
	callback.OnComplete("3", Result{Text: "abc", Confidence: 91})
	assert.Contains(t, buf.String(), "OCR 3: completed in")
	assert.Contains(t, buf.String(), "3 chars, confidence 91")

	buf.Reset()
	callback.OnError("clip-3", assert.AnError)
	assert.Contains(t, buf.String(), "OCR clip-3: error:")
}

func TestLogProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	callback := NewLogProgressCallback(logger, slog.LevelInfo, "doc: ")

	callback.OnStart("2")
	callback.OnProgress("2", Progress{Progress: 42, Status: StatusRecognizing})
	callback.OnComplete("2", Result{Text: "hello"})
	callback.OnError("2", assert.AnError)

	out := buf.String()
	assert.Contains(t, out, "doc: OCR job started")
	assert.Contains(t, out, "progress=42")
	assert.Contains(t, out, "chars=5")
	assert.Contains(t, out, "level=ERROR")
}

func TestMultiProgressCallback(t *testing.T) {
	a, b := &recordingCallback{}, &recordingCallback{}
	multi := NewMultiProgressCallback(a)
	remove := multi.Add(b)

	multi.OnStart("1")
	multi.OnProgress("1", Progress{Progress: 15})
	remove()
	multi.OnComplete("1", Result{})
	multi.OnError("1", assert.AnError)

	assert.Equal(t, []string{"1"}, a.starts)
	assert.Equal(t, []string{"1"}, b.starts)
	assert.Equal(t, []string{"1"}, a.complete)
	assert.Empty(t, b.complete)
	assert.Equal(t, 1, a.errorCount())
	assert.Equal(t, 0, b.errorCount())
}

func TestThrottledProgressCallback(t *testing.T) {
	inner := &recordingCallback{}
	throttled := NewThrottledProgressCallback(inner, time.Hour)

	throttled.OnStart("1")
	throttled.OnProgress("1", Progress{Progress: 30})
	throttled.OnProgress("1", Progress{Progress: 40})
	throttled.OnProgress("1", Progress{Progress: 50})
	throttled.OnProgress("2", Progress{Progress: 10})
	throttled.OnProgress("1", Progress{Progress: 100})
	throttled.OnComplete("1", Result{})

	got := inner.progressFor("1")
	require.Len(t, got, 2)
	assert.Equal(t, 30, got[0].Progress)
	assert.Equal(t, 100, got[1].Progress)
	assert.Len(t, inner.progressFor("2"), 1)
	assert.Equal(t, []string{"1"}, inner.complete)
}
