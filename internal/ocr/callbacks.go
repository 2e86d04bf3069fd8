package ocr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback observes recognition jobs. Keys are PageKey or AreaKey
// values. Implementations must be safe for use from the estimator goroutine.
type ProgressCallback interface {
	// OnStart is called when a job begins.
	OnStart(key string)

	// OnProgress is called on every progress change.
	OnProgress(key string, p Progress)

	// OnComplete is called when a job succeeds.
	OnComplete(key string, r Result)

	// OnError is called when a job fails.
	OnError(key string, err error)
}

// NoOpProgressCallback implements ProgressCallback but does nothing.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(string)              {}
func (NoOpProgressCallback) OnProgress(string, Progress) {}
func (NoOpProgressCallback) OnComplete(string, Result)   {}
func (NoOpProgressCallback) OnError(string, error)       {}

// ConsoleProgressCallback draws a progress bar per job on a terminal.
type ConsoleProgressCallback struct {
	writer         io.Writer
	prefix         string
	width          int
	lastUpdate     time.Time
	updateInterval time.Duration
	mutex          sync.Mutex
	started        map[string]time.Time
}

// NewConsoleProgressCallback creates a new console progress reporter.
func NewConsoleProgressCallback(writer io.Writer, prefix string) *ConsoleProgressCallback {
	if writer == nil {
		writer = os.Stderr
	}
	return &ConsoleProgressCallback{
		writer:         writer,
		prefix:         prefix,
		width:          30,
		updateInterval: 100 * time.Millisecond,
		started:        make(map[string]time.Time),
	}
}

// WithWidth sets the progress bar width.
func (c *ConsoleProgressCallback) WithWidth(width int) *ConsoleProgressCallback {
	c.width = width
	return c
}

// WithUpdateInterval sets how frequently the progress bar updates.
func (c *ConsoleProgressCallback) WithUpdateInterval(interval time.Duration) *ConsoleProgressCallback {
	c.updateInterval = interval
	return c
}

func (c *ConsoleProgressCallback) OnStart(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.started[key] = time.Now()
	c.lastUpdate = time.Time{}
	_, _ = fmt.Fprintf(c.writer, "%s%s: started\n", c.prefix, key)
}

func (c *ConsoleProgressCallback) OnProgress(key string, p Progress) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	if now.Sub(c.lastUpdate) < c.updateInterval && p.Progress < progressDone {
		return
	}
	c.lastUpdate = now

	filled := c.width * p.Progress / progressDone
	bar := strings.Repeat("█", filled) + strings.Repeat("░", c.width-filled)
	_, _ = fmt.Fprintf(c.writer, "\r%s%s [%s] %3d%% %s", c.prefix, key, bar, p.Progress, p.Status)
}

func (c *ConsoleProgressCallback) OnComplete(key string, r Result) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	elapsed := time.Since(c.started[key])
	delete(c.started, key)
	_, _ = fmt.Fprintf(c.writer, "\n%s%s: completed in %v (%d chars, confidence %.0f)\n",
		c.prefix, key, elapsed.Round(time.Millisecond), len(r.Text), r.Confidence)
}

func (c *ConsoleProgressCallback) OnError(key string, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.started, key)
	_, _ = fmt.Fprintf(c.writer, "\n%s%s: error: %v\n", c.prefix, key, err)
}

// LogProgressCallback logs job transitions using slog. Intermediate
// progress is logged at debug level only.
type LogProgressCallback struct {
	logger *slog.Logger
	level  slog.Level
	prefix string
}

// NewLogProgressCallback creates a new log-based progress reporter.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level, prefix string) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level, prefix: prefix}
}

func (l *LogProgressCallback) OnStart(key string) {
	l.logger.Log(context.Background(), l.level, l.prefix+"OCR job started", "key", key)
}

func (l *LogProgressCallback) OnProgress(key string, p Progress) {
	l.logger.Debug(l.prefix+"OCR progress", "key", key, "progress", p.Progress, "status", p.Status)
}

func (l *LogProgressCallback) OnComplete(key string, r Result) {
	l.logger.Log(context.Background(), l.level, l.prefix+"OCR job completed",
		"key", key,
		"chars", len(r.Text),
		"confidence", r.Confidence,
	)
}

func (l *LogProgressCallback) OnError(key string, err error) {
	l.logger.Error(l.prefix+"OCR job failed", "key", key, "error", err)
}

// MultiProgressCallback fans out to several callbacks.
type MultiProgressCallback struct {
	mu        sync.RWMutex
	next      int
	callbacks map[int]ProgressCallback
	order     []int
}

// NewMultiProgressCallback creates a progress callback that reports to multiple callbacks.
func NewMultiProgressCallback(callbacks ...ProgressCallback) *MultiProgressCallback {
	m := &MultiProgressCallback{callbacks: make(map[int]ProgressCallback)}
	for _, cb := range callbacks {
		m.Add(cb)
	}
	return m
}

// Add adds another progress callback and returns a func removing it.
func (m *MultiProgressCallback) Add(callback ProgressCallback) func() {
	m.mu.Lock()
	id := m.next
	m.next++
	m.callbacks[id] = callback
	m.order = append(m.order, id)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.callbacks, id)
		for i, v := range m.order {
			if v == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
}

func (m *MultiProgressCallback) each(fn func(ProgressCallback)) {
	m.mu.RLock()
	cbs := make([]ProgressCallback, 0, len(m.callbacks))
	for _, id := range m.order {
		if cb, ok := m.callbacks[id]; ok {
			cbs = append(cbs, cb)
		}
	}
	m.mu.RUnlock()
	for _, cb := range cbs {
		fn(cb)
	}
}

func (m *MultiProgressCallback) OnStart(key string) {
	m.each(func(cb ProgressCallback) { cb.OnStart(key) })
}

func (m *MultiProgressCallback) OnProgress(key string, p Progress) {
	m.each(func(cb ProgressCallback) { cb.OnProgress(key, p) })
}

func (m *MultiProgressCallback) OnComplete(key string, r Result) {
	m.each(func(cb ProgressCallback) { cb.OnComplete(key, r) })
}

func (m *MultiProgressCallback) OnError(key string, err error) {
	m.each(func(cb ProgressCallback) { cb.OnError(key, err) })
}

// ThrottledProgressCallback wraps another callback and throttles
// intermediate progress. Terminal updates always pass.
type ThrottledProgressCallback struct {
	wrapped     ProgressCallback
	minInterval time.Duration
	lastUpdate  map[string]time.Time
	mutex       sync.Mutex
}

// NewThrottledProgressCallback creates a throttled wrapper around another callback.
func NewThrottledProgressCallback(wrapped ProgressCallback, minInterval time.Duration) *ThrottledProgressCallback {
	return &ThrottledProgressCallback{
		wrapped:     wrapped,
		minInterval: minInterval,
		lastUpdate:  make(map[string]time.Time),
	}
}

func (t *ThrottledProgressCallback) OnStart(key string) {
	t.wrapped.OnStart(key)
}

func (t *ThrottledProgressCallback) OnProgress(key string, p Progress) {
	t.mutex.Lock()
	now := time.Now()
	last, seen := t.lastUpdate[key]
	pass := !seen || p.Progress >= progressDone || now.Sub(last) >= t.minInterval
	if pass {
		t.lastUpdate[key] = now
	}
	t.mutex.Unlock()

	if pass {
		t.wrapped.OnProgress(key, p)
	}
}

func (t *ThrottledProgressCallback) OnComplete(key string, r Result) {
	t.forget(key)
	t.wrapped.OnComplete(key, r)
}

func (t *ThrottledProgressCallback) OnError(key string, err error) {
	t.forget(key)
	t.wrapped.OnError(key, err)
}

func (t *ThrottledProgressCallback) forget(key string) {
	t.mutex.Lock()
	delete(t.lastUpdate, key)
	t.mutex.Unlock()
}
