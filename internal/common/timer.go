// Package common holds small helpers shared by the recognition packages.
package common

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures a single job. The first Stop fixes the duration.
type Timer struct {
	name     string
	start    time.Time
	duration time.Duration
	stopped  bool
	now      func() time.Time
}

// NewNamedTimer starts a timer for the named job.
func NewNamedTimer(name string) *Timer {
	return NewTimerWithClock(name, time.Now)
}

// NewTimerWithClock starts a timer reading time from now.
func NewTimerWithClock(name string, now func() time.Time) *Timer {
	return &Timer{name: name, start: now(), now: now}
}

// Stop stops the timer and returns the elapsed duration. Later calls
// return the first result.
func (t *Timer) Stop() time.Duration {
	if !t.stopped {
		t.duration = t.now().Sub(t.start)
		t.stopped = true
	}
	return t.duration
}

// ObserveDuration stops the timer and records the elapsed seconds in o.
func (t *Timer) ObserveDuration(o prometheus.Observer) time.Duration {
	d := t.Stop()
	o.Observe(d.Seconds())
	return d
}

// Duration returns the recorded duration, zero before Stop.
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Name returns the job name.
func (t *Timer) Name() string {
	return t.name
}

// LogValue renders the timer as a log group.
func (t *Timer) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("job", t.name),
		slog.Duration("duration", t.duration),
	)
}
