package ocr

import (
	"math"
	"time"

	"github.com/patrickmn/go-cache"
)

// Simulated progress bounds. The recognizer reports no intermediate
// progress, so the running phase is extrapolated from an assumed duration.
const (
	progressStart       = 0
	progressRendering   = 15
	progressRecognizing = 30
	progressCeiling     = 90
	progressDone        = 100
)

// SimulatedProgress returns the estimated percentage after elapsed time of
// a job expected to take estimated: 30 + elapsed/estimated*60, capped at 90.
func SimulatedProgress(elapsed, estimated time.Duration) int {
	if estimated <= 0 {
		return progressCeiling
	}
	v := progressRecognizing + float64(elapsed)/float64(estimated)*60
	return int(math.Round(math.Min(v, progressCeiling)))
}

// ProgressMap holds transient progress entries. Terminal entries expire a
// fixed delay after they are written.
type ProgressMap struct {
	entries *cache.Cache
	expiry  time.Duration
}

// NewProgressMap creates a map whose terminal entries live for expiry.
func NewProgressMap(expiry time.Duration) *ProgressMap {
	cleanup := expiry
	if cleanup <= 0 {
		cleanup = time.Second
	}
	return &ProgressMap{
		entries: cache.New(cache.NoExpiration, cleanup),
		expiry:  expiry,
	}
}

// Set writes a live entry that does not expire.
func (m *ProgressMap) Set(key string, p Progress) {
	m.entries.Set(key, p, cache.NoExpiration)
}

// Finish writes a terminal entry that expires after the configured delay.
func (m *ProgressMap) Finish(key string, p Progress) {
	if m.expiry <= 0 {
		m.entries.Delete(key)
		return
	}
	m.entries.Set(key, p, m.expiry)
}

// Delete removes key immediately.
func (m *ProgressMap) Delete(key string) {
	m.entries.Delete(key)
}

// Get returns the entry for key if it has not expired.
func (m *ProgressMap) Get(key string) (Progress, bool) {
	v, ok := m.entries.Get(key)
	if !ok {
		return Progress{}, false
	}
	return v.(Progress), true
}

// Snapshot returns every unexpired entry.
func (m *ProgressMap) Snapshot() map[string]Progress {
	items := m.entries.Items()
	out := make(map[string]Progress, len(items))
	for k, it := range items {
		out[k] = it.Object.(Progress)
	}
	return out
}

// Clear drops every entry.
func (m *ProgressMap) Clear() {
	m.entries.Flush()
}
