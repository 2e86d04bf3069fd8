package ocr

import (
	"sort"
	"sync"
)

// ResultCache maps page numbers to their latest successful recognition.
type ResultCache struct {
	mu      sync.RWMutex
	results map[int]Result
}

// NewResultCache creates an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{results: make(map[int]Result)}
}

// Put stores r for page, replacing an earlier run.
func (c *ResultCache) Put(page int, r Result) {
	c.mu.Lock()
	c.results[page] = r
	n := len(c.results)
	c.mu.Unlock()
	ocrCachedPages.Set(float64(n))
}

// Get returns the cached result for page.
func (c *ResultCache) Get(page int) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[page]
	return r, ok
}

// Snapshot returns a copy of every cached result.
func (c *ResultCache) Snapshot() map[int]Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int]Result, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// Pages returns the cached page numbers in ascending order.
func (c *ResultCache) Pages() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pages := make([]int, 0, len(c.results))
	for p := range c.results {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// Clear drops every entry.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	c.results = make(map[int]Result)
	c.mu.Unlock()
	ocrCachedPages.Set(0)
}
