// Package pagecache holds fixed-size pages of fetched grid rows keyed by page
// index.
//
// The cache is write-through invalidation only: the server is the source of
// truth, bulk loads never overwrite a page that is already present, and any
// mutation that shifts rows evicts the affected pages so they get refetched.
package pagecache

import (
	"maps"
	"slices"
	"sync"
)

// Cache stores pages of rows of type R.
//
// A Cache with a page size <= 0 stores nothing; this is the state of a grid
// whose metadata has not been loaded yet.
type Cache[R any] struct {
	mu       sync.RWMutex
	pageSize int
	pages    map[int][]R
}

// New returns an empty cache splitting batches into pages of pageSize rows.
func New[R any](pageSize int) *Cache[R] {
	return &Cache[R]{
		pageSize: pageSize,
		pages:    make(map[int][]R),
	}
}

// PageSize returns the page size the cache was created with.
func (c *Cache[R]) PageSize() int {
	return c.pageSize
}

// TryGetData returns the rows cached for page.
//
// An empty, non-nil slice with ok == true means the server returned no rows
// for that page.
func (c *Cache[R]) TryGetData(page int) ([]R, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rows, ok := c.pages[page]
	return rows, ok
}

// Replace stores rows as page, overwriting any cached rows.
func (c *Cache[R]) Replace(page int, rows []R) {
	if c.pageSize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if rows == nil {
		rows = []R{}
	}
	c.pages[page] = rows
}

// AddOrReplaceMultiple splits rows into consecutive pages starting at page.
//
// Pages already in the cache are left untouched. An empty batch stores an
// explicit empty page at page.
func (c *Cache[R]) AddOrReplaceMultiple(page int, rows []R) {
	if c.pageSize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(rows) == 0 {
		c.pages[page] = []R{}
		return
	}
	count := (len(rows) + c.pageSize - 1) / c.pageSize
	for i := range count {
		if _, ok := c.pages[page+i]; ok {
			continue
		}
		start := i * c.pageSize
		end := min(start+c.pageSize, len(rows))
		c.pages[page+i] = slices.Clone(rows[start:end])
	}
}

// RemovePage evicts a single page.
func (c *Cache[R]) RemovePage(page int) {
	c.RemovePages(page, page)
}

// RemovePages evicts every cached page in [start, end].
func (c *Cache[R]) RemovePages(start, end int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for page := range c.pages {
		if page >= start && page <= end {
			delete(c.pages, page)
		}
	}
}

// Clear evicts everything.
func (c *Cache[R]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.pages)
}

// Pages returns the cached page indices in ascending order.
func (c *Cache[R]) Pages() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.pages))
}

// Len returns the number of cached pages.
func (c *Cache[R]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pages)
}
