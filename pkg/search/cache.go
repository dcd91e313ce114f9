package search

import "github.com/Sternrassler/opac-search-client/pkg/catalog"

// PageCache maps page numbers to result pages fetched during one search
// session. Entries are never evicted; drop the whole cache to forget them.
//
// PageCache is not safe for concurrent use. The controller only touches it
// from its loop goroutine.
type PageCache struct {
	pages map[int]*catalog.ResultPage
}

// NewPageCache creates an empty page cache.
func NewPageCache() *PageCache {
	return &PageCache{pages: make(map[int]*catalog.ResultPage)}
}

// Eligible reports whether result may be cached: it must be non-empty and
// its first item must carry an identifier. Pages that fail this check are
// typically redirect stubs or malformed first entries and are refetched.
func Eligible(result *catalog.ResultPage) bool {
	_, ok := result.FirstID()
	return ok
}

// Get returns the cached page for pageNumber.
func (c *PageCache) Get(pageNumber int) (*catalog.ResultPage, bool) {
	result, ok := c.pages[pageNumber]
	return result, ok
}

// Put stores result under pageNumber if it is eligible and reports whether
// it was stored.
func (c *PageCache) Put(pageNumber int, result *catalog.ResultPage) bool {
	if pageNumber < 1 || !Eligible(result) {
		return false
	}
	c.pages[pageNumber] = result
	return true
}

// Len returns the number of cached pages.
func (c *PageCache) Len() int {
	return len(c.pages)
}
