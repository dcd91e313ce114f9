// Package catalog defines the data exchanged between the search controller and
// a library catalog backend: queries, result pages and the backend's
// non-list outcomes (redirects, unreachable hosts).
package catalog

import (
	"net/url"
	"sort"
)

// Query is an immutable bag of search criteria (e.g. {"title": "dune"}).
type Query struct {
	params map[string]string
}

// NewQuery copies params into a new Query. Empty values are dropped.
func NewQuery(params map[string]string) Query {
	q := Query{params: make(map[string]string, len(params))}
	for k, v := range params {
		if v == "" {
			continue
		}
		q.params[k] = v
	}
	return q
}

// Get returns the value for key and whether it was set.
func (q Query) Get(key string) (string, bool) {
	v, ok := q.params[key]
	return v, ok
}

// Keys returns the parameter names in sorted order.
func (q Query) Keys() []string {
	keys := make([]string, 0, len(q.params))
	for k := range q.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of parameters.
func (q Query) Len() int {
	return len(q.params)
}

// IsZero reports whether the query carries no criteria.
func (q Query) IsZero() bool {
	return len(q.params) == 0
}

// Values returns the query as url.Values for transports that speak HTTP.
func (q Query) Values() url.Values {
	values := make(url.Values, len(q.params))
	for k, v := range q.params {
		values.Set(k, v)
	}
	return values
}

// Item is a single hit in a result list.
type Item struct {
	// ID identifies the record at the backend. Empty when the backend
	// did not supply one; such items cannot be reopened by id.
	ID     string `json:"id,omitempty"`
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	Year   string `json:"year,omitempty"`
	Type   string `json:"type,omitempty"`
}

// HasID reports whether the item carries a backend identifier.
func (i Item) HasID() bool {
	return i.ID != ""
}

// ResultPage is one page of a result list. It must not be modified after
// it has been handed to the controller.
type ResultPage struct {
	Items        []Item `json:"results"`
	Page         int    `json:"page"`
	TotalResults int    `json:"total_results"`
	TotalPages   int    `json:"total_pages"`
}

// Len returns the number of items on the page.
func (p *ResultPage) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}

// IsEmpty reports whether the page has no items.
func (p *ResultPage) IsEmpty() bool {
	return p.Len() == 0
}

// FirstID returns the identifier of the first item.
// ok is false when the page is empty or the first item has no identifier.
func (p *ResultPage) FirstID() (id string, ok bool) {
	if p.IsEmpty() {
		return "", false
	}
	first := p.Items[0]
	return first.ID, first.HasID()
}

// HasNext reports whether the backend announced more pages after this one.
// Backends that do not report a page count are assumed to have more.
func (p *ResultPage) HasNext() bool {
	if p == nil {
		return false
	}
	if p.TotalPages <= 0 {
		return true
	}
	return p.Page < p.TotalPages
}
