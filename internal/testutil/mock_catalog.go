// Package testutil provides a mock catalog backend for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/opac-search-client/pkg/catalog"
)

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCatalog is an httptest server that speaks the catalog search protocol.
// Every search returns the configured result set split into pages.
type MockCatalog struct {
	server *httptest.Server

	mu         sync.RWMutex
	handlers   map[string]http.HandlerFunc
	items      []catalog.Item
	pageSize   int
	redirectID string
	redirect   bool
	errorCode  string
	searches   map[string]searchParams
	nextID     int

	// Tracking
	RequestCount      int
	ConditionalCount  int
	SearchCount       int
	PageRequests      []int
	LastRequestHeader http.Header
	LastQuery         map[string]string
}

// searchParams is the query a search session was opened with.
type searchParams map[string]string

// NewMockCatalog starts a mock catalog with no results and a page size of 10.
func NewMockCatalog() *MockCatalog {
	mock := &MockCatalog{
		handlers: make(map[string]http.HandlerFunc),
		pageSize: 10,
		searches: make(map[string]searchParams),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", mock.handleSearch)
	mux.HandleFunc("GET /search/{id}/page/{n}", mock.handlePage)

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.SearchCount = 0
	m.PageRequests = nil
	m.LastRequestHeader = nil
	m.LastQuery = nil
}

// SetResults sets the result set returned by every search.
func (m *MockCatalog) SetResults(items []catalog.Item, pageSize int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
	if pageSize > 0 {
		m.pageSize = pageSize
	}
	m.redirect = false
	m.errorCode = ""
}

// SetRedirect makes searches answer with a redirect to itemID.
func (m *MockCatalog) SetRedirect(itemID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redirect = true
	m.redirectID = itemID
	m.errorCode = ""
}

// SetErrorCode makes searches and pages answer with a backend error code.
func (m *MockCatalog) SetErrorCode(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCode = code
	m.redirect = false
}

// SetHandler overrides the handler for an exact path.
func (m *MockCatalog) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for an exact path.
func (m *MockCatalog) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests served.
func (m *MockCatalog) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockCatalog) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetSearchCount returns the number of searches that reached the backend.
func (m *MockCatalog) GetSearchCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.SearchCount
}

// GetPageRequests returns the page numbers requested so far.
func (m *MockCatalog) GetPageRequests() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.PageRequests...)
}

func (m *MockCatalog) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := make(searchParams)
	for key := range r.URL.Query() {
		query[key] = r.URL.Query().Get(key)
	}

	m.mu.Lock()
	m.SearchCount++
	m.LastQuery = query
	m.nextID++
	searchID := fmt.Sprintf("s-%d", m.nextID)
	m.searches[searchID] = query
	resp := m.responseLocked(1)
	m.mu.Unlock()

	if resp.Error == "" && !resp.Redirect {
		resp.SearchID = searchID
	}
	writeCatalogJSON(w, r, http.StatusOK, resp)
}

func (m *MockCatalog) handlePage(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || page < 1 {
		writeCatalogJSON(w, r, http.StatusBadRequest, catalog.SearchResponse{Error: "invalid_page"})
		return
	}

	m.mu.Lock()
	m.PageRequests = append(m.PageRequests, page)
	_, known := m.searches[r.PathValue("id")]
	resp := m.responseLocked(page)
	m.mu.Unlock()

	if !known {
		writeCatalogJSON(w, r, http.StatusNotFound, catalog.SearchResponse{Error: "session_expired"})
		return
	}
	resp.SearchID = r.PathValue("id")
	writeCatalogJSON(w, r, http.StatusOK, resp)
}

// responseLocked builds the body for page. m.mu must be held.
func (m *MockCatalog) responseLocked(page int) catalog.SearchResponse {
	if m.errorCode != "" {
		return catalog.SearchResponse{Error: m.errorCode}
	}
	if m.redirect {
		return catalog.SearchResponse{Redirect: true, RedirectID: m.redirectID}
	}

	totalPages := (len(m.items) + m.pageSize - 1) / m.pageSize
	start := (page - 1) * m.pageSize
	end := start + m.pageSize
	if start > len(m.items) {
		start = len(m.items)
	}
	if end > len(m.items) {
		end = len(m.items)
	}

	return catalog.SearchResponse{
		Page:         page,
		TotalResults: len(m.items),
		TotalPages:   totalPages,
		Results:      append([]catalog.Item{}, m.items[start:end]...),
	}
}

// writeCatalogJSON writes body with quota and caching headers and answers
// If-None-Match with 304 when the ETag matches.
func writeCatalogJSON(w http.ResponseWriter, r *http.Request, status int, body catalog.SearchResponse) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h := fnv.New64a()
	h.Write(data)
	etag := fmt.Sprintf(`"%x"`, h.Sum64())

	w.Header().Set("X-RateLimit-Remaining", "100")
	w.Header().Set("X-RateLimit-Reset", "60")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))

	if status == http.StatusOK {
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.WriteHeader(status)
	w.Write(data)
}

// Items builds n items with ids prefix1..prefixN.
func Items(n int, prefix string) []catalog.Item {
	items := make([]catalog.Item, n)
	for i := range items {
		items[i] = catalog.Item{
			ID:    fmt.Sprintf("%s%d", prefix, i+1),
			Title: fmt.Sprintf("Title %d", i+1),
		}
	}
	return items
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "95",
			"X-RateLimit-Reset":     "60",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response with a
// critical quota.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "rate_limited"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "2",
			"X-RateLimit-Reset":     "30",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}
