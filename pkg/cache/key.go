package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix starts every cache key written by this package.
const KeyPrefix = "catalog"

// CacheKey identifies a cached catalog response.
type CacheKey struct {
	// Backend is the catalog host, so several libraries can share one Redis.
	Backend string

	// Endpoint is the request path (e.g. "/search/abc123/page/2").
	Endpoint string

	// QueryParams are the request's query parameters.
	QueryParams url.Values
}

// String renders a deterministic key:
//
//	catalog:opac.example.org:search:title=dune:year=1965
//
// Query parameters are sorted; multi-valued parameters keep their order.
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if backend := strings.ToLower(strings.TrimSpace(k.Backend)); backend != "" {
		parts = append(parts, backend)
	}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	names := make([]string, 0, len(k.QueryParams))
	for name := range k.QueryParams {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		values := k.QueryParams[name]
		parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(values, ",")))
	}

	return strings.Join(parts, ":")
}
