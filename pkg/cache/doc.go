// Package cache provides a Redis-backed response cache for the HTTP catalog
// transport.
//
// Catalog backends answer page requests with Expires/ETag/Last-Modified
// headers. The manager stores each 200 response until it expires and lets the
// transport revalidate stale copies with conditional requests, so reloads and
// repeated page views do not hammer a library's OPAC. The transport does not
// cache search requests: each one opens a backend session of its own.
//
// This cache is shared transport plumbing. The search controller keeps its
// own per-session page cache; nothing here outlives the TTL the backend
// granted, and entries are additionally capped by Manager.MaxTTL.
//
// # Basic Usage
//
//	manager := cache.NewManager(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//
//	key := cache.CacheKey{
//		Backend:     "opac.example.org",
//		Endpoint:    "/search/s-1/page/2",
//		QueryParams: url.Values{"format": []string{"json"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the backend, then:
//		entry, _ = cache.ResponseToEntry(resp)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// # Metrics
//
//   - catalog_cache_hits_total
//   - catalog_cache_misses_total
//   - catalog_cache_stores_total
//   - catalog_cache_errors_total{operation}
//   - catalog_304_responses_total
//   - catalog_conditional_requests_total
package cache
