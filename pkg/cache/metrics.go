package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts responses served from Redis.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_cache_hits_total",
		Help: "Total number of catalog response cache hits",
	})

	// CacheMisses counts lookups that found nothing usable.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_cache_misses_total",
		Help: "Total number of catalog response cache misses",
	})

	// CacheStores counts entries written.
	CacheStores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_cache_stores_total",
		Help: "Total number of catalog responses stored in the cache",
	})

	// CacheErrors counts Redis or encoding failures by operation.
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_errors_total",
		Help: "Total number of catalog response cache errors",
	}, []string{"operation"}) // get, set, delete

	// NotModifiedResponses counts 304 answers to conditional requests.
	NotModifiedResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_304_responses_total",
		Help: "Total number of 304 Not Modified responses from the catalog",
	})

	// ConditionalRequestsSent counts requests sent with If-None-Match/If-Modified-Since.
	ConditionalRequestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_conditional_requests_total",
		Help: "Total number of conditional requests sent to the catalog",
	})
)
