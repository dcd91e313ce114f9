package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "search_fetches_total",
		Help: "Total catalog fetches by request kind and outcome",
	}, []string{"kind", "outcome"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "search_fetch_duration_seconds",
		Help:    "Catalog fetch duration in seconds by request kind",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"kind"})

	pageCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "search_page_cache_total",
		Help: "Page cache operations by result (hit, miss, store, skip)",
	}, []string{"result"})

	staleCompletionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "search_stale_completions_total",
		Help: "Fetch completions discarded because a newer intent superseded them",
	})
)
