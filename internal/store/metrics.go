package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_cache_hits_total",
		Help: "Cache lookups that returned a live response",
	}, []string{"client"})

	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_cache_misses_total",
		Help: "Cache lookups that found no row or an expired row",
	}, []string{"client"})

	cacheStoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_cache_stores_total",
		Help: "Responses written to the cache",
	}, []string{"client"})
)
