package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by cache and result (hit or miss).",
	}, []string{"cache", "result"})

	cacheWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "cache",
		Name:      "writes_total",
		Help:      "Successful cache writes.",
	}, []string{"cache"})

	cacheExpirations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "cache",
		Name:      "expirations_total",
		Help:      "Entries evicted on read because their TTL elapsed.",
	}, []string{"cache"})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "cache",
		Name:      "errors_total",
		Help:      "Swallowed storage failures by operation.",
	}, []string{"cache", "op"})

	cacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "cache",
		Name:      "invalidations_total",
		Help:      "Mutation events processed by the invalidation graph.",
	}, []string{"event"})
)
