package optimistic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "optimistic",
		Name:      "operations_started_total",
		Help:      "Optimistic operations applied locally, by kind.",
	}, []string{"kind"})

	opsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "optimistic",
		Name:      "operations_resolved_total",
		Help:      "Optimistic operations leaving the tracker, by kind and outcome.",
	}, []string{"kind", "outcome"})
)
