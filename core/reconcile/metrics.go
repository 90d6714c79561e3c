package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultAccepted  = "accepted"
	resultUnchanged = "unchanged"
	resultError     = "error"

	outcomeOK         = "ok"
	outcomeFailed     = "failed"
	outcomeLoading    = "suppressed_loading"
	outcomeQuiet      = "suppressed_quiet"
	outcomeProcessing = "suppressed_processing"
	outcomeThrottled  = "throttled"
)

var (
	pushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "reconcile",
		Name:      "pushes_total",
		Help:      "Real-time pushes received, by result.",
	}, []string{"result"})

	reloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "reconcile",
		Name:      "reloads_total",
		Help:      "Debounced reload attempts, by outcome.",
	}, []string{"outcome"})
)
