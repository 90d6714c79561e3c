package rtcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	sourceLocal   = "local"
	sourceTree    = "tree"
	sourceDurable = "durable"
)

var loads = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "engage",
	Subsystem: "readthrough",
	Name:      "loads_total",
	Help:      "Values served by the loader, by the layer that had them.",
}, []string{"source"})
