package persistence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var syncOps = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "marginalia_sync_operations_total",
		Help: "Annotation service requests by operation and result",
	},
	[]string{"operation", "result"},
)
