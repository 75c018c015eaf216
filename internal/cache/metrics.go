package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultHit       = "hit"
	resultInherited = "inherited"
	resultCold      = "cold"
)

// setupsTotal counts cache bindings by how the artifact was found.
// Labels: result (hit, inherited, cold)
var setupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stylefix",
		Subsystem: "cache",
		Name:      "setups_total",
		Help:      "Total number of cache bindings by artifact origin",
	},
	[]string{"result"},
)
