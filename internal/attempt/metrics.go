package attempt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultRecovered     = "recovered"
	resultFailed        = "failed"
	resultCleanupFailed = "cleanup_failed"
	resultCanceled      = "canceled"
)

// recoveriesTotal counts second attempts by outcome.
var recoveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stylefix",
		Subsystem: "attempt",
		Name:      "recoveries_total",
		Help:      "Total number of delete-and-retry recoveries by result",
	},
	[]string{"result"},
)
