// Package prometheus implements the metrics interfaces of the fiber layers
// with Prometheus collectors.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/clstr-fiber/core/fiber"
	"github.com/codewandler/clstr-fiber/core/metrics"
)

const namespace = "clstr_fiber"

func newTimer(h prometheus.Observer) metrics.Timer {
	start := time.Now()
	return metrics.TimerFunc(func() { h.Observe(time.Since(start).Seconds()) })
}

// Latency buckets in seconds. The top bucket covers the default request
// timeout.
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 40,
}

// NewFiberMetrics registers collectors for every layer with reg and returns
// them ready for fiber.ProcessOptions.
func NewFiberMetrics(reg prometheus.Registerer) fiber.Metrics {
	return fiber.Metrics{
		RPC:      NewRPCMetrics(reg),
		Dispatch: NewDispatchMetrics(reg),
		Queue:    NewQueueMetrics(reg),
		Mailbox:  NewMailboxMetrics(reg),
	}
}

func boolToStr(b bool) string { return strconv.FormatBool(b) }
