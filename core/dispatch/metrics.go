package dispatch

import "github.com/codewandler/clstr-fiber/core/metrics"

// Metrics instruments handler execution. All methods are thread-safe.
type Metrics interface {
	HandlerDuration(msgType string) metrics.Timer
	HandlerCompleted(msgType string, success bool)
	HandlerPanicked(msgType string)
	Unhandled(msgType string)
}

type nopMetrics struct{}

func (nopMetrics) HandlerDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) HandlerCompleted(string, bool)        {}
func (nopMetrics) HandlerPanicked(string)               {}
func (nopMetrics) Unhandled(string)                     {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
