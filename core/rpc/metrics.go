package rpc

import "github.com/codewandler/clstr-fiber/core/metrics"

// Metrics instruments the correlator. All methods are thread-safe.
type Metrics interface {
	CallDuration(msgType string) metrics.Timer
	// code is the errcode string of the resolved response ("ok" on success).
	CallCompleted(msgType string, code string)
	MessageSent(msgType string)
	PendingRequests(fiber string, count int)
	LateResponse()
}

type nopMetrics struct{}

func (nopMetrics) CallDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) CallCompleted(string, string)      {}
func (nopMetrics) MessageSent(string)                {}
func (nopMetrics) PendingRequests(string, int)       {}
func (nopMetrics) LateResponse()                     {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
