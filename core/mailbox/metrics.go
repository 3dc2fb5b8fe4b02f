package mailbox

import "github.com/codewandler/clstr-fiber/core/metrics"

// Metrics instruments delivery. All methods are thread-safe.
type Metrics interface {
	Delivered(mailboxType string)
	// reason: no_entity, no_mailbox, stale_instance, lock, session
	Rejected(reason string)
	LockWait() metrics.Timer
}

type nopMetrics struct{}

func (nopMetrics) Delivered(string)        {}
func (nopMetrics) Rejected(string)         {}
func (nopMetrics) LockWait() metrics.Timer { return metrics.NopTimer() }

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
