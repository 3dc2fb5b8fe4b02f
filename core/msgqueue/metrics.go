package msgqueue

// Metrics instruments the queue. All methods are thread-safe.
type Metrics interface {
	// route: local, remote
	EnvelopeSent(route string)
	EnvelopeReceived()
	InboxDepth(fiber string, depth int)
	// errorType: no_route, no_fiber, inbox_full, decode, wire
	QueueError(errorType string)
	Bounced()
}

type nopMetrics struct{}

func (nopMetrics) EnvelopeSent(string)    {}
func (nopMetrics) EnvelopeReceived()      {}
func (nopMetrics) InboxDepth(string, int) {}
func (nopMetrics) QueueError(string)      {}
func (nopMetrics) Bounced()               {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
