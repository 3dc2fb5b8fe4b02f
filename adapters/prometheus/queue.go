package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/clstr-fiber/core/msgqueue"
)

type queueMetrics struct {
	sent     *prometheus.CounterVec
	received prometheus.Counter
	depth    *prometheus.GaugeVec
	errors   *prometheus.CounterVec
	bounced  prometheus.Counter
}

func NewQueueMetrics(reg prometheus.Registerer) msgqueue.Metrics {
	m := &queueMetrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_sent_total",
			Help:      "Envelopes sent, by local or remote route",
		}, []string{"route"}),

		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_received_total",
			Help:      "Envelopes received from the wire",
		}),

		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inbox_depth",
			Help:      "Envelopes waiting in a fiber inbox",
		}, []string{"fiber"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_errors_total",
			Help:      "Envelopes that could not be routed or decoded",
		}, []string{"error_type"}),

		bounced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_bounced_total",
			Help:      "Requests answered by the queue because they could not be delivered",
		}),
	}
	reg.MustRegister(m.sent, m.received, m.depth, m.errors, m.bounced)
	return m
}

func (m *queueMetrics) EnvelopeSent(route string) { m.sent.WithLabelValues(route).Inc() }
func (m *queueMetrics) EnvelopeReceived()         { m.received.Inc() }

func (m *queueMetrics) InboxDepth(fiber string, depth int) {
	m.depth.WithLabelValues(fiber).Set(float64(depth))
}

func (m *queueMetrics) QueueError(errorType string) { m.errors.WithLabelValues(errorType).Inc() }
func (m *queueMetrics) Bounced()                    { m.bounced.Inc() }

var _ msgqueue.Metrics = (*queueMetrics)(nil)
