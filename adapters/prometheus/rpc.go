package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/clstr-fiber/core/metrics"
	"github.com/codewandler/clstr-fiber/core/rpc"
)

type rpcMetrics struct {
	callDuration *prometheus.HistogramVec
	callsTotal   *prometheus.CounterVec
	sentTotal    *prometheus.CounterVec
	pending      *prometheus.GaugeVec
	late         prometheus.Counter
}

func NewRPCMetrics(reg prometheus.Registerer) rpc.Metrics {
	m := &rpcMetrics{
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "Time from sending a request until its response resolved",
			Buckets:   defaultBuckets,
		}, []string{"message_type"}),

		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Resolved requests by response code",
		}, []string{"message_type", "code"}),

		sentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_messages_sent_total",
			Help:      "One-way messages sent",
		}, []string{"message_type"}),

		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_pending_requests",
			Help:      "Requests waiting for a response",
		}, []string{"fiber"}),

		late: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_late_responses_total",
			Help:      "Responses that arrived after their request resolved",
		}),
	}
	reg.MustRegister(m.callDuration, m.callsTotal, m.sentTotal, m.pending, m.late)
	return m
}

func (m *rpcMetrics) CallDuration(msgType string) metrics.Timer {
	return newTimer(m.callDuration.WithLabelValues(msgType))
}

func (m *rpcMetrics) CallCompleted(msgType string, code string) {
	m.callsTotal.WithLabelValues(msgType, code).Inc()
}

func (m *rpcMetrics) MessageSent(msgType string) {
	m.sentTotal.WithLabelValues(msgType).Inc()
}

func (m *rpcMetrics) PendingRequests(fiber string, count int) {
	m.pending.WithLabelValues(fiber).Set(float64(count))
}

func (m *rpcMetrics) LateResponse() { m.late.Inc() }

var _ rpc.Metrics = (*rpcMetrics)(nil)
