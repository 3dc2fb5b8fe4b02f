package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/clstr-fiber/core/dispatch"
	"github.com/codewandler/clstr-fiber/core/metrics"
)

type dispatchMetrics struct {
	duration  *prometheus.HistogramVec
	total     *prometheus.CounterVec
	panics    *prometheus.CounterVec
	unhandled *prometheus.CounterVec
}

func NewDispatchMetrics(reg prometheus.Registerer) dispatch.Metrics {
	m := &dispatchMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Handler run time in seconds, including suspensions",
			Buckets:   defaultBuckets,
		}, []string{"message_type"}),

		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_calls_total",
			Help:      "Handler invocations",
		}, []string{"message_type", "success"}),

		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Recovered handler panics",
		}, []string{"message_type"}),

		unhandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unhandled_messages_total",
			Help:      "Messages without a registered handler",
		}, []string{"message_type"}),
	}
	reg.MustRegister(m.duration, m.total, m.panics, m.unhandled)
	return m
}

func (m *dispatchMetrics) HandlerDuration(msgType string) metrics.Timer {
	return newTimer(m.duration.WithLabelValues(msgType))
}

func (m *dispatchMetrics) HandlerCompleted(msgType string, success bool) {
	m.total.WithLabelValues(msgType, boolToStr(success)).Inc()
}

func (m *dispatchMetrics) HandlerPanicked(msgType string) {
	m.panics.WithLabelValues(msgType).Inc()
}

func (m *dispatchMetrics) Unhandled(msgType string) {
	m.unhandled.WithLabelValues(msgType).Inc()
}

var _ dispatch.Metrics = (*dispatchMetrics)(nil)
