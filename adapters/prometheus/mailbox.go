package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/clstr-fiber/core/mailbox"
	"github.com/codewandler/clstr-fiber/core/metrics"
)

type mailboxMetrics struct {
	delivered *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	lockWait  prometheus.Histogram
}

func NewMailboxMetrics(reg prometheus.Registerer) mailbox.Metrics {
	m := &mailboxMetrics{
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mailbox_delivered_total",
			Help:      "Envelopes delivered to an entity",
		}, []string{"mailbox_type"}),

		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mailbox_rejected_total",
			Help:      "Envelopes that did not reach an entity",
		}, []string{"reason"}),

		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mailbox_lock_wait_seconds",
			Help:      "Time an ordered delivery waited for the entity lock",
			Buckets:   defaultBuckets,
		}),
	}
	reg.MustRegister(m.delivered, m.rejected, m.lockWait)
	return m
}

func (m *mailboxMetrics) Delivered(mailboxType string) {
	m.delivered.WithLabelValues(mailboxType).Inc()
}

func (m *mailboxMetrics) Rejected(reason string) { m.rejected.WithLabelValues(reason).Inc() }

func (m *mailboxMetrics) LockWait() metrics.Timer { return newTimer(m.lockWait) }

var _ mailbox.Metrics = (*mailboxMetrics)(nil)
